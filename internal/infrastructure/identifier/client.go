package identifier

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"vision-scan/internal/domain/entity"
	"vision-scan/internal/domain/port"
)

// Коды ошибок, которые сервис присылает в теле ответа
const (
	CodeImageTooLarge = "IMAGE_TOO_LARGE"
	CodeInvalidImage  = "INVALID_IMAGE"
)

const maxResponseSize = 1 << 20

// Client клиент сервиса распознавания
type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

// NewClient создаёт клиент. Нулевой timeout означает 30 секунд.
func NewClient(url, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:    url,
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type identifyRequest struct {
	Image    string `json:"image"`
	MimeType string `json:"mimeType"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

type identifyResponse struct {
	SubjectType       string        `json:"subjectType"`
	PrimaryLabel      string        `json:"primaryLabel"`
	SecondaryLabel    string        `json:"secondaryLabel"`
	Year              *int          `json:"year"`
	QualityScore      *float64      `json:"qualityScore"`
	AlternativeLabels []string      `json:"alternativeLabels"`
	ConfidenceScore   float64       `json:"confidenceScore"`
	Reasoning         string        `json:"reasoning"`
	Disclaimer        string        `json:"disclaimer"`
	Error             *serviceError `json:"error"`
}

type serviceError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Identify отправляет изображение один раз. Повторов нет: решение о повторе за пользователем.
func (c *Client) Identify(ctx context.Context, img entity.PreprocessedImage) (*entity.Identification, error) {
	reqBody := identifyRequest{
		Image:    base64.StdEncoding.EncodeToString(img.Data),
		MimeType: "image/jpeg",
		Width:    img.Width,
		Height:   img.Height,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, entity.NewScanError(entity.ErrNetwork, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, transportError(err)
	}

	var parsed identifyResponse
	jsonErr := json.Unmarshal(body, &parsed)

	if resp.StatusCode != http.StatusOK || (jsonErr == nil && parsed.Error != nil) {
		var code, message string
		if jsonErr == nil && parsed.Error != nil {
			code, message = parsed.Error.Code, parsed.Error.Message
		} else {
			message = strings.TrimSpace(string(body))
		}
		return nil, Classify(resp.StatusCode, code, message)
	}
	if jsonErr != nil {
		return nil, entity.NewScanError(entity.ErrServer, "malformed service response", jsonErr)
	}
	if strings.TrimSpace(parsed.PrimaryLabel) == "" {
		return nil, entity.NewScanError(entity.ErrServer, "service response has no label", nil)
	}

	return &entity.Identification{
		SubjectType:       parsed.SubjectType,
		PrimaryLabel:      parsed.PrimaryLabel,
		SecondaryLabel:    parsed.SecondaryLabel,
		Year:              parsed.Year,
		QualityScore:      parsed.QualityScore,
		AlternativeLabels: parsed.AlternativeLabels,
		ConfidenceScore:   parsed.ConfidenceScore,
		Reasoning:         parsed.Reasoning,
		Disclaimer:        parsed.Disclaimer,
	}, nil
}

// Classify переводит отказ сервиса в вид ошибки.
// Код из тела ответа важнее HTTP статуса.
func Classify(status int, code, message string) *entity.ScanError {
	msg := message
	if msg == "" {
		msg = fmt.Sprintf("service responded with status %d", status)
	}

	switch strings.ToUpper(strings.TrimSpace(code)) {
	case CodeImageTooLarge:
		return entity.NewScanError(entity.ErrImageTooLarge, msg, nil)
	case CodeInvalidImage:
		return entity.NewScanError(entity.ErrInvalidImage, msg, nil)
	}

	lower := strings.ToLower(message)
	if strings.Contains(lower, "timed out") || strings.Contains(lower, "timeout") || status == http.StatusGatewayTimeout {
		return entity.NewScanError(entity.ErrTimeout, msg, nil)
	}

	switch status {
	case http.StatusTooManyRequests:
		return entity.NewScanError(entity.ErrRateLimited, msg, nil)
	case http.StatusInternalServerError:
		return entity.NewScanError(entity.ErrServer, msg, nil)
	case http.StatusServiceUnavailable:
		return entity.NewScanError(entity.ErrServiceUnavailable, msg, nil)
	case http.StatusBadRequest:
		return entity.NewScanError(entity.ErrInvalidImage, msg, nil)
	default:
		return entity.NewScanError(entity.ErrNetwork, msg, nil)
	}
}

func transportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return entity.NewScanError(entity.ErrTimeout, "identification request timed out", err)
	}
	return entity.NewScanError(entity.ErrNetwork, "identification request failed", err)
}

// Проверка реализации интерфейса
var _ port.Identifier = (*Client)(nil)
