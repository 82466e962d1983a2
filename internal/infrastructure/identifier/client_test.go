package identifier

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vision-scan/internal/domain/entity"
)

func newServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

var testImage = entity.PreprocessedImage{Data: []byte{0xFF, 0xD8, 0xFF, 0xD9}, Width: 2, Height: 2}

func TestClient_Success(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req identifyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		data, err := base64.StdEncoding.DecodeString(req.Image)
		require.NoError(t, err)
		require.Equal(t, testImage.Data, data)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"subjectType": "coin",
			"primaryLabel": "Morgan Dollar",
			"secondaryLabel": "United States",
			"year": 1921,
			"alternativeLabels": ["Peace Dollar"],
			"confidenceScore": 0.87
		}`))
	})

	c := NewClient(srv.URL, "secret", time.Second)
	id, err := c.Identify(context.Background(), testImage)
	require.NoError(t, err)
	require.Equal(t, "Morgan Dollar", id.PrimaryLabel)
	require.Equal(t, 1921, *id.Year)
	require.Nil(t, id.QualityScore)
	require.Equal(t, []string{"Peace Dollar"}, id.AlternativeLabels)
	require.InDelta(t, 0.87, id.ConfidenceScore, 1e-9)
}

func TestClient_FailureMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   entity.ErrorKind
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, entity.ErrRateLimited},
		{"timed out text", http.StatusInternalServerError, `{"error":{"message":"upstream model timed out"}}`, entity.ErrTimeout},
		{"gateway timeout", http.StatusGatewayTimeout, `gateway`, entity.ErrTimeout},
		{"too large code", http.StatusBadRequest, `{"error":{"code":"IMAGE_TOO_LARGE","message":"too big"}}`, entity.ErrImageTooLarge},
		{"invalid code", http.StatusUnprocessableEntity, `{"error":{"code":"INVALID_IMAGE"}}`, entity.ErrInvalidImage},
		{"server error", http.StatusInternalServerError, `boom`, entity.ErrServer},
		{"unavailable", http.StatusServiceUnavailable, ``, entity.ErrServiceUnavailable},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"bad"}}`, entity.ErrInvalidImage},
		{"other status", http.StatusTeapot, ``, entity.ErrNetwork},
		{"error on 200", http.StatusOK, `{"error":{"code":"INVALID_IMAGE","message":"not a coin"}}`, entity.ErrInvalidImage},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})

			_, err := NewClient(srv.URL, "", time.Second).Identify(context.Background(), testImage)
			require.Equal(t, tc.want, entity.KindOf(err))
		})
	}
}

func TestClient_MalformedSuccess(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"subjectType":"coin"}`))
	})
	_, err := NewClient(srv.URL, "", time.Second).Identify(context.Background(), testImage)
	require.Equal(t, entity.ErrServer, entity.KindOf(err))
}

func TestClient_TransportTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	_, err := NewClient(srv.URL, "", 20*time.Millisecond).Identify(context.Background(), testImage)
	require.Equal(t, entity.ErrTimeout, entity.KindOf(err))
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, "", time.Second).Identify(context.Background(), testImage)
	require.Equal(t, entity.ErrNetwork, entity.KindOf(err))
}

func TestClassify_CodeTakesPrecedence(t *testing.T) {
	err := Classify(http.StatusTooManyRequests, "image_too_large", "timeout while reading")
	require.Equal(t, entity.ErrImageTooLarge, err.Kind)

	err = Classify(http.StatusServiceUnavailable, "", "Request TIMEOUT")
	require.Equal(t, entity.ErrTimeout, err.Kind)
}
