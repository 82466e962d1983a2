package entity

import (
	"strings"
	"time"
)

// DefaultDisclaimer добавляется к результату, если сервис не прислал свой.
const DefaultDisclaimer = "Automated identification may be inaccurate. Verify important details with an expert."

// ConfidenceBand грубая оценка уверенности
type ConfidenceBand string

const (
	ConfidenceHigh   ConfidenceBand = "high"
	ConfidenceMedium ConfidenceBand = "medium"
	ConfidenceLow    ConfidenceBand = "low"
)

// BandFor переводит числовую уверенность в категорию.
func BandFor(score float64) ConfidenceBand {
	switch {
	case score >= 0.8:
		return ConfidenceHigh
	case score >= 0.5:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Identification ответ сервиса распознавания в сыром виде
type Identification struct {
	SubjectType       string
	PrimaryLabel      string
	SecondaryLabel    string
	Year              *int
	QualityScore      *float64
	AlternativeLabels []string
	ConfidenceScore   float64
	Reasoning         string
	Disclaimer        string
}

// IdentificationResult итог распознавания, неизменяемый после создания
type IdentificationResult struct {
	SubjectType       string         `json:"subjectType"`
	PrimaryLabel      string         `json:"primaryLabel"`
	SecondaryLabel    string         `json:"secondaryLabel"`
	Year              *int           `json:"year,omitempty"`
	QualityScore      *float64       `json:"qualityScore,omitempty"`
	AlternativeLabels []string       `json:"alternativeLabels,omitempty"`
	ConfidenceScore   float64        `json:"confidenceScore"`
	ConfidenceBand    ConfidenceBand `json:"confidenceBand"`
	Reasoning         string         `json:"reasoning,omitempty"`
	Disclaimer        string         `json:"disclaimer"`
	IdentifiedAt      time.Time      `json:"identifiedAt"`
}

// NewIdentificationResult строит результат из ответа сервиса.
// Оба конвейера (разовый снимок и живое сканирование) используют только эту функцию.
func NewIdentificationResult(id Identification, at time.Time) *IdentificationResult {
	score := normalizeScore(id.ConfidenceScore)

	var alternatives []string
	for _, label := range id.AlternativeLabels {
		if label = strings.TrimSpace(label); label != "" {
			alternatives = append(alternatives, label)
		}
	}

	disclaimer := strings.TrimSpace(id.Disclaimer)
	if disclaimer == "" {
		disclaimer = DefaultDisclaimer
	}

	var year *int
	if id.Year != nil && *id.Year > 0 {
		y := *id.Year
		year = &y
	}

	var quality *float64
	if id.QualityScore != nil {
		q := *id.QualityScore
		quality = &q
	}

	return &IdentificationResult{
		SubjectType:       strings.TrimSpace(id.SubjectType),
		PrimaryLabel:      strings.TrimSpace(id.PrimaryLabel),
		SecondaryLabel:    strings.TrimSpace(id.SecondaryLabel),
		Year:              year,
		QualityScore:      quality,
		AlternativeLabels: alternatives,
		ConfidenceScore:   score,
		ConfidenceBand:    BandFor(score),
		Reasoning:         strings.TrimSpace(id.Reasoning),
		Disclaimer:        disclaimer,
		IdentifiedAt:      at,
	}
}

// normalizeScore приводит уверенность к диапазону [0, 1]; значения больше 1 считаются процентами.
func normalizeScore(score float64) float64 {
	if score > 1 {
		score /= 100
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// ScanRecord запись о попытке, которую сохраняет хранилище
type ScanRecord struct {
	AttemptID AttemptID
	Source    Source
	Result    IdentificationResult
	SavedAt   time.Time
}
