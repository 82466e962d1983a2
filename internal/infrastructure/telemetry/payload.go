package telemetry

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"vision-scan/internal/domain/entity"
)

// metricsPayload сообщение с метриками одной попытки
type metricsPayload struct {
	AttemptID   string           `json:"attemptId"`
	Source      string           `json:"source"`
	StartedAt   int64            `json:"startedAt,omitempty"`
	DurationsMS map[string]int64 `json:"durationsMs"`
}

func newPayload(m entity.ScanMetrics) metricsPayload {
	p := metricsPayload{
		AttemptID:   string(m.AttemptID),
		Source:      string(m.Source),
		DurationsMS: m.Durations(),
	}
	if start, ok := m.Marks[entity.MilestoneStarted]; ok {
		p.StartedAt = start.UnixMilli()
	}
	return p
}

func (p metricsPayload) JSON() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metrics: %w", err)
	}
	return data, nil
}

// String формат для лога: этапы в порядке следования
func (p metricsPayload) String() string {
	names := make([]string, 0, len(p.DurationsMS))
	for name := range p.DurationsMS {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return p.DurationsMS[names[i]] < p.DurationsMS[names[j]] })

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%dms", name, p.DurationsMS[name]))
	}
	return strings.Join(parts, " ")
}
