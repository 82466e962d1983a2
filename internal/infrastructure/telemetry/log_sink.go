package telemetry

import (
	"context"
	"log"

	"vision-scan/internal/domain/entity"
	"vision-scan/internal/domain/port"
)

// LogSink пишет метрики попыток в лог
type LogSink struct {
	logger *log.Logger
}

// NewLogSink создаёт sink. При nil используется стандартный логгер.
func NewLogSink(logger *log.Logger) *LogSink {
	if logger == nil {
		logger = log.Default()
	}
	return &LogSink{logger: logger}
}

// Emit выводит одну строку на попытку
func (s *LogSink) Emit(ctx context.Context, m entity.ScanMetrics) error {
	p := newPayload(m)
	s.logger.Printf("[METRICS] attempt=%s source=%s %s", p.AttemptID, p.Source, p)
	return nil
}

// Проверка реализации интерфейса
var _ port.MetricsSink = (*LogSink)(nil)
