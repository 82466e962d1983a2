package port

import (
	"context"

	"vision-scan/internal/domain/entity"
)

// MetricsSink получатель завершённых метрик попыток
type MetricsSink interface {
	Emit(ctx context.Context, metrics entity.ScanMetrics) error
}
