package vision

import (
	"context"

	"vision-scan/internal/domain/entity"
	"vision-scan/internal/domain/port"
)

// NullCamera используется, когда камеры нет совсем. Доступ выдаётся,
// чтобы работала загрузка файлов, но кадров поток не отдаёт.
type NullCamera struct{}

func (NullCamera) Acquire(ctx context.Context, facing port.Facing, hint port.Resolution) (port.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nullStream{}, nil
}

type nullStream struct{}

func (nullStream) Frame(ctx context.Context) (entity.RawFrame, error) {
	return entity.RawFrame{}, entity.NewScanError(entity.ErrCameraUnavailable, "no camera attached", nil)
}

func (nullStream) Close() error { return nil }

var _ port.Camera = NullCamera{}
