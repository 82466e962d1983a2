//go:build !gocv
// +build !gocv

package vision

import (
	"context"

	"vision-scan/internal/domain/entity"
	"vision-scan/internal/domain/port"
)

// GoCVCamera заглушка камеры для сборки без OpenCV.
type GoCVCamera struct {
	BackDeviceID  int
	FrontDeviceID int
	JPEGQuality   int
}

// NewGoCVCamera создаёт камеру-заглушку (без OpenCV).
func NewGoCVCamera(backDeviceID, frontDeviceID int) *GoCVCamera {
	return &GoCVCamera{
		BackDeviceID:  backDeviceID,
		FrontDeviceID: frontDeviceID,
		JPEGQuality:   95,
	}
}

// Acquire возвращает ошибку, если сборка без тега gocv.
func (c *GoCVCamera) Acquire(ctx context.Context, facing port.Facing, hint port.Resolution) (port.Stream, error) {
	_ = ctx
	_ = facing
	_ = hint
	return nil, entity.NewScanError(entity.ErrCameraUnavailable, "gocv build tag is not enabled", nil)
}
