//go:build !gocv
// +build !gocv

package vision

import (
	"errors"

	"vision-scan/internal/domain/entity"
)

// GoCVMotionDetector заглушка для сборки без OpenCV.
type GoCVMotionDetector struct{}

// NewGoCVMotionDetector возвращает ошибку, если сборка без тега gocv.
func NewGoCVMotionDetector() (*GoCVMotionDetector, error) {
	return nil, errors.New("gocv build tag is not enabled")
}

// Measure возвращает ошибку, если сборка без тега gocv.
func (d *GoCVMotionDetector) Measure(frame entity.RawFrame) (entity.MotionSample, error) {
	_ = frame
	return entity.MotionSample{}, errors.New("gocv build tag is not enabled")
}

// Reset ничего не делает.
func (d *GoCVMotionDetector) Reset() {}
