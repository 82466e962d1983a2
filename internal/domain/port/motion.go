package port

import "vision-scan/internal/domain/entity"

// MotionDetector сравнивает каждый кадр с предыдущим
type MotionDetector interface {
	// Measure оценивает движение относительно предыдущего кадра
	Measure(frame entity.RawFrame) (entity.MotionSample, error)

	// Reset забывает предыдущий кадр
	Reset()
}
