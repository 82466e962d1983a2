package vision

import (
	"bytes"
	"fmt"
	"image"
	"sync"

	"golang.org/x/image/draw"

	"vision-scan/internal/domain/entity"
	"vision-scan/internal/domain/port"
)

// FrameDiffDetector оценивает движение по разнице уменьшенных серых кадров.
// Работает без OpenCV.
type FrameDiffDetector struct {
	Width          int   // ширина миниатюры
	Height         int   // высота миниатюры
	PixelThreshold uint8 // разница яркости, с которой пиксель считается изменившимся

	mu   sync.Mutex
	prev *image.Gray
}

// NewFrameDiffDetector создаёт детектор с миниатюрой 64x48.
func NewFrameDiffDetector() *FrameDiffDetector {
	return &FrameDiffDetector{
		Width:          64,
		Height:         48,
		PixelThreshold: 25,
	}
}

// Measure сравнивает кадр с предыдущим. Для первого кадра движение равно нулю.
func (d *FrameDiffDetector) Measure(frame entity.RawFrame) (entity.MotionSample, error) {
	src, _, err := image.Decode(bytes.NewReader(frame.Data))
	if err != nil {
		return entity.MotionSample{}, fmt.Errorf("decode frame: %w", err)
	}

	thumb := image.NewGray(image.Rect(0, 0, d.Width, d.Height))
	draw.ApproxBiLinear.Scale(thumb, thumb.Bounds(), src, src.Bounds(), draw.Src, nil)

	d.mu.Lock()
	prev := d.prev
	d.prev = thumb
	d.mu.Unlock()

	sample := entity.MotionSample{Width: d.Width, Height: d.Height}
	if prev == nil {
		return sample, nil
	}

	changed := 0
	for i := range thumb.Pix {
		a, b := thumb.Pix[i], prev.Pix[i]
		diff := a - b
		if b > a {
			diff = b - a
		}
		if diff > d.PixelThreshold {
			changed++
		}
	}
	sample.Score = float64(changed) / float64(len(thumb.Pix))
	return sample, nil
}

// Reset забывает предыдущий кадр.
func (d *FrameDiffDetector) Reset() {
	d.mu.Lock()
	d.prev = nil
	d.mu.Unlock()
}

// Проверка реализации интерфейса
var _ port.MotionDetector = (*FrameDiffDetector)(nil)
