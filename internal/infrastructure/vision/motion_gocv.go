//go:build gocv
// +build gocv

package vision

import (
	"errors"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"vision-scan/internal/domain/entity"
	"vision-scan/internal/domain/port"
)

// GoCVMotionDetector ищет движение разницей соседних кадров средствами OpenCV.
type GoCVMotionDetector struct {
	MaxSide        int
	PixelThreshold float32
	MinAreaRatio   float64

	mu      sync.Mutex
	prev    gocv.Mat
	hasPrev bool
}

// NewGoCVMotionDetector создаёт детектор движения.
func NewGoCVMotionDetector() (*GoCVMotionDetector, error) {
	return &GoCVMotionDetector{
		MaxSide:        320,
		PixelThreshold: 25,
		MinAreaRatio:   0.001,
	}, nil
}

// Measure сравнивает кадр с предыдущим и возвращает долю изменившихся пикселей.
func (d *GoCVMotionDetector) Measure(frame entity.RawFrame) (entity.MotionSample, error) {
	mat, err := decodeToMat(frame.Data)
	if err != nil {
		return entity.MotionSample{}, err
	}
	defer mat.Close()

	// Приводим кадр к небольшому размеру, чтобы пороги не зависели от камеры.
	if mat.Cols() > d.MaxSide || mat.Rows() > d.MaxSide {
		scale := float64(d.MaxSide) / float64(maxInt(mat.Cols(), mat.Rows()))
		resized := gocv.NewMat()
		gocv.Resize(mat, &resized, image.Pt(int(float64(mat.Cols())*scale), int(float64(mat.Rows())*scale)), 0, 0, gocv.InterpolationArea)
		mat.Close()
		mat = resized
	}

	gray := gocv.NewMat()
	gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray)
	gocv.GaussianBlur(gray, &gray, image.Pt(5, 5), 0, 0, gocv.BorderDefault)

	d.mu.Lock()
	defer d.mu.Unlock()

	sample := entity.MotionSample{Width: gray.Cols(), Height: gray.Rows()}
	if !d.hasPrev || d.prev.Cols() != gray.Cols() || d.prev.Rows() != gray.Rows() {
		if d.hasPrev {
			d.prev.Close()
		}
		d.prev = gray
		d.hasPrev = true
		return sample, nil
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(d.prev, gray, &diff)

	// Усиливаем отличия порогом.
	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, d.PixelThreshold, 255, gocv.ThresholdBinary)
	sample.Score = ratioOfMask(thresh)

	contours := gocv.FindContours(thresh, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	minArea := int(float64(gray.Cols()*gray.Rows()) * d.MinAreaRatio)
	for i := 0; i < contours.Size(); i++ {
		rect := gocv.BoundingRect(contours.At(i))
		area := rect.Dx() * rect.Dy()
		if area < minArea {
			continue
		}
		sample.Areas = append(sample.Areas, entity.MotionArea{
			X:      rect.Min.X,
			Y:      rect.Min.Y,
			Width:  rect.Dx(),
			Height: rect.Dy(),
			Area:   area,
		})
	}

	d.prev.Close()
	d.prev = gray
	return sample, nil
}

// Reset забывает предыдущий кадр.
func (d *GoCVMotionDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.hasPrev {
		d.prev.Close()
		d.hasPrev = false
	}
}

// decodeToMat превращает байты изображения в gocv.Mat.
func decodeToMat(imageData []byte) (gocv.Mat, error) {
	mat, err := gocv.IMDecode(imageData, gocv.IMReadColor)
	if err == nil && !mat.Empty() {
		return mat, nil
	}
	if !mat.Empty() {
		mat.Close()
	}
	return gocv.NewMat(), errors.New("failed to decode image")
}

func ratioOfMask(mask gocv.Mat) float64 {
	total := mask.Cols() * mask.Rows()
	if total <= 0 {
		return 0
	}
	return float64(gocv.CountNonZero(mask)) / float64(total)
}

var _ port.MotionDetector = (*GoCVMotionDetector)(nil)
