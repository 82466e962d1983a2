//go:build gocv
// +build gocv

package vision

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"vision-scan/internal/domain/entity"
	"vision-scan/internal/domain/port"
)

// GoCVCamera камера устройства через OpenCV VideoCapture.
type GoCVCamera struct {
	BackDeviceID  int
	FrontDeviceID int
	JPEGQuality   int

	mu   sync.Mutex
	busy bool
}

// NewGoCVCamera создаёт камеру с номерами устройств для основной и фронтальной камер.
func NewGoCVCamera(backDeviceID, frontDeviceID int) *GoCVCamera {
	return &GoCVCamera{
		BackDeviceID:  backDeviceID,
		FrontDeviceID: frontDeviceID,
		JPEGQuality:   95,
	}
}

// Acquire открывает устройство. Пока поток не закрыт, камера занята.
func (c *GoCVCamera) Acquire(ctx context.Context, facing port.Facing, hint port.Resolution) (port.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.busy {
		return nil, entity.NewScanError(entity.ErrCameraUnavailable, "camera is already in use", nil)
	}

	deviceID := c.BackDeviceID
	if facing == port.FacingUser {
		deviceID = c.FrontDeviceID
	}

	vc, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return nil, entity.NewScanError(entity.ErrCameraUnavailable, fmt.Sprintf("open device %d", deviceID), err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, entity.NewScanError(entity.ErrCameraPermissionDenied, fmt.Sprintf("device %d is not accessible", deviceID), nil)
	}

	if hint.Width > 0 && hint.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(hint.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(hint.Height))
	}

	c.busy = true
	return &gocvStream{camera: c, vc: vc, mat: gocv.NewMat()}, nil
}

func (c *GoCVCamera) release() {
	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
}

type gocvStream struct {
	camera *GoCVCamera

	mu     sync.Mutex
	vc     *gocv.VideoCapture
	mat    gocv.Mat
	closed bool
}

// Frame читает кадр и кодирует его в JPEG.
func (s *gocvStream) Frame(ctx context.Context) (entity.RawFrame, error) {
	if err := ctx.Err(); err != nil {
		return entity.RawFrame{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return entity.RawFrame{}, entity.NewScanError(entity.ErrCameraUnavailable, "stream is closed", nil)
	}
	if ok := s.vc.Read(&s.mat); !ok || s.mat.Empty() {
		return entity.RawFrame{}, entity.NewScanError(entity.ErrCameraUnavailable, "failed to read frame", nil)
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, s.mat, []int{gocv.IMWriteJpegQuality, s.camera.JPEGQuality})
	if err != nil {
		return entity.RawFrame{}, entity.NewScanError(entity.ErrCameraUnavailable, "encode frame", err)
	}
	defer buf.Close()

	return entity.RawFrame{
		Data:   bytes.Clone(buf.GetBytes()),
		MIME:   "image/jpeg",
		Source: entity.SourceCamera,
	}, nil
}

// Close освобождает устройство.
func (s *gocvStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.mat.Close()
	err := s.vc.Close()
	s.camera.release()
	return err
}

var _ port.Camera = (*GoCVCamera)(nil)
