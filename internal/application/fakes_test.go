package app

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"vision-scan/internal/domain/entity"
	"vision-scan/internal/domain/port"
)

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}))
	return buf.Bytes()
}

type fakeStream struct {
	data   []byte
	err    error
	closed atomic.Bool
}

func (s *fakeStream) Frame(ctx context.Context) (entity.RawFrame, error) {
	if s.err != nil {
		return entity.RawFrame{}, s.err
	}
	if s.closed.Load() {
		return entity.RawFrame{}, errors.New("stream is closed")
	}
	return entity.RawFrame{Data: s.data, MIME: "image/jpeg", Source: entity.SourceCamera}, nil
}

func (s *fakeStream) Close() error {
	s.closed.Store(true)
	return nil
}

type fakeCamera struct {
	mu      sync.Mutex
	data    []byte
	err     error
	streams []*fakeStream
}

func (c *fakeCamera) Acquire(ctx context.Context, facing port.Facing, hint port.Resolution) (port.Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return nil, c.err
	}
	for _, s := range c.streams {
		if !s.closed.Load() {
			return nil, entity.NewScanError(entity.ErrCameraUnavailable, "camera is busy", nil)
		}
	}
	s := &fakeStream{data: c.data}
	c.streams = append(c.streams, s)
	return s, nil
}

func (c *fakeCamera) setErr(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

func (c *fakeCamera) acquired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.streams)
}

func (c *fakeCamera) last() *fakeStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streams[len(c.streams)-1]
}

type fakePreprocessor struct {
	onProcess func()
	err       error
	calls     atomic.Int32
}

func (p *fakePreprocessor) Process(ctx context.Context, frame entity.RawFrame) (*entity.PreprocessedImage, error) {
	p.calls.Add(1)
	if p.onProcess != nil {
		p.onProcess()
	}
	if p.err != nil {
		return nil, p.err
	}
	return &entity.PreprocessedImage{Data: frame.Data, Width: 10, Height: 10}, nil
}

func (p *fakePreprocessor) Validate(img entity.PreprocessedImage) error {
	return p.err
}

type fakeIdentifier struct {
	fn    func(ctx context.Context) (*entity.Identification, error)
	calls atomic.Int32
}

func (f *fakeIdentifier) Identify(ctx context.Context, img entity.PreprocessedImage) (*entity.Identification, error) {
	f.calls.Add(1)
	if f.fn != nil {
		return f.fn(ctx)
	}
	return okIdentification(), nil
}

func okIdentification() *entity.Identification {
	return &entity.Identification{
		SubjectType:     "coin",
		PrimaryLabel:    "Morgan Dollar",
		SecondaryLabel:  "United States",
		ConfidenceScore: 0.9,
	}
}

type fakeStore struct {
	mu    sync.Mutex
	err   error
	saved []entity.ScanRecord
	calls atomic.Int32
}

func (s *fakeStore) Save(ctx context.Context, record entity.ScanRecord) error {
	s.calls.Add(1)
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	s.saved = append(s.saved, record)
	s.mu.Unlock()
	return nil
}

func (s *fakeStore) List(ctx context.Context, limit int) ([]entity.ScanRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entity.ScanRecord(nil), s.saved...), nil
}

func (s *fakeStore) Delete(ctx context.Context, id entity.AttemptID) error {
	return nil
}

type fakeSink struct {
	mu      sync.Mutex
	emitted []entity.ScanMetrics
}

func (s *fakeSink) Emit(ctx context.Context, m entity.ScanMetrics) error {
	s.mu.Lock()
	s.emitted = append(s.emitted, m)
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.emitted)
}

// fakeMotion возвращает заданную оценку движения.
type fakeMotion struct {
	score atomic.Value
}

func newFakeMotion(score float64) *fakeMotion {
	m := &fakeMotion{}
	m.set(score)
	return m
}

func (m *fakeMotion) set(score float64) {
	m.score.Store(score)
}

func (m *fakeMotion) Measure(frame entity.RawFrame) (entity.MotionSample, error) {
	return entity.MotionSample{Score: m.score.Load().(float64)}, nil
}

func (m *fakeMotion) Reset() {}
