package vision

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"vision-scan/internal/domain/entity"
	"vision-scan/internal/domain/port"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".webp": true, ".bmp": true, ".tif": true, ".tiff": true,
}

// DirCamera воспроизводит снимки из каталога как видеопоток.
// Нужна для запуска без устройства камеры.
type DirCamera struct {
	Dir            string
	FramesPerImage int // сколько раз подряд отдаётся каждый файл

	mu   sync.Mutex
	busy bool
}

// NewDirCamera создаёт камеру, читающую файлы из каталога.
func NewDirCamera(dir string, framesPerImage int) *DirCamera {
	if framesPerImage <= 0 {
		framesPerImage = 1
	}
	return &DirCamera{Dir: dir, FramesPerImage: framesPerImage}
}

// Acquire проверяет каталог и открывает поток.
func (c *DirCamera) Acquire(ctx context.Context, facing port.Facing, hint port.Resolution) (port.Stream, error) {
	_ = facing
	_ = hint
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.busy {
		return nil, entity.NewScanError(entity.ErrCameraUnavailable, "camera is already in use", nil)
	}

	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, entity.NewScanError(entity.ErrCameraPermissionDenied, c.Dir, err)
		}
		return nil, entity.NewScanError(entity.ErrCameraUnavailable, c.Dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(c.Dir, e.Name()))
	}
	if len(files) == 0 {
		return nil, entity.NewScanError(entity.ErrCameraUnavailable, fmt.Sprintf("no images in %s", c.Dir), nil)
	}
	sort.Strings(files)

	c.busy = true
	return &dirStream{camera: c, files: files, perImage: c.FramesPerImage}, nil
}

func (c *DirCamera) release() {
	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
}

type dirStream struct {
	camera   *DirCamera
	files    []string
	perImage int

	mu     sync.Mutex
	served int
	closed bool
}

// Frame возвращает очередной файл, по кругу.
func (s *dirStream) Frame(ctx context.Context) (entity.RawFrame, error) {
	if err := ctx.Err(); err != nil {
		return entity.RawFrame{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return entity.RawFrame{}, entity.NewScanError(entity.ErrCameraUnavailable, "stream is closed", nil)
	}
	path := s.files[(s.served/s.perImage)%len(s.files)]
	s.served++
	s.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return entity.RawFrame{}, entity.NewScanError(entity.ErrCameraUnavailable, "read frame", err)
	}

	return entity.RawFrame{
		Data:   data,
		MIME:   mime.TypeByExtension(filepath.Ext(path)),
		Source: entity.SourceCamera,
	}, nil
}

// Close освобождает камеру.
func (s *dirStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.camera.release()
	return nil
}

// Проверка реализации интерфейса
var _ port.Camera = (*DirCamera)(nil)
