package vision

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"vision-scan/internal/domain/entity"
	"vision-scan/internal/domain/port"
)

// Preprocessor приводит изображение к размеру и весу, пригодным для отправки.
// Перекодирование из пикселей отбрасывает EXIF, XMP и прочие метаданные.
type Preprocessor struct {
	MaxEdge    int // предел длинной стороны в пикселях
	Quality    int // качество JPEG при первом кодировании
	MinQuality int // ниже этого качество не опускается
	BudgetKB   int // предел размера результата
	MaxPixels  int // предел числа пикселей исходника
}

// NewPreprocessor создаёт препроцессор с заданными лимитами.
func NewPreprocessor(maxEdge, quality, budgetKB int) *Preprocessor {
	return &Preprocessor{
		MaxEdge:    maxEdge,
		Quality:    quality,
		MinQuality: 40,
		BudgetKB:   budgetKB,
		MaxPixels:  120_000_000,
	}
}

// Process декодирует кадр, уменьшает длинную сторону до MaxEdge и кодирует в JPEG.
// Если результат не влезает в бюджет, сначала снижается качество, затем размер.
func (p *Preprocessor) Process(ctx context.Context, frame entity.RawFrame) (*entity.PreprocessedImage, error) {
	if len(frame.Data) == 0 {
		return nil, entity.NewScanError(entity.ErrInvalidImage, "empty image", nil)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(frame.Data))
	if err != nil {
		return nil, entity.NewScanError(entity.ErrInvalidImage, "failed to decode image header", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > int64(p.MaxPixels) {
		return nil, entity.NewScanError(entity.ErrInvalidImage, fmt.Sprintf("unsupported image dimensions %dx%d", cfg.Width, cfg.Height), nil)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, _, err := image.Decode(bytes.NewReader(frame.Data))
	if err != nil {
		return nil, entity.NewScanError(entity.ErrInvalidImage, "failed to decode image", err)
	}

	budget := p.BudgetKB * 1024
	w, h := fitLongestEdge(src.Bounds().Dx(), src.Bounds().Dy(), p.MaxEdge)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		scaled := flatten(src, w, h)
		for q := p.Quality; ; q -= 10 {
			if q < p.MinQuality {
				q = p.MinQuality
			}
			data, err := encodeJPEG(scaled, q)
			if err != nil {
				return nil, entity.NewScanError(entity.ErrInvalidImage, "failed to encode image", err)
			}
			if len(data) <= budget {
				return &entity.PreprocessedImage{Data: data, Width: w, Height: h}, nil
			}
			if q == p.MinQuality {
				break
			}
		}

		// Уменьшаем картинку, пока не влезет в бюджет.
		if w <= 16 && h <= 16 {
			return nil, entity.NewScanError(entity.ErrImageTooLarge, "image does not fit the upload budget", nil)
		}
		w, h = maxInt(1, w*3/4), maxInt(1, h*3/4)
	}
}

// Validate проверяет изображение, которое клиент уже сжал сам.
func (p *Preprocessor) Validate(img entity.PreprocessedImage) error {
	if len(img.Data) == 0 {
		return entity.NewScanError(entity.ErrInvalidImage, "empty image", nil)
	}
	if len(img.Data) > p.BudgetKB*1024 {
		return entity.NewScanError(entity.ErrImageTooLarge, fmt.Sprintf("image is %d KB, budget is %d KB", img.SizeKB(), p.BudgetKB), nil)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil {
		return entity.NewScanError(entity.ErrInvalidImage, "failed to decode image header", err)
	}
	if maxInt(cfg.Width, cfg.Height) > p.MaxEdge {
		return entity.NewScanError(entity.ErrImageTooLarge, fmt.Sprintf("image is %dx%d, edge limit is %d", cfg.Width, cfg.Height, p.MaxEdge), nil)
	}
	return nil
}

// fitLongestEdge возвращает размеры, при которых длинная сторона не больше maxEdge.
func fitLongestEdge(w, h, maxEdge int) (int, int) {
	longest := maxInt(w, h)
	if maxEdge <= 0 || longest <= maxEdge {
		return w, h
	}
	scale := float64(maxEdge) / float64(longest)
	nw := maxInt(1, int(float64(w)*scale))
	nh := maxInt(1, int(float64(h)*scale))
	if w >= h {
		nw = maxEdge
	} else {
		nh = maxEdge
	}
	return nw, nh
}

// flatten масштабирует изображение на белом фоне (JPEG не хранит прозрачность).
func flatten(src image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	if src.Bounds().Dx() == w && src.Bounds().Dy() == h {
		draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Over)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Проверка реализации интерфейса
var _ port.Preprocessor = (*Preprocessor)(nil)
