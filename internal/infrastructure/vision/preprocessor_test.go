package vision

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"vision-scan/internal/domain/entity"
)

func noiseJPEG(t *testing.T, w, h, quality int) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(42))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	rng.Read(img.Pix)
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}))
	return buf.Bytes()
}

func gradientPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 90, A: uint8(x + y)})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPreprocessor_LargeGalleryJPEGFitsBudget(t *testing.T) {
	data := noiseJPEG(t, 3000, 2000, 100)
	require.Greater(t, len(data), 8<<20)

	p := NewPreprocessor(1024, 80, 500)
	out, err := p.Process(context.Background(), entity.RawFrame{Data: data, Source: entity.SourceGallery})
	require.NoError(t, err)

	require.LessOrEqual(t, out.SizeKB(), 500)
	require.LessOrEqual(t, maxInt(out.Width, out.Height), 1024)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(out.Data))
	require.NoError(t, err)
	require.Equal(t, "jpeg", format)
	require.Equal(t, out.Width, cfg.Width)
	require.Equal(t, out.Height, cfg.Height)
}

func TestPreprocessor_ResizesLongestEdge(t *testing.T) {
	p := NewPreprocessor(100, 80, 500)

	out, err := p.Process(context.Background(), entity.RawFrame{Data: gradientPNG(t, 300, 150)})
	require.NoError(t, err)
	require.Equal(t, 100, out.Width)
	require.Equal(t, 50, out.Height)

	out, err = p.Process(context.Background(), entity.RawFrame{Data: gradientPNG(t, 90, 400)})
	require.NoError(t, err)
	require.Equal(t, 22, out.Width)
	require.Equal(t, 100, out.Height)
}

func TestPreprocessor_SmallImageKeepsSize(t *testing.T) {
	p := NewPreprocessor(1024, 80, 500)
	out, err := p.Process(context.Background(), entity.RawFrame{Data: gradientPNG(t, 40, 30)})
	require.NoError(t, err)
	require.Equal(t, 40, out.Width)
	require.Equal(t, 30, out.Height)
}

func TestPreprocessor_Deterministic(t *testing.T) {
	data := noiseJPEG(t, 800, 600, 90)
	p := NewPreprocessor(256, 80, 40)

	a, err := p.Process(context.Background(), entity.RawFrame{Data: data})
	require.NoError(t, err)
	b, err := p.Process(context.Background(), entity.RawFrame{Data: data})
	require.NoError(t, err)

	require.Equal(t, a.Width, b.Width)
	require.Equal(t, a.Height, b.Height)
	require.Equal(t, a.Data, b.Data)
	require.LessOrEqual(t, a.SizeKB(), 40)
}

func TestPreprocessor_TightBudgetShrinksImage(t *testing.T) {
	data := noiseJPEG(t, 1200, 900, 95)
	p := NewPreprocessor(1024, 80, 20)

	out, err := p.Process(context.Background(), entity.RawFrame{Data: data})
	require.NoError(t, err)
	require.LessOrEqual(t, out.SizeKB(), 20)
	require.Less(t, out.Width, 1024)
}

func TestPreprocessor_StripsMetadata(t *testing.T) {
	src := noiseJPEG(t, 64, 64, 90)

	// APP1 Exif сразу после SOI
	payload := append([]byte("Exif\x00\x00"), []byte("GPS 55.7558N 37.6173E device=phone")...)
	segment := []byte{0xFF, 0xE1, 0, 0}
	binary.BigEndian.PutUint16(segment[2:], uint16(len(payload)+2))
	withExif := append([]byte{}, src[:2]...)
	withExif = append(withExif, segment...)
	withExif = append(withExif, payload...)
	withExif = append(withExif, src[2:]...)

	p := NewPreprocessor(1024, 80, 500)
	out, err := p.Process(context.Background(), entity.RawFrame{Data: withExif})
	require.NoError(t, err)
	require.False(t, bytes.Contains(out.Data, []byte("Exif")))
	require.False(t, bytes.Contains(out.Data, []byte("GPS")))
}

func TestPreprocessor_InvalidImage(t *testing.T) {
	p := NewPreprocessor(1024, 80, 500)

	_, err := p.Process(context.Background(), entity.RawFrame{Data: []byte("definitely not an image")})
	require.Equal(t, entity.ErrInvalidImage, entity.KindOf(err))

	_, err = p.Process(context.Background(), entity.RawFrame{})
	require.Equal(t, entity.ErrInvalidImage, entity.KindOf(err))

	// обрезанный JPEG
	data := noiseJPEG(t, 200, 200, 90)
	_, err = p.Process(context.Background(), entity.RawFrame{Data: data[:len(data)/3]})
	require.Equal(t, entity.ErrInvalidImage, entity.KindOf(err))
}

func TestPreprocessor_RejectsHugeDimensions(t *testing.T) {
	tests := []struct {
		name          string
		width, height uint32
	}{
		{"square", 200000, 200000},
		// произведение в int32 переполняется до 65536
		{"wraps 32-bit product", 65536, 65537},
	}

	p := NewPreprocessor(1024, 80, 500)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := gradientPNG(t, 4, 4)

			// IHDR: 8 байт сигнатуры, 4 длины, 4 типа, затем ширина и высота
			binary.BigEndian.PutUint32(data[16:], tt.width)
			binary.BigEndian.PutUint32(data[20:], tt.height)
			binary.BigEndian.PutUint32(data[29:], crc32.ChecksumIEEE(data[12:29]))

			_, err := p.Process(context.Background(), entity.RawFrame{Data: data})
			require.Equal(t, entity.ErrInvalidImage, entity.KindOf(err))
		})
	}
}

func TestPreprocessor_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPreprocessor(1024, 80, 500)
	_, err := p.Process(ctx, entity.RawFrame{Data: gradientPNG(t, 10, 10)})
	require.ErrorIs(t, err, context.Canceled)
}

func TestPreprocessor_Validate(t *testing.T) {
	p := NewPreprocessor(100, 80, 10)

	ok := entity.PreprocessedImage{Data: noiseJPEG(t, 20, 20, 80)}
	require.NoError(t, p.Validate(ok))

	wide := entity.PreprocessedImage{Data: gradientPNG(t, 150, 10)}
	require.Equal(t, entity.ErrImageTooLarge, entity.KindOf(p.Validate(wide)))

	heavy := entity.PreprocessedImage{Data: make([]byte, 11*1024)}
	require.Equal(t, entity.ErrImageTooLarge, entity.KindOf(p.Validate(heavy)))

	require.Equal(t, entity.ErrInvalidImage, entity.KindOf(p.Validate(entity.PreprocessedImage{Data: []byte("x")})))
}
