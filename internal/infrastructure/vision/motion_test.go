package vision

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"

	"vision-scan/internal/domain/entity"
)

func solidPNG(t *testing.T, c color.Color, square image.Rectangle) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 160, 120))
	for y := 0; y < 120; y++ {
		for x := 0; x < 160; x++ {
			if image.Pt(x, y).In(square) {
				img.Set(x, y, color.White)
			} else {
				img.Set(x, y, c)
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestFrameDiffDetector_StillAndMoving(t *testing.T) {
	d := NewFrameDiffDetector()
	black := color.RGBA{A: 255}

	a := entity.RawFrame{Data: solidPNG(t, black, image.Rect(10, 10, 50, 50))}
	b := entity.RawFrame{Data: solidPNG(t, black, image.Rect(90, 60, 150, 110))}

	first, err := d.Measure(a)
	require.NoError(t, err)
	require.Zero(t, first.Score)

	still, err := d.Measure(a)
	require.NoError(t, err)
	require.Zero(t, still.Score)

	moved, err := d.Measure(b)
	require.NoError(t, err)
	require.Greater(t, moved.Score, 0.1)
	require.LessOrEqual(t, moved.Score, 1.0)
}

func TestFrameDiffDetector_Reset(t *testing.T) {
	d := NewFrameDiffDetector()
	black := color.RGBA{A: 255}

	_, err := d.Measure(entity.RawFrame{Data: solidPNG(t, black, image.Rect(0, 0, 10, 10))})
	require.NoError(t, err)

	d.Reset()
	s, err := d.Measure(entity.RawFrame{Data: solidPNG(t, color.White, image.Rect(0, 0, 0, 0))})
	require.NoError(t, err)
	require.Zero(t, s.Score)
}

func TestFrameDiffDetector_BadFrame(t *testing.T) {
	d := NewFrameDiffDetector()
	_, err := d.Measure(entity.RawFrame{Data: []byte("garbage")})
	require.Error(t, err)
}
