package vision

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"vision-scan/internal/domain/entity"
	"vision-scan/internal/domain/port"
)

func TestDirCamera_ReplaysFilesAndIsExclusive(t *testing.T) {
	dir := t.TempDir()
	a := solidPNG(t, color.Black, image.Rect(0, 0, 1, 1))
	b := solidPNG(t, color.White, image.Rect(0, 0, 1, 1))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), a, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.png"), b, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644))

	cam := NewDirCamera(dir, 2)
	ctx := context.Background()

	stream, err := cam.Acquire(ctx, port.FacingEnvironment, port.Resolution{})
	require.NoError(t, err)

	_, err = cam.Acquire(ctx, port.FacingEnvironment, port.Resolution{})
	require.Equal(t, entity.ErrCameraUnavailable, entity.KindOf(err))

	var got [][]byte
	for i := 0; i < 5; i++ {
		f, err := stream.Frame(ctx)
		require.NoError(t, err)
		require.Equal(t, "image/png", f.MIME)
		got = append(got, f.Data)
	}
	require.Equal(t, [][]byte{a, a, b, b, a}, got)

	require.NoError(t, stream.Close())
	_, err = stream.Frame(ctx)
	require.Error(t, err)

	again, err := cam.Acquire(ctx, port.FacingUser, port.Resolution{})
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestDirCamera_EmptyDirectory(t *testing.T) {
	cam := NewDirCamera(t.TempDir(), 1)
	_, err := cam.Acquire(context.Background(), port.FacingEnvironment, port.Resolution{})
	require.Equal(t, entity.ErrCameraUnavailable, entity.KindOf(err))
}

func TestGoCVCamera_Constructor(t *testing.T) {
	cam := NewGoCVCamera(0, 1)
	require.Equal(t, 1, cam.FrontDeviceID)
	require.Equal(t, 95, cam.JPEGQuality)
}

func TestNullCamera_GrantsStreamWithoutFrames(t *testing.T) {
	stream, err := NullCamera{}.Acquire(context.Background(), port.FacingEnvironment, port.Resolution{})
	require.NoError(t, err)

	_, err = stream.Frame(context.Background())
	require.Equal(t, entity.ErrCameraUnavailable, entity.KindOf(err))
	require.NoError(t, stream.Close())
}
