package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"vision-scan/internal/domain/entity"
)

func TestScanPipeline_SkipsPreprocessingForCompressedInput(t *testing.T) {
	pre := &fakePreprocessor{}
	ident := &fakeIdentifier{}
	p := NewScanPipeline(pre, ident)

	rec := NewMetricsRecorder()
	rec.Start("a1", entity.SourceGallery)
	require.NoError(t, rec.Mark(entity.MilestoneUIReady))

	img := entity.PreprocessedImage{Data: []byte("jpeg"), Width: 4, Height: 3}
	res, err := p.Run(context.Background(), ScanInput{Preprocessed: &img}, rec)
	require.NoError(t, err)
	require.Equal(t, "Morgan Dollar", res.PrimaryLabel)
	require.Equal(t, int32(0), pre.calls.Load())
	require.Equal(t, int32(1), ident.calls.Load())

	marks := rec.Snapshot().Marks
	require.Contains(t, marks, entity.MilestonePreprocessed)
	require.Contains(t, marks, entity.MilestoneServiceResponded)
}

func TestScanPipeline_PreprocessFailureSkipsService(t *testing.T) {
	pre := &fakePreprocessor{err: entity.NewScanError(entity.ErrInvalidImage, "", nil)}
	ident := &fakeIdentifier{}
	p := NewScanPipeline(pre, ident)

	_, err := p.Run(context.Background(), ScanInput{Frame: entity.RawFrame{Data: []byte("x")}}, nil)
	require.Equal(t, entity.ErrInvalidImage, entity.KindOf(err))
	require.Equal(t, int32(0), ident.calls.Load())
}

func TestScanPipeline_NoRetryOnFailure(t *testing.T) {
	ident := &fakeIdentifier{fn: func(ctx context.Context) (*entity.Identification, error) {
		return nil, entity.NewScanError(entity.ErrServer, "500", nil)
	}}
	p := NewScanPipeline(&fakePreprocessor{}, ident)

	_, err := p.Analyze(context.Background(), entity.RawFrame{Data: []byte("x")})
	require.Equal(t, entity.ErrServer, entity.KindOf(err))
	require.Equal(t, int32(1), ident.calls.Load())
}

func TestScanPipeline_CameraAndLiveResultsHaveSameShape(t *testing.T) {
	p := NewScanPipeline(&fakePreprocessor{}, &fakeIdentifier{})
	frame := entity.RawFrame{Data: []byte("x")}

	single, err := p.Run(context.Background(), ScanInput{Frame: frame}, nil)
	require.NoError(t, err)
	live, err := p.Analyze(context.Background(), frame)
	require.NoError(t, err)

	single.IdentifiedAt = live.IdentifiedAt
	require.Equal(t, single, live)
}
