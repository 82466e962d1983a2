package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vision-scan/internal/domain/entity"
)

func TestMetricsRecorder_OrderedMarks(t *testing.T) {
	rec := NewMetricsRecorder()
	rec.Start("a1", entity.SourceCamera)

	for _, m := range entity.Milestones()[1:] {
		require.NoError(t, rec.Mark(m))
	}

	snap := rec.Snapshot()
	require.Equal(t, entity.AttemptID("a1"), snap.AttemptID)
	require.Len(t, snap.Marks, 5)

	prev := snap.Marks[entity.MilestoneStarted]
	for _, m := range entity.Milestones() {
		require.False(t, snap.Marks[m].Before(prev), m.String())
		prev = snap.Marks[m]
	}
}

func TestMetricsRecorder_OutOfOrderIsRejected(t *testing.T) {
	rec := NewMetricsRecorder()
	rec.Start("a1", entity.SourceGallery)

	require.NoError(t, rec.Mark(entity.MilestonePreprocessed))
	require.ErrorIs(t, rec.Mark(entity.MilestoneUIReady), ErrMarkOutOfOrder)
	require.ErrorIs(t, rec.Mark(entity.MilestonePreprocessed), ErrMarkRepeated)
	require.ErrorIs(t, rec.Mark(entity.MilestoneStarted), ErrMarkRepeated)

	_, ok := rec.Snapshot().Marks[entity.MilestoneUIReady]
	require.False(t, ok)
}

func TestMetricsRecorder_NotStarted(t *testing.T) {
	rec := NewMetricsRecorder()
	require.ErrorIs(t, rec.Mark(entity.MilestoneUIReady), ErrMetricsNotStarted)
}

func TestMetricsRecorder_ResetClearsMarks(t *testing.T) {
	rec := NewMetricsRecorder()
	rec.Start("a1", entity.SourceCamera)
	require.NoError(t, rec.Mark(entity.MilestoneUIReady))

	rec.Reset()
	snap := rec.Snapshot()
	require.Empty(t, snap.Marks)
	require.Empty(t, snap.AttemptID)

	rec.Start("a2", entity.SourceCamera)
	require.NoError(t, rec.Mark(entity.MilestoneUIReady))
}

func TestMetricsRecorder_ClockNeverGoesBack(t *testing.T) {
	base := time.Unix(100, 0)
	times := []time.Time{base, base.Add(-time.Second)}
	rec := NewMetricsRecorder()
	rec.now = func() time.Time {
		ts := times[0]
		times = times[1:]
		return ts
	}

	rec.Start("a1", entity.SourceCamera)
	require.NoError(t, rec.Mark(entity.MilestoneUIReady))
	require.Equal(t, base, rec.Snapshot().Marks[entity.MilestoneUIReady])
}
