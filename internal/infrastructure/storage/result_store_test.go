package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vision-scan/internal/domain/entity"
	"vision-scan/internal/domain/port"
)

func record(id string, label string, savedAt time.Time) entity.ScanRecord {
	year := 1921
	return entity.ScanRecord{
		AttemptID: entity.AttemptID(id),
		Source:    entity.SourceCamera,
		Result: entity.IdentificationResult{
			SubjectType:     "coin",
			PrimaryLabel:    label,
			SecondaryLabel:  "United States",
			Year:            &year,
			ConfidenceScore: 0.9,
			ConfidenceBand:  entity.ConfidenceHigh,
			Disclaimer:      entity.DefaultDisclaimer,
			IdentifiedAt:    savedAt.Add(-time.Second),
		},
		SavedAt: savedAt,
	}
}

func openStores(t *testing.T) map[string]port.ResultStore {
	t.Helper()

	sqlStore, err := OpenSQLResultStore(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "scans.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlStore.Close() })

	return map[string]port.ResultStore{
		"memory": NewMemoryResultStore(),
		"sqlite": sqlStore,
	}
}

func TestResultStore_SaveListDelete(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Save(ctx, record("a", "Morgan Dollar", base)))
			require.NoError(t, store.Save(ctx, record("b", "Peace Dollar", base.Add(time.Minute))))
			require.NoError(t, store.Save(ctx, record("c", "Buffalo Nickel", base.Add(2*time.Minute))))

			list, err := store.List(ctx, 0)
			require.NoError(t, err)
			require.Len(t, list, 3)
			require.Equal(t, entity.AttemptID("c"), list[0].AttemptID)
			require.Equal(t, entity.AttemptID("a"), list[2].AttemptID)

			got := list[2]
			require.Equal(t, "Morgan Dollar", got.Result.PrimaryLabel)
			require.Equal(t, 1921, *got.Result.Year)
			require.Equal(t, entity.ConfidenceHigh, got.Result.ConfidenceBand)
			require.True(t, got.SavedAt.Equal(base))
			require.True(t, got.Result.IdentifiedAt.Equal(base.Add(-time.Second)))

			list, err = store.List(ctx, 2)
			require.NoError(t, err)
			require.Len(t, list, 2)

			require.NoError(t, store.Delete(ctx, "b"))
			require.ErrorIs(t, store.Delete(ctx, "b"), port.ErrRecordNotFound)

			list, err = store.List(ctx, 10)
			require.NoError(t, err)
			require.Len(t, list, 2)
		})
	}
}

func TestResultStore_SaveOverwrites(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Save(ctx, record("a", "Morgan Dollar", base)))
			require.NoError(t, store.Save(ctx, record("a", "Peace Dollar", base)))

			list, err := store.List(ctx, 0)
			require.NoError(t, err)
			require.Len(t, list, 1)
			require.Equal(t, "Peace Dollar", list[0].Result.PrimaryLabel)
		})
	}
}

func TestSQLResultStore_ReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scans.db")
	ctx := context.Background()

	store, err := OpenSQLResultStore(ctx, DriverSQLite, path)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, record("a", "Morgan Dollar", time.Now())))
	require.NoError(t, store.Close())

	store, err = OpenSQLResultStore(ctx, DriverSQLite, path)
	require.NoError(t, err)
	defer store.Close()

	list, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestOpenSQLResultStore_UnknownDriver(t *testing.T) {
	_, err := OpenSQLResultStore(context.Background(), "mysql", "")
	require.Error(t, err)
}

func TestSQLResultStore_Rebind(t *testing.T) {
	pg := &SQLResultStore{driver: DriverPostgres}
	require.Equal(t, "SELECT $1, $2", pg.rebind("SELECT ?, ?"))

	lite := &SQLResultStore{driver: DriverSQLite}
	require.Equal(t, "SELECT ?", lite.rebind("SELECT ?"))
}
