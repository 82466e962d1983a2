package storage

import (
	"context"
	"sort"
	"sync"

	"vision-scan/internal/domain/entity"
	"vision-scan/internal/domain/port"
)

// MemoryResultStore in-memory хранилище результатов
type MemoryResultStore struct {
	mu      sync.RWMutex
	records map[entity.AttemptID]entity.ScanRecord
}

// NewMemoryResultStore создаёт новое in-memory хранилище
func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{
		records: make(map[entity.AttemptID]entity.ScanRecord),
	}
}

// Save сохраняет запись, повторное сохранение перезаписывает её
func (r *MemoryResultStore) Save(ctx context.Context, record entity.ScanRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	r.records[record.AttemptID] = record
	r.mu.Unlock()

	return nil
}

// List возвращает записи, новые первыми
func (r *MemoryResultStore) List(ctx context.Context, limit int) ([]entity.ScanRecord, error) {
	r.mu.RLock()
	records := make([]entity.ScanRecord, 0, len(r.records))
	for _, rec := range r.records {
		records = append(records, rec)
	}
	r.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		if records[i].SavedAt.Equal(records[j].SavedAt) {
			return records[i].AttemptID > records[j].AttemptID
		}
		return records[i].SavedAt.After(records[j].SavedAt)
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Delete удаляет запись
func (r *MemoryResultStore) Delete(ctx context.Context, id entity.AttemptID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[id]; !exists {
		return port.ErrRecordNotFound
	}
	delete(r.records, id)

	return nil
}

// Проверка реализации интерфейса
var _ port.ResultStore = (*MemoryResultStore)(nil)
