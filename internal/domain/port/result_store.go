package port

import (
	"context"
	"errors"

	"vision-scan/internal/domain/entity"
)

// ErrRecordNotFound запись отсутствует в хранилище
var ErrRecordNotFound = errors.New("scan record not found")

// ResultStore хранилище результатов сканирования
type ResultStore interface {
	// Save сохраняет результат попытки
	Save(ctx context.Context, record entity.ScanRecord) error

	// List возвращает последние записи, новые первыми
	List(ctx context.Context, limit int) ([]entity.ScanRecord, error)

	// Delete удаляет запись по идентификатору попытки
	Delete(ctx context.Context, id entity.AttemptID) error
}
