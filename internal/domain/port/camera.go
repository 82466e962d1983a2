package port

import (
	"context"

	"vision-scan/internal/domain/entity"
)

// Facing предпочтительное направление камеры
type Facing string

const (
	FacingEnvironment Facing = "environment" // Основная камера
	FacingUser        Facing = "user"        // Фронтальная камера
)

// Resolution желаемое разрешение потока
type Resolution struct {
	Width  int
	Height int
}

// Camera источник видеопотока. Поток эксклюзивен: пока он не закрыт,
// повторный Acquire возвращает ошибку вида CameraUnavailable.
type Camera interface {
	// Acquire захватывает камеру и открывает поток
	Acquire(ctx context.Context, facing Facing, hint Resolution) (Stream, error)
}

// Stream открытый видеопоток
type Stream interface {
	// Frame возвращает текущий кадр
	Frame(ctx context.Context) (entity.RawFrame, error)

	// Close освобождает камеру
	Close() error
}
