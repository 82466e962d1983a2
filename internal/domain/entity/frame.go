package entity

import "github.com/google/uuid"

// Source источник изображения
type Source string

const (
	SourceCamera  Source = "camera"  // Снимок с камеры
	SourceGallery Source = "gallery" // Файл, выбранный пользователем
	SourceLive    Source = "live"    // Зафиксированный кандидат живого сканирования
)

// RawFrame исходный кадр или файл до предобработки
type RawFrame struct {
	Data   []byte // закодированное изображение
	MIME   string // заявленный тип, может быть пустым
	Source Source
}

// PreprocessedImage нормализованное изображение, готовое к отправке
type PreprocessedImage struct {
	Data   []byte
	Width  int
	Height int
}

// SizeKB возвращает размер закодированного изображения в килобайтах.
func (p PreprocessedImage) SizeKB() int {
	return (len(p.Data) + 1023) / 1024
}

// AttemptID идентификатор одной попытки сканирования
type AttemptID string

// NewAttemptID создаёт новый уникальный идентификатор попытки.
func NewAttemptID() AttemptID {
	return AttemptID(uuid.NewString())
}
