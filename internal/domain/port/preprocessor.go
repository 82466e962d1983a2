package port

import (
	"context"

	"vision-scan/internal/domain/entity"
)

// Preprocessor нормализует изображение перед отправкой в сервис
type Preprocessor interface {
	// Process декодирует, уменьшает и перекодирует кадр
	Process(ctx context.Context, frame entity.RawFrame) (*entity.PreprocessedImage, error)

	// Validate проверяет уже сжатое изображение на соответствие лимитам
	Validate(img entity.PreprocessedImage) error
}
