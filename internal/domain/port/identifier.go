package port

import (
	"context"

	"vision-scan/internal/domain/entity"
)

// Identifier клиент внешнего сервиса распознавания
type Identifier interface {
	// Identify отправляет изображение один раз, без повторов
	Identify(ctx context.Context, img entity.PreprocessedImage) (*entity.Identification, error)
}
