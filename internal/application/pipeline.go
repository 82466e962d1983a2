package app

import (
	"context"
	"errors"
	"log"
	"time"

	"vision-scan/internal/domain/entity"
	"vision-scan/internal/domain/port"
)

// ScanInput вход конвейера: сырой кадр или уже сжатое изображение
type ScanInput struct {
	Frame        entity.RawFrame
	Preprocessed *entity.PreprocessedImage
}

// ScanPipeline предобработка и один вызов сервиса распознавания.
type ScanPipeline struct {
	preprocessor port.Preprocessor
	identifier   port.Identifier
	now          func() time.Time
}

// NewScanPipeline создаёт конвейер сканирования.
func NewScanPipeline(preprocessor port.Preprocessor, identifier port.Identifier) *ScanPipeline {
	return &ScanPipeline{
		preprocessor: preprocessor,
		identifier:   identifier,
		now:          time.Now,
	}
}

// Run обрабатывает вход и возвращает результат распознавания.
// rec может быть nil (живое сканирование метрики не пишет).
func (p *ScanPipeline) Run(ctx context.Context, in ScanInput, rec *MetricsRecorder) (*entity.IdentificationResult, error) {
	if p.preprocessor == nil || p.identifier == nil {
		return nil, errors.New("scan pipeline is not configured")
	}

	img := in.Preprocessed
	if img == nil {
		processed, err := p.preprocessor.Process(ctx, in.Frame)
		if err != nil {
			return nil, err
		}
		img = processed
	} else if err := p.preprocessor.Validate(*img); err != nil {
		return nil, err
	}
	mark(rec, entity.MilestonePreprocessed)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ident, err := p.identifier.Identify(ctx, *img)
	if err != nil {
		return nil, err
	}
	mark(rec, entity.MilestoneServiceResponded)

	return entity.NewIdentificationResult(*ident, p.now()), nil
}

// Analyze прогоняет кадр живого сканирования по тому же пути.
func (p *ScanPipeline) Analyze(ctx context.Context, frame entity.RawFrame) (*entity.IdentificationResult, error) {
	return p.Run(ctx, ScanInput{Frame: frame}, nil)
}

func mark(rec *MetricsRecorder, m entity.Milestone) {
	if rec == nil {
		return
	}
	if err := rec.Mark(m); err != nil {
		log.Printf("[SCAN] metrics: %v", err)
	}
}
