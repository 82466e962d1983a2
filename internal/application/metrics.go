package app

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"vision-scan/internal/domain/entity"
)

var (
	ErrMetricsNotStarted = errors.New("metrics attempt is not started")
	ErrMarkRepeated      = errors.New("metrics mark is already recorded")
	ErrMarkOutOfOrder    = errors.New("metrics mark is out of order")
)

// MetricsRecorder хранит отметки времени текущей попытки.
// На управление попыткой не влияет: ошибки Mark только логируются.
type MetricsRecorder struct {
	mu      sync.Mutex
	now     func() time.Time
	attempt entity.AttemptID
	source  entity.Source
	marks   map[entity.Milestone]time.Time
	last    entity.Milestone
	started bool
}

// NewMetricsRecorder создаёт пустой рекордер.
func NewMetricsRecorder() *MetricsRecorder {
	return &MetricsRecorder{
		now:   time.Now,
		marks: make(map[entity.Milestone]time.Time),
	}
}

// Start сбрасывает прошлые отметки и отмечает начало новой попытки.
func (r *MetricsRecorder) Start(id entity.AttemptID, source entity.Source) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.resetLocked()
	r.attempt = id
	r.source = source
	r.started = true
	r.last = entity.MilestoneStarted
	r.marks[entity.MilestoneStarted] = r.now()
}

// Mark записывает отметку этапа. Каждый этап отмечается не больше одного раза
// и только после предыдущих.
func (r *MetricsRecorder) Mark(m entity.Milestone) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return fmt.Errorf("%w: %s", ErrMetricsNotStarted, m)
	}
	if _, ok := r.marks[m]; ok {
		return fmt.Errorf("%w: %s", ErrMarkRepeated, m)
	}
	if m < r.last {
		return fmt.Errorf("%w: %s after %s", ErrMarkOutOfOrder, m, r.last)
	}

	at := r.now()
	if prev := r.marks[r.last]; at.Before(prev) {
		at = prev
	}
	r.marks[m] = at
	r.last = m
	return nil
}

// Reset стирает все отметки.
func (r *MetricsRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked()
}

func (r *MetricsRecorder) resetLocked() {
	r.attempt = ""
	r.source = ""
	r.started = false
	r.last = entity.MilestoneStarted
	r.marks = make(map[entity.Milestone]time.Time)
}

// Snapshot возвращает копию отметок текущей попытки.
func (r *MetricsRecorder) Snapshot() entity.ScanMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()

	marks := make(map[entity.Milestone]time.Time, len(r.marks))
	for k, v := range r.marks {
		marks[k] = v
	}
	return entity.ScanMetrics{AttemptID: r.attempt, Source: r.source, Marks: marks}
}
