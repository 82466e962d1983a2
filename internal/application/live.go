package app

import (
	"context"
	"log"
	"sync"
	"time"

	"vision-scan/internal/domain/entity"
	"vision-scan/internal/domain/port"
)

// LiveConfig параметры живого сканирования
type LiveConfig struct {
	Interval        time.Duration // период опроса кадров
	MotionThreshold float64       // доля изменившихся пикселей, начиная с которой кадр считается движущимся
	StableDwell     time.Duration // сколько кадр должен быть неподвижен перед распознаванием
	StatusDebounce  time.Duration // сколько статус должен держаться до смены текста
}

// DefaultLiveConfig значения по умолчанию.
func DefaultLiveConfig() LiveConfig {
	return LiveConfig{
		Interval:        200 * time.Millisecond,
		MotionThreshold: 0.04,
		StableDwell:     600 * time.Millisecond,
		StatusDebounce:  400 * time.Millisecond,
	}
}

// LiveScanner периодически берёт кадр из потока, ждёт, пока картинка успокоится,
// и распознаёт её тем же конвейером, что и одиночный снимок.
type LiveScanner struct {
	cfg      LiveConfig
	stream   port.Stream
	motion   port.MotionDetector
	pipeline *ScanPipeline
	onUpdate func(entity.LiveCandidate)
	now      func() time.Time

	mu            sync.Mutex
	candidate     entity.LiveCandidate
	stableSince   time.Time
	analyzed      bool
	generation    uint64
	frozen        bool
	stopped       bool
	pendingStatus entity.LiveStatus
	pendingSince  time.Time

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewLiveScanner создаёт цикл живого сканирования. Поток только заимствуется:
// закрывает его владелец.
func NewLiveScanner(cfg LiveConfig, stream port.Stream, motion port.MotionDetector, pipeline *ScanPipeline, onUpdate func(entity.LiveCandidate)) *LiveScanner {
	def := DefaultLiveConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MotionThreshold <= 0 {
		cfg.MotionThreshold = def.MotionThreshold
	}
	if onUpdate == nil {
		onUpdate = func(entity.LiveCandidate) {}
	}

	return &LiveScanner{
		cfg:      cfg,
		stream:   stream,
		motion:   motion,
		pipeline: pipeline,
		onUpdate: onUpdate,
		now:      time.Now,
		candidate: entity.LiveCandidate{
			Status:     entity.LiveScanning,
			StatusText: entity.StatusTextFor(entity.LiveScanning),
		},
		pendingStatus: entity.LiveScanning,
	}
}

// Start запускает цикл. Повторный вызов и вызов после Stop ничего не делают.
func (s *LiveScanner) Start(ctx context.Context) {
	s.mu.Lock()
	if s.done != nil || s.stopped {
		s.mu.Unlock()
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.pendingSince = s.now()
	s.mu.Unlock()

	if s.motion != nil {
		s.motion.Reset()
	}

	go s.run(ctx)
}

// Stop отменяет текущий анализ и ждёт завершения цикла.
func (s *LiveScanner) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		cancel, done := s.cancel, s.done
		s.mu.Unlock()

		if cancel == nil {
			return
		}
		cancel()
		<-done
	})
}

// Rescan сбрасывает кандидата, цикл продолжает работать.
func (s *LiveScanner) Rescan() {
	s.mu.Lock()
	if s.frozen {
		s.mu.Unlock()
		return
	}
	s.generation++
	s.analyzed = false
	s.candidate.Result = nil
	s.candidate.LastError = ""
	s.candidate.Status = entity.LiveScanning
	snap := s.snapshotLocked(s.now())
	s.mu.Unlock()

	s.onUpdate(snap)
}

// Freeze фиксирует кандидата, если он найден. После успешного вызова
// цикл больше не меняет состояние.
func (s *LiveScanner) Freeze() (*entity.IdentificationResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen || !s.candidate.Lockable() {
		return nil, false
	}
	s.frozen = true
	s.candidate.Status = entity.LiveLocked
	s.candidate.StatusText = entity.StatusTextFor(entity.LiveLocked)
	return s.candidate.Result, true
}

// Candidate возвращает копию текущего кандидата.
func (s *LiveScanner) Candidate() entity.LiveCandidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.candidate
}

func (s *LiveScanner) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *LiveScanner) tick(ctx context.Context) {
	frame, err := s.stream.Frame(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Printf("[LIVE] read frame: %v", err)
		s.apply(s.generationNow(), func(c *entity.LiveCandidate) {
			c.LastError = entity.ErrCameraUnavailable
		})
		return
	}

	motion := entity.MotionSample{}
	if s.motion != nil {
		motion, err = s.motion.Measure(frame)
		if err != nil {
			log.Printf("[LIVE] measure motion: %v", err)
			return
		}
	}

	now := s.now()
	moving := motion.Score >= s.cfg.MotionThreshold

	s.mu.Lock()
	if s.frozen {
		s.mu.Unlock()
		return
	}
	s.candidate.MotionDetected = moving
	s.candidate.MotionScore = motion.Score

	analyze := false
	if moving {
		s.stableSince = time.Time{}
		s.analyzed = false
		if s.candidate.Status == entity.LiveCandidateFound {
			s.candidate.Status = entity.LiveScanning
		}
	} else {
		if s.stableSince.IsZero() {
			s.stableSince = now
		}
		if now.Sub(s.stableSince) >= s.cfg.StableDwell {
			if !s.analyzed {
				s.analyzed = true
				analyze = true
			}
			if s.candidate.Result != nil {
				s.candidate.Status = entity.LiveCandidateFound
			}
		}
	}
	gen := s.generation
	snap := s.snapshotLocked(now)
	s.mu.Unlock()

	s.onUpdate(snap)

	if !analyze {
		return
	}

	result, err := s.pipeline.Analyze(ctx, frame)
	if ctx.Err() != nil {
		// цикл остановлен, ответ устарел
		return
	}
	if err != nil {
		log.Printf("[LIVE] analyze frame: %v", err)
	}

	s.apply(gen, func(c *entity.LiveCandidate) {
		if err != nil {
			c.LastError = entity.KindOf(err)
			return
		}
		c.Result = result
		c.LastError = ""
		if !c.MotionDetected {
			c.Status = entity.LiveCandidateFound
		}
	})
}

// apply меняет кандидата, если с момента запроса не было Rescan и фиксации.
func (s *LiveScanner) apply(gen uint64, fn func(c *entity.LiveCandidate)) {
	s.mu.Lock()
	if s.frozen || gen != s.generation {
		s.mu.Unlock()
		return
	}
	fn(&s.candidate)
	snap := s.snapshotLocked(s.now())
	s.mu.Unlock()

	s.onUpdate(snap)
}

func (s *LiveScanner) generationNow() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// snapshotLocked обновляет текст статуса с подавлением дребезга и возвращает копию.
func (s *LiveScanner) snapshotLocked(now time.Time) entity.LiveCandidate {
	if s.candidate.Status != s.pendingStatus {
		s.pendingStatus = s.candidate.Status
		s.pendingSince = now
	}
	if now.Sub(s.pendingSince) >= s.cfg.StatusDebounce {
		s.candidate.StatusText = entity.StatusTextFor(s.pendingStatus)
	}
	return s.candidate
}
