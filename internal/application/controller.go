package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"vision-scan/internal/domain/entity"
	"vision-scan/internal/domain/port"
)

var (
	ErrAlreadyStarted   = errors.New("controller is already started")
	ErrControllerClosed = errors.New("controller is closed")
	errStaleAttempt     = errors.New("attempt is no longer current")
)

// ControllerConfig параметры контроллера сканирования
type ControllerConfig struct {
	SplashDuration time.Duration
	Facing         port.Facing
	Resolution     port.Resolution
	Live           LiveConfig
	PersistTimeout time.Duration
}

// Controller конечный автомат приложения. Владеет камерой и решает,
// какой из конвейеров сейчас активен.
type Controller struct {
	cfg      ControllerConfig
	camera   port.Camera
	pipeline *ScanPipeline
	motion   port.MotionDetector
	store    port.ResultStore
	sink     port.MetricsSink
	metrics  *MetricsRecorder
	now      func() time.Time

	mu            sync.Mutex
	state         entity.State
	version       uint64
	started       bool
	closed        bool
	stream        port.Stream
	live          *LiveScanner
	cancelAttempt context.CancelFunc

	ctx  context.Context
	stop context.CancelFunc
	bg   sync.WaitGroup

	obsMu     sync.Mutex
	observers map[int]func(entity.State)
	nextObs   int
	delivered uint64
}

// NewController создаёт контроллер в фазе заставки.
func NewController(cfg ControllerConfig, camera port.Camera, pipeline *ScanPipeline, motion port.MotionDetector, store port.ResultStore, sink port.MetricsSink) *Controller {
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 10 * time.Second
	}
	if cfg.Facing == "" {
		cfg.Facing = port.FacingEnvironment
	}

	ctx, stop := context.WithCancel(context.Background())
	c := &Controller{
		cfg:       cfg,
		camera:    camera,
		pipeline:  pipeline,
		motion:    motion,
		store:     store,
		sink:      sink,
		metrics:   NewMetricsRecorder(),
		now:       time.Now,
		ctx:       ctx,
		stop:      stop,
		observers: make(map[int]func(entity.State)),
	}
	c.state = entity.State{Phase: entity.PhaseSplash, UpdatedAt: c.now()}
	return c
}

// State возвращает текущий снимок состояния.
func (c *Controller) State() entity.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Metrics возвращает отметки текущей попытки.
func (c *Controller) Metrics() entity.ScanMetrics {
	return c.metrics.Snapshot()
}

// Subscribe подписывает на изменения состояния. Наблюдатель вызывается
// синхронно, до того как контроллер продолжит работу.
func (c *Controller) Subscribe(fn func(entity.State)) (unsubscribe func()) {
	c.obsMu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	c.obsMu.Unlock()

	return func() {
		c.obsMu.Lock()
		delete(c.observers, id)
		c.obsMu.Unlock()
	}
}

// Start показывает заставку и запрашивает камеру. Вызывается один раз за сессию.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	snap, v := c.state, c.bumpLocked()
	c.mu.Unlock()
	c.publish(snap, v)

	if d := c.cfg.SplashDuration; d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if _, err := c.transition(entity.EventSplashElapsed, nil); err != nil {
		return err
	}
	return c.acquire(ctx)
}

// RetryPermission повторно запрашивает камеру после отказа.
func (c *Controller) RetryPermission(ctx context.Context) error {
	if _, err := c.transition(entity.EventRetryPermission, func(s *entity.State) {
		s.Err = nil
	}); err != nil {
		return err
	}
	return c.acquire(ctx)
}

// acquire захватывает камеру в фазе PermissionCheck.
func (c *Controller) acquire(ctx context.Context) error {
	stream, err := c.camera.Acquire(ctx, c.cfg.Facing, c.cfg.Resolution)
	if err != nil {
		se := cameraError(err)
		log.Printf("[SCAN] acquire camera: %v", se)
		if _, terr := c.transition(entity.EventPermissionDenied, func(s *entity.State) {
			s.Err = se
		}); terr != nil {
			return terr
		}
		return se
	}

	c.mu.Lock()
	snap, terr := c.fireLocked(entity.EventPermissionGranted, func(s *entity.State) {
		s.Err = nil
	})
	if terr != nil {
		c.mu.Unlock()
		c.release(stream)
		return terr
	}
	c.stream = stream
	v := c.version
	c.mu.Unlock()

	c.publish(snap, v)
	return nil
}

// Capture делает одиночный снимок с камеры и распознаёт его.
// Поток камеры освобождается сразу после получения кадра.
func (c *Controller) Capture(ctx context.Context) (entity.State, error) {
	c.mu.Lock()
	if c.state.Phase == entity.PhaseCamera && c.stream == nil {
		c.mu.Unlock()
		return c.State(), entity.NewScanError(entity.ErrCameraUnavailable, "camera stream is not attached", nil)
	}
	stream := c.stream
	attemptCtx, snap, v, err := c.beginAttemptLocked(ctx, entity.EventCapture, entity.SourceCamera)
	if err != nil {
		c.mu.Unlock()
		return snap, err
	}
	c.stream = nil
	c.mu.Unlock()

	c.publish(snap, v)
	mark(c.metrics, entity.MilestoneUIReady)

	frame, ferr := stream.Frame(attemptCtx)
	c.release(stream)
	if ferr != nil {
		return c.failAttempt(attemptCtx, snap.AttemptID, cameraError(ferr))
	}
	frame.Source = entity.SourceCamera

	return c.runAttempt(attemptCtx, snap.AttemptID, ScanInput{Frame: frame})
}

// SubmitGallery распознаёт файл, выбранный пользователем. Файлы, которые не
// являются изображениями, отклоняются без смены состояния.
func (c *Controller) SubmitGallery(ctx context.Context, data []byte, mimeType string) (entity.State, error) {
	mediaType, ok := sniffImage(data, mimeType)
	if !ok {
		return c.State(), ErrNotAnImage
	}

	c.mu.Lock()
	attemptCtx, snap, v, err := c.beginAttemptLocked(ctx, entity.EventGallerySelected, entity.SourceGallery)
	c.mu.Unlock()
	if err != nil {
		return snap, err
	}

	c.publish(snap, v)
	mark(c.metrics, entity.MilestoneUIReady)

	frame := entity.RawFrame{Data: data, MIME: mediaType, Source: entity.SourceGallery}
	return c.runAttempt(attemptCtx, snap.AttemptID, ScanInput{Frame: frame})
}

// SubmitPreprocessed распознаёт изображение, которое клиент уже сжал сам.
func (c *Controller) SubmitPreprocessed(ctx context.Context, img entity.PreprocessedImage) (entity.State, error) {
	if _, ok := sniffImage(img.Data, ""); !ok {
		return c.State(), ErrNotAnImage
	}

	c.mu.Lock()
	attemptCtx, snap, v, err := c.beginAttemptLocked(ctx, entity.EventGallerySelected, entity.SourceGallery)
	c.mu.Unlock()
	if err != nil {
		return snap, err
	}

	c.publish(snap, v)
	mark(c.metrics, entity.MilestoneUIReady)

	return c.runAttempt(attemptCtx, snap.AttemptID, ScanInput{Preprocessed: &img})
}

// StartLive запускает живое сканирование на текущем потоке камеры.
func (c *Controller) StartLive() (entity.State, error) {
	c.mu.Lock()
	if c.state.Phase == entity.PhaseCamera && c.stream == nil {
		snap := c.state
		c.mu.Unlock()
		return snap, entity.NewScanError(entity.ErrCameraUnavailable, "camera stream is not attached", nil)
	}

	var scanner *LiveScanner
	scanner = NewLiveScanner(c.cfg.Live, c.stream, c.motion, c.pipeline, func(cand entity.LiveCandidate) {
		c.onLiveUpdate(scanner, cand)
	})

	cand := scanner.Candidate()
	snap, err := c.fireLocked(entity.EventStartLive, func(s *entity.State) {
		s.Candidate = &cand
		s.Result = nil
		s.Err = nil
		s.Notice = ""
	})
	if err != nil {
		c.mu.Unlock()
		return snap, err
	}
	c.live = scanner
	v := c.version

	// запуск под блокировкой, чтобы StopLive не обогнал его
	scanner.Start(c.ctx)
	c.mu.Unlock()

	c.publish(snap, v)
	return snap, nil
}

// StopLive останавливает живое сканирование, камера остаётся захваченной.
func (c *Controller) StopLive() (entity.State, error) {
	c.mu.Lock()
	scanner := c.live
	snap, err := c.fireLocked(entity.EventStopLive, func(s *entity.State) {
		s.Candidate = nil
	})
	if err != nil {
		c.mu.Unlock()
		return snap, err
	}
	c.live = nil
	v := c.version
	c.mu.Unlock()

	if scanner != nil {
		scanner.Stop()
	}
	c.publish(snap, v)
	return snap, nil
}

// Rescan сбрасывает текущего кандидата.
func (c *Controller) Rescan() error {
	c.mu.Lock()
	scanner := c.live
	phase := c.state.Phase
	c.mu.Unlock()

	if phase != entity.PhaseLiveScan || scanner == nil {
		return fmt.Errorf("%w: rescan in %s", entity.ErrIllegalTransition, phase)
	}
	scanner.Rescan()
	return nil
}

// Lock фиксирует найденного кандидата как окончательный результат.
// Если кандидата нет, ничего не меняет и возвращает false.
func (c *Controller) Lock(ctx context.Context) (entity.State, bool, error) {
	c.mu.Lock()
	if c.state.Phase != entity.PhaseLiveScan || c.live == nil {
		snap := c.state
		c.mu.Unlock()
		return snap, false, fmt.Errorf("%w: lock in %s", entity.ErrIllegalTransition, snap.Phase)
	}

	scanner := c.live
	result, ok := scanner.Freeze()
	if !ok {
		snap := c.state
		c.mu.Unlock()
		return snap, false, nil
	}

	locked := scanner.Candidate()
	_, snap, v, err := c.beginAttemptLocked(ctx, entity.EventLock, entity.SourceLive)
	if err != nil {
		c.mu.Unlock()
		return snap, false, err
	}
	c.state.Candidate = &locked
	snap = c.state
	stream := c.stream
	c.stream = nil
	c.live = nil
	c.mu.Unlock()

	c.publish(snap, v)
	mark(c.metrics, entity.MilestoneUIReady)

	scanner.Stop()
	c.release(stream)

	state, err := c.completeAttempt(snap.AttemptID, result)
	return state, err == nil, err
}

// Reset возвращает в режим камеры после результата или ошибки,
// каждый раз захватывая камеру заново.
func (c *Controller) Reset(ctx context.Context) (entity.State, error) {
	c.mu.Lock()
	if _, ok := entity.Transition(c.state.Phase, entity.EventReset); !ok {
		snap := c.state
		c.mu.Unlock()
		return snap, fmt.Errorf("%w: reset in %s", entity.ErrIllegalTransition, snap.Phase)
	}
	old := c.stream
	c.stream = nil
	c.mu.Unlock()

	c.release(old)

	stream, err := c.camera.Acquire(ctx, c.cfg.Facing, c.cfg.Resolution)

	c.mu.Lock()
	if err != nil {
		se := cameraError(err)
		snap, terr := c.fireLocked(entity.EventPermissionDenied, func(s *entity.State) {
			clearAttempt(s)
			s.Err = se
		})
		v := c.version
		c.mu.Unlock()
		if terr != nil {
			return snap, terr
		}
		c.publish(snap, v)
		return snap, se
	}

	snap, terr := c.fireLocked(entity.EventReset, clearAttempt)
	if terr != nil {
		c.mu.Unlock()
		c.release(stream)
		return snap, terr
	}
	c.stream = stream
	v := c.version
	c.mu.Unlock()

	c.metrics.Reset()
	c.publish(snap, v)
	return snap, nil
}

// DismissNotice скрывает мягкое предупреждение.
func (c *Controller) DismissNotice() entity.State {
	c.mu.Lock()
	if c.state.Notice == "" {
		snap := c.state
		c.mu.Unlock()
		return snap
	}
	c.state.Notice = ""
	c.state.UpdatedAt = c.now()
	snap, v := c.state, c.bumpLocked()
	c.mu.Unlock()

	c.publish(snap, v)
	return snap
}

// Close отменяет текущую попытку, останавливает живое сканирование
// и освобождает камеру.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	scanner := c.live
	stream := c.stream
	cancel := c.cancelAttempt
	c.live = nil
	c.stream = nil
	c.cancelAttempt = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if scanner != nil {
		scanner.Stop()
	}
	c.release(stream)

	c.bg.Wait()
	c.stop()
	return nil
}

// beginAttemptLocked переводит автомат в Processing и начинает новую попытку.
func (c *Controller) beginAttemptLocked(ctx context.Context, ev entity.EventKind, source entity.Source) (context.Context, entity.State, uint64, error) {
	if c.closed {
		return ctx, c.state, 0, ErrControllerClosed
	}

	id := entity.NewAttemptID()
	snap, err := c.fireLocked(ev, func(s *entity.State) {
		clearAttempt(s)
		s.AttemptID = id
		s.Source = source
	})
	if err != nil {
		return ctx, snap, 0, err
	}
	c.metrics.Start(id, source)

	attemptCtx, cancel := context.WithCancel(ctx)
	c.cancelAttempt = cancel
	return attemptCtx, snap, c.version, nil
}

func (c *Controller) runAttempt(ctx context.Context, id entity.AttemptID, in ScanInput) (entity.State, error) {
	result, err := c.pipeline.Run(ctx, in, c.metrics)
	if err != nil {
		return c.failAttempt(ctx, id, err)
	}
	return c.completeAttempt(id, result)
}

// completeAttempt показывает результат и только потом отправляет его на сохранение.
func (c *Controller) completeAttempt(id entity.AttemptID, result *entity.IdentificationResult) (entity.State, error) {
	c.mu.Lock()
	if c.closed || c.state.AttemptID != id {
		snap := c.state
		c.mu.Unlock()
		return snap, errStaleAttempt
	}
	snap, err := c.fireLocked(entity.EventIdentified, func(s *entity.State) {
		s.Result = result
	})
	if err != nil {
		c.mu.Unlock()
		return snap, err
	}
	c.finishAttemptLocked()
	v := c.version
	c.mu.Unlock()

	c.publish(snap, v)
	mark(c.metrics, entity.MilestoneRendered)

	c.emitMetrics(c.metrics.Snapshot())
	c.persist(snap)
	return snap, nil
}

func (c *Controller) failAttempt(ctx context.Context, id entity.AttemptID, cause error) (entity.State, error) {
	c.mu.Lock()
	if c.closed || c.state.AttemptID != id {
		snap := c.state
		c.mu.Unlock()
		if ctx.Err() != nil {
			return snap, ctx.Err()
		}
		return snap, errStaleAttempt
	}

	se := entity.AsScanError(cause)
	if errors.Is(cause, context.DeadlineExceeded) {
		se = entity.NewScanError(entity.ErrTimeout, "", cause)
	}

	snap, err := c.fireLocked(entity.EventFailed, func(s *entity.State) {
		s.Err = se
	})
	if err != nil {
		c.mu.Unlock()
		return snap, err
	}
	c.finishAttemptLocked()
	v := c.version
	c.mu.Unlock()

	log.Printf("[SCAN] attempt %s failed: %v", id, se)
	c.metrics.Reset()
	c.publish(snap, v)
	return snap, se
}

func (c *Controller) finishAttemptLocked() {
	if c.cancelAttempt != nil {
		c.cancelAttempt()
		c.cancelAttempt = nil
	}
}

// persist сохраняет результат в фоне. Ошибка сохранения превращается
// в мягкое предупреждение и не меняет показанный результат.
func (c *Controller) persist(snap entity.State) {
	if c.store == nil || snap.Result == nil {
		return
	}

	record := entity.ScanRecord{
		AttemptID: snap.AttemptID,
		Source:    snap.Source,
		Result:    *snap.Result,
		SavedAt:   c.now(),
	}

	c.bg.Add(1)
	go func() {
		defer c.bg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.PersistTimeout)
		defer cancel()

		if err := c.store.Save(ctx, record); err != nil {
			log.Printf("[SCAN] attempt %s: save result: %v", record.AttemptID, err)
			c.notePersistFailure(record.AttemptID)
		}
	}()
}

func (c *Controller) notePersistFailure(id entity.AttemptID) {
	c.mu.Lock()
	if c.state.Phase != entity.PhaseResult || c.state.AttemptID != id {
		c.mu.Unlock()
		return
	}
	c.state.Notice = entity.UserMessage(entity.ErrPersistenceFailure)
	c.state.UpdatedAt = c.now()
	snap, v := c.state, c.bumpLocked()
	c.mu.Unlock()

	c.publish(snap, v)
}

func (c *Controller) emitMetrics(m entity.ScanMetrics) {
	if c.sink == nil {
		return
	}

	c.bg.Add(1)
	go func() {
		defer c.bg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := c.sink.Emit(ctx, m); err != nil {
			log.Printf("[SCAN] emit metrics for %s: %v", m.AttemptID, err)
		}
	}()
}

func (c *Controller) onLiveUpdate(scanner *LiveScanner, cand entity.LiveCandidate) {
	c.mu.Lock()
	if c.live != scanner || c.state.Phase != entity.PhaseLiveScan {
		c.mu.Unlock()
		return
	}
	c.state.Candidate = &cand
	c.state.UpdatedAt = c.now()
	snap, v := c.state, c.bumpLocked()
	c.mu.Unlock()

	c.publish(snap, v)
}

// transition применяет событие и оповещает наблюдателей.
func (c *Controller) transition(ev entity.EventKind, mutate func(*entity.State)) (entity.State, error) {
	c.mu.Lock()
	snap, err := c.fireLocked(ev, mutate)
	v := c.version
	c.mu.Unlock()

	if err != nil {
		return snap, err
	}
	c.publish(snap, v)
	return snap, nil
}

// fireLocked вычисляет следующую фазу чистой функцией перехода и сохраняет её.
func (c *Controller) fireLocked(ev entity.EventKind, mutate func(*entity.State)) (entity.State, error) {
	next, ok := entity.Transition(c.state.Phase, ev)
	if !ok {
		return c.state, fmt.Errorf("%w: %s in %s", entity.ErrIllegalTransition, ev, c.state.Phase)
	}

	s := c.state
	s.Phase = next
	if mutate != nil {
		mutate(&s)
	}
	s.UpdatedAt = c.now()
	c.state = s
	c.bumpLocked()
	return s, nil
}

func (c *Controller) bumpLocked() uint64 {
	c.version++
	return c.version
}

// publish доставляет снимок наблюдателям. Снимки старше уже доставленного пропускаются.
func (c *Controller) publish(snap entity.State, version uint64) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()

	if version <= c.delivered {
		return
	}
	c.delivered = version

	for _, fn := range c.observers {
		fn(snap)
	}
}

func (c *Controller) release(stream port.Stream) {
	if stream == nil {
		return
	}
	if err := stream.Close(); err != nil {
		log.Printf("[SCAN] release camera: %v", err)
	}
}

func clearAttempt(s *entity.State) {
	s.AttemptID = ""
	s.Source = ""
	s.Result = nil
	s.Err = nil
	s.Notice = ""
	s.Candidate = nil
}

// cameraError приводит ошибку захвата камеры к одному из видов камеры.
func cameraError(err error) *entity.ScanError {
	var se *entity.ScanError
	if errors.As(err, &se) && (se.Kind == entity.ErrCameraPermissionDenied || se.Kind == entity.ErrCameraUnavailable) {
		return se
	}
	return entity.NewScanError(entity.ErrCameraUnavailable, "", err)
}
