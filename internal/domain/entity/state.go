package entity

import "time"

// Phase фаза приложения сканирования
type Phase string

const (
	PhaseSplash           Phase = "splash"            // Заставка
	PhasePermissionCheck  Phase = "permission_check"  // Запрос доступа к камере
	PhasePermissionDenied Phase = "permission_denied" // Доступ к камере не получен
	PhaseCamera           Phase = "camera"            // Камера готова, ожидание действия
	PhaseLiveScan         Phase = "live_scan"         // Живое сканирование
	PhaseProcessing       Phase = "processing"        // Обработка снимка
	PhaseResult           Phase = "result"            // Показ результата
	PhaseError            Phase = "error"             // Показ ошибки
)

// EventKind событие, переводящее автомат между фазами
type EventKind string

const (
	EventSplashElapsed     EventKind = "splash_elapsed"
	EventPermissionGranted EventKind = "permission_granted"
	EventPermissionDenied  EventKind = "permission_denied"
	EventRetryPermission   EventKind = "retry_permission"
	EventCapture           EventKind = "capture"
	EventGallerySelected   EventKind = "gallery_selected"
	EventStartLive         EventKind = "start_live"
	EventStopLive          EventKind = "stop_live"
	EventLock              EventKind = "lock"
	EventIdentified        EventKind = "identified"
	EventFailed            EventKind = "failed"
	EventReset             EventKind = "reset"
)

type transitionKey struct {
	from  Phase
	event EventKind
}

var transitions = map[transitionKey]Phase{
	{PhaseSplash, EventSplashElapsed}:              PhasePermissionCheck,
	{PhasePermissionCheck, EventPermissionGranted}: PhaseCamera,
	{PhasePermissionCheck, EventPermissionDenied}:  PhasePermissionDenied,
	{PhasePermissionDenied, EventRetryPermission}:  PhasePermissionCheck,
	{PhaseCamera, EventCapture}:                    PhaseProcessing,
	{PhaseCamera, EventGallerySelected}:            PhaseProcessing,
	{PhaseCamera, EventStartLive}:                  PhaseLiveScan,
	{PhaseLiveScan, EventStopLive}:                 PhaseCamera,
	{PhaseLiveScan, EventLock}:                     PhaseProcessing,
	{PhaseProcessing, EventIdentified}:             PhaseResult,
	{PhaseProcessing, EventFailed}:                 PhaseError,
	{PhaseResult, EventReset}:                      PhaseCamera,
	{PhaseError, EventReset}:                       PhaseCamera,
	{PhaseResult, EventPermissionDenied}:           PhasePermissionDenied,
	{PhaseError, EventPermissionDenied}:            PhasePermissionDenied,
}

// Transition возвращает следующую фазу для пары (фаза, событие).
// Второе значение false, если переход запрещён.
func Transition(from Phase, event EventKind) (Phase, bool) {
	to, ok := transitions[transitionKey{from, event}]
	if !ok {
		return from, false
	}
	return to, true
}

// State снимок состояния контроллера, который видит слой представления
type State struct {
	Phase     Phase
	AttemptID AttemptID
	Source    Source
	Result    *IdentificationResult
	Err       *ScanError
	Notice    string // мягкое предупреждение рядом с результатом
	Candidate *LiveCandidate
	UpdatedAt time.Time
}

// CanStartAttempt сообщает, можно ли из текущей фазы запустить новую попытку.
func (s State) CanStartAttempt() bool {
	return s.Phase == PhaseCamera
}
