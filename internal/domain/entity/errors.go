package entity

import (
	"errors"
	"fmt"
)

// ErrorKind вид ошибки сканирования
type ErrorKind string

const (
	ErrCameraPermissionDenied ErrorKind = "camera_permission_denied"
	ErrCameraUnavailable      ErrorKind = "camera_unavailable"
	ErrInvalidImage           ErrorKind = "invalid_image"
	ErrImageTooLarge          ErrorKind = "image_too_large"
	ErrNetwork                ErrorKind = "network_error"
	ErrRateLimited            ErrorKind = "rate_limited"
	ErrServer                 ErrorKind = "server_error"
	ErrServiceUnavailable     ErrorKind = "service_unavailable"
	ErrTimeout                ErrorKind = "timeout"
	ErrPersistenceFailure     ErrorKind = "persistence_failure"
)

// ErrIllegalTransition возвращается, если действие недоступно в текущей фазе.
var ErrIllegalTransition = errors.New("action is not allowed in the current state")

// ScanError ошибка с видом из таксономии
type ScanError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewScanError создаёт ошибку заданного вида.
func NewScanError(kind ErrorKind, message string, err error) *ScanError {
	return &ScanError{Kind: kind, Message: message, Err: err}
}

func (e *ScanError) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// Is позволяет сравнивать ошибки по виду через errors.Is.
func (e *ScanError) Is(target error) bool {
	t, ok := target.(*ScanError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Fatal сообщает, прерывает ли ошибка текущую попытку.
func (e *ScanError) Fatal() bool {
	return e.Kind != ErrPersistenceFailure
}

// UserMessage текст для пользователя.
func (e *ScanError) UserMessage() string {
	return UserMessage(e.Kind)
}

// AsScanError достаёт ScanError из цепочки; прочие ошибки считаются сетевыми.
func AsScanError(err error) *ScanError {
	if err == nil {
		return nil
	}
	var se *ScanError
	if errors.As(err, &se) {
		return se
	}
	return NewScanError(ErrNetwork, "", err)
}

// KindOf возвращает вид ошибки.
func KindOf(err error) ErrorKind {
	if se := AsScanError(err); se != nil {
		return se.Kind
	}
	return ""
}

var userMessages = map[ErrorKind]string{
	ErrCameraPermissionDenied: "Нет доступа к камере. Разрешите доступ и повторите попытку.",
	ErrCameraUnavailable:      "Камера недоступна. Проверьте, что она подключена и не занята другим приложением.",
	ErrInvalidImage:           "Не удалось прочитать изображение. Попробуйте другое фото.",
	ErrImageTooLarge:          "Изображение слишком большое для распознавания. Попробуйте другое фото.",
	ErrNetwork:                "Ошибка сети. Проверьте подключение и попробуйте снова.",
	ErrRateLimited:            "Слишком много запросов. Подождите немного и попробуйте снова.",
	ErrServer:                 "Ошибка сервера распознавания. Попробуйте позже.",
	ErrServiceUnavailable:     "Сервис распознавания временно недоступен. Попробуйте позже.",
	ErrTimeout:                "Сервис распознавания не ответил вовремя. Попробуйте снова.",
	ErrPersistenceFailure:     "Результат не удалось сохранить в историю.",
}

// UserMessage возвращает сообщение для пользователя по виду ошибки.
func UserMessage(kind ErrorKind) string {
	if msg, ok := userMessages[kind]; ok {
		return msg
	}
	return "Что-то пошло не так. Попробуйте снова."
}
