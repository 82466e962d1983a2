package entity

// LiveStatus статус живого сканирования
type LiveStatus string

const (
	LiveScanning       LiveStatus = "scanning"        // Стабильного кандидата нет
	LiveCandidateFound LiveStatus = "candidate_found" // Есть результат, движения нет
	LiveLocked         LiveStatus = "locked"          // Кандидат зафиксирован
)

// LiveCandidate текущий кандидат живого сканирования
type LiveCandidate struct {
	Result         *IdentificationResult
	Status         LiveStatus
	MotionDetected bool
	MotionScore    float64
	StatusText     string // текст статуса с подавлением дребезга
	LastError      ErrorKind
}

// Lockable сообщает, можно ли зафиксировать кандидата.
func (c LiveCandidate) Lockable() bool {
	return c.Status == LiveCandidateFound && c.Result != nil
}

// StatusTextFor текст, который показывается пользователю для статуса.
func StatusTextFor(status LiveStatus) string {
	switch status {
	case LiveCandidateFound:
		return "Кандидат найден. Зафиксируйте результат или продолжайте сканирование."
	case LiveLocked:
		return "Результат зафиксирован."
	default:
		return "Держите камеру неподвижно..."
	}
}
