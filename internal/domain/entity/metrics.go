package entity

import "time"

// Milestone этап попытки сканирования
type Milestone int

const (
	MilestoneStarted Milestone = iota
	MilestoneUIReady
	MilestonePreprocessed
	MilestoneServiceResponded
	MilestoneRendered

	milestoneCount
)

var milestoneNames = [milestoneCount]string{
	"started",
	"uiReady",
	"preprocessed",
	"serviceResponded",
	"rendered",
}

func (m Milestone) String() string {
	if m < 0 || m >= milestoneCount {
		return "unknown"
	}
	return milestoneNames[m]
}

// Milestones возвращает все этапы в порядке следования.
func Milestones() []Milestone {
	out := make([]Milestone, 0, milestoneCount)
	for m := MilestoneStarted; m < milestoneCount; m++ {
		out = append(out, m)
	}
	return out
}

// ScanMetrics временные отметки одной попытки
type ScanMetrics struct {
	AttemptID AttemptID
	Source    Source
	Marks     map[Milestone]time.Time
}

// Since возвращает интервал от начала попытки до этапа.
func (m ScanMetrics) Since(milestone Milestone) (time.Duration, bool) {
	start, ok := m.Marks[MilestoneStarted]
	if !ok {
		return 0, false
	}
	at, ok := m.Marks[milestone]
	if !ok {
		return 0, false
	}
	return at.Sub(start), true
}

// Durations возвращает интервалы от начала для всех отмеченных этапов, в миллисекундах.
func (m ScanMetrics) Durations() map[string]int64 {
	out := make(map[string]int64, len(m.Marks))
	for _, milestone := range Milestones() {
		if d, ok := m.Since(milestone); ok {
			out[milestone.String()] = d.Milliseconds()
		}
	}
	return out
}
