package telegram

import (
	"fmt"
	"strings"

	"vision-scan/internal/domain/entity"
)

// view то, что уже показано пользователям
type view struct {
	phase  entity.Phase
	status entity.LiveStatus
	notice string
}

// stateMessage возвращает текст для нового состояния или пустую строку,
// если пользователю нечего показать.
func stateMessage(prev view, s entity.State) (string, view) {
	next := view{phase: s.Phase, notice: s.Notice}
	if s.Candidate != nil {
		next.status = s.Candidate.Status
	}

	entered := prev.phase != s.Phase
	var parts []string

	switch s.Phase {
	case entity.PhasePermissionCheck:
		if entered {
			parts = append(parts, msgPermissionCheck)
		}

	case entity.PhasePermissionDenied:
		if entered {
			parts = append(parts, fmt.Sprintf("🚫 %s\n\n/retry — повторить запрос", errorText(s.Err)))
		}

	case entity.PhaseCamera:
		if entered {
			parts = append(parts, msgCameraReady)
		}

	case entity.PhaseLiveScan:
		if entered {
			parts = append(parts, msgLiveStarted)
		}
		if next.status == entity.LiveCandidateFound && prev.status != entity.LiveCandidateFound && s.Candidate.Result != nil {
			parts = append(parts, formatCandidate(s.Candidate.Result))
		}

	case entity.PhaseProcessing:
		if entered {
			parts = append(parts, msgProcessing)
		}

	case entity.PhaseResult:
		if entered && s.Result != nil {
			parts = append(parts, formatResult(s.Result))
		}

	case entity.PhaseError:
		if entered {
			parts = append(parts, fmt.Sprintf("⚠️ %s\n\n/reset — вернуться к камере", errorText(s.Err)))
		}
	}

	if s.Notice != "" && s.Notice != prev.notice {
		parts = append(parts, fmt.Sprintf("⚠️ %s\n/dismiss — скрыть", s.Notice))
	}

	return strings.Join(parts, "\n\n"), next
}

func errorText(err *entity.ScanError) string {
	if err == nil {
		return entity.UserMessage("")
	}
	return err.UserMessage()
}

var bandNames = map[entity.ConfidenceBand]string{
	entity.ConfidenceHigh:   "высокая",
	entity.ConfidenceMedium: "средняя",
	entity.ConfidenceLow:    "низкая",
}

// formatResult текст результата распознавания
func formatResult(r *entity.IdentificationResult) string {
	var sb strings.Builder

	sb.WriteString("✅ " + r.PrimaryLabel)
	if r.SecondaryLabel != "" {
		sb.WriteString("\n" + r.SecondaryLabel)
	}
	if r.SubjectType != "" {
		sb.WriteString(fmt.Sprintf("\nТип: %s", r.SubjectType))
	}
	if r.Year != nil {
		sb.WriteString(fmt.Sprintf("\nГод: %d", *r.Year))
	}
	if r.QualityScore != nil {
		sb.WriteString(fmt.Sprintf("\nСохранность: %.0f%%", *r.QualityScore*100))
	}
	sb.WriteString(fmt.Sprintf("\nУверенность: %.0f%% (%s)", r.ConfidenceScore*100, bandNames[r.ConfidenceBand]))
	if len(r.AlternativeLabels) > 0 {
		sb.WriteString("\nВозможно также: " + strings.Join(r.AlternativeLabels, ", "))
	}
	if r.Reasoning != "" {
		sb.WriteString("\n\n" + r.Reasoning)
	}
	sb.WriteString("\n\nℹ️ " + r.Disclaimer)
	sb.WriteString("\n\n/reset — новое сканирование")

	return sb.String()
}

func formatCandidate(r *entity.IdentificationResult) string {
	return fmt.Sprintf("🎯 Кандидат: %s (%.0f%%)\n/lock — зафиксировать, /rescan — искать заново", r.PrimaryLabel, r.ConfidenceScore*100)
}

func formatHistory(records []entity.ScanRecord) string {
	var sb strings.Builder
	sb.WriteString("🗂 Последние результаты:\n")
	for i, rec := range records {
		sb.WriteString(fmt.Sprintf("\n%d. %s (%.0f%%), %s\n   id: %s",
			i+1, rec.Result.PrimaryLabel, rec.Result.ConfidenceScore*100,
			rec.SavedAt.Format("02.01.2006 15:04"), rec.AttemptID))
	}
	return sb.String()
}
