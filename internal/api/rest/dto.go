package rest

import (
	"time"

	"vision-scan/internal/domain/entity"
)

type stateResponse struct {
	Phase     entity.Phase                 `json:"phase"`
	AttemptID entity.AttemptID             `json:"attemptId,omitempty"`
	Source    entity.Source                `json:"source,omitempty"`
	Result    *entity.IdentificationResult `json:"result,omitempty"`
	Error     *errorResponse               `json:"error,omitempty"`
	Notice    string                       `json:"notice,omitempty"`
	Candidate *candidateResponse           `json:"candidate,omitempty"`
	UpdatedAt time.Time                    `json:"updatedAt"`
}

type errorResponse struct {
	Kind    entity.ErrorKind `json:"kind,omitempty"`
	Message string           `json:"message"`
}

type candidateResponse struct {
	Status         entity.LiveStatus            `json:"status"`
	StatusText     string                       `json:"statusText"`
	MotionDetected bool                         `json:"motionDetected"`
	MotionScore    float64                      `json:"motionScore"`
	Result         *entity.IdentificationResult `json:"result,omitempty"`
	LastError      entity.ErrorKind             `json:"lastError,omitempty"`
}

type lockResponse struct {
	Locked bool          `json:"locked"`
	State  stateResponse `json:"state"`
}

type recordResponse struct {
	AttemptID entity.AttemptID            `json:"attemptId"`
	Source    entity.Source               `json:"source"`
	Result    entity.IdentificationResult `json:"result"`
	SavedAt   time.Time                   `json:"savedAt"`
}

type metricsResponse struct {
	AttemptID   entity.AttemptID `json:"attemptId,omitempty"`
	Source      entity.Source    `json:"source,omitempty"`
	DurationsMS map[string]int64 `json:"durationsMs"`
}

func toStateResponse(s entity.State) stateResponse {
	resp := stateResponse{
		Phase:     s.Phase,
		AttemptID: s.AttemptID,
		Source:    s.Source,
		Result:    s.Result,
		Notice:    s.Notice,
		UpdatedAt: s.UpdatedAt,
	}
	if s.Err != nil {
		resp.Error = &errorResponse{Kind: s.Err.Kind, Message: s.Err.UserMessage()}
	}
	if c := s.Candidate; c != nil {
		resp.Candidate = &candidateResponse{
			Status:         c.Status,
			StatusText:     c.StatusText,
			MotionDetected: c.MotionDetected,
			MotionScore:    c.MotionScore,
			Result:         c.Result,
			LastError:      c.LastError,
		}
	}
	return resp
}

func toRecordResponses(records []entity.ScanRecord) []recordResponse {
	out := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, recordResponse{
			AttemptID: rec.AttemptID,
			Source:    rec.Source,
			Result:    rec.Result,
			SavedAt:   rec.SavedAt,
		})
	}
	return out
}
