package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EvaluationStatus represents one subject's assessment state within a batch.
type EvaluationStatus string

const (
	EvaluationStatusStarted     EvaluationStatus = "STARTED"
	EvaluationStatusConcluded   EvaluationStatus = "CONCLUDED"
	EvaluationStatusInactivated EvaluationStatus = "INACTIVATED"
)

func (s EvaluationStatus) String() string { return string(s) }

func (s EvaluationStatus) IsValid() bool {
	switch s {
	case EvaluationStatusStarted, EvaluationStatusConcluded, EvaluationStatusInactivated:
		return true
	}
	return false
}

func ParseEvaluationStatusFromString(s string) (EvaluationStatus, error) {
	st := EvaluationStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid evaluation status %q", ErrValidation, s)
	}
	return st, nil
}

// Evaluation is one subject's assessment instance. Responses are frozen once
// the evaluation concludes; only an audited reset reopens it.
type Evaluation struct {
	ID          string
	BatchID     string
	SubjectRef  string
	Status      EvaluationStatus
	Responses   json.RawMessage
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (e *Evaluation) Validate() error {
	if strings.TrimSpace(e.BatchID) == "" {
		return fmt.Errorf("%w: batch id is required", ErrValidation)
	}
	if strings.TrimSpace(e.SubjectRef) == "" {
		return fmt.Errorf("%w: subject ref is required", ErrValidation)
	}
	if !e.Status.IsValid() {
		return fmt.Errorf("%w: invalid evaluation status %q", ErrValidation, e.Status)
	}
	return nil
}

// Open reports whether the evaluation still accepts response writes.
func (e *Evaluation) Open() bool {
	return e.Status == EvaluationStatusStarted
}
