package domain

import (
	"fmt"
	"strings"
	"time"
)

// ReportStatus represents the lifecycle state of a batch report.
type ReportStatus string

const (
	ReportStatusDraft     ReportStatus = "DRAFT"
	ReportStatusEmitted   ReportStatus = "EMITTED"
	ReportStatusDelivered ReportStatus = "DELIVERED"
)

func (s ReportStatus) String() string { return string(s) }

func (s ReportStatus) IsValid() bool {
	switch s {
	case ReportStatusDraft, ReportStatusEmitted, ReportStatusDelivered:
		return true
	}
	return false
}

func ParseReportStatusFromString(s string) (ReportStatus, error) {
	st := ReportStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid report status %q", ErrValidation, s)
	}
	return st, nil
}

// reportTransitions is the single allowed-transition table for reports.
// Status only ever moves forward: draft -> emitted -> delivered.
var reportTransitions = map[ReportStatus][]ReportStatus{
	ReportStatusDraft:     {ReportStatusEmitted},
	ReportStatusEmitted:   {ReportStatusDelivered},
	ReportStatusDelivered: {},
}

// CanTransition reports whether a report may move from one status to another.
func (s ReportStatus) CanTransition(to ReportStatus) bool {
	for _, allowed := range reportTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Finalized reports whether content fields are frozen.
func (s ReportStatus) Finalized() bool {
	return s == ReportStatusEmitted || s == ReportStatusDelivered
}

// Report is the authoritative document generated for a batch. It shares the
// batch's id (refinement table, not an independently keyed row).
type Report struct {
	ID          string
	Status      ReportStatus
	ContentHash string
	EmittedAt   *time.Time
	SentAt      *time.Time
	RemoteURL   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ContentHashLength is the hex length of the SHA-256 content digest.
const ContentHashLength = 64

func (r *Report) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: report id is required", ErrValidation)
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("%w: invalid report status %q", ErrValidation, r.Status)
	}
	if r.Status.Finalized() {
		if len(r.ContentHash) != ContentHashLength {
			return fmt.Errorf("%w: finalized report %s is missing its content hash", ErrIntegrity, r.ID)
		}
		if r.EmittedAt == nil {
			return fmt.Errorf("%w: finalized report %s is missing its emission time", ErrIntegrity, r.ID)
		}
	}
	return nil
}
