package domain

import (
	"fmt"
	"strings"
	"time"
)

// BatchStatus represents the lifecycle state of an assessment batch.
type BatchStatus string

const (
	BatchStatusDraft     BatchStatus = "DRAFT"
	BatchStatusActive    BatchStatus = "ACTIVE"
	BatchStatusConcluded BatchStatus = "CONCLUDED"
)

func (s BatchStatus) String() string { return string(s) }

func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchStatusDraft, BatchStatusActive, BatchStatusConcluded:
		return true
	}
	return false
}

func ParseBatchStatusFromString(s string) (BatchStatus, error) {
	st := BatchStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid batch status %q", ErrValidation, s)
	}
	return st, nil
}

// Batch groups the evaluations issued together for one client cohort.
// Counts are written exclusively by the aggregator.
type Batch struct {
	ID                  string
	ClientRef           string
	Status              BatchStatus
	TotalCount          int
	CompletedCount      int
	InactivatedCount    int
	ConcludedAt         *time.Time
	ScheduledAutoEmitAt *time.Time
	AutoEmitFlag        bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// BatchCounts is the evaluation aggregate read by the aggregator. Values are
// normalized to integers once at the repository boundary.
type BatchCounts struct {
	Total       int
	Completed   int
	Inactivated int
}

// Finalized is the number of evaluations no longer pending.
func (c BatchCounts) Finalized() int {
	return c.Completed + c.Inactivated
}

func (c BatchCounts) Validate() error {
	if c.Total < 0 || c.Completed < 0 || c.Inactivated < 0 {
		return fmt.Errorf("%w: negative evaluation count", ErrIntegrity)
	}
	if c.Finalized() > c.Total {
		return fmt.Errorf("%w: finalized count %d exceeds total %d", ErrIntegrity, c.Finalized(), c.Total)
	}
	return nil
}

// DeriveBatchStatus computes the authoritative status from evaluation counts.
// An empty batch never concludes.
func DeriveBatchStatus(c BatchCounts) BatchStatus {
	if c.Total == 0 {
		return BatchStatusDraft
	}
	if c.Finalized() == c.Total {
		return BatchStatusConcluded
	}
	return BatchStatusActive
}

func (b *Batch) Validate() error {
	if strings.TrimSpace(b.ClientRef) == "" {
		return fmt.Errorf("%w: client ref is required", ErrValidation)
	}
	if !b.Status.IsValid() {
		return fmt.Errorf("%w: invalid batch status %q", ErrValidation, b.Status)
	}
	return nil
}
