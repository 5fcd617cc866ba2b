package domain

import (
	"fmt"
	"strings"
	"time"
)

// QueueStatus represents the processing state of an emission work item.
type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "PENDING"
	QueueStatusProcessing QueueStatus = "PROCESSING"
	QueueStatusDone       QueueStatus = "DONE"
	QueueStatusFailed     QueueStatus = "FAILED"
)

func (s QueueStatus) String() string { return string(s) }

func (s QueueStatus) IsValid() bool {
	switch s {
	case QueueStatusPending, QueueStatusProcessing, QueueStatusDone, QueueStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the item no longer counts against the
// one-in-flight-per-batch constraint.
func (s QueueStatus) Terminal() bool {
	return s == QueueStatusDone || s == QueueStatusFailed
}

// Priority orders pending emission work.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityNormal Priority = "NORMAL"
	PriorityLow    Priority = "LOW"
)

func (p Priority) String() string { return string(p) }

func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

func ParsePriorityFromString(s string) (Priority, error) {
	pr := Priority(strings.ToUpper(strings.TrimSpace(s)))
	if !pr.IsValid() {
		return "", fmt.Errorf("%w: invalid priority %q", ErrValidation, s)
	}
	return pr, nil
}

// Rank maps priority to a sortable weight; higher runs first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// EmissionQueueItem is one unit of emission work for a batch. At most one
// non-terminal item exists per batch, enforced by a partial unique index.
type EmissionQueueItem struct {
	ID            string
	BatchID       string
	Status        QueueStatus
	Priority      Priority
	Attempts      int
	LastError     *string
	NextAttemptAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (i *EmissionQueueItem) Validate() error {
	if strings.TrimSpace(i.BatchID) == "" {
		return fmt.Errorf("%w: batch id is required", ErrValidation)
	}
	if !i.Status.IsValid() {
		return fmt.Errorf("%w: invalid queue status %q", ErrValidation, i.Status)
	}
	if !i.Priority.IsValid() {
		return fmt.Errorf("%w: invalid priority %q", ErrValidation, i.Priority)
	}
	return nil
}
