package domain

import (
	"errors"
	"testing"
)

func TestParseBatchStatusFromString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    BatchStatus
		wantErr bool
	}{
		{name: "valid uppercase", input: "CONCLUDED", want: BatchStatusConcluded},
		{name: "valid lowercase with spaces", input: " active ", want: BatchStatusActive},
		{name: "invalid", input: "finished", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseBatchStatusFromString(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("ParseBatchStatusFromString() error = %v, want ErrValidation", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("ParseBatchStatusFromString() unexpected error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("ParseBatchStatusFromString() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDeriveBatchStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		counts BatchCounts
		want   BatchStatus
	}{
		{name: "empty batch stays draft", counts: BatchCounts{}, want: BatchStatusDraft},
		{name: "pending evaluations keep it active", counts: BatchCounts{Total: 5, Completed: 2}, want: BatchStatusActive},
		{name: "all completed concludes", counts: BatchCounts{Total: 5, Completed: 5}, want: BatchStatusConcluded},
		{name: "completed plus inactivated concludes", counts: BatchCounts{Total: 5, Completed: 3, Inactivated: 2}, want: BatchStatusConcluded},
		{name: "all inactivated concludes", counts: BatchCounts{Total: 3, Inactivated: 3}, want: BatchStatusConcluded},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := DeriveBatchStatus(tt.counts); got != tt.want {
				t.Fatalf("DeriveBatchStatus(%+v) = %s, want %s", tt.counts, got, tt.want)
			}
		})
	}
}

func TestBatchCountsValidate(t *testing.T) {
	t.Parallel()

	if err := (BatchCounts{Total: 5, Completed: 3, Inactivated: 2}).Validate(); err != nil {
		t.Fatalf("Validate() unexpected error = %v", err)
	}

	err := (BatchCounts{Total: 3, Completed: 3, Inactivated: 1}).Validate()
	if !errors.Is(err, ErrIntegrity) {
		t.Fatalf("Validate() error = %v, want ErrIntegrity when finalized exceeds total", err)
	}

	err = (BatchCounts{Total: -1}).Validate()
	if !errors.Is(err, ErrIntegrity) {
		t.Fatalf("Validate() error = %v, want ErrIntegrity for negative counts", err)
	}
}

func TestBatchValidate(t *testing.T) {
	t.Parallel()

	b := Batch{ID: "b1", ClientRef: "acme", Status: BatchStatusActive}
	if err := b.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error = %v", err)
	}

	b.ClientRef = "  "
	if err := b.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("Validate() error = %v, want ErrValidation for blank client ref", err)
	}
}
