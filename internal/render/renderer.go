package render

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// BatchAggregates is the input handed to the rendering engine: the batch's
// evaluation aggregate at emission time. The engine is an opaque function
// from aggregates to a binary document.
type BatchAggregates struct {
	BatchID     string    `json:"batchId"`
	ClientRef   string    `json:"clientRef"`
	Total       int       `json:"total"`
	Completed   int       `json:"completed"`
	Inactivated int       `json:"inactivated"`
	ConcludedAt time.Time `json:"concludedAt"`
}

func (a BatchAggregates) Validate() error {
	if strings.TrimSpace(a.BatchID) == "" {
		return fmt.Errorf("batch id is required")
	}
	if a.Total <= 0 {
		return fmt.Errorf("total must be positive")
	}
	return nil
}

// Renderer is the outbound rendering-engine port.
type Renderer interface {
	Render(ctx context.Context, aggregates BatchAggregates) ([]byte, error)
}
