package objectstore

import (
	"context"
	"fmt"
	"strings"
)

// PutResult is the remote store's receipt for an uploaded object. Checksum
// is the store's own SHA-256 of what it persisted; the dispatcher compares
// it against the report's content hash before finalizing delivery.
type PutResult struct {
	URL      string
	Checksum string
}

func (r PutResult) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return fmt.Errorf("object store returned no url")
	}
	if strings.TrimSpace(r.Checksum) == "" {
		return fmt.Errorf("object store returned no checksum")
	}
	return nil
}

// ObjectStore is the outbound durable-storage port for report artifacts.
type ObjectStore interface {
	Put(ctx context.Context, key string, blob []byte) (*PutResult, error)
}
