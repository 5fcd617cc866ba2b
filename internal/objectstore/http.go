package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultUploadTimeout = 30 * time.Second

type putResponse struct {
	URL      string `json:"url"`
	Checksum string `json:"checksum"`
}

// StoreError classifies upload failures as transient/permanent.
type StoreError struct {
	StatusCode int
	Message    string
	Transient  bool
	Cause      error
}

func (e *StoreError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, "object store error")

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *StoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsTransient reports whether an upload failure should be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Transient
	}

	return false
}

// HTTPStore uploads artifacts to a remote object store over HTTP. The store
// responds with the retrieval URL and its own checksum of the stored bytes.
type HTTPStore struct {
	client  *resty.Client
	baseURL string
}

func NewHTTPStore(baseURL string, timeout time.Duration) (*HTTPStore, error) {
	client := resty.New()
	if timeout <= 0 {
		timeout = defaultUploadTimeout
	}
	client.SetTimeout(timeout)
	client.SetRetryCount(0)

	return NewHTTPStoreWithClient(baseURL, client)
}

func NewHTTPStoreWithClient(baseURL string, client *resty.Client) (*HTTPStore, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("object store url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid object store url: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	return &HTTPStore{
		client:  client,
		baseURL: trimmed,
	}, nil
}

func (s *HTTPStore) Put(ctx context.Context, key string, blob []byte) (*PutResult, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("object store is not initialized")
	}
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("object key is required")
	}
	if len(blob) == 0 {
		return nil, fmt.Errorf("blob is empty")
	}

	var parsed putResponse
	response, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(blob).
		SetResult(&parsed).
		Put(fmt.Sprintf("%s/%s", s.baseURL, key))
	if err != nil {
		return nil, &StoreError{
			Message:   "upload request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	statusCode := response.StatusCode()
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return nil, &StoreError{
			StatusCode: statusCode,
			Message:    fmt.Sprintf("object store returned status %d", statusCode),
			Transient:  statusCode == http.StatusTooManyRequests || statusCode >= http.StatusInternalServerError,
		}
	}

	result := &PutResult{
		URL:      strings.TrimSpace(parsed.URL),
		Checksum: strings.TrimSpace(parsed.Checksum),
	}
	if err := result.Validate(); err != nil {
		return nil, &StoreError{
			StatusCode: statusCode,
			Message:    err.Error(),
		}
	}
	return result, nil
}
