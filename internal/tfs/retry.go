package tfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/kilupskalvis/tfsgit/internal/models"
)

// RetryConfig controls how often a failed server call is repeated. TFS
// application tiers behind a load balancer drop connections and answer 503
// during app pool recycles; a fetch should ride those out.
type RetryConfig struct {
	// MaxRetries is the number of repeats after the first call.
	MaxRetries int
	// InitialBackoff is the wait before the first repeat; it doubles after
	// every failure up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Jitter spreads each wait by up to this fraction in either direction.
	Jitter float64
}

// DefaultRetryConfig returns the settings used by fetch.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:     4,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		Jitter:         0.2,
	}
}

// RetryClient repeats calls to the wrapped Client that failed for transient
// reasons. Missing changesets, items and identities are reported at once.
type RetryClient struct {
	inner Client
	cfg   RetryConfig
}

var _ Client = (*RetryClient)(nil)

// NewRetryClient wraps inner. A nil cfg means DefaultRetryConfig.
func NewRetryClient(inner Client, cfg *RetryConfig) *RetryClient {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	return &RetryClient{inner: inner, cfg: *cfg}
}

// isTransient reports whether a failed call may succeed when repeated.
func isTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrNotFound),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	var se *ServerError
	if errors.As(err, &se) {
		switch se.Status {
		case http.StatusRequestTimeout, http.StatusTooManyRequests:
			return true
		}
		return se.Status >= 500
	}
	// connection level failures
	return true
}

// backoff returns the wait before repeat number attempt (0-based).
func (rc *RetryClient) backoff(attempt int) time.Duration {
	d := rc.cfg.InitialBackoff
	for i := 0; i < attempt && d < rc.cfg.MaxBackoff; i++ {
		d *= 2
	}
	if d > rc.cfg.MaxBackoff {
		d = rc.cfg.MaxBackoff
	}
	if rc.cfg.Jitter > 0 {
		d += time.Duration(float64(d) * rc.cfg.Jitter * (2*rand.Float64() - 1))
	}
	if d < 0 {
		return 0
	}
	return d
}

// do calls fn until it succeeds, fails permanently, or runs out of repeats.
func (rc *RetryClient) do(ctx context.Context, call string, fn func() error) error {
	err := fn()
	for attempt := 0; attempt < rc.cfg.MaxRetries && isTransient(err); attempt++ {
		t := time.NewTimer(rc.backoff(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%s: interrupted while waiting to retry: %w", call, err)
		case <-t.C:
		}
		err = fn()
	}
	if err != nil && isTransient(err) {
		return fmt.Errorf("%s failed after %d attempts: %w", call, rc.cfg.MaxRetries+1, err)
	}
	return err
}

// GetChangeset implements Client.
func (rc *RetryClient) GetChangeset(ctx context.Context, id int) (*models.Changeset, error) {
	var cs *models.Changeset
	err := rc.do(ctx, fmt.Sprintf("get changeset C%d", id), func() (err error) {
		cs, err = rc.inner.GetChangeset(ctx, id)
		return err
	})
	return cs, err
}

// GetItems implements Client.
func (rc *RetryClient) GetItems(ctx context.Context, path string, changesetID int, recursion models.Recursion) ([]models.Item, error) {
	var items []models.Item
	err := rc.do(ctx, fmt.Sprintf("list %s at C%d", path, changesetID), func() (err error) {
		items, err = rc.inner.GetItems(ctx, path, changesetID, recursion)
		return err
	})
	return items, err
}

// Download implements Client. Only opening the stream is repeated; a
// failure while reading it is the caller's.
func (rc *RetryClient) Download(ctx context.Context, serverPath string, changesetID int) (io.ReadCloser, error) {
	var body io.ReadCloser
	err := rc.do(ctx, fmt.Sprintf("download %s;C%d", serverPath, changesetID), func() (err error) {
		body, err = rc.inner.Download(ctx, serverPath, changesetID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// GetIdentity implements Client.
func (rc *RetryClient) GetIdentity(ctx context.Context, name string) (*models.Identity, error) {
	var id *models.Identity
	err := rc.do(ctx, "look up identity "+name, func() (err error) {
		id, err = rc.inner.GetIdentity(ctx, name)
		return err
	})
	return id, err
}
