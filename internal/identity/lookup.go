// Package identity looks up display names and mail addresses of source users
// in a directory.
package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/kilupskalvis/tfsgit/internal/models"
)

// ErrNoIdentity is returned when the directory has no entry for a user.
var ErrNoIdentity = errors.New("no identity")

// Lookup resolves a raw committer string to a directory identity.
type Lookup interface {
	GetIdentity(ctx context.Context, committer string) (*models.Identity, error)
}

// Chain tries each lookup in order and returns the first identity found.
type Chain []Lookup

// GetIdentity implements Lookup.
func (c Chain) GetIdentity(ctx context.Context, committer string) (*models.Identity, error) {
	var lastErr error = ErrNoIdentity
	for _, l := range c {
		if l == nil {
			continue
		}
		id, err := l.GetIdentity(ctx, committer)
		if err == nil && id != nil {
			return id, nil
		}
		if err != nil {
			lastErr = err
		}
	}
	return nil, lastErr
}

// AccountName strips the domain from `DOMAIN\user`.
func AccountName(committer string) string {
	if i := strings.LastIndex(committer, `\`); i >= 0 {
		return committer[i+1:]
	}
	return committer
}
