// Package tfs defines the client contract for the source version control
// server: history queries, item listings, content download and identity
// lookup.
package tfs

import (
	"context"
	"errors"
	"io"

	"github.com/kilupskalvis/tfsgit/internal/models"
)

// ErrNotFound is returned when a changeset, item or identity does not exist.
var ErrNotFound = errors.New("not found")

// Client is the source server API consumed by the bridge.
type Client interface {
	// GetChangeset returns the changeset with the given id.
	GetChangeset(ctx context.Context, id int) (*models.Changeset, error)

	// GetItems lists items under path as of changesetID.
	GetItems(ctx context.Context, path string, changesetID int, recursion models.Recursion) ([]models.Item, error)

	// Download returns the content of serverPath at changesetID.
	Download(ctx context.Context, serverPath string, changesetID int) (io.ReadCloser, error)

	// GetIdentity looks up a user in the server's directory.
	GetIdentity(ctx context.Context, name string) (*models.Identity, error)
}

// ServerError is an error response from the server.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}
