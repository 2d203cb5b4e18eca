package tfs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/kilupskalvis/tfsgit/internal/models"
)

// MockClient is an in-memory Client for tests.
type MockClient struct {
	// Changesets stores changesets by id
	Changesets map[int]*models.Changeset
	// Items are the listed items; an item is visible at changeset N when its
	// ChangesetID is <= N
	Items []models.Item
	// Content stores file content by "serverPath@changesetID"
	Content map[string][]byte
	// Identities stores directory entries by user name
	Identities map[string]*models.Identity
	// Err can be set to make every method return an error
	Err error
	// IdentityErr is returned by GetIdentity when set
	IdentityErr error

	Downloads     []string
	ListingCalls  int
	IdentityCalls int
}

var _ Client = (*MockClient)(nil)

// NewMockClient creates an empty MockClient.
func NewMockClient() *MockClient {
	return &MockClient{
		Changesets: make(map[int]*models.Changeset),
		Content:    make(map[string][]byte),
		Identities: make(map[string]*models.Identity),
	}
}

func contentKey(serverPath string, changesetID int) string {
	return fmt.Sprintf("%s@%d", strings.ToLower(serverPath), changesetID)
}

// AddChangeset registers a changeset.
func (m *MockClient) AddChangeset(cs *models.Changeset) {
	m.Changesets[cs.ID] = cs
}

// AddFile registers a listed file and its content at version changesetID.
func (m *MockClient) AddFile(serverPath string, changesetID int, content string) {
	m.Items = append(m.Items, models.Item{
		ServerItem:  serverPath,
		ChangesetID: changesetID,
		ItemType:    models.ItemFile,
		ContentLen:  int64(len(content)),
	})
	m.Content[contentKey(serverPath, changesetID)] = []byte(content)
}

// SetContent registers content without listing the item.
func (m *MockClient) SetContent(serverPath string, changesetID int, content string) {
	m.Content[contentKey(serverPath, changesetID)] = []byte(content)
}

// GetChangeset returns a registered changeset.
func (m *MockClient) GetChangeset(ctx context.Context, id int) (*models.Changeset, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	cs, ok := m.Changesets[id]
	if !ok {
		return nil, fmt.Errorf("changeset %d: %w", id, ErrNotFound)
	}
	return cs, nil
}

// GetItems returns the latest version of each item under path visible at changesetID.
func (m *MockClient) GetItems(ctx context.Context, path string, changesetID int, recursion models.Recursion) ([]models.Item, error) {
	m.ListingCalls++
	if m.Err != nil {
		return nil, m.Err
	}
	root := strings.ToLower(strings.TrimRight(path, "/"))
	latest := make(map[string]models.Item)
	for _, item := range m.Items {
		if item.ChangesetID > changesetID {
			continue
		}
		p := strings.ToLower(item.ServerItem)
		if p != root && !strings.HasPrefix(p, root+"/") {
			continue
		}
		if recursion == models.RecursionNone && p != root {
			continue
		}
		if recursion == models.RecursionOneLevel && strings.Contains(strings.TrimPrefix(p, root+"/"), "/") {
			continue
		}
		if prev, ok := latest[p]; !ok || item.ChangesetID > prev.ChangesetID {
			latest[p] = item
		}
	}

	items := make([]models.Item, 0, len(latest))
	for _, item := range latest {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ServerItem < items[j].ServerItem })
	return items, nil
}

// Download returns registered content. Without an exact version match the
// newest content at or below changesetID is used.
func (m *MockClient) Download(ctx context.Context, serverPath string, changesetID int) (io.ReadCloser, error) {
	m.Downloads = append(m.Downloads, serverPath)
	if m.Err != nil {
		return nil, m.Err
	}
	for v := changesetID; v >= 0; v-- {
		if data, ok := m.Content[contentKey(serverPath, v)]; ok {
			return io.NopCloser(bytes.NewReader(data)), nil
		}
	}
	return nil, fmt.Errorf("%s@%d: %w", serverPath, changesetID, ErrNotFound)
}

// GetIdentity returns a registered identity.
func (m *MockClient) GetIdentity(ctx context.Context, name string) (*models.Identity, error) {
	m.IdentityCalls++
	if m.IdentityErr != nil {
		return nil, m.IdentityErr
	}
	if m.Err != nil {
		return nil, m.Err
	}
	id, ok := m.Identities[name]
	if !ok {
		return nil, fmt.Errorf("identity %s: %w", name, ErrNotFound)
	}
	return id, nil
}
