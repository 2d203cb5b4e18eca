// Package workspace materializes source content on local disk so it can be
// added to the target tree.
package workspace

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kilupskalvis/tfsgit/internal/errpolicy"
	"github.com/kilupskalvis/tfsgit/internal/models"
	"github.com/kilupskalvis/tfsgit/internal/tfs"
)

// Workspace is the local checkout a projection reads content from.
type Workspace interface {
	// GetLocalPath maps a path relative to the workspace root to disk.
	GetLocalPath(path string) string
	// Get downloads the full tree at changesetID.
	Get(ctx context.Context, changesetID int) error
	// GetChanges downloads the items of the given changes.
	GetChanges(ctx context.Context, changes []models.RawChange, policy errpolicy.Policy) error
	// MatchesURLAndRepositoryPath reports whether the workspace root is path on url.
	MatchesURLAndRepositoryPath(url, path string) bool
}

// Dir is a workspace rooted at a local directory, mapping RepositoryPath on
// the server to Root. A multi-root workspace has no RepositoryPath; each of
// its SubtreePaths lands in Root/<last segment of the subtree path>, the
// layout the target tree uses for such remotes.
type Dir struct {
	Root           string
	URL            string
	RepositoryPath string
	SubtreePaths   []string
	Client         tfs.Client
	Logger         *slog.Logger
}

var _ Workspace = (*Dir)(nil)

// NewDir creates the directory if needed.
func NewDir(root, url, repositoryPath string, client tfs.Client, logger *slog.Logger) (*Dir, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create workspace directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dir{
		Root:           root,
		URL:            url,
		RepositoryPath: strings.TrimRight(repositoryPath, "/"),
		Client:         client,
		Logger:         logger,
	}, nil
}

// NewSubtreeDir creates a multi-root workspace over subtreePaths.
func NewSubtreeDir(root, url string, subtreePaths []string, client tfs.Client, logger *slog.Logger) (*Dir, error) {
	if len(subtreePaths) == 0 {
		return nil, fmt.Errorf("multi-root workspace needs at least one subtree path")
	}
	d, err := NewDir(root, url, "", client, logger)
	if err != nil {
		return nil, err
	}
	for _, p := range subtreePaths {
		d.SubtreePaths = append(d.SubtreePaths, strings.TrimRight(p, "/"))
	}
	return d, nil
}

// GetLocalPath implements Workspace.
func (d *Dir) GetLocalPath(path string) string {
	path = strings.TrimLeft(strings.ReplaceAll(path, `\`, "/"), "/")
	return filepath.Join(d.Root, filepath.FromSlash(path))
}

// MatchesURLAndRepositoryPath implements Workspace.
func (d *Dir) MatchesURLAndRepositoryPath(url, path string) bool {
	return strings.EqualFold(d.URL, url) && strings.EqualFold(d.RepositoryPath, strings.TrimRight(path, "/"))
}

// relative maps a server path to its path below Root.
func (d *Dir) relative(serverPath string) (string, bool) {
	if len(d.SubtreePaths) == 0 {
		return under(d.RepositoryPath, serverPath)
	}
	for _, subtree := range d.SubtreePaths {
		rest, ok := under(subtree, serverPath)
		if !ok {
			continue
		}
		name := subtree[strings.LastIndex(subtree, "/")+1:]
		if rest == "" {
			return name, true
		}
		return name + "/" + rest, true
	}
	return "", false
}

// roots returns the server paths the workspace covers.
func (d *Dir) roots() []string {
	if len(d.SubtreePaths) > 0 {
		return d.SubtreePaths
	}
	return []string{d.RepositoryPath}
}

func under(root, serverPath string) (string, bool) {
	if len(serverPath) < len(root) || !strings.EqualFold(serverPath[:len(root)], root) {
		return "", false
	}
	rest := serverPath[len(root):]
	if rest != "" && rest[0] != '/' {
		return "", false
	}
	return strings.TrimLeft(rest, "/"), true
}

// Get implements Workspace.
func (d *Dir) Get(ctx context.Context, changesetID int) error {
	for _, root := range d.roots() {
		items, err := d.Client.GetItems(ctx, root, changesetID, models.RecursionFull)
		if err != nil {
			return fmt.Errorf("list %s at %d: %w", root, changesetID, err)
		}
		for _, item := range items {
			if item.ItemType == models.ItemFolder || item.IsDeleted() {
				continue
			}
			if err := d.download(ctx, item.ServerItem, changesetID); err != nil {
				return err
			}
		}
	}
	return nil
}

// GetChanges implements Workspace.
func (d *Dir) GetChanges(ctx context.Context, changes []models.RawChange, policy errpolicy.Policy) error {
	for _, ch := range changes {
		err := errpolicy.Run(policy, func() error {
			return d.download(ctx, ch.ServerPath(), ch.Item.ChangesetID)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (d *Dir) download(ctx context.Context, serverPath string, changesetID int) error {
	rel, ok := d.relative(serverPath)
	if !ok {
		return fmt.Errorf("%s is outside workspace root %s", serverPath, strings.Join(d.roots(), ", "))
	}

	rc, err := d.Client.Download(ctx, serverPath, changesetID)
	if err != nil {
		return fmt.Errorf("download %s: %w", serverPath, err)
	}
	defer rc.Close()

	dst := d.GetLocalPath(rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create directory for %s: %w", rel, err)
	}
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", dst, err)
	}
	d.Logger.Debug("downloaded", "path", serverPath, "changeset", changesetID)
	return f.Close()
}
