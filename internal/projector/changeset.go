// Package projector turns one source changeset into mutations of a target
// tree plus the commit metadata describing it.
package projector

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/kilupskalvis/tfsgit/internal/authors"
	"github.com/kilupskalvis/tfsgit/internal/errpolicy"
	"github.com/kilupskalvis/tfsgit/internal/gittree"
	"github.com/kilupskalvis/tfsgit/internal/identity"
	"github.com/kilupskalvis/tfsgit/internal/models"
	"github.com/kilupskalvis/tfsgit/internal/pathresolve"
	"github.com/kilupskalvis/tfsgit/internal/sieve"
	"github.com/kilupskalvis/tfsgit/internal/tfs"
	"github.com/kilupskalvis/tfsgit/internal/workspace"
)

const (
	// UnknownName and UnknownEmail replace blank commit identities so git
	// never falls back to the local user.name / user.email.
	UnknownName  = "Unknown TFS user"
	UnknownEmail = "unknown@tfs.local"

	progressInterval = 30 * time.Second
)

// Remote is the remote a changeset is projected for.
type Remote interface {
	pathresolve.Remote
	ID() string
	URL() string
	RepositoryPath() string
	SubtreePaths() []string
	Prefix() string
}

// TreeReader fills an index with the entries of a committed tree.
type TreeReader interface {
	GetObjects(commit string, into *models.TreeIndex) error
}

// Options carry the collaborators of a projection.
type Options struct {
	Client       tfs.Client
	Identities   identity.Lookup // defaults to Client
	Authors      *authors.Mapping
	CutPath      string
	CutPathForce bool
	Classifier   sieve.Factory // defaults to sieve.New
	Reader       TreeReader
	Logger       *slog.Logger
	Now          func() time.Time
}

// TreeEntry is a listed source item together with its target path.
type TreeEntry struct {
	GitPath string
	Item    models.Item
}

// Changeset projects a single source changeset.
type Changeset struct {
	cs     *models.Changeset
	remote Remote
	opts   Options
	logger *slog.Logger

	// OmittedParentBranch names the parent branch left out when the branch
	// this changeset starts was created without its parent.
	OmittedParentBranch string
	// IsRenameChangeset is set by Apply when the changeset renames the branch root.
	IsRenameChangeset bool
	// IsDeleteProjectChangeset is set by Apply when the changeset deletes the followed root.
	IsDeleteProjectChangeset bool
}

// New creates a projection of cs for remote.
func New(cs *models.Changeset, remote Remote, opts Options) *Changeset {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Classifier == nil {
		opts.Classifier = sieve.New
	}
	if opts.Identities == nil && opts.Client != nil {
		opts.Identities = opts.Client
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Changeset{
		cs:     cs,
		remote: remote,
		opts:   opts,
		logger: opts.Logger.With("changeset", cs.ID),
	}
}

// ID returns the source changeset id.
func (c *Changeset) ID() int {
	return c.cs.ID
}

// BaseChangesetID is the changeset assumed to precede this one.
func (c *Changeset) BaseChangesetID() int {
	return c.cs.BaseChangesetID()
}

// IsMergeChangeset reports whether any change carries the merge flag.
func (c *Changeset) IsMergeChangeset() bool {
	for _, ch := range c.cs.Changes {
		if ch.ChangeType.IncludesOneOf(models.ChangeMerge) {
			return true
		}
	}
	return false
}

// IsBranchChangeset reports whether any change is exactly a branch.
func (c *Changeset) IsBranchChangeset() bool {
	for _, ch := range c.cs.Changes {
		if ch.ChangeType == models.ChangeBranch {
			return true
		}
	}
	return false
}

// Apply applies the changeset on top of lastCommit. An empty lastCommit
// means there is no previous tree, and every applicable change is
// materialized. initial is filled from lastCommit when empty and grows as
// paths are resolved. Failures of single changes go through policy.
func (c *Changeset) Apply(ctx context.Context, lastCommit string, tree gittree.TreeModifier, ws workspace.Workspace, initial *models.TreeIndex, policy errpolicy.Policy) (*models.LogEntry, error) {
	if initial.Empty() && lastCommit != "" && c.opts.Reader != nil {
		if err := c.opts.Reader.GetObjects(lastCommit, initial); err != nil {
			return nil, fmt.Errorf("read tree of %s: %w", lastCommit, err)
		}
	}

	resolver := pathresolve.New(c.remote, initial, pathresolve.Options{
		CutPath:      c.opts.CutPath,
		CutPathForce: c.opts.CutPathForce,
		RelativePath: c.pathRelativeToWorkspace(ws),
		Logger:       c.logger,
	})
	classified, err := c.opts.Classifier(c.cs, resolver)
	if err != nil {
		return nil, err
	}
	if classified.RenamesBranch() {
		c.IsRenameChangeset = true
	}
	if classified.DeletesProject() {
		c.IsDeleteProjectChangeset = true
	}

	if err := ws.GetChanges(ctx, classified.ChangesToFetch(), policy); err != nil {
		return nil, fmt.Errorf("fetch changes of %d: %w", c.cs.ID, err)
	}

	force := lastCommit == ""
	for _, change := range classified.ChangesToApply(force) {
		err := errpolicy.Run(policy, func() error {
			return c.apply(change, tree, ws, initial)
		})
		if err != nil {
			return nil, err
		}
	}
	return c.MakeNewLogEntry(ctx), nil
}

func (c *Changeset) apply(change models.ApplicableChange, tree gittree.TreeModifier, ws workspace.Workspace, initial *models.TreeIndex) error {
	switch change.Kind {
	case models.ApplyUpdate:
		return c.update(change, tree, ws)
	case models.ApplyDelete:
		return c.delete(change.GitPath, tree, initial)
	default:
		return fmt.Errorf("unsupported change kind %s for %s", change.Kind, change.GitPath)
	}
}

func (c *Changeset) update(change models.ApplicableChange, tree gittree.TreeModifier, ws workspace.Workspace) error {
	// the cut prefix was stripped on resolution, the checkout still has it
	tfsPath := change.GitPath
	if c.opts.CutPath != "" {
		tfsPath = c.opts.CutPath + "/" + tfsPath
	}
	localPath := ws.GetLocalPath(tfsPath)
	if fileExists(localPath) {
		return tree.Add(change.GitPath, localPath, change.Mode)
	}

	tfsPath = change.GitPath
	localPath = ws.GetLocalPath(tfsPath)
	if fileExists(localPath) {
		return tree.Add(change.GitPath, localPath, change.Mode)
	}
	c.logger.Info("cannot checkout file from source, skipping", "path", tfsPath)
	return nil
}

func (c *Changeset) delete(gitPath string, tree gittree.TreeModifier, initial *models.TreeIndex) error {
	obj, ok := initial.Get(gitPath)
	if !ok {
		return nil
	}
	if err := tree.Remove(obj.Path); err != nil {
		return err
	}
	c.logger.Debug("D " + gitPath)
	return nil
}

func (c *Changeset) pathRelativeToWorkspace(ws workspace.Workspace) string {
	if ws.MatchesURLAndRepositoryPath(c.remote.URL(), c.remote.RepositoryPath()) {
		return ""
	}
	if c.remote.RepositoryPath() == "" {
		return ""
	}
	return c.remote.Prefix()
}

// GetFullTree lists every item under the followed path, or the union of the
// subtree paths, at this changeset, with the items the remote does not map
// left out.
func (c *Changeset) GetFullTree(ctx context.Context) ([]TreeEntry, error) {
	resolver := pathresolve.New(c.remote, models.NewTreeIndex(), pathresolve.Options{
		CutPath:      c.opts.CutPath,
		CutPathForce: c.opts.CutPathForce,
		Logger:       c.logger,
	})

	var items []models.Item
	if root := c.remote.RepositoryPath(); root != "" {
		listed, err := c.opts.Client.GetItems(ctx, root, c.cs.ID, models.RecursionFull)
		if err != nil {
			return nil, fmt.Errorf("list %s at %d: %w", root, c.cs.ID, err)
		}
		items = listed
	} else {
		for _, root := range c.remote.SubtreePaths() {
			listed, err := c.opts.Client.GetItems(ctx, root, c.cs.ID, models.RecursionFull)
			if err != nil {
				return nil, fmt.Errorf("list %s at %d: %w", root, c.cs.ID, err)
			}
			items = append(items, listed...)
		}
	}

	entries := make([]TreeEntry, 0, len(items))
	for _, item := range items {
		gitPath, ok, err := resolver.GetPathInGitRepo(item.ServerItem)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		entries = append(entries, TreeEntry{GitPath: gitPath, Item: item})
	}
	return entries, nil
}

// GetTree is GetFullTree restricted to files the remote does not ignore.
func (c *Changeset) GetTree(ctx context.Context) ([]TreeEntry, error) {
	full, err := c.GetFullTree(ctx)
	if err != nil {
		return nil, err
	}
	var files []TreeEntry
	for _, e := range full {
		if e.Item.ItemType == models.ItemFile && !c.remote.ShouldSkip(e.GitPath) {
			files = append(files, e)
		}
	}
	return files, nil
}

// CopyTree writes the complete tree at this changeset into tree. The log
// entry describes the newest changeset whose content was copied, which can
// be older than this one.
func (c *Changeset) CopyTree(ctx context.Context, tree gittree.TreeModifier, ws workspace.Workspace) (*models.LogEntry, error) {
	entries, err := c.GetTree(ctx)
	if err != nil {
		return nil, err
	}

	maxChangesetID := 0
	if len(entries) == 0 {
		maxChangesetID = c.cs.ID
	} else {
		if err := ws.Get(ctx, c.cs.ID); err != nil {
			return nil, fmt.Errorf("get workspace at %d: %w", c.cs.ID, err)
		}

		start := c.opts.Now()
		copied := 0
		root := c.remote.RepositoryPath()
		for _, e := range entries {
			tfsPath := e.GitPath
			if root != "" && strings.HasPrefix(e.Item.ServerItem, root) {
				tfsPath = e.Item.ServerItem[len(root):]
			}
			tfsPath = strings.TrimLeft(tfsPath, "/")

			if !e.Item.IsDeleted() {
				if err := tree.Add(e.GitPath, ws.GetLocalPath(tfsPath), models.ModeRegular); err != nil {
					return nil, fmt.Errorf("add %s: %w", e.GitPath, err)
				}
			}
			if e.Item.ChangesetID > maxChangesetID {
				maxChangesetID = e.Item.ChangesetID
			}

			copied++
			if now := c.opts.Now(); now.Sub(start) > progressInterval {
				c.logger.Info(humanize.Comma(int64(copied)) + " objects created...")
				start = now
			}
		}
	}

	if maxChangesetID == c.cs.ID {
		return c.MakeNewLogEntry(ctx), nil
	}
	effective, err := c.opts.Client.GetChangeset(ctx, maxChangesetID)
	if err != nil {
		return nil, fmt.Errorf("load changeset %d: %w", maxChangesetID, err)
	}
	return c.makeLogEntry(ctx, effective), nil
}

// MakeNewLogEntry builds the commit metadata of this changeset.
func (c *Changeset) MakeNewLogEntry(ctx context.Context) *models.LogEntry {
	return c.makeLogEntry(ctx, c.cs)
}

func (c *Changeset) makeLogEntry(ctx context.Context, cs *models.Changeset) *models.LogEntry {
	name, email := c.resolveCommitter(ctx, cs.Committer)
	return &models.LogEntry{
		Date:           cs.CreationDate,
		Log:            cs.Comment + "\n",
		ChangesetID:    cs.ID,
		AuthorName:     name,
		AuthorEmail:    email,
		CommitterName:  name,
		CommitterEmail: email,
		RemoteID:       c.remote.ID(),
	}
}

// resolveCommitter picks the git identity of a committer: the authors file,
// then the directory, then the DOMAIN\user convention, then the raw string.
func (c *Changeset) resolveCommitter(ctx context.Context, committer string) (string, string) {
	name, email := committer, committer

	if author, ok := c.opts.Authors.Lookup(committer); ok {
		name, email = author.Name, author.Email
	} else if id := c.lookupIdentity(ctx, committer); id != nil {
		// deleted accounts come back with blank fields
		if strings.TrimSpace(id.DisplayName) != "" {
			name = id.DisplayName
		}
		if strings.TrimSpace(id.MailAddress) != "" {
			email = id.MailAddress
		}
	} else if strings.TrimSpace(committer) != "" {
		if parts := strings.Split(committer, `\`); len(parts) == 2 {
			name = strings.ToLower(parts[1])
			email = fmt.Sprintf("%s@%s.tfs.local", name, strings.ToLower(parts[0]))
		}
	}

	if strings.TrimSpace(name) == "" {
		name = UnknownName
	}
	if strings.TrimSpace(email) == "" {
		email = UnknownEmail
	}
	return name, email
}

func (c *Changeset) lookupIdentity(ctx context.Context, committer string) *models.Identity {
	if c.opts.Identities == nil {
		return nil
	}
	id, err := c.opts.Identities.GetIdentity(ctx, committer)
	if err != nil {
		c.logger.Debug("identity lookup failed", "committer", committer, "error", err)
		return nil
	}
	return id
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
