// Package core drives projections: it runs a sequence of source changesets
// through the projector, commits the results and records them.
package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/google/uuid"
	"github.com/kilupskalvis/tfsgit/internal/ancestry"
	"github.com/kilupskalvis/tfsgit/internal/authors"
	"github.com/kilupskalvis/tfsgit/internal/errpolicy"
	"github.com/kilupskalvis/tfsgit/internal/gittree"
	"github.com/kilupskalvis/tfsgit/internal/identity"
	"github.com/kilupskalvis/tfsgit/internal/models"
	"github.com/kilupskalvis/tfsgit/internal/projector"
	"github.com/kilupskalvis/tfsgit/internal/remote"
	"github.com/kilupskalvis/tfsgit/internal/store"
	"github.com/kilupskalvis/tfsgit/internal/tfs"
	"github.com/kilupskalvis/tfsgit/internal/workspace"
)

// RefPrefix is where remote branches are written.
const RefPrefix = "refs/remotes/tfs/"

// Deps are the long-lived collaborators of a fetch.
type Deps struct {
	Store      *store.Store
	Repo       *git.Repository
	Client     tfs.Client
	Workspace  workspace.Workspace
	Identities identity.Lookup // defaults to Client
	Authors    *authors.Mapping
	Ancestry   *ancestry.Store
	Logger     *slog.Logger
	// Retry wraps Client in a tfs.RetryClient when set.
	Retry *tfs.RetryConfig
}

// FetchOptions configures a fetch operation.
type FetchOptions struct {
	Remote       *remote.TfsRemote
	Changesets   []int // ascending
	CutPath      string
	CutPathForce bool
	// QuickClone copies the full tree of the first changeset instead of
	// applying its changes when the remote has nothing projected yet.
	QuickClone bool
	Policy     errpolicy.Policy // defaults to errpolicy.AbortAll
}

// FetchResult contains the outcome of a fetch operation.
type FetchResult struct {
	RunID    string
	Entries  []*models.LogEntry
	Skipped  int
	UpToDate bool
	Tip      string
	// OmittedParentBranch is set when the branch parent of the remote is
	// known but was never projected, so history starts without it.
	OmittedParentBranch string
}

// FetchProgress is called during fetch to report progress.
type FetchProgress func(phase string, current, total int)

// Fetch projects the given changesets onto the remote's ref, one commit per
// changeset, and records each in the store.
func Fetch(ctx context.Context, deps Deps, opts FetchOptions, progress FetchProgress) (*FetchResult, error) {
	if progress == nil {
		progress = func(string, int, int) {}
	}
	policy := opts.Policy
	if policy == nil {
		policy = errpolicy.AbortAll
	}
	rem := opts.Remote
	runID := uuid.NewString()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("run", runID, "remote", rem.ID())

	if deps.Retry != nil {
		deps.Client = tfs.NewRetryClient(deps.Client, deps.Retry)
	}

	result := &FetchResult{RunID: runID}
	tip, err := deps.Store.GetTip(rem.ID())
	if err != nil {
		return nil, fmt.Errorf("get tip: %w", err)
	}

	lastCommit := ""
	lastChangeset := 0
	if tip != nil {
		lastCommit = tip.CommitHash
		lastChangeset = tip.ChangesetID
	} else if deps.Ancestry != nil {
		lastCommit, err = branchParent(deps, rem, logger, result)
		if err != nil {
			return nil, err
		}
	}

	var pending []int
	for _, id := range opts.Changesets {
		if id <= lastChangeset {
			result.Skipped++
			continue
		}
		pending = append(pending, id)
	}
	if len(pending) == 0 {
		result.UpToDate = true
		result.Tip = lastCommit
		return result, nil
	}

	for i, id := range pending {
		progress("projecting changesets", i+1, len(pending))

		cs, err := deps.Client.GetChangeset(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get changeset %d: %w", id, err)
		}
		p := projector.New(cs, rem, projector.Options{
			Client:       deps.Client,
			Identities:   deps.Identities,
			Authors:      deps.Authors,
			CutPath:      opts.CutPath,
			CutPathForce: opts.CutPathForce,
			Reader:       gittree.NewReader(deps.Repo),
			Logger:       logger,
		})
		p.OmittedParentBranch = result.OmittedParentBranch

		base := plumbing.ZeroHash
		if lastCommit != "" {
			base = plumbing.NewHash(lastCommit)
		}
		builder, err := gittree.NewBuilder(deps.Repo, base)
		if err != nil {
			return nil, err
		}

		var entry *models.LogEntry
		if lastCommit == "" && opts.QuickClone {
			entry, err = p.CopyTree(ctx, builder, deps.Workspace)
		} else {
			entry, err = p.Apply(ctx, lastCommit, builder, deps.Workspace, models.NewTreeIndex(), policy)
		}
		if err != nil {
			return nil, fmt.Errorf("project changeset %d: %w", id, err)
		}
		if p.IsDeleteProjectChangeset {
			logger.Warn("changeset deletes the followed path", "changeset", id)
		}
		if p.IsRenameChangeset {
			logger.Info("changeset renames the branch", "changeset", id)
		}

		hash, err := commit(deps.Repo, builder, rem, entry, lastCommit)
		if err != nil {
			return nil, fmt.Errorf("commit changeset %d: %w", id, err)
		}

		err = deps.Store.RecordChangeset(rem.ID(), &models.ChangesetRecord{
			ChangesetID: entry.ChangesetID,
			CommitHash:  hash,
			AuthorName:  entry.AuthorName,
			AuthorEmail: entry.AuthorEmail,
			Message:     entry.Log,
			Date:        entry.Date,
		})
		if err != nil {
			return nil, fmt.Errorf("record changeset %d: %w", id, err)
		}
		logger.Debug("projected changeset", "changeset", entry.ChangesetID, "commit", hash)

		lastCommit = hash
		result.Entries = append(result.Entries, entry)
	}

	if err := deps.Store.SetValue(LastRunKey(rem.ID()), runID); err != nil {
		return nil, fmt.Errorf("record run: %w", err)
	}
	result.Tip = lastCommit
	return result, nil
}

// LastRunKey is the store key holding the id of the last fetch run that
// projected anything for remoteID.
func LastRunKey(remoteID string) string {
	return "last_run:" + remoteID
}

// branchParent returns the commit a new branch starts from according to the
// branch parents file, or "" when it starts from scratch.
func branchParent(deps Deps, rem *remote.TfsRemote, logger *slog.Logger, result *FetchResult) (string, error) {
	parent, ok := deps.Ancestry.FindBranchParent(rem.ID())
	if !ok {
		return "", nil
	}
	_, rec, err := deps.Store.FindChangeset(parent)
	if err != nil {
		return "", fmt.Errorf("find parent changeset %d: %w", parent, err)
	}
	if rec == nil {
		logger.Warn("parent changeset of branch was never fetched, history starts without it",
			"parent", parent)
		result.OmittedParentBranch = fmt.Sprintf("C%d", parent)
		return "", nil
	}
	logger.Info("branch starts from parent changeset", "parent", parent, "commit", rec.CommitHash)
	return rec.CommitHash, nil
}

// commit writes the commit of entry and moves the remote's ref to it.
func commit(repo *git.Repository, builder *gittree.Builder, rem *remote.TfsRemote, entry *models.LogEntry, parent string) (string, error) {
	var parents []plumbing.Hash
	if parent != "" {
		parents = append(parents, plumbing.NewHash(parent))
	}

	withID := *entry
	withID.Log = entry.Log + "\n" + trailer(rem, entry.ChangesetID) + "\n"
	hash, err := builder.Commit(&withID, parents...)
	if err != nil {
		return "", err
	}

	ref := plumbing.NewHashReference(plumbing.ReferenceName(RefPrefix+rem.ID()), hash)
	if err := repo.Storer.SetReference(ref); err != nil {
		return "", fmt.Errorf("update %s: %w", ref.Name(), err)
	}
	return hash.String(), nil
}

// trailer links a commit back to its source changeset.
func trailer(rem *remote.TfsRemote, changesetID int) string {
	path := rem.RepositoryPath()
	if path == "" && len(rem.SubtreePaths()) > 0 {
		path = rem.SubtreePaths()[0]
	}
	return fmt.Sprintf("tfsgit-id: [%s]%s;C%d", rem.URL(), path, changesetID)
}
