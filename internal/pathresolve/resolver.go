// Package pathresolve maps source server paths onto target tree paths and
// grows the target tree index on demand as paths are resolved.
package pathresolve

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/kilupskalvis/tfsgit/internal/errpolicy"
	"github.com/kilupskalvis/tfsgit/internal/models"
)

// Remote is the remote-specific projection consumed by the resolver.
type Remote interface {
	// PathInGitRepo returns the repository-relative form of serverPath, or
	// false when the path is not followed by the remote.
	PathInGitRepo(serverPath string) (string, bool)
	// ShouldSkip reports whether a repository path is excluded.
	ShouldSkip(gitPath string) bool
}

// Options configure path cutting and relocation.
type Options struct {
	CutPath      string
	CutPathForce bool
	RelativePath string // prepended to every resolved path
	Logger       *slog.Logger
}

// Resolver resolves server paths against a tree index it mutates in place.
// A Resolver and its index belong to one projection at a time.
type Resolver struct {
	remote Remote
	opts   Options
	tree   *models.TreeIndex
	logger *slog.Logger
}

// New creates a resolver writing into tree.
func New(remote Remote, tree *models.TreeIndex, opts Options) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opts.RelativePath = strings.Trim(opts.RelativePath, "/")
	return &Resolver{remote: remote, opts: opts, tree: tree, logger: logger}
}

// Tree returns the index the resolver writes into.
func (r *Resolver) Tree() *models.TreeIndex {
	return r.tree
}

// RepoRelative returns the remote projection of serverPath before cutting
// and relocation.
func (r *Resolver) RepoRelative(serverPath string) (string, bool) {
	return r.remote.PathInGitRepo(serverPath)
}

// GetPathInGitRepo returns the resolved target path of serverPath.
func (r *Resolver) GetPathInGitRepo(serverPath string) (string, bool, error) {
	obj, err := r.GetGitObject(serverPath)
	if err != nil || obj == nil {
		return "", false, err
	}
	return obj.Path, true, nil
}

// GetGitObject resolves serverPath to its tree entry, creating entries for
// the path and its parent directories as needed. It returns nil when the
// remote does not follow the path.
func (r *Resolver) GetGitObject(serverPath string) (*models.GitObject, error) {
	p, ok := r.remote.PathInGitRepo(serverPath)
	if !ok {
		return nil, nil
	}

	if cut := r.opts.CutPath; cut != "" {
		if !strings.HasPrefix(p, cut) && p != "" {
			if !r.opts.CutPathForce {
				return nil, errpolicy.Configuration(
					fmt.Errorf("found path that does not start with '%s' and cannot be rebased to the root of the repository: '%s'", cut, p),
					"Reconsider the use of the cut-path option",
					"Set cut_path_force to log warnings in such cases instead of failing, leaving the path of such files untouched",
				)
			}
			r.logger.Warn("found path that does not start with the cut path and cannot be rebased to the root of the repository",
				"path", p, "cut_path", cut)
		}
		if strings.HasPrefix(p, cut+"/") || p == cut {
			p = p[len(cut):]
		}
		p = strings.TrimLeft(p, "/")
	}

	if r.opts.RelativePath != "" {
		if p == "" {
			p = r.opts.RelativePath
		} else {
			p = r.opts.RelativePath + "/" + p
		}
	}
	return r.Lookup(p), nil
}

// ShouldIncludeGitItem reports whether a resolved path is kept by the remote.
func (r *Resolver) ShouldIncludeGitItem(gitPath string) bool {
	return gitPath != "" && !r.remote.ShouldSkip(gitPath)
}

// Contains reports whether gitPath is an existing embedded-commit boundary.
func (r *Resolver) Contains(gitPath string) bool {
	obj, ok := r.tree.Get(gitPath)
	return ok && obj.IsEmbeddedCommit()
}

// Lookup returns the entry for p, registering it and its parent directories
// when missing. The same entry is returned for every later lookup of p.
func (r *Resolver) Lookup(p string) *models.GitObject {
	if obj, ok := r.tree.Get(p); ok {
		return obj
	}

	full := p
	if i := strings.LastIndexAny(p, `/\`); i >= 0 && i < len(p)-1 {
		full = r.Lookup(p[:i]).Path + "/" + p[i+1:]
	}
	obj := &models.GitObject{Path: full}
	r.tree.Put(obj)
	return obj
}
