// Package remote describes which part of the source server a target branch
// follows and how server paths map into the branch's tree.
package remote

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kilupskalvis/tfsgit/internal/errpolicy"
)

// Options are the per-remote settings read from configuration.
type Options struct {
	ID             string
	URL            string
	RepositoryPath string   // single followed path, e.g. "$/Project/Trunk"
	SubtreePaths   []string // used instead of RepositoryPath for multi-root remotes
	Prefix         string   // remote path relative to a parent workspace
	IgnoreRegex    string
	ExceptRegex    string
}

// TfsRemote maps server paths onto repository-relative paths.
type TfsRemote struct {
	id             string
	url            string
	repositoryPath string
	subtreePaths   []string
	prefix         string
	ignore         *regexp.Regexp
	except         *regexp.Regexp
}

// New validates opts and builds a remote.
func New(opts Options) (*TfsRemote, error) {
	r := &TfsRemote{
		id:             opts.ID,
		url:            opts.URL,
		repositoryPath: strings.TrimRight(opts.RepositoryPath, "/"),
		prefix:         strings.Trim(opts.Prefix, "/"),
	}
	for _, p := range opts.SubtreePaths {
		r.subtreePaths = append(r.subtreePaths, strings.TrimRight(p, "/"))
	}
	if strings.Contains(opts.ID, ":") {
		return nil, errpolicy.Configuration(
			fmt.Errorf("invalid remote id %q: ':' is not allowed", opts.ID),
			"Choose a remote_id without ':'")
	}
	if r.repositoryPath == "" && len(r.subtreePaths) == 0 {
		return nil, errpolicy.Configuration(
			fmt.Errorf("remote %q follows no server path", opts.ID),
			"Set repository_path, or subtree_paths for a multi-root remote")
	}

	var err error
	if opts.IgnoreRegex != "" {
		if r.ignore, err = regexp.Compile(opts.IgnoreRegex); err != nil {
			return nil, errpolicy.Configuration(fmt.Errorf("invalid ignore regex %q: %w", opts.IgnoreRegex, err))
		}
	}
	if opts.ExceptRegex != "" {
		if r.except, err = regexp.Compile(opts.ExceptRegex); err != nil {
			return nil, errpolicy.Configuration(fmt.Errorf("invalid except regex %q: %w", opts.ExceptRegex, err))
		}
	}
	return r, nil
}

// ID returns the remote id.
func (r *TfsRemote) ID() string { return r.id }

// URL returns the server url.
func (r *TfsRemote) URL() string { return r.url }

// RepositoryPath returns the single followed path, empty for multi-root remotes.
func (r *TfsRemote) RepositoryPath() string { return r.repositoryPath }

// SubtreePaths returns the followed paths of a multi-root remote.
func (r *TfsRemote) SubtreePaths() []string { return r.subtreePaths }

// Prefix returns the remote's path below a parent workspace.
func (r *TfsRemote) Prefix() string { return r.prefix }

// PathInGitRepo maps a server path to its repository-relative form. The
// second result is false when the path does not belong to this remote.
func (r *TfsRemote) PathInGitRepo(serverPath string) (string, bool) {
	if r.repositoryPath != "" {
		return relativeTo(r.repositoryPath, serverPath)
	}
	for _, root := range r.subtreePaths {
		rest, ok := relativeTo(root, serverPath)
		if !ok {
			continue
		}
		base := root[strings.LastIndex(root, "/")+1:]
		if rest == "" {
			return base, true
		}
		return base + "/" + rest, true
	}
	return "", false
}

// ShouldSkip reports whether a repository path is excluded by the ignore
// rules.
func (r *TfsRemote) ShouldSkip(gitPath string) bool {
	if r.ignore == nil || !r.ignore.MatchString(gitPath) {
		return false
	}
	return r.except == nil || !r.except.MatchString(gitPath)
}

// MatchesURLAndRepositoryPath reports whether the remote follows path on url.
func (r *TfsRemote) MatchesURLAndRepositoryPath(url, path string) bool {
	return strings.EqualFold(r.url, url) && strings.EqualFold(r.repositoryPath, strings.TrimRight(path, "/"))
}

// relativeTo strips root from path, ignoring case, on a path boundary.
func relativeTo(root, path string) (string, bool) {
	if len(path) < len(root) || !strings.EqualFold(path[:len(root)], root) {
		return "", false
	}
	rest := path[len(root):]
	if rest != "" && rest[0] != '/' {
		return "", false
	}
	return strings.TrimLeft(rest, "/"), true
}
