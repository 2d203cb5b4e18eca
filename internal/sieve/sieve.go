// Package sieve classifies the raw changes of a changeset: which items must
// be downloaded, which tree mutations they turn into, and whether the
// changeset renames the whole branch or deletes the whole project.
//
// Policy of ChangeSieve:
//   - changes outside the remote, or excluded by its ignore rules, are dropped;
//   - a change is root-level when its remote-relative path is empty;
//   - RenamesBranch: a root-level folder change carrying the Rename flag;
//   - DeletesProject: a root-level folder change carrying the Delete flag;
//     such a changeset fetches and applies nothing;
//   - Delete disposition: the Delete flag, or an item with a deletion marker;
//   - folders never produce updates; folder deletes remove the folder path;
//   - a rename with a known previous path also deletes the previous path,
//     even when the new path is dropped;
//   - merge-only changes are applied only when forced, but always fetched;
//   - deletes are applied before updates, each in changeset order.
package sieve

import (
	"github.com/kilupskalvis/tfsgit/internal/models"
	"github.com/kilupskalvis/tfsgit/internal/pathresolve"
)

// Classifier is what the projector needs from a classification policy.
type Classifier interface {
	// ChangesToFetch returns the changes whose content must be downloaded.
	ChangesToFetch() []models.RawChange
	// ChangesToApply returns the tree mutations. force is set when there is
	// no previous tree to diff against.
	ChangesToApply(force bool) []models.ApplicableChange
	// RenamesBranch reports whether the changeset renames the branch root.
	RenamesBranch() bool
	// DeletesProject reports whether the changeset deletes the followed root.
	DeletesProject() bool
}

// Factory builds a classifier for one changeset.
type Factory func(cs *models.Changeset, resolver *pathresolve.Resolver) (Classifier, error)

// contentFlags are the change flags that carry new content on this branch.
var contentFlags = []models.ChangeType{
	models.ChangeAdd, models.ChangeEdit, models.ChangeBranch,
	models.ChangeRename, models.ChangeUndelete, models.ChangeDelete,
	models.ChangeEncoding,
}

type namedChange struct {
	change   models.RawChange
	gitPath  string
	rootPath bool
	// previous is the resolved pre-rename path, empty when unknown.
	previous string
	// deleteOnly marks a rename out of the remote: only previous is removed.
	deleteOnly bool
}

func (n namedChange) isFolder() bool {
	return n.change.Item.ItemType == models.ItemFolder
}

func (n namedChange) isDelete() bool {
	return n.change.ChangeType.IncludesOneOf(models.ChangeDelete) || n.change.Item.IsDeleted()
}

func (n namedChange) isMergeOnly() bool {
	return n.change.ChangeType.IncludesOneOf(models.ChangeMerge) &&
		!n.change.ChangeType.IncludesOneOf(contentFlags...)
}

// ChangeSieve is the default classification policy.
type ChangeSieve struct {
	named          []namedChange
	renamesBranch  bool
	deletesProject bool
}

var _ Classifier = (*ChangeSieve)(nil)

// New resolves every change of cs. Resolution errors, such as a cut path
// mismatch, are returned.
func New(cs *models.Changeset, resolver *pathresolve.Resolver) (Classifier, error) {
	s := &ChangeSieve{}
	for _, ch := range cs.Changes {
		previous, err := previousPath(ch, resolver)
		if err != nil {
			return nil, err
		}

		rel, ok := resolver.RepoRelative(ch.ServerPath())
		if !ok {
			s.keepDeleteOnly(ch, previous)
			continue
		}
		obj, err := resolver.GetGitObject(ch.ServerPath())
		if err != nil {
			return nil, err
		}
		if obj == nil {
			s.keepDeleteOnly(ch, previous)
			continue
		}

		n := namedChange{change: ch, gitPath: obj.Path, rootPath: rel == ""}
		if n.rootPath && n.isFolder() {
			if ch.ChangeType.IncludesOneOf(models.ChangeRename) {
				s.renamesBranch = true
			}
			if ch.ChangeType.IncludesOneOf(models.ChangeDelete) {
				s.deletesProject = true
			}
		}
		if !n.rootPath && !resolver.ShouldIncludeGitItem(n.gitPath) {
			s.keepDeleteOnly(ch, previous)
			continue
		}

		if previous != n.gitPath {
			n.previous = previous
		}
		s.named = append(s.named, n)
	}
	return s, nil
}

// previousPath resolves the pre-rename path of ch, or "" when ch is not a
// rename, the old path is unknown, or the remote does not keep it.
func previousPath(ch models.RawChange, resolver *pathresolve.Resolver) (string, error) {
	if ch.PreviousServerPath == "" || !ch.ChangeType.IncludesOneOf(models.ChangeRename) {
		return "", nil
	}
	prev, err := resolver.GetGitObject(ch.PreviousServerPath)
	if err != nil || prev == nil {
		return "", err
	}
	if !resolver.ShouldIncludeGitItem(prev.Path) {
		return "", nil
	}
	return prev.Path, nil
}

// keepDeleteOnly records a rename whose new path the remote drops, so only
// the old path is removed.
func (s *ChangeSieve) keepDeleteOnly(ch models.RawChange, previous string) {
	if previous == "" {
		return
	}
	s.named = append(s.named, namedChange{change: ch, previous: previous, deleteOnly: true})
}

// RenamesBranch implements Classifier.
func (s *ChangeSieve) RenamesBranch() bool { return s.renamesBranch }

// DeletesProject implements Classifier.
func (s *ChangeSieve) DeletesProject() bool { return s.deletesProject }

// ChangesToFetch implements Classifier.
func (s *ChangeSieve) ChangesToFetch() []models.RawChange {
	if s.deletesProject {
		return nil
	}
	var out []models.RawChange
	for _, n := range s.named {
		if n.deleteOnly || n.isFolder() || n.isDelete() || n.rootPath {
			continue
		}
		out = append(out, n.change)
	}
	return out
}

// ChangesToApply implements Classifier.
func (s *ChangeSieve) ChangesToApply(force bool) []models.ApplicableChange {
	if s.deletesProject {
		return nil
	}
	var deletes, updates []models.ApplicableChange
	for _, n := range s.named {
		switch {
		case n.deleteOnly:
			deletes = append(deletes, models.NewDelete(n.previous))
		case n.isDelete():
			if n.rootPath {
				continue
			}
			deletes = append(deletes, models.NewDelete(n.gitPath))
		case n.isFolder():
			if n.previous != "" {
				deletes = append(deletes, models.NewDelete(n.previous))
			}
		case n.rootPath:
		case n.isMergeOnly() && !force:
		default:
			if n.previous != "" {
				deletes = append(deletes, models.NewDelete(n.previous))
			}
			updates = append(updates, models.NewUpdate(n.gitPath))
		}
	}
	return append(deletes, updates...)
}
