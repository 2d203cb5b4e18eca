package gittree

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/kilupskalvis/tfsgit/internal/models"
)

// Reader lists the entries of committed trees.
type Reader struct {
	repo *git.Repository
}

// NewReader creates a reader over repo.
func NewReader(repo *git.Repository) *Reader {
	return &Reader{repo: repo}
}

// GetObjects registers every entry of the tree at commit in into. Submodule
// entries are registered as embedded commits.
func (r *Reader) GetObjects(commit string, into *models.TreeIndex) error {
	c, err := r.repo.CommitObject(plumbing.NewHash(commit))
	if err != nil {
		return fmt.Errorf("load commit %s: %w", commit, err)
	}
	tree, err := c.Tree()
	if err != nil {
		return fmt.Errorf("load tree of %s: %w", commit, err)
	}

	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()
	for {
		name, entry, err := walker.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("walk tree of %s: %w", commit, err)
		}
		obj := &models.GitObject{Path: name}
		if entry.Mode == filemode.Submodule {
			obj.Commit = entry.Hash.String()
		}
		into.Put(obj)
	}
}
