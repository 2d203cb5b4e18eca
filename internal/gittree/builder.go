// Package gittree writes projected trees and commits into a git repository
// and reads existing trees back into a models.TreeIndex.
package gittree

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/kilupskalvis/tfsgit/internal/models"
)

// TreeModifier is the tree mutation interface the projector writes through.
type TreeModifier interface {
	// Add stores the file at localPath as gitPath.
	Add(gitPath, localPath string, mode models.FileMode) error
	// Remove deletes gitPath and everything below it.
	Remove(gitPath string) error
}

type leaf struct {
	hash plumbing.Hash
	mode filemode.FileMode
}

// Builder accumulates a flat path -> blob set on top of a base commit and
// writes it out as nested git trees.
type Builder struct {
	repo   *git.Repository
	leaves map[string]leaf
}

var _ TreeModifier = (*Builder)(nil)

// NewBuilder starts from the tree of base, or from an empty tree when base is
// the zero hash.
func NewBuilder(repo *git.Repository, base plumbing.Hash) (*Builder, error) {
	b := &Builder{repo: repo, leaves: make(map[string]leaf)}
	if base.IsZero() {
		return b, nil
	}

	commit, err := repo.CommitObject(base)
	if err != nil {
		return nil, fmt.Errorf("load commit %s: %w", base, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("load tree of %s: %w", base, err)
	}
	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()
	for {
		name, entry, err := walker.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("walk tree of %s: %w", base, err)
		}
		if entry.Mode == filemode.Dir {
			continue
		}
		b.leaves[name] = leaf{hash: entry.Hash, mode: entry.Mode}
	}
	return b, nil
}

// Add implements TreeModifier.
func (b *Builder) Add(gitPath, localPath string, mode models.FileMode) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", localPath, err)
	}
	hash, err := b.writeBlob(data)
	if err != nil {
		return fmt.Errorf("write blob for %s: %w", gitPath, err)
	}
	fm := filemode.FileMode(mode)
	if mode == 0 {
		fm = filemode.Regular
	}
	b.leaves[normalize(gitPath)] = leaf{hash: hash, mode: fm}
	return nil
}

// Remove implements TreeModifier.
func (b *Builder) Remove(gitPath string) error {
	p := normalize(gitPath)
	if p == "" {
		b.leaves = make(map[string]leaf)
		return nil
	}
	delete(b.leaves, p)
	for name := range b.leaves {
		if strings.HasPrefix(name, p+"/") {
			delete(b.leaves, name)
		}
	}
	return nil
}

// Paths returns the file paths currently in the tree, sorted.
func (b *Builder) Paths() []string {
	paths := make([]string, 0, len(b.leaves))
	for p := range b.leaves {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// WriteTree stores the accumulated tree and returns its hash.
func (b *Builder) WriteTree() (plumbing.Hash, error) {
	root := newDirNode()
	for p, l := range b.leaves {
		root.insert(strings.Split(p, "/"), l)
	}
	return b.writeDir(root)
}

// Commit writes the tree and a commit for entry on top of parents.
func (b *Builder) Commit(entry *models.LogEntry, parents ...plumbing.Hash) (plumbing.Hash, error) {
	treeHash, err := b.WriteTree()
	if err != nil {
		return plumbing.ZeroHash, err
	}

	commit := &object.Commit{
		Author: object.Signature{
			Name:  entry.AuthorName,
			Email: entry.AuthorEmail,
			When:  entry.Date,
		},
		Committer: object.Signature{
			Name:  entry.CommitterName,
			Email: entry.CommitterEmail,
			When:  entry.Date,
		},
		Message:      entry.Log,
		TreeHash:     treeHash,
		ParentHashes: parents,
	}
	obj := b.repo.Storer.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("encode commit: %w", err)
	}
	hash, err := b.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("store commit: %w", err)
	}
	return hash, nil
}

func (b *Builder) writeBlob(data []byte) (plumbing.Hash, error) {
	obj := b.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(data)))
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		w.Close()
		return plumbing.ZeroHash, err
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, err
	}
	return b.repo.Storer.SetEncodedObject(obj)
}

type dirNode struct {
	dirs  map[string]*dirNode
	files map[string]leaf
}

func newDirNode() *dirNode {
	return &dirNode{dirs: make(map[string]*dirNode), files: make(map[string]leaf)}
}

func (d *dirNode) insert(parts []string, l leaf) {
	if len(parts) == 1 {
		d.files[parts[0]] = l
		return
	}
	child, ok := d.dirs[parts[0]]
	if !ok {
		child = newDirNode()
		d.dirs[parts[0]] = child
	}
	child.insert(parts[1:], l)
}

func (b *Builder) writeDir(d *dirNode) (plumbing.Hash, error) {
	tree := &object.Tree{}
	for name, child := range d.dirs {
		hash, err := b.writeDir(child)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		tree.Entries = append(tree.Entries, object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: hash})
	}
	for name, l := range d.files {
		tree.Entries = append(tree.Entries, object.TreeEntry{Name: name, Mode: l.mode, Hash: l.hash})
	}
	// git orders entries as if directory names ended with '/'
	sort.Slice(tree.Entries, func(i, j int) bool {
		return sortName(tree.Entries[i]) < sortName(tree.Entries[j])
	})

	obj := b.repo.Storer.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("encode tree: %w", err)
	}
	return b.repo.Storer.SetEncodedObject(obj)
}

func sortName(e object.TreeEntry) string {
	if e.Mode == filemode.Dir {
		return e.Name + "/"
	}
	return e.Name
}

func normalize(p string) string {
	return strings.Trim(strings.ReplaceAll(p, `\`, "/"), "/")
}
