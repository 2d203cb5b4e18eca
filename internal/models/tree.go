package models

import (
	"sort"

	"golang.org/x/text/cases"
)

// FileMode is the target tree mode of an entry, in git's octal notation.
type FileMode uint32

const (
	ModeDir        FileMode = 0o040000
	ModeRegular    FileMode = 0o100644
	ModeExecutable FileMode = 0o100755
	ModeSymlink    FileMode = 0o120000
	ModeSubmodule  FileMode = 0o160000
)

// GitObject is an entry of the target tree addressed by path. Commit is set
// only when the entry points at another repository's commit.
type GitObject struct {
	Path   string
	Commit string
}

// IsEmbeddedCommit returns true if the entry is a nested repository pointer.
func (o *GitObject) IsEmbeddedCommit() bool {
	return o != nil && o.Commit != ""
}

// ApplyKind is the disposition of an applicable change.
type ApplyKind int

const (
	ApplyUpdate ApplyKind = iota
	ApplyDelete
)

func (k ApplyKind) String() string {
	switch k {
	case ApplyUpdate:
		return "update"
	case ApplyDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ApplicableChange is a raw change resolved to a target path.
type ApplicableChange struct {
	Kind    ApplyKind
	GitPath string
	Mode    FileMode
}

// NewUpdate returns an update of a regular file at gitPath.
func NewUpdate(gitPath string) ApplicableChange {
	return ApplicableChange{Kind: ApplyUpdate, GitPath: gitPath, Mode: ModeRegular}
}

// NewDelete returns a removal of gitPath.
func NewDelete(gitPath string) ApplicableChange {
	return ApplicableChange{Kind: ApplyDelete, GitPath: gitPath}
}

// TreeIndex maps target paths to tree entries. Lookups ignore case, as the
// source system does; the stored entry keeps the casing it was created with.
// A TreeIndex is owned by a single projection and is not safe for concurrent use.
type TreeIndex struct {
	entries map[string]*GitObject
	fold    cases.Caser
}

// NewTreeIndex creates an empty index.
func NewTreeIndex() *TreeIndex {
	return &TreeIndex{
		entries: make(map[string]*GitObject),
		fold:    cases.Fold(),
	}
}

func (t *TreeIndex) key(path string) string {
	return t.fold.String(path)
}

// Get returns the entry registered for path.
func (t *TreeIndex) Get(path string) (*GitObject, bool) {
	obj, ok := t.entries[t.key(path)]
	return obj, ok
}

// Contains reports whether path has an entry.
func (t *TreeIndex) Contains(path string) bool {
	_, ok := t.entries[t.key(path)]
	return ok
}

// Put registers obj under its path, replacing any previous entry.
func (t *TreeIndex) Put(obj *GitObject) {
	t.entries[t.key(obj.Path)] = obj
}

// Len returns the number of entries.
func (t *TreeIndex) Len() int {
	return len(t.entries)
}

// Empty returns true if the index has no entries.
func (t *TreeIndex) Empty() bool {
	return len(t.entries) == 0
}

// Paths returns the stored paths sorted.
func (t *TreeIndex) Paths() []string {
	paths := make([]string, 0, len(t.entries))
	for _, obj := range t.entries {
		paths = append(paths, obj.Path)
	}
	sort.Strings(paths)
	return paths
}
