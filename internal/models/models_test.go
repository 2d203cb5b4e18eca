package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChangeType_IncludesOneOf(t *testing.T) {
	ct := ChangeEdit | ChangeMerge

	assert.True(t, ct.IncludesOneOf(ChangeMerge))
	assert.True(t, ct.IncludesOneOf(ChangeAdd, ChangeEdit))
	assert.False(t, ct.IncludesOneOf(ChangeDelete, ChangeRename))
	assert.Equal(t, "edit, merge", ct.String())
	assert.Equal(t, "none", ChangeNone.String())
}

func TestChangeset_BaseChangesetID(t *testing.T) {
	cs := &Changeset{
		ID: 42,
		Changes: []RawChange{
			{ChangeType: ChangeEdit, Item: Item{ServerItem: "$/Proj/a.txt", ChangesetID: 40}},
			{ChangeType: ChangeAdd, Item: Item{ServerItem: "$/Proj/b.txt", ChangesetID: 42}},
			{ChangeType: ChangeEdit, Item: Item{ServerItem: "$/Proj/c.txt", ChangesetID: 17}},
		},
	}

	assert.Equal(t, 41, cs.BaseChangesetID())
}

func TestTreeIndex_CaseInsensitive(t *testing.T) {
	idx := NewTreeIndex()
	obj := &GitObject{Path: "Src/Main.cs"}
	idx.Put(obj)

	got, ok := idx.Get("src/main.CS")
	assert.True(t, ok)
	assert.Same(t, obj, got)
	assert.Equal(t, "Src/Main.cs", got.Path)
	assert.True(t, idx.Contains("SRC/MAIN.CS"))
	assert.False(t, idx.Contains("src"))
	assert.Equal(t, 1, idx.Len())
}

func TestTreeIndex_Paths(t *testing.T) {
	idx := NewTreeIndex()
	assert.True(t, idx.Empty())

	idx.Put(&GitObject{Path: "b"})
	idx.Put(&GitObject{Path: "a/x"})
	idx.Put(&GitObject{Path: "a"})

	assert.Equal(t, []string{"a", "a/x", "b"}, idx.Paths())
}

func TestGitObject_IsEmbeddedCommit(t *testing.T) {
	var nilObj *GitObject
	assert.False(t, nilObj.IsEmbeddedCommit())
	assert.False(t, (&GitObject{Path: "lib"}).IsEmbeddedCommit())
	assert.True(t, (&GitObject{Path: "lib", Commit: "0123abcd"}).IsEmbeddedCommit())
}
