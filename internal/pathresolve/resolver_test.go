package pathresolve

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/kilupskalvis/tfsgit/internal/errpolicy"
	"github.com/kilupskalvis/tfsgit/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// prefixRemote follows everything under root.
type prefixRemote struct {
	root string
	skip string
}

func (r prefixRemote) PathInGitRepo(serverPath string) (string, bool) {
	if serverPath == r.root {
		return "", true
	}
	if !strings.HasPrefix(serverPath, r.root+"/") {
		return "", false
	}
	return serverPath[len(r.root)+1:], true
}

func (r prefixRemote) ShouldSkip(gitPath string) bool {
	return r.skip != "" && strings.HasPrefix(gitPath, r.skip)
}

func newTestResolver(opts Options) *Resolver {
	return New(prefixRemote{root: "$/Proj"}, models.NewTreeIndex(), opts)
}

func TestGetGitObject_SameInstance(t *testing.T) {
	r := newTestResolver(Options{})

	first, err := r.GetGitObject("$/Proj/src/main.go")
	require.NoError(t, err)
	second, err := r.GetGitObject("$/Proj/src/main.go")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, "src/main.go", first.Path)
}

func TestGetGitObject_Unmapped(t *testing.T) {
	r := newTestResolver(Options{})

	obj, err := r.GetGitObject("$/Other/file.txt")
	require.NoError(t, err)
	assert.Nil(t, obj)
	assert.True(t, r.Tree().Empty())
}

func TestGetGitObject_CreatesParents(t *testing.T) {
	r := newTestResolver(Options{})

	_, err := r.GetGitObject("$/Proj/a/b/c.txt")
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "a/b", "a/b/c.txt"}, r.Tree().Paths())
}

func TestGetGitObject_InheritsDirectoryCasing(t *testing.T) {
	r := newTestResolver(Options{})

	_, err := r.GetGitObject("$/Proj/Src/one.cs")
	require.NoError(t, err)
	obj, err := r.GetGitObject("$/Proj/src/two.cs")
	require.NoError(t, err)

	assert.Equal(t, "Src/two.cs", obj.Path)
}

func TestGetGitObject_CutPath(t *testing.T) {
	r := newTestResolver(Options{CutPath: "a"})

	obj, err := r.GetGitObject("$/Proj/a/b/c")
	require.NoError(t, err)
	assert.Equal(t, "b/c", obj.Path)

	root, err := r.GetGitObject("$/Proj/a")
	require.NoError(t, err)
	assert.Equal(t, "", root.Path)
}

func TestGetGitObject_CutPathMismatch(t *testing.T) {
	r := newTestResolver(Options{CutPath: "a"})

	_, err := r.GetGitObject("$/Proj/x/y")
	require.Error(t, err)
	assert.True(t, errpolicy.IsConfiguration(err))
	assert.Contains(t, err.Error(), "'a'")
	assert.Contains(t, err.Error(), "'x/y'")
	assert.NotEmpty(t, errpolicy.Hints(err))
}

func TestGetGitObject_CutPathForce(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	r := newTestResolver(Options{CutPath: "a", CutPathForce: true, Logger: logger})

	obj, err := r.GetGitObject("$/Proj/x/y")
	require.NoError(t, err)
	assert.Equal(t, "x/y", obj.Path)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "x/y")
}

func TestGetGitObject_CutPathSiblingPrefixNotStripped(t *testing.T) {
	// "ab/c" starts with "a" but is not under "a/", so it is left alone.
	r := newTestResolver(Options{CutPath: "a"})

	obj, err := r.GetGitObject("$/Proj/ab/c")
	require.NoError(t, err)
	assert.Equal(t, "ab/c", obj.Path)
}

func TestGetGitObject_RelativePath(t *testing.T) {
	r := newTestResolver(Options{RelativePath: "sub"})

	obj, err := r.GetGitObject("$/Proj/file.txt")
	require.NoError(t, err)
	assert.Equal(t, "sub/file.txt", obj.Path)

	root, err := r.GetGitObject("$/Proj")
	require.NoError(t, err)
	assert.Equal(t, "sub", root.Path)
}

func TestGetPathInGitRepo(t *testing.T) {
	r := newTestResolver(Options{})

	p, ok, err := r.GetPathInGitRepo("$/Proj/x.txt")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "x.txt", p)

	_, ok, err = r.GetPathInGitRepo("$/Nope/x.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestContains_OnlyEmbeddedCommits(t *testing.T) {
	tree := models.NewTreeIndex()
	tree.Put(&models.GitObject{Path: "vendor/lib", Commit: "4b825dc642cb6eb9a060e54bf8d69288fbee4904"})
	tree.Put(&models.GitObject{Path: "src"})
	r := New(prefixRemote{root: "$/Proj"}, tree, Options{})

	assert.True(t, r.Contains("vendor/lib"))
	assert.False(t, r.Contains("src"))
	assert.False(t, r.Contains("missing"))
}

func TestShouldIncludeGitItem(t *testing.T) {
	r := New(prefixRemote{root: "$/Proj", skip: "bin/"}, models.NewTreeIndex(), Options{})

	assert.True(t, r.ShouldIncludeGitItem("src/a.go"))
	assert.False(t, r.ShouldIncludeGitItem("bin/a.exe"))
	assert.False(t, r.ShouldIncludeGitItem(""))
}
