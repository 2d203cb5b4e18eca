package core

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/kilupskalvis/tfsgit/internal/ancestry"
	"github.com/kilupskalvis/tfsgit/internal/models"
	"github.com/kilupskalvis/tfsgit/internal/remote"
	"github.com/kilupskalvis/tfsgit/internal/store"
	"github.com/kilupskalvis/tfsgit/internal/tfs"
	"github.com/kilupskalvis/tfsgit/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testURL = "https://tfs.example.com/tfs"

type fixture struct {
	repo   *git.Repository
	store  *store.Store
	client *tfs.MockClient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo, err := git.Init(memory.NewStorage(), nil)
	require.NoError(t, err)

	st, err := store.New(filepath.Join(t.TempDir(), "tfsgit.db"))
	require.NoError(t, err)
	require.NoError(t, st.Initialize())
	t.Cleanup(func() { st.Close() })

	return &fixture{repo: repo, store: st, client: tfs.NewMockClient()}
}

func (f *fixture) deps(t *testing.T, repositoryPath string) Deps {
	t.Helper()
	ws, err := workspace.NewDir(filepath.Join(t.TempDir(), "ws"), testURL, repositoryPath, f.client, nil)
	require.NoError(t, err)
	return Deps{Store: f.store, Repo: f.repo, Client: f.client, Workspace: ws}
}

func newTestRemote(t *testing.T, id, path string) *remote.TfsRemote {
	t.Helper()
	r, err := remote.New(remote.Options{ID: id, URL: testURL, RepositoryPath: path})
	require.NoError(t, err)
	return r
}

func change(ct models.ChangeType, path string, version int) models.RawChange {
	return models.RawChange{ChangeType: ct, Item: models.Item{ServerItem: path, ChangesetID: version, ItemType: models.ItemFile}}
}

func (f *fixture) addChangeset(id int, committer string, changes ...models.RawChange) {
	f.client.AddChangeset(&models.Changeset{
		ID:           id,
		CreationDate: time.Date(2012, 1, id, 0, 0, 0, 0, time.UTC),
		Comment:      "changeset " + string(rune('0'+id)),
		Committer:    committer,
		Changes:      changes,
	})
}

func fileContent(t *testing.T, repo *git.Repository, hash, path string) (string, bool) {
	t.Helper()
	c, err := repo.CommitObject(plumbing.NewHash(hash))
	require.NoError(t, err)
	file, err := c.File(path)
	if err != nil {
		return "", false
	}
	content, err := file.Contents()
	require.NoError(t, err)
	return content, true
}

func TestFetch_ProjectsChangesets(t *testing.T) {
	f := newFixture(t)
	f.client.AddFile("$/Proj/Trunk/a.txt", 1, "a1")
	f.client.AddFile("$/Proj/Trunk/b.txt", 1, "b1")
	f.client.SetContent("$/Proj/Trunk/a.txt", 2, "a2")
	f.addChangeset(1, `CORP\jdoe`,
		change(models.ChangeAdd, "$/Proj/Trunk/a.txt", 1),
		change(models.ChangeAdd, "$/Proj/Trunk/b.txt", 1),
	)
	f.addChangeset(2, `CORP\asmith`,
		change(models.ChangeEdit, "$/Proj/Trunk/a.txt", 2),
		change(models.ChangeDelete, "$/Proj/Trunk/b.txt", 2),
	)
	rem := newTestRemote(t, "default", "$/Proj/Trunk")

	var phases []int
	res, err := Fetch(context.Background(), f.deps(t, "$/Proj/Trunk"), FetchOptions{Remote: rem, Changesets: []int{1, 2}},
		func(phase string, current, total int) { phases = append(phases, current) })
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)
	assert.Equal(t, []int{1, 2}, phases)
	assert.NotEmpty(t, res.RunID)

	ref, err := f.repo.Reference(plumbing.ReferenceName(RefPrefix+"default"), true)
	require.NoError(t, err)
	assert.Equal(t, res.Tip, ref.Hash().String())

	content, ok := fileContent(t, f.repo, res.Tip, "a.txt")
	require.True(t, ok)
	assert.Equal(t, "a2", content)
	_, ok = fileContent(t, f.repo, res.Tip, "b.txt")
	assert.False(t, ok)

	tip, err := f.repo.CommitObject(plumbing.NewHash(res.Tip))
	require.NoError(t, err)
	assert.Equal(t, "asmith", tip.Author.Name)
	assert.Equal(t, "asmith@corp.tfs.local", tip.Author.Email)
	assert.Contains(t, tip.Message, "tfsgit-id: ["+testURL+"]$/Proj/Trunk;C2")
	require.Len(t, tip.ParentHashes, 1)

	first, err := f.repo.CommitObject(tip.ParentHashes[0])
	require.NoError(t, err)
	assert.Empty(t, first.ParentHashes)
	assert.True(t, strings.HasPrefix(first.Message, "changeset 1\n"))

	records, err := f.store.ListChangesets("default", 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 2, records[0].ChangesetID)
	assert.Equal(t, res.Tip, records[0].CommitHash)

	lastRun, err := f.store.GetValue(LastRunKey("default"))
	require.NoError(t, err)
	assert.Equal(t, res.RunID, lastRun)
}

func TestFetch_ResumesFromTip(t *testing.T) {
	f := newFixture(t)
	f.client.AddFile("$/Proj/Trunk/a.txt", 1, "a1")
	f.client.AddFile("$/Proj/Trunk/c.txt", 3, "c3")
	f.addChangeset(1, "builder", change(models.ChangeAdd, "$/Proj/Trunk/a.txt", 1))
	f.addChangeset(3, "builder", change(models.ChangeAdd, "$/Proj/Trunk/c.txt", 3))
	rem := newTestRemote(t, "default", "$/Proj/Trunk")
	deps := f.deps(t, "$/Proj/Trunk")

	first, err := Fetch(context.Background(), deps, FetchOptions{Remote: rem, Changesets: []int{1}}, nil)
	require.NoError(t, err)

	again, err := Fetch(context.Background(), deps, FetchOptions{Remote: rem, Changesets: []int{1}}, nil)
	require.NoError(t, err)
	assert.True(t, again.UpToDate)
	assert.Equal(t, 1, again.Skipped)
	assert.Equal(t, first.Tip, again.Tip)

	next, err := Fetch(context.Background(), deps, FetchOptions{Remote: rem, Changesets: []int{1, 3}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, next.Skipped)
	require.Len(t, next.Entries, 1)

	_, ok := fileContent(t, f.repo, next.Tip, "a.txt")
	assert.True(t, ok)
	content, ok := fileContent(t, f.repo, next.Tip, "c.txt")
	require.True(t, ok)
	assert.Equal(t, "c3", content)
}

func TestFetch_QuickClone(t *testing.T) {
	f := newFixture(t)
	f.client.AddFile("$/Proj/Trunk/a.txt", 2, "a2")
	f.client.AddFile("$/Proj/Trunk/src/b.txt", 4, "b4")
	f.addChangeset(4, "builder", change(models.ChangeEdit, "$/Proj/Trunk/src/b.txt", 4))
	f.addChangeset(9, "labeler")
	rem := newTestRemote(t, "default", "$/Proj/Trunk")

	res, err := Fetch(context.Background(), f.deps(t, "$/Proj/Trunk"), FetchOptions{Remote: rem, Changesets: []int{9}, QuickClone: true}, nil)
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, 4, res.Entries[0].ChangesetID)

	content, ok := fileContent(t, f.repo, res.Tip, "src/b.txt")
	require.True(t, ok)
	assert.Equal(t, "b4", content)

	rec, err := f.store.GetChangeset("default", 4)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, res.Tip, rec.CommitHash)
}

func TestFetch_BranchStartsFromParent(t *testing.T) {
	f := newFixture(t)
	f.client.AddFile("$/Proj/Trunk/a.txt", 1, "a1")
	f.client.AddFile("$/Proj/Dev/a.txt", 5, "dev")
	f.addChangeset(1, "builder", change(models.ChangeAdd, "$/Proj/Trunk/a.txt", 1))
	f.addChangeset(5, "builder", change(models.ChangeBranch, "$/Proj/Dev/a.txt", 5))

	trunk, err := Fetch(context.Background(), f.deps(t, "$/Proj/Trunk"),
		FetchOptions{Remote: newTestRemote(t, "default", "$/Proj/Trunk"), Changesets: []int{1}}, nil)
	require.NoError(t, err)

	parents := ancestry.NewStore(nil)
	require.NoError(t, parents.Parse(strings.NewReader("dev = 1\n")))
	deps := f.deps(t, "$/Proj/Dev")
	deps.Ancestry = parents

	dev, err := Fetch(context.Background(), deps,
		FetchOptions{Remote: newTestRemote(t, "dev", "$/Proj/Dev"), Changesets: []int{5}}, nil)
	require.NoError(t, err)
	assert.Empty(t, dev.OmittedParentBranch)

	c, err := f.repo.CommitObject(plumbing.NewHash(dev.Tip))
	require.NoError(t, err)
	assert.Equal(t, []plumbing.Hash{plumbing.NewHash(trunk.Tip)}, c.ParentHashes)
	content, ok := fileContent(t, f.repo, dev.Tip, "a.txt")
	require.True(t, ok)
	assert.Equal(t, "dev", content)
}

func TestFetch_OmittedParent(t *testing.T) {
	f := newFixture(t)
	f.client.AddFile("$/Proj/Dev/a.txt", 5, "dev")
	f.addChangeset(5, "builder", change(models.ChangeBranch, "$/Proj/Dev/a.txt", 5))

	parents := ancestry.NewStore(nil)
	require.NoError(t, parents.Parse(strings.NewReader("dev = 1\n")))
	deps := f.deps(t, "$/Proj/Dev")
	deps.Ancestry = parents

	res, err := Fetch(context.Background(), deps,
		FetchOptions{Remote: newTestRemote(t, "dev", "$/Proj/Dev"), Changesets: []int{5}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "C1", res.OmittedParentBranch)

	c, err := f.repo.CommitObject(plumbing.NewHash(res.Tip))
	require.NoError(t, err)
	assert.Empty(t, c.ParentHashes)
}

func TestFetch_UnknownChangeset(t *testing.T) {
	f := newFixture(t)
	rem := newTestRemote(t, "default", "$/Proj/Trunk")

	deps := f.deps(t, "$/Proj/Trunk")
	deps.Retry = &tfs.RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

	_, err := Fetch(context.Background(), deps, FetchOptions{Remote: rem, Changesets: []int{77}}, nil)
	assert.ErrorIs(t, err, tfs.ErrNotFound)
}

func TestFetch_MultiRootRemote(t *testing.T) {
	f := newFixture(t)
	f.client.AddFile("$/Proj/Main/Api/app.cs", 3, "api")
	f.client.AddFile("$/Shared/Libs/Common/lib.cs", 3, "lib")
	f.addChangeset(3, "builder",
		change(models.ChangeAdd, "$/Proj/Main/Api/app.cs", 3),
		change(models.ChangeAdd, "$/Shared/Libs/Common/lib.cs", 3),
	)
	subtrees := []string{"$/Proj/Main/Api", "$/Shared/Libs/Common"}
	rem, err := remote.New(remote.Options{ID: "default", URL: testURL, SubtreePaths: subtrees})
	require.NoError(t, err)

	ws, err := workspace.NewSubtreeDir(filepath.Join(t.TempDir(), "ws"), testURL, subtrees, f.client, nil)
	require.NoError(t, err)
	deps := Deps{Store: f.store, Repo: f.repo, Client: f.client, Workspace: ws}

	res, err := Fetch(context.Background(), deps, FetchOptions{Remote: rem, Changesets: []int{3}}, nil)
	require.NoError(t, err)

	content, ok := fileContent(t, f.repo, res.Tip, "Api/app.cs")
	require.True(t, ok)
	assert.Equal(t, "api", content)
	content, ok = fileContent(t, f.repo, res.Tip, "Common/lib.cs")
	require.True(t, ok)
	assert.Equal(t, "lib", content)
}
