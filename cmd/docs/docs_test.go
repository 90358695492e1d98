package main

import (
	"encoding/json"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	git "gopkg.in/src-d/go-git.v4"
	gitconfig "gopkg.in/src-d/go-git.v4/config"
	"gopkg.in/src-d/go-git.v4/plumbing"
	"gopkg.in/src-d/go-git.v4/plumbing/object"

	chiefusecase "github.com/blankon/rilis-go/internal/chief/usecase"
)

func TestMain(m *testing.M) {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	dir, _ := ioutil.TempDir("", "rilis-docs-test")
	rilisConfig.Docs.Workdir = dir
	rilisConfig.Docs.Branch = "master"
	rilisConfig.Docs.BotName = "rilis-bot"
	rilisConfig.Docs.BotEmail = "rilis-bot@example.org"
	rilisConfig.Project.ReadmeFile = "README.md"
	rilisConfig.Project.ChangelogFile = "CHANGELOG.md"

	code := m.Run()

	os.RemoveAll(dir)
	os.Exit(code)
}

// initDocsRemote seeds a bare repository holding an initial docs branch
func initDocsRemote(t *testing.T) string {
	t.Helper()

	seedDir, err := ioutil.TempDir("", "rilis-docs-seed")
	assert.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(seedDir) })

	bareDir, err := ioutil.TempDir("", "rilis-docs-remote")
	assert.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(bareDir) })

	_, err = git.PlainInit(bareDir, true)
	assert.NoError(t, err)

	seed, err := git.PlainInit(seedDir, false)
	assert.NoError(t, err)
	assert.NoError(t, ioutil.WriteFile(filepath.Join(seedDir, "index.md"), []byte("# docs\n"), 0644))

	worktree, err := seed.Worktree()
	assert.NoError(t, err)
	_, err = worktree.Add(".")
	assert.NoError(t, err)
	_, err = worktree.Commit("initial docs", &git.CommitOptions{
		Author: &object.Signature{
			Name:  "tester",
			Email: "tester@example.org",
			When:  time.Now(),
		},
	})
	assert.NoError(t, err)

	_, err = seed.CreateRemote(&gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{bareDir},
	})
	assert.NoError(t, err)
	assert.NoError(t, seed.Push(&git.PushOptions{RemoteName: "origin"}))

	return bareDir
}

func docsPayload(t *testing.T, taskUUID string) string {
	t.Helper()

	payload := chiefusecase.ReleaseSubmission{
		TaskUUID:    taskUUID,
		Tag:         "1.2.0",
		PackageName: "rok4tools",
	}
	jsonStr, err := json.Marshal(payload)
	assert.NoError(t, err)
	return string(jsonStr)
}

func TestCommitDocs(t *testing.T) {
	remote := initDocsRemote(t)
	rilisConfig.Docs.RepoURL = remote

	taskUUID := "commit-docs-pipeline"
	assert.NoError(t, os.MkdirAll(bundlePath(taskUUID), 0755))
	assert.NoError(t, ioutil.WriteFile(filepath.Join(bundlePath(taskUUID), "README.md"), []byte("# rok4tools\n"), 0644))
	assert.NoError(t, ioutil.WriteFile(filepath.Join(bundlePath(taskUUID), "CHANGELOG.md"), []byte("## 1.2.0\n"), 0644))
	assert.NoError(t, os.MkdirAll(filepath.Join(bundlePath(taskUUID), "images"), 0755))
	assert.NoError(t, ioutil.WriteFile(filepath.Join(bundlePath(taskUUID), "images", "logo.png"), []byte("png"), 0644))

	_, err := CommitDocs(docsPayload(t, taskUUID))
	assert.NoError(t, err)

	// The pushed branch carries the version pages and the commit message
	remoteRepo, err := git.PlainOpen(remote)
	assert.NoError(t, err)
	ref, err := remoteRepo.Reference(plumbing.ReferenceName("refs/heads/master"), true)
	assert.NoError(t, err)
	commit, err := remoteRepo.CommitObject(ref.Hash())
	assert.NoError(t, err)
	assert.Equal(t, "docs: add version 1.2.0", commit.Message)
	assert.Equal(t, "rilis-bot", commit.Author.Name)

	tree, err := commit.Tree()
	assert.NoError(t, err)
	for _, path := range []string{
		"versions/1.2.0/index.md",
		"versions/1.2.0/README.md",
		"versions/1.2.0/CHANGELOG.md",
		"versions/1.2.0/images/logo.png",
		"versions/index.md",
		"index.md",
	} {
		_, err := tree.File(path)
		assert.NoError(t, err, path)
	}

	indexFile, err := tree.File("index.md")
	assert.NoError(t, err)
	content, err := indexFile.Contents()
	assert.NoError(t, err)
	assert.Contains(t, content, "1.2.0")
}

func TestCommitDocsMissingBundle(t *testing.T) {
	remote := initDocsRemote(t)
	rilisConfig.Docs.RepoURL = remote

	_, err := CommitDocs(docsPayload(t, "commit-docs-missing-bundle"))
	assert.Error(t, err)
}

// Needs wget and a running chief

func TestDocsFetchBundle(t *testing.T) {
	t.Skip()
}
