package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRelease(pipelineID, tag string) ReleaseInfo {
	return ReleaseInfo{
		PipelineID:   pipelineID,
		Tag:          tag,
		PackageName:  "rok4tools",
		RepoOwner:    "rok4",
		RepoName:     "pytools",
		ReleaseID:    42,
		SubmittedAt:  time.Now().UTC().Truncate(time.Second),
		State:        "PENDING",
		CurrentStage: "build",
	}
}

func TestReleaseStore_RecordAndGet(t *testing.T) {
	db, err := NewDB(":memory:")
	require.NoError(t, err)
	defer db.Close()

	store := NewReleaseStore(db, 100)

	release := testRelease("pipeline-123", "1.2.3")
	require.NoError(t, store.RecordRelease(release))

	retrieved, err := store.GetRelease("pipeline-123")
	require.NoError(t, err)
	assert.Equal(t, release.PipelineID, retrieved.PipelineID)
	assert.Equal(t, release.Tag, retrieved.Tag)
	assert.Equal(t, release.PackageName, retrieved.PackageName)
	assert.Equal(t, release.RepoOwner, retrieved.RepoOwner)
	assert.Equal(t, release.ReleaseID, retrieved.ReleaseID)
	assert.Equal(t, release.State, retrieved.State)
	assert.Equal(t, release.CurrentStage, retrieved.CurrentStage)
}

func TestReleaseStore_GetNotFound(t *testing.T) {
	db, err := NewDB(":memory:")
	require.NoError(t, err)
	defer db.Close()

	store := NewReleaseStore(db, 100)

	_, err = store.GetRelease("nonexistent")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "release not found")
}

func TestReleaseStore_GetByTag(t *testing.T) {
	db, err := NewDB(":memory:")
	require.NoError(t, err)
	defer db.Close()

	store := NewReleaseStore(db, 100)

	first := testRelease("pipeline-1", "1.2.3")
	first.SubmittedAt = time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, store.RecordRelease(first))

	second := testRelease("pipeline-2", "1.2.3")
	require.NoError(t, store.RecordRelease(second))

	retrieved, err := store.GetReleaseByTag("1.2.3")
	require.NoError(t, err)
	require.NotNil(t, retrieved)
	assert.Equal(t, "pipeline-2", retrieved.PipelineID)

	missing, err := store.GetReleaseByTag("9.9.9")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestReleaseStore_UpdateStateTerminalGuard(t *testing.T) {
	db, err := NewDB(":memory:")
	require.NoError(t, err)
	defer db.Close()

	store := NewReleaseStore(db, 100)
	require.NoError(t, store.RecordRelease(testRelease("pipeline-1", "1.2.3")))

	require.NoError(t, store.UpdateReleaseState("pipeline-1", "STARTED"))
	release, err := store.GetRelease("pipeline-1")
	require.NoError(t, err)
	assert.Equal(t, "STARTED", release.State)

	require.NoError(t, store.UpdateReleaseState("pipeline-1", "ROLLED_BACK"))
	require.NoError(t, store.UpdateReleaseState("pipeline-1", "STARTED"))
	release, err = store.GetRelease("pipeline-1")
	require.NoError(t, err)
	assert.Equal(t, "ROLLED_BACK", release.State)
}

func TestReleaseStore_FailedUpgradesToRolledBack(t *testing.T) {
	db, err := NewDB(":memory:")
	require.NoError(t, err)
	defer db.Close()

	store := NewReleaseStore(db, 100)
	require.NoError(t, store.RecordRelease(testRelease("pipeline-1", "1.2.3")))

	// A poll between a leg failure and rollback completion persists FAILED
	require.NoError(t, store.UpdateReleaseState("pipeline-1", "FAILED"))
	require.NoError(t, store.UpdateReleaseState("pipeline-1", "ROLLED_BACK"))
	release, err := store.GetRelease("pipeline-1")
	require.NoError(t, err)
	assert.Equal(t, "ROLLED_BACK", release.State)

	// No other transition out of FAILED
	require.NoError(t, store.RecordRelease(testRelease("pipeline-2", "1.2.4")))
	require.NoError(t, store.UpdateReleaseState("pipeline-2", "FAILED"))
	require.NoError(t, store.UpdateReleaseState("pipeline-2", "PUBLISHED"))
	release, err = store.GetRelease("pipeline-2")
	require.NoError(t, err)
	assert.Equal(t, "FAILED", release.State)
}

func TestReleaseStore_UpdateStageStates(t *testing.T) {
	db, err := NewDB(":memory:")
	require.NoError(t, err)
	defer db.Close()

	store := NewReleaseStore(db, 100)
	require.NoError(t, store.RecordRelease(testRelease("pipeline-1", "1.2.3")))

	require.NoError(t, store.UpdateStageStates("pipeline-1", "SUCCESS", "STARTED", "PENDING", "publish"))
	release, err := store.GetRelease("pipeline-1")
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS", release.BuildState)
	assert.Equal(t, "STARTED", release.PublishState)
	assert.Equal(t, "PENDING", release.DocsState)
	assert.Equal(t, "publish", release.CurrentStage)
}

func TestReleaseStore_CleanupOldReleases(t *testing.T) {
	db, err := NewDB(":memory:")
	require.NoError(t, err)
	defer db.Close()

	store := NewReleaseStore(db, 3)

	base := time.Now().UTC().Add(-10 * time.Hour)
	for i := 0; i < 5; i++ {
		release := testRelease(string(rune('a'+i))+"-pipeline", "1.0.0")
		release.SubmittedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, store.RecordRelease(release))
	}

	releases, err := store.GetRecentReleases(10)
	require.NoError(t, err)
	assert.Len(t, releases, 3)
	// newest first
	assert.Equal(t, "e-pipeline", releases[0].PipelineID)
}

func TestIsTerminalState(t *testing.T) {
	assert.True(t, IsTerminalState("PUBLISHED"))
	assert.True(t, IsTerminalState("FAILED"))
	assert.True(t, IsTerminalState("ROLLED_BACK"))
	assert.False(t, IsTerminalState("PENDING"))
	assert.False(t, IsTerminalState("STARTED"))
}
