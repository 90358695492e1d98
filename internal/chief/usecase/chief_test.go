package usecase

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	artifactRepo "github.com/blankon/rilis-go/internal/artifact/repo"
	artifactservice "github.com/blankon/rilis-go/internal/artifact/service"
	"github.com/blankon/rilis-go/internal/config"
	"github.com/blankon/rilis-go/internal/forge"
	"github.com/blankon/rilis-go/internal/monitoring"
)

func testSubmission() ReleaseSubmission {
	return ReleaseSubmission{
		TaskUUID:    "2026-01-02-030405_abc_1.2.0",
		Timestamp:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Tag:         "1.2.0",
		PackageName: "rok4tools",
		RepoOwner:   "rok4",
		RepoName:    "pytools",
		ReleaseID:   42,
		UploadURL:   "https://uploads.example.org/repos/rok4/pytools/releases/42/assets{?name,label}",
	}
}

func testLegs() []config.MatrixLeg {
	return []config.MatrixLeg{
		{OS: "ubuntu-20.04", Python: "3.8", Command: "python3 -m build", Primary: true},
		{OS: "ubuntu-22.04", Python: "3.10", Command: "python3 -m compileall src"},
	}
}

func TestBuildPipelineSignatures(t *testing.T) {
	submission := testSubmission()

	buildSignatures, dispatchSignature, err := buildPipelineSignatures(submission, testLegs())
	assert.NoError(t, err)
	assert.Len(t, buildSignatures, 2)

	assert.Equal(t, "build", buildSignatures[0].Name)
	assert.Equal(t, "2026-01-02-030405_abc_1.2.0_build0", buildSignatures[0].UUID)
	assert.Equal(t, "2026-01-02-030405_abc_1.2.0_build1", buildSignatures[1].UUID)

	// Every leg carries the rollback callback
	for _, sig := range buildSignatures {
		assert.Len(t, sig.OnError, 1)
		assert.Equal(t, "rollback", sig.OnError[0].Name)
		assert.Equal(t, "2026-01-02-030405_abc_1.2.0_rollback", sig.OnError[0].UUID)
	}

	var payload BuildPayload
	err = json.Unmarshal([]byte(buildSignatures[1].Args[0].Value.(string)), &payload)
	assert.NoError(t, err)
	assert.Equal(t, 1, payload.LegIndex)
	assert.Equal(t, "ubuntu-22.04", payload.Leg.OS)
	assert.Equal(t, "1.2.0", payload.Submission.Tag)

	assert.Equal(t, "dispatch", dispatchSignature.Name)
	assert.Equal(t, "2026-01-02-030405_abc_1.2.0_dispatch", dispatchSignature.UUID)
	assert.True(t, dispatchSignature.Immutable)

	var dispatched ReleaseSubmission
	err = json.Unmarshal([]byte(dispatchSignature.Args[0].Value.(string)), &dispatched)
	assert.NoError(t, err)
	assert.Equal(t, submission.TaskUUID, dispatched.TaskUUID)
	assert.Equal(t, int64(42), dispatched.ReleaseID)
}

func TestDeriveReleaseState(t *testing.T) {
	assert.Equal(t, "PENDING", deriveReleaseState(monitoring.ReleaseStages{
		BuildStates: []string{"PENDING", "PENDING"},
	}, "PENDING"))

	assert.Equal(t, "STARTED", deriveReleaseState(monitoring.ReleaseStages{
		BuildStates: []string{"SUCCESS", "STARTED"},
	}, "PENDING"))

	assert.Equal(t, "FAILED", deriveReleaseState(monitoring.ReleaseStages{
		BuildStates: []string{"FAILURE", "SUCCESS"},
	}, "STARTED"))

	assert.Equal(t, "ROLLED_BACK", deriveReleaseState(monitoring.ReleaseStages{
		BuildStates: []string{"FAILURE", "SUCCESS"},
	}, "SUCCESS"))

	assert.Equal(t, "STARTED", deriveReleaseState(monitoring.ReleaseStages{
		BuildStates:  []string{"SUCCESS", "SUCCESS"},
		PublishState: "STARTED",
		DocsState:    "PENDING",
	}, "PENDING"))

	assert.Equal(t, "FAILED", deriveReleaseState(monitoring.ReleaseStages{
		BuildStates:  []string{"SUCCESS", "SUCCESS"},
		PublishState: "FAILURE",
		DocsState:    "PENDING",
	}, "PENDING"))

	assert.Equal(t, "PUBLISHED", deriveReleaseState(monitoring.ReleaseStages{
		BuildStates:  []string{"SUCCESS", "SUCCESS"},
		PublishState: "SUCCESS",
		DocsState:    "SUCCESS",
	}, "PENDING"))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "42s", formatDuration(42*time.Second))
	assert.Equal(t, "3m 5s", formatDuration(3*time.Minute+5*time.Second))
	assert.Equal(t, "2h 10m", formatDuration(2*time.Hour+10*time.Minute))
	assert.Equal(t, "1d 6h", formatDuration(30*time.Hour))
}

func buildBundle(t *testing.T, names ...string) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, name := range names {
		content := []byte("payload")
		err := tw.WriteHeader(&tar.Header{
			Name:     name,
			Typeflag: tar.TypeReg,
			Mode:     0644,
			Size:     int64(len(content)),
		})
		assert.NoError(t, err)
		_, err = tw.Write(content)
		assert.NoError(t, err)
	}
	assert.NoError(t, tw.Close())
	assert.NoError(t, gz.Close())

	return &buf
}

func TestTagFromPipelineID(t *testing.T) {
	assert.Equal(t, "1.2.0", tagFromPipelineID("2026-01-02-030405_abc_1.2.0"))
	assert.Equal(t, "v2.0.0-rc1", tagFromPipelineID("2026-01-02-030405_9f2c-11d1_v2.0.0-rc1"))
	assert.Equal(t, "", tagFromPipelineID("not-a-pipeline-id"))
}

func TestVerifyUploadedBundle(t *testing.T) {
	artifacts := artifactservice.NewArtifactService(artifactRepo.NewFileRepo(t.TempDir()))
	service := &ChiefUsecase{
		Config: config.RilisConfig{
			Project: config.ProjectConfig{PackageName: "rok4tools"},
		},
		Artifacts: artifacts,
	}

	pipelineID := "2026-01-02-030405_abc_1.2.0"
	_, err := artifacts.StoreBundle(pipelineID, buildBundle(t,
		"rok4tools-1.2.0-py3-none-any.whl",
		"rok4tools-1.2.0.tar.gz",
	))
	require.NoError(t, err)
	assert.NoError(t, service.VerifyUploadedBundle(pipelineID))

	// Wheel built for the wrong version
	badID := "2026-01-02-030405_abc_1.3.0"
	_, err = artifacts.StoreBundle(badID, buildBundle(t,
		"rok4tools-1.2.0-py3-none-any.whl",
		"rok4tools-1.2.0.tar.gz",
	))
	require.NoError(t, err)
	assert.Error(t, service.VerifyUploadedBundle(badID))

	assert.Error(t, service.VerifyUploadedBundle("not-a-pipeline-id"))
}

func TestDeleteOrphanedRelease(t *testing.T) {
	deleted := []string{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			deleted = append(deleted, r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	service := &ChiefUsecase{
		Config: config.RilisConfig{
			Project: config.ProjectConfig{
				RepoOwner: "rok4",
				RepoName:  "pytools",
			},
		},
		Forge: forge.NewClient(server.URL, ""),
	}

	service.deleteOrphanedRelease(context.Background(), "1.2.0", 42)
	require.Len(t, deleted, 1)
	assert.Equal(t, "/repos/rok4/pytools/releases/42", deleted[0])
}
