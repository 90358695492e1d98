package repo

import (
	"io"
	"time"

	model "github.com/blankon/rilis-go/internal/artifact/model"
)

// ArtifactList list of stored bundles
type ArtifactList struct {
	TotalData int
	Artifacts []model.Artifact
}

// Repo interface to operate with stored build bundles
type Repo interface {
	GetArtifactList(pageNum int64, rows int64) (ArtifactList, error)
	PutBundle(pipelineID string, tarball io.Reader) (string, error)
	RemoveBundle(pipelineID string) error
	BundlePath(pipelineID string) string
	ListBundleEntries(pipelineID string) ([]string, error)
	CleanupExpired(retention time.Duration) (int, error)
}
