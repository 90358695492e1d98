package service

import (
	"fmt"
	"io"
	"time"

	model "github.com/blankon/rilis-go/internal/artifact/model"
	artifactRepo "github.com/blankon/rilis-go/internal/artifact/repo"
)

// ArtifactItem representation of one stored bundle
type ArtifactItem struct {
	PipelineID string    `json:"pipelineId"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModTime    time.Time `json:"modTime"`
}

// ArtifactList list of stored bundles
type ArtifactList struct {
	TotalData int            `json:"totalData"`
	Artifacts []ArtifactItem `json:"artifacts"`
}

// ArtifactService implements bundle storage on top of the file repo
type ArtifactService struct {
	repo artifactRepo.Repo
}

// NewArtifactService return artifact service instance
func NewArtifactService(repo artifactRepo.Repo) *ArtifactService {
	return &ArtifactService{
		repo: repo,
	}
}

// GetArtifactList get list of stored bundles
// paging is not yet functional
func (A *ArtifactService) GetArtifactList(pageNum int64, rows int64) (list ArtifactList, err error) {
	alist, err := A.repo.GetArtifactList(pageNum, rows)
	if err != nil {
		return
	}

	list.TotalData = alist.TotalData
	list.Artifacts = []ArtifactItem{}

	for _, a := range alist.Artifacts {
		list.Artifacts = append(list.Artifacts, ArtifactItem{
			PipelineID: a.PipelineID,
			Name:       a.Name,
			Size:       a.Size,
			ModTime:    a.ModTime,
		})
	}

	return
}

// StoreBundle stores an uploaded bundle for a pipeline
func (A *ArtifactService) StoreBundle(pipelineID string, tarball io.Reader) (path string, err error) {
	if pipelineID == "" {
		return "", fmt.Errorf("empty pipeline ID")
	}
	return A.repo.PutBundle(pipelineID, tarball)
}

// RemoveBundle discards a stored bundle
func (A *ArtifactService) RemoveBundle(pipelineID string) error {
	return A.repo.RemoveBundle(pipelineID)
}

// VerifyBundle checks that a stored bundle carries the wheel and sdist
// expected for the given release
func (A *ArtifactService) VerifyBundle(pipelineID, packageName, tag string) error {
	entries, err := A.repo.ListBundleEntries(pipelineID)
	if err != nil {
		return err
	}

	wheel := model.WheelFileName(packageName, tag)
	sdist := model.SdistFileName(packageName, tag)

	found := map[string]bool{}
	for _, entry := range entries {
		found[entry] = true
	}

	if !found[wheel] {
		return fmt.Errorf("bundle %s is missing %s", pipelineID, wheel)
	}
	if !found[sdist] {
		return fmt.Errorf("bundle %s is missing %s", pipelineID, sdist)
	}

	return nil
}

// CleanupExpired removes bundles older than the retention window
func (A *ArtifactService) CleanupExpired(retention time.Duration) (int, error) {
	return A.repo.CleanupExpired(retention)
}
