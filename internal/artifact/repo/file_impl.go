package repo

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	model "github.com/blankon/rilis-go/internal/artifact/model"
)

// FileRepo stores build bundles on the local filesystem under
// {workdir}/artifacts/{pipelineID}/dist-py3.tar.gz
type FileRepo struct {
	Workdir string
}

// NewFileRepo create new instance
func NewFileRepo(workdir string) *FileRepo {
	return &FileRepo{
		Workdir: workdir,
	}
}

// BundlePath returns the on-disk path of a pipeline's bundle
func (A *FileRepo) BundlePath(pipelineID string) string {
	return filepath.Join(A.Workdir, "artifacts", pipelineID, model.BundleFileName)
}

// GetArtifactList lists stored bundles, newest first
// paging is not implemented yet
func (A *FileRepo) GetArtifactList(pageNum int64, rows int64) (artifactsList ArtifactList, err error) {
	dirs, err := filepath.Glob(filepath.Join(A.Workdir, "artifacts", "*"))
	if err != nil {
		return
	}

	artifactsList.Artifacts = []model.Artifact{}

	for _, dir := range dirs {
		info, statErr := os.Stat(dir)
		if statErr != nil || !info.IsDir() {
			continue
		}

		pipelineID := filepath.Base(dir)
		bundleInfo, statErr := os.Stat(A.BundlePath(pipelineID))
		if statErr != nil {
			continue
		}

		artifactsList.Artifacts = append(artifactsList.Artifacts, model.Artifact{
			PipelineID: pipelineID,
			Name:       pipelineID + "/" + model.BundleFileName,
			Size:       bundleInfo.Size(),
			ModTime:    bundleInfo.ModTime(),
		})
	}

	sort.Slice(artifactsList.Artifacts, func(i, j int) bool {
		return artifactsList.Artifacts[i].ModTime.After(artifactsList.Artifacts[j].ModTime)
	})
	artifactsList.TotalData = len(artifactsList.Artifacts)

	return
}

// PutBundle stores an uploaded bundle, overwriting any previous upload for
// the same pipeline
func (A *FileRepo) PutBundle(pipelineID string, tarball io.Reader) (path string, err error) {
	path = A.BundlePath(pipelineID)

	err = os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return "", err
	}

	out, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer out.Close()

	_, err = io.Copy(out, tarball)
	if err != nil {
		return "", err
	}

	return path, nil
}

// RemoveBundle discards a stored bundle and its pipeline directory
func (A *FileRepo) RemoveBundle(pipelineID string) error {
	if pipelineID == "" {
		return fmt.Errorf("empty pipeline ID")
	}
	return os.RemoveAll(filepath.Dir(A.BundlePath(pipelineID)))
}

// ListBundleEntries returns the file names contained in a pipeline's bundle
func (A *FileRepo) ListBundleEntries(pipelineID string) (entries []string, err error) {
	file, err := os.Open(A.BundlePath(pipelineID))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("invalid bundle for %s: %v", pipelineID, err)
	}
	defer gz.Close()

	reader := tar.NewReader(gz)
	for {
		header, readErr := reader.Next()
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("invalid bundle for %s: %v", pipelineID, readErr)
		}
		if header.Typeflag == tar.TypeReg {
			entries = append(entries, filepath.Base(header.Name))
		}
	}

	return entries, nil
}

// CleanupExpired removes bundle directories older than the retention window
func (A *FileRepo) CleanupExpired(retention time.Duration) (removed int, err error) {
	dirs, err := filepath.Glob(filepath.Join(A.Workdir, "artifacts", "*"))
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-retention)
	for _, dir := range dirs {
		info, statErr := os.Stat(dir)
		if statErr != nil || !info.IsDir() {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			err = rmErr
			continue
		}
		removed++
	}

	return removed, err
}
