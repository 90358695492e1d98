package endpoint

import (
	"log"
	"net/http"

	service "github.com/blankon/rilis-go/internal/artifact/service"
	httputil "github.com/blankon/rilis-go/pkg/httputil"
)

// BundleChecker validates a freshly stored bundle for a pipeline
type BundleChecker func(pipelineID string) error

// ArtifactHTTPEndpoint http endpoint for stored bundles
type ArtifactHTTPEndpoint struct {
	service *service.ArtifactService
	checker BundleChecker
}

// NewArtifactHTTPEndpoint returns new artifact endpoint instance
func NewArtifactHTTPEndpoint(service *service.ArtifactService, checker BundleChecker) *ArtifactHTTPEndpoint {
	return &ArtifactHTTPEndpoint{
		service: service,
		checker: checker,
	}
}

// GetArtifactListHandler lists stored bundles
func (A *ArtifactHTTPEndpoint) GetArtifactListHandler(w http.ResponseWriter, r *http.Request) {
	artifactList, err := A.service.GetArtifactList(1, 1)
	if err != nil {
		httputil.ResponseError("Can't get artifact list", http.StatusInternalServerError, w)
		return
	}

	httputil.ResponseJSON(artifactList, http.StatusOK, w)
}

// UploadBundleHandler accepts a multipart bundle upload from a build leg
func (A *ArtifactHTTPEndpoint) UploadBundleHandler(w http.ResponseWriter, r *http.Request) {
	pipelineID := r.URL.Query().Get("id")
	if pipelineID == "" {
		httputil.ResponseError("Need id parameter", http.StatusBadRequest, w)
		return
	}

	file, _, err := r.FormFile("blob")
	if err != nil {
		httputil.ResponseError("Can't read uploaded file", http.StatusBadRequest, w)
		return
	}
	defer file.Close()

	path, err := A.service.StoreBundle(pipelineID, file)
	if err != nil {
		httputil.ResponseError("Can't store bundle", http.StatusInternalServerError, w)
		return
	}

	// The bundle is write-once; a bad one must not reach publish or docs
	if A.checker != nil {
		if checkErr := A.checker(pipelineID); checkErr != nil {
			if rmErr := A.service.RemoveBundle(pipelineID); rmErr != nil {
				log.Printf("Failed to discard rejected bundle %s: %v\n", pipelineID, rmErr)
			}
			httputil.ResponseError(checkErr.Error(), http.StatusUnprocessableEntity, w)
			return
		}
	}

	httputil.ResponseJSON(map[string]string{"path": path}, http.StatusOK, w)
}
