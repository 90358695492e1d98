package forge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRelease(t *testing.T) {
	var gotBody releaseRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/repos/rok4/pytools/releases", r.URL.Path)
		require.Equal(t, "Bearer sekrit", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Release{
			ID:        42,
			TagName:   gotBody.TagName,
			UploadURL: "https://uploads.example.com/repos/rok4/pytools/releases/42/assets{?name,label}",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "sekrit")
	release, err := client.CreateRelease(context.Background(), "rok4", "pytools", "1.2.3", "## 1.2.3\n\n- fixes")
	require.NoError(t, err)

	assert.Equal(t, int64(42), release.ID)
	assert.Equal(t, "1.2.3", gotBody.TagName)
	assert.Equal(t, "1.2.3", gotBody.Name)
	assert.Equal(t, "## 1.2.3\n\n- fixes", gotBody.Body)
}

func TestGetReleaseByTagNotFound(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	client := NewClient(server.URL, "")
	_, err := client.GetReleaseByTag(context.Background(), "rok4", "pytools", "9.9.9")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteReleaseAndTagRef(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, "sekrit")
	require.NoError(t, client.DeleteRelease(context.Background(), "rok4", "pytools", 42))
	require.NoError(t, client.DeleteTagRef(context.Background(), "rok4", "pytools", "1.2.3"))

	assert.Equal(t, []string{
		"/repos/rok4/pytools/releases/42",
		"/repos/rok4/pytools/git/refs/tags/1.2.3",
	}, paths)
}

func TestFileContent(t *testing.T) {
	changelog := "## 1.2.3\n\n- everything is better now\n"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/repos/rok4/pytools/contents/CHANGELOG.md", r.URL.Path)
		require.Equal(t, "1.2.3", r.URL.Query().Get("ref"))
		json.NewEncoder(w).Encode(contentsResponse{
			Content:  base64.StdEncoding.EncodeToString([]byte(changelog)),
			Encoding: "base64",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	content, err := client.FileContent(context.Background(), "rok4", "pytools", "CHANGELOG.md", "1.2.3")
	require.NoError(t, err)
	assert.Equal(t, changelog, content)
}

func TestUploadAsset(t *testing.T) {
	dir := t.TempDir()
	wheelPath := filepath.Join(dir, "rok4tools-1.2.3-py3-none-any.whl")
	require.NoError(t, ioutil.WriteFile(wheelPath, []byte("wheel-bytes"), 0644))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/repos/rok4/pytools/releases/42/assets", r.URL.Path)
		require.Equal(t, "rok4tools-1.2.3-py3-none-any.whl", r.URL.Query().Get("name"))
		require.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))

		body, _ := ioutil.ReadAll(r.Body)
		require.Equal(t, "wheel-bytes", string(body))

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Asset{ID: 7, Name: "rok4tools-1.2.3-py3-none-any.whl"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "sekrit")
	uploadURL := server.URL + "/repos/rok4/pytools/releases/42/assets{?name,label}"
	asset, err := client.UploadAsset(context.Background(), uploadURL, wheelPath)
	require.NoError(t, err)
	assert.Equal(t, int64(7), asset.ID)
}

func TestUploadAssetMissingFile(t *testing.T) {
	client := NewClient("http://localhost:1", "")
	_, err := client.UploadAsset(context.Background(), "http://localhost:1/assets", "/no/such/file.whl")
	assert.True(t, os.IsNotExist(err))
}
