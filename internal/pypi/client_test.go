package pypi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadWheel(t *testing.T) {
	dir := t.TempDir()
	wheelPath := filepath.Join(dir, "rok4tools-1.2.3-py3-none-any.whl")
	wheelBytes := []byte("not-really-a-wheel")
	require.NoError(t, ioutil.WriteFile(wheelPath, wheelBytes, 0644))

	digest := sha256.Sum256(wheelBytes)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "__token__", user)
		require.Equal(t, "pypi-token", pass)

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "file_upload", r.FormValue(":action"))
		assert.Equal(t, "rok4tools", r.FormValue("name"))
		assert.Equal(t, "1.2.3", r.FormValue("version"))
		assert.Equal(t, "bdist_wheel", r.FormValue("filetype"))
		assert.Equal(t, "py3", r.FormValue("pyversion"))
		assert.Equal(t, hex.EncodeToString(digest[:]), r.FormValue("sha256_digest"))

		file, header, err := r.FormFile("content")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "rok4tools-1.2.3-py3-none-any.whl", header.Filename)
		content, _ := ioutil.ReadAll(file)
		assert.Equal(t, wheelBytes, content)

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, "pypi-token")
	err := client.Upload(context.Background(), wheelPath, "rok4tools", "1.2.3")
	assert.NoError(t, err)
}

func TestUploadSdistClassification(t *testing.T) {
	dir := t.TempDir()
	sdistPath := filepath.Join(dir, "rok4tools-1.2.3.tar.gz")
	require.NoError(t, ioutil.WriteFile(sdistPath, []byte("sdist-bytes"), 0644))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "sdist", r.FormValue("filetype"))
		assert.Equal(t, "source", r.FormValue("pyversion"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, "pypi-token")
	assert.NoError(t, client.Upload(context.Background(), sdistPath, "rok4tools", "1.2.3"))
}

func TestUploadConflictSurfaced(t *testing.T) {
	dir := t.TempDir()
	sdistPath := filepath.Join(dir, "rok4tools-1.2.3.tar.gz")
	require.NoError(t, ioutil.WriteFile(sdistPath, []byte("sdist-bytes"), 0644))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte("File already exists"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "pypi-token")
	err := client.Upload(context.Background(), sdistPath, "rok4tools", "1.2.3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
	assert.Contains(t, err.Error(), "File already exists")
}
