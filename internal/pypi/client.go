package pypi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/ioutil"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Client pushes dist files to a package index through the legacy upload
// API. Authentication is a single publishing token.
type Client struct {
	uploadURL  string
	token      string
	httpClient *http.Client
}

func NewClient(uploadURL, token string) *Client {
	return &Client{
		uploadURL:  uploadURL,
		token:      token,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// Upload pushes one dist file to the index. The index refuses a filename
// that was already published for this version; the 400/409 response is
// surfaced as-is, there is no retry and no un-publish.
func (c *Client) Upload(ctx context.Context, distPath, packageName, version string) error {
	file, err := os.Open(distPath)
	if err != nil {
		return err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return err
	}
	digest := hex.EncodeToString(hasher.Sum(nil))
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	filetype, pyversion := classifyDist(distPath)

	var buffer bytes.Buffer
	writer := multipart.NewWriter(&buffer)
	fields := map[string]string{
		":action":          "file_upload",
		"protocol_version": "1",
		"name":             packageName,
		"version":          version,
		"filetype":         filetype,
		"pyversion":        pyversion,
		"sha256_digest":    digest,
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return err
		}
	}
	part, err := writer.CreateFormFile("content", filepath.Base(distPath))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, &buffer)
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", writer.FormDataContentType())
	request.SetBasicAuth("__token__", c.token)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("index upload failed for %s: %w", filepath.Base(distPath), err)
	}
	defer response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		body, _ := ioutil.ReadAll(response.Body)
		return fmt.Errorf("index refused %s: status %d: %s",
			filepath.Base(distPath), response.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// classifyDist maps a dist filename to the legacy API filetype/pyversion
// pair: wheels are bdist_wheel/py3, everything else is an sdist.
func classifyDist(distPath string) (filetype, pyversion string) {
	if strings.HasSuffix(distPath, ".whl") {
		return "bdist_wheel", "py3"
	}
	return "sdist", "source"
}
