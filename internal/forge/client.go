package forge

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound is returned when the forge answers 404. Rollback treats it as
// already-deleted.
var ErrNotFound = errors.New("forge: not found")

// Client talks to a GitHub-style REST API: releases, release assets, git
// refs and file contents.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Release is a release record as the forge reports it.
type Release struct {
	ID        int64   `json:"id"`
	TagName   string  `json:"tag_name"`
	Name      string  `json:"name"`
	Body      string  `json:"body"`
	UploadURL string  `json:"upload_url"`
	HTMLURL   string  `json:"html_url"`
	Assets    []Asset `json:"assets"`
}

type Asset struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

type releaseRequest struct {
	TagName string `json:"tag_name"`
	Name    string `json:"name"`
	Body    string `json:"body"`
}

type contentsResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// CreateRelease creates a release named after the tag, seeded with body.
func (c *Client) CreateRelease(ctx context.Context, owner, repo, tag, body string) (*Release, error) {
	path := fmt.Sprintf("/repos/%s/%s/releases", owner, repo)
	payload := releaseRequest{TagName: tag, Name: tag, Body: body}

	var release Release
	if err := c.doRequest(ctx, http.MethodPost, path, payload, &release); err != nil {
		return nil, fmt.Errorf("failed to create release %s: %w", tag, err)
	}
	return &release, nil
}

// GetReleaseByTag fetches the release named after tag, ErrNotFound if none.
func (c *Client) GetReleaseByTag(ctx context.Context, owner, repo, tag string) (*Release, error) {
	path := fmt.Sprintf("/repos/%s/%s/releases/tags/%s", owner, repo, tag)

	var release Release
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &release); err != nil {
		return nil, err
	}
	return &release, nil
}

// LatestRelease fetches the most recent published release.
func (c *Client) LatestRelease(ctx context.Context, owner, repo string) (*Release, error) {
	path := fmt.Sprintf("/repos/%s/%s/releases/latest", owner, repo)

	var release Release
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &release); err != nil {
		return nil, err
	}
	return &release, nil
}

// DeleteRelease removes a release record. The underlying tag survives and
// must be deleted separately with DeleteTagRef.
func (c *Client) DeleteRelease(ctx context.Context, owner, repo string, releaseID int64) error {
	path := fmt.Sprintf("/repos/%s/%s/releases/%d", owner, repo, releaseID)
	return c.doRequest(ctx, http.MethodDelete, path, nil, nil)
}

// DeleteTagRef removes the tag ref itself.
func (c *Client) DeleteTagRef(ctx context.Context, owner, repo, tag string) error {
	path := fmt.Sprintf("/repos/%s/%s/git/refs/tags/%s", owner, repo, tag)
	return c.doRequest(ctx, http.MethodDelete, path, nil, nil)
}

// FileContent fetches a file from the repository at the given ref through
// the contents API.
func (c *Client) FileContent(ctx context.Context, owner, repo, filePath, ref string) (string, error) {
	path := fmt.Sprintf("/repos/%s/%s/contents/%s?ref=%s", owner, repo, filePath, url.QueryEscape(ref))

	var contents contentsResponse
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &contents); err != nil {
		return "", err
	}
	if contents.Encoding != "base64" {
		return contents.Content, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(contents.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("failed to decode %s: %w", filePath, err)
	}
	return string(decoded), nil
}

// UploadAsset attaches a local file to a release. uploadURL is the
// templated upload_url returned by the release API.
func (c *Client) UploadAsset(ctx context.Context, uploadURL, assetPath string) (*Asset, error) {
	// Strip the {?name,label} URI template suffix
	if idx := strings.Index(uploadURL, "{"); idx >= 0 {
		uploadURL = uploadURL[:idx]
	}
	name := filepath.Base(assetPath)
	uploadURL = uploadURL + "?name=" + url.QueryEscape(name)

	file, err := os.Open(assetPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return nil, err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, file)
	if err != nil {
		return nil, err
	}
	request.ContentLength = info.Size()
	request.Header.Set("Content-Type", "application/octet-stream")
	c.setAuthHeaders(request)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("failed to upload asset %s: %w", name, err)
	}
	defer response.Body.Close()

	if err := checkStatus(response); err != nil {
		return nil, fmt.Errorf("failed to upload asset %s: %w", name, err)
	}

	var asset Asset
	if err := json.NewDecoder(response.Body).Decode(&asset); err != nil {
		return nil, fmt.Errorf("failed to decode asset response: %w", err)
	}
	return &asset, nil
}

// Download fetches an arbitrary URL (release asset download) as a stream.
func (c *Client) Download(ctx context.Context, downloadURL string) (io.ReadCloser, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, err
	}
	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(response); err != nil {
		response.Body.Close()
		return nil, err
	}
	return response.Body, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, payload, result interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(data)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	c.setAuthHeaders(request)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer response.Body.Close()

	if err := checkStatus(response); err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) setAuthHeaders(request *http.Request) {
	if c.token != "" {
		request.Header.Set("Authorization", "Bearer "+c.token)
	}
	request.Header.Set("Accept", "application/vnd.github+json")
}

func checkStatus(response *http.Response) error {
	if response.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		body, _ := ioutil.ReadAll(response.Body)
		return fmt.Errorf("API returned status %d: %s", response.StatusCode, string(body))
	}
	return nil
}
