package notification

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExtractRepoName(t *testing.T) {
	assert.Equal(t, "blankon/rok4tools", extractRepoName("https://github.com/blankon/rok4tools.git"))
	assert.Equal(t, "blankon/rok4tools", extractRepoName("git@github.com:blankon/rok4tools.git"))
	assert.Equal(t, "blankon/rok4tools", extractRepoName("https://gitlab.com/blankon/rok4tools"))
	assert.Equal(t, "blankon/rok4tools", extractRepoName("https://git.example.org/blankon/rok4tools/"))
}

func TestSendWebhook(t *testing.T) {
	var received WebhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := ioutil.ReadAll(r.Body)
		_ = json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := SendWebhook(server.URL, "Release publish SUCCESS", "rok4tools 1.2.0")
	assert.NoError(t, err)
	assert.Equal(t, "Release publish SUCCESS", received.Title)
	assert.Equal(t, "rok4tools 1.2.0", received.Message)
}

func TestSendWebhookEmptyURL(t *testing.T) {
	assert.NoError(t, SendWebhook("", "title", "message"))
}

func TestSendWebhookNonSuccess(t *testing.T) {
	defer func(delay time.Duration) { webhookRetryDelay = delay }(webhookRetryDelay)
	webhookRetryDelay = 0

	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := SendWebhook(server.URL, "title", "message")
	assert.Error(t, err)
	assert.Equal(t, webhookRetries, attempts)
}

func TestSendWebhookRetriesTransientFailure(t *testing.T) {
	defer func(delay time.Duration) { webhookRetryDelay = delay }(webhookRetryDelay)
	webhookRetryDelay = 0

	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := SendWebhook(server.URL, "title", "message")
	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
}
