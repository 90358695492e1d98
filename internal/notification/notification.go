package notification

import (
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/blankon/rilis-go/pkg/httputil"
)

var (
	webhookRetries    = 3
	webhookRetryDelay = 2 * time.Second
)

// WebhookPayload represents the notification payload sent to the webhook
type WebhookPayload struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// ReleaseNotificationInfo contains release details for notification
type ReleaseNotificationInfo struct {
	PackageName string
	Tag         string
	RepoURL     string
	ReleaseURL  string
}

// SendWebhook sends a notification to the configured webhook URL
func SendWebhook(webhookURL, title, message string) error {
	if webhookURL == "" {
		log.Println("Notification webhook URL not configured, skipping notification")
		return nil
	}

	payload := WebhookPayload{
		Title:   title,
		Message: message,
	}

	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	err := httputil.PostJSONWithRetry(
		nil,
		client,
		webhookURL,
		payload,
		webhookRetries,
		webhookRetryDelay,
		func(attempt, maxAttempts int, err error) {
			log.Printf("Notification attempt %d/%d failed: %v", attempt, maxAttempts, err)
		},
	)
	if err != nil {
		return fmt.Errorf("failed to send notification: %v", err)
	}

	log.Printf("Notification sent successfully: %s", title)
	return nil
}

// extractRepoName extracts username/repo from a git URL
// e.g., https://github.com/blankon/rok4tools.git -> blankon/rok4tools
func extractRepoName(url string) string {
	url = strings.TrimSuffix(url, ".git")

	re := regexp.MustCompile(`(?:github\.com|gitlab\.com|bitbucket\.org)[/:]([^/]+/[^/]+)$`)
	matches := re.FindStringSubmatch(url)
	if len(matches) > 1 {
		return matches[1]
	}

	// Fallback: last two path segments
	parts := strings.Split(strings.TrimSuffix(url, "/"), "/")
	if len(parts) >= 2 {
		return parts[len(parts)-2] + "/" + parts[len(parts)-1]
	}

	return url
}

// SendReleaseNotification sends a release pipeline notification
func SendReleaseNotification(webhookURL, stage, pipelineID, status string, info ReleaseNotificationInfo) {
	title := fmt.Sprintf("Release %s %s", stage, status)

	var emoji string
	switch status {
	case "SUCCESS", "DONE", "PUBLISHED":
		emoji = "✅"
	case "FAILED", "ROLLED_BACK":
		emoji = "❌"
	}

	repoName := ""
	if info.RepoURL != "" {
		repoName = ", " + extractRepoName(info.RepoURL)
	}

	releaseLink := ""
	if info.ReleaseURL != "" {
		releaseLink = " " + info.ReleaseURL
	}

	message := fmt.Sprintf("\U0001F4E6 %s %s%s %s%s",
		info.PackageName,
		info.Tag,
		repoName,
		emoji,
		releaseLink,
	)

	log.Printf("Notification: %s - %s", title, message)

	if err := SendWebhook(webhookURL, title, message); err != nil {
		log.Printf("Failed to send release notification: %v", err)
	}
}
