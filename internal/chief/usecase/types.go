package usecase

import (
	"time"

	"github.com/blankon/rilis-go/internal/config"
)

// ReleaseSubmission travels with every task of a release pipeline
type ReleaseSubmission struct {
	TaskUUID    string    `json:"taskUUID"`
	Timestamp   time.Time `json:"timestamp"`
	Tag         string    `json:"tag"`
	PackageName string    `json:"packageName"`
	RepoOwner   string    `json:"repoOwner"`
	RepoName    string    `json:"repoName"`
	RepoURL     string    `json:"repoUrl"`
	ReleaseID   int64     `json:"releaseId"`
	UploadURL   string    `json:"uploadUrl"`
	ReleaseURL  string    `json:"releaseUrl"`
}

// BuildPayload is the argument of one build leg task
type BuildPayload struct {
	Submission ReleaseSubmission `json:"submission"`
	Leg        config.MatrixLeg  `json:"leg"`
	LegIndex   int               `json:"legIndex"`
}

type SubmitPayloadResponse struct {
	PipelineId string   `json:"pipelineId"`
	Jobs       []string `json:"jobs,omitempty"`
}

// ReleaseStatusResponse describes a pipeline's progress
type ReleaseStatusResponse struct {
	PipelineID   string   `json:"pipelineId"`
	Tag          string   `json:"tag"`
	State        string   `json:"state"`
	CurrentStage string   `json:"currentStage"`
	BuildStates  []string `json:"buildStates"`
	PublishState string   `json:"publishState"`
	DocsState    string   `json:"docsState"`
}

type UsecaseError struct {
	Code    int
	Message string
}

func (e UsecaseError) Error() string {
	return e.Message
}

func NewUsecaseError(code int, message string) UsecaseError {
	return UsecaseError{Code: code, Message: message}
}
