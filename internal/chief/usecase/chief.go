package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/RichardKnop/machinery/v1"
	"github.com/RichardKnop/machinery/v1/backends/result"
	"github.com/RichardKnop/machinery/v1/tasks"
	"github.com/google/uuid"

	artifactservice "github.com/blankon/rilis-go/internal/artifact/service"
	chiefrepository "github.com/blankon/rilis-go/internal/chief/repository"
	"github.com/blankon/rilis-go/internal/config"
	"github.com/blankon/rilis-go/internal/forge"
	"github.com/blankon/rilis-go/internal/monitoring"
	"github.com/blankon/rilis-go/internal/storage"
)

type ChiefUsecase struct {
	Config             config.RilisConfig
	Server             *machinery.Server
	MonitoringRegistry *monitoring.Registry
	Storage            *chiefrepository.Storage
	Artifacts          *artifactservice.ArtifactService
	Forge              *forge.Client
	Version            string
}

func NewChiefUsecase(
	cfg config.RilisConfig,
	server *machinery.Server,
	registry *monitoring.Registry,
	chiefStorage *chiefrepository.Storage,
	artifacts *artifactservice.ArtifactService,
	forgeClient *forge.Client,
	version string,
) *ChiefUsecase {
	return &ChiefUsecase{
		Config:             cfg,
		Server:             server,
		MonitoringRegistry: registry,
		Storage:            chiefStorage,
		Artifacts:          artifacts,
		Forge:              forgeClient,
		Version:            version,
	}
}

func (s *ChiefUsecase) releaseStore() *storage.ReleaseStore {
	if !s.Config.Monitoring.Enabled || s.MonitoringRegistry == nil {
		return nil
	}
	return s.MonitoringRegistry.GetReleaseStore()
}

// SubmitRelease turns a pushed tag into a running release pipeline. The
// forge release is created synchronously so a creation failure aborts the
// submission before any task is queued.
func (s *ChiefUsecase) SubmitRelease(ctx context.Context, tag string) (SubmitPayloadResponse, error) {
	if tag == "" {
		return SubmitPayloadResponse{}, NewUsecaseError(http.StatusBadRequest, "need a tag")
	}

	project := s.Config.Project

	if store := s.releaseStore(); store != nil {
		existing, err := store.GetReleaseByTag(tag)
		if err != nil {
			log.Printf("Failed to check release history: %v\n", err)
		}
		if existing != nil && !storage.IsTerminalState(existing.State) {
			return SubmitPayloadResponse{}, NewUsecaseError(http.StatusConflict,
				fmt.Sprintf("a pipeline for tag %s is already running: %s", tag, existing.PipelineID))
		}
	}

	changelog, err := s.Forge.FileContent(ctx, project.RepoOwner, project.RepoName, project.ChangelogFile, tag)
	if err != nil {
		if err != forge.ErrNotFound {
			log.Println(err)
			return SubmitPayloadResponse{}, NewUsecaseError(http.StatusBadGateway, "can't fetch changelog from forge")
		}
		log.Printf("No %s at tag %s, release body will be empty\n", project.ChangelogFile, tag)
		changelog = ""
	}

	release, err := s.Forge.CreateRelease(ctx, project.RepoOwner, project.RepoName, tag, changelog)
	if err != nil {
		log.Println(err)
		return SubmitPayloadResponse{}, NewUsecaseError(http.StatusBadGateway,
			"can't create release for tag "+tag+": "+err.Error())
	}

	submission := ReleaseSubmission{
		Timestamp:   time.Now(),
		Tag:         tag,
		PackageName: project.PackageName,
		RepoOwner:   project.RepoOwner,
		RepoName:    project.RepoName,
		RepoURL:     project.RepoURL,
		ReleaseID:   release.ID,
		UploadURL:   release.UploadURL,
		ReleaseURL:  release.HTMLURL,
	}
	submission.TaskUUID = submission.Timestamp.Format("2006-01-02-150405") + "_" + uuid.New().String() + "_" + tag

	buildSignatures, dispatchSignature, err := buildPipelineSignatures(submission, s.Config.Builder.Legs)
	if err != nil {
		log.Println(err)
		return SubmitPayloadResponse{}, NewUsecaseError(http.StatusInternalServerError, "can't prepare pipeline tasks")
	}

	group, _ := tasks.NewGroup(buildSignatures...)
	chord, _ := tasks.NewChord(group, dispatchSignature)
	if _, err = s.Server.SendChord(chord, len(buildSignatures)); err != nil {
		log.Println("Could not send chord : " + err.Error())
		// No task will ever fire the rollback, so the just-created release
		// has to go now or a resubmission of the tag can't create it again
		s.deleteOrphanedRelease(ctx, tag, release.ID)
		return SubmitPayloadResponse{}, NewUsecaseError(http.StatusInternalServerError, "can't queue pipeline tasks")
	}

	if store := s.releaseStore(); store != nil {
		err := store.RecordRelease(storage.ReleaseInfo{
			PipelineID:  submission.TaskUUID,
			Tag:         tag,
			PackageName: project.PackageName,
			RepoOwner:   project.RepoOwner,
			RepoName:    project.RepoName,
			ReleaseID:   release.ID,
			SubmittedAt: submission.Timestamp,
			State:       "PENDING",
		})
		if err != nil {
			log.Printf("Failed to record release: %v\n", err)
		}
	}

	jobs := make([]string, 0, len(buildSignatures))
	for _, sig := range buildSignatures {
		jobs = append(jobs, sig.UUID)
	}

	return SubmitPayloadResponse{PipelineId: submission.TaskUUID, Jobs: jobs}, nil
}

// deleteOrphanedRelease removes a release whose pipeline never got queued.
// The tag ref is left alone so the operator can resubmit without pushing
// the tag again.
func (s *ChiefUsecase) deleteOrphanedRelease(ctx context.Context, tag string, releaseID int64) {
	project := s.Config.Project
	if err := s.Forge.DeleteRelease(ctx, project.RepoOwner, project.RepoName, releaseID); err != nil && err != forge.ErrNotFound {
		log.Printf("Failed to delete orphaned release for %s: %v\n", tag, err)
	}
}

// tagFromPipelineID recovers the tag suffix of a pipeline ID
// (timestamp_uuid_tag)
func tagFromPipelineID(pipelineID string) string {
	parts := strings.SplitN(pipelineID, "_", 3)
	if len(parts) < 3 {
		return ""
	}
	return parts[2]
}

// VerifyUploadedBundle checks a freshly stored bundle against the wheel and
// sdist names expected for the pipeline's release
func (s *ChiefUsecase) VerifyUploadedBundle(pipelineID string) error {
	tag := ""
	if store := s.releaseStore(); store != nil {
		if release, err := store.GetRelease(pipelineID); err == nil && release != nil {
			tag = release.Tag
		}
	}
	if tag == "" {
		tag = tagFromPipelineID(pipelineID)
	}
	if tag == "" {
		return fmt.Errorf("can't resolve tag for pipeline %s", pipelineID)
	}
	return s.Artifacts.VerifyBundle(pipelineID, s.Config.Project.PackageName, tag)
}

// buildPipelineSignatures prepares one build signature per matrix leg plus
// the dispatch callback that fans out publishing and docs once every leg
// succeeded. Each leg carries the rollback task as its error callback.
func buildPipelineSignatures(submission ReleaseSubmission, legs []config.MatrixLeg) (buildSignatures []*tasks.Signature, dispatchSignature *tasks.Signature, err error) {
	submissionJSON, err := json.Marshal(submission)
	if err != nil {
		return nil, nil, err
	}

	rollbackSignature := &tasks.Signature{
		Name: "rollback",
		UUID: submission.TaskUUID + "_rollback",
		Args: []tasks.Arg{
			{
				Type:  "string",
				Value: string(submissionJSON),
			},
		},
	}

	for i, leg := range legs {
		payload := BuildPayload{
			Submission: submission,
			Leg:        leg,
			LegIndex:   i,
		}
		payloadJSON, marshalErr := json.Marshal(payload)
		if marshalErr != nil {
			return nil, nil, marshalErr
		}

		buildSignatures = append(buildSignatures, &tasks.Signature{
			Name: "build",
			UUID: fmt.Sprintf("%s_build%d", submission.TaskUUID, i),
			Args: []tasks.Arg{
				{
					Type:  "string",
					Value: string(payloadJSON),
				},
			},
			OnError: []*tasks.Signature{rollbackSignature},
		})
	}

	// Immutable so the chord callback doesn't receive the build results as
	// extra arguments
	dispatchSignature = &tasks.Signature{
		Name:      "dispatch",
		UUID:      submission.TaskUUID + "_dispatch",
		Immutable: true,
		Args: []tasks.Arg{
			{
				Type:  "string",
				Value: string(submissionJSON),
			},
		},
	}

	return buildSignatures, dispatchSignature, nil
}

// ReleaseStatus reports the progress of one pipeline
func (s *ChiefUsecase) ReleaseStatus(pipelineID string) (ReleaseStatusResponse, error) {
	stages := monitoring.GetReleaseStagesFromMachinery(s.Server.GetBackend(), pipelineID, len(s.Config.Builder.Legs))
	rollbackState := s.taskState("rollback", pipelineID+"_rollback")

	state := deriveReleaseState(stages, rollbackState)

	response := ReleaseStatusResponse{
		PipelineID:   pipelineID,
		State:        state,
		CurrentStage: stages.CurrentStage,
		BuildStates:  stages.BuildStates,
		PublishState: stages.PublishState,
		DocsState:    stages.DocsState,
	}
	if state == "ROLLED_BACK" || state == "FAILED" {
		response.CurrentStage = "rollback"
	}

	if store := s.releaseStore(); store != nil {
		if release, err := store.GetRelease(pipelineID); err == nil {
			response.Tag = release.Tag
		}
		buildState := strings.Join(stages.BuildStates, ",")
		if err := store.UpdateStageStates(pipelineID, buildState, stages.PublishState, stages.DocsState, response.CurrentStage); err != nil {
			log.Printf("Failed to update stage states: %v\n", err)
		}
		if err := store.UpdateReleaseState(pipelineID, state); err != nil {
			log.Printf("Failed to update release state: %v\n", err)
		}
	}

	return response, nil
}

func (s *ChiefUsecase) taskState(name, taskUUID string) string {
	signature := tasks.Signature{
		Name: name,
		UUID: taskUUID,
	}
	asyncResult := result.NewAsyncResult(&signature, s.Server.GetBackend())
	asyncResult.Touch()
	return asyncResult.GetState().State
}

// deriveReleaseState maps raw task states to the pipeline state shown to
// users. A failed build leg means the release was (or is being) rolled
// back; publish and docs failures leave the release in place.
func deriveReleaseState(stages monitoring.ReleaseStages, rollbackState string) string {
	for _, state := range stages.BuildStates {
		if state == "FAILURE" {
			if rollbackState == "SUCCESS" {
				return "ROLLED_BACK"
			}
			return "FAILED"
		}
	}

	allBuilt := true
	started := false
	for _, state := range stages.BuildStates {
		if state != "SUCCESS" {
			allBuilt = false
		}
		if state == "STARTED" || state == "RECEIVED" || state == "RETRY" {
			started = true
		}
	}

	if !allBuilt {
		if started {
			return "STARTED"
		}
		return "PENDING"
	}

	if stages.PublishState == "FAILURE" || stages.DocsState == "FAILURE" {
		return "FAILED"
	}
	if stages.PublishState == "SUCCESS" && stages.DocsState == "SUCCESS" {
		return "PUBLISHED"
	}

	return "STARTED"
}

// UploadLog stores a worker's log file under the chief's log directory
func (s *ChiefUsecase) UploadLog(id string, logType string, file io.Reader) error {
	if err := s.Storage.EnsureDir(s.Storage.LogsDir()); err != nil {
		log.Println(err.Error())
		return NewUsecaseError(http.StatusInternalServerError, "")
	}

	fileBytes, err := ioutil.ReadAll(file)
	if err != nil {
		log.Println(err.Error())
		return NewUsecaseError(http.StatusBadRequest, "")
	}

	filetype := strings.Split(http.DetectContentType(fileBytes), ";")[0]
	invalidType := false
	switch filetype {
	case "text/plain":
	default:
		log.Println("File upload rejected: should be a plain text log file.")
		invalidType = true
	}

	newPath := s.Storage.LogPath(id, logType)
	newFile, err := os.Create(newPath)
	if err != nil {
		log.Println(err.Error())
		return NewUsecaseError(http.StatusInternalServerError, "")
	}
	defer newFile.Close()

	if _, err := newFile.Write(fileBytes); err != nil {
		log.Println(err.Error())
		return NewUsecaseError(http.StatusInternalServerError, "")
	}

	if invalidType {
		return NewUsecaseError(http.StatusBadRequest, "")
	}

	return nil
}

// CleanupExpiredArtifacts drops shared build bundles past the retention
// window
func (s *ChiefUsecase) CleanupExpiredArtifacts() {
	retention := time.Duration(s.Config.Chief.ArtifactRetentionHours) * time.Hour
	removed, err := s.Artifacts.CleanupExpired(retention)
	if err != nil {
		log.Printf("Artifact cleanup failed: %v\n", err)
	}
	if removed > 0 {
		log.Printf("Artifact cleanup: removed %d expired bundles\n", removed)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%dd %dh", int(d.Hours())/24, int(d.Hours())%24)
}

func formatRelativeTime(t time.Time) string {
	d := time.Since(t)
	if d < 0 {
		return "just now"
	}
	seconds := int(d.Seconds())
	if seconds < 60 {
		if seconds == 1 {
			return "1 second ago"
		}
		return fmt.Sprintf("%d seconds ago", seconds)
	}
	minutes := int(d.Minutes())
	if minutes < 60 {
		if minutes == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", minutes)
	}
	hours := int(d.Hours())
	if hours < 24 {
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	}
	days := hours / 24
	if days == 1 {
		return "1 day ago"
	}
	return fmt.Sprintf("%d days ago", days)
}
