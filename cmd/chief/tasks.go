package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/RichardKnop/machinery/v1/tasks"

	chiefusecase "github.com/blankon/rilis-go/internal/chief/usecase"
	"github.com/blankon/rilis-go/internal/forge"
	"github.com/blankon/rilis-go/internal/notification"
)

// Dispatch is the chord callback of the build group. It fans out the
// publishing and docs tasks once every build leg has succeeded.
func Dispatch(payload string) (next string, err error) {
	var submission chiefusecase.ReleaseSubmission
	if err = json.Unmarshal([]byte(payload), &submission); err != nil {
		log.Printf("error: %v\n", err)
		return
	}

	log.Println("Dispatching publish and docs for pipeline " + submission.TaskUUID)

	publishSignature := &tasks.Signature{
		Name: "publish",
		UUID: submission.TaskUUID + "_publish",
		Args: []tasks.Arg{
			{
				Type:  "string",
				Value: payload,
			},
		},
	}
	docsSignature := &tasks.Signature{
		Name: "docs",
		UUID: submission.TaskUUID + "_docs",
		Args: []tasks.Arg{
			{
				Type:  "string",
				Value: payload,
			},
		},
	}

	group, _ := tasks.NewGroup(publishSignature, docsSignature)
	if _, err = server.SendGroup(group, 2); err != nil {
		err = fmt.Errorf("could not send publish/docs group: %v", err)
		return
	}

	next = payload
	return
}

// Rollback deletes the forge release and its tag after a failed build leg.
// Both legs may fail and trigger it twice, so missing release and tag are
// not errors.
func Rollback(errMsg string, payload string) error {
	var submission chiefusecase.ReleaseSubmission
	if err := json.Unmarshal([]byte(payload), &submission); err != nil {
		log.Printf("error: %v\n", err)
		return err
	}

	log.Printf("Rolling back release %s (pipeline %s): %s\n", submission.Tag, submission.TaskUUID, errMsg)

	ctx := context.Background()
	forgeClient := forge.NewClient(rilisConfig.Forge.APIURL, rilisConfig.Forge.Token)

	releaseID := submission.ReleaseID
	if releaseID == 0 {
		release, err := forgeClient.GetReleaseByTag(ctx, submission.RepoOwner, submission.RepoName, submission.Tag)
		if err != nil && err != forge.ErrNotFound {
			return err
		}
		if release != nil {
			releaseID = release.ID
		}
	}

	if releaseID != 0 {
		if err := forgeClient.DeleteRelease(ctx, submission.RepoOwner, submission.RepoName, releaseID); err != nil && err != forge.ErrNotFound {
			return err
		}
	}

	if err := forgeClient.DeleteTagRef(ctx, submission.RepoOwner, submission.RepoName, submission.Tag); err != nil && err != forge.ErrNotFound {
		return err
	}

	log.Printf("Release %s rolled back\n", submission.Tag)

	if rilisConfig.Monitoring.Enabled && monitoringRegistry != nil {
		if store := monitoringRegistry.GetReleaseStore(); store != nil {
			if err := store.UpdateReleaseState(submission.TaskUUID, "ROLLED_BACK"); err != nil {
				log.Printf("Failed to update release state: %v\n", err)
			}
		}
	}

	notification.SendReleaseNotification(
		rilisConfig.Notification.WebhookURL,
		"rollback",
		submission.TaskUUID,
		"ROLLED_BACK",
		notification.ReleaseNotificationInfo{
			PackageName: submission.PackageName,
			Tag:         submission.Tag,
			RepoURL:     submission.RepoURL,
		},
	)

	return nil
}
