package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	git "gopkg.in/src-d/go-git.v4"
	"gopkg.in/src-d/go-git.v4/plumbing"
	"gopkg.in/src-d/go-git.v4/plumbing/object"
	"gopkg.in/src-d/go-git.v4/plumbing/transport"
	githttp "gopkg.in/src-d/go-git.v4/plumbing/transport/http"

	artifactmodel "github.com/blankon/rilis-go/internal/artifact/model"
	chiefusecase "github.com/blankon/rilis-go/internal/chief/usecase"
	"github.com/blankon/rilis-go/internal/docsite"
	"github.com/blankon/rilis-go/internal/notification"
	"github.com/blankon/rilis-go/pkg/systemutil"
)

func pipelinePath(taskUUID string) string {
	return filepath.Join(rilisConfig.Docs.Workdir, taskUUID)
}

func bundlePath(taskUUID string) string {
	return filepath.Join(pipelinePath(taskUUID), "bundle")
}

func sitePath(taskUUID string) string {
	return filepath.Join(pipelinePath(taskUUID), "site")
}

func docsAuth() transport.AuthMethod {
	if rilisConfig.Forge.Token == "" {
		return nil
	}
	return &githttp.BasicAuth{
		Username: "x-access-token",
		Password: rilisConfig.Forge.Token,
	}
}

func uploadLog(logPath string, id string) {
	// Upload the log to chief
	cmdStr := "curl -v -F 'uploadFile=@" + logPath + "' '"
	cmdStr += rilisConfig.Chief.Address + "/api/v1/log-upload?id=" + id + "&type=docs'"
	_, err := systemutil.CmdExec(
		cmdStr,
		"Uploading log file to chief",
		"",
	)
	if err != nil {
		fmt.Println(err.Error())
	}
}

// Main task wrapper
func Docs(payload string) (next string, err error) {
	var submission chiefusecase.ReleaseSubmission
	if err = json.Unmarshal([]byte(payload), &submission); err != nil {
		log.Printf("error: %v\n", err)
		return
	}

	fmt.Println("Committing docs for pipeline : " + submission.TaskUUID)

	logPath := filepath.Join(pipelinePath(submission.TaskUUID), "docs.log")
	go systemutil.StreamLog(logPath)

	defer func() {
		status := "SUCCESS"
		if err != nil {
			status = "FAILED"
		}
		notification.SendReleaseNotification(
			rilisConfig.Notification.WebhookURL,
			"docs",
			submission.TaskUUID,
			status,
			notification.ReleaseNotificationInfo{
				PackageName: submission.PackageName,
				Tag:         submission.Tag,
				RepoURL:     submission.RepoURL,
				ReleaseURL:  submission.ReleaseURL,
			},
		)
	}()

	next, err = FetchBundle(payload)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		uploadLog(logPath, submission.TaskUUID)
		return
	}

	next, err = CommitDocs(payload)
	if err != nil {
		uploadLog(logPath, submission.TaskUUID)
		return
	}

	uploadLog(logPath, submission.TaskUUID)

	fmt.Println("Done.")

	return
}

// FetchBundle downloads the shared build bundle from the chief
func FetchBundle(payload string) (next string, err error) {
	var submission chiefusecase.ReleaseSubmission
	if err = json.Unmarshal([]byte(payload), &submission); err != nil {
		return
	}

	taskUUID := submission.TaskUUID
	if err = os.MkdirAll(bundlePath(taskUUID), 0755); err != nil {
		log.Printf("error: %v\n", err)
		return
	}

	logPath := filepath.Join(pipelinePath(taskUUID), "docs.log")

	cmdStr := "cd " + pipelinePath(taskUUID) + " && "
	cmdStr += "wget -O " + artifactmodel.BundleFileName + " '"
	cmdStr += rilisConfig.Chief.Address + "/artifacts/" + taskUUID + "/" + artifactmodel.BundleFileName + "'"
	cmdStr += " && tar -xzf " + artifactmodel.BundleFileName + " -C bundle"
	_, err = systemutil.CmdExec(
		cmdStr,
		"Fetching bundle from chief",
		logPath,
	)
	if err != nil {
		log.Printf("error: %v\n", err)
		return
	}

	next = payload
	return
}

// CommitDocs renders the version pages into a fresh checkout of the docs
// branch, regenerates the indexes and pushes the result
func CommitDocs(payload string) (next string, err error) {
	var submission chiefusecase.ReleaseSubmission
	if err = json.Unmarshal([]byte(payload), &submission); err != nil {
		return
	}

	taskUUID := submission.TaskUUID
	siteDir := sitePath(taskUUID)

	repo, err := git.PlainClone(
		siteDir,
		false,
		&git.CloneOptions{
			URL:           rilisConfig.Docs.RepoURL,
			ReferenceName: plumbing.ReferenceName("refs/heads/" + rilisConfig.Docs.Branch),
			SingleBranch:  true,
			Auth:          docsAuth(),
			Progress:      os.Stdout,
		},
	)
	if err != nil {
		log.Printf("error: %v\n", err)
		return
	}

	pages, err := docsite.BuildVersionPages(
		bundlePath(taskUUID),
		rilisConfig.Project.ReadmeFile,
		rilisConfig.Project.ChangelogFile,
		submission.PackageName,
		submission.Tag,
	)
	if err != nil {
		log.Printf("error: %v\n", err)
		return
	}

	if err = docsite.WriteVersionPages(siteDir, submission.Tag, pages); err != nil {
		log.Printf("error: %v\n", err)
		return
	}

	bundledImages := filepath.Join(bundlePath(taskUUID), "images")
	if _, statErr := os.Stat(bundledImages); statErr == nil {
		imagesDst := filepath.Join(siteDir, "versions", submission.Tag, "images")
		if err = systemutil.CopyDir(bundledImages, imagesDst); err != nil {
			log.Printf("error: %v\n", err)
			return
		}
	}

	if err = docsite.RegenerateIndexes(siteDir, submission.PackageName); err != nil {
		log.Printf("error: %v\n", err)
		return
	}

	worktree, err := repo.Worktree()
	if err != nil {
		log.Printf("error: %v\n", err)
		return
	}

	if _, err = worktree.Add("."); err != nil {
		log.Printf("error: %v\n", err)
		return
	}

	_, err = worktree.Commit("docs: add version "+submission.Tag, &git.CommitOptions{
		Author: &object.Signature{
			Name:  rilisConfig.Docs.BotName,
			Email: rilisConfig.Docs.BotEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		log.Printf("error: %v\n", err)
		return
	}

	if err = repo.Push(&git.PushOptions{Auth: docsAuth()}); err != nil {
		log.Printf("error: %v\n", err)
		return
	}

	log.Println("Docs for " + submission.Tag + " pushed to " + rilisConfig.Docs.Branch)

	next = payload
	return
}
