package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	artifactmodel "github.com/blankon/rilis-go/internal/artifact/model"
	chiefusecase "github.com/blankon/rilis-go/internal/chief/usecase"
	"github.com/blankon/rilis-go/internal/forge"
	"github.com/blankon/rilis-go/internal/notification"
	"github.com/blankon/rilis-go/internal/pypi"
	"github.com/blankon/rilis-go/pkg/systemutil"
)

func pipelinePath(taskUUID string) string {
	return filepath.Join(rilisConfig.Publisher.Workdir, taskUUID)
}

func bundlePath(taskUUID string) string {
	return filepath.Join(pipelinePath(taskUUID), "bundle")
}

func uploadLog(logPath string, id string) {
	// Upload the log to chief
	cmdStr := "curl -v -F 'uploadFile=@" + logPath + "' '"
	cmdStr += rilisConfig.Chief.Address + "/api/v1/log-upload?id=" + id + "&type=publish'"
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
func Publish(payload string) (next string, err error) {
	var submission chiefusecase.ReleaseSubmission
	if err = json.Unmarshal([]byte(payload), &submission); err != nil {
		log.Printf("error: %v\n", err)
		return
	}

	fmt.Println("Publishing pipeline : " + submission.TaskUUID)

	logPath := filepath.Join(pipelinePath(submission.TaskUUID), "publish.log")
	go systemutil.StreamLog(logPath)

	defer func() {
		status := "SUCCESS"
		if err != nil {
			status = "FAILED"
		}
		notification.SendReleaseNotification(
			rilisConfig.Notification.WebhookURL,
			"publish",
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

	next, err = AttachReleaseAssets(payload)
	if err != nil {
		uploadLog(logPath, submission.TaskUUID)
		return
	}

	next, err = UploadToIndex(payload)
	if err != nil {
		uploadLog(logPath, submission.TaskUUID)
		return
	}

	uploadLog(logPath, submission.TaskUUID)

	fmt.Println("Done.")

	return
}

// FetchBundle downloads the shared build bundle from the chief and checks
// that both dist files are in it
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

	logPath := filepath.Join(pipelinePath(taskUUID), "publish.log")

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

	wheel := artifactmodel.WheelFileName(submission.PackageName, submission.Tag)
	sdist := artifactmodel.SdistFileName(submission.PackageName, submission.Tag)
	for _, distFile := range []string{wheel, sdist} {
		if _, err = os.Stat(filepath.Join(bundlePath(taskUUID), distFile)); err != nil {
			err = fmt.Errorf("bundle is missing %s: %v", distFile, err)
			log.Println(err.Error())
			return
		}
	}

	next = payload
	return
}

// AttachReleaseAssets uploads the wheel and sdist as assets of the forge
// release
func AttachReleaseAssets(payload string) (next string, err error) {
	var submission chiefusecase.ReleaseSubmission
	if err = json.Unmarshal([]byte(payload), &submission); err != nil {
		return
	}

	ctx := context.Background()
	forgeClient := forge.NewClient(rilisConfig.Forge.APIURL, rilisConfig.Forge.Token)

	wheel := artifactmodel.WheelFileName(submission.PackageName, submission.Tag)
	sdist := artifactmodel.SdistFileName(submission.PackageName, submission.Tag)
	for _, distFile := range []string{wheel, sdist} {
		distPath := filepath.Join(bundlePath(submission.TaskUUID), distFile)
		if _, err = forgeClient.UploadAsset(ctx, submission.UploadURL, distPath); err != nil {
			log.Printf("error: %v\n", err)
			return
		}
		log.Println("Attached release asset " + distFile)
	}

	next = payload
	return
}

// UploadToIndex pushes the wheel and sdist to the package index
func UploadToIndex(payload string) (next string, err error) {
	var submission chiefusecase.ReleaseSubmission
	if err = json.Unmarshal([]byte(payload), &submission); err != nil {
		return
	}

	ctx := context.Background()
	indexClient := pypi.NewClient(rilisConfig.Index.UploadURL, rilisConfig.Index.Token)

	wheel := artifactmodel.WheelFileName(submission.PackageName, submission.Tag)
	sdist := artifactmodel.SdistFileName(submission.PackageName, submission.Tag)
	for _, distFile := range []string{wheel, sdist} {
		distPath := filepath.Join(bundlePath(submission.TaskUUID), distFile)
		if err = indexClient.Upload(ctx, distPath, submission.PackageName, submission.Tag); err != nil {
			log.Printf("error: %v\n", err)
			return
		}
		log.Println("Uploaded " + distFile + " to package index")
	}

	next = payload
	return
}
