package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	git "gopkg.in/src-d/go-git.v4"
	"gopkg.in/src-d/go-git.v4/plumbing"

	artifactmodel "github.com/blankon/rilis-go/internal/artifact/model"
	chiefusecase "github.com/blankon/rilis-go/internal/chief/usecase"
	versionpkg "github.com/blankon/rilis-go/internal/version"
	"github.com/blankon/rilis-go/pkg/systemutil"
)

func legPath(taskUUID string, legIndex int) string {
	return filepath.Join(rilisConfig.Builder.Workdir, taskUUID, fmt.Sprintf("leg%d", legIndex))
}

func checkoutPath(taskUUID string, legIndex int) string {
	return filepath.Join(legPath(taskUUID, legIndex), "checkout")
}

func uploadLog(logPath string, id string, legIndex int) {
	// Upload the log to chief
	cmdStr := "curl -v -F 'uploadFile=@" + logPath + "' '"
	cmdStr += rilisConfig.Chief.Address + fmt.Sprintf("/api/v1/log-upload?id=%s&type=build%d'", id, legIndex)
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
func Build(payload string) (next string, err error) {
	var buildPayload chiefusecase.BuildPayload
	if err = json.Unmarshal([]byte(payload), &buildPayload); err != nil {
		log.Printf("error: %v\n", err)
		return
	}

	taskUUID := buildPayload.Submission.TaskUUID
	fmt.Printf("Processing pipeline %s (leg %d, %s / python %s)\n",
		taskUUID, buildPayload.LegIndex, buildPayload.Leg.OS, buildPayload.Leg.Python)

	logPath := filepath.Join(legPath(taskUUID, buildPayload.LegIndex), "build.log")
	go systemutil.StreamLog(logPath)

	next, err = Clone(payload)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		uploadLog(logPath, taskUUID, buildPayload.LegIndex)
		return
	}

	next, err = BumpVersion(payload)
	if err != nil {
		uploadLog(logPath, taskUUID, buildPayload.LegIndex)
		return
	}

	next, err = RunLegCommand(payload)
	if err != nil {
		uploadLog(logPath, taskUUID, buildPayload.LegIndex)
		return
	}

	if buildPayload.Leg.Primary {
		next, err = StoreBundle(payload)
		if err != nil {
			uploadLog(logPath, taskUUID, buildPayload.LegIndex)
			return
		}
	}

	uploadLog(logPath, taskUUID, buildPayload.LegIndex)

	fmt.Println("Done.")

	return
}

// Clone checks out the tagged revision of the project repository
func Clone(payload string) (next string, err error) {
	var buildPayload chiefusecase.BuildPayload
	if err = json.Unmarshal([]byte(payload), &buildPayload); err != nil {
		return
	}

	submission := buildPayload.Submission
	_, err = git.PlainClone(
		checkoutPath(submission.TaskUUID, buildPayload.LegIndex),
		false,
		&git.CloneOptions{
			URL:           submission.RepoURL,
			ReferenceName: plumbing.ReferenceName("refs/tags/" + submission.Tag),
			SingleBranch:  true,
			Depth:         1,
			Progress:      os.Stdout,
		},
	)
	if err != nil {
		fmt.Println(err.Error())
		return
	}

	next = payload
	return
}

// BumpVersion rewrites the version assignment in setup.py and the VERSION
// file so the built distributions carry the tag
func BumpVersion(payload string) (next string, err error) {
	var buildPayload chiefusecase.BuildPayload
	if err = json.Unmarshal([]byte(payload), &buildPayload); err != nil {
		return
	}

	submission := buildPayload.Submission
	err = versionpkg.Bump(
		checkoutPath(submission.TaskUUID, buildPayload.LegIndex),
		rilisConfig.Project.SetupFile,
		rilisConfig.Project.VersionFile,
		submission.Tag,
	)
	if err != nil {
		log.Printf("error: %v\n", err)
		return
	}

	next = payload
	return
}

// RunLegCommand runs this matrix leg's build command inside the checkout
func RunLegCommand(payload string) (next string, err error) {
	var buildPayload chiefusecase.BuildPayload
	if err = json.Unmarshal([]byte(payload), &buildPayload); err != nil {
		return
	}

	taskUUID := buildPayload.Submission.TaskUUID
	logPath := filepath.Join(legPath(taskUUID, buildPayload.LegIndex), "build.log")

	cmdStr := "cd " + checkoutPath(taskUUID, buildPayload.LegIndex)
	cmdStr += " && " + buildPayload.Leg.Command
	_, err = systemutil.CmdExec(
		cmdStr,
		fmt.Sprintf("Building on %s / python %s", buildPayload.Leg.OS, buildPayload.Leg.Python),
		logPath,
	)
	if err != nil {
		log.Println(err.Error())
		return
	}

	next = payload
	return
}

// StoreBundle assembles the shared bundle (dist files, docs sources and
// images) and uploads it to the chief. Only the primary leg does this.
func StoreBundle(payload string) (next string, err error) {
	var buildPayload chiefusecase.BuildPayload
	if err = json.Unmarshal([]byte(payload), &buildPayload); err != nil {
		return
	}

	submission := buildPayload.Submission
	taskUUID := submission.TaskUUID
	checkout := checkoutPath(taskUUID, buildPayload.LegIndex)
	bundleDir := filepath.Join(legPath(taskUUID, buildPayload.LegIndex), "bundle")
	logPath := filepath.Join(legPath(taskUUID, buildPayload.LegIndex), "build.log")

	if err = os.MkdirAll(bundleDir, 0755); err != nil {
		log.Printf("error: %v\n", err)
		return
	}

	// The dist file names are part of the contract with the publisher
	wheel := artifactmodel.WheelFileName(submission.PackageName, submission.Tag)
	sdist := artifactmodel.SdistFileName(submission.PackageName, submission.Tag)
	for _, distFile := range []string{wheel, sdist} {
		src := filepath.Join(checkout, "dist", distFile)
		if _, err = os.Stat(src); err != nil {
			err = fmt.Errorf("expected dist file missing: %v", err)
			log.Println(err.Error())
			return
		}
		if err = systemutil.CopyFile(src, filepath.Join(bundleDir, distFile)); err != nil {
			log.Printf("error: %v\n", err)
			return
		}
	}

	for _, docFile := range []string{rilisConfig.Project.ReadmeFile, rilisConfig.Project.ChangelogFile} {
		src := filepath.Join(checkout, docFile)
		if _, statErr := os.Stat(src); statErr != nil {
			log.Printf("skipping %s: %v\n", docFile, statErr)
			continue
		}
		if err = systemutil.CopyFile(src, filepath.Join(bundleDir, docFile)); err != nil {
			log.Printf("error: %v\n", err)
			return
		}
	}

	if rilisConfig.Project.ImagesDir != "" {
		src := filepath.Join(checkout, rilisConfig.Project.ImagesDir)
		if _, statErr := os.Stat(src); statErr == nil {
			if err = systemutil.CopyDir(src, filepath.Join(bundleDir, "images")); err != nil {
				log.Printf("error: %v\n", err)
				return
			}
		}
	}

	cmdStr := "cd " + bundleDir + " && "
	cmdStr += "tar -zcvf ../" + artifactmodel.BundleFileName + " ."
	// -f so a bundle the chief rejects fails this leg
	cmdStr += " && curl -f -s --show-error -F 'blob=@" + filepath.Join(legPath(taskUUID, buildPayload.LegIndex), artifactmodel.BundleFileName) + "' '"
	cmdStr += rilisConfig.Chief.Address + "/api/v1/artifact-upload?id=" + taskUUID + "'"
	_, err = systemutil.CmdExec(
		cmdStr,
		"Uploading bundle to chief",
		logPath,
	)
	if err != nil {
		log.Printf("error: %v\n", err)
		return
	}

	next = payload
	return
}
