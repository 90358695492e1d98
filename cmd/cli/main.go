package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"os/user"
	"strings"

	"github.com/imroc/req"
	"github.com/inconshreveable/go-update"
	"github.com/manifoldco/promptui"
	"github.com/urfave/cli"
)

type GithubReleaseResponse struct {
	Url    string `json:"url"`
	Assets []struct {
		Name               string `json:"name"`
		BrowserDownloadUrl string `json:"browser_download_url"`
	}
}

type ReleaseStatusResponse struct {
	PipelineID   string   `json:"pipelineId"`
	Tag          string   `json:"tag"`
	State        string   `json:"state"`
	CurrentStage string   `json:"currentStage"`
	BuildStates  []string `json:"buildStates"`
	PublishState string   `json:"publishState"`
	DocsState    string   `json:"docsState"`
}

var (
	app          *cli.App
	homeDir      string
	chiefAddress string
	tag          string
	version      string
	pipelineId   string
)

func checkForInitValues() (err error) {
	dat, _ := ioutil.ReadFile(homeDir + "/.rilis/RILIS_CHIEF_ADDRESS")
	chiefAddress = string(dat)
	if len(chiefAddress) < 1 {
		errMsg := "rilis-cli need to be configured first. Run: "
		errMsg += "rilis-cli config --chief yourrilischiefaddress"
		err = errors.New(errMsg)
		fmt.Println(err.Error())
	}
	return
}

// lastPipelineID falls back to the pipeline recorded by the most recent
// release command.
func lastPipelineID(arg string) (string, error) {
	if len(arg) > 0 {
		return arg, nil
	}
	dat, _ := ioutil.ReadFile(homeDir + "/.rilis/LAST_PIPELINE_ID")
	id := string(dat)
	if len(id) < 1 {
		return "", errors.New("pipeline id should not be empty")
	}
	return id, nil
}

func fetchLog(logName string) (err error) {
	result, err := req.Get(chiefAddress+"/logs/"+logName, nil)
	if err != nil {
		log.Println(err.Error())
		return err
	}
	logResult := fmt.Sprintf("%+v", result)
	if strings.Contains(logResult, "404 page not found") {
		err = errors.New(logName + " is not found. The worker/pipeline may terminated ungracefully.")
		return err
	}
	fmt.Println(logResult)
	return
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	usr, err := user.Current()
	if err != nil {
		log.Fatal(err)
	}
	homeDir = usr.HomeDir

	app = cli.NewApp()
	app.Name = "rilis-go"
	app.Usage = "rilis-go release pipeline"
	app.Author = "BlankOn Developer"
	app.Email = "blankon-dev@googlegroups.com"
	app.Version = version

	app.Commands = []cli.Command{

		{
			Name:  "config",
			Usage: "Configure rilis-cli",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:        "chief",
					Value:       "",
					Destination: &chiefAddress,
					Usage:       "Chief address",
				},
			},
			Action: func(c *cli.Context) (err error) {
				if len(chiefAddress) < 1 {
					msg := "Chief address should not be empty. Example: "
					msg += "rilis-cli config --chief https://rilis.blankonlinux.or.id"
					err = errors.New(msg)
					return
				}
				_, err = url.ParseRequestURI(chiefAddress)
				if err != nil {
					return
				}

				cmdStr := "mkdir -p " + homeDir + "/.rilis && echo -n '" + chiefAddress
				cmdStr += "' > " + homeDir + "/.rilis/RILIS_CHIEF_ADDRESS"
				cmd := exec.Command("bash", "-c", cmdStr)
				err = cmd.Run()
				if err != nil {
					log.Println(cmdStr)
					log.Printf("error: %v\n", err)
					return
				}
				fmt.Println("rilis-cli is successfully configured. Happy hacking!")
				return err
			},
		},

		{
			Name:  "release",
			Usage: "Trigger a release pipeline for a tag",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:        "tag",
					Value:       "",
					Destination: &tag,
					Usage:       "Release tag",
				},
				cli.BoolFlag{
					Name:  "yes",
					Usage: "Skip the confirmation prompt",
				},
			},
			Action: func(ctx *cli.Context) (err error) {
				err = checkForInitValues()
				if err != nil {
					log.Println(err)
					return err
				}
				if len(tag) < 1 {
					err = errors.New("--tag should not be empty")
					return
				}

				// Check version first
				header := make(http.Header)
				header.Set("Accept", "application/json")
				req.SetFlags(req.LrespBody)

				type VersionResponse struct {
					Version string `json:"version"`
				}
				result, err := req.Get(chiefAddress+"/api/v1/version", nil)
				if err != nil {
					log.Println(err)
					return err
				}
				responseStr := fmt.Sprintf("%+v", result)
				versionResponse := VersionResponse{}
				err = json.Unmarshal([]byte(responseStr), &versionResponse)
				if err != nil {
					log.Println(err)
					return
				}

				if versionResponse.Version != app.Version {
					log.Println("Target version", versionResponse.Version)
					log.Println("Local version", app.Version)
					err = errors.New("Client version mismatch. Please update your rilis-cli.")
					return
				}

				if !ctx.Bool("yes") {
					prompt := promptui.Prompt{
						Label:     "Releasing " + tag + " will publish the package to the index and cannot be unpublished. Are you sure you want to continue?",
						IsConfirm: true,
					}
					result, promptErr := prompt.Run()
					// Avoid shadowed err
					err = promptErr
					if err != nil {
						log.Println(err)
						return
					}
					if strings.ToLower(result) != "y" {
						return
					}
				}

				type ReleaseRequest struct {
					Tag string `json:"tag"`
				}
				jsonByte, _ := json.Marshal(ReleaseRequest{Tag: tag})

				log.Println("Submitting release for " + tag + "...")
				result, err = req.Post(chiefAddress+"/api/v1/release", header, req.BodyJSON(string(jsonByte)))
				if err != nil {
					log.Println(err)
					return
				}

				responseStr = fmt.Sprintf("%+v", result)
				if !strings.Contains(responseStr, "pipelineId") {
					log.Println(responseStr)
					fmt.Println("Release submission failed.")
					return
				}
				type SubmitResponse struct {
					PipelineID string `json:"pipelineId"`
				}
				submissionResponse := SubmitResponse{}
				err = json.Unmarshal([]byte(responseStr), &submissionResponse)
				if err != nil {
					log.Println(err)
					return
				}
				fmt.Println("Release submission succeeded. Pipeline ID:")
				fmt.Println(submissionResponse.PipelineID)
				cmdStr := "mkdir -p " + homeDir + "/.rilis && echo -n '"
				cmdStr += submissionResponse.PipelineID + "' > " + homeDir + "/.rilis/LAST_PIPELINE_ID"
				cmd := exec.Command("bash", "-c", cmdStr)
				err = cmd.Run()
				if err != nil {
					log.Println(err)
					return
				}

				return err
			},
		},
		{
			Name:  "status",
			Usage: "Check status of a release pipeline",
			Action: func(c *cli.Context) (err error) {
				err = checkForInitValues()
				if err != nil {
					os.Exit(1)
				}
				pipelineId, err = lastPipelineID(c.Args().First())
				if err != nil {
					return
				}
				fmt.Println("Checking the status of " + pipelineId + " ...")
				req.SetFlags(req.LrespBody)
				result, err := req.Get(chiefAddress+"/api/v1/status?uuid="+pipelineId, nil)
				if err != nil {
					return err
				}

				responseStr := fmt.Sprintf("%+v", result)
				responseJson := ReleaseStatusResponse{}
				err = json.Unmarshal([]byte(responseStr), &responseJson)
				if err != nil {
					return
				}
				fmt.Println(responseJson.State)
				if len(responseJson.CurrentStage) > 0 {
					fmt.Println("Stage: " + responseJson.CurrentStage)
				}

				return
			},
		},
		{
			Name:  "log",
			Usage: "Read the logs of a release pipeline",
			Action: func(c *cli.Context) (err error) {
				err = checkForInitValues()
				if err != nil {
					os.Exit(1)
				}
				pipelineId, err = lastPipelineID(c.Args().First())
				if err != nil {
					return
				}
				fmt.Println("Fetching the logs of " + pipelineId + " ...")
				req.SetFlags(req.LrespBody)
				result, err := req.Get(chiefAddress+"/api/v1/status?uuid="+pipelineId, nil)
				if err != nil {
					return err
				}

				responseStr := fmt.Sprintf("%+v", result)
				responseJson := ReleaseStatusResponse{}
				err = json.Unmarshal([]byte(responseStr), &responseJson)
				if err != nil {
					return
				}
				if responseJson.State == "STARTED" || responseJson.State == "PENDING" {
					fmt.Println("The pipeline is not finished yet")
					return
				}

				for i := range responseJson.BuildStates {
					err = fetchLog(fmt.Sprintf("%s.build%d.log", pipelineId, i))
					if err != nil {
						return err
					}
				}
				// Publish and docs logs only exist when the builds went through
				for _, logType := range []string{"publish", "docs"} {
					logErr := fetchLog(pipelineId + "." + logType + ".log")
					if logErr != nil {
						fmt.Println(logErr.Error())
					}
				}

				return
			},
		},
		{
			Name:  "update",
			Usage: "Update the rilis-cli tool",
			Action: func(c *cli.Context) (err error) {
				var (
					cmdStr          = "ln -sf /usr/bin/rilis-cli /usr/bin/rilis && /usr/bin/rilis-cli --version"
					downloadURL     string
					githubResponse  GithubReleaseResponse
					githubAssetName = "rilis-cli"
					url             = "https://api.github.com/repos/BlankOn/rilis-go/releases/latest"
				)

				response, err := http.Get(url)
				if err != nil {
					log.Printf("error: %v\n", err)
					log.Println("Failed to get the latest release.")

					return
				}
				defer response.Body.Close()

				body, err := ioutil.ReadAll(response.Body)
				if err != nil {
					log.Printf("error: %v\n", err)

					return
				}

				if err := json.Unmarshal(body, &githubResponse); err != nil {
					log.Printf("error: %v\n", err)

					return err
				}

				for _, asset := range githubResponse.Assets {
					if asset.Name == githubAssetName {
						downloadURL = strings.TrimSuffix(string(asset.BrowserDownloadUrl), "\n")
						break
					}
				}

				log.Println(downloadURL)
				log.Println("Self-updating...")

				resp, err := http.Get(downloadURL)
				if err != nil {
					log.Printf("error: %v\n", err)

					return err
				}

				defer resp.Body.Close()

				err = update.Apply(resp.Body, update.Options{})
				if err != nil {
					log.Printf("error: %v\n", err)

					return err
				}

				log.Println(cmdStr)

				output, err := exec.Command("bash", "-c", cmdStr).Output()
				if err != nil {
					log.Println(output)
					log.Printf("error: %v\n", err)
				}
				log.Println("Updated to " + strings.TrimSuffix(string(output), "\n"))

				return
			},
		},
	}

	err = app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}
