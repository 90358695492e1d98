package monitoring

import (
	"fmt"

	"github.com/RichardKnop/machinery/v1/backends/iface"
	"github.com/RichardKnop/machinery/v1/backends/result"
	"github.com/RichardKnop/machinery/v1/tasks"
)

// ReleaseStages holds the machinery task states of one release pipeline
type ReleaseStages struct {
	BuildStates  []string `json:"build_states"`
	PublishState string   `json:"publish_state"`
	DocsState    string   `json:"docs_state"`
	CurrentStage string   `json:"current_stage"` // build, publish, docs, completed
}

func taskState(backend iface.Backend, name, uuid string) string {
	sig := tasks.Signature{
		Name: name,
		UUID: uuid,
	}
	asyncResult := result.NewAsyncResult(&sig, backend)
	asyncResult.Touch()
	return asyncResult.GetState().State
}

// GetReleaseStagesFromMachinery queries the build, publish and docs task
// states of a pipeline using the machinery result backend. Task UUIDs are
// derived from the pipeline ID, matching the signatures created at submit
// time.
func GetReleaseStagesFromMachinery(backend iface.Backend, pipelineID string, buildLegs int) ReleaseStages {
	if buildLegs < 1 {
		buildLegs = 1
	}

	stages := ReleaseStages{
		BuildStates: make([]string, 0, buildLegs),
	}
	for i := 0; i < buildLegs; i++ {
		uuid := fmt.Sprintf("%s_build%d", pipelineID, i)
		stages.BuildStates = append(stages.BuildStates, taskState(backend, "build", uuid))
	}
	stages.PublishState = taskState(backend, "publish", pipelineID+"_publish")
	stages.DocsState = taskState(backend, "docs", pipelineID+"_docs")

	stages.CurrentStage = deriveCurrentStage(stages)
	return stages
}

// deriveCurrentStage maps raw task states onto the pipeline stage shown to
// users. The build stage wins until every leg has succeeded, then publish,
// then docs.
func deriveCurrentStage(stages ReleaseStages) string {
	allBuilt := true
	for _, state := range stages.BuildStates {
		if state != "SUCCESS" {
			allBuilt = false
			break
		}
	}
	if !allBuilt {
		return "build"
	}
	if stages.PublishState != "SUCCESS" {
		return "publish"
	}
	if stages.DocsState != "SUCCESS" {
		return "docs"
	}
	return "completed"
}
