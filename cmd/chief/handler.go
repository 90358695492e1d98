package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	chiefusecase "github.com/blankon/rilis-go/internal/chief/usecase"
	"github.com/blankon/rilis-go/pkg/httputil"
)

func writeUsecaseError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	if useErr, ok := err.(chiefusecase.UsecaseError); ok {
		w.WriteHeader(useErr.Code)
		if useErr.Message != "" {
			fmt.Fprintf(w, useErr.Message)
		}
		return
	}
	w.WriteHeader(http.StatusInternalServerError)
	fmt.Fprintf(w, "500")
}

func indexHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	html, err := chiefService.RenderIndexHTML()
	if err != nil {
		writeUsecaseError(w, err)
		return
	}
	fmt.Fprintf(w, html)
}

// ReleaseRequest is the manual submission body
type ReleaseRequest struct {
	Tag string `json:"tag"`
}

func ReleaseSubmitHandler(w http.ResponseWriter, r *http.Request) {
	request := ReleaseRequest{}
	// Strict decoding, a mistyped field in a manual submission is a 400
	err := httputil.DecodeJSON(r.Body, &request)
	if err != nil {
		fmt.Println(err.Error())
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "400")
		return
	}

	payload, err := chiefService.SubmitRelease(r.Context(), request.Tag)
	if err != nil {
		writeUsecaseError(w, err)
		return
	}

	jsonStr, _ := json.Marshal(payload)
	fmt.Fprintf(w, string(jsonStr))
}

// tagHookRequest covers both the push and the create event shapes
type tagHookRequest struct {
	Ref     string `json:"ref"`
	RefType string `json:"ref_type"`
	Deleted bool   `json:"deleted"`
}

// TagHookHandler accepts forge webhooks and starts a pipeline when the
// event is a pushed tag. Anything else is acknowledged and skipped.
func TagHookHandler(w http.ResponseWriter, r *http.Request) {
	request := tagHookRequest{}
	decoder := json.NewDecoder(r.Body)
	err := decoder.Decode(&request)
	if err != nil {
		log.Println(err.Error())
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "400")
		return
	}

	tag := ""
	if request.RefType == "tag" {
		tag = request.Ref
	} else if strings.HasPrefix(request.Ref, "refs/tags/") {
		tag = strings.TrimPrefix(request.Ref, "refs/tags/")
	}

	if tag == "" || request.Deleted {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"skipped": true}`)
		return
	}

	payload, err := chiefService.SubmitRelease(r.Context(), tag)
	if err != nil {
		writeUsecaseError(w, err)
		return
	}

	jsonStr, _ := json.Marshal(payload)
	fmt.Fprintf(w, string(jsonStr))
}

func ReleaseStatusHandler(w http.ResponseWriter, r *http.Request) {
	keys, ok := r.URL.Query()["uuid"]
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "400")
		return
	}
	pipelineID := keys[0]

	status, err := chiefService.ReleaseStatus(pipelineID)
	if err != nil {
		writeUsecaseError(w, err)
		return
	}

	jsonStr, _ := json.Marshal(status)
	fmt.Fprintf(w, string(jsonStr))
}

func logUploadHandler() http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys, ok := r.URL.Query()["id"]

		if !ok || len(keys[0]) < 1 {
			log.Println("Url Param 'id' is missing")
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		id := keys[0]

		keys, ok = r.URL.Query()["type"]

		if !ok || len(keys[0]) < 1 {
			log.Println("Url Param 'type' is missing")
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		logType := keys[0]

		file, _, err := r.FormFile("uploadFile")
		if err != nil {
			log.Println(err.Error())
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()

		if err := chiefService.UploadLog(id, logType, file); err != nil {
			writeUsecaseError(w, err)
			return
		}

		w.WriteHeader(http.StatusOK)
	})
}

func VersionHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "{\"version\":\""+version+"\"}")
}
