package httputil

import (
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseJSON(t *testing.T) {
	// null status ok
	handler := func(w http.ResponseWriter, r *http.Request) {
		ResponseJSON(nil, http.StatusOK, w)
	}
	req := httptest.NewRequest("GET", "http://example.com/foo", nil)
	w := httptest.NewRecorder()
	handler(w, req)
	resp := w.Result()
	body, _ := ioutil.ReadAll(resp.Body)

	assert.Equal(t, body, []byte("null"))
	assert.Equal(t, w.Header(), http.Header(http.Header{"Content-Type": []string{"application/json"}}))
	assert.Equal(t, w.Code, 200)

	// interface status 500
	handler = func(w http.ResponseWriter, r *http.Request) {
		ResponseError("Not OK", http.StatusInternalServerError, w)
	}
	w = httptest.NewRecorder()
	handler(w, req)
	resp = w.Result()
	body, _ = ioutil.ReadAll(resp.Body)

	assert.Equal(t, body, []byte(`{"message":"Not OK"}`))
	assert.Equal(t, w.Header(), http.Header(http.Header{"Content-Type": []string{"application/json"}}))
	assert.Equal(t, w.Code, 500)
}

func TestPostJSONWithRetry(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := PostJSONWithRetry(nil, nil, server.URL, map[string]string{"k": "v"}, 3, 0, nil)
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestPostJSONWithRetryExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := PostJSONWithRetry(nil, nil, server.URL, nil, 2, 0, nil)
	assert.Error(t, err)
	statusErr, ok := err.(HTTPStatusError)
	require.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
}

func TestDecodeJSONStrict(t *testing.T) {
	var target struct {
		Name string `json:"name"`
	}
	err := DecodeJSON(strings.NewReader(`{"name":"x","bogus":1}`), &target)
	assert.Error(t, err)

	err = DecodeJSON(strings.NewReader(`{"name":"x"}`), &target)
	assert.NoError(t, err)
	assert.Equal(t, "x", target.Name)
}
