package integration

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func multipartUpload(t *testing.T, fields map[string]string, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func samplePDF(text string) []byte {
	return []byte("%PDF-1.4\n" + text + "\n%%EOF")
}

// TestAsyncJobFlowsThroughTheWholeWorkerPipeline submits a job exactly as
// a client would, then drives the full dispatcher loop (lease, pipeline
// run, ack) to completion, verifying the job's terminal state and result
// through the same HTTP endpoints a client would poll.
func TestAsyncJobFlowsThroughTheWholeWorkerPipeline(t *testing.T) {
	env := New(t)
	srv := httptest.NewServer(env.Handler.Router())
	defer srv.Close()

	body, contentType := multipartUpload(t,
		map[string]string{"parsing_type": "recipe", "priority": "high"},
		"recipe.pdf", samplePDF("Ingredients\n1 cup flour\n2 eggs\nInstructions\nMix and bake."))

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/parse/async", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var accepted struct {
		Data struct {
			JobID string `json:"job_id"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))
	require.NotEmpty(t, accepted.Data.JobID)

	require.Eventually(t, func() bool {
		statusResp, err := http.Get(srv.URL + "/parse/status/" + accepted.Data.JobID)
		if err != nil {
			return false
		}
		defer statusResp.Body.Close()
		var status struct {
			Data struct {
				State string `json:"state"`
			} `json:"data"`
		}
		_ = json.NewDecoder(statusResp.Body).Decode(&status)
		return status.Data.State == "completed"
	}, 3*time.Second, 20*time.Millisecond, "job never reached completed state")

	resultResp, err := http.Get(srv.URL + "/parse/result/" + accepted.Data.JobID)
	require.NoError(t, err)
	defer resultResp.Body.Close()
	assert.Equal(t, http.StatusOK, resultResp.StatusCode)

	var result struct {
		Data struct {
			ParsingType string `json:"type"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resultResp.Body).Decode(&result))
	assert.Equal(t, "recipe", result.Data.ParsingType)
}

// TestDeletedJobResultIsGone verifies the 410-vs-404 distinction the API
// makes for a result that once existed but was explicitly deleted.
func TestDeletedJobResultIsGone(t *testing.T) {
	env := New(t)
	srv := httptest.NewServer(env.Handler.Router())
	defer srv.Close()

	body, contentType := multipartUpload(t, map[string]string{"parsing_type": "auto"},
		"label.pdf", samplePDF("Nutrition Facts\ncalories: 120 kcal"))

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/parse/async", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var result struct {
		Data struct {
			JobID string `json:"job_id"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))

	delReq, err := http.NewRequest(http.MethodDelete, srv.URL+"/parse/"+result.Data.JobID, nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(delReq)
	require.NoError(t, err)
	delResp.Body.Close()
	require.Equal(t, http.StatusNoContent, delResp.StatusCode)

	afterResp, err := http.Get(srv.URL + "/parse/result/" + result.Data.JobID)
	require.NoError(t, err)
	defer afterResp.Body.Close()
	assert.Equal(t, http.StatusGone, afterResp.StatusCode)
}
