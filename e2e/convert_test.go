package e2e

import (
	"archive/zip"
	"bytes"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/asciimotion/api/internal/admission"
)

func testVideo() []byte {
	return bytes.Repeat([]byte("fake-video-bytes"), 64)
}

func TestConvertStart_Success(t *testing.T) {
	ta := setupApp(t)

	resp, err := doStartRequest(t, ta.app, testVideo(), "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusAccepted)

	result := parseJSON(t, resp)
	jobID, _ := result["jobId"].(string)
	if jobID == "" {
		t.Fatal("expected 'jobId' in response")
	}
	if !strings.HasPrefix(jobID, "conv_") {
		t.Errorf("expected jobId with conv_ prefix, got %s", jobID)
	}
	if result["status"] != "pending" {
		t.Errorf("expected status 'pending', got %v", result["status"])
	}
}

func TestConvertStart_NoAuth(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/convert/start", nil, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestConvertStart_MissingVideo(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/convert/start",
		strings.NewReader("{}"), map[string]string{
			"Authorization": "Bearer " + generateToken(t),
			"Content-Type":  "application/json",
		})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)
}

func TestConvertStart_InvalidSettings(t *testing.T) {
	ta := setupApp(t)

	// frameRate above the accepted range
	resp, err := doStartRequest(t, ta.app, testVideo(), `{"frameRate": 120}`)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)

	result := parseJSON(t, resp)
	errObj := result["error"].(map[string]interface{})
	if errObj["code"] != "VALIDATION_ERROR" {
		t.Errorf("expected error code VALIDATION_ERROR, got %v", errObj["code"])
	}
}

func TestConvertStart_OversizedInput(t *testing.T) {
	ta := setupAppWith(t, admission.Config{MaxInputBytes: 64})

	resp, err := doStartRequest(t, ta.app, testVideo(), "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusRequestEntityTooLarge)

	if resp.Header.Get("Retry-After") == "" {
		t.Error("expected Retry-After header on rejection")
	}
	result := parseJSON(t, resp)
	errObj := result["error"].(map[string]interface{})
	if errObj["code"] != "PAYLOAD_TOO_LARGE" {
		t.Errorf("expected error code PAYLOAD_TOO_LARGE, got %v", errObj["code"])
	}
}

func TestConvertLifecycle_StartToDownload(t *testing.T) {
	ta := setupApp(t)

	resp, err := doStartRequest(t, ta.app, testVideo(), "")
	if err != nil {
		t.Fatalf("start request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)
	jobID := parseJSON(t, resp)["jobId"].(string)

	status := waitForTerminal(t, ta.app, jobID)
	if status["status"] != "complete" {
		t.Fatalf("expected terminal status 'complete', got %v (error: %v)",
			status["status"], status["error"])
	}
	if status["progress"] != float64(100) {
		t.Errorf("expected progress 100, got %v", status["progress"])
	}
	if status["completedAt"] == nil {
		t.Error("expected 'completedAt' on a complete job")
	}

	// Result carries the frame sequence in order.
	resp, err = doAuthRequest(t, ta.app, http.MethodGet, "/api/convert/result/"+jobID)
	if err != nil {
		t.Fatalf("result request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	result := parseJSON(t, resp)
	frames, ok := result["frames"].([]interface{})
	if !ok || len(frames) != 8 {
		t.Fatalf("expected 8 frames, got %v", result["frames"])
	}
	for i, raw := range frames {
		frame := raw.(map[string]interface{})
		if frame["index"] != float64(i) {
			t.Errorf("frame %d has index %v", i, frame["index"])
		}
		if frame["text"] == "" {
			t.Errorf("frame %d has empty text", i)
		}
	}

	// Download serves a zip with one text file per frame plus a manifest.
	resp, err = doAuthRequest(t, ta.app, http.MethodGet, "/api/convert/download/"+jobID)
	if err != nil {
		t.Fatalf("download request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); ct != "application/zip" {
		t.Errorf("expected Content-Type application/zip, got %s", ct)
	}

	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("failed to read zip body: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("download is not a valid zip: %v", err)
	}
	names := make(map[string]bool, len(zr.File))
	for _, f := range zr.File {
		names[f.Name] = true
	}
	if !names["manifest.txt"] {
		t.Error("expected manifest.txt in archive")
	}
	if !names["frames/frame_00000.txt"] || !names["frames/frame_00007.txt"] {
		t.Errorf("expected 8 frame files in archive, got %v", names)
	}
}

func TestConvertResult_BeforeCompletion(t *testing.T) {
	ta := setupApp(t)

	resp, err := doStartRequest(t, ta.app, testVideo(), "")
	if err != nil {
		t.Fatalf("start request failed: %v", err)
	}
	jobID := parseJSON(t, resp)["jobId"].(string)

	// Immediately asking for the result races the worker; either outcome is
	// legal but an incomplete job must come back 400, never 500.
	resp, err = doAuthRequest(t, ta.app, http.MethodGet, "/api/convert/result/"+jobID)
	if err != nil {
		t.Fatalf("result request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 200 or 400, got %d", resp.StatusCode)
	}
	readBody(t, resp)
}

func TestConvertStatus_NotFound(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/convert/status/conv_0_missing")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusNotFound)

	result := parseJSON(t, resp)
	errObj := result["error"].(map[string]interface{})
	if errObj["code"] != "NOT_FOUND" {
		t.Errorf("expected error code NOT_FOUND, got %v", errObj["code"])
	}
}

func TestConvertCancel_Success(t *testing.T) {
	ta := setupApp(t)

	resp, err := doStartRequest(t, ta.app, testVideo(), "")
	if err != nil {
		t.Fatalf("start request failed: %v", err)
	}
	jobID := parseJSON(t, resp)["jobId"].(string)

	resp, err = doAuthRequest(t, ta.app, http.MethodPost, "/api/convert/cancel/"+jobID)
	if err != nil {
		t.Fatalf("cancel request failed: %v", err)
	}

	// The synthetic source may already have finished the tiny job.
	switch resp.StatusCode {
	case http.StatusOK:
		result := parseJSON(t, resp)
		if result["success"] != true {
			t.Errorf("expected success true, got %v", result["success"])
		}
		if result["status"] != "error" {
			t.Errorf("expected status 'error', got %v", result["status"])
		}
	case http.StatusBadRequest:
		readBody(t, resp)
	default:
		t.Errorf("expected 200 or 400, got %d", resp.StatusCode)
	}
}

func TestConvertCancel_AlreadyDone(t *testing.T) {
	ta := setupApp(t)

	resp, err := doStartRequest(t, ta.app, testVideo(), "")
	if err != nil {
		t.Fatalf("start request failed: %v", err)
	}
	jobID := parseJSON(t, resp)["jobId"].(string)
	waitForTerminal(t, ta.app, jobID)

	resp, err = doAuthRequest(t, ta.app, http.MethodPost, "/api/convert/cancel/"+jobID)
	if err != nil {
		t.Fatalf("cancel request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)
}

func TestConvertDownload_NotComplete(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/convert/download/conv_0_missing")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusNotFound)
}

func TestConvertStart_CustomSettings(t *testing.T) {
	ta := setupApp(t)

	settings := `{"frameRate": 5, "resolutionScale": 0.25, "colorMode": "mono"}`
	resp, err := doStartRequest(t, ta.app, testVideo(), settings)
	if err != nil {
		t.Fatalf("start request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)
	jobID := parseJSON(t, resp)["jobId"].(string)

	status := waitForTerminal(t, ta.app, jobID)
	if status["status"] != "complete" {
		t.Fatalf("expected 'complete', got %v (error: %v)", status["status"], status["error"])
	}

	resp, err = doAuthRequest(t, ta.app, http.MethodGet, "/api/convert/result/"+jobID)
	if err != nil {
		t.Fatalf("result request failed: %v", err)
	}
	result := parseJSON(t, resp)
	frames := result["frames"].([]interface{})
	first := frames[0].(map[string]interface{})

	// resolutionScale 0.25 gives round(0.25*240) = 60 columns.
	if first["width"] != float64(60) {
		t.Errorf("expected 60-column frames, got %v", first["width"])
	}
	if spans, ok := first["spans"]; ok && spans != nil {
		if arr, isArr := spans.([]interface{}); isArr && len(arr) > 0 {
			t.Error("mono mode must not emit highlight spans")
		}
	}
}

func TestConvertStats(t *testing.T) {
	ta := setupApp(t)

	resp, err := doStartRequest(t, ta.app, testVideo(), "")
	if err != nil {
		t.Fatalf("start request failed: %v", err)
	}
	jobID := parseJSON(t, resp)["jobId"].(string)
	waitForTerminal(t, ta.app, jobID)

	// Give the worker's final update a moment to land before sampling stats.
	time.Sleep(20 * time.Millisecond)

	resp, err = doAuthRequest(t, ta.app, http.MethodGet, "/api/convert/stats")
	if err != nil {
		t.Fatalf("stats request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	stats := parseJSON(t, resp)
	if stats["totalJobs"] != float64(1) {
		t.Errorf("expected totalJobs 1, got %v", stats["totalJobs"])
	}
	if stats["completeJobs"] != float64(1) {
		t.Errorf("expected completeJobs 1, got %v", stats["completeJobs"])
	}
}
