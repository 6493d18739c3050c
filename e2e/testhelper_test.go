package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/asciimotion/api/internal/admission"
	"github.com/asciimotion/api/internal/auth"
	"github.com/asciimotion/api/internal/handler"
	"github.com/asciimotion/api/internal/middleware"
	"github.com/asciimotion/api/internal/registry"
	"github.com/asciimotion/api/internal/service"
	"github.com/asciimotion/api/internal/source"
	ws "github.com/asciimotion/api/internal/websocket"
)

const testJWTSecret = "test-secret-for-e2e"

// testApp holds all components needed for testing
type testApp struct {
	app *fiber.App
}

// setupApp creates a Fiber app identical to main.go but with the synthetic
// frame source, so conversions finish in milliseconds without ffmpeg.
func setupApp(t *testing.T) *testApp {
	return setupAppWith(t, admission.Config{SampleInterval: time.Hour})
}

func setupAppWith(t *testing.T, admCfg admission.Config) *testApp {
	t.Helper()

	reg := registry.New(registry.Config{
		MaxConcurrentJobs: 10,
		TTL:               time.Minute,
		SweepInterval:     time.Hour,
	})
	t.Cleanup(reg.Close)

	if admCfg.SampleInterval == 0 {
		admCfg.SampleInterval = time.Hour
	}
	adm := admission.New(admCfg)
	t.Cleanup(adm.Close)

	hub := ws.NewHub()
	go hub.Run()

	frameSource := &source.SyntheticSource{FrameCount: 8, Width: 64, Height: 36}
	convertService := service.NewConvertService(reg, adm, frameSource, hub)
	t.Cleanup(convertService.Close)

	validate := validator.New()
	convertHandler := handler.NewConvertHandler(convertService, validate)
	healthHandler := handler.NewHealthHandler(convertService)

	authMiddleware := middleware.NewAuthMiddleware(testJWTSecret)
	rateLimiter := middleware.NewRateLimiter()

	app := fiber.New(fiber.Config{
		BodyLimit: 50 * 1024 * 1024,
	})

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": time.Now().Unix()})
	})
	app.Get("/health", healthHandler.Health)

	api := app.Group("/api", authMiddleware.Authenticate())

	// Use very high rate limits so tests don't get blocked
	convert := api.Group("/convert")
	convert.Post("/start", rateLimiter.ConvertLimit(10000), convertHandler.Start)
	convert.Get("/status/:jobId", convertHandler.Status)
	convert.Get("/result/:jobId", convertHandler.Result)
	convert.Post("/cancel/:jobId", convertHandler.Cancel)
	convert.Get("/download/:jobId", rateLimiter.DownloadLimit(10000), convertHandler.Download)
	convert.Get("/stats", healthHandler.Stats)

	return &testApp{app: app}
}

// generateToken creates an HMAC JWT token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	signed, err := auth.GenerateToken("test-user-123", "test@example.com", testJWTSecret)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body io.Reader, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequest(method, path, body)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request with no body.
func doAuthRequest(t *testing.T, app *fiber.App, method, path string) (*http.Response, error) {
	t.Helper()
	return doRequest(app, method, path, nil, map[string]string{
		"Authorization": "Bearer " + generateToken(t),
	})
}

// doStartRequest uploads a video buffer plus optional settings JSON as the
// multipart body of POST /api/convert/start.
func doStartRequest(t *testing.T, app *fiber.App, video []byte, settingsJSON string) (*http.Response, error) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("video", "clip.mp4")
	if err != nil {
		t.Fatalf("failed to build multipart body: %v", err)
	}
	if _, err := fw.Write(video); err != nil {
		t.Fatalf("failed to write video part: %v", err)
	}
	if settingsJSON != "" {
		if err := mw.WriteField("settings", settingsJSON); err != nil {
			t.Fatalf("failed to write settings part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("failed to finalize multipart body: %v", err)
	}

	return doRequest(app, http.MethodPost, "/api/convert/start", &buf, map[string]string{
		"Authorization": "Bearer " + generateToken(t),
		"Content-Type":  mw.FormDataContentType(),
	})
}

// waitForTerminal polls the status endpoint until the job leaves the live
// states or the deadline passes, returning the last status payload.
func waitForTerminal(t *testing.T, app *fiber.App, jobID string) map[string]interface{} {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := doAuthRequest(t, app, http.MethodGet, "/api/convert/status/"+jobID)
		if err != nil {
			t.Fatalf("status request failed: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status request returned %d", resp.StatusCode)
		}
		result := parseJSON(t, resp)
		if s, _ := result["status"].(string); s == "complete" || s == "error" {
			return result
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal status", jobID)
	return nil
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
