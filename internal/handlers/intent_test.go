package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"acey/internal/engine"
	"acey/internal/intent"
	"acey/internal/safety"
	"acey/internal/services"
	"acey/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// No-op side-effect writers; handler tests exercise routing and status
// codes, not store behavior.
type nopStores struct{}

func (nopStores) AddSessionEvent(context.Context, string) error            { return nil }
func (nopStores) AddSessionMemory(context.Context, string, []string) error { return nil }
func (nopStores) AppendGlobal(context.Context, string) error               { return nil }
func (nopStores) UpdateUserTrustScore(context.Context, string, float64, string) (float64, error) {
	return 0.6, nil
}
func (nopStores) ShadowBanUser(context.Context, string, time.Duration) error     { return nil }
func (nopStores) RateLimitUser(context.Context, string, time.Duration) error     { return nil }
func (nopStores) FilterUserContent(context.Context, string, time.Duration) error { return nil }
func (nopStores) SetPersona(context.Context, string, string) error               { return nil }

func setupTestApp(cfg engine.Config) (*fiber.App, *engine.Engine) {
	notifier := &services.CaptureNotifier{}
	stores := nopStores{}
	executors := engine.NewExecutorRegistry(stores, stores, stores, stores, notifier)
	safetySystem := safety.NewSystem(safety.Options{Notifier: notifier})
	validator := validation.NewValidator()
	eng := engine.New(cfg, validator, intent.NewRegistry(), executors, safetySystem, notifier)
	safetySystem.SetSnapshot(eng.Snapshot)

	h := NewIntentHandler(eng, safetySystem, validator)
	connManager := services.NewConnectionManager()
	healthHandler := NewHealthHandler(connManager, eng)

	app := fiber.New()
	app.Get("/health", healthHandler.Handle)
	api := app.Group("/api")
	api.Post("/output", h.ProcessOutput)
	api.Get("/intents/pending", h.GetPending)
	api.Post("/intents/:id/approve", h.Approve)
	api.Post("/intents/:id/reject", h.Reject)
	api.Post("/intents/:id/simulate", h.Simulate)
	api.Get("/statistics", h.GetStatistics)
	api.Get("/history/export", h.ExportHistory)
	api.Get("/audit", h.GetAuditLog)

	return app, eng
}

func postOutput(t *testing.T, app *fiber.App, body string) map[string]any {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/output", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	defer resp.Body.Close()
	var parsed map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		t.Fatalf("response does not parse: %v", err)
	}
	return parsed
}

func pendingOutput(confidence float64) string {
	return fmt.Sprintf(`{
		"speech": "let me think about this one",
		"intents": [{
			"type": "trust_signal",
			"confidence": %v,
			"justification": "steady positive contributions in chat",
			"userId": "viewer-7",
			"delta": 0.1,
			"reason": "good sportsmanship"
		}]
	}`, confidence)
}

// ---- Tests ----

func TestProcessOutput_Executed(t *testing.T) {
	app, _ := setupTestApp(engine.Config{})

	parsed := postOutput(t, app, pendingOutput(0.95))
	if parsed["success"] != true {
		t.Fatalf("success = %v, want true", parsed["success"])
	}
	results := parsed["results"].([]any)
	if status := results[0].(map[string]any)["status"]; status != "executed" {
		t.Errorf("result status = %v, want executed", status)
	}
}

func TestProcessOutput_ValidationFailureIs200(t *testing.T) {
	app, _ := setupTestApp(engine.Config{})

	// A misbehaving model is expected input: 200 with success=false.
	// A user-identifying token in a global memory summary rejects the
	// whole batch.
	parsed := postOutput(t, app, `{
		"speech": "oops",
		"intents": [{
			"type": "memory_write",
			"confidence": 0.9,
			"justification": "worth keeping across streams",
			"scope": "global",
			"summary": "the user won a huge pot"
		}]
	}`)
	if parsed["success"] != false {
		t.Fatalf("success = %v, want false", parsed["success"])
	}
	if parsed["errors"] == nil {
		t.Error("no field errors in response")
	}
}

func TestProcessOutput_BadIntentReportedAsSkipped(t *testing.T) {
	app, _ := setupTestApp(engine.Config{})

	// An unknown intent type is skipped, not a batch failure.
	parsed := postOutput(t, app, `{"speech": "oops", "intents": [{"type": "nope"}]}`)
	if parsed["success"] != true {
		t.Fatalf("success = %v, want true", parsed["success"])
	}
	results := parsed["results"].([]any)
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if status := results[0].(map[string]any)["status"]; status != "skipped" {
		t.Errorf("result status = %v, want skipped", status)
	}
}

func TestPendingAndApproveFlow(t *testing.T) {
	app, eng := setupTestApp(engine.Config{})

	postOutput(t, app, pendingOutput(0.8))

	resp, err := app.Test(httptest.NewRequest("GET", "/api/intents/pending", nil))
	if err != nil {
		t.Fatal(err)
	}
	var pending struct {
		Count   int `json:"count"`
		Pending []struct {
			Intent struct {
				ID string `json:"id"`
			} `json:"intent"`
		} `json:"pending"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&pending); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if pending.Count != 1 {
		t.Fatalf("pending count = %d, want 1", pending.Count)
	}

	id := pending.Pending[0].Intent.ID
	resp, err = app.Test(httptest.NewRequest("POST", "/api/intents/"+id+"/approve", nil))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("approve status = %d, want 200", resp.StatusCode)
	}
	if eng.GetStatistics().Pending != 0 {
		t.Error("approved intent still pending")
	}
}

func TestApprove_UnknownIntentIs404(t *testing.T) {
	app, _ := setupTestApp(engine.Config{})

	resp, err := app.Test(httptest.NewRequest("POST", "/api/intents/no-such-id/approve", nil))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestReject_DefaultReason(t *testing.T) {
	app, eng := setupTestApp(engine.Config{})
	postOutput(t, app, pendingOutput(0.8))
	id := eng.GetPendingIntents()[0].Intent.ID

	resp, err := app.Test(httptest.NewRequest("POST", "/api/intents/"+id+"/reject", nil))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var parsed map[string]any
	json.NewDecoder(resp.Body).Decode(&parsed)
	if parsed["reason"] != "Rejected by operator" {
		t.Errorf("reason = %v, want default", parsed["reason"])
	}
}

func TestStatisticsEndpoint(t *testing.T) {
	app, _ := setupTestApp(engine.Config{})
	postOutput(t, app, pendingOutput(0.95))

	resp, err := app.Test(httptest.NewRequest("GET", "/api/statistics", nil))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var parsed map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		t.Fatal(err)
	}
	for _, section := range []string{"engine", "validation", "safety"} {
		if parsed[section] == nil {
			t.Errorf("statistics missing %q section", section)
		}
	}
}

func TestExportHistory_CSVHeaders(t *testing.T) {
	app, _ := setupTestApp(engine.Config{})
	postOutput(t, app, pendingOutput(0.95))

	resp, err := app.Test(httptest.NewRequest("GET", "/api/history/export?format=csv", nil))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Content-Type = %q, want text/csv", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); cd == "" {
		t.Error("no Content-Disposition header")
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.HasPrefix(body, []byte("intent_id,")) {
		t.Errorf("csv body starts with %q", body[:min(len(body), 20)])
	}
}

func TestExportHistory_BadFormat(t *testing.T) {
	app, _ := setupTestApp(engine.Config{})
	resp, err := app.Test(httptest.NewRequest("GET", "/api/history/export?format=xml", nil))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	app, _ := setupTestApp(engine.Config{})
	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var parsed map[string]any
	json.NewDecoder(resp.Body).Decode(&parsed)
	if parsed["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", parsed["status"])
	}
}
