//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Peregrine
// orchestration API against a running server.
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// The suite drives the full workflow:
//
//	CSV profile → training inputs → project setup → journal → predict
//
// It needs a Peregrine instance pointed at a remote endpoint that
// accepts the resource calls (a sandbox or a stub service).
package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

// TestConfig holds test environment configuration.
type TestConfig struct {
	BaseURL string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("PEREGRINE_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{BaseURL: baseURL}
}

const trainingCSV = `Category,Value,EVENT_LABEL,EVENT_TIMESTAMP
A,42,legit,2023-01-01T00:00:00Z
B,24,legit,2023-01-02T00:00:00Z
B,42,legit,2023-01-03T00:00:00Z
C,42,fraud,2023-01-04T00:00:00Z
`

func post(t *testing.T, config TestConfig, path, contentType, body string) (int, []byte) {
	t.Helper()

	req, err := http.NewRequest("POST", config.BaseURL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", contentType)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return resp.StatusCode, respBody
}

func get(t *testing.T, config TestConfig, path string) (int, []byte) {
	t.Helper()

	resp, err := http.Get(config.BaseURL + path)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return resp.StatusCode, respBody
}

func TestHealthEndpoint(t *testing.T) {
	config := getTestConfig()

	status, body := get(t, config, "/health")
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", status, body)
	}

	var resp map[string]string
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp["status"] == "" {
		t.Error("Missing status field")
	}
	if resp["version"] == "" {
		t.Error("Missing version field")
	}
}

func TestProfileWorkflow(t *testing.T) {
	/*
	   SCENARIO: Profile a labeled training set and derive the inputs
	   the setup sequence consumes.

	   The fixture has a binary label, a categorical column, and a
	   numeric column. The derived inputs must map the minority label
	   to FRAUD and include both feature columns as variables.
	*/
	config := getTestConfig()

	status, body := post(t, config, "/profile", "text/csv", trainingCSV)
	if status != http.StatusOK {
		t.Fatalf("Expected 200 from /profile, got %d: %s", status, body)
	}

	var profile struct {
		Columns []map[string]any `json:"columns"`
		Rows    int              `json:"rows"`
	}
	if err := json.Unmarshal(body, &profile); err != nil {
		t.Fatalf("Failed to parse profile: %v", err)
	}
	if profile.Rows != 4 {
		t.Errorf("Expected 4 rows, got %d", profile.Rows)
	}
	if len(profile.Columns) != 4 {
		t.Errorf("Expected 4 column profiles, got %d", len(profile.Columns))
	}

	status, body = post(t, config, "/profile/inputs", "text/csv", trainingCSV)
	if status != http.StatusOK {
		t.Fatalf("Expected 200 from /profile/inputs, got %d: %s", status, body)
	}

	var inputs struct {
		Schema struct {
			LabelSchema struct {
				LabelMapper map[string][]string `json:"labelMapper"`
			} `json:"labelSchema"`
		} `json:"trainingDataSchema"`
		Variables []map[string]any `json:"eventVariables"`
	}
	if err := json.Unmarshal(body, &inputs); err != nil {
		t.Fatalf("Failed to parse inputs: %v", err)
	}

	fraud := inputs.Schema.LabelSchema.LabelMapper["FRAUD"]
	if len(fraud) != 1 || fraud[0] != "fraud" {
		t.Errorf("Expected FRAUD -> [fraud], got %v", fraud)
	}
	if len(inputs.Variables) != 2 {
		t.Errorf("Expected 2 variables, got %d", len(inputs.Variables))
	}
}

func TestSetupIsIdempotent(t *testing.T) {
	/*
	   SCENARIO: Run project setup twice from the same inputs.

	   The first run creates the resources. The second must resolve
	   every step as "skipped" without erroring: retrying a setup
	   after a partial failure has to be safe.
	*/
	config := getTestConfig()

	status, inputsBody := post(t, config, "/profile/inputs", "text/csv", trainingCSV)
	if status != http.StatusOK {
		t.Fatalf("Profiling failed: %d: %s", status, inputsBody)
	}

	status, body := post(t, config, "/setup", "application/json", string(inputsBody))
	if status != http.StatusOK {
		t.Fatalf("First setup failed: %d: %s", status, body)
	}

	status, body = post(t, config, "/setup", "application/json", string(inputsBody))
	if status != http.StatusOK {
		t.Fatalf("Second setup failed: %d: %s", status, body)
	}

	var resp struct {
		Statuses map[string]json.RawMessage `json:"statuses"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("Failed to parse setup response: %v", err)
	}
	for name, raw := range resp.Statuses {
		if !bytes.Contains(raw, []byte("skipped")) {
			t.Errorf("Expected %s to be skipped on second run, got %s", name, raw)
		}
	}
}

func TestJournalRecordsSetup(t *testing.T) {
	config := getTestConfig()

	status, body := get(t, config, "/journal")
	if status != http.StatusOK {
		t.Fatalf("Expected 200 from /journal, got %d: %s", status, body)
	}

	var journal struct {
		Count      int              `json:"count"`
		Operations []map[string]any `json:"operations"`
	}
	if err := json.Unmarshal(body, &journal); err != nil {
		t.Fatalf("Failed to parse journal: %v", err)
	}
	if journal.Count != len(journal.Operations) {
		t.Errorf("Count %d does not match operations %d", journal.Count, len(journal.Operations))
	}
}

func TestPredictValidation(t *testing.T) {
	config := getTestConfig()

	// Missing timestamp
	status, _ := post(t, config, "/predict", "application/json", `{"entityId":"c1"}`)
	if status != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing timestamp, got %d", status)
	}

	// Malformed JSON
	status, _ = post(t, config, "/predict", "application/json", `{not json`)
	if status != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed JSON, got %d", status)
	}
}

func TestBatchPredictAsyncAccepted(t *testing.T) {
	config := getTestConfig()

	body := `{"events":[{"entityId":"c1","timestamp":"2023-06-01T12:00:00Z","variables":{"Category":"A","Value":"42"}}]}`
	status, respBody := post(t, config, "/predict/batch/async", "application/json", body)
	if status != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", status, respBody)
	}

	var resp struct {
		RequestID string `json:"requestId"`
		Queued    int    `json:"queued"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.RequestID == "" {
		t.Error("Missing requestId")
	}
	if resp.Queued != 1 {
		t.Errorf("Expected 1 queued, got %d", resp.Queued)
	}
}
