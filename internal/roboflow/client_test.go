package roboflow

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/civicrezo/inference-gateway/internal/logging"
)

func TestRunWorkflowSendsExpectedRequest(t *testing.T) {
	var gotPath string
	var gotBody workflowRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"outputs":[{"output2":{"predictions":[{"class":"pothole","confidence":0.82}]}}]}`))
	}))
	defer server.Close()

	client := NewHTTPClient(Options{
		BaseURL:    server.URL,
		APIKey:     "test-key",
		Workspace:  "civicrezo",
		WorkflowID: "custom-workflow-6",
	}, zap.NewNop())

	outputs, err := client.RunWorkflow(context.Background(), "https://example.com/img.jpg", true)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}

	if gotPath != "/infer/workflows/civicrezo/custom-workflow-6" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if gotBody.APIKey != "test-key" {
		t.Fatalf("unexpected api key: %s", gotBody.APIKey)
	}
	if !gotBody.UseCache {
		t.Fatal("expected use_cache to be forwarded")
	}
	image, ok := gotBody.Inputs["image"]
	if !ok {
		t.Fatal("expected image input")
	}
	if image.Type != "url" || image.Value != "https://example.com/img.jpg" {
		t.Fatalf("unexpected image input: %+v", image)
	}

	var decoded []map[string]any
	if err := json.Unmarshal(outputs, &decoded); err != nil {
		t.Fatalf("outputs not valid JSON: %v", err)
	}
	if len(decoded) != 1 {
		t.Fatalf("expected 1 output bundle, got %d", len(decoded))
	}
}

func TestRunWorkflowTypesLocalSourcesAsInline(t *testing.T) {
	var gotType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body workflowRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotType = body.Inputs["image"].Type
		_, _ = w.Write([]byte(`{"outputs":[]}`))
	}))
	defer server.Close()

	client := NewHTTPClient(Options{BaseURL: server.URL}, zap.NewNop())
	if _, err := client.RunWorkflow(context.Background(), "/tmp/pothole.jpg", false); err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if gotType != "base64" {
		t.Fatalf("expected base64 source type, got %s", gotType)
	}
}

func TestRunWorkflowWrapsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewHTTPClient(Options{BaseURL: server.URL}, zap.NewNop())
	_, err := client.RunWorkflow(context.Background(), "https://example.com/img.jpg", true)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var opErr *logging.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T", err)
	}
	if opErr.Operation != "roboflow.run_workflow" {
		t.Fatalf("unexpected operation: %s", opErr.Operation)
	}
}

func TestRunWorkflowWrapsUndecodableResponses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	client := NewHTTPClient(Options{BaseURL: server.URL}, zap.NewNop())
	_, err := client.RunWorkflow(context.Background(), "https://example.com/img.jpg", true)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}
