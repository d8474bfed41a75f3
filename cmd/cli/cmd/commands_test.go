package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/olivefarm/enginecore/internal/catalog"
)

func setupTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	apiURL = srv.URL
	return srv
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	modelPath := dir + "/model.json"
	if err := os.WriteFile(modelPath, []byte(`{"name":"resnet50"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	setupTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		if req["input_model_path"] != modelPath {
			t.Errorf("unexpected input_model_path: %s", req["input_model_path"])
		}
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]any{
			"group_id": "group-new",
			"runs": []map[string]string{
				{"id": "run-new", "accelerator": "GPU+CUDAExecutionProvider", "status": "pending"},
			},
		})
	}))

	outputFormat = "table"
	if err := submitRun(nil, []string{modelPath}); err != nil {
		t.Fatal(err)
	}
}

func TestStatusCommand_Completed(t *testing.T) {
	now := time.Now()

	setupTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(catalog.RunRecord{
			ID:             "run-done",
			AcceleratorKey: "GPU+CUDAExecutionProvider",
			Status:         catalog.StatusCompleted,
			InputModelID:   "./models/resnet50.json",
			StartedAt:      &now,
			CompletedAt:    &now,
			CreatedAt:      now,
		})
	}))

	outputFormat = "table"
	if err := runStatus(nil, []string{"run-done"}); err != nil {
		t.Fatal(err)
	}
}

func TestStatusCommand_Running(t *testing.T) {
	setupTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(catalog.RunRecord{
			ID:             "run-active",
			AcceleratorKey: "GPU+CUDAExecutionProvider",
			Status:         catalog.StatusRunning,
			CreatedAt:      time.Now(),
		})
	}))

	outputFormat = "table"
	if err := runStatus(nil, []string{"run-active"}); err != nil {
		t.Fatal(err)
	}
}

func TestStatusCommand_JSON(t *testing.T) {
	setupTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(catalog.RunRecord{
			ID:        "run-1",
			Status:    catalog.StatusPending,
			CreatedAt: time.Now(),
		})
	}))

	outputFormat = "json"
	if err := runStatus(nil, []string{"run-1"}); err != nil {
		t.Fatal(err)
	}
}

func TestStatusCommand_NotFound(t *testing.T) {
	setupTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "run not found"})
	}))

	outputFormat = "table"
	if err := runStatus(nil, []string{"nonexistent"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestFootprintCommand(t *testing.T) {
	setupTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/footprint") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"nodes":[]}`))
	}))

	if err := runFootprint(nil, []string{"run-1"}); err != nil {
		t.Fatal(err)
	}
}

func TestParetoCommand(t *testing.T) {
	setupTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/pareto") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"frontier":[]}`))
	}))

	if err := runPareto(nil, []string{"run-1"}); err != nil {
		t.Fatal(err)
	}
}

func TestAcceleratorsCommand(t *testing.T) {
	setupTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/accelerators" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]string{"GPU+CUDAExecutionProvider"})
	}))

	outputFormat = "table"
	acceleratorsCatalog = false
	if err := runAccelerators(nil, nil); err != nil {
		t.Fatal(err)
	}
}

func TestAcceleratorsCommand_Catalog(t *testing.T) {
	setupTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/accelerators/catalog" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]catalog.InstanceAcceleratorCapability{
			{InstanceType: "p5.48xlarge", AcceleratorName: "H100", AcceleratorCount: 8},
		})
	}))

	outputFormat = "json"
	acceleratorsCatalog = true
	defer func() { acceleratorsCatalog = false }()
	if err := runAccelerators(nil, nil); err != nil {
		t.Fatal(err)
	}
}

func TestRecommendCommand(t *testing.T) {
	setupTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/recommend" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("model") != "meta-llama/Llama-3-8B" {
			t.Errorf("unexpected model param: %s", r.URL.Query().Get("model"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"tensor_parallel_degree": 1,
			"max_model_len":          8192,
			"concurrency":            16,
			"input_sequence_length":  512,
			"output_sequence_length": 256,
			"explanation":            map[string]any{"feasible": true},
		})
	}))

	recommendInstanceType = "p5.48xlarge"
	outputFormat = "table"
	if err := runRecommend(nil, []string{"meta-llama/Llama-3-8B"}); err != nil {
		t.Fatal(err)
	}
}

func TestRecommendCommand_Infeasible(t *testing.T) {
	setupTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"explanation": map[string]any{"feasible": false, "reason": "model too large"},
		})
	}))

	recommendInstanceType = "g5.xlarge"
	outputFormat = "table"
	if err := runRecommend(nil, []string{"meta-llama/Llama-3-405B"}); err != nil {
		t.Fatal(err)
	}
}

func TestCancelCommand(t *testing.T) {
	called := false
	setupTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if !strings.HasSuffix(r.URL.Path, "/cancel") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))

	if err := runCancel(nil, []string{"run-1"}); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Error("expected cancel request to be sent")
	}
}

func TestCancelCommand_Conflict(t *testing.T) {
	setupTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "run already completed"})
	}))

	if err := runCancel(nil, []string{"run-1"}); err == nil {
		t.Fatal("expected error")
	}
}
