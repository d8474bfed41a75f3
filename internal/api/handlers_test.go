package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/olivefarm/enginecore/internal/accelerator"
	"github.com/olivefarm/enginecore/internal/catalog"
	"github.com/olivefarm/enginecore/internal/engine"
	"github.com/olivefarm/enginecore/internal/hardware"
	"github.com/olivefarm/enginecore/internal/metric"
	"github.com/olivefarm/enginecore/internal/model"
	"github.com/olivefarm/enginecore/internal/passregistry"
	"github.com/olivefarm/enginecore/internal/system"
)

func testTarget() accelerator.TargetHost {
	return accelerator.TargetHost{
		Type:    accelerator.SystemLocal,
		Devices: []hardware.Device{hardware.CPU},
	}
}

func setupServer(t *testing.T) (*Server, *http.ServeMux, *catalog.MockRepo, string) {
	t.Helper()
	dir := t.TempDir()

	runner := func(ctx context.Context, passType string, cfg map[string]any, input model.Model, outputPath string) (model.Model, error) {
		return input, nil
	}
	evalRunner := func(ctx context.Context, m model.Model, metricsConfig map[string]any, accel hardware.AcceleratorSpec) (metric.Result, error) {
		return metric.Result{}, nil
	}

	eng, err := engine.New(engine.Config{
		CacheDir:           filepath.Join(dir, "cache"),
		OutputDir:          filepath.Join(dir, "out"),
		Registry:           passregistry.New(),
		Target:             testTarget(),
		ExecutionProviders: []string{"CPUExecutionProvider"},
		DefaultHost:        system.NewLocalHost(runner),
		DefaultTarget:      system.NewLocalTarget(evalRunner),
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	repo := catalog.NewMockRepo()
	srv := NewServer(repo, eng, testTarget(), []string{"CPUExecutionProvider"}, nil)
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	return srv, mux, repo, dir
}

func TestHandleCreateRun_Success(t *testing.T) {
	_, mux, _, dir := setupServer(t)

	inputPath := filepath.Join(dir, "input.json")
	if err := os.WriteFile(inputPath, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	body := createRunRequest{InputModelPath: inputPath}
	b, _ := json.Marshal(body)

	req := httptest.NewRequest("POST", "/api/v1/runs", bytes.NewReader(b))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusAccepted, w.Body.String())
	}

	var resp map[string]any
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["group_id"] == "" || resp["group_id"] == nil {
		t.Error("response missing group_id")
	}
}

func TestHandleCreateRun_PackagingConfigAccepted(t *testing.T) {
	_, mux, _, dir := setupServer(t)

	inputPath := filepath.Join(dir, "input.json")
	if err := os.WriteFile(inputPath, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	body := createRunRequest{
		InputModelPath:  inputPath,
		PackagingConfig: &packagingConfigRequest{Enabled: true, ManifestName: "frontier.json"},
	}
	b, _ := json.Marshal(body)

	req := httptest.NewRequest("POST", "/api/v1/runs", bytes.NewReader(b))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusAccepted, w.Body.String())
	}
}

func TestHandleCreateRun_MissingPath(t *testing.T) {
	_, mux, _, _ := setupServer(t)

	req := httptest.NewRequest("POST", "/api/v1/runs", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleCreateRun_InvalidJSON(t *testing.T) {
	_, mux, _, _ := setupServer(t)

	req := httptest.NewRequest("POST", "/api/v1/runs", bytes.NewReader([]byte("not json")))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleCreateRun_BadInputPath(t *testing.T) {
	_, mux, _, _ := setupServer(t)

	body := createRunRequest{InputModelPath: "/nonexistent/input.json"}
	b, _ := json.Marshal(body)

	req := httptest.NewRequest("POST", "/api/v1/runs", bytes.NewReader(b))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleGetRun_Found(t *testing.T) {
	_, mux, repo, _ := setupServer(t)

	ctx := context.Background()
	rec := &catalog.RunRecord{ID: "run-1", AcceleratorKey: "gpu+CUDAExecutionProvider", Status: catalog.StatusPending, InputModelID: "m"}
	if err := repo.CreateRun(ctx, rec); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/api/v1/runs/run-1", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp catalog.RunRecord
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.ID != "run-1" {
		t.Errorf("run id = %s, want run-1", resp.ID)
	}
}

func TestHandleGetRun_NotFound(t *testing.T) {
	_, mux, _, _ := setupServer(t)

	req := httptest.NewRequest("GET", "/api/v1/runs/nonexistent", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHandleGetFootprint_NotAvailable(t *testing.T) {
	_, mux, repo, _ := setupServer(t)

	ctx := context.Background()
	rec := &catalog.RunRecord{ID: "run-1", AcceleratorKey: "cpu+CPUExecutionProvider", Status: catalog.StatusRunning, OutputDir: "/nonexistent"}
	if err := repo.CreateRun(ctx, rec); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/api/v1/runs/run-1/footprint", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHandleGetFootprint_Available(t *testing.T) {
	_, mux, repo, dir := setupServer(t)

	outDir := filepath.Join(dir, "runout")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		t.Fatal(err)
	}
	fpPath := filepath.Join(outDir, "cpu+CPUExecutionProvider_footprints.json")
	if err := os.WriteFile(fpPath, []byte(`{"nodes":{}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	rec := &catalog.RunRecord{ID: "run-2", AcceleratorKey: "cpu+CPUExecutionProvider", Status: catalog.StatusCompleted, OutputDir: outDir}
	if err := repo.CreateRun(ctx, rec); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/api/v1/runs/run-2/footprint", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestHandleListRuns_FilterByStatus(t *testing.T) {
	_, mux, repo, _ := setupServer(t)

	ctx := context.Background()
	for i, status := range []catalog.RunStatus{catalog.StatusPending, catalog.StatusRunning, catalog.StatusCompleted, catalog.StatusFailed} {
		rec := &catalog.RunRecord{ID: "run-" + string(rune('a'+i)), AcceleratorKey: "cpu+CPUExecutionProvider", Status: status}
		if err := repo.CreateRun(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	req := httptest.NewRequest("GET", "/api/v1/runs?status=completed", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var items []catalog.RunRecord
	json.NewDecoder(w.Body).Decode(&items)
	if len(items) != 1 {
		t.Errorf("got %d items, want 1", len(items))
	}
}

func TestHandleCancelRun_NotFound(t *testing.T) {
	_, mux, _, _ := setupServer(t)

	req := httptest.NewRequest("POST", "/api/v1/runs/nonexistent/cancel", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestHandleCancelRun_AlreadyCompleted(t *testing.T) {
	_, mux, repo, _ := setupServer(t)

	ctx := context.Background()
	rec := &catalog.RunRecord{ID: "run-done", AcceleratorKey: "cpu+CPUExecutionProvider", Status: catalog.StatusCompleted}
	if err := repo.CreateRun(ctx, rec); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("POST", "/api/v1/runs/run-done/cancel", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
}

func TestHandleCancelRun_Success(t *testing.T) {
	_, mux, repo, _ := setupServer(t)

	ctx := context.Background()
	rec := &catalog.RunRecord{ID: "run-running", AcceleratorKey: "cpu+CPUExecutionProvider", Status: catalog.StatusRunning}
	if err := repo.CreateRun(ctx, rec); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("POST", "/api/v1/runs/run-running/cancel", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}

	updated, _ := repo.GetRun(ctx, "run-running")
	if updated.Status != catalog.StatusCancelled {
		t.Errorf("status = %s, want cancelled", updated.Status)
	}
}

func TestHandleListAccelerators(t *testing.T) {
	_, mux, _, _ := setupServer(t)

	req := httptest.NewRequest("GET", "/api/v1/accelerators", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var specs []string
	json.NewDecoder(w.Body).Decode(&specs)
	if len(specs) == 0 {
		t.Error("expected at least one resolved accelerator spec")
	}
}

func TestHandleRecommend_MissingParams(t *testing.T) {
	_, mux, _, _ := setupServer(t)

	req := httptest.NewRequest("GET", "/api/v1/recommend", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleRecommend_UnknownInstanceType(t *testing.T) {
	_, mux, _, _ := setupServer(t)

	req := httptest.NewRequest("GET", "/api/v1/recommend?model=meta-llama/Llama-3-8B&instance_type=p9.999xlarge", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d; body: %s", w.Code, http.StatusNotFound, w.Body.String())
	}
}

func TestHandleAcceleratorCatalog_Empty(t *testing.T) {
	_, mux, _, _ := setupServer(t)

	req := httptest.NewRequest("GET", "/api/v1/accelerators/catalog", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var caps []catalog.InstanceAcceleratorCapability
	json.NewDecoder(w.Body).Decode(&caps)
	if len(caps) != 0 {
		t.Errorf("got %d capabilities, want 0", len(caps))
	}
}
