// Package api exposes the engine over HTTP, adapted from the original
// internal/api/handlers.go: the same net/http.ServeMux method+path-pattern
// routing and writeJSON/writeError helpers, wired to internal/catalog and
// internal/engine instead of the original benchmark-run database and
// orchestrator.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/olivefarm/enginecore/internal/accelerator"
	"github.com/olivefarm/enginecore/internal/catalog"
	"github.com/olivefarm/enginecore/internal/engine"
	"github.com/olivefarm/enginecore/internal/hardware"
	"github.com/olivefarm/enginecore/internal/model"
	"github.com/olivefarm/enginecore/internal/packaging"
	"github.com/olivefarm/enginecore/internal/recommend"
)

// Server holds dependencies for API handlers.
type Server struct {
	repo        catalog.Repo
	eng         *engine.Engine
	target      accelerator.TargetHost
	providers   []string
	accelSource accelerator.Source
	loadModel   func(path string) (model.Model, error)
	hfClient    *recommend.HFClient

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewServer creates a new API server. accelSource defaults to
// accelerator.StaticSource{} when nil, matching internal/engine's own
// default.
func NewServer(repo catalog.Repo, eng *engine.Engine, target accelerator.TargetHost, providers []string, accelSource accelerator.Source) *Server {
	if accelSource == nil {
		accelSource = accelerator.StaticSource{}
	}
	return &Server{
		repo:        repo,
		eng:         eng,
		target:      target,
		providers:   providers,
		accelSource: accelSource,
		loadModel:   loadPathModel,
		hfClient:    recommend.NewHFClient(),
		cancels:     make(map[string]context.CancelFunc),
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/runs", s.handleCreateRun)
	mux.HandleFunc("GET /api/v1/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /api/v1/runs/{id}/footprint", s.handleGetFootprint)
	mux.HandleFunc("GET /api/v1/runs/{id}/pareto", s.handleGetPareto)
	mux.HandleFunc("GET /api/v1/runs", s.handleListRuns)
	mux.HandleFunc("POST /api/v1/runs/{id}/cancel", s.handleCancelRun)
	mux.HandleFunc("GET /api/v1/accelerators", s.handleListAccelerators)
	mux.HandleFunc("GET /api/v1/accelerators/catalog", s.handleAcceleratorCatalog)
	mux.HandleFunc("GET /api/v1/recommend", s.handleRecommend)
}

// createRunRequest is the POST /api/v1/runs body: a path to the input
// model artifact. Concrete model (de)serialization is out of scope for
// the engine core, so the API wraps the path in a minimal pathModel
// whose contents are opaque to the engine, the same way the original
// handleCreateRun takes a HuggingFace model ID without interpreting it.
type createRunRequest struct {
	InputModelPath  string                  `json:"input_model_path"`
	PackagingConfig *packagingConfigRequest `json:"packaging_config"`
}

// packagingConfigRequest is the optional §6 packaging_config run-time
// input: whether to package the Pareto frontier's artifacts after the run,
// and under what manifest filename.
type packagingConfigRequest struct {
	Enabled      bool   `json:"enabled"`
	ManifestName string `json:"manifest_name"`
}

type runSummary struct {
	ID          string `json:"id"`
	Accelerator string `json:"accelerator"`
	Status      string `json:"status"`
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.InputModelPath == "" {
		writeError(w, http.StatusBadRequest, "input_model_path is required")
		return
	}

	inputModel, err := s.loadModel(req.InputModelPath)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("load input model: %v", err))
		return
	}

	specs, err := accelerator.Resolve(s.target, s.providers, s.accelSource)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("resolve accelerators: %v", err))
		return
	}

	ctx := r.Context()
	groupID := uuid.NewString()
	summaries := make([]runSummary, 0, len(specs))
	runIDs := make([]string, 0, len(specs))
	for _, spec := range specs {
		rec := &catalog.RunRecord{
			ID:             fmt.Sprintf("%s-%s", groupID, spec.String()),
			AcceleratorKey: spec.String(),
			Status:         catalog.StatusPending,
			InputModelID:   req.InputModelPath,
			CacheDir:       s.eng.CacheDir(),
			OutputDir:      s.eng.OutputDir(),
		}
		if err := s.repo.CreateRun(ctx, rec); err != nil {
			writeError(w, http.StatusInternalServerError, "create run record failed")
			return
		}
		summaries = append(summaries, runSummary{ID: rec.ID, Accelerator: rec.AcceleratorKey, Status: string(rec.Status)})
		runIDs = append(runIDs, rec.ID)
	}

	// Launch the engine run in the background with a detached context so
	// it isn't canceled when the HTTP response is sent, mirroring the
	// original handleCreateRun. Cancelling any run in the group cancels
	// the shared engine invocation.
	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	for _, id := range runIDs {
		s.cancels[id] = cancel
	}
	s.mu.Unlock()

	var pkg packaging.Generator
	if req.PackagingConfig != nil {
		pkg = packaging.New(packaging.Config{
			Enabled:      req.PackagingConfig.Enabled,
			ManifestName: req.PackagingConfig.ManifestName,
		})
	}

	go s.runInBackground(runCtx, groupID, runIDs, specs, inputModel, pkg)

	writeJSON(w, http.StatusAccepted, map[string]any{"group_id": groupID, "runs": summaries})
}

func (s *Server) runInBackground(ctx context.Context, groupID string, runIDs []string, specs []hardware.AcceleratorSpec, inputModel model.Model, pkg packaging.Generator) {
	defer func() {
		s.mu.Lock()
		for _, id := range runIDs {
			delete(s.cancels, id)
		}
		s.mu.Unlock()
	}()

	for _, spec := range specs {
		_ = s.repo.UpdateRunStatus(context.Background(), fmt.Sprintf("%s-%s", groupID, spec.String()), catalog.StatusRunning)
	}

	var opts []engine.RunOption
	if pkg != nil {
		opts = append(opts, engine.WithPackaging(pkg))
	}
	results, err := s.eng.Run(ctx, inputModel, opts...)
	if err != nil {
		log.Printf("run %s: engine run failed: %v", groupID[:8], err)
		for _, spec := range specs {
			_ = s.repo.UpdateRunStatus(context.Background(), fmt.Sprintf("%s-%s", groupID, spec.String()), catalog.StatusFailed)
		}
		return
	}

	for _, spec := range specs {
		runID := fmt.Sprintf("%s-%s", groupID, spec.String())
		status := catalog.StatusFailed
		if _, ok := results[spec]; ok {
			status = catalog.StatusCompleted
		}
		if err := s.repo.UpdateRunStatus(context.Background(), runID, status); err != nil {
			log.Printf("run %s: update status failed: %v", groupID[:8], err)
		}
	}
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	run, err := s.repo.GetRun(r.Context(), runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleGetFootprint(w http.ResponseWriter, r *http.Request) {
	run := s.mustRun(w, r)
	if run == nil {
		return
	}
	s.writeOutputFile(w, run, "footprints.json")
}

func (s *Server) handleGetPareto(w http.ResponseWriter, r *http.Request) {
	run := s.mustRun(w, r)
	if run == nil {
		return
	}
	s.writeOutputFile(w, run, "pareto_frontier_footprints.json")
}

func (s *Server) mustRun(w http.ResponseWriter, r *http.Request) *catalog.RunRecord {
	runID := r.PathValue("id")
	run, err := s.repo.GetRun(r.Context(), runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return nil
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return nil
	}
	return run
}

// writeOutputFile serves a run's {accelerator}_{suffix} output file from
// its output directory verbatim, the way the engine itself writes it
// (§6's prefix rule, no output_name configured for API-launched runs).
func (s *Server) writeOutputFile(w http.ResponseWriter, run *catalog.RunRecord, suffix string) {
	path := fmt.Sprintf("%s/%s_%s", run.OutputDir, run.AcceleratorKey, suffix)
	data, err := readFile(path)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("output not available yet: %v", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := catalog.RunFilter{Status: catalog.RunStatus(q.Get("status"))}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Offset = n
		}
	}

	items, err := s.repo.ListRuns(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list runs failed")
		return
	}
	if items == nil {
		items = []catalog.RunRecord{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	ctx := r.Context()

	run, err := s.repo.GetRun(ctx, runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if run.Status != catalog.StatusPending && run.Status != catalog.StatusRunning {
		writeError(w, http.StatusConflict, fmt.Sprintf("cannot cancel run with status %q", run.Status))
		return
	}

	s.mu.Lock()
	if cancel, ok := s.cancels[runID]; ok {
		cancel()
	}
	s.mu.Unlock()

	if err := s.repo.UpdateRunStatus(ctx, runID, catalog.StatusCancelled); err != nil {
		writeError(w, http.StatusInternalServerError, "update status failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"id": runID, "status": string(catalog.StatusCancelled)})
}

func (s *Server) handleListAccelerators(w http.ResponseWriter, r *http.Request) {
	specs, err := accelerator.Resolve(s.target, s.providers, s.accelSource)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("resolve accelerators: %v", err))
		return
	}
	out := make([]string, len(specs))
	for i, spec := range specs {
		out[i] = spec.String()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAcceleratorCatalog(w http.ResponseWriter, r *http.Request) {
	caps, err := s.repo.ListCapabilities(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list capabilities failed")
		return
	}
	if caps == nil {
		caps = []catalog.InstanceAcceleratorCapability{}
	}
	writeJSON(w, http.StatusOK, caps)
}

// handleRecommend proposes a starting PassDescriptor fixed_config (tensor
// parallel degree, quantization, max model length, concurrency) for a
// model/instance_type pair, before a search is launched. It is a seeding
// aid, not a search-space generator: the returned values are a reasonable
// feasible point a caller can use as a PassDescriptor's fixed_config or as
// the center of a hand-written search space, adapted from the original
// handleRecommend which served the same role ahead of a benchmark run.
func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	modelID := q.Get("model")
	instanceType := q.Get("instance_type")
	if modelID == "" || instanceType == "" {
		writeError(w, http.StatusBadRequest, "model and instance_type query params are required")
		return
	}

	instCap, err := s.repo.GetCapability(r.Context(), instanceType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query capability failed")
		return
	}
	if instCap == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown instance type %q", instanceType))
		return
	}

	allCaps, err := s.repo.ListCapabilities(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list capabilities failed")
		return
	}

	cfg, err := s.hfClient.FetchModelConfig(r.Context(), modelID, q.Get("hf_token"))
	if err != nil {
		var hfErr *recommend.HFError
		if errors.As(err, &hfErr) {
			writeError(w, hfErr.StatusCode, hfErr.Message)
			return
		}
		writeError(w, http.StatusBadGateway, fmt.Sprintf("fetch model config: %v", err))
		return
	}

	inst := recommend.InstanceSpec{
		Name:                 instCap.InstanceType,
		AcceleratorType:      "gpu",
		AcceleratorName:      instCap.AcceleratorName,
		AcceleratorCount:     instCap.AcceleratorCount,
		AcceleratorMemoryGiB: instCap.AcceleratorMemoryGiB,
	}
	var allSpecs []recommend.InstanceSpec
	for _, c := range allCaps {
		allSpecs = append(allSpecs, recommend.InstanceSpec{
			Name:                 c.InstanceType,
			AcceleratorType:      "gpu",
			AcceleratorName:      c.AcceleratorName,
			AcceleratorCount:     c.AcceleratorCount,
			AcceleratorMemoryGiB: c.AcceleratorMemoryGiB,
		})
	}

	rec := recommend.Recommend(*cfg, inst, allSpecs)
	writeJSON(w, http.StatusOK, rec)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
