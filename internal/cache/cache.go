// Package cache implements the content-addressed on-disk store of models,
// pass runs, and evaluations described in §4.1: the engine's only shared
// mutable state.
package cache

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/olivefarm/enginecore/internal/hardware"
	"github.com/olivefarm/enginecore/internal/model"
)

const (
	modelsDir      = "models"
	runsDir        = "runs"
	evaluationsDir = "evaluations"
	downloadsDir   = "downloads"
	outputModelDir = "output_model"
)

// Cache roots every derived-model/run/evaluation artifact under dir.
type Cache struct {
	dir     string
	factory model.Config // used to rehydrate a Model from its JSON sidecar
}

// New returns a Cache rooted at dir, creating its subdirectories if absent.
// factory rehydrates cached model JSON back into a live model.Model.
func New(dir string, factory model.Config) (*Cache, error) {
	c := &Cache{dir: dir, factory: factory}
	for _, d := range []string{modelsDir, runsDir, evaluationsDir, downloadsDir} {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o755); err != nil {
			return nil, fmt.Errorf("cache: create %s: %w", d, err)
		}
	}
	return c, nil
}

// Dir returns the cache's root directory.
func (c *Cache) Dir() string { return c.dir }

// CleanCache removes and recreates the entire cache directory tree.
func (c *Cache) CleanCache() error {
	if err := os.RemoveAll(c.dir); err != nil {
		return fmt.Errorf("cache: clean: %w", err)
	}
	for _, d := range []string{modelsDir, runsDir, evaluationsDir, downloadsDir} {
		if err := os.MkdirAll(filepath.Join(c.dir, d), 0o755); err != nil {
			return fmt.Errorf("cache: recreate %s: %w", d, err)
		}
	}
	return nil
}

// CleanEvaluationCache removes and recreates only evaluations/.
func (c *Cache) CleanEvaluationCache() error {
	return c.cleanSubdir(evaluationsDir)
}

// CleanPassRunCache removes only the run JSONs produced by passTypeName,
// leaving other passes' run cache and all model/evaluation cache intact.
func (c *Cache) CleanPassRunCache(passTypeName string) error {
	entries, err := os.ReadDir(filepath.Join(c.dir, runsDir))
	if err != nil {
		return fmt.Errorf("cache: clean pass run cache: %w", err)
	}
	prefix := passTypeName + "-"
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) {
			if err := os.Remove(filepath.Join(c.dir, runsDir, e.Name())); err != nil {
				log.Printf("cache: failed removing stale run %s: %v", e.Name(), err)
			}
		}
	}
	return nil
}

func (c *Cache) cleanSubdir(name string) error {
	p := filepath.Join(c.dir, name)
	if err := os.RemoveAll(p); err != nil {
		return fmt.Errorf("cache: clean %s: %w", name, err)
	}
	return os.MkdirAll(p, 0o755)
}

var derivedNumberRe = regexp.MustCompile(`^(\d+)_`)

// AllocateModelNumber returns an integer greater than any "<N>_..." sidecar
// currently present in models/, re-scanning the directory on every call so
// that a crash never causes the next allocation to reuse a number (§4.1,
// §5's single-process race note).
func (c *Cache) AllocateModelNumber() (int, error) {
	entries, err := os.ReadDir(filepath.Join(c.dir, modelsDir))
	if err != nil {
		return 0, fmt.Errorf("cache: allocate model number: %w", err)
	}
	max := -1
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".json")
		m := derivedNumberRe.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max + 1, nil
}

func runFilename(passName, inputNumber, configHash string, accel *hardware.AcceleratorSpec) string {
	parts := []string{passName, inputNumber, configHash}
	name := strings.Join(parts, "-")
	if accel != nil {
		name = fmt.Sprintf("%s-%s", name, accel.String())
	}
	return name + ".json"
}

type runRecord struct {
	PassName      string `json:"pass_name"`
	PassConfig    string `json:"pass_config"`
	InputModelID  string `json:"input_model_id"`
	OutputModelID string `json:"output_model_id"`
}

// LookupRun returns the cached output ModelId for the given run key, or
// false if no run is cached (or its sidecar fails to parse). accel is nil
// for accelerator-agnostic passes, which elide the suffix from both the
// lookup and the filename.
func (c *Cache) LookupRun(inputModelID model.ID, passName, configHash string, accel *hardware.AcceleratorSpec) (model.ID, bool) {
	path := filepath.Join(c.dir, runsDir, runFilename(passName, inputModelID.InputNumber(), configHash, accel))
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	var rec runRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", false
	}
	return model.ID(rec.OutputModelID), true
}

// CacheRun write-through caches a run record. Failures are logged, never
// raised.
func (c *Cache) CacheRun(inputModelID model.ID, passName, passConfig, configHash string, accel *hardware.AcceleratorSpec, outputModelID model.ID) {
	rec := runRecord{
		PassName:      passName,
		PassConfig:    passConfig,
		InputModelID:  string(inputModelID),
		OutputModelID: string(outputModelID),
	}
	data, err := json.MarshalIndent(rec, "", "    ")
	if err != nil {
		log.Printf("cache: marshal run %s: %v", passName, err)
		return
	}
	path := filepath.Join(c.dir, runsDir, runFilename(passName, inputModelID.InputNumber(), configHash, accel))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Printf("cache: write run %s: %v", path, err)
	}
}

// LoadModel reads a model's sidecar JSON. An empty-object sidecar means the
// cached output was PRUNED. I/O or parse errors return (nil, false) —
// non-fatal per §4.1; callers treat this as a cache miss.
func (c *Cache) LoadModel(id model.ID) (model.Model, bool) {
	path := filepath.Join(c.dir, modelsDir, string(id)+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, false
	}
	if len(obj) == 0 {
		return model.Pruned, true
	}
	if c.factory == nil {
		return nil, false
	}
	cfg, err := c.factory.FromJSON(obj)
	if err != nil {
		log.Printf("cache: rehydrate model %s: %v", id, err)
		return nil, false
	}
	m, err := cfg.CreateModel()
	if err != nil {
		log.Printf("cache: create model %s: %v", id, err)
		return nil, false
	}
	return m, true
}

// LoadModelOrError adapts LoadModel to a (Model, error) signature for
// collaborators (e.g. internal/packaging's Generator) that need to
// distinguish "no such model" from "pruned" rather than treat both as a
// cache miss.
func (c *Cache) LoadModelOrError(id model.ID) (model.Model, error) {
	m, ok := c.LoadModel(id)
	if !ok {
		return nil, fmt.Errorf("cache: load model %s: not found", id)
	}
	return m, nil
}

// CacheModel write-through caches a model's sidecar JSON, creating its
// output_model/ artifact directory. Pruned models are cached as an empty
// JSON object. Failures are logged, never raised.
func (c *Cache) CacheModel(id model.ID, m model.Model) {
	dir := filepath.Join(c.dir, modelsDir, string(id))
	if err := os.MkdirAll(filepath.Join(dir, outputModelDir), 0o755); err != nil {
		log.Printf("cache: create model dir %s: %v", id, err)
		return
	}
	var obj map[string]any
	if model.IsPruned(m) {
		obj = map[string]any{}
	} else {
		var err error
		obj, err = m.ToJSON(true)
		if err != nil {
			log.Printf("cache: serialize model %s: %v", id, err)
			return
		}
	}
	data, err := json.MarshalIndent(obj, "", "    ")
	if err != nil {
		log.Printf("cache: marshal model %s: %v", id, err)
		return
	}
	path := filepath.Join(c.dir, modelsDir, string(id)+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Printf("cache: write model %s: %v", path, err)
	}
}

// ModelOutputDir returns the output_model/ artifact directory for id,
// creating it if absent. Passes write their produced artifact here.
func (c *Cache) ModelOutputDir(id model.ID) (string, error) {
	dir := filepath.Join(c.dir, modelsDir, string(id), outputModelDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("cache: model output dir %s: %w", id, err)
	}
	return dir, nil
}

type evaluationRecord struct {
	ModelID string         `json:"model_id"`
	Signal  map[string]any `json:"signal"`
}

func evaluationFilename(id model.ID, accel hardware.AcceleratorSpec) string {
	key := string(id)
	suffix := "-" + accel.String()
	if !strings.HasSuffix(key, suffix) {
		key += suffix
	}
	return key + ".json"
}

// LookupEvaluation returns the cached raw signal for id/accel, or false on
// a cache miss.
func (c *Cache) LookupEvaluation(id model.ID, accel hardware.AcceleratorSpec) (map[string]any, bool) {
	path := filepath.Join(c.dir, evaluationsDir, evaluationFilename(id, accel))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var rec evaluationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false
	}
	return rec.Signal, true
}

// CacheEvaluation write-through caches an evaluation signal. Failures are
// logged, never raised.
func (c *Cache) CacheEvaluation(id model.ID, accel hardware.AcceleratorSpec, signal map[string]any) {
	rec := evaluationRecord{ModelID: string(id), Signal: signal}
	data, err := json.MarshalIndent(rec, "", "    ")
	if err != nil {
		log.Printf("cache: marshal evaluation %s: %v", id, err)
		return
	}
	path := filepath.Join(c.dir, evaluationsDir, evaluationFilename(id, accel))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Printf("cache: write evaluation %s: %v", path, err)
	}
}
