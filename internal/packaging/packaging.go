// Package packaging ships a minimal Generator satisfying the engine's
// packaging contract: copying a run's Pareto-frontier model artifacts into
// a single packaged output directory with a manifest. Concrete packaging
// formats (zip, wheel, container image) are out of scope; this exists so
// PackagingConfig can be exercised end-to-end.
package packaging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/olivefarm/enginecore/internal/footprint"
	"github.com/olivefarm/enginecore/internal/model"
)

// Generator packages a set of footprint nodes into an output directory.
type Generator interface {
	Package(outputDir string, nodes []*footprint.Node, loadModel func(model.ID) (model.Model, error)) error
}

// Config controls where and how packaging output is written.
type Config struct {
	// Enabled gates whether Package is invoked at all.
	Enabled bool
	// ManifestName is the packaged manifest's filename, default "manifest.json".
	ManifestName string
}

// DefaultGenerator copies each node's resolved model artifact into
// "{outputDir}/packaged/{modelID}/" and writes a manifest.json describing
// every packaged entry and its metrics.
type DefaultGenerator struct {
	Config Config
}

// New returns a DefaultGenerator using cfg, defaulting ManifestName if unset.
func New(cfg Config) *DefaultGenerator {
	if cfg.ManifestName == "" {
		cfg.ManifestName = "manifest.json"
	}
	return &DefaultGenerator{Config: cfg}
}

type manifestEntry struct {
	ModelID  string         `json:"model_id"`
	FromPass string         `json:"from_pass,omitempty"`
	Metrics  map[string]any `json:"metrics,omitempty"`
}

// Package copies every node's model artifact into outputDir/packaged and
// writes the manifest. loadModel resolves a node's ModelID to its live
// Model (typically backed by the engine's cache).
func (g *DefaultGenerator) Package(outputDir string, nodes []*footprint.Node, loadModel func(model.ID) (model.Model, error)) error {
	if !g.Config.Enabled {
		return nil
	}
	packagedDir := filepath.Join(outputDir, "packaged")
	if err := os.MkdirAll(packagedDir, 0o755); err != nil {
		return fmt.Errorf("packaging: create output dir: %w", err)
	}

	manifest := make([]manifestEntry, 0, len(nodes))
	for _, n := range nodes {
		m, err := loadModel(n.ModelID)
		if err != nil {
			return fmt.Errorf("packaging: load model %s: %w", n.ModelID, err)
		}
		if model.IsPruned(m) {
			continue
		}

		dest := filepath.Join(packagedDir, string(n.ModelID))
		if src := m.ResourcePath(); src != "" {
			if err := copyPath(src, dest); err != nil {
				return fmt.Errorf("packaging: copy artifact for %s: %w", n.ModelID, err)
			}
		}

		var metrics map[string]any
		if n.Metrics != nil {
			metrics = make(map[string]any, len(n.Metrics.Value))
			for k, v := range n.Metrics.Value {
				metrics[string(k)] = v.Value
			}
		}
		manifest = append(manifest, manifestEntry{
			ModelID:  string(n.ModelID),
			FromPass: n.FromPass,
			Metrics:  metrics,
		})
	}

	data, err := json.MarshalIndent(manifest, "", "    ")
	if err != nil {
		return fmt.Errorf("packaging: marshal manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(packagedDir, g.Config.ManifestName), data, 0o644)
}

func copyPath(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return copyDir(src, dst)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

func copyDir(src, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		s := filepath.Join(src, e.Name())
		d := filepath.Join(dst, e.Name())
		if e.IsDir() {
			if err := copyDir(s, d); err != nil {
				return err
			}
			continue
		}
		if err := copyPath(s, d); err != nil {
			return err
		}
	}
	return nil
}
