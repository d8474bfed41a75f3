package engine

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/olivefarm/enginecore/internal/metric"
	"github.com/olivefarm/enginecore/internal/model"
)

// writeModelArtifact materializes a no-search-mode output model as
// "{outputDir}/{baseName}" (the artifact, copied from the model's resource
// path if it names one) plus its "{baseName}.json" sidecar, where baseName
// already carries §6's "{prefix}model" naming.
func writeModelArtifact(outputDir, baseName string, m model.Model) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("engine: create output dir: %w", err)
	}

	obj, err := m.ToJSON(true)
	if err != nil {
		return fmt.Errorf("engine: serialize output model %q: %w", baseName, err)
	}
	data, err := json.MarshalIndent(obj, "", "    ")
	if err != nil {
		return fmt.Errorf("engine: marshal output model %q: %w", baseName, err)
	}
	sidecar := filepath.Join(outputDir, baseName+".json")
	if err := os.WriteFile(sidecar, data, 0o644); err != nil {
		return fmt.Errorf("engine: write output sidecar %q: %w", baseName, err)
	}

	if src := m.ResourcePath(); src != "" {
		if err := copyArtifact(src, filepath.Join(outputDir, baseName)); err != nil {
			return fmt.Errorf("engine: copy output artifact %q: %w", baseName, err)
		}
	}
	return nil
}

func copyArtifact(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return copyDir(src, dst)
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
		if err := copyArtifact(s, d); err != nil {
			return err
		}
	}
	return nil
}

// writeMetricsFile writes an evaluation-only run's result as
// "{prefix}metrics.json" (§6).
func writeMetricsFile(path string, result metric.Result) error {
	out := make(map[string]map[string]any, len(result))
	for k, v := range result {
		out[string(k)] = map[string]any{
			"value":            v.Value,
			"priority":         v.Priority,
			"higher_is_better": v.HigherIsBetter,
		}
	}
	data, err := json.MarshalIndent(out, "", "    ")
	if err != nil {
		return fmt.Errorf("engine: marshal metrics: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("engine: create output dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
