package api

import (
	"fmt"
	"os"

	"github.com/olivefarm/enginecore/internal/model"
)

// pathModel is the minimal model.Model a POST /api/v1/runs request
// constructs from its input_model_path: the engine only ever serializes
// and re-homes a Model, it never inspects one, so a bare path satisfies
// the interface without the API needing to know a concrete model format.
type pathModel struct {
	path string
}

func (m *pathModel) ToJSON(bool) (map[string]any, error) {
	return map[string]any{"path": m.path}, nil
}

func (m *pathModel) ResourcePath() string { return m.path }

func (m *pathModel) SetLocalPath(path string) { m.path = path }

// loadPathModel validates that path exists on disk and wraps it as a
// pathModel, the API's default loadModel.
func loadPathModel(path string) (model.Model, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat input model path: %w", err)
	}
	return &pathModel{path: path}, nil
}

// readFile reads a file from disk, indirected behind a var so tests can
// substitute a fake output directory without touching the filesystem.
var readFile = os.ReadFile
