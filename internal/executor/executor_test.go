package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/olivefarm/enginecore/internal/cache"
	"github.com/olivefarm/enginecore/internal/footprint"
	"github.com/olivefarm/enginecore/internal/hardware"
	"github.com/olivefarm/enginecore/internal/model"
	"github.com/olivefarm/enginecore/internal/passregistry"
)

type fakeModel struct {
	data  map[string]any
	local string
}

func (f *fakeModel) ToJSON(bool) (map[string]any, error) { return f.data, nil }
func (f *fakeModel) ResourcePath() string                { return f.local }
func (f *fakeModel) SetLocalPath(p string)               { f.local = p }

type fakeConfig struct{ data map[string]any }

func (c *fakeConfig) FromJSON(data map[string]any) (model.Config, error) {
	return &fakeConfig{data: data}, nil
}
func (c *fakeConfig) CreateModel() (model.Model, error) { return &fakeModel{data: c.data}, nil }

type fakePass struct {
	valid    bool
	agnostic bool
}

func (p fakePass) SearchSpace() map[string]any             { return nil }
func (p fakePass) ValidateSearchPoint(map[string]any) bool { return p.valid }
func (p fakePass) ConfigAt(point map[string]any) (map[string]any, error) {
	return point, nil
}
func (p fakePass) SerializeConfig(cfg map[string]any) map[string]any { return cfg }
func (p fakePass) IsAcceleratorAgnostic(hardware.AcceleratorSpec) bool {
	return p.agnostic
}

type fakeHost struct {
	out       model.Model
	err       error
	localLike bool
	calls     int
}

func (h *fakeHost) RunPass(ctx context.Context, inst passregistry.PassInstance, input model.Model, outputPath string, point map[string]any) (model.Model, error) {
	h.calls++
	return h.out, h.err
}
func (h *fakeHost) IsLocalLike() bool { return h.localLike }

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	c, err := cache.New(t.TempDir(), &fakeConfig{})
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	return New(c, footprint.New())
}

func TestRunProducesAndCachesModel(t *testing.T) {
	e := newTestExecutor(t)
	accel := hardware.New(hardware.CPU, "CPUExecutionProvider")
	input := model.ID("deadbeef")
	inputModel := &fakeModel{data: map[string]any{"x": 1}}
	host := &fakeHost{out: &fakeModel{data: map[string]any{"bits": 8}}}

	out, id, err := e.Run(context.Background(), "Quantize", fakePass{valid: true}, accel, input, inputModel, map[string]any{"bits": 8}, host, true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if model.IsPruned(out) {
		t.Fatalf("Run: unexpected PRUNED")
	}
	if host.calls != 1 {
		t.Fatalf("host called %d times, want 1", host.calls)
	}

	// Re-run with the same inputs must hit the cache instead of re-invoking.
	out2, id2, err := e.Run(context.Background(), "Quantize", fakePass{valid: true}, accel, input, inputModel, map[string]any{"bits": 8}, host, true)
	if err != nil {
		t.Fatalf("Run (cached): %v", err)
	}
	if id2 != id {
		t.Fatalf("cached run produced a different model id: %q vs %q", id2, id)
	}
	if host.calls != 1 {
		t.Fatalf("host called %d times after cache hit, want still 1", host.calls)
	}
	if model.IsPruned(out2) {
		t.Fatalf("cached result unexpectedly PRUNED")
	}
}

func TestRunRecordsModelConfigOnFootprintNode(t *testing.T) {
	e := newTestExecutor(t)
	accel := hardware.New(hardware.CPU, "CPUExecutionProvider")
	host := &fakeHost{out: &fakeModel{data: map[string]any{"bits": 8}}}

	_, id, err := e.Run(context.Background(), "Quantize", fakePass{valid: true}, accel, model.ID("deadbeef"), &fakeModel{}, map[string]any{"bits": 8}, host, true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	n, ok := e.Footprint.Node(id)
	if !ok {
		t.Fatalf("no footprint node recorded for %s", id)
	}
	if n.ModelConfig == nil || n.ModelConfig["bits"] != 8 {
		t.Fatalf("node model_config = %v, want the produced model's serialized form", n.ModelConfig)
	}

	// The cache-hit replay records the rehydrated model's config too.
	e2 := New(e.Cache, footprint.New())
	_, id2, err := e2.Run(context.Background(), "Quantize", fakePass{valid: true}, accel, model.ID("deadbeef"), &fakeModel{}, map[string]any{"bits": 8}, host, true)
	if err != nil {
		t.Fatalf("Run (cached): %v", err)
	}
	n2, ok := e2.Footprint.Node(id2)
	if !ok {
		t.Fatalf("no footprint node recorded on cache hit for %s", id2)
	}
	if n2.ModelConfig == nil {
		t.Fatalf("cache-hit node missing model_config")
	}
}

func TestRunInvalidSearchPointPrunesWithoutInvokingHost(t *testing.T) {
	e := newTestExecutor(t)
	accel := hardware.New(hardware.CPU, "CPUExecutionProvider")
	host := &fakeHost{out: &fakeModel{}}

	out, _, err := e.Run(context.Background(), "Quantize", fakePass{valid: false}, accel, model.ID("deadbeef"), &fakeModel{}, nil, host, true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !model.IsPruned(out) {
		t.Fatalf("Run: want PRUNED for invalid search point")
	}
	if host.calls != 0 {
		t.Fatalf("host invoked despite invalid search point")
	}
}

func TestRunProgrammerErrorPropagates(t *testing.T) {
	e := newTestExecutor(t)
	accel := hardware.New(hardware.CPU, "CPUExecutionProvider")
	host := &fakeHost{err: &ProgrammerError{Err: errors.New("bad type")}}

	_, _, err := e.Run(context.Background(), "Quantize", fakePass{valid: true}, accel, model.ID("deadbeef"), &fakeModel{}, nil, host, true)
	var progErr *ProgrammerError
	if !errors.As(err, &progErr) {
		t.Fatalf("Run: want ProgrammerError to propagate, got %v", err)
	}
}

func TestRunPassFailureAlwaysPrunes(t *testing.T) {
	e := newTestExecutor(t)
	accel := hardware.New(hardware.CPU, "CPUExecutionProvider")
	host := &fakeHost{err: &PassFailureError{Err: errors.New("onnx export failed")}}

	out, _, err := e.Run(context.Background(), "Quantize", fakePass{valid: true}, accel, model.ID("deadbeef"), &fakeModel{}, nil, host, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !model.IsPruned(out) {
		t.Fatalf("Run: want PRUNED for a typed pass failure even with search disabled")
	}
}

func TestRunUnexpectedErrorPropagatesWhenSearchDisabled(t *testing.T) {
	e := newTestExecutor(t)
	accel := hardware.New(hardware.CPU, "CPUExecutionProvider")
	host := &fakeHost{err: errors.New("disk full")}

	_, _, err := e.Run(context.Background(), "Quantize", fakePass{valid: true}, accel, model.ID("deadbeef"), &fakeModel{}, nil, host, false)
	if err == nil {
		t.Fatalf("Run: want error to propagate with search disabled")
	}
}

type fakeMaterializer struct {
	calls int
	err   error
}

func (m *fakeMaterializer) Materialize(ctx context.Context, mdl model.Model) error {
	m.calls++
	if m.err != nil {
		return m.err
	}
	mdl.SetLocalPath("/local/materialized")
	return nil
}

func TestRunMaterializesRemoteInputForLocalLikeHost(t *testing.T) {
	e := newTestExecutor(t)
	mat := &fakeMaterializer{}
	e.Materializer = mat
	accel := hardware.New(hardware.CPU, "CPUExecutionProvider")
	inputModel := &fakeModel{local: "s3://bucket/model.onnx"}
	host := &fakeHost{out: &fakeModel{}, localLike: true}

	_, _, err := e.Run(context.Background(), "Quantize", fakePass{valid: true}, accel, model.ID("deadbeef"), inputModel, nil, host, true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if mat.calls != 1 {
		t.Fatalf("materializer called %d times, want 1", mat.calls)
	}
	if inputModel.local != "/local/materialized" {
		t.Fatalf("input model not rehomed: %q", inputModel.local)
	}
}

func TestRunSkipsMaterializationForNonLocalLikeHost(t *testing.T) {
	e := newTestExecutor(t)
	mat := &fakeMaterializer{}
	e.Materializer = mat
	accel := hardware.New(hardware.CPU, "CPUExecutionProvider")
	inputModel := &fakeModel{local: "s3://bucket/model.onnx"}
	host := &fakeHost{out: &fakeModel{}, localLike: false}

	_, _, err := e.Run(context.Background(), "Quantize", fakePass{valid: true}, accel, model.ID("deadbeef"), inputModel, nil, host, true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if mat.calls != 0 {
		t.Fatalf("materializer called %d times for a remote host, want 0", mat.calls)
	}
}

func TestRunMaterializationFailurePropagates(t *testing.T) {
	e := newTestExecutor(t)
	mat := &fakeMaterializer{err: errors.New("download failed")}
	e.Materializer = mat
	accel := hardware.New(hardware.CPU, "CPUExecutionProvider")
	inputModel := &fakeModel{local: "s3://bucket/model.onnx"}
	host := &fakeHost{out: &fakeModel{}, localLike: true}

	_, _, err := e.Run(context.Background(), "Quantize", fakePass{valid: true}, accel, model.ID("deadbeef"), inputModel, nil, host, true)
	if err == nil {
		t.Fatal("Run: want materialization failure to propagate")
	}
	if host.calls != 0 {
		t.Fatalf("host invoked despite materialization failure")
	}
}

func TestRunUnexpectedErrorPrunesWhenSearchEnabled(t *testing.T) {
	e := newTestExecutor(t)
	accel := hardware.New(hardware.CPU, "CPUExecutionProvider")
	host := &fakeHost{err: errors.New("disk full")}

	out, _, err := e.Run(context.Background(), "Quantize", fakePass{valid: true}, accel, model.ID("deadbeef"), &fakeModel{}, nil, host, true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !model.IsPruned(out) {
		t.Fatalf("Run: want PRUNED for unexpected error with search enabled")
	}
}
