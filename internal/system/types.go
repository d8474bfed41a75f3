// Package system provides concrete Host/Target implementations the
// engine's PassExecutor and Evaluator run against: an in-process LocalHost/
// LocalTarget for embedding-supplied pass bodies, and K8sHost/K8sTarget
// that run a pass or an evaluation as a Kubernetes Job, adapted from the
// original orchestrator package (deploy → wait → collect → teardown).
package system

import (
	"context"

	"github.com/olivefarm/enginecore/internal/hardware"
	"github.com/olivefarm/enginecore/internal/metric"
	"github.com/olivefarm/enginecore/internal/model"
)

const defaultNamespace = "enginecore"

// ContainerHostSpec is the container-execution configuration a
// PassDescriptor or evaluator references when it needs to run outside the
// engine's own process, mirroring the original use of a fixed loadgen/
// model image plus registry secret.
type ContainerHostSpec struct {
	ImageRepository   string
	ImageTag          string
	ECRRegistryID     string // "" uses the caller's default private registry
	PullSecretName    string // "" means the image is public or the cluster has node-level pull creds
	Namespace         string
	ModelAccessSecret string // optional secretsmanager name holding an HF-style access token
	CPURequest        string
	MemoryRequest     string
	MetricsPort       int // evaluation targets only; 0 uses the package default
	// ResultFormat selects how K8sTarget decodes the evaluation Job's
	// result file: "" (default) expects a pre-computed metric.Result JSON
	// object; "loadgen" expects a load-generator's raw JSON output
	// (internal/metrics.ParseLoadgenOutput), summarized via ComputeMetrics
	// before being flattened into a metric.Result.
	ResultFormat string
}

// PassRunner is the embedding-supplied function that actually executes a
// pass's transformation in-process. Concrete pass bodies are out of scope
// for this engine; LocalHost only knows how to invoke one.
type PassRunner func(ctx context.Context, passType string, cfg map[string]any, input model.Model, outputPath string) (model.Model, error)

// EvalRunner is the embedding-supplied function that actually evaluates a
// model in-process and returns its metric result.
type EvalRunner func(ctx context.Context, m model.Model, metricsConfig map[string]any, accel hardware.AcceleratorSpec) (metric.Result, error)

// hostSpecFromConfig extracts a ContainerHostSpec from a pass's resolved
// run configuration, under the "container_host" key, the way a
// PassDescriptor's FixedConfig carries host routing information.
func hostSpecFromConfig(cfg map[string]any) (ContainerHostSpec, bool) {
	raw, ok := cfg["container_host"]
	if !ok {
		return ContainerHostSpec{}, false
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return ContainerHostSpec{}, false
	}
	spec := ContainerHostSpec{
		ImageRepository:   stringField(m, "image_repository"),
		ImageTag:          stringField(m, "image_tag"),
		ECRRegistryID:     stringField(m, "ecr_registry_id"),
		PullSecretName:    stringField(m, "pull_secret_name"),
		Namespace:         stringField(m, "namespace"),
		ModelAccessSecret: stringField(m, "model_access_secret"),
		CPURequest:        stringField(m, "cpu_request"),
		MemoryRequest:     stringField(m, "memory_request"),
		ResultFormat:      stringField(m, "result_format"),
	}
	if spec.Namespace == "" {
		spec.Namespace = defaultNamespace
	}
	if spec.CPURequest == "" {
		spec.CPURequest = "1"
	}
	if spec.MemoryRequest == "" {
		spec.MemoryRequest = "2Gi"
	}
	return spec, true
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
