package system

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"k8s.io/client-go/kubernetes"

	"github.com/olivefarm/enginecore/internal/ecrimage"
	"github.com/olivefarm/enginecore/internal/manifest"
	"github.com/olivefarm/enginecore/internal/model"
	"github.com/olivefarm/enginecore/internal/passregistry"
)

// K8sHost runs a pass as a Kubernetes Job, adapted from the original
// Orchestrator.Execute: deploy → wait → collect → teardown, generalized
// from "benchmark a model deployment" to "run one pass on one model".
// Unlike a Deployment, a pass needs no readiness wait — it runs to
// completion like the original loadgen Job.
type K8sHost struct {
	Client   kubernetes.Interface
	Ecr      *ecrimage.Resolver
	Secrets  *SecretFetcher
	CacheDir string
}

// NewK8sHost returns a K8sHost backed by client, resolving images through
// ecr and secrets through secrets. cacheDir is the engine's local cache
// directory, mounted into the pod via hostPath at the identical path.
func NewK8sHost(client kubernetes.Interface, ecr *ecrimage.Resolver, secrets *SecretFetcher, cacheDir string) *K8sHost {
	return &K8sHost{Client: client, Ecr: ecr, Secrets: secrets, CacheDir: cacheDir}
}

// RunPass renders and runs a single-shot Job executing inst at point
// against input, reading the produced model back from outputPath once the
// Job completes.
func (h *K8sHost) RunPass(ctx context.Context, inst passregistry.PassInstance, input model.Model, outputPath string, point map[string]any) (model.Model, error) {
	cfg, err := inst.ConfigAt(point)
	if err != nil {
		return nil, fmt.Errorf("system: resolve pass config: %w", err)
	}
	spec, ok := hostSpecFromConfig(cfg)
	if !ok {
		return nil, fmt.Errorf("system: K8sHost requires a container_host entry in the pass config")
	}

	image, err := h.Ecr.Resolve(ctx, spec.ImageRepository, spec.ImageTag)
	if err != nil {
		return nil, fmt.Errorf("system: resolve pass image: %w", err)
	}

	var token string
	if h.Secrets != nil && spec.ModelAccessSecret != "" {
		token, err = h.Secrets.Fetch(ctx, spec.ModelAccessSecret)
		if err != nil {
			return nil, fmt.Errorf("system: fetch model access secret: %w", err)
		}
	}

	serializable := inst.SerializeConfig(cfg)
	configJSON, err := json.Marshal(serializable)
	if err != nil {
		return nil, fmt.Errorf("system: marshal pass config: %w", err)
	}

	jobName := fmt.Sprintf("enginecore-pass-%d", time.Now().UnixNano())
	yamlStr, err := manifest.RenderPassJob(manifest.PassJobParams{
		Name:             jobName,
		Namespace:        spec.Namespace,
		Image:            image,
		PullSecretName:   spec.PullSecretName,
		CacheDir:         h.CacheDir,
		InputModelPath:   input.ResourcePath(),
		OutputModelPath:  outputPath,
		PassType:         passTypeOf(inst),
		ConfigJSON:       string(configJSON),
		ModelAccessToken: token,
		CPURequest:       spec.CPURequest,
		MemoryRequest:    spec.MemoryRequest,
	})
	if err != nil {
		return nil, fmt.Errorf("system: render pass job: %w", err)
	}

	if err := applyYAML(ctx, h.Client, spec.Namespace, yamlStr); err != nil {
		return nil, fmt.Errorf("system: create pass job: %w", err)
	}
	defer teardownJob(context.Background(), h.Client, spec.Namespace, jobName)

	if err := waitForJobCompletion(ctx, h.Client, spec.Namespace, jobName); err != nil {
		return nil, fmt.Errorf("system: pass job: %w", failedJobError(ctx, h.Client, spec.Namespace, jobName, err))
	}

	if _, err := os.Stat(outputPath); err != nil {
		return nil, fmt.Errorf("system: pass job produced no output at %s: %w", outputPath, err)
	}
	out := &containerModel{path: outputPath}
	return out, nil
}

// IsLocalLike reports false: a containerized pass runs outside the
// engine's own process, so a remote input model must be materialized
// locally first if this host needs local-like treatment at all. In
// practice K8sHost relies on the shared hostPath-mounted cache instead.
func (h *K8sHost) IsLocalLike() bool { return false }

// containerModel is the minimal model.Model produced by reading back a
// containerized pass/evaluation's output artifact from the shared cache
// directory: its contents are opaque to the engine, only its path matters.
type containerModel struct {
	path string
}

func (m *containerModel) ToJSON(bool) (map[string]any, error) {
	return map[string]any{"resource_path": m.path}, nil
}

func (m *containerModel) ResourcePath() string { return m.path }

func (m *containerModel) SetLocalPath(path string) { m.path = path }
