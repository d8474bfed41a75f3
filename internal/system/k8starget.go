package system

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"k8s.io/client-go/kubernetes"

	"github.com/olivefarm/enginecore/internal/ecrimage"
	"github.com/olivefarm/enginecore/internal/hardware"
	"github.com/olivefarm/enginecore/internal/manifest"
	"github.com/olivefarm/enginecore/internal/metric"
	"github.com/olivefarm/enginecore/internal/metrics"
	"github.com/olivefarm/enginecore/internal/model"
)

const defaultMetricsPort = 8000

// K8sTarget evaluates a model by deploying it behind a Service and running
// an evaluation Job against it, adapted from the original model
// Deployment + loadgen Job + GPUScraper combination, generalized from
// "benchmark run" metrics to arbitrary evaluator MetricResults.
type K8sTarget struct {
	Client            kubernetes.Interface
	Ecr               *ecrimage.Resolver
	Secrets           *SecretFetcher
	CacheDir          string
	EvalImage         string // image running the evaluation workload against the deployed target
	UtilizationMetric string // Prometheus metric name for accelerator utilization, "" disables scraping
	QueueDepthMetric  string
}

// NewK8sTarget returns a K8sTarget backed by client.
func NewK8sTarget(client kubernetes.Interface, ecr *ecrimage.Resolver, secrets *SecretFetcher, cacheDir, evalImage string) *K8sTarget {
	return &K8sTarget{Client: client, Ecr: ecr, Secrets: secrets, CacheDir: cacheDir, EvalImage: evalImage}
}

// EvaluateModel deploys m behind a Service, optionally scrapes accelerator
// utilization while an evaluation Job exercises it, then reads the
// resulting MetricResult back from the shared cache directory.
func (t *K8sTarget) EvaluateModel(ctx context.Context, m model.Model, metricsConfig map[string]any, accel hardware.AcceleratorSpec) (metric.Result, error) {
	spec, ok := hostSpecFromConfig(metricsConfig)
	if !ok {
		spec = ContainerHostSpec{Namespace: defaultNamespace, CPURequest: "1", MemoryRequest: "2Gi"}
	}
	if spec.MetricsPort == 0 {
		spec.MetricsPort = defaultMetricsPort
	}

	targetImage, err := t.targetImage(ctx, spec)
	if err != nil {
		return nil, err
	}

	var token string
	if t.Secrets != nil && spec.ModelAccessSecret != "" {
		token, err = t.Secrets.Fetch(ctx, spec.ModelAccessSecret)
		if err != nil {
			return nil, fmt.Errorf("system: fetch model access secret: %w", err)
		}
	}

	name := fmt.Sprintf("enginecore-eval-%d", time.Now().UnixNano())
	deployYAML, err := manifest.RenderEvalDeployment(manifest.EvalDeploymentParams{
		Name:             name,
		Namespace:        spec.Namespace,
		Image:            targetImage,
		PullSecretName:   spec.PullSecretName,
		CacheDir:         t.CacheDir,
		ModelPath:        m.ResourcePath(),
		AcceleratorType:  string(accel.Device),
		AcceleratorCount: 1,
		InstanceTypeName: "",
		ModelAccessToken: token,
		CPURequest:       spec.CPURequest,
		MemoryRequest:    spec.MemoryRequest,
		MetricsPort:      spec.MetricsPort,
	})
	if err != nil {
		return nil, fmt.Errorf("system: render eval deployment: %w", err)
	}
	if err := applyYAML(ctx, t.Client, spec.Namespace, deployYAML); err != nil {
		return nil, fmt.Errorf("system: create eval deployment: %w", err)
	}
	defer teardownDeployment(context.Background(), t.Client, spec.Namespace, name)

	if err := waitForDeploymentReady(ctx, t.Client, spec.Namespace, name, 25*time.Minute); err != nil {
		return nil, fmt.Errorf("system: eval target readiness: %w", err)
	}

	var scraper *UtilizationScraper
	if t.UtilizationMetric != "" && accel.Device == hardware.GPU {
		scraper = NewUtilizationScraper(name, spec.MetricsPort, 0, t.UtilizationMetric, t.QueueDepthMetric)
		scraper.Start(ctx)
	}

	resultPath, err := t.runEvalJob(ctx, spec, name, metricsConfig)

	var util *UtilizationSummary
	if scraper != nil {
		util = scraper.Stop()
	}
	if err != nil {
		return nil, err
	}

	result, err := t.readResult(resultPath, spec.ResultFormat)
	if err != nil {
		return nil, err
	}
	if util != nil {
		result[metric.JointKey("accelerator_utilization", "")] = metric.Value{Value: util.UtilizationPeakPct, Priority: 0, HigherIsBetter: false}
	}
	return result, nil
}

func (t *K8sTarget) targetImage(ctx context.Context, spec ContainerHostSpec) (string, error) {
	if spec.ImageRepository == "" {
		return "", fmt.Errorf("system: K8sTarget requires a container_host entry with an image repository")
	}
	return t.Ecr.Resolve(ctx, spec.ImageRepository, spec.ImageTag)
}

func (t *K8sTarget) runEvalJob(ctx context.Context, spec ContainerHostSpec, targetName string, metricsConfig map[string]any) (string, error) {
	configJSON, err := json.Marshal(metricsConfig)
	if err != nil {
		return "", fmt.Errorf("system: marshal metrics config: %w", err)
	}

	evalImage := t.EvalImage
	if evalImage == "" {
		return "", fmt.Errorf("system: K8sTarget has no EvalImage configured")
	}

	jobName := fmt.Sprintf("%s-job", targetName)
	resultPath := fmt.Sprintf("%s/evaluations/%s-result.json", t.CacheDir, targetName)

	yamlStr, err := manifest.RenderEvalJob(manifest.EvalJobParams{
		Name:              jobName,
		Namespace:         spec.Namespace,
		Image:             evalImage,
		PullSecretName:    spec.PullSecretName,
		CacheDir:          t.CacheDir,
		TargetHost:        targetName,
		TargetPort:        spec.MetricsPort,
		MetricsConfigJSON: string(configJSON),
		ResultPath:        resultPath,
	})
	if err != nil {
		return "", fmt.Errorf("system: render eval job: %w", err)
	}
	if err := applyYAML(ctx, t.Client, spec.Namespace, yamlStr); err != nil {
		return "", fmt.Errorf("system: create eval job: %w", err)
	}
	defer teardownJob(context.Background(), t.Client, spec.Namespace, jobName)

	if err := waitForJobCompletion(ctx, t.Client, spec.Namespace, jobName); err != nil {
		return "", fmt.Errorf("system: eval job: %w", failedJobError(ctx, t.Client, spec.Namespace, jobName, err))
	}
	return resultPath, nil
}

// readResult decodes the evaluation Job's result file. The default format
// is a pre-computed metric.Result JSON object; "loadgen" instead expects a
// load-generator's raw JSON output, summarized via internal/metrics before
// being flattened into a metric.Result (§4.7's "added concrete evaluation
// Target", generalized from the original fixed benchmark-metrics shape).
func (t *K8sTarget) readResult(path, resultFormat string) (metric.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("system: read eval result: %w", err)
	}

	if resultFormat == "loadgen" {
		out, err := metrics.ParseLoadgenOutput(data)
		if err != nil {
			return nil, fmt.Errorf("system: parse loadgen eval result: %w", err)
		}
		return metrics.ComputeMetrics(out).ToMetricResult(), nil
	}

	var raw map[string]struct {
		Value          float64 `json:"value"`
		Priority       int     `json:"priority"`
		HigherIsBetter bool    `json:"higher_is_better"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("system: decode eval result: %w", err)
	}
	result := make(metric.Result, len(raw))
	for k, v := range raw {
		result[metric.Key(k)] = metric.Value{Value: v.Value, Priority: v.Priority, HigherIsBetter: v.HigherIsBetter}
	}
	return result, nil
}

// IsLocalLike reports false: evaluation runs in a pod outside the engine's
// own process.
func (t *K8sTarget) IsLocalLike() bool { return false }
