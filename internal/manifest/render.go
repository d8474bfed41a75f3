// Package manifest renders the Kubernetes manifests internal/system uses
// to run a pass or an evaluation as a Job (and, for evaluations that need
// a live model endpoint, a backing Deployment + Service), the way the
// original internal/manifest rendered a model Deployment + loadgen Job.
package manifest

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
)

//go:embed templates/*.yaml.tmpl
var templateFS embed.FS

var templates *template.Template

func init() {
	var err error
	templates, err = template.New("").Funcs(template.FuncMap{
		"sub": func(a, b int) int { return a - b },
	}).ParseFS(templateFS, "templates/*.yaml.tmpl")
	if err != nil {
		panic(fmt.Sprintf("parse manifest templates: %v", err))
	}
}

// PassJobParams holds values for rendering a single pass-execution Job.
// CacheDir is mounted into the container via hostPath at the identical
// path so the pass can read InputModelPath and write OutputModelPath
// without the engine needing a distributed filesystem (documented
// single-node constraint, consistent with the cache's own single-process
// model-number-allocation caveat).
type PassJobParams struct {
	Name             string
	Namespace        string
	Image            string // pinned "repo@sha256:..." reference
	PullSecretName   string // "" means no imagePullSecrets entry
	CacheDir         string
	InputModelPath   string
	OutputModelPath  string
	PassType         string
	ConfigJSON       string
	ModelAccessToken string // "" omits the env var entirely
	CPURequest       string
	MemoryRequest    string
}

// EvalDeploymentParams holds values for rendering the Deployment + Service
// that hosts a model artifact for evaluation.
type EvalDeploymentParams struct {
	Name                 string
	Namespace            string
	Image                string
	PullSecretName       string
	CacheDir             string
	ModelPath            string
	AcceleratorType      string // "gpu" or "neuron"
	AcceleratorCount     int
	AcceleratorMemoryGiB int
	InstanceTypeName     string
	ModelAccessToken     string
	CPURequest           string
	MemoryRequest        string
	MetricsPort          int
}

// EvalJobParams holds values for rendering the Job that exercises a
// deployed model and writes its MetricResult to ResultPath.
type EvalJobParams struct {
	Name              string
	Namespace         string
	Image             string
	PullSecretName    string
	CacheDir          string
	TargetHost        string
	TargetPort        int
	MetricsConfigJSON string
	ResultPath        string
}

// RenderPassJob renders a pass-execution Job manifest.
func RenderPassJob(params PassJobParams) (string, error) {
	return renderTemplate("pass-job.yaml.tmpl", params)
}

// RenderEvalDeployment renders the Deployment + Service hosting a model
// under evaluation.
func RenderEvalDeployment(params EvalDeploymentParams) (string, error) {
	return renderTemplate("eval-deployment.yaml.tmpl", params)
}

// RenderEvalJob renders the evaluation-workload Job manifest.
func RenderEvalJob(params EvalJobParams) (string, error) {
	return renderTemplate("eval-job.yaml.tmpl", params)
}

func renderTemplate(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render template %s: %w", name, err)
	}
	return buf.String(), nil
}
