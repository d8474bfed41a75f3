package system

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/yaml"
	"k8s.io/client-go/kubernetes"
)

const (
	jobPoll    = 5 * time.Second
	jobTimeout = 2 * time.Hour
)

// applyYAML parses multi-document YAML and creates each resource, exactly
// like the original Orchestrator.applyYAML.
func applyYAML(ctx context.Context, client kubernetes.Interface, ns, yamlStr string) error {
	decoder := yaml.NewYAMLOrJSONDecoder(io.NopCloser(strings.NewReader(yamlStr)), 4096)
	for {
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("decode YAML: %w", err)
		}
		if len(raw) == 0 {
			continue
		}

		var meta struct{ Kind string }
		if err := json.Unmarshal(raw, &meta); err != nil {
			return fmt.Errorf("unmarshal kind: %w", err)
		}

		docJSON := string(raw)
		switch meta.Kind {
		case "Deployment":
			if err := createDeployment(ctx, client, ns, docJSON); err != nil {
				return err
			}
		case "Service":
			if err := createService(ctx, client, ns, docJSON); err != nil {
				return err
			}
		case "Job":
			if err := createJob(ctx, client, ns, docJSON); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported resource kind: %s", meta.Kind)
		}
	}
	return nil
}

func createDeployment(ctx context.Context, client kubernetes.Interface, ns, docJSON string) error {
	var dep appsv1.Deployment
	if err := json.Unmarshal([]byte(docJSON), &dep); err != nil {
		return fmt.Errorf("decode deployment: %w", err)
	}
	_, err := client.AppsV1().Deployments(ns).Create(ctx, &dep, metav1.CreateOptions{})
	return err
}

func createService(ctx context.Context, client kubernetes.Interface, ns, docJSON string) error {
	var svc corev1.Service
	if err := json.Unmarshal([]byte(docJSON), &svc); err != nil {
		return fmt.Errorf("decode service: %w", err)
	}
	_, err := client.CoreV1().Services(ns).Create(ctx, &svc, metav1.CreateOptions{})
	return err
}

func createJob(ctx context.Context, client kubernetes.Interface, ns, docJSON string) error {
	var job batchv1.Job
	if err := json.Unmarshal([]byte(docJSON), &job); err != nil {
		return fmt.Errorf("decode job: %w", err)
	}
	_, err := client.BatchV1().Jobs(ns).Create(ctx, &job, metav1.CreateOptions{})
	return err
}

// waitForDeploymentReady polls a Deployment until it has at least one
// ready replica, matching the original waitForReady.
func waitForDeploymentReady(ctx context.Context, client kubernetes.Interface, ns, name string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		dep, err := client.AppsV1().Deployments(ns).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return err
		}
		if dep.Status.ReadyReplicas >= 1 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jobPoll):
		}
	}
	return fmt.Errorf("deployment %s not ready after %v", name, timeout)
}

// waitForJobCompletion polls a Job until it completes or fails, matching
// the original waitAndCollect (minus the log-collection step, since this
// engine reads results back from the shared cache directory instead of
// parsing pod logs).
func waitForJobCompletion(ctx context.Context, client kubernetes.Interface, ns, jobName string) error {
	deadline := time.Now().Add(jobTimeout)
	for time.Now().Before(deadline) {
		job, err := client.BatchV1().Jobs(ns).Get(ctx, jobName, metav1.GetOptions{})
		if err != nil {
			return err
		}
		for _, cond := range job.Status.Conditions {
			if cond.Type == batchv1.JobComplete && cond.Status == corev1.ConditionTrue {
				return nil
			}
			if cond.Type == batchv1.JobFailed && cond.Status == corev1.ConditionTrue {
				return fmt.Errorf("job %s failed: %s", jobName, cond.Message)
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jobPoll):
		}
	}
	return fmt.Errorf("job %s timed out after %v", jobName, jobTimeout)
}

func readJobPodLogs(ctx context.Context, client kubernetes.Interface, ns, jobName, container string) ([]byte, error) {
	pods, err := client.CoreV1().Pods(ns).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("job-name=%s", jobName),
	})
	if err != nil {
		return nil, fmt.Errorf("list job pods: %w", err)
	}
	if len(pods.Items) == 0 {
		return nil, fmt.Errorf("no pods found for job %s", jobName)
	}

	req := client.CoreV1().Pods(ns).GetLogs(pods.Items[0].Name, &corev1.PodLogOptions{Container: container})
	stream, err := req.Stream(ctx)
	if err != nil {
		return nil, fmt.Errorf("stream pod logs: %w", err)
	}
	defer stream.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, stream); err != nil {
		return nil, fmt.Errorf("read pod logs: %w", err)
	}
	return buf.Bytes(), nil
}

// failedJobError wraps a Job failure with the tail of its pod log, when
// one can be read, so the footprint's error-level log carries the reason
// the container actually died.
func failedJobError(ctx context.Context, client kubernetes.Interface, ns, jobName string, err error) error {
	logs, logErr := readJobPodLogs(ctx, client, ns, jobName, "")
	if logErr != nil || len(logs) == 0 {
		return err
	}
	return fmt.Errorf("%w; pod log tail: %s", err, logTail(logs))
}

// logTail returns the last portion of a pod log for error messages.
func logTail(logs []byte) string {
	const n = 2048
	if len(logs) > n {
		logs = logs[len(logs)-n:]
	}
	return string(bytes.TrimSpace(logs))
}

func teardownJob(ctx context.Context, client kubernetes.Interface, ns, name string) {
	propagation := metav1.DeletePropagationBackground
	_ = client.BatchV1().Jobs(ns).Delete(ctx, name, metav1.DeleteOptions{PropagationPolicy: &propagation})
}

func teardownDeployment(ctx context.Context, client kubernetes.Interface, ns, name string) {
	propagation := metav1.DeletePropagationBackground
	_ = client.CoreV1().Services(ns).Delete(ctx, name, metav1.DeleteOptions{})
	_ = client.AppsV1().Deployments(ns).Delete(ctx, name, metav1.DeleteOptions{PropagationPolicy: &propagation})
}
