// Package metrics decodes an evaluation workload's load-generator JSON
// output and summarizes it into a generic metric.Result, so a
// load-generator-shaped evaluator feeds the same footprint/goal/Pareto
// machinery as any other evaluation target.
package metrics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"

	"github.com/olivefarm/enginecore/internal/metric"
)

// Result markers the evaluation container prints around its JSON payload,
// so the decoder can pick it out of a log stream that also carries
// progress lines.
const (
	resultBeginMarker = "ENGINECORE_RESULT_BEGIN"
	resultEndMarker   = "ENGINECORE_RESULT_END"
)

// LoadgenOutput is the load generator's wire format: one entry per request
// plus an aggregate summary.
type LoadgenOutput struct {
	Requests []RequestResult `json:"requests"`
	Summary  Summary         `json:"summary"`
}

// RequestResult holds one request's measurements.
type RequestResult struct {
	TTFTMs          float64 `json:"ttft_ms"`
	E2ELatencyMs    float64 `json:"e2e_latency_ms"`
	ITLMs           float64 `json:"itl_ms"`
	OutputTokens    int     `json:"output_tokens"`
	InputTokens     int     `json:"input_tokens"`
	DurationSeconds float64 `json:"duration_seconds"`
	Success         bool    `json:"success"`
}

// Summary holds the load generator's own aggregates.
type Summary struct {
	TotalDurationSeconds      float64  `json:"total_duration_seconds"`
	TotalRequests             int      `json:"total_requests"`
	SuccessfulRequests        int      `json:"successful_requests"`
	FailedRequests            int      `json:"failed_requests"`
	ThroughputAggregateTPS    float64  `json:"throughput_aggregate_tps"`
	RequestsPerSecond         float64  `json:"requests_per_second"`
	AcceleratorUtilizationPct *float64 `json:"accelerator_utilization_pct,omitempty"`
	AcceleratorMemoryPeakGiB  *float64 `json:"accelerator_memory_peak_gib,omitempty"`
}

// ParseLoadgenOutput extracts the result payload from a load generator's
// raw output. It prefers the marker-delimited section, accepts a clean
// whole-blob payload, and as a last resort scans individual lines for a
// decodable JSON object.
func ParseLoadgenOutput(data []byte) (*LoadgenOutput, error) {
	if section, ok := markedSection(data); ok {
		if out, ok := decodePayload(section); ok {
			return out, nil
		}
	}
	if out, ok := decodePayload(data); ok {
		return out, nil
	}
	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		if out, ok := decodePayload(line); ok {
			return out, nil
		}
	}
	return nil, fmt.Errorf("parse loadgen output: no result payload in %d bytes", len(data))
}

// markedSection returns the bytes between the result markers, if both are
// present.
func markedSection(data []byte) ([]byte, bool) {
	_, rest, found := bytes.Cut(data, []byte(resultBeginMarker))
	if !found {
		return nil, false
	}
	section, _, found := bytes.Cut(rest, []byte(resultEndMarker))
	if !found {
		return nil, false
	}
	return bytes.TrimSpace(section), true
}

// decodePayload reports ok only for JSON that actually carries results,
// so a stray "{}" progress line is not mistaken for the payload.
func decodePayload(data []byte) (*LoadgenOutput, bool) {
	var out LoadgenOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, false
	}
	if len(out.Requests) == 0 && out.Summary.TotalRequests == 0 {
		return nil, false
	}
	return &out, true
}

// BenchmarkMetrics is the percentile/throughput summary of one
// load-generator run. Nil fields were not measurable (no successful
// requests, or the generator did not report them).
type BenchmarkMetrics struct {
	TTFTP50Ms                 *float64
	TTFTP90Ms                 *float64
	TTFTP95Ms                 *float64
	TTFTP99Ms                 *float64
	E2ELatencyP50Ms           *float64
	E2ELatencyP90Ms           *float64
	E2ELatencyP95Ms           *float64
	E2ELatencyP99Ms           *float64
	ITLP50Ms                  *float64
	ITLP90Ms                  *float64
	ITLP95Ms                  *float64
	ITLP99Ms                  *float64
	ThroughputPerRequestTPS   *float64
	ThroughputAggregateTPS    *float64
	RequestsPerSecond         *float64
	AcceleratorUtilizationPct *float64
	AcceleratorMemoryPeakGiB  *float64
	SuccessfulRequests        *int
	FailedRequests            *int
	TotalDurationSeconds      *float64
}

// ComputeMetrics summarizes a parsed run: latency percentiles over the
// successful requests only, throughput derived from their token/duration
// totals, and the generator's own aggregates passed through.
func ComputeMetrics(out *LoadgenOutput) *BenchmarkMetrics {
	var ttfts, e2es, itls []float64
	var outputTokens int
	var durationSum float64
	for _, r := range out.Requests {
		if !r.Success {
			continue
		}
		ttfts = append(ttfts, r.TTFTMs)
		e2es = append(e2es, r.E2ELatencyMs)
		itls = append(itls, r.ITLMs)
		outputTokens += r.OutputTokens
		durationSum += r.DurationSeconds
	}

	ttft := summarize(ttfts)
	e2e := summarize(e2es)
	itl := summarize(itls)

	var perRequestTPS *float64
	if durationSum > 0 {
		v := float64(outputTokens) / durationSum
		perRequestTPS = &v
	}

	succeeded := out.Summary.SuccessfulRequests
	failed := out.Summary.FailedRequests

	return &BenchmarkMetrics{
		TTFTP50Ms:                 ttft.p50,
		TTFTP90Ms:                 ttft.p90,
		TTFTP95Ms:                 ttft.p95,
		TTFTP99Ms:                 ttft.p99,
		E2ELatencyP50Ms:           e2e.p50,
		E2ELatencyP90Ms:           e2e.p90,
		E2ELatencyP95Ms:           e2e.p95,
		E2ELatencyP99Ms:           e2e.p99,
		ITLP50Ms:                  itl.p50,
		ITLP90Ms:                  itl.p90,
		ITLP95Ms:                  itl.p95,
		ITLP99Ms:                  itl.p99,
		ThroughputPerRequestTPS:   perRequestTPS,
		ThroughputAggregateTPS:    &out.Summary.ThroughputAggregateTPS,
		RequestsPerSecond:         &out.Summary.RequestsPerSecond,
		AcceleratorUtilizationPct: out.Summary.AcceleratorUtilizationPct,
		AcceleratorMemoryPeakGiB:  out.Summary.AcceleratorMemoryPeakGiB,
		SuccessfulRequests:        &succeeded,
		FailedRequests:            &failed,
		TotalDurationSeconds:      &out.Summary.TotalDurationSeconds,
	}
}

// distribution is one latency series' spread at the reported percentiles.
// All fields are nil when the series is empty.
type distribution struct {
	p50, p90, p95, p99 *float64
}

// summarize sorts a copy of vals and reads off the nearest-rank
// percentiles. The input slice is left untouched.
func summarize(vals []float64) distribution {
	if len(vals) == 0 {
		return distribution{}
	}
	sorted := append([]float64(nil), vals...)
	slices.Sort(sorted)
	at := func(p float64) *float64 {
		v := nearestRank(sorted, p)
		return &v
	}
	return distribution{p50: at(50), p90: at(90), p95: at(95), p99: at(99)}
}

// nearestRank returns the p-th percentile of a sorted series by the
// nearest-rank method: the value at ceil(p/100 * n), clamped into range.
func nearestRank(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}

// ToMetricResult flattens the summary into a generic metric.Result keyed
// "<metric>-<sub_metric>". Latency-family metrics are lower-is-better;
// throughput and utilization are higher-is-better. Every entry defaults to
// priority 0 (informational) since only a declared GoalSpec promotes a
// sub-metric to an objective.
func (m *BenchmarkMetrics) ToMetricResult() metric.Result {
	out := metric.Result{}
	putDistribution(out, "ttft_ms", m.TTFTP50Ms, m.TTFTP90Ms, m.TTFTP95Ms, m.TTFTP99Ms)
	putDistribution(out, "e2e_latency_ms", m.E2ELatencyP50Ms, m.E2ELatencyP90Ms, m.E2ELatencyP95Ms, m.E2ELatencyP99Ms)
	putDistribution(out, "itl_ms", m.ITLP50Ms, m.ITLP90Ms, m.ITLP95Ms, m.ITLP99Ms)
	put(out, "throughput", "per_request_tps", m.ThroughputPerRequestTPS, true)
	put(out, "throughput", "aggregate_tps", m.ThroughputAggregateTPS, true)
	put(out, "throughput", "requests_per_second", m.RequestsPerSecond, true)
	put(out, "accelerator_utilization", "", m.AcceleratorUtilizationPct, true)
	put(out, "accelerator_memory", "peak_gib", m.AcceleratorMemoryPeakGiB, false)
	putCount(out, "requests", "successful", m.SuccessfulRequests, true)
	putCount(out, "requests", "failed", m.FailedRequests, false)
	put(out, "duration", "total_seconds", m.TotalDurationSeconds, false)
	return out
}

func putDistribution(out metric.Result, name string, p50, p90, p95, p99 *float64) {
	put(out, name, "p50", p50, false)
	put(out, name, "p90", p90, false)
	put(out, name, "p95", p95, false)
	put(out, name, "p99", p99, false)
}

func put(out metric.Result, name, sub string, v *float64, higherIsBetter bool) {
	if v == nil {
		return
	}
	out[metric.JointKey(name, sub)] = metric.Value{Value: *v, Priority: 0, HigherIsBetter: higherIsBetter}
}

func putCount(out metric.Result, name, sub string, v *int, higherIsBetter bool) {
	if v == nil {
		return
	}
	out[metric.JointKey(name, sub)] = metric.Value{Value: float64(*v), Priority: 0, HigherIsBetter: higherIsBetter}
}
