package metrics

import (
	"encoding/json"
	"math"
	"testing"
)

func TestNearestRank(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	tests := []struct {
		p    float64
		want float64
	}{
		{50, 5},
		{90, 9},
		{95, 10},
		{99, 10},
		{10, 1},
	}
	for _, tt := range tests {
		if got := nearestRank(sorted, tt.p); got != tt.want {
			t.Errorf("nearestRank(%.0f) = %f, want %f", tt.p, got, tt.want)
		}
	}
}

func TestNearestRankEdges(t *testing.T) {
	if got := nearestRank(nil, 50); got != 0 {
		t.Errorf("nearestRank of empty series = %f, want 0", got)
	}
	if got := nearestRank([]float64{42}, 99); got != 42 {
		t.Errorf("nearestRank of single element = %f, want 42", got)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	d := summarize(nil)
	if d.p50 != nil || d.p90 != nil || d.p95 != nil || d.p99 != nil {
		t.Error("summarize(nil) should leave every percentile nil")
	}
}

func TestSummarizeDoesNotMutateInput(t *testing.T) {
	vals := []float64{50, 10, 90, 30, 70, 100, 20, 80, 40, 60}
	orig := append([]float64(nil), vals...)

	d := summarize(vals)
	if d.p50 == nil || *d.p50 != 50 {
		t.Errorf("p50 of unsorted input = %v, want 50", d.p50)
	}
	for i := range vals {
		if vals[i] != orig[i] {
			t.Fatalf("input mutated at index %d: got %f, want %f", i, vals[i], orig[i])
		}
	}
}

func TestParseLoadgenOutputWholeBlob(t *testing.T) {
	input := LoadgenOutput{
		Requests: []RequestResult{
			{TTFTMs: 10, E2ELatencyMs: 100, ITLMs: 5, OutputTokens: 50, InputTokens: 20, DurationSeconds: 1.0, Success: true},
			{TTFTMs: 20, E2ELatencyMs: 200, ITLMs: 10, OutputTokens: 60, InputTokens: 20, DurationSeconds: 2.0, Success: true},
		},
		Summary: Summary{
			TotalDurationSeconds:   5.0,
			TotalRequests:          2,
			SuccessfulRequests:     2,
			ThroughputAggregateTPS: 22.0,
			RequestsPerSecond:      0.4,
		},
	}
	data, err := json.Marshal(input)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	out, err := ParseLoadgenOutput(data)
	if err != nil {
		t.Fatalf("ParseLoadgenOutput: %v", err)
	}
	if len(out.Requests) != 2 {
		t.Errorf("got %d requests, want 2", len(out.Requests))
	}
	if out.Summary.TotalRequests != 2 {
		t.Errorf("total_requests = %d, want 2", out.Summary.TotalRequests)
	}
}

func TestParseLoadgenOutputMarkedSection(t *testing.T) {
	payload := `{"requests":[{"ttft_ms":10,"success":true}],"summary":{"total_requests":1,"successful_requests":1}}`
	log := "starting up\nprogress 50%\n" + resultBeginMarker + "\n" + payload + "\n" + resultEndMarker + "\ndone\n"

	out, err := ParseLoadgenOutput([]byte(log))
	if err != nil {
		t.Fatalf("ParseLoadgenOutput: %v", err)
	}
	if len(out.Requests) != 1 || out.Requests[0].TTFTMs != 10 {
		t.Errorf("marked section not decoded: %+v", out.Requests)
	}
}

func TestParseLoadgenOutputLineScan(t *testing.T) {
	payload := `{"requests":[{"ttft_ms":7,"success":true}],"summary":{"total_requests":1}}`
	log := "noise\n{}\n" + payload + "\ntrailing\n"

	out, err := ParseLoadgenOutput([]byte(log))
	if err != nil {
		t.Fatalf("ParseLoadgenOutput: %v", err)
	}
	if len(out.Requests) != 1 || out.Requests[0].TTFTMs != 7 {
		t.Errorf("line scan skipped the payload: %+v", out.Requests)
	}
}

func TestParseLoadgenOutputInvalid(t *testing.T) {
	if _, err := ParseLoadgenOutput([]byte("not json")); err == nil {
		t.Error("expected error for invalid output")
	}
}

func TestComputeMetrics(t *testing.T) {
	out := &LoadgenOutput{
		Requests: []RequestResult{
			{TTFTMs: 10, E2ELatencyMs: 100, ITLMs: 5, OutputTokens: 50, DurationSeconds: 1.0, Success: true},
			{TTFTMs: 20, E2ELatencyMs: 200, ITLMs: 10, OutputTokens: 100, DurationSeconds: 2.0, Success: true},
			{TTFTMs: 30, E2ELatencyMs: 300, ITLMs: 15, OutputTokens: 75, DurationSeconds: 1.5, Success: true},
			{TTFTMs: 999, E2ELatencyMs: 9999, ITLMs: 999, OutputTokens: 0, DurationSeconds: 0, Success: false},
		},
		Summary: Summary{
			TotalDurationSeconds:   10.0,
			TotalRequests:          4,
			SuccessfulRequests:     3,
			FailedRequests:         1,
			ThroughputAggregateTPS: 22.5,
			RequestsPerSecond:      0.3,
		},
	}

	m := ComputeMetrics(out)

	if m.SuccessfulRequests == nil || *m.SuccessfulRequests != 3 {
		t.Errorf("successful_requests = %v, want 3", m.SuccessfulRequests)
	}
	if m.FailedRequests == nil || *m.FailedRequests != 1 {
		t.Errorf("failed_requests = %v, want 1", m.FailedRequests)
	}

	// Percentiles come from the successful requests only: [10, 20, 30].
	if m.TTFTP50Ms == nil {
		t.Fatal("ttft_p50 is nil")
	}
	if *m.TTFTP50Ms != 20 {
		t.Errorf("ttft_p50 = %f, want 20", *m.TTFTP50Ms)
	}

	if m.ThroughputAggregateTPS == nil || *m.ThroughputAggregateTPS != 22.5 {
		t.Errorf("throughput_aggregate = %v, want 22.5", m.ThroughputAggregateTPS)
	}

	// Per-request throughput: (50+100+75) tokens / (1+2+1.5) seconds = 50.
	if m.ThroughputPerRequestTPS == nil {
		t.Fatal("throughput_per_request is nil")
	}
	if math.Abs(*m.ThroughputPerRequestTPS-50.0) > 0.01 {
		t.Errorf("throughput_per_request = %f, want 50.0", *m.ThroughputPerRequestTPS)
	}

	if m.TotalDurationSeconds == nil || *m.TotalDurationSeconds != 10.0 {
		t.Errorf("total_duration = %v, want 10.0", m.TotalDurationSeconds)
	}
}

func TestComputeMetricsAllFailed(t *testing.T) {
	out := &LoadgenOutput{
		Requests: []RequestResult{
			{Success: false},
			{Success: false},
		},
		Summary: Summary{TotalRequests: 2, FailedRequests: 2},
	}

	m := ComputeMetrics(out)

	if m.TTFTP50Ms != nil {
		t.Error("ttft_p50 should be nil when every request failed")
	}
	if m.ThroughputPerRequestTPS != nil {
		t.Error("throughput_per_request should be nil when every request failed")
	}
}

func TestToMetricResultOrientationAndPriority(t *testing.T) {
	p50 := 12.5
	tps := 40.0
	m := &BenchmarkMetrics{TTFTP50Ms: &p50, ThroughputAggregateTPS: &tps}

	r := m.ToMetricResult()

	ttft, ok := r["ttft_ms-p50"]
	if !ok {
		t.Fatal("missing ttft_ms-p50")
	}
	if ttft.HigherIsBetter || ttft.Priority != 0 || ttft.Value != 12.5 {
		t.Errorf("ttft_ms-p50 = %+v, want lower-is-better informational 12.5", ttft)
	}
	agg, ok := r["throughput-aggregate_tps"]
	if !ok {
		t.Fatal("missing throughput-aggregate_tps")
	}
	if !agg.HigherIsBetter {
		t.Errorf("throughput should be higher-is-better: %+v", agg)
	}
	if _, ok := r["ttft_ms-p90"]; ok {
		t.Error("absent measurements must not appear in the result")
	}
}
