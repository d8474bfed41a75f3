package accelerator

import "math"

// MemoryProfile is the subset of a model's architecture metadata needed to
// estimate device memory pressure: parameter count for weight memory, and
// the KV-cache-per-token terms for attention-based passes/evaluations that
// need headroom for a runtime cache.
type MemoryProfile struct {
	ParameterCount    int64
	HiddenSize        int
	NumAttentionHeads int
	NumKeyValueHeads  int
	NumHiddenLayers   int
}

// DeviceCapacity describes one candidate device's usable memory for a
// capacity-fit check.
type DeviceCapacity struct {
	MemoryGiB int
	Name      string // e.g. "H100", used to decide fp8 eligibility
}

const (
	overheadFraction = 0.10 // reserved for runtime context/activations
	gibBytes         = 1024 * 1024 * 1024
)

// BytesPerParam returns the weight footprint per parameter for a
// quantization/dtype name.
func BytesPerParam(quant string) float64 {
	switch quant {
	case "fp32":
		return 4
	case "", "fp16", "bfloat16":
		return 2
	case "fp8", "int8":
		return 1
	case "int4":
		return 0.5
	default:
		return 2
	}
}

func supportsFP8(name string) bool {
	switch name {
	case "H100", "H200", "L40S":
		return true
	}
	return false
}

func weightBytes(params int64, quant string) float64 {
	return float64(params) * BytesPerParam(quant)
}

// KVCachePerTokenBytes returns the KV-cache memory cost of one token:
// 2 (K+V) x num_layers x num_kv_heads x head_dim x 2 (fp16 bytes).
func KVCachePerTokenBytes(p MemoryProfile) float64 {
	if p.NumAttentionHeads == 0 {
		return 0
	}
	headDim := float64(p.HiddenSize) / float64(p.NumAttentionHeads)
	return 2 * float64(p.NumHiddenLayers) * float64(p.NumKeyValueHeads) * headDim * 2
}

// FitResult reports whether a model fits a device at some quantization,
// along with the minimum device count (at that quantization) required.
type FitResult struct {
	Fits         bool
	Quantization string // "" means native precision
	DeviceCount  int
	UsableBytes  float64 // total usable bytes across DeviceCount devices
}

// FitAtPrecision checks whether a model of the given native dtype fits
// across deviceCount devices of cap, returning the minimum device count
// needed. The count is not capped: it exceeds deviceCount when the model
// does not fit.
func FitAtPrecision(profile MemoryProfile, nativeDtype string, cap DeviceCapacity, deviceCount int) FitResult {
	usablePerDevice := float64(cap.MemoryGiB) * gibBytes * (1 - overheadFraction)
	modelBytes := weightBytes(profile.ParameterCount, nativeDtype)
	minDevices := int(math.Ceil(modelBytes / usablePerDevice))
	if minDevices < 1 {
		minDevices = 1
	}
	total := usablePerDevice * float64(deviceCount)
	return FitResult{
		Fits:         modelBytes <= total,
		Quantization: nativeDtype,
		DeviceCount:  minDevices,
		UsableBytes:  total,
	}
}

// SuggestQuantization tries progressively lower-precision quantizations
// (fp8 when cap.Name supports it, then int8, then int4) and returns the
// first that fits across deviceCount devices of cap, or Fits=false if none
// do.
func SuggestQuantization(profile MemoryProfile, cap DeviceCapacity, deviceCount int) FitResult {
	candidates := []struct {
		name string
		ok   bool
	}{
		{"fp8", supportsFP8(cap.Name)},
		{"int8", true},
		{"int4", true},
	}
	usablePerDevice := float64(cap.MemoryGiB) * gibBytes * (1 - overheadFraction)
	total := usablePerDevice * float64(deviceCount)
	for _, c := range candidates {
		if !c.ok {
			continue
		}
		qBytes := weightBytes(profile.ParameterCount, c.name)
		if qBytes <= total {
			minDevices := int(math.Ceil(qBytes / usablePerDevice))
			if minDevices < 1 {
				minDevices = 1
			}
			return FitResult{Fits: true, Quantization: c.name, DeviceCount: minDevices, UsableBytes: total}
		}
	}
	return FitResult{Fits: false, UsableBytes: total}
}

// MaxContextTokens estimates the largest context length (in tokens) whose
// KV cache fits in the memory remaining after the model's quantized weight
// footprint, capped at maxPositionEmbeddings.
func MaxContextTokens(profile MemoryProfile, fit FitResult, maxPositionEmbeddings int) int {
	kvPerToken := KVCachePerTokenBytes(profile)
	if kvPerToken <= 0 {
		return maxPositionEmbeddings
	}
	modelBytes := weightBytes(profile.ParameterCount, fit.Quantization)
	remaining := fit.UsableBytes - modelBytes
	if remaining < 0 {
		remaining = 0
	}
	tokens := int(remaining / kvPerToken)
	if tokens > maxPositionEmbeddings {
		tokens = maxPositionEmbeddings
	}
	return tokens
}
