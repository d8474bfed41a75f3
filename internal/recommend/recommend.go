// Package recommend implements a deterministic benchmark configuration
// recommender based on model architecture metadata and instance type specs.
package recommend

import (
	"fmt"
	"strings"

	"github.com/olivefarm/enginecore/internal/accelerator"
)

// ModelConfig holds architecture metadata fetched from HuggingFace.
type ModelConfig struct {
	ParameterCount        int64  `json:"parameter_count"`
	HiddenSize            int    `json:"hidden_size"`
	NumAttentionHeads     int    `json:"num_attention_heads"`
	NumKeyValueHeads      int    `json:"num_key_value_heads"`
	NumHiddenLayers       int    `json:"num_hidden_layers"`
	MaxPositionEmbeddings int    `json:"max_position_embeddings"`
	TorchDtype            string `json:"torch_dtype"`
	ModelType             string `json:"model_type"`
	Architecture          string `json:"architecture"`
}

// InstanceSpec holds GPU specs from the catalog's
// instance_accelerator_capabilities table.
type InstanceSpec struct {
	Name                 string `json:"name"`
	AcceleratorType      string `json:"accelerator_type"`
	AcceleratorName      string `json:"accelerator_name"`
	AcceleratorCount     int    `json:"accelerator_count"`
	AcceleratorMemoryGiB int    `json:"accelerator_memory_gib"`
}

// Recommendation holds the recommended configuration values.
type Recommendation struct {
	TensorParallelDegree int     `json:"tensor_parallel_degree"`
	Quantization         *string `json:"quantization"`
	MaxModelLen          int     `json:"max_model_len"`
	Concurrency          int     `json:"concurrency"`
	InputSequenceLength  int     `json:"input_sequence_length"`
	OutputSequenceLength int     `json:"output_sequence_length"`

	Explanation  Explanation  `json:"explanation"`
	ModelInfo    ModelInfo    `json:"model_info"`
	InstanceInfo InstanceInfo `json:"instance_info"`

	// Alternatives is non-nil when the model doesn't fit at native precision.
	Alternatives *Alternatives `json:"alternatives,omitempty"`
}

// Explanation provides human-readable reasoning for each recommendation.
type Explanation struct {
	TensorParallelDegree string `json:"tensor_parallel_degree"`
	Quantization         string `json:"quantization"`
	MaxModelLen          string `json:"max_model_len"`
	Concurrency          string `json:"concurrency"`
	Feasible             bool   `json:"feasible"`
	Reason               string `json:"reason,omitempty"`
	SuggestedInstance    string `json:"suggested_instance,omitempty"`
}

// ModelInfo summarizes the model metadata in the response.
type ModelInfo struct {
	ParameterCount        int64  `json:"parameter_count"`
	NativeDtype           string `json:"native_dtype"`
	MaxPositionEmbeddings int    `json:"max_position_embeddings"`
	Architecture          string `json:"architecture"`
}

// InstanceInfo summarizes the instance specs in the response.
type InstanceInfo struct {
	AcceleratorCount     int    `json:"accelerator_count"`
	AcceleratorMemoryGiB int    `json:"accelerator_memory_gib"`
	AcceleratorName      string `json:"accelerator_name"`
}

// Alternatives presents options when the model doesn't fit at native precision.
type Alternatives struct {
	QuantizationOption *QuantizationOption `json:"quantization_option,omitempty"`
	LargerInstance     string              `json:"larger_instance,omitempty"`
}

// QuantizationOption describes a quantization configuration that makes the model fit.
type QuantizationOption struct {
	Quantization    string  `json:"quantization"`
	EstimatedMemGiB float64 `json:"estimated_mem_gib"`
}

const gibBytes = 1024 * 1024 * 1024

// modelMemoryBytes returns the model weight memory in bytes for a given quantization.
func modelMemoryBytes(params int64, quant string) float64 {
	return float64(params) * accelerator.BytesPerParam(quant)
}

// profileOf adapts the HuggingFace-sourced ModelConfig to the
// accelerator package's memory-fit profile.
func profileOf(cfg ModelConfig) accelerator.MemoryProfile {
	return accelerator.MemoryProfile{
		ParameterCount:    cfg.ParameterCount,
		HiddenSize:        cfg.HiddenSize,
		NumAttentionHeads: cfg.NumAttentionHeads,
		NumKeyValueHeads:  cfg.NumKeyValueHeads,
		NumHiddenLayers:   cfg.NumHiddenLayers,
	}
}

// kvCachePerTokenBytes returns KV cache memory per token in bytes.
func kvCachePerTokenBytes(cfg ModelConfig) float64 {
	return accelerator.KVCachePerTokenBytes(profileOf(cfg))
}

// nativeDtype returns the native dtype string, defaulting to "bfloat16".
func nativeDtype(cfg ModelConfig) string {
	if cfg.TorchDtype != "" {
		return cfg.TorchDtype
	}
	return "bfloat16"
}

// validTPDegree finds the smallest TP ≥ minTP that evenly divides both
// num_attention_heads and num_key_value_heads, and is ≤ maxGPUs.
func validTPDegree(minTP, numHeads, numKVHeads, maxGPUs int) int {
	for tp := minTP; tp <= maxGPUs; tp++ {
		if numHeads%tp == 0 && numKVHeads%tp == 0 {
			return tp
		}
	}
	// Fallback: return maxGPUs even if it doesn't divide evenly.
	return maxGPUs
}

// roundDownContext rounds a token count down to the nearest common context length.
func roundDownContext(tokens int) int {
	common := []int{131072, 65536, 32768, 16384, 8192, 4096, 2048, 1024, 512}
	for _, c := range common {
		if tokens >= c {
			return c
		}
	}
	return 512
}

// Recommend computes configuration recommendations given model and instance specs.
// allInstances is used to suggest a larger instance when the model doesn't fit.
func Recommend(cfg ModelConfig, inst InstanceSpec, allInstances []InstanceSpec) *Recommendation {
	dtype := nativeDtype(cfg)
	profile := profileOf(cfg)
	perDeviceGiB := float64(inst.AcceleratorMemoryGiB) / float64(inst.AcceleratorCount)
	devCap := accelerator.DeviceCapacity{MemoryGiB: int(perDeviceGiB), Name: inst.AcceleratorName}

	nativeFit := accelerator.FitAtPrecision(profile, dtype, devCap, inst.AcceleratorCount)
	modelMemNative := modelMemoryBytes(cfg.ParameterCount, dtype)

	rec := &Recommendation{
		InputSequenceLength:  512,
		OutputSequenceLength: 256,
		ModelInfo: ModelInfo{
			ParameterCount:        cfg.ParameterCount,
			NativeDtype:           dtype,
			MaxPositionEmbeddings: cfg.MaxPositionEmbeddings,
			Architecture:          cfg.ModelType,
		},
		InstanceInfo: InstanceInfo{
			AcceleratorCount:     inst.AcceleratorCount,
			AcceleratorMemoryGiB: inst.AcceleratorMemoryGiB,
			AcceleratorName:      inst.AcceleratorName,
		},
	}

	// Determine quantization and TP.
	var chosenQuant string // "" means native precision
	totalUsableBytes := nativeFit.UsableBytes

	if nativeFit.Fits {
		tp := validTPDegree(nativeFit.DeviceCount, cfg.NumAttentionHeads, cfg.NumKeyValueHeads, inst.AcceleratorCount)
		rec.TensorParallelDegree = tp
		rec.Quantization = nil
		chosenQuant = dtype
		rec.Explanation.Quantization = fmt.Sprintf("Model fits in native %s precision (%.1f GiB weights, %.0f GiB available).",
			dtype, modelMemNative/gibBytes, totalUsableBytes/gibBytes)
		rec.Explanation.TensorParallelDegree = fmt.Sprintf("TP=%d: model requires %.1f GiB, each %s has %.0f GiB.",
			tp, modelMemNative/gibBytes, inst.AcceleratorName, perDeviceGiB)
	} else {
		// Doesn't fit at native precision — try quantization options.
		rec.Alternatives = &Alternatives{}

		quantFit := accelerator.SuggestQuantization(profile, devCap, inst.AcceleratorCount)
		if quantFit.Fits {
			chosenQuant = quantFit.Quantization
			qMem := modelMemoryBytes(cfg.ParameterCount, chosenQuant)
			rec.Alternatives.QuantizationOption = &QuantizationOption{
				Quantization:    chosenQuant,
				EstimatedMemGiB: qMem / gibBytes,
			}
		}

		// Find a larger instance that fits at native precision.
		if len(allInstances) > 0 {
			for _, alt := range allInstances {
				if !strings.EqualFold(alt.AcceleratorType, "gpu") {
					continue
				}
				altPerDeviceGiB := alt.AcceleratorMemoryGiB
				if alt.AcceleratorCount > 0 {
					altPerDeviceGiB = alt.AcceleratorMemoryGiB / alt.AcceleratorCount
				}
				altFit := accelerator.FitAtPrecision(profile, dtype, accelerator.DeviceCapacity{MemoryGiB: altPerDeviceGiB, Name: alt.AcceleratorName}, alt.AcceleratorCount)
				if altFit.Fits && alt.AcceleratorMemoryGiB > inst.AcceleratorMemoryGiB {
					rec.Alternatives.LargerInstance = alt.Name
					break
				}
			}
		}

		if quantFit.Fits {
			q := chosenQuant
			rec.Quantization = &q
			qMem := modelMemoryBytes(cfg.ParameterCount, chosenQuant)
			tp := validTPDegree(quantFit.DeviceCount, cfg.NumAttentionHeads, cfg.NumKeyValueHeads, inst.AcceleratorCount)
			rec.TensorParallelDegree = tp
			rec.Explanation.Quantization = fmt.Sprintf("Model requires %.1f GiB in %s but only %.0f GiB available. Using %s quantization (%.1f GiB).",
				modelMemNative/gibBytes, dtype, totalUsableBytes/gibBytes, chosenQuant, qMem/gibBytes)
			rec.Explanation.TensorParallelDegree = fmt.Sprintf("TP=%d with %s quantization: %.1f GiB model across %d × %s.",
				tp, chosenQuant, qMem/gibBytes, inst.AcceleratorCount, inst.AcceleratorName)
		} else {
			// Nothing fits — infeasible on this instance.
			rec.Explanation.Feasible = false
			rec.Explanation.Reason = fmt.Sprintf("Model requires %.1f GiB in %s. Even INT4 (%.1f GiB) exceeds %.0f GiB available on %s.",
				modelMemNative/gibBytes, dtype, modelMemoryBytes(cfg.ParameterCount, "int4")/gibBytes,
				totalUsableBytes/gibBytes, inst.Name)
			if rec.Alternatives.LargerInstance != "" {
				rec.Explanation.SuggestedInstance = rec.Alternatives.LargerInstance
			}
			return rec
		}
	}

	rec.Explanation.Feasible = true

	// Calculate max model length.
	kvPerToken := kvCachePerTokenBytes(cfg)
	effectiveModelMem := modelMemoryBytes(cfg.ParameterCount, chosenQuant)
	remainingBytes := totalUsableBytes - effectiveModelMem
	if remainingBytes < 0 {
		remainingBytes = 0
	}

	maxTokensKV := int(remainingBytes / kvPerToken)
	maxModelLen := cfg.MaxPositionEmbeddings
	if maxTokensKV < maxModelLen {
		maxModelLen = maxTokensKV
	}
	maxModelLen = roundDownContext(maxModelLen)
	rec.MaxModelLen = maxModelLen
	rec.Explanation.MaxModelLen = fmt.Sprintf("%.1f GiB available for KV cache after model weights. Supports up to %d tokens (capped by context window).",
		remainingBytes/gibBytes, maxModelLen)

	// Adjust input/output if model context is too small.
	if maxModelLen < rec.InputSequenceLength+rec.OutputSequenceLength {
		rec.InputSequenceLength = maxModelLen * 2 / 3
		rec.OutputSequenceLength = maxModelLen / 3
	}

	// Calculate concurrency.
	avgSeqLen := float64(rec.InputSequenceLength + rec.OutputSequenceLength)
	memPerSeq := kvPerToken * avgSeqLen
	if memPerSeq > 0 {
		maxConcurrent := int(remainingBytes / memPerSeq)
		if maxConcurrent > 64 {
			maxConcurrent = 64
		}
		if maxConcurrent < 1 {
			maxConcurrent = 1
		}
		rec.Concurrency = maxConcurrent
	} else {
		rec.Concurrency = 1
	}
	rec.Explanation.Concurrency = fmt.Sprintf("Based on %.1f GiB KV cache memory with %d-token average sequence length.",
		remainingBytes/gibBytes, int(avgSeqLen))

	return rec
}
