package accelerator

import "testing"

func TestFitAtPrecisionFits(t *testing.T) {
	profile := MemoryProfile{ParameterCount: 7_000_000_000, HiddenSize: 4096, NumAttentionHeads: 32, NumKeyValueHeads: 8, NumHiddenLayers: 32}
	cap := DeviceCapacity{MemoryGiB: 80, Name: "A100"}
	fit := FitAtPrecision(profile, "bfloat16", cap, 1)
	if !fit.Fits {
		t.Fatalf("7B model at bf16 should fit in 80GiB: %+v", fit)
	}
}

func TestFitAtPrecisionDoesNotFitTinyDevice(t *testing.T) {
	profile := MemoryProfile{ParameterCount: 70_000_000_000, HiddenSize: 8192, NumAttentionHeads: 64, NumKeyValueHeads: 8, NumHiddenLayers: 80}
	cap := DeviceCapacity{MemoryGiB: 16, Name: "T4"}
	fit := FitAtPrecision(profile, "bfloat16", cap, 1)
	if fit.Fits {
		t.Fatalf("70B model at bf16 should not fit on a single 16GiB device")
	}
}

func TestSuggestQuantizationFindsSmallerFootprint(t *testing.T) {
	profile := MemoryProfile{ParameterCount: 70_000_000_000, HiddenSize: 8192, NumAttentionHeads: 64, NumKeyValueHeads: 8, NumHiddenLayers: 80}
	cap := DeviceCapacity{MemoryGiB: 80, Name: "A100"}
	fit := SuggestQuantization(profile, cap, 1)
	if !fit.Fits {
		t.Fatalf("70B model should fit one 80GiB device at some quantization")
	}
	if fit.Quantization == "" {
		t.Fatalf("expected a non-native quantization to be chosen")
	}
}

func TestSuggestQuantizationFP8RequiresSupportedDevice(t *testing.T) {
	profile := MemoryProfile{ParameterCount: 1_000_000_000}
	unsupported := DeviceCapacity{MemoryGiB: 80, Name: "A100"}
	fit := SuggestQuantization(profile, unsupported, 1)
	if fit.Quantization == "fp8" {
		t.Fatalf("A100 does not support fp8, SuggestQuantization must not choose it")
	}
}

func TestMaxContextTokensCapsAtPositionEmbeddings(t *testing.T) {
	profile := MemoryProfile{ParameterCount: 1, HiddenSize: 128, NumAttentionHeads: 8, NumKeyValueHeads: 8, NumHiddenLayers: 2}
	fit := FitResult{Quantization: "bfloat16", UsableBytes: 1e15}
	got := MaxContextTokens(profile, fit, 4096)
	if got != 4096 {
		t.Fatalf("MaxContextTokens = %d, want capped at 4096", got)
	}
}
