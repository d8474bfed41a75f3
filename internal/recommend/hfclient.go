package recommend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// HFClient fetches the architecture metadata the Recommend seeding step
// (§4.9's recommend endpoint) needs from the HuggingFace hub: safetensors
// parameter counts and the model's config.json.
type HFClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewHFClient returns an HFClient pointed at the public HuggingFace API.
func NewHFClient() *HFClient {
	return &HFClient{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    "https://huggingface.co",
	}
}

// modelMetaResponse is the subset of the HuggingFace /api/models response
// FetchModelConfig needs.
type modelMetaResponse struct {
	Safetensors *struct {
		Total int64 `json:"total"`
	} `json:"safetensors"`
	Config *struct {
		ModelType string `json:"model_type"`
	} `json:"config"`
	// Gated is false for public models, or "auto"/"manual" for gated ones.
	Gated any `json:"gated"`
}

// architectureConfig is the subset of a model's config.json FetchModelConfig
// needs to size a deployment.
type architectureConfig struct {
	HiddenSize            int    `json:"hidden_size"`
	NumAttentionHeads     int    `json:"num_attention_heads"`
	NumKeyValueHeads      int    `json:"num_key_value_heads"`
	NumHiddenLayers       int    `json:"num_hidden_layers"`
	MaxPositionEmbeddings int    `json:"max_position_embeddings"`
	TorchDtype            string `json:"torch_dtype"`
	ModelType             string `json:"model_type"`
	VocabSize             int    `json:"vocab_size"`
	IntermediateSize      int    `json:"intermediate_size"`

	// Mixture-of-experts fields (DeepSeek-, Mixtral-style architectures).
	NRoutedExperts      int `json:"n_routed_experts"`
	NSharedExperts      int `json:"n_shared_experts"`
	MoeIntermediateSize int `json:"moe_intermediate_size"`
	FirstKDenseReplace  int `json:"first_k_dense_replace"`
	NumLocalExperts     int `json:"num_local_experts"` // Mixtral's name for NRoutedExperts
}

// FetchModelConfig fetches a model's architecture metadata from HuggingFace
// and returns it as a ModelConfig ready for Recommend. The safetensors
// lookup and the config.json fetch run concurrently via errgroup, the way
// the engine's own instancesync fan-out does its per-region AWS calls; ctx
// cancellation aborts whichever request is still in flight.
func (c *HFClient) FetchModelConfig(ctx context.Context, modelID, hfToken string) (*ModelConfig, error) {
	var meta modelMetaResponse
	var arch architectureConfig

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		url := fmt.Sprintf("%s/api/models/%s?expand[]=safetensors", c.baseURL, modelID)
		if err := c.doGet(gctx, url, hfToken, &meta); err != nil {
			return fmt.Errorf("fetch model info: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		url := fmt.Sprintf("%s/%s/resolve/main/config.json", c.baseURL, modelID)
		if err := c.doGet(gctx, url, hfToken, &arch); err != nil {
			return fmt.Errorf("fetch config.json: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		if isGated(meta.Gated) {
			return nil, &HFError{
				StatusCode: http.StatusForbidden,
				Message:    "This model is gated on HuggingFace. Provide an HF token with access above and try again.",
			}
		}
		return nil, err
	}

	cfg := &ModelConfig{
		HiddenSize:            arch.HiddenSize,
		NumAttentionHeads:     arch.NumAttentionHeads,
		NumKeyValueHeads:      arch.NumKeyValueHeads,
		NumHiddenLayers:       arch.NumHiddenLayers,
		MaxPositionEmbeddings: arch.MaxPositionEmbeddings,
		TorchDtype:            arch.TorchDtype,
		ModelType:             arch.ModelType,
	}

	if meta.Safetensors != nil && meta.Safetensors.Total > 0 {
		cfg.ParameterCount = meta.Safetensors.Total
	}
	if cfg.ParameterCount == 0 {
		// Safetensors metadata is commonly absent for MoE models (e.g.
		// DeepSeek-V3); fall back to an architecture-derived estimate.
		cfg.ParameterCount = estimateParameterCount(&arch)
	}
	if meta.Config != nil && cfg.ModelType == "" {
		cfg.ModelType = meta.Config.ModelType
	}
	if cfg.NumKeyValueHeads == 0 {
		// Non-GQA models: KV heads equal attention heads.
		cfg.NumKeyValueHeads = cfg.NumAttentionHeads
	}

	return cfg, nil
}

func (c *HFClient) doGet(ctx context.Context, url, hfToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if hfToken != "" {
		req.Header.Set("Authorization", "Bearer "+hfToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &HFError{StatusCode: resp.StatusCode, Message: "model is gated — provide an HF token with access"}
	case http.StatusNotFound:
		msg := "Model not found on HuggingFace."
		if hfToken == "" {
			msg += " If this is a private or gated model, provide an HF token above and try again."
		}
		return &HFError{StatusCode: resp.StatusCode, Message: msg}
	case http.StatusOK:
		return json.NewDecoder(resp.Body).Decode(out)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &HFError{StatusCode: resp.StatusCode, Message: string(body)}
	}
}

// estimateParameterCount estimates total parameter count from architecture
// fields when HuggingFace's safetensors metadata is unavailable (common for
// MoE models like DeepSeek-V3).
func estimateParameterCount(cfg *architectureConfig) int64 {
	if cfg.HiddenSize == 0 || cfg.NumHiddenLayers == 0 {
		return 0
	}

	h := int64(cfg.HiddenSize)
	layers := int64(cfg.NumHiddenLayers)
	vocab := int64(cfg.VocabSize)
	interSize := int64(cfg.IntermediateSize)

	var total int64
	if vocab > 0 {
		// Embedding table + LM head.
		total += 2 * vocab * h
	}

	attnPerLayer := 4 * h * h // Q, K, V, O projections.
	normPerLayer := 2 * h

	numExperts := cfg.NRoutedExperts
	if numExperts == 0 {
		numExperts = cfg.NumLocalExperts
	}
	moeInterSize := int64(cfg.MoeIntermediateSize)
	if moeInterSize == 0 {
		moeInterSize = interSize // Mixtral reuses intermediate_size for experts.
	}

	switch {
	case numExperts > 0 && moeInterSize > 0:
		denseLayers := int64(cfg.FirstKDenseReplace)
		moeLayers := layers - denseLayers
		if moeLayers < 0 {
			moeLayers = layers
			denseLayers = 0
		}
		denseFFN := int64(3) * h * interSize
		routedFFN := int64(numExperts) * 3 * h * moeInterSize
		sharedFFN := int64(cfg.NSharedExperts) * 3 * h * interSize
		total += denseLayers * (attnPerLayer + denseFFN + normPerLayer)
		total += moeLayers * (attnPerLayer + routedFFN + sharedFFN + normPerLayer)
	case interSize > 0:
		ffnPerLayer := int64(3) * h * interSize
		total += layers * (attnPerLayer + ffnPerLayer + normPerLayer)
	default:
		// No intermediate_size on the config: rough dense estimate.
		total += layers * 12 * h * h
	}

	return total
}

// isGated reports whether HuggingFace's gated field marks the model as
// access-restricted. It is false for public models, or a string like
// "auto"/"manual" for gated ones.
func isGated(v any) bool {
	switch g := v.(type) {
	case bool:
		return g
	case string:
		return g != "" && g != "false"
	default:
		return false
	}
}

// HFError is a HuggingFace API error surfaced with its HTTP status so
// callers (the /recommend handler) can propagate a sensible status code.
type HFError struct {
	StatusCode int
	Message    string
}

func (e *HFError) Error() string {
	return fmt.Sprintf("huggingface API %d: %s", e.StatusCode, e.Message)
}
