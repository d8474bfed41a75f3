// Package client wraps HTTP calls to the engine's HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/olivefarm/enginecore/internal/catalog"
	"github.com/olivefarm/enginecore/internal/recommend"
)

// Client wraps HTTP calls to the engine's API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client targeting the given base URL (e.g. "http://localhost:8080").
func New(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
	}
}

// CreateRunResponse is the POST /api/v1/runs response body.
type CreateRunResponse struct {
	GroupID string `json:"group_id"`
	Runs    []struct {
		ID          string `json:"id"`
		Accelerator string `json:"accelerator"`
		Status      string `json:"status"`
	} `json:"runs"`
}

// PackagingConfig is the optional packaging_config run-time input: package
// the run's Pareto frontier artifacts once the run finishes.
type PackagingConfig struct {
	Enabled      bool   `json:"enabled"`
	ManifestName string `json:"manifest_name,omitempty"`
}

// CreateRun submits POST /api/v1/runs against inputModelPath and returns
// the group ID plus one run summary per resolved accelerator. pkg is nil
// when the caller didn't request packaging.
func (c *Client) CreateRun(ctx context.Context, inputModelPath string, pkg *PackagingConfig) (*CreateRunResponse, error) {
	reqBody := struct {
		InputModelPath  string           `json:"input_model_path"`
		PackagingConfig *PackagingConfig `json:"packaging_config,omitempty"`
	}{InputModelPath: inputModelPath, PackagingConfig: pkg}
	body, _ := json.Marshal(reqBody)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/runs", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return nil, c.readError(resp)
	}

	var result CreateRunResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

// GetRun fetches GET /api/v1/runs/{id}.
func (c *Client) GetRun(ctx context.Context, id string) (*catalog.RunRecord, error) {
	var run catalog.RunRecord
	if err := c.doGet(ctx, c.baseURL+"/api/v1/runs/"+url.PathEscape(id), &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns fetches GET /api/v1/runs, optionally filtered by status and paginated.
func (c *Client) ListRuns(ctx context.Context, status string, limit, offset int) ([]catalog.RunRecord, error) {
	params := url.Values{}
	if status != "" {
		params.Set("status", status)
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}
	if offset > 0 {
		params.Set("offset", fmt.Sprintf("%d", offset))
	}

	u := c.baseURL + "/api/v1/runs"
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var items []catalog.RunRecord
	if err := c.doGet(ctx, u, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// CancelRun submits POST /api/v1/runs/{id}/cancel.
func (c *Client) CancelRun(ctx context.Context, id string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/runs/"+url.PathEscape(id)+"/cancel", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return c.readError(resp)
	}
	return nil
}

// GetFootprint fetches GET /api/v1/runs/{id}/footprint as raw JSON, since
// its shape (the footprint DAG) is internal/footprint's concern, not the
// CLI's.
func (c *Client) GetFootprint(ctx context.Context, id string) (json.RawMessage, error) {
	return c.getRaw(ctx, c.baseURL+"/api/v1/runs/"+url.PathEscape(id)+"/footprint")
}

// GetPareto fetches GET /api/v1/runs/{id}/pareto as raw JSON.
func (c *Client) GetPareto(ctx context.Context, id string) (json.RawMessage, error) {
	return c.getRaw(ctx, c.baseURL+"/api/v1/runs/"+url.PathEscape(id)+"/pareto")
}

// ListAccelerators fetches GET /api/v1/accelerators.
func (c *Client) ListAccelerators(ctx context.Context) ([]string, error) {
	var specs []string
	if err := c.doGet(ctx, c.baseURL+"/api/v1/accelerators", &specs); err != nil {
		return nil, err
	}
	return specs, nil
}

// ListAcceleratorCatalog fetches GET /api/v1/accelerators/catalog.
func (c *Client) ListAcceleratorCatalog(ctx context.Context) ([]catalog.InstanceAcceleratorCapability, error) {
	var caps []catalog.InstanceAcceleratorCapability
	if err := c.doGet(ctx, c.baseURL+"/api/v1/accelerators/catalog", &caps); err != nil {
		return nil, err
	}
	return caps, nil
}

// Recommend fetches GET /api/v1/recommend, proposing a starting
// PassDescriptor fixed_config for modelID on instanceType.
func (c *Client) Recommend(ctx context.Context, modelID, instanceType, hfToken string) (*recommend.Recommendation, error) {
	params := url.Values{}
	params.Set("model", modelID)
	params.Set("instance_type", instanceType)
	if hfToken != "" {
		params.Set("hf_token", hfToken)
	}

	var rec recommend.Recommendation
	if err := c.doGet(ctx, c.baseURL+"/api/v1/recommend?"+params.Encode(), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) getRaw(ctx context.Context, rawURL string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, c.readError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return json.RawMessage(data), nil
}

func (c *Client) doGet(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.readError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) readError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var apiErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
		return fmt.Errorf("API error %d: %s", resp.StatusCode, apiErr.Error)
	}
	return fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
}
