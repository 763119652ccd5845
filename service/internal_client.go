package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const internalAPIKeyHeader = "x-internal-api-key"

// internalAPIClient calls the internal faucet-or-deposit processing API,
// the primary settlement path. Failures here are retryable; the settlement
// service falls back to direct storage once retries are exhausted.
type internalAPIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewInternalAPIClient creates a client for the internal settlement API
func NewInternalAPIClient(baseURL, apiKey string) InternalAPIClient {
	return &internalAPIClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type internalAPIResponse struct {
	Success bool                      `json:"success"`
	Data    *InternalSettlementResult `json:"data"`
	Error   string                    `json:"error"`
}

// Process submits one settlement payload. Non-2xx responses and
// success:false bodies are returned as errors so the caller's retry policy
// treats them as transient.
func (c *internalAPIClient) Process(ctx context.Context, req InternalSettlementRequest) (*InternalSettlementResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal settlement request: %w", err)
	}

	url := c.baseURL + "/api/internal/faucet-or-deposit/process"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build settlement request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(internalAPIKeyHeader, c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("internal settlement API unreachable: %w", err)
	}
	defer resp.Body.Close()

	var parsed internalAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode settlement response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("internal settlement API returned %d: %s", resp.StatusCode, parsed.Error)
	}
	if !parsed.Success {
		return nil, fmt.Errorf("internal settlement API rejected event: %s", parsed.Error)
	}
	if parsed.Data == nil {
		return nil, fmt.Errorf("internal settlement API returned success without data")
	}

	return parsed.Data, nil
}
