// internal/client/api.go
// Package client provides API client functionality for hasher-host
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"drillx/internal/api"
	"drillx/pkg/hashing/core"
)

// APIClient represents a client for hasher-host API
type APIClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewAPIClient creates a new API client
func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Batch calls the batch endpoint with explicit nonces
func (c *APIClient) Batch(ctx context.Context, challenge, nonces []byte, batchSize int32) (*api.BatchResponse, error) {
	var result api.BatchResponse
	err := c.post(ctx, "/api/v1/batch", api.BatchRequest{
		Challenge: hex.EncodeToString(challenge),
		Nonces:    base64.StdEncoding.EncodeToString(nonces),
		BatchSize: batchSize,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// BatchFrom calls the batch endpoint over batchSize nonces from start
func (c *APIClient) BatchFrom(ctx context.Context, challenge []byte, start uint64, batchSize int32) (*api.BatchResponse, error) {
	var result api.BatchResponse
	err := c.post(ctx, "/api/v1/batch", api.BatchRequest{
		Challenge:  hex.EncodeToString(challenge),
		StartNonce: start,
		BatchSize:  batchSize,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ComputeBatch implements core.BatchHasher over the REST gateway
func (c *APIClient) ComputeBatch(ctx context.Context, challenge, nonces []byte, batchSize int32) ([]byte, error) {
	resp, err := c.Batch(ctx, challenge, nonces, batchSize)
	if err != nil {
		return nil, err
	}
	if batchSize <= 0 || len(resp.Digests) != int(batchSize) {
		return nil, fmt.Errorf("gateway returned %d digests for a batch of %d", len(resp.Digests), batchSize)
	}

	digests := make([]byte, 0, len(resp.Digests)*core.DigestSize)
	for i, d := range resp.Digests {
		raw, err := hex.DecodeString(d)
		if err != nil || len(raw) != core.DigestSize {
			return nil, fmt.Errorf("malformed digest for lane %d", i)
		}
		digests = append(digests, raw...)
	}
	return digests, nil
}

// Verify calls the verify endpoint
func (c *APIClient) Verify(ctx context.Context, challenge []byte, nonce uint64, digest []byte) (*api.VerifyResponse, error) {
	var result api.VerifyResponse
	err := c.post(ctx, "/api/v1/verify", api.VerifyRequest{
		Challenge: hex.EncodeToString(challenge),
		Nonce:     nonce,
		Digest:    hex.EncodeToString(digest),
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// GetHealth calls the health endpoint
func (c *APIClient) GetHealth(ctx context.Context) (*api.HealthResponse, error) {
	var result api.HealthResponse
	if err := c.get(ctx, "/api/v1/health", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetMetrics calls the metrics endpoint
func (c *APIClient) GetMetrics(ctx context.Context) (*api.MetricsResponse, error) {
	var result api.MetricsResponse
	if err := c.get(ctx, "/api/v1/metrics", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ServerError is a non-2xx response from the gateway
type ServerError struct {
	StatusCode int
	Message    string
	Type       string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// post makes a POST request to the API
func (c *APIClient) post(ctx context.Context, endpoint string, data, out interface{}) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// get makes a GET request to the API
func (c *APIClient) get(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	return c.do(req, out)
}

func (c *APIClient) do(req *http.Request, out interface{}) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	// Read response body first to provide better error messages
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	// Check for non-2xx status codes
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp api.ErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &ServerError{StatusCode: resp.StatusCode, Message: errResp.Error, Type: errResp.Type}
		}
		// Truncate response for error message (avoid huge HTML dumps)
		preview := string(respBody)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		return &ServerError{StatusCode: resp.StatusCode, Message: preview}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		preview := string(respBody)
		if len(preview) > 100 {
			preview = preview[:100] + "..."
		}
		return fmt.Errorf("failed to decode JSON response: %w (response: %s)", err, preview)
	}
	return nil
}
