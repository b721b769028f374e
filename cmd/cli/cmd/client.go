package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"formplane/pkg/api"
)

// EntityClient handles API calls to the formplane controller.
type EntityClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewEntityClient creates a new client with the given base URL and token.
func NewEntityClient(baseURL, token string) *EntityClient {
	return &EntityClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// CreateEntity sends POST /entities.
func (c *EntityClient) CreateEntity(req api.CreateEntityRequest) (*api.EntityResponse, error) {
	var result api.EntityResponse
	if err := c.do(http.MethodPost, "/entities", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListEntities sends GET /entities.
func (c *EntityClient) ListEntities() ([]api.EntityResponse, error) {
	var result api.ListEntitiesResponse
	if err := c.do(http.MethodGet, "/entities", nil, &result); err != nil {
		return nil, err
	}
	return result.Entities, nil
}

// GetEntity sends GET /entities/{id}.
func (c *EntityClient) GetEntity(id string) (*api.EntityResponse, error) {
	var result api.EntityResponse
	if err := c.do(http.MethodGet, "/entities/"+url.PathEscape(id), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdateEntity sends PUT /entities/{id}.
func (c *EntityClient) UpdateEntity(id string, req api.UpdateEntityRequest) (*api.EntityResponse, error) {
	var result api.EntityResponse
	if err := c.do(http.MethodPut, "/entities/"+url.PathEscape(id), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteEntity sends DELETE /entities/{id}.
func (c *EntityClient) DeleteEntity(id string) (*api.EntityResponse, error) {
	var result api.EntityResponse
	if err := c.do(http.MethodDelete, "/entities/"+url.PathEscape(id), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetStatus sends GET /entities/{id}/status.
func (c *EntityClient) GetStatus(id string) (*api.EntityStatusResponse, error) {
	var result api.EntityStatusResponse
	if err := c.do(http.MethodGet, "/entities/"+url.PathEscape(id)+"/status", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RetryEntity sends POST /entities/{id}/retry.
func (c *EntityClient) RetryEntity(id string) (*api.EntityResponse, error) {
	var result api.EntityResponse
	if err := c.do(http.MethodPost, "/entities/"+url.PathEscape(id)+"/retry", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// do sends a JSON request and decodes a 2xx JSON response into out.
func (c *EntityClient) do(method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if c.Token != "" {
		httpReq.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.Token))
	}
	httpReq.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// errorMessage prefers the error field of an api.ErrorResponse body.
func errorMessage(body []byte) string {
	var errResp api.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return errResp.Error
	}
	return strings.TrimSpace(string(body))
}
