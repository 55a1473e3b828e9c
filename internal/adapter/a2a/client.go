package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/JyX33/agentic-technical-watch-sub001/internal/domain"
)

// Client calls remote agent skills over HTTP. It implements
// skill.Invoker. Transport failures and server-side errors are wrapped
// in domain.ErrTransient so the recovery manager classifies them as
// retryable; client-side rejections are not.
type Client struct {
	http *http.Client
}

// NewClient creates a Client using the given HTTP client. Per-call
// deadlines come from the caller's context (the circuit breaker owns
// the timeout), so the HTTP client itself carries none.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{http: httpClient}
}

// Invoke posts a task request to the instance's A2A task endpoint.
func (c *Client) Invoke(ctx context.Context, agentType, endpoint, skillName string, params map[string]any) (map[string]any, error) {
	reqBody, err := json.Marshal(TaskRequest{
		ID:    uuid.NewString(),
		Skill: skillName,
		Input: params,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal task request: %w", err)
	}

	url := strings.TrimRight(endpoint, "/") + "/a2a/tasks"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("invoke %s/%s: %w: %w", agentType, skillName, domain.ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("invoke %s/%s: status %d: %w", agentType, skillName, resp.StatusCode, domain.ErrTransient)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("invoke %s/%s: status %d", agentType, skillName, resp.StatusCode)
	}

	var taskResp TaskResponse
	if err := json.NewDecoder(resp.Body).Decode(&taskResp); err != nil {
		return nil, fmt.Errorf("decode task response: %w: %w", domain.ErrTransient, err)
	}

	if taskResp.Status == "failed" {
		return nil, fmt.Errorf("invoke %s/%s: %w: %s", agentType, skillName, domain.ErrUnrecoverable, taskResp.Error)
	}
	return taskResp.Output, nil
}

// HealthCheck probes the instance's agent card document.
func (c *Client) HealthCheck(ctx context.Context, endpoint string) bool {
	url := strings.TrimRight(endpoint, "/") + "/.well-known/agent.json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}
