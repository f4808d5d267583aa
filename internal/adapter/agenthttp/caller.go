package agenthttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"agentnet/internal/domain"
)

// Caller is the client side of the agent HTTP surface. Transport failures
// map to ErrAgentUnreachable so callers can flip the target's descriptor to
// Failed with a single errors.Is check.
type Caller struct {
	client *http.Client
}

// NewCaller creates a caller with the given per-request timeout.
func NewCaller(timeout time.Duration) *Caller {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Caller{client: &http.Client{Timeout: timeout}}
}

// SendTask posts a task to the agent at endpoint. A missing task ID is filled
// with a fresh UUID so every call is traceable.
func (c *Caller) SendTask(ctx context.Context, endpoint string, task domain.TaskRequest) (*domain.TaskResult, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}

	body, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("marshal task: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/task", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.NewSubSystemError("agenthttp", "SendTask", domain.ErrAgentUnreachable,
			fmt.Sprintf("%s: %v", endpoint, err))
	}
	defer resp.Body.Close()

	// A non-200 means the agent is alive but rejected the call; that is not
	// an unreachability signal and must not flip its descriptor to Failed.
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("agenthttp: SendTask: %s returned %d", endpoint, resp.StatusCode)
	}

	var result domain.TaskResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode task result: %w", err)
	}
	return &result, nil
}

// FetchCard retrieves the agent card from endpoint.
func (c *Caller) FetchCard(ctx context.Context, endpoint string) (*domain.AgentCard, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/card", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.NewSubSystemError("agenthttp", "FetchCard", domain.ErrAgentUnreachable,
			fmt.Sprintf("%s: %v", endpoint, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("agenthttp: FetchCard: %s returned %d", endpoint, resp.StatusCode)
	}

	var card domain.AgentCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return nil, fmt.Errorf("decode agent card: %w", err)
	}
	return &card, nil
}

// CheckHealth reports whether the agent at endpoint answers its health check
// with 200. Used for readiness polling and liveness probes.
func (c *Caller) CheckHealth(ctx context.Context, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.NewSubSystemError("agenthttp", "CheckHealth", domain.ErrAgentUnreachable,
			fmt.Sprintf("%s: %v", endpoint, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.NewSubSystemError("agenthttp", "CheckHealth", domain.ErrAgentUnreachable,
			fmt.Sprintf("%s returned %d", endpoint, resp.StatusCode))
	}
	return nil
}
