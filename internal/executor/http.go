package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// RemoteConfig holds settings for the HTTP-backed executor
type RemoteConfig struct {
	URL     string
	Timeout time.Duration
}

// RemoteExecutor implements CommandExecutor against a remote agent that
// accepts the request as JSON and answers with a Result body. The agent may
// write its own execution log; when it returns a log_id the engine treats
// it as authoritative.
type RemoteExecutor struct {
	logger     *zap.Logger
	url        string
	httpClient *http.Client
}

// NewRemoteExecutor creates a new HTTP-backed executor
func NewRemoteExecutor(cfg RemoteConfig, logger *zap.Logger) (*RemoteExecutor, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("remote executor URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &RemoteExecutor{
		logger: logger.Named("remote-executor"),
		url:    cfg.URL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}, nil
}

// Execute implements CommandExecutor.Execute
func (e *RemoteExecutor) Execute(ctx context.Context, req Request) (*Result, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	e.logger.Info("Executing remote request",
		zap.String("url", e.url),
		zap.String("automation_id", req.AutomationID))

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("executor returned status %d: %.200s", resp.StatusCode, string(body))
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}

	return &result, nil
}
