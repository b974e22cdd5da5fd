package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/mivius/automaton/internal/model"
)

const (
	DefaultModel      = "claude-sonnet-4-20250514"
	DefaultMaxTokens  = 8192
	DefaultTimeout    = 2 * time.Minute
	DefaultMaxRetries = 3
)

// systemPrompt pins the response contract: the agent answers with a single
// JSON envelope describing what it did.
const systemPrompt = `You are the command executor for a project automation engine. Carry out the instruction and respond with a single JSON object and nothing else:

{"success": true|false, "message": "<one-paragraph summary of what was done>", "operations": [{"type": "<action kind>", "summary": "<what this action did>", "target": "<entity reference>", "status": "applied|failed|skipped", "details": {}}]}

Set success to false when the instruction could not be carried out and explain why in message. In preview mode describe the operations you would perform without applying them.`

// AnthropicConfig holds settings for the Anthropic-backed executor
type AnthropicConfig struct {
	APIKey     string
	Model      string
	MaxTokens  int
	Timeout    time.Duration
	MaxRetries int
}

// AnthropicExecutor implements CommandExecutor against the Anthropic
// Messages API
type AnthropicExecutor struct {
	logger     *zap.Logger
	client     anthropic.Client
	model      string
	maxTokens  int
	timeout    time.Duration
	maxRetries int
	backoff    *ExponentialBackoff
}

// NewAnthropicExecutor creates a new Anthropic-backed executor
func NewAnthropicExecutor(cfg AnthropicConfig, logger *zap.Logger) (*AnthropicExecutor, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	client := anthropic.NewClient(
		option.WithAPIKey(cfg.APIKey),
	)

	return &AnthropicExecutor{
		logger:     logger.Named("anthropic-executor"),
		client:     client,
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		backoff: &ExponentialBackoff{
			InitialDelay: 2 * time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
	}, nil
}

// Execute implements CommandExecutor.Execute
func (e *AnthropicExecutor) Execute(ctx context.Context, req Request) (*Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	e.logger.Info("Executing prompt",
		zap.String("automation_id", req.AutomationID),
		zap.Bool("preview", req.Preview))

	start := time.Now()
	text, err := e.complete(callCtx, req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return nil, fmt.Errorf("failed to execute prompt: %w", err)
	}

	result := parseEnvelope(text)
	result.ExecutionTimeMs = elapsed

	e.logger.Info("Execution completed",
		zap.String("automation_id", req.AutomationID),
		zap.Bool("success", result.Success),
		zap.Int64("execution_time_ms", elapsed))

	return result, nil
}

// complete calls the Messages API, retrying rate-limited requests with
// exponential backoff
func (e *AnthropicExecutor) complete(ctx context.Context, req Request) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: int64(e.maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt(req))),
		},
	}

	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			delay := e.backoff.NextRetry(attempt - 1)
			e.logger.Warn("Retrying executor call",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay))

			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := e.client.Messages.New(ctx, params)
		if err != nil {
			lastErr = err
			if IsRateLimitError(err) {
				continue
			}
			return "", err
		}

		var text strings.Builder
		for _, block := range resp.Content {
			if block.Type == "text" {
				text.WriteString(block.Text)
			}
		}
		if text.Len() == 0 {
			return "", fmt.Errorf("empty response from model")
		}
		return text.String(), nil
	}

	return "", fmt.Errorf("retries exhausted: %w", lastErr)
}

// userPrompt assembles the instruction body sent as the user message
func userPrompt(req Request) string {
	var sb strings.Builder
	sb.WriteString(req.Prompt)
	if req.Rules != "" {
		sb.WriteString("\n\nConstraints:\n")
		sb.WriteString(req.Rules)
	}
	if req.Preview {
		sb.WriteString("\n\nPreview mode: describe the operations without applying them.")
	}
	return sb.String()
}

// parseEnvelope decodes the model's JSON envelope. A malformed response
// becomes a failed result, not an error: the attempt completed and is
// recorded like any other.
func parseEnvelope(text string) *Result {
	cleaned := stripFences(text)

	var envelope struct {
		Success    bool             `json:"success"`
		Message    string           `json:"message"`
		Operations model.Operations `json:"operations"`
	}
	if err := json.Unmarshal([]byte(cleaned), &envelope); err != nil {
		return &Result{
			Success: false,
			Message: fmt.Sprintf("executor returned malformed response: %.200s", cleaned),
		}
	}

	return &Result{
		Success:    envelope.Success,
		Message:    envelope.Message,
		Operations: envelope.Operations,
	}
}

// stripFences removes a surrounding markdown code fence if present
func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
