package executor

import (
	"context"

	"github.com/mivius/automaton/internal/model"
)

// Request carries one instruction to the AI command executor
type Request struct {
	Prompt       string `json:"prompt"`
	Rules        string `json:"rules,omitempty"`
	AutomationID string `json:"automation_id,omitempty"`
	Preview      bool   `json:"preview"`
}

// Result represents the structured outcome of one execution. LogID is set
// only when the executor wrote its own log entry; the engine must not write
// another in that case.
type Result struct {
	Success         bool             `json:"success"`
	Message         string           `json:"message"`
	Operations      model.Operations `json:"operations,omitempty"`
	ExecutionTimeMs int64            `json:"execution_time_ms"`
	LogID           string           `json:"log_id,omitempty"`
}

// CommandExecutor defines the interface to the external AI command
// executor. A hard failure (transport, API) is returned as an error; a
// completed call that could not carry out the instruction comes back as a
// Result with Success=false.
type CommandExecutor interface {
	// Execute runs one instruction and reports what was done
	Execute(ctx context.Context, req Request) (*Result, error)
}
