package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mivius/automaton/internal/executor"
	"github.com/mivius/automaton/internal/model"
	"github.com/mivius/automaton/internal/storage"
)

// ResultPublisher publishes execution events after an invocation completes
type ResultPublisher interface {
	PublishResult(ctx context.Context, event model.ExecutionEvent) error
}

// Invoker orchestrates single automation invocations. Manual and scheduled
// triggers both pass through here and are serialized per automation ID.
// Rate limiting is the trigger surface's responsibility and happens before
// the invoker is reached.
type Invoker struct {
	logger      *zap.Logger
	automations storage.AutomationStore
	recorder    *ExecutionRecorder
	executor    executor.CommandExecutor
	events      ResultPublisher
	stats       *Stats
	locks       *keyedLocks
	now         func() time.Time
}

// NewInvoker creates a new execution invoker
func NewInvoker(automations storage.AutomationStore, recorder *ExecutionRecorder, exec executor.CommandExecutor, events ResultPublisher, stats *Stats, logger *zap.Logger) *Invoker {
	return &Invoker{
		logger:      logger.Named("invoker"),
		automations: automations,
		recorder:    recorder,
		executor:    exec,
		events:      events,
		stats:       stats,
		locks:       newKeyedLocks(),
		now:         time.Now,
	}
}

// Invoke runs one automation and records the outcome. A missing automation
// returns ErrAutomationNotFound without any side effects.
func (inv *Invoker) Invoke(ctx context.Context, automationID string) (*model.ExecutionResult, error) {
	release := inv.locks.Acquire(automationID)
	defer release()

	automation, err := inv.load(ctx, automationID)
	if err != nil {
		return nil, err
	}

	return inv.run(ctx, automation, model.TriggerManual)
}

// InvokeScheduled runs one automation on behalf of a scheduler trigger.
// Under the per-automation lock it re-reads the run state: if the automation
// already ran within the period starting at periodStart (a manual trigger
// won the race) or was disabled in the meantime, the trigger is stale and
// the call skips with a nil result and nil error.
func (inv *Invoker) InvokeScheduled(ctx context.Context, automationID string, periodStart time.Time) (*model.ExecutionResult, error) {
	release := inv.locks.Acquire(automationID)
	defer release()

	automation, err := inv.load(ctx, automationID)
	if err != nil {
		return nil, err
	}

	if !automation.Enabled {
		inv.logger.Info("Skipping trigger for disabled automation",
			zap.String("automation_id", automationID))
		return nil, nil
	}

	if automation.LastRunAt != nil && !automation.LastRunAt.Before(periodStart) {
		inv.logger.Info("Skipping stale trigger, automation already ran this period",
			zap.String("automation_id", automationID),
			zap.Time("last_run_at", *automation.LastRunAt),
			zap.Time("period_start", periodStart))
		return nil, nil
	}

	return inv.run(ctx, automation, model.TriggerSchedule)
}

// load fetches the automation, mapping a missing row to ErrAutomationNotFound
func (inv *Invoker) load(ctx context.Context, automationID string) (*model.Automation, error) {
	automation, err := inv.automations.Get(ctx, automationID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAutomationNotFound, automationID)
		}
		return nil, fmt.Errorf("failed to load automation: %w", err)
	}
	return automation, nil
}

// run calls the executor and persists the outcome. The log entry is written
// before the run-state update, so the automation never references a log
// entry that does not exist.
func (inv *Invoker) run(ctx context.Context, automation *model.Automation, trigger model.TriggerSource) (*model.ExecutionResult, error) {
	inv.logger.Info("Invoking automation",
		zap.String("automation_id", automation.ID),
		zap.String("automation_name", automation.Name),
		zap.String("trigger", string(trigger)))

	inv.stats.ExecutionStarted()

	started := inv.now()
	result, err := inv.executor.Execute(ctx, executor.Request{
		Prompt:       automation.Prompt,
		Rules:        automation.Rules,
		AutomationID: automation.ID,
		Preview:      false,
	})
	if err != nil {
		// A hard executor failure still produces a recorded attempt
		result = &executor.Result{
			Success:         false,
			Message:         fmt.Sprintf("executor error: %v", err),
			ExecutionTimeMs: inv.now().Sub(started).Milliseconds(),
		}
		inv.logger.Error("Executor call failed",
			zap.String("automation_id", automation.ID),
			zap.Error(err))
	}

	logID := result.LogID
	if logID == "" {
		id, err := inv.recorder.Record(ctx, &model.ExecutionLogEntry{
			AutomationID:    automation.ID,
			Success:         result.Success,
			Message:         result.Message,
			Operations:      result.Operations,
			ExecutionTimeMs: result.ExecutionTimeMs,
		})
		if err != nil {
			inv.stats.ExecutionFinished(false)
			return nil, err
		}
		logID = id
	}

	completedAt := inv.now()
	status := model.RunStatusSuccess
	if !result.Success {
		status = model.RunStatusError
	}

	if err := inv.automations.UpdateRunState(ctx, automation.ID, model.RunState{
		LastRunAt:      completedAt,
		LastRunStatus:  status,
		LastRunSummary: result.Message,
		LastRunLogID:   logID,
	}); err != nil {
		// The log entry already exists; the automation keeps pointing at
		// its previous run
		inv.stats.ExecutionFinished(result.Success)
		return nil, fmt.Errorf("failed to update automation run state: %w", err)
	}

	inv.stats.ExecutionFinished(result.Success)

	if err := inv.events.PublishResult(ctx, model.ExecutionEvent{
		AutomationID:    automation.ID,
		LogID:           logID,
		Success:         result.Success,
		Message:         result.Message,
		ExecutionTimeMs: result.ExecutionTimeMs,
		Trigger:         trigger,
		CompletedAt:     completedAt,
	}); err != nil {
		inv.logger.Warn("Failed to publish execution event",
			zap.String("automation_id", automation.ID),
			zap.String("log_id", logID),
			zap.Error(err))
	}

	inv.logger.Info("Automation invocation finished",
		zap.String("automation_id", automation.ID),
		zap.String("log_id", logID),
		zap.Bool("success", result.Success),
		zap.Int64("execution_time_ms", result.ExecutionTimeMs))

	return &model.ExecutionResult{
		Success:         result.Success,
		Message:         result.Message,
		Operations:      result.Operations,
		ExecutionTimeMs: result.ExecutionTimeMs,
		LogID:           logID,
	}, nil
}
