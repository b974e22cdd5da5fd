package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mivius/automaton/internal/model"
)

const automationColumns = `id, name, prompt, rules, schedule, day_of_week, day_of_month, enabled,
	last_run_at, last_run_status, last_run_summary, last_run_log_id, created_at, updated_at`

// AutomationStore defines the interface for automation persistence
type AutomationStore interface {
	// Create stores a new automation
	Create(ctx context.Context, automation *model.Automation) error

	// Get retrieves an automation by ID
	Get(ctx context.Context, id string) (*model.Automation, error)

	// List retrieves all automations, newest first
	List(ctx context.Context) ([]*model.Automation, error)

	// ListDue retrieves enabled automations that are due to run at now
	ListDue(ctx context.Context, now time.Time) ([]*model.Automation, error)

	// Update persists changes to an automation's definition
	Update(ctx context.Context, automation *model.Automation) error

	// UpdateRunState persists the outcome of an invocation
	UpdateRunState(ctx context.Context, id string, state model.RunState) error

	// Delete removes an automation
	Delete(ctx context.Context, id string) error
}

// SQLiteAutomationStore implements AutomationStore using SQLite
type SQLiteAutomationStore struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteAutomationStore creates a new SQLite-based automation store
func NewSQLiteAutomationStore(logger *zap.Logger, db *sql.DB) (*SQLiteAutomationStore, error) {
	store := &SQLiteAutomationStore{
		logger: logger,
		db:     db,
	}

	if err := store.initialize(); err != nil {
		return nil, err
	}

	return store, nil
}

// initialize creates the necessary tables if they don't exist
func (s *SQLiteAutomationStore) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS automations (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			prompt TEXT NOT NULL,
			rules TEXT,
			schedule TEXT NOT NULL,
			day_of_week INTEGER,
			day_of_month INTEGER,
			enabled INTEGER NOT NULL DEFAULT 1,
			last_run_at DATETIME,
			last_run_status TEXT,
			last_run_summary TEXT,
			last_run_log_id TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_automations_enabled ON automations(enabled);
		CREATE INDEX IF NOT EXISTS idx_automations_schedule ON automations(schedule);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize automations table: %w", err)
	}
	return nil
}

// Create implements AutomationStore.Create
func (s *SQLiteAutomationStore) Create(ctx context.Context, automation *model.Automation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO automations (
			id, name, prompt, rules, schedule, day_of_week, day_of_month,
			enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		automation.ID,
		automation.Name,
		automation.Prompt,
		sql.NullString{String: automation.Rules, Valid: automation.Rules != ""},
		automation.Schedule,
		nullInt(automation.DayOfWeek),
		nullInt(automation.DayOfMonth),
		automation.Enabled,
		automation.CreatedAt,
		automation.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create automation: %w", err)
	}
	return nil
}

// Get implements AutomationStore.Get
func (s *SQLiteAutomationStore) Get(ctx context.Context, id string) (*model.Automation, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+automationColumns+" FROM automations WHERE id = ?", id)

	automation, err := scanAutomation(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get automation: %w", err)
	}
	return automation, nil
}

// List implements AutomationStore.List
func (s *SQLiteAutomationStore) List(ctx context.Context) ([]*model.Automation, error) {
	return s.queryAutomations(ctx,
		"SELECT "+automationColumns+" FROM automations ORDER BY created_at DESC")
}

// ListDue implements AutomationStore.ListDue. The calendar condition is
// evaluated in Go per row; the query narrows to enabled automations.
func (s *SQLiteAutomationStore) ListDue(ctx context.Context, now time.Time) ([]*model.Automation, error) {
	enabled, err := s.queryAutomations(ctx,
		"SELECT "+automationColumns+" FROM automations WHERE enabled = 1")
	if err != nil {
		return nil, err
	}

	var due []*model.Automation
	for _, automation := range enabled {
		if automation.DueAt(now) {
			due = append(due, automation)
		}
	}
	return due, nil
}

// Update implements AutomationStore.Update
func (s *SQLiteAutomationStore) Update(ctx context.Context, automation *model.Automation) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE automations SET
			name = ?,
			prompt = ?,
			rules = ?,
			schedule = ?,
			day_of_week = ?,
			day_of_month = ?,
			enabled = ?,
			updated_at = ?
		WHERE id = ?`,
		automation.Name,
		automation.Prompt,
		sql.NullString{String: automation.Rules, Valid: automation.Rules != ""},
		automation.Schedule,
		nullInt(automation.DayOfWeek),
		nullInt(automation.DayOfMonth),
		automation.Enabled,
		automation.UpdatedAt,
		automation.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update automation: %w", err)
	}
	return requireRow(result)
}

// UpdateRunState implements AutomationStore.UpdateRunState
func (s *SQLiteAutomationStore) UpdateRunState(ctx context.Context, id string, state model.RunState) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE automations SET
			last_run_at = ?,
			last_run_status = ?,
			last_run_summary = ?,
			last_run_log_id = ?,
			updated_at = ?
		WHERE id = ?`,
		state.LastRunAt,
		state.LastRunStatus,
		sql.NullString{String: state.LastRunSummary, Valid: state.LastRunSummary != ""},
		sql.NullString{String: state.LastRunLogID, Valid: state.LastRunLogID != ""},
		state.LastRunAt,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update run state: %w", err)
	}
	return requireRow(result)
}

// Delete implements AutomationStore.Delete
func (s *SQLiteAutomationStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM automations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete automation: %w", err)
	}
	return requireRow(result)
}

// queryAutomations runs a SELECT over the automation columns and scans all rows
func (s *SQLiteAutomationStore) queryAutomations(ctx context.Context, query string, args ...interface{}) ([]*model.Automation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list automations: %w", err)
	}
	defer rows.Close()

	var automations []*model.Automation
	for rows.Next() {
		automation, err := scanAutomation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan automation: %w", err)
		}
		automations = append(automations, automation)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return automations, nil
}

// rowScanner covers both sql.Row and sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanAutomation scans one row in automationColumns order
func scanAutomation(row rowScanner) (*model.Automation, error) {
	var automation model.Automation
	var rules, lastStatus, lastSummary, lastLogID sql.NullString
	var dayOfWeek, dayOfMonth sql.NullInt64
	var lastRunAt sql.NullTime

	err := row.Scan(
		&automation.ID,
		&automation.Name,
		&automation.Prompt,
		&rules,
		&automation.Schedule,
		&dayOfWeek,
		&dayOfMonth,
		&automation.Enabled,
		&lastRunAt,
		&lastStatus,
		&lastSummary,
		&lastLogID,
		&automation.CreatedAt,
		&automation.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if rules.Valid {
		automation.Rules = rules.String
	}
	if dayOfWeek.Valid {
		v := int(dayOfWeek.Int64)
		automation.DayOfWeek = &v
	}
	if dayOfMonth.Valid {
		v := int(dayOfMonth.Int64)
		automation.DayOfMonth = &v
	}
	if lastRunAt.Valid {
		automation.LastRunAt = &lastRunAt.Time
	}
	if lastStatus.Valid {
		automation.LastRunStatus = model.RunStatus(lastStatus.String)
	}
	if lastSummary.Valid {
		automation.LastRunSummary = lastSummary.String
	}
	if lastLogID.Valid {
		automation.LastRunLogID = lastLogID.String
	}

	return &automation, nil
}

// nullInt converts an optional int to its SQL representation
func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

// requireRow converts a zero-row update or delete into ErrNotFound
func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
