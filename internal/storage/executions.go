package storage

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/mivius/automaton/internal/model"
)

const executionColumns = `id, automation_id, success, message, operations, execution_time_ms, created_at`

// ExecutionLogStore defines the interface for the execution audit log.
// The log is append-only: entries are never updated or deleted.
type ExecutionLogStore interface {
	// Append stores a new log entry
	Append(ctx context.Context, entry *model.ExecutionLogEntry) error

	// Get retrieves a log entry by ID
	Get(ctx context.Context, id string) (*model.ExecutionLogEntry, error)

	// List retrieves log entries, newest first
	List(ctx context.Context, limit, offset int) ([]*model.ExecutionLogEntry, error)

	// ListByAutomation retrieves one automation's log entries, newest first
	ListByAutomation(ctx context.Context, automationID string, limit, offset int) ([]*model.ExecutionLogEntry, error)

	// Count returns the total number of log entries
	Count(ctx context.Context) (int, error)

	// CountByAutomation returns the number of log entries for one automation
	CountByAutomation(ctx context.Context, automationID string) (int, error)
}

// SQLiteExecutionLog implements ExecutionLogStore using SQLite
type SQLiteExecutionLog struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteExecutionLog creates a new SQLite-based execution log store
func NewSQLiteExecutionLog(logger *zap.Logger, db *sql.DB) (*SQLiteExecutionLog, error) {
	store := &SQLiteExecutionLog{
		logger: logger,
		db:     db,
	}

	if err := store.initialize(); err != nil {
		return nil, err
	}

	return store, nil
}

// initialize creates the necessary tables if they don't exist
func (s *SQLiteExecutionLog) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS execution_logs (
			id TEXT PRIMARY KEY,
			automation_id TEXT,
			success INTEGER NOT NULL,
			message TEXT NOT NULL,
			operations TEXT,
			execution_time_ms INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_execution_logs_automation_id ON execution_logs(automation_id);
		CREATE INDEX IF NOT EXISTS idx_execution_logs_created_at ON execution_logs(created_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize execution_logs table: %w", err)
	}
	return nil
}

// Append implements ExecutionLogStore.Append
func (s *SQLiteExecutionLog) Append(ctx context.Context, entry *model.ExecutionLogEntry) error {
	encoded, err := entry.Operations.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode operations: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO execution_logs (
			id, automation_id, success, message, operations, execution_time_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		sql.NullString{String: entry.AutomationID, Valid: entry.AutomationID != ""},
		entry.Success,
		entry.Message,
		sql.NullString{String: string(encoded), Valid: len(encoded) > 0},
		entry.ExecutionTimeMs,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append execution log: %w", err)
	}
	return nil
}

// Get implements ExecutionLogStore.Get
func (s *SQLiteExecutionLog) Get(ctx context.Context, id string) (*model.ExecutionLogEntry, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+executionColumns+" FROM execution_logs WHERE id = ?", id)

	entry, err := scanExecution(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get execution log: %w", err)
	}
	return entry, nil
}

// List implements ExecutionLogStore.List
func (s *SQLiteExecutionLog) List(ctx context.Context, limit, offset int) ([]*model.ExecutionLogEntry, error) {
	return s.queryExecutions(ctx,
		"SELECT "+executionColumns+" FROM execution_logs ORDER BY created_at DESC LIMIT ? OFFSET ?",
		limit, offset)
}

// ListByAutomation implements ExecutionLogStore.ListByAutomation
func (s *SQLiteExecutionLog) ListByAutomation(ctx context.Context, automationID string, limit, offset int) ([]*model.ExecutionLogEntry, error) {
	return s.queryExecutions(ctx,
		"SELECT "+executionColumns+" FROM execution_logs WHERE automation_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?",
		automationID, limit, offset)
}

// Count implements ExecutionLogStore.Count
func (s *SQLiteExecutionLog) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM execution_logs").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count execution logs: %w", err)
	}
	return count, nil
}

// CountByAutomation implements ExecutionLogStore.CountByAutomation
func (s *SQLiteExecutionLog) CountByAutomation(ctx context.Context, automationID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM execution_logs WHERE automation_id = ?", automationID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count execution logs: %w", err)
	}
	return count, nil
}

// queryExecutions runs a SELECT over the execution columns and scans all rows
func (s *SQLiteExecutionLog) queryExecutions(ctx context.Context, query string, args ...interface{}) ([]*model.ExecutionLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list execution logs: %w", err)
	}
	defer rows.Close()

	var entries []*model.ExecutionLogEntry
	for rows.Next() {
		entry, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution log: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return entries, nil
}

// scanExecution scans one row in executionColumns order. The stored
// operations text is decoded back into structured data.
func scanExecution(row rowScanner) (*model.ExecutionLogEntry, error) {
	var entry model.ExecutionLogEntry
	var automationID, operations sql.NullString

	err := row.Scan(
		&entry.ID,
		&automationID,
		&entry.Success,
		&entry.Message,
		&operations,
		&entry.ExecutionTimeMs,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if automationID.Valid {
		entry.AutomationID = automationID.String
	}
	if operations.Valid && operations.String != "" {
		decoded, err := model.DecodeOperations([]byte(operations.String))
		if err != nil {
			return nil, fmt.Errorf("failed to decode operations: %w", err)
		}
		entry.Operations = decoded
	}

	return &entry, nil
}
