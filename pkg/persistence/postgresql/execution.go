package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/loomhq/loom/pkg/engine"
	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/persistence"
	"github.com/loomhq/loom/pkg/protocol"
)

const uniqueViolation = "23505"

// ExecutionRepository stores execution records in the executions table.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

func (r *ExecutionRepository) Create(ctx context.Context, record *models.ExecutionRecord) error {
	output, err := json.Marshal(record.Output)
	if err != nil {
		return fmt.Errorf("failed to encode execution output: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO executions (id, workflow_id, event_id, status, started_at, completed_at, error, error_stack, output)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, record.ID, record.WorkflowID, record.EventID, record.Status, record.StartedAt,
		record.CompletedAt, record.Error, record.ErrorStack, output)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return fmt.Errorf("execution %s: %w", record.ID, persistence.ErrExecutionAlreadyExists)
	}

	if err != nil {
		return fmt.Errorf("failed to insert execution %s: %w", record.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	return r.queryOne(ctx, "SELECT id, workflow_id, event_id, status, started_at, completed_at, error, error_stack, output FROM executions WHERE id = $1", id)
}

func (r *ExecutionRepository) FindByEventID(ctx context.Context, eventID string) (*models.ExecutionRecord, error) {
	return r.queryOne(ctx, "SELECT id, workflow_id, event_id, status, started_at, completed_at, error, error_stack, output FROM executions WHERE event_id = $1", eventID)
}

func (r *ExecutionRepository) queryOne(ctx context.Context, query, arg string) (*models.ExecutionRecord, error) {
	record, err := scanRecord(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("execution %s: %w", arg, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query execution %s: %w", arg, err)
	}

	return record, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.ExecutionRecord, error) {
	record := &models.ExecutionRecord{}

	var output []byte

	err := row.Scan(&record.ID, &record.WorkflowID, &record.EventID, &record.Status,
		&record.StartedAt, &record.CompletedAt, &record.Error, &record.ErrorStack, &output)
	if err != nil {
		return nil, err
	}

	if len(output) > 0 {
		if err := json.Unmarshal(output, &record.Output); err != nil {
			return nil, fmt.Errorf("failed to decode execution output: %w", err)
		}
	}

	return record, nil
}

// UpdateTerminal applies the terminal patch with a guarded UPDATE: the WHERE
// clause only matches a RUNNING record, so a record that already reached a
// terminal state is never overwritten.
func (r *ExecutionRepository) UpdateTerminal(ctx context.Context, id string, patch protocol.ExecutionRecordPatch) error {
	output, err := json.Marshal(patch.Output)
	if err != nil {
		return fmt.Errorf("failed to encode execution output: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE executions
		SET status = $2, completed_at = $3, error = $4, error_stack = $5, output = $6
		WHERE id = $1 AND status = $7
	`, id, patch.Status, patch.CompletedAt, patch.Error, patch.ErrorStack, output,
		models.ExecutionStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to update execution %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}

	if affected == 1 {
		return nil
	}

	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}

	return fmt.Errorf("execution %s: %w", id, engine.ErrRecordAlreadyTerminal)
}

func (r *ExecutionRepository) ListExecutions(ctx context.Context, workflowID string, limit, offset int) ([]*models.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, workflow_id, event_id, status, started_at, completed_at, error, error_stack, output
		FROM executions
	`
	args := []any{}

	if workflowID != "" {
		query += " WHERE workflow_id = $1 ORDER BY started_at DESC LIMIT $2 OFFSET $3"
		args = append(args, workflowID, limit, offset)
	} else {
		query += " ORDER BY started_at DESC LIMIT $1 OFFSET $2"
		args = append(args, limit, offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	records := make([]*models.ExecutionRecord, 0, limit)

	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution row: %w", err)
		}

		records = append(records, record)
	}

	return records, rows.Err()
}
