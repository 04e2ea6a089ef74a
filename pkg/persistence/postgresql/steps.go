package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// StepLedger stores completed step results in the step_results table. A
// concurrent duplicate write keeps the first result: the step already
// completed, so a second completion of the same step must not change what
// replays observe.
type StepLedger struct {
	db *sql.DB
}

func NewStepLedger(db *sql.DB) *StepLedger {
	return &StepLedger{db: db}
}

func (l *StepLedger) GetStepResult(ctx context.Context, runID, stepName string) ([]byte, bool, error) {
	var result []byte

	err := l.db.QueryRowContext(ctx,
		"SELECT result FROM step_results WHERE run_id = $1 AND step_name = $2",
		runID, stepName,
	).Scan(&result)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("failed to query step %s of run %s: %w", stepName, runID, err)
	}

	return result, true, nil
}

func (l *StepLedger) PutStepResult(ctx context.Context, runID, stepName string, result []byte) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO step_results (run_id, step_name, result)
		VALUES ($1, $2, $3)
		ON CONFLICT (run_id, step_name) DO NOTHING
	`, runID, stepName, result)
	if err != nil {
		return fmt.Errorf("failed to record step %s of run %s: %w", stepName, runID, err)
	}

	return nil
}
