package protocol

import (
	"context"
	"time"

	"github.com/loomhq/loom/pkg/models"
)

// GraphLoader fetches the immutable graph snapshot for a workflow. It fails
// if the workflow is absent.
type GraphLoader interface {
	LoadGraph(ctx context.Context, workflowID string) (*models.WorkflowGraph, error)
}

// CredentialStore resolves a stored credential by id, scoped to its owner.
// Returned values are decrypted; they must never be persisted again.
type CredentialStore interface {
	GetCredential(ctx context.Context, id, ownerUserID string) (*models.Credential, error)
}

// ExecutionRecordPatch is a partial update applied to an execution record at
// its terminal transition.
type ExecutionRecordPatch struct {
	Status      models.ExecutionStatus
	CompletedAt *time.Time
	Error       *string
	ErrorStack  *string
	Output      models.Context
}

// ExecutionRecordStore persists execution records. UpdateTerminal must be
// idempotent per run id: it only applies while the record is still RUNNING
// and fails with engine.ErrRecordAlreadyTerminal otherwise, so a terminal
// status is written exactly once even when the platform retries the run.
type ExecutionRecordStore interface {
	Create(ctx context.Context, record *models.ExecutionRecord) error
	GetByID(ctx context.Context, id string) (*models.ExecutionRecord, error)
	FindByEventID(ctx context.Context, eventID string) (*models.ExecutionRecord, error)
	UpdateTerminal(ctx context.Context, id string, patch ExecutionRecordPatch) error
}

// StepLedger is the per-run persisted step-completion ledger consulted by the
// durable step runner before re-invoking a step.
type StepLedger interface {
	// GetStepResult returns the stored result for (runID, stepName) and
	// whether one exists.
	GetStepResult(ctx context.Context, runID, stepName string) ([]byte, bool, error)

	// PutStepResult stores a completed step's result.
	PutStepResult(ctx context.Context, runID, stepName string, result []byte) error
}
