// Package persistence provides the data storage abstraction layer for
// workflow graphs, execution records, credentials, and the step ledger.
package persistence

import (
	"context"

	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/protocol"
)

// WorkflowRepository stores authored workflow graphs. LoadGraph (from
// protocol.GraphLoader) is the read path the engine snapshots runs from.
type WorkflowRepository interface {
	protocol.GraphLoader

	SaveGraph(ctx context.Context, graph *models.WorkflowGraph) error
	Workflows(ctx context.Context) ([]*models.WorkflowGraph, error)
	DeleteGraph(ctx context.Context, workflowID string) error
}

// ExecutionRepository stores execution records and serves the read API.
type ExecutionRepository interface {
	protocol.ExecutionRecordStore

	// ListExecutions returns records for one workflow, newest first. An empty
	// workflowID lists across workflows.
	ListExecutions(ctx context.Context, workflowID string, limit, offset int) ([]*models.ExecutionRecord, error)
}

// CredentialRepository stores credentials with their values encrypted at
// rest. Values pass through as stored; decryption is the credential service's
// concern, not the repository's.
type CredentialRepository interface {
	SaveCredential(ctx context.Context, credential *models.Credential) error
	CredentialByID(ctx context.Context, id string) (*models.Credential, error)
	DeleteCredential(ctx context.Context, id string) error
}

// Persistence aggregates the repositories one backend provides.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository
	CredentialRepository() CredentialRepository
	StepLedger() protocol.StepLedger

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
