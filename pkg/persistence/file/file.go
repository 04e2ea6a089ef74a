// Package file provides file-based persistence for workflow graphs, execution
// records, credentials, and the step ledger. It is intended for development
// and single-node deployments.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/loomhq/loom/pkg/persistence"
	"github.com/loomhq/loom/pkg/protocol"
)

// Persistence implements persistence.Persistence on the file system. Each
// entity family lives in its own subdirectory of root as one JSON document
// per record.
type Persistence struct {
	root        string
	workflows   *WorkflowRepository
	executions  *ExecutionRepository
	credentials *CredentialRepository
	ledger      *StepLedger
}

// NewPersistence creates file persistence rooted at the given directory,
// creating the layout if needed. The root accepts an optional file:// prefix.
func NewPersistence(root string) (*Persistence, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	for _, dir := range []string{"workflows", "executions", "credentials", "steps"} {
		if err := os.MkdirAll(filepath.Join(cleanRoot, dir), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}

	return &Persistence{
		root:        cleanRoot,
		workflows:   NewWorkflowRepository(filepath.Join(cleanRoot, "workflows")),
		executions:  NewExecutionRepository(filepath.Join(cleanRoot, "executions")),
		credentials: NewCredentialRepository(filepath.Join(cleanRoot, "credentials")),
		ledger:      NewStepLedger(filepath.Join(cleanRoot, "steps")),
	}, nil
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflows
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executions
}

func (p *Persistence) CredentialRepository() persistence.CredentialRepository {
	return p.credentials
}

func (p *Persistence) StepLedger() protocol.StepLedger {
	return p.ledger
}

// HealthCheck verifies the root directory still exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); err != nil {
		return fmt.Errorf("persistence root unavailable: %w", err)
	}

	return nil
}

// Close performs any necessary cleanup. There is nothing to clean up for
// file persistence.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// writeJSONFile writes data atomically: a temp file in the same directory is
// renamed over the target, so readers never observe a partial document.
func writeJSONFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to move file into place: %w", err)
	}

	return nil
}
