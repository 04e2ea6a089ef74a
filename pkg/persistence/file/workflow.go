package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/persistence"
)

// WorkflowRepository stores workflow graphs as one JSON document per
// workflow, named by workflow id.
type WorkflowRepository struct {
	dir string
	mu  sync.RWMutex
}

func NewWorkflowRepository(dir string) *WorkflowRepository {
	return &WorkflowRepository{dir: dir}
}

func (r *WorkflowRepository) path(workflowID string) string {
	return filepath.Join(r.dir, workflowID+".json")
}

func (r *WorkflowRepository) LoadGraph(_ context.Context, workflowID string) (*models.WorkflowGraph, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.read(workflowID)
}

func (r *WorkflowRepository) read(workflowID string) (*models.WorkflowGraph, error) {
	data, err := os.ReadFile(r.path(workflowID))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read workflow %s: %w", workflowID, err)
	}

	graph := &models.WorkflowGraph{}
	if err := json.Unmarshal(data, graph); err != nil {
		return nil, fmt.Errorf("failed to decode workflow %s: %w", workflowID, err)
	}

	return graph, nil
}

func (r *WorkflowRepository) SaveGraph(_ context.Context, graph *models.WorkflowGraph) error {
	if graph.WorkflowID == "" {
		return fmt.Errorf("workflow id is required")
	}

	data, err := json.MarshalIndent(graph, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode workflow %s: %w", graph.WorkflowID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return writeJSONFile(r.path(graph.WorkflowID), data)
}

func (r *WorkflowRepository) Workflows(_ context.Context) ([]*models.WorkflowGraph, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries, err := fs.Glob(os.DirFS(r.dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	graphs := make([]*models.WorkflowGraph, 0, len(entries))

	for _, entry := range entries {
		graph, err := r.read(entry[:len(entry)-len(".json")])
		if err != nil {
			return nil, err
		}

		graphs = append(graphs, graph)
	}

	return graphs, nil
}

func (r *WorkflowRepository) DeleteGraph(_ context.Context, workflowID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := os.Remove(r.path(workflowID))
	if os.IsNotExist(err) {
		return fmt.Errorf("workflow %s: %w", workflowID, persistence.ErrWorkflowNotFound)
	}

	return err
}
