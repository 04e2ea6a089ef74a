package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/loomhq/loom/pkg/engine"
	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/persistence"
	"github.com/loomhq/loom/pkg/protocol"
)

// ExecutionRepository stores execution records as one JSON document per
// record. A single mutex serializes the read-modify-write of the terminal
// transition.
type ExecutionRepository struct {
	dir string
	mu  sync.Mutex
}

func NewExecutionRepository(dir string) *ExecutionRepository {
	return &ExecutionRepository{dir: dir}
}

func (r *ExecutionRepository) path(id string) string {
	return filepath.Join(r.dir, id+".json")
}

func (r *ExecutionRepository) Create(_ context.Context, record *models.ExecutionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := os.Stat(r.path(record.ID)); err == nil {
		return fmt.Errorf("execution %s: %w", record.ID, persistence.ErrExecutionAlreadyExists)
	}

	return r.write(record)
}

func (r *ExecutionRepository) write(record *models.ExecutionRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode execution %s: %w", record.ID, err)
	}

	return writeJSONFile(r.path(record.ID), data)
}

func (r *ExecutionRepository) read(id string) (*models.ExecutionRecord, error) {
	data, err := os.ReadFile(r.path(id))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("execution %s: %w", id, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read execution %s: %w", id, err)
	}

	record := &models.ExecutionRecord{}
	if err := json.Unmarshal(data, record); err != nil {
		return nil, fmt.Errorf("failed to decode execution %s: %w", id, err)
	}

	return record, nil
}

func (r *ExecutionRepository) GetByID(_ context.Context, id string) (*models.ExecutionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.read(id)
}

func (r *ExecutionRepository) FindByEventID(ctx context.Context, eventID string) (*models.ExecutionRecord, error) {
	records, err := r.ListExecutions(ctx, "", 0, 0)
	if err != nil {
		return nil, err
	}

	for _, record := range records {
		if record.EventID == eventID {
			return record, nil
		}
	}

	return nil, fmt.Errorf("no execution for event %s: %w", eventID, persistence.ErrExecutionNotFound)
}

// UpdateTerminal applies the terminal patch while the record is still
// RUNNING. A record already in a terminal state fails with
// engine.ErrRecordAlreadyTerminal and is left untouched.
func (r *ExecutionRepository) UpdateTerminal(_ context.Context, id string, patch protocol.ExecutionRecordPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, err := r.read(id)
	if err != nil {
		return err
	}

	if record.Status.Terminal() {
		return fmt.Errorf("execution %s: %w", id, engine.ErrRecordAlreadyTerminal)
	}

	record.Status = patch.Status
	record.CompletedAt = patch.CompletedAt
	record.Error = patch.Error
	record.ErrorStack = patch.ErrorStack
	record.Output = patch.Output

	return r.write(record)
}

func (r *ExecutionRepository) ListExecutions(_ context.Context, workflowID string, limit, offset int) ([]*models.ExecutionRecord, error) {
	entries, err := fs.Glob(os.DirFS(r.dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	records := make([]*models.ExecutionRecord, 0, len(entries))

	for _, entry := range entries {
		record, err := r.read(entry[:len(entry)-len(".json")])
		if err != nil {
			return nil, err
		}

		if workflowID != "" && record.WorkflowID != workflowID {
			continue
		}

		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})

	if offset > 0 {
		if offset >= len(records) {
			return []*models.ExecutionRecord{}, nil
		}

		records = records[offset:]
	}

	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}

	return records, nil
}
