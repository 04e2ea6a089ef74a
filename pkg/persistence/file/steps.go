package file

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// StepLedger stores completed step results one file per step, grouped under
// a per-run directory. File names are the URL-safe base64 of the step name,
// so qualified names with separators stay valid file names.
type StepLedger struct {
	dir string
	mu  sync.RWMutex
}

func NewStepLedger(dir string) *StepLedger {
	return &StepLedger{dir: dir}
}

func (l *StepLedger) path(runID, stepName string) string {
	encoded := base64.RawURLEncoding.EncodeToString([]byte(stepName))

	return filepath.Join(l.dir, runID, encoded+".json")
}

func (l *StepLedger) GetStepResult(_ context.Context, runID, stepName string) ([]byte, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	data, err := os.ReadFile(l.path(runID, stepName))
	if os.IsNotExist(err) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("failed to read step %s of run %s: %w", stepName, runID, err)
	}

	return data, true, nil
}

func (l *StepLedger) PutStepResult(_ context.Context, runID, stepName string, result []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	path := l.path(runID, stepName)

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create run directory for %s: %w", runID, err)
	}

	return writeJSONFile(path, result)
}
