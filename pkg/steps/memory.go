package steps

import (
	"context"
	"sync"

	"github.com/loomhq/loom/pkg/protocol"
)

// MemoryLedger is an in-process step ledger. It survives run retries within
// one process, which is enough for development and tests; production setups
// use a persistence-backed ledger.
type MemoryLedger struct {
	mu      sync.RWMutex
	results map[string][]byte
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{results: make(map[string][]byte)}
}

var _ protocol.StepLedger = (*MemoryLedger)(nil)

func (l *MemoryLedger) GetStepResult(_ context.Context, runID, stepName string) ([]byte, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result, found := l.results[runID+"/"+stepName]

	return result, found, nil
}

func (l *MemoryLedger) PutStepResult(_ context.Context, runID, stepName string, result []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.results[runID+"/"+stepName] = result

	return nil
}
