package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/persistence"
)

// CredentialRepository stores credentials as one JSON document per
// credential. Values arrive already encrypted and are stored verbatim.
type CredentialRepository struct {
	dir string
	mu  sync.RWMutex
}

func NewCredentialRepository(dir string) *CredentialRepository {
	return &CredentialRepository{dir: dir}
}

func (r *CredentialRepository) path(id string) string {
	return filepath.Join(r.dir, id+".json")
}

func (r *CredentialRepository) SaveCredential(_ context.Context, credential *models.Credential) error {
	if credential.ID == "" {
		return fmt.Errorf("credential id is required")
	}

	data, err := json.MarshalIndent(credential, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credential %s: %w", credential.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return writeJSONFile(r.path(credential.ID), data)
}

func (r *CredentialRepository) CredentialByID(_ context.Context, id string) (*models.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, err := os.ReadFile(r.path(id))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("credential %s: %w", id, persistence.ErrCredentialNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read credential %s: %w", id, err)
	}

	credential := &models.Credential{}
	if err := json.Unmarshal(data, credential); err != nil {
		return nil, fmt.Errorf("failed to decode credential %s: %w", id, err)
	}

	return credential, nil
}

func (r *CredentialRepository) DeleteCredential(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := os.Remove(r.path(id))
	if os.IsNotExist(err) {
		return fmt.Errorf("credential %s: %w", id, persistence.ErrCredentialNotFound)
	}

	return err
}
