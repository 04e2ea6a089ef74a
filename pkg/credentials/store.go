package credentials

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/persistence"
	"github.com/loomhq/loom/pkg/protocol"
)

// Store is the credential service: it encrypts values before they reach the
// repository and decrypts on read, scoped to the owning user.
type Store struct {
	repo   persistence.CredentialRepository
	cipher *Cipher
}

func NewStore(repo persistence.CredentialRepository, cipher *Cipher) *Store {
	return &Store{repo: repo, cipher: cipher}
}

var _ protocol.CredentialStore = (*Store)(nil)

// GetCredential returns the credential with its value decrypted. A credential
// owned by another user reads as not found, so ids cannot be probed across
// tenants.
func (s *Store) GetCredential(ctx context.Context, id, ownerUserID string) (*models.Credential, error) {
	stored, err := s.repo.CredentialByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if stored.OwnerUserID != ownerUserID {
		return nil, fmt.Errorf("credential %s: %w", id, persistence.ErrCredentialNotFound)
	}

	plaintext, err := s.cipher.Decrypt(stored.Value)
	if err != nil {
		return nil, fmt.Errorf("credential %s: %w", id, err)
	}

	decrypted := *stored
	decrypted.Value = plaintext

	return &decrypted, nil
}

// CreateCredential encrypts the value and persists the credential, assigning
// an id when none is set.
func (s *Store) CreateCredential(ctx context.Context, credential *models.Credential) (*models.Credential, error) {
	encrypted, err := s.cipher.Encrypt(credential.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt credential value: %w", err)
	}

	stored := *credential
	stored.Value = encrypted

	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}

	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	if err := s.repo.SaveCredential(ctx, &stored); err != nil {
		return nil, err
	}

	created := stored
	created.Value = credential.Value

	return &created, nil
}

// DeleteCredential removes a credential after verifying ownership.
func (s *Store) DeleteCredential(ctx context.Context, id, ownerUserID string) error {
	stored, err := s.repo.CredentialByID(ctx, id)
	if err != nil {
		return err
	}

	if stored.OwnerUserID != ownerUserID {
		return fmt.Errorf("credential %s: %w", id, persistence.ErrCredentialNotFound)
	}

	return s.repo.DeleteCredential(ctx, id)
}
