package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/persistence"
)

// CredentialRepository stores credentials in the credentials table. Values
// arrive already encrypted and are stored verbatim.
type CredentialRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewCredentialRepository(db *sql.DB, logger *slog.Logger) *CredentialRepository {
	return &CredentialRepository{db: db, logger: logger}
}

func (r *CredentialRepository) SaveCredential(ctx context.Context, credential *models.Credential) error {
	if credential.ID == "" {
		return fmt.Errorf("credential id is required")
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO credentials (id, name, type, value, owner_user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			value = EXCLUDED.value
	`, credential.ID, credential.Name, credential.Type, credential.Value,
		credential.OwnerUserID, credential.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save credential %s: %w", credential.ID, err)
	}

	return nil
}

func (r *CredentialRepository) CredentialByID(ctx context.Context, id string) (*models.Credential, error) {
	credential := &models.Credential{}

	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, type, value, owner_user_id, created_at FROM credentials WHERE id = $1", id,
	).Scan(&credential.ID, &credential.Name, &credential.Type, &credential.Value,
		&credential.OwnerUserID, &credential.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("credential %s: %w", id, persistence.ErrCredentialNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query credential %s: %w", id, err)
	}

	return credential, nil
}

func (r *CredentialRepository) DeleteCredential(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM credentials WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete credential %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("credential %s: %w", id, persistence.ErrCredentialNotFound)
	}

	return nil
}
