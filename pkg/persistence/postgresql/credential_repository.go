package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/persistence"
)

// CredentialRepository handles encrypted credential storage. Values arrive
// already encrypted; this layer never sees plaintext secrets.
type CredentialRepository struct {
	db *sql.DB
}

// NewCredentialRepository creates a new credential repository.
func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Save upserts a credential row.
func (r *CredentialRepository) Save(ctx context.Context, credential *models.Credential) error {
	now := time.Now().UTC()

	if credential.ID == "" {
		credential.ID = uuid.New().String()
	}

	if credential.CreatedAt.IsZero() {
		credential.CreatedAt = now
	}

	credential.UpdatedAt = now

	query := `
		INSERT INTO credentials (id, owner, credential_type, encrypted_value, encrypted_refresh_token, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			owner = EXCLUDED.owner,
			credential_type = EXCLUDED.credential_type,
			encrypted_value = EXCLUDED.encrypted_value,
			encrypted_refresh_token = EXCLUDED.encrypted_refresh_token,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		credential.ID,
		credential.Owner,
		credential.Type,
		credential.EncryptedValue,
		nullableString(credential.EncryptedRefreshToken),
		credential.ExpiresAt,
		credential.CreatedAt,
		credential.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}

	return nil
}

// GetByID returns one credential by ID.
func (r *CredentialRepository) GetByID(ctx context.Context, id string) (*models.Credential, error) {
	query := `
		SELECT id, owner, credential_type, encrypted_value, encrypted_refresh_token, expires_at, created_at, updated_at
		FROM credentials
		WHERE id = $1
	`

	var (
		credential   models.Credential
		refreshToken sql.NullString
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&credential.ID,
		&credential.Owner,
		&credential.Type,
		&credential.EncryptedValue,
		&refreshToken,
		&credential.ExpiresAt,
		&credential.CreatedAt,
		&credential.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrCredentialNotFound
		}

		return nil, fmt.Errorf("failed to scan credential: %w", err)
	}

	credential.EncryptedRefreshToken = refreshToken.String

	return &credential, nil
}
