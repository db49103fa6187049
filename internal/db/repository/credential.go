package repository

import (
	"context"

	"github.com/ad-tracker/youtube-subscription-sync-go/internal/db"
	"github.com/ad-tracker/youtube-subscription-sync-go/internal/db/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CredentialRepository reads the OAuth tokens written by the consent flow.
type CredentialRepository interface {
	// GetByOwner retrieves an owner's credential, or db.ErrNotFound.
	GetByOwner(ctx context.Context, ownerID int64) (*models.Credential, error)

	// ListAfter returns up to limit credentials with owner id greater than
	// afterOwnerID, ascending, each flagged with its owner's active state.
	ListAfter(ctx context.Context, afterOwnerID int64, limit int) ([]*models.Credential, error)

	// Save stores a refreshed token payload for an owner.
	Save(ctx context.Context, ownerID int64, data string) error
}

type credentialRepository struct {
	pool *pgxpool.Pool
}

// NewCredentialRepository creates a new CredentialRepository.
func NewCredentialRepository(pool *pgxpool.Pool) CredentialRepository {
	return &credentialRepository{pool: pool}
}

const credentialColumns = `t.owner_id, t.data, u.is_active, t.created_at, t.updated_at`

func (r *credentialRepository) GetByOwner(ctx context.Context, ownerID int64) (*models.Credential, error) {
	query := `SELECT ` + credentialColumns + `
		FROM oauth_tokens t
		JOIN users u ON u.id = t.owner_id
		WHERE t.owner_id = $1
	`

	cred, err := scanCredential(r.pool.QueryRow(ctx, query, ownerID))
	if err != nil {
		return nil, db.WrapError(err, "get credential by owner")
	}

	return cred, nil
}

func (r *credentialRepository) ListAfter(ctx context.Context, afterOwnerID int64, limit int) ([]*models.Credential, error) {
	query := `SELECT ` + credentialColumns + `
		FROM oauth_tokens t
		JOIN users u ON u.id = t.owner_id
		WHERE t.owner_id > $1
		ORDER BY t.owner_id ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, afterOwnerID, limit)
	if err != nil {
		return nil, db.WrapError(err, "list credentials")
	}
	defer rows.Close()

	var creds []*models.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, db.WrapError(err, "scan credential")
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, db.WrapError(err, "iterate credentials")
	}

	return creds, nil
}

func (r *credentialRepository) Save(ctx context.Context, ownerID int64, data string) error {
	query := `
		UPDATE oauth_tokens
		SET data = $1, updated_at = NOW()
		WHERE owner_id = $2
	`

	tag, err := r.pool.Exec(ctx, query, data, ownerID)
	if err != nil {
		return db.WrapError(err, "save credential")
	}
	if tag.RowsAffected() == 0 {
		return db.WrapError(pgx.ErrNoRows, "save credential")
	}

	return nil
}

func scanCredential(row pgx.Row) (*models.Credential, error) {
	cred := &models.Credential{}
	err := row.Scan(
		&cred.OwnerID,
		&cred.Data,
		&cred.Active,
		&cred.CreatedAt,
		&cred.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return cred, nil
}
