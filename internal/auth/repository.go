package auth

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	CreateSession(ctx context.Context, sess LoginSession) error
	DeleteSession(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const upsertSession = `
INSERT INTO login_sessions (id, user_id, token_fingerprint, created_at, expires_at, ip, user_agent)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
    user_id = EXCLUDED.user_id,
    token_fingerprint = EXCLUDED.token_fingerprint,
    expires_at = EXCLUDED.expires_at,
    ip = EXCLUDED.ip,
    user_agent = EXCLUDED.user_agent`

// CreateSession persists a login session for auditing. A session id that
// logs in again replaces its previous row.
func (r *PGRepository) CreateSession(ctx context.Context, sess LoginSession) error {
	_, err := r.pool.Exec(ctx, upsertSession,
		sess.ID,
		sess.UserID,
		sess.Fingerprint,
		pgtype.Timestamptz{Time: sess.CreatedAt, Valid: true},
		pgtype.Timestamptz{Time: sess.ExpiresAt, Valid: true},
		pgtype.Text{String: sess.IP, Valid: sess.IP != ""},
		pgtype.Text{String: sess.UserAgent, Valid: sess.UserAgent != ""},
	)
	return err
}

// DeleteSession removes a session record from the database.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM login_sessions WHERE id = $1`, id)
	return err
}

// DeleteExpired removes rows whose expiry is before the given instant.
func (r *PGRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM login_sessions WHERE expires_at < $1`, before.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ Repository = (*PGRepository)(nil)
