package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/platform/db"
)

// TxRepository exposes the statements used inside a transaction.
type TxRepository interface {
	Consume(ctx context.Context, workshopID, itemID int64, qty int) (int, error)
	Restock(ctx context.Context, workshopID, itemID int64, qty int) (int, error)
	InsertMovement(ctx context.Context, m Movement) error
}

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	*Queries
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, Queries: NewQueries(pool)}
}

// WithTx executes the callback inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewQueries(tx))
	})
}

var (
	_ RepositoryPort = (*Repository)(nil)
	_ TxRepository   = (*Queries)(nil)
)
