package orders

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/inventory"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/platform/db"
)

// TxRepository exposes the statements used while completing an order.
type TxRepository interface {
	CompleteOrder(ctx context.Context, workshopID, orderID int64, at time.Time) error
	Consume(ctx context.Context, workshopID, itemID int64, qty int) (int, error)
	InsertMovement(ctx context.Context, m inventory.Movement) error
}

// Repository persists maintenance orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
	*inventory.Queries
}

// WithTx runs fn in one transaction shared by order and stock statements.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, Queries: inventory.NewQueries(tx)})
	})
}

const completeOrder = `
UPDATE maintenance_order
SET status = 'COMPLETED', completed_at = $3
WHERE id = $1 AND workshop_id = $2 AND status <> 'COMPLETED'
RETURNING id`

// CompleteOrder flips the order to completed unless another request did so
// first.
func (t *txRepository) CompleteOrder(ctx context.Context, workshopID, orderID int64, at time.Time) error {
	var id int64
	err := t.tx.QueryRow(ctx, completeOrder, orderID, workshopID, pgtype.Timestamptz{Time: at, Valid: true}).Scan(&id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	var status string
	err = t.tx.QueryRow(ctx, `SELECT status FROM maintenance_order WHERE id = $1 AND workshop_id = $2`, orderID, workshopID).Scan(&status)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrOrderNotFound
	case err != nil:
		return err
	default:
		return ErrAlreadyCompleted
	}
}

const listOpenOrders = `
SELECT o.id, o.workshop_id, o.vehicle_id, COALESCE(v.license_plate, ''), o.description, o.status, o.opened_at
FROM maintenance_order o
LEFT JOIN vehicle v ON v.id = o.vehicle_id
WHERE o.workshop_id = $1 AND o.status <> 'COMPLETED'
ORDER BY o.opened_at`

// ListOpen returns the orders of a workshop that are not completed.
func (r *Repository) ListOpen(ctx context.Context, workshopID int64) ([]Order, error) {
	rows, err := r.pool.Query(ctx, listOpenOrders, workshopID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Order, error) {
		var (
			o        Order
			status   string
			openedAt pgtype.Timestamptz
		)
		if err := row.Scan(&o.ID, &o.WorkshopID, &o.VehicleID, &o.VehiclePlate, &o.Description, &status, &openedAt); err != nil {
			return Order{}, err
		}
		o.Status = Status(status)
		o.OpenedAt = openedAt.Time
		return o, nil
	})
}

var _ RepositoryPort = (*Repository)(nil)
