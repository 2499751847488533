package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/platform/db"
)

// Queries holds the stock statements. It runs on a pool or inside a
// transaction opened by another module.
type Queries struct {
	db db.DBTX
}

// NewQueries binds the statements to conn.
func NewQueries(conn db.DBTX) *Queries {
	return &Queries{db: conn}
}

const consumeStock = `
UPDATE inventory_item
SET quantity = quantity - $3, updated_at = now()
WHERE id = $1 AND workshop_id = $2 AND quantity >= $3
RETURNING quantity`

// Consume decrements stock in a single conditional statement and returns
// the remaining quantity. Concurrent consumers cannot drive it negative.
func (q *Queries) Consume(ctx context.Context, workshopID, itemID int64, qty int) (int, error) {
	var remaining int32
	err := q.db.QueryRow(ctx, consumeStock, itemID, workshopID, qty).Scan(&remaining)
	if err == nil {
		return int(remaining), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}
	exists, err := q.exists(ctx, workshopID, itemID)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, &StockError{ItemID: itemID, Err: ErrInsufficientStock}
	}
	return 0, &StockError{ItemID: itemID, Err: ErrItemNotFound}
}

const restockItem = `
UPDATE inventory_item
SET quantity = quantity + $3, updated_at = now()
WHERE id = $1 AND workshop_id = $2
RETURNING quantity`

// Restock increments stock and returns the new quantity.
func (q *Queries) Restock(ctx context.Context, workshopID, itemID int64, qty int) (int, error) {
	var total int32
	if err := q.db.QueryRow(ctx, restockItem, itemID, workshopID, qty).Scan(&total); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, &StockError{ItemID: itemID, Err: ErrItemNotFound}
		}
		return 0, err
	}
	return int(total), nil
}

const insertMovement = `
INSERT INTO stock_movement (item_id, workshop_id, delta, reason, order_id, actor_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

// InsertMovement appends to the stock ledger.
func (q *Queries) InsertMovement(ctx context.Context, m Movement) error {
	at := m.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	var orderID pgtype.Int8
	if m.OrderID != nil {
		orderID = pgtype.Int8{Int64: *m.OrderID, Valid: true}
	}
	_, err := q.db.Exec(ctx, insertMovement,
		m.ItemID,
		m.WorkshopID,
		m.Delta,
		string(m.Reason),
		orderID,
		pgtype.Text{String: m.ActorID, Valid: m.ActorID != ""},
		pgtype.Timestamptz{Time: at, Valid: true},
	)
	return err
}

const listItems = `
SELECT id, workshop_id, sku, name, quantity, updated_at
FROM inventory_item
WHERE workshop_id = $1
ORDER BY name`

// List returns the stock of a workshop.
func (q *Queries) List(ctx context.Context, workshopID int64) ([]Item, error) {
	rows, err := q.db.Query(ctx, listItems, workshopID)
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

const lowStockItems = `
SELECT id, workshop_id, sku, name, quantity, updated_at
FROM inventory_item
WHERE quantity <= $1
ORDER BY workshop_id, quantity, name`

// LowStock returns items of every workshop at or below threshold.
func (q *Queries) LowStock(ctx context.Context, threshold int) ([]Item, error) {
	rows, err := q.db.Query(ctx, lowStockItems, threshold)
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

func (q *Queries) exists(ctx context.Context, workshopID, itemID int64) (bool, error) {
	var ok bool
	err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM inventory_item WHERE id = $1 AND workshop_id = $2)`, itemID, workshopID).Scan(&ok)
	return ok, err
}

func collectItems(rows pgx.Rows) ([]Item, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Item, error) {
		var (
			item      Item
			qty       int32
			updatedAt pgtype.Timestamptz
		)
		if err := row.Scan(&item.ID, &item.WorkshopID, &item.SKU, &item.Name, &qty, &updatedAt); err != nil {
			return Item{}, err
		}
		item.Quantity = int(qty)
		item.UpdatedAt = updatedAt.Time
		return item, nil
	})
}
