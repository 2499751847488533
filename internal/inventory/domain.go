package inventory

import (
	"fmt"
	"time"

	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/platform/httpx"
)

// MovementReason enumerates why stock changed.
type MovementReason string

const (
	// ReasonConsume is stock used for a repair.
	ReasonConsume MovementReason = "CONSUME"
	// ReasonRestock is stock received from a supplier.
	ReasonRestock MovementReason = "RESTOCK"
	// ReasonOrder is stock used when completing a maintenance order.
	ReasonOrder MovementReason = "ORDER"
)

// Item is a spare part held by one workshop.
type Item struct {
	ID         int64
	WorkshopID int64
	SKU        string
	Name       string
	Quantity   int
	UpdatedAt  time.Time
}

// Low reports whether the item is at or below threshold.
func (i Item) Low(threshold int) bool {
	return i.Quantity <= threshold
}

// Movement is an append-only stock ledger entry.
type Movement struct {
	ItemID     int64
	WorkshopID int64
	Delta      int
	Reason     MovementReason
	OrderID    *int64
	ActorID    string
	At         time.Time
}

// MaxQuantity bounds a single stock movement.
const MaxQuantity = 100000

// Errors returned by stock mutations.
var (
	ErrInvalidQuantity   = fmt.Errorf("%w: inventory: quantity must be between 1 and %d", httpx.ErrValidation, MaxQuantity)
	ErrInsufficientStock = fmt.Errorf("%w: inventory: insufficient stock", httpx.ErrConflict)
	ErrItemNotFound      = fmt.Errorf("%w: inventory: item not found", httpx.ErrNotFound)
)

// StockError identifies the part that could not be consumed.
type StockError struct {
	ItemID int64
	Err    error
}

func (e *StockError) Error() string {
	return fmt.Sprintf("item %d: %v", e.ItemID, e.Err)
}

func (e *StockError) Unwrap() error { return e.Err }

// UserMessage implements the user-safe message contract.
func (e *StockError) UserMessage() string {
	switch e.Err {
	case ErrInsufficientStock:
		return fmt.Sprintf("Stock insuficiente para el repuesto #%d.", e.ItemID)
	case ErrItemNotFound:
		return fmt.Sprintf("El repuesto #%d no existe en este taller.", e.ItemID)
	default:
		return "No fue posible actualizar el stock."
	}
}
