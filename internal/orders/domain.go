package orders

import (
	"fmt"
	"time"

	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/inventory"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/platform/httpx"
)

// Status enumerates the maintenance order lifecycle.
type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
)

// Order is a maintenance job on a vehicle assigned to a workshop.
type Order struct {
	ID           int64
	WorkshopID   int64
	VehicleID    int64
	VehiclePlate string
	Description  string
	Status       Status
	OpenedAt     time.Time
	CompletedAt  *time.Time
}

// PartUsage is the quantity of a spare part used by an order.
type PartUsage struct {
	ItemID   int64
	Quantity int
}

var (
	ErrOrderNotFound    = fmt.Errorf("%w: orders: order not found", httpx.ErrNotFound)
	ErrAlreadyCompleted = fmt.Errorf("%w: orders: order already completed", httpx.ErrConflict)
	ErrInvalidPart      = fmt.Errorf("%w: orders: part quantity must be between 1 and %d", httpx.ErrValidation, inventory.MaxQuantity)
)
