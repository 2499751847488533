package orders

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/inventory"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListOpen(ctx context.Context, workshopID int64) ([]Order, error)
}

// Service coordinates maintenance orders.
type Service struct {
	repo   RepositoryPort
	audit  shared.AuditRecorder
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// ListOpen returns the workshop's pending orders.
func (s *Service) ListOpen(ctx context.Context, workshopID int64) ([]Order, error) {
	return s.repo.ListOpen(ctx, workshopID)
}

// Complete closes an order and consumes the parts it used. The status change
// and every stock decrement commit together or not at all.
func (s *Service) Complete(ctx context.Context, actorID string, workshopID, orderID int64, parts []PartUsage) error {
	merged, err := mergeParts(parts)
	if err != nil {
		return err
	}
	at := s.now().UTC()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.CompleteOrder(ctx, workshopID, orderID, at); err != nil {
			return err
		}
		for _, part := range merged {
			if _, err := tx.Consume(ctx, workshopID, part.ItemID, part.Quantity); err != nil {
				return err
			}
			movement := inventory.Movement{
				ItemID:     part.ItemID,
				WorkshopID: workshopID,
				Delta:      -part.Quantity,
				Reason:     inventory.ReasonOrder,
				OrderID:    &orderID,
				ActorID:    actorID,
				At:         at,
			}
			if err := tx.InsertMovement(ctx, movement); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	entry := shared.AuditLog{
		ActorID:  actorID,
		Action:   "order.complete",
		Entity:   "maintenance_order",
		EntityID: strconv.FormatInt(orderID, 10),
		Meta:     map[string]any{"workshop_id": workshopID, "parts": len(merged)},
		At:       at,
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("audit record", slog.String("action", entry.Action), slog.Any("error", err))
	}
	return nil
}

// mergeParts sums repeated items and orders them by id so concurrent
// completions lock stock rows in the same order. Each line and each merged
// total stays within inventory.MaxQuantity.
func mergeParts(parts []PartUsage) ([]PartUsage, error) {
	totals := make(map[int64]int, len(parts))
	for _, p := range parts {
		if p.ItemID <= 0 || p.Quantity <= 0 || p.Quantity > inventory.MaxQuantity {
			return nil, ErrInvalidPart
		}
		if totals[p.ItemID] > inventory.MaxQuantity-p.Quantity {
			return nil, ErrInvalidPart
		}
		totals[p.ItemID] += p.Quantity
	}
	out := make([]PartUsage, 0, len(totals))
	for id, qty := range totals {
		out = append(out, PartUsage{ItemID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}
