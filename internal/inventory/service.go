package inventory

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, workshopID int64) ([]Item, error)
	LowStock(ctx context.Context, threshold int) ([]Item, error)
}

// Service coordinates inventory operations.
type Service struct {
	repo   RepositoryPort
	audit  shared.AuditRecorder
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// List returns the stock of a workshop.
func (s *Service) List(ctx context.Context, workshopID int64) ([]Item, error) {
	return s.repo.List(ctx, workshopID)
}

// LowStock returns items of every workshop at or below threshold.
func (s *Service) LowStock(ctx context.Context, threshold int) ([]Item, error) {
	return s.repo.LowStock(ctx, threshold)
}

// Consume takes qty units of an item and returns the remaining quantity.
func (s *Service) Consume(ctx context.Context, actorID string, workshopID, itemID int64, qty int) (int, error) {
	return s.move(ctx, actorID, workshopID, itemID, qty, ReasonConsume)
}

// Restock adds qty units of an item and returns the new quantity.
func (s *Service) Restock(ctx context.Context, actorID string, workshopID, itemID int64, qty int) (int, error) {
	return s.move(ctx, actorID, workshopID, itemID, qty, ReasonRestock)
}

func (s *Service) move(ctx context.Context, actorID string, workshopID, itemID int64, qty int, reason MovementReason) (int, error) {
	if qty <= 0 || qty > MaxQuantity {
		return 0, ErrInvalidQuantity
	}
	var quantity int
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		delta := qty
		if reason == ReasonRestock {
			quantity, err = tx.Restock(ctx, workshopID, itemID, qty)
		} else {
			quantity, err = tx.Consume(ctx, workshopID, itemID, qty)
			delta = -qty
		}
		if err != nil {
			return err
		}
		return tx.InsertMovement(ctx, Movement{ItemID: itemID, WorkshopID: workshopID, Delta: delta, Reason: reason, ActorID: actorID})
	})
	if err != nil {
		return 0, err
	}
	s.record(ctx, actorID, "inventory."+strings.ToLower(string(reason)), itemID, map[string]any{"workshop_id": workshopID, "quantity": qty, "balance": quantity})
	return quantity, nil
}

func (s *Service) record(ctx context.Context, actorID, action string, itemID int64, meta map[string]any) {
	entry := shared.AuditLog{ActorID: actorID, Action: action, Entity: "inventory_item", EntityID: strconv.FormatInt(itemID, 10), Meta: meta}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
