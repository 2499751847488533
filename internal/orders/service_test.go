package orders

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/inventory"
)

type memoryRepo struct {
	mu        sync.Mutex
	orders    map[int64]Order
	stock     map[int64]inventory.Item
	movements []inventory.Movement
}

type memoryTx struct {
	orders    map[int64]Order
	stock     map[int64]inventory.Item
	movements []inventory.Movement
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{orders: make(map[int64]Order), stock: make(map[int64]inventory.Item)}
}

// WithTx works on copies and publishes them only when fn succeeds.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{orders: make(map[int64]Order), stock: make(map[int64]inventory.Item)}
	for k, v := range r.orders {
		tx.orders[k] = v
	}
	for k, v := range r.stock {
		tx.stock[k] = v
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.orders, r.stock = tx.orders, tx.stock
	r.movements = append(r.movements, tx.movements...)
	return nil
}

func (r *memoryRepo) ListOpen(ctx context.Context, workshopID int64) ([]Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Order
	for _, o := range r.orders {
		if o.WorkshopID == workshopID && o.Status != StatusCompleted {
			out = append(out, o)
		}
	}
	return out, nil
}

func (tx *memoryTx) CompleteOrder(ctx context.Context, workshopID, orderID int64, at time.Time) error {
	o, ok := tx.orders[orderID]
	if !ok || o.WorkshopID != workshopID {
		return ErrOrderNotFound
	}
	if o.Status == StatusCompleted {
		return ErrAlreadyCompleted
	}
	o.Status = StatusCompleted
	o.CompletedAt = &at
	tx.orders[orderID] = o
	return nil
}

func (tx *memoryTx) Consume(ctx context.Context, workshopID, itemID int64, qty int) (int, error) {
	item, ok := tx.stock[itemID]
	if !ok || item.WorkshopID != workshopID {
		return 0, &inventory.StockError{ItemID: itemID, Err: inventory.ErrItemNotFound}
	}
	if item.Quantity < qty {
		return 0, &inventory.StockError{ItemID: itemID, Err: inventory.ErrInsufficientStock}
	}
	item.Quantity -= qty
	tx.stock[itemID] = item
	return item.Quantity, nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, m inventory.Movement) error {
	tx.movements = append(tx.movements, m)
	return nil
}

func seed() *memoryRepo {
	repo := newMemoryRepo()
	repo.orders[10] = Order{ID: 10, WorkshopID: 3, Status: StatusOpen, Description: "Cambio de pastillas"}
	repo.orders[11] = Order{ID: 11, WorkshopID: 3, Status: StatusInProgress}
	repo.stock[1] = inventory.Item{ID: 1, WorkshopID: 3, Quantity: 4}
	repo.stock[2] = inventory.Item{ID: 2, WorkshopID: 3, Quantity: 1}
	return repo
}

func TestCompleteConsumesParts(t *testing.T) {
	repo := seed()
	svc := NewService(repo, nil, nil)

	err := svc.Complete(context.Background(), "u-1", 3, 10, []PartUsage{{ItemID: 1, Quantity: 1}, {ItemID: 2, Quantity: 1}, {ItemID: 1, Quantity: 2}})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, repo.orders[10].Status)
	require.NotNil(t, repo.orders[10].CompletedAt)
	require.Equal(t, 1, repo.stock[1].Quantity)
	require.Equal(t, 0, repo.stock[2].Quantity)

	require.Len(t, repo.movements, 2)
	require.EqualValues(t, 1, repo.movements[0].ItemID)
	require.Equal(t, -3, repo.movements[0].Delta)
	require.Equal(t, inventory.ReasonOrder, repo.movements[0].Reason)
	require.EqualValues(t, 10, *repo.movements[0].OrderID)
}

func TestCompleteRollsBackOnInsufficientStock(t *testing.T) {
	repo := seed()
	svc := NewService(repo, nil, nil)

	err := svc.Complete(context.Background(), "u-1", 3, 10, []PartUsage{{ItemID: 1, Quantity: 2}, {ItemID: 2, Quantity: 5}})
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	require.Equal(t, StatusOpen, repo.orders[10].Status)
	require.Equal(t, 4, repo.stock[1].Quantity)
	require.Empty(t, repo.movements)
}

func TestCompleteTwiceFails(t *testing.T) {
	repo := seed()
	svc := NewService(repo, nil, nil)

	require.NoError(t, svc.Complete(context.Background(), "u-1", 3, 11, nil))
	err := svc.Complete(context.Background(), "u-1", 3, 11, []PartUsage{{ItemID: 1, Quantity: 1}})
	require.ErrorIs(t, err, ErrAlreadyCompleted)
	require.Equal(t, 4, repo.stock[1].Quantity)
}

func TestCompleteIsScopedToWorkshop(t *testing.T) {
	repo := seed()
	svc := NewService(repo, nil, nil)

	err := svc.Complete(context.Background(), "u-1", 9, 10, nil)
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestCompleteRejectsInvalidParts(t *testing.T) {
	svc := NewService(seed(), nil, nil)
	err := svc.Complete(context.Background(), "u-1", 3, 10, []PartUsage{{ItemID: 1, Quantity: 0}})
	require.ErrorIs(t, err, ErrInvalidPart)
}

func TestCompleteRejectsOversizedParts(t *testing.T) {
	cases := map[string][]PartUsage{
		"single line over limit":  {{ItemID: 1, Quantity: inventory.MaxQuantity + 1}},
		"merged total over limit": {{ItemID: 1, Quantity: inventory.MaxQuantity}, {ItemID: 1, Quantity: 1}},
		"merged total overflows":  {{ItemID: 1, Quantity: math.MaxInt64}, {ItemID: 1, Quantity: math.MaxInt64 - 3}},
	}
	for name, parts := range cases {
		t.Run(name, func(t *testing.T) {
			repo := seed()
			svc := NewService(repo, nil, nil)
			err := svc.Complete(context.Background(), "u-1", 3, 10, parts)
			require.ErrorIs(t, err, ErrInvalidPart)
			require.Equal(t, StatusOpen, repo.orders[10].Status)
			require.Equal(t, 4, repo.stock[1].Quantity)
			require.Empty(t, repo.movements)
		})
	}
}

func TestMergePartsAcceptsLimit(t *testing.T) {
	merged, err := mergeParts([]PartUsage{{ItemID: 2, Quantity: inventory.MaxQuantity - 1}, {ItemID: 1, Quantity: 1}, {ItemID: 2, Quantity: 1}})
	require.NoError(t, err)
	require.Equal(t, []PartUsage{{ItemID: 1, Quantity: 1}, {ItemID: 2, Quantity: inventory.MaxQuantity}}, merged)
}

func TestConcurrentCompletionSucceedsOnce(t *testing.T) {
	repo := seed()
	svc := NewService(repo, nil, nil)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   int
		losses int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := svc.Complete(context.Background(), "u-1", 3, 10, []PartUsage{{ItemID: 1, Quantity: 1}})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrAlreadyCompleted):
				losses++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, wins)
	require.Equal(t, 7, losses)
	require.Equal(t, 3, repo.stock[1].Quantity)
}

func TestListOpen(t *testing.T) {
	svc := NewService(seed(), nil, nil)
	orders, err := svc.ListOpen(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, orders, 2)
}
