package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"

	"github.com/hibiken/asynq"

	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/inventory"
	jobmetrics "github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/jobs"
)

// LowStockSource lists items at or below a threshold across all workshops.
type LowStockSource interface {
	LowStock(ctx context.Context, threshold int) ([]inventory.Item, error)
}

// LowStockJob logs and exports spare parts running out, grouped per workshop.
type LowStockJob struct {
	Source  LowStockSource
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLowStockJob initialises the low stock handler.
func NewLowStockJob(source LowStockSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockJob {
	return &LowStockJob{Source: source, Logger: logger, Metrics: metrics}
}

// WorkshopStock summarises the low stock parts of one workshop.
type WorkshopStock struct {
	WorkshopID int64
	Items      []inventory.Item
}

// Handle executes the scan.
func (j *LowStockJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Source == nil {
		return errors.New("low stock: handler not configured")
	}
	var payload LowStockPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Threshold <= 0 {
		payload.Threshold = DefaultLowStockThreshold
	}

	tracker := j.Metrics.Track(TaskInventoryLowStock)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	_, err := j.Scan(ctx, payload.Threshold)
	return err
}

// Scan loads the low stock items, logs one warning per workshop and updates
// the per-workshop gauge.
func (j *LowStockJob) Scan(ctx context.Context, threshold int) ([]WorkshopStock, error) {
	logger := j.logger().With(slog.Int("threshold", threshold))
	items, err := j.Source.LowStock(ctx, threshold)
	if err != nil {
		logger.Error("load low stock items", slog.Any("error", err))
		return nil, err
	}
	groups := groupByWorkshop(items)
	j.Metrics.ResetLowStock()
	for _, group := range groups {
		skus := make([]string, 0, len(group.Items))
		for _, item := range group.Items {
			skus = append(skus, item.SKU)
		}
		logger.Warn("workshop low on spare parts",
			slog.Int64("workshop_id", group.WorkshopID),
			slog.Int("items", len(group.Items)),
			slog.Any("skus", skus),
		)
		j.Metrics.SetLowStock(group.WorkshopID, len(group.Items))
	}
	logger.Info("completed low stock scan", slog.Int("workshops", len(groups)))
	return groups, nil
}

func groupByWorkshop(items []inventory.Item) []WorkshopStock {
	index := make(map[int64]int)
	var groups []WorkshopStock
	for _, item := range items {
		pos, ok := index[item.WorkshopID]
		if !ok {
			pos = len(groups)
			index[item.WorkshopID] = pos
			groups = append(groups, WorkshopStock{WorkshopID: item.WorkshopID})
		}
		groups[pos].Items = append(groups[pos].Items, item)
	}
	sort.Slice(groups, func(a, b int) bool { return groups[a].WorkshopID < groups[b].WorkshopID })
	return groups
}

func (j *LowStockJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
