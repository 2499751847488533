package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionsPurge removes expired login_sessions rows.
	TaskSessionsPurge = "sessions:purge"
	// TaskInventoryLowStock reports spare parts running out per workshop.
	TaskInventoryLowStock = "inventory:low-stock"
)

// DefaultLowStockThreshold applies when a scan is enqueued without one.
const DefaultLowStockThreshold = 5

// SessionsPurgePayload carries no options today; it keeps the task JSON shaped
// like the others.
type SessionsPurgePayload struct{}

// LowStockPayload configures a low stock scan.
type LowStockPayload struct {
	Threshold int `json:"threshold"`
}

// NewSessionsPurgeTask constructs the purge task.
func NewSessionsPurgeTask() (*asynq.Task, error) {
	data, err := json.Marshal(SessionsPurgePayload{})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionsPurge, data), nil
}

// NewLowStockTask constructs a low stock scan for the given threshold.
func NewLowStockTask(threshold int) (*asynq.Task, error) {
	data, err := json.Marshal(LowStockPayload{Threshold: threshold})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInventoryLowStock, data), nil
}
