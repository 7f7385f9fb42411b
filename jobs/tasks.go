package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRegisterSnapshot renders the daily sales register of one day to PDF.
	TaskRegisterSnapshot = "salesregister:snapshot"
	// TaskRegisterCacheBump invalidates every cached register.
	TaskRegisterCacheBump = "salesregister:cache_bump"
)

const payloadDateLayout = "2006-01-02"

// RegisterSnapshotPayload selects the day and company to snapshot. An empty
// company snapshots every company that posted POS invoices that day; an empty
// date means yesterday.
type RegisterSnapshotPayload struct {
	Company string `json:"company,omitempty"`
	Date    string `json:"date,omitempty"`
}

// Day parses the payload date, falling back to the day before now.
func (p RegisterSnapshotPayload) Day(now time.Time) (time.Time, error) {
	if p.Date == "" {
		y, m, d := now.UTC().AddDate(0, 0, -1).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	day, err := time.Parse(payloadDateLayout, p.Date)
	if err != nil {
		return time.Time{}, fmt.Errorf("snapshot date %q: %w", p.Date, err)
	}
	return day, nil
}

// NewRegisterSnapshotTask constructs an Asynq task.
func NewRegisterSnapshotTask(payload RegisterSnapshotPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRegisterSnapshot, data, asynq.MaxRetry(3), asynq.Timeout(10*time.Minute)), nil
}

// NewRegisterCacheBumpTask constructs a cache invalidation task.
func NewRegisterCacheBumpTask() *asynq.Task {
	return asynq.NewTask(TaskRegisterCacheBump, nil, asynq.MaxRetry(5))
}
