package models

import "time"

const (
	SyncRunStatusQueued  = "queued"
	SyncRunStatusRunning = "running"
	SyncRunStatusSuccess = "success"
	SyncRunStatusFailed  = "failed"
	SyncRunStatusPartial = "partial"
)

const (
	SyncTriggeredManual    = "manual"
	SyncTriggeredReconnect = "reconnect"
	SyncTriggeredRetry     = "retry"
	SyncTriggeredSystem    = "system"
)

// SyncRun is the durable history row for one reconciliation pass.
type SyncRun struct {
	ID            uint       `gorm:"primary_key" json:"id"`
	ShopId        string     `gorm:"index;size:64;not null" json:"shop_id"`
	Status        string     `gorm:"size:20;not null" json:"status"`
	TriggeredBy   string     `gorm:"size:20" json:"triggered_by"`
	RecordsSynced int        `json:"records_synced"`
	RecordsTotal  int        `json:"records_total"`
	ErrorCount    int        `json:"error_count"`
	StartedAt     *time.Time `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at"`
	DurationMs    int64      `json:"duration_ms"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// SyncRunError is one per-record failure captured during a pass. Failures
// never abort the batch; they accumulate here and in the pass result.
type SyncRunError struct {
	ID         uint      `gorm:"primary_key" json:"id"`
	SyncRunId  uint      `gorm:"index;not null" json:"sync_run_id"`
	ShopId     string    `gorm:"index;size:64;not null" json:"shop_id"`
	EntityType string    `gorm:"size:50" json:"entity_type"`
	RecordId   string    `gorm:"size:36" json:"record_id"`
	ErrorCode  string    `gorm:"size:64" json:"error_code"`
	Message    string    `gorm:"type:text" json:"message"`
	Retryable  bool      `gorm:"default:false" json:"retryable"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}
