package models

import (
	"time"

	"github.com/google/uuid"
)

type SyncAction string

const (
	SyncActionCreate SyncAction = "create"
	SyncActionUpdate SyncAction = "update"
	SyncActionDelete SyncAction = "delete"
)

// SyncQueueEntry records a mutation that cannot ride on a record's own
// sync_status field. In practice that means deletes: the record is removed
// from its collection immediately, and the queue entry carries the removal
// to the central store on the next pass.
type SyncQueueEntry struct {
	ID        string     `json:"id"`
	ShopId    string     `json:"shop_id"`
	Kind      RecordKind `json:"type"`
	Action    SyncAction `json:"action"`
	RecordId  string     `json:"record_id"`
	Payload   []byte     `json:"payload,omitempty"`
	Status    SyncStatus `json:"status"`
	Attempts  int        `json:"attempts"`
	LastError string     `json:"last_error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func NewDeleteQueueEntry(shopId string, kind RecordKind, recordId string) SyncQueueEntry {
	return SyncQueueEntry{
		ID:        uuid.NewString(),
		ShopId:    shopId,
		Kind:      kind,
		Action:    SyncActionDelete,
		RecordId:  recordId,
		Status:    SyncStatusPending,
		CreatedAt: time.Now(),
	}
}
