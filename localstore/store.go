// Package localstore is the durable per-shop cache the UI reads from. It is
// the immediate source of truth for reads; the central store only becomes
// authoritative at reconciliation time.
package localstore

import (
	"context"
	"errors"

	"github.com/printflowhq/printshop_backend/models"
)

var ErrNotFound = errors.New("record not found")

// PendingSet aggregates dirty records across all three collections.
type PendingSet struct {
	Orders    []models.Record `json:"orders"`
	Customers []models.Record `json:"customers"`
	Invoices  []models.Record `json:"invoices"`
	Total     int             `json:"total"`
}

func (p PendingSet) All() []models.Record {
	out := make([]models.Record, 0, p.Total)
	out = append(out, p.Orders...)
	out = append(out, p.Customers...)
	out = append(out, p.Invoices...)
	return out
}

// Store is the Local Store contract. Writes are durable immediately and
// propagate faults (dropping a write silently would lose user data). Reads
// by index degrade to empty results so a storage fault can never take the
// UI down with it.
type Store interface {
	// Put upserts by id. Last write wins per key.
	Put(ctx context.Context, rec models.Record) error
	// Get returns ErrNotFound for a missing id; other faults are returned as-is.
	Get(ctx context.Context, collection string, id string) (models.Record, error)
	// GetAll returns every record in the collection, order unspecified.
	GetAll(ctx context.Context, collection string) ([]models.Record, error)
	// GetByIndex returns records whose indexed attribute equals value.
	// Supported indexes: "sync_status", "number". Faults degrade to an
	// empty slice.
	GetByIndex(ctx context.Context, collection string, index string, value string) []models.Record
	Delete(ctx context.Context, collection string, id string) error
	Clear(ctx context.Context, collection string) error
	Count(ctx context.Context, collection string) (int, error)

	// GetPendingSync is GetByIndex(collection, "sync_status", "pending").
	GetPendingSync(ctx context.Context, collection string) []models.Record
	// GetAllPendingSync never fails; on a storage fault it reports zero
	// pending work.
	GetAllPendingSync(ctx context.Context) PendingSet

	PutQueueEntry(ctx context.Context, entry models.SyncQueueEntry) error
	PendingQueueEntries(ctx context.Context) ([]models.SyncQueueEntry, error)
	DeleteQueueEntry(ctx context.Context, id string) error

	// Meta is small sync bookkeeping (last-sync timestamp and friends).
	GetMeta(ctx context.Context, key string) (string, bool, error)
	SetMeta(ctx context.Context, key string, value string) error
}

const (
	IndexSyncStatus = "sync_status"
	IndexNumber     = "number"
)

// MetaKeyLastSyncAt stores the RFC3339Nano timestamp of the last pass that
// finished without a top-level failure.
const MetaKeyLastSyncAt = "last_sync_at"
