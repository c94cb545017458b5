package localstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/printflowhq/printshop_backend/models"
)

func newOrder(name string) models.Record {
	return models.NewOrderRecord("shop-1", models.Order{CustomerName: name, Quantity: 1, Status: "draft"})
}

func TestMemoryStorePutGetDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec := newOrder("Daw Mya")
	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := store.Get(ctx, models.CollectionOrders, rec.Envelope().ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Order.CustomerName != "Daw Mya" {
		t.Fatalf("wrong record back: %+v", got.Order)
	}

	// Stored records are copies; mutating the returned value must not
	// leak into the store.
	got.Order.CustomerName = "changed"
	again, _ := store.Get(ctx, models.CollectionOrders, rec.Envelope().ID)
	if again.Order.CustomerName != "Daw Mya" {
		t.Fatal("store handed out a shared reference")
	}

	if err := store.Delete(ctx, models.CollectionOrders, rec.Envelope().ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, models.CollectionOrders, rec.Envelope().ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreGetMissing(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Get(context.Background(), models.CollectionOrders, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreSyncStatusIndex(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	dirty := newOrder("Dirty")
	clean := newOrder("Clean")
	clean.MarkSynced(time.Now())
	if err := store.Put(ctx, dirty); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put(ctx, clean); err != nil {
		t.Fatalf("put: %v", err)
	}

	pending := store.GetPendingSync(ctx, models.CollectionOrders)
	if len(pending) != 1 || pending[0].Envelope().ID != dirty.Envelope().ID {
		t.Fatalf("wrong pending set: %+v", pending)
	}

	// Flipping status moves the record between index sets.
	dirty.MarkSynced(time.Now())
	if err := store.Put(ctx, dirty); err != nil {
		t.Fatalf("re-put: %v", err)
	}
	if got := store.GetPendingSync(ctx, models.CollectionOrders); len(got) != 0 {
		t.Fatalf("expected empty pending set, got %d", len(got))
	}
	synced := store.GetByIndex(ctx, models.CollectionOrders, IndexSyncStatus, string(models.SyncStatusSynced))
	if len(synced) != 2 {
		t.Fatalf("expected 2 synced records, got %d", len(synced))
	}
}

func TestMemoryStorePendingSetSpansCollections(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Put(ctx, newOrder("O")); err != nil {
		t.Fatal(err)
	}
	cust := models.NewCustomerRecord("shop-1", models.Customer{Name: "C"})
	if err := store.Put(ctx, cust); err != nil {
		t.Fatal(err)
	}
	inv := models.NewInvoiceRecord("shop-1", models.Invoice{CustomerName: "C"})
	if err := store.Put(ctx, inv); err != nil {
		t.Fatal(err)
	}

	set := store.GetAllPendingSync(ctx)
	if set.Total != 3 || len(set.Orders) != 1 || len(set.Customers) != 1 || len(set.Invoices) != 1 {
		t.Fatalf("wrong pending set: %+v", set)
	}
	if len(set.All()) != 3 {
		t.Fatalf("All() should flatten the set")
	}
}

func TestMemoryStoreCountAndClear(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := store.Put(ctx, newOrder(fmt.Sprintf("n%d", i))); err != nil {
			t.Fatal(err)
		}
	}
	if n, _ := store.Count(ctx, models.CollectionOrders); n != 4 {
		t.Fatalf("count = %d, want 4", n)
	}
	if err := store.Clear(ctx, models.CollectionOrders); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if n, _ := store.Count(ctx, models.CollectionOrders); n != 0 {
		t.Fatalf("count after clear = %d", n)
	}
}

func TestMemoryStoreQueueEntries(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	entry := models.NewDeleteQueueEntry("shop-1", models.RecordKindOrder, "rec-1")
	if err := store.PutQueueEntry(ctx, entry); err != nil {
		t.Fatalf("put entry: %v", err)
	}

	entries, err := store.PendingQueueEntries(ctx)
	if err != nil || len(entries) != 1 {
		t.Fatalf("entries = %v, err = %v", entries, err)
	}
	if entries[0].Action != models.SyncActionDelete || entries[0].RecordId != "rec-1" {
		t.Fatalf("wrong entry: %+v", entries[0])
	}

	// Failed entries are still pending work.
	entry.Status = models.SyncStatusFailed
	entry.Attempts = 2
	if err := store.PutQueueEntry(ctx, entry); err != nil {
		t.Fatal(err)
	}
	entries, _ = store.PendingQueueEntries(ctx)
	if len(entries) != 1 || entries[0].Attempts != 2 {
		t.Fatalf("failed entry should stay queued: %+v", entries)
	}

	if err := store.DeleteQueueEntry(ctx, entry.ID); err != nil {
		t.Fatalf("delete entry: %v", err)
	}
	entries, _ = store.PendingQueueEntries(ctx)
	if len(entries) != 0 {
		t.Fatalf("queue should be empty, got %d", len(entries))
	}
}

func TestMemoryStoreMeta(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, ok, err := store.GetMeta(ctx, MetaKeyLastSyncAt); err != nil || ok {
		t.Fatalf("unset meta: ok=%v err=%v", ok, err)
	}
	if err := store.SetMeta(ctx, MetaKeyLastSyncAt, "2026-01-01T00:00:00Z"); err != nil {
		t.Fatal(err)
	}
	v, ok, err := store.GetMeta(ctx, MetaKeyLastSyncAt)
	if err != nil || !ok || v != "2026-01-01T00:00:00Z" {
		t.Fatalf("meta roundtrip: v=%q ok=%v err=%v", v, ok, err)
	}
}
