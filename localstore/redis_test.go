package localstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/printflowhq/printshop_backend/models"
)

// unreachableClient points at a closed port so every command fails with a
// transport error, exercising the degrade paths without a server.
func unreachableClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1, // disable retry backoff; fail fast
	})
}

func TestRedisStoreReadsDegradeOnFault(t *testing.T) {
	store := NewRedisStore(unreachableClient(), "shop-1", nil)
	ctx := context.Background()

	if _, err := store.Get(ctx, models.CollectionOrders, "any"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("faulted get should report not found, got %v", err)
	}
	if got := store.GetByIndex(ctx, models.CollectionOrders, IndexSyncStatus, string(models.SyncStatusPending)); len(got) != 0 {
		t.Fatalf("faulted index read should be empty, got %d", len(got))
	}
	if got := store.GetPendingSync(ctx, models.CollectionOrders); len(got) != 0 {
		t.Fatalf("faulted pending read should be empty, got %d", len(got))
	}
	set := store.GetAllPendingSync(ctx)
	if set.Total != 0 {
		t.Fatalf("faulted pending set should be empty, got %d", set.Total)
	}
}

func TestRedisStoreWritesPropagateFault(t *testing.T) {
	store := NewRedisStore(unreachableClient(), "shop-1", nil)
	ctx := context.Background()

	rec := models.NewOrderRecord("shop-1", models.Order{CustomerName: "X", Status: "draft"})
	if err := store.Put(ctx, rec); err == nil {
		t.Fatal("put against a dead store must fail")
	}
	if err := store.Delete(ctx, models.CollectionOrders, rec.Envelope().ID); err == nil {
		t.Fatal("delete against a dead store must fail")
	}
	if err := store.SetMeta(ctx, MetaKeyLastSyncAt, "x"); err == nil {
		t.Fatal("meta write against a dead store must fail")
	}
}

func TestRedisStoreNilClient(t *testing.T) {
	store := NewRedisStore(nil, "shop-1", nil)
	ctx := context.Background()

	if _, err := store.Get(ctx, models.CollectionOrders, "any"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("nil client get: %v", err)
	}
	if set := store.GetAllPendingSync(ctx); set.Total != 0 {
		t.Fatalf("nil client pending set: %d", set.Total)
	}

	rec := models.NewOrderRecord("shop-1", models.Order{CustomerName: "X", Status: "draft"})
	if err := store.Put(ctx, rec); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("nil client put: %v", err)
	}
}

func TestRedisStoreRejectsUnknownCollection(t *testing.T) {
	store := NewRedisStore(nil, "shop-1", nil)
	if _, err := store.Get(context.Background(), "not_a_collection", "id"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown collection should be a hard error, got %v", err)
	}
}
