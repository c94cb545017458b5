package models

import (
	"testing"
	"time"
)

func TestNewRecordStartsDirtyAndOffline(t *testing.T) {
	rec := NewOrderRecord("shop-1", Order{CustomerName: "U Ba", Status: "draft"})
	env := rec.Envelope()
	if env.ID == "" {
		t.Fatal("id not generated")
	}
	if env.SyncStatus != SyncStatusPending || !env.IsOffline {
		t.Fatalf("new record must be pending/offline: %+v", env)
	}
	if rec.DocumentNumber() != nil {
		t.Fatal("number must be unassigned at creation")
	}
}

func TestSyncLifecycleTransitions(t *testing.T) {
	rec := NewCustomerRecord("shop-1", Customer{Name: "Daw Nu"})
	env := rec.Envelope()

	syncedAt := time.Now()
	rec.MarkSynced(syncedAt)
	if env.SyncStatus != SyncStatusSynced || env.IsOffline || env.SyncedAt == nil {
		t.Fatalf("mark synced: %+v", env)
	}

	editedAt := syncedAt.Add(time.Minute)
	rec.Touch(editedAt)
	if env.SyncStatus != SyncStatusPending {
		t.Fatal("touch must flip the record back to pending")
	}
	if !env.LastModifiedAt.Equal(editedAt) {
		t.Fatal("touch must stamp last_modified_at")
	}
	// is_offline clears permanently on first sync; editing does not
	// bring it back.
	if env.IsOffline {
		t.Fatal("is_offline must stay cleared after first sync")
	}
}

func TestValidateRejectsBadPayloads(t *testing.T) {
	ok := NewOrderRecord("shop-1", Order{CustomerName: "Fine", Quantity: 1, Status: "draft"})
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid order rejected: %v", err)
	}

	missingName := NewOrderRecord("shop-1", Order{Status: "draft"})
	if err := missingName.Validate(); err == nil {
		t.Fatal("order without customer name should fail validation")
	}

	badStatus := NewOrderRecord("shop-1", Order{CustomerName: "X", Status: "exploded"})
	if err := badStatus.Validate(); err == nil {
		t.Fatal("unknown status should fail validation")
	}

	badEmail := NewCustomerRecord("shop-1", Customer{Name: "Y", Email: "not-an-email"})
	if err := badEmail.Validate(); err == nil {
		t.Fatal("malformed email should fail validation")
	}

	empty := Record{Kind: RecordKindOrder}
	if err := empty.Validate(); err == nil {
		t.Fatal("union with no payload should fail validation")
	}
}

func TestDecodeRecordRoundtrip(t *testing.T) {
	rec := NewInvoiceRecord("shop-1", Invoice{CustomerName: "Ma Thida", IsPaid: true})
	rec.SetDocumentNumber(2001)

	payload, err := rec.MarshalPayload()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	back, err := DecodeRecord(RecordKindInvoice, payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.Invoice.CustomerName != "Ma Thida" || !back.Invoice.IsPaid {
		t.Fatalf("payload mangled: %+v", back.Invoice)
	}
	if n := back.DocumentNumber(); n == nil || *n != 2001 {
		t.Fatalf("number lost in roundtrip: %v", n)
	}

	if _, err := DecodeRecord("unknown", payload); err == nil {
		t.Fatal("unknown kind should fail decode")
	}
}

func TestKindCollectionMapping(t *testing.T) {
	for _, kind := range RecordKinds {
		col := kind.Collection()
		if col == "" {
			t.Fatalf("kind %q has no collection", kind)
		}
		back, ok := KindForCollection(col)
		if !ok || back != kind {
			t.Fatalf("collection %q maps to %q, want %q", col, back, kind)
		}
	}
	if _, ok := KindForCollection(CollectionSyncQueue); ok {
		t.Fatal("sync queue is not a record collection")
	}
}
