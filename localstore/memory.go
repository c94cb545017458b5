package localstore

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/printflowhq/printshop_backend/models"
)

// MemoryStore keeps everything in process memory behind one mutex. It is
// the store used by tests and by single-process deployments that accept
// losing the cache on restart. Records are stored encoded so callers never
// share pointers with the store.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]map[string][]byte // collection -> id -> payload
	queue   map[string]models.SyncQueueEntry
	meta    map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: map[string]map[string][]byte{
			models.CollectionOrders:    {},
			models.CollectionCustomers: {},
			models.CollectionInvoices:  {},
		},
		queue: map[string]models.SyncQueueEntry{},
		meta:  map[string]string{},
	}
}

func (s *MemoryStore) Put(ctx context.Context, rec models.Record) error {
	env := rec.Envelope()
	if env == nil || env.ID == "" {
		return fmt.Errorf("record has no id")
	}
	payload, err := rec.MarshalPayload()
	if err != nil {
		return err
	}
	collection := rec.Kind.Collection()

	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.records[collection]
	if !ok {
		return fmt.Errorf("unknown collection %q", collection)
	}
	bucket[env.ID] = payload
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, collection string, id string) (models.Record, error) {
	kind, ok := models.KindForCollection(collection)
	if !ok {
		return models.Record{}, fmt.Errorf("unknown collection %q", collection)
	}

	s.mu.Lock()
	payload, found := s.records[collection][id]
	s.mu.Unlock()
	if !found {
		return models.Record{}, ErrNotFound
	}
	return models.DecodeRecord(kind, payload)
}

func (s *MemoryStore) GetAll(ctx context.Context, collection string) ([]models.Record, error) {
	kind, ok := models.KindForCollection(collection)
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", collection)
	}

	s.mu.Lock()
	payloads := make([][]byte, 0, len(s.records[collection]))
	for _, p := range s.records[collection] {
		payloads = append(payloads, p)
	}
	s.mu.Unlock()

	out := make([]models.Record, 0, len(payloads))
	for _, p := range payloads {
		rec, err := models.DecodeRecord(kind, p)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *MemoryStore) GetByIndex(ctx context.Context, collection string, index string, value string) []models.Record {
	all, err := s.GetAll(ctx, collection)
	if err != nil {
		return []models.Record{}
	}
	out := []models.Record{}
	for _, rec := range all {
		if indexValue(rec, index) == value {
			out = append(out, rec)
		}
	}
	return out
}

func (s *MemoryStore) Delete(ctx context.Context, collection string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.records[collection]
	if !ok {
		return fmt.Errorf("unknown collection %q", collection)
	}
	delete(bucket, id)
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if collection == models.CollectionSyncQueue {
		s.queue = map[string]models.SyncQueueEntry{}
		return nil
	}
	if _, ok := s.records[collection]; !ok {
		return fmt.Errorf("unknown collection %q", collection)
	}
	s.records[collection] = map[string][]byte{}
	return nil
}

func (s *MemoryStore) Count(ctx context.Context, collection string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if collection == models.CollectionSyncQueue {
		return len(s.queue), nil
	}
	bucket, ok := s.records[collection]
	if !ok {
		return 0, fmt.Errorf("unknown collection %q", collection)
	}
	return len(bucket), nil
}

func (s *MemoryStore) GetPendingSync(ctx context.Context, collection string) []models.Record {
	return s.GetByIndex(ctx, collection, IndexSyncStatus, string(models.SyncStatusPending))
}

func (s *MemoryStore) GetAllPendingSync(ctx context.Context) PendingSet {
	set := PendingSet{
		Orders:    s.GetPendingSync(ctx, models.CollectionOrders),
		Customers: s.GetPendingSync(ctx, models.CollectionCustomers),
		Invoices:  s.GetPendingSync(ctx, models.CollectionInvoices),
	}
	set.Total = len(set.Orders) + len(set.Customers) + len(set.Invoices)
	return set
}

func (s *MemoryStore) PutQueueEntry(ctx context.Context, entry models.SyncQueueEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("queue entry has no id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue[entry.ID] = entry
	return nil
}

func (s *MemoryStore) PendingQueueEntries(ctx context.Context) ([]models.SyncQueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.SyncQueueEntry{}
	for _, entry := range s.queue {
		if entry.Status == models.SyncStatusPending || entry.Status == models.SyncStatusFailed {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *MemoryStore) DeleteQueueEntry(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.queue, id)
	return nil
}

func (s *MemoryStore) GetMeta(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.meta[key]
	return v, ok, nil
}

func (s *MemoryStore) SetMeta(ctx context.Context, key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta[key] = value
	return nil
}

func indexValue(rec models.Record, index string) string {
	switch index {
	case IndexSyncStatus:
		if env := rec.Envelope(); env != nil {
			return string(env.SyncStatus)
		}
	case IndexNumber:
		if n := rec.DocumentNumber(); n != nil {
			return strconv.FormatInt(*n, 10)
		}
	}
	return ""
}
