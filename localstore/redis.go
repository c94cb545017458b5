package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/printflowhq/printshop_backend/config"
	"github.com/printflowhq/printshop_backend/models"
)

var ErrStoreUnavailable = errors.New("local store unavailable")

// RedisStore is the durable Local Store. Every record lives under its own
// key with secondary-index membership sets maintained on write, so lookups
// by sync_status never scan the collection.
//
// Reads follow the degrade rule: any redis fault reports empty results.
// Writes propagate the fault to the caller.
type RedisStore struct {
	client *redis.Client
	shopId string
	logger *logrus.Logger
}

func NewRedisStore(client *redis.Client, shopId string, logger *logrus.Logger) *RedisStore {
	return &RedisStore{client: client, shopId: shopId, logger: logger}
}

func (s *RedisStore) valueKey(collection, id string) string {
	return fmt.Sprintf("ls:%s:%s:%s", s.shopId, collection, id)
}

func (s *RedisStore) idsKey(collection string) string {
	return fmt.Sprintf("ls:%s:%s:ids", s.shopId, collection)
}

func (s *RedisStore) indexKey(collection, index, value string) string {
	return fmt.Sprintf("ls:%s:%s:idx:%s:%s", s.shopId, collection, index, value)
}

func (s *RedisStore) metaKey(key string) string {
	return fmt.Sprintf("ls:%s:meta:%s", s.shopId, key)
}

func (s *RedisStore) logReadFault(fn string, err error) {
	if s.logger != nil && err != nil {
		config.LogError(s.logger, "localstore/redis.go", fn, "degraded read", nil, err)
	}
}

func (s *RedisStore) Put(ctx context.Context, rec models.Record) error {
	if s.client == nil {
		return ErrStoreUnavailable
	}
	env := rec.Envelope()
	if env == nil || env.ID == "" {
		return fmt.Errorf("record has no id")
	}
	payload, err := rec.MarshalPayload()
	if err != nil {
		return err
	}
	collection := rec.Kind.Collection()

	// Old index memberships must go before the new ones land; a missing
	// old record is not a fault.
	var old *models.Record
	if prev, err := s.Get(ctx, collection, env.ID); err == nil {
		old = &prev
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.valueKey(collection, env.ID), payload, 0)
		pipe.SAdd(ctx, s.idsKey(collection), env.ID)
		if old != nil {
			for _, idx := range []string{IndexSyncStatus, IndexNumber} {
				if v := indexValue(*old, idx); v != "" {
					pipe.SRem(ctx, s.indexKey(collection, idx, v), env.ID)
				}
			}
		}
		for _, idx := range []string{IndexSyncStatus, IndexNumber} {
			if v := indexValue(rec, idx); v != "" {
				pipe.SAdd(ctx, s.indexKey(collection, idx, v), env.ID)
			}
		}
		return nil
	})
	return err
}

func (s *RedisStore) Get(ctx context.Context, collection string, id string) (models.Record, error) {
	kind, ok := models.KindForCollection(collection)
	if !ok {
		return models.Record{}, fmt.Errorf("unknown collection %q", collection)
	}
	if s.client == nil {
		return models.Record{}, ErrNotFound
	}
	payload, err := s.client.Get(ctx, s.valueKey(collection, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.Record{}, ErrNotFound
		}
		s.logReadFault("Get", err)
		return models.Record{}, ErrNotFound
	}
	return models.DecodeRecord(kind, payload)
}

func (s *RedisStore) GetAll(ctx context.Context, collection string) ([]models.Record, error) {
	kind, ok := models.KindForCollection(collection)
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", collection)
	}
	if s.client == nil {
		return []models.Record{}, nil
	}
	ids, err := s.client.SMembers(ctx, s.idsKey(collection)).Result()
	if err != nil {
		s.logReadFault("GetAll", err)
		return []models.Record{}, nil
	}
	return s.fetchRecords(ctx, kind, collection, ids), nil
}

func (s *RedisStore) fetchRecords(ctx context.Context, kind models.RecordKind, collection string, ids []string) []models.Record {
	out := []models.Record{}
	for _, id := range ids {
		payload, err := s.client.Get(ctx, s.valueKey(collection, id)).Bytes()
		if err != nil {
			// Stale index member or transient fault; skip, the record
			// either no longer exists or will be seen next pass.
			if !errors.Is(err, redis.Nil) {
				s.logReadFault("fetchRecords", err)
			}
			continue
		}
		rec, err := models.DecodeRecord(kind, payload)
		if err != nil {
			s.logReadFault("fetchRecords", err)
			continue
		}
		out = append(out, rec)
	}
	return out
}

func (s *RedisStore) GetByIndex(ctx context.Context, collection string, index string, value string) []models.Record {
	kind, ok := models.KindForCollection(collection)
	if !ok || s.client == nil {
		return []models.Record{}
	}
	ids, err := s.client.SMembers(ctx, s.indexKey(collection, index, value)).Result()
	if err != nil {
		s.logReadFault("GetByIndex", err)
		return []models.Record{}
	}
	return s.fetchRecords(ctx, kind, collection, ids)
}

func (s *RedisStore) Delete(ctx context.Context, collection string, id string) error {
	if s.client == nil {
		return ErrStoreUnavailable
	}
	var old *models.Record
	if prev, err := s.Get(ctx, collection, id); err == nil {
		old = &prev
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.valueKey(collection, id))
		pipe.SRem(ctx, s.idsKey(collection), id)
		if old != nil {
			for _, idx := range []string{IndexSyncStatus, IndexNumber} {
				if v := indexValue(*old, idx); v != "" {
					pipe.SRem(ctx, s.indexKey(collection, idx, v), id)
				}
			}
		}
		return nil
	})
	return err
}

func (s *RedisStore) Clear(ctx context.Context, collection string) error {
	if s.client == nil {
		return ErrStoreUnavailable
	}
	if collection == models.CollectionSyncQueue {
		return s.clearQueue(ctx)
	}
	ids, err := s.client.SMembers(ctx, s.idsKey(collection)).Result()
	if err != nil {
		return err
	}
	keys := []string{s.idsKey(collection)}
	for _, id := range ids {
		keys = append(keys, s.valueKey(collection, id))
	}
	for _, idx := range []string{IndexSyncStatus, IndexNumber} {
		pattern := s.indexKey(collection, idx, "*")
		idxKeys, err := s.client.Keys(ctx, pattern).Result()
		if err == nil {
			keys = append(keys, idxKeys...)
		}
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *RedisStore) Count(ctx context.Context, collection string) (int, error) {
	if s.client == nil {
		return 0, nil
	}
	n, err := s.client.SCard(ctx, s.idsKey(collection)).Result()
	if err != nil {
		s.logReadFault("Count", err)
		return 0, nil
	}
	return int(n), nil
}

func (s *RedisStore) GetPendingSync(ctx context.Context, collection string) []models.Record {
	return s.GetByIndex(ctx, collection, IndexSyncStatus, string(models.SyncStatusPending))
}

func (s *RedisStore) GetAllPendingSync(ctx context.Context) PendingSet {
	set := PendingSet{
		Orders:    s.GetPendingSync(ctx, models.CollectionOrders),
		Customers: s.GetPendingSync(ctx, models.CollectionCustomers),
		Invoices:  s.GetPendingSync(ctx, models.CollectionInvoices),
	}
	set.Total = len(set.Orders) + len(set.Customers) + len(set.Invoices)
	return set
}

func (s *RedisStore) queueKey(id string) string {
	return fmt.Sprintf("ls:%s:%s:%s", s.shopId, models.CollectionSyncQueue, id)
}

func (s *RedisStore) queueIdsKey() string {
	return fmt.Sprintf("ls:%s:%s:ids", s.shopId, models.CollectionSyncQueue)
}

func (s *RedisStore) PutQueueEntry(ctx context.Context, entry models.SyncQueueEntry) error {
	if s.client == nil {
		return ErrStoreUnavailable
	}
	if entry.ID == "" {
		return fmt.Errorf("queue entry has no id")
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.queueKey(entry.ID), payload, 0)
		pipe.SAdd(ctx, s.queueIdsKey(), entry.ID)
		return nil
	})
	return err
}

func (s *RedisStore) PendingQueueEntries(ctx context.Context) ([]models.SyncQueueEntry, error) {
	if s.client == nil {
		return []models.SyncQueueEntry{}, nil
	}
	ids, err := s.client.SMembers(ctx, s.queueIdsKey()).Result()
	if err != nil {
		s.logReadFault("PendingQueueEntries", err)
		return []models.SyncQueueEntry{}, nil
	}
	out := []models.SyncQueueEntry{}
	for _, id := range ids {
		payload, err := s.client.Get(ctx, s.queueKey(id)).Bytes()
		if err != nil {
			continue
		}
		var entry models.SyncQueueEntry
		if err := json.Unmarshal(payload, &entry); err != nil {
			s.logReadFault("PendingQueueEntries", err)
			continue
		}
		if entry.Status == models.SyncStatusPending || entry.Status == models.SyncStatusFailed {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *RedisStore) DeleteQueueEntry(ctx context.Context, id string) error {
	if s.client == nil {
		return ErrStoreUnavailable
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.queueKey(id))
		pipe.SRem(ctx, s.queueIdsKey(), id)
		return nil
	})
	return err
}

func (s *RedisStore) clearQueue(ctx context.Context) error {
	ids, err := s.client.SMembers(ctx, s.queueIdsKey()).Result()
	if err != nil {
		return err
	}
	keys := []string{s.queueIdsKey()}
	for _, id := range ids {
		keys = append(keys, s.queueKey(id))
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *RedisStore) GetMeta(ctx context.Context, key string) (string, bool, error) {
	if s.client == nil {
		return "", false, nil
	}
	v, err := s.client.Get(ctx, s.metaKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		s.logReadFault("GetMeta", err)
		return "", false, nil
	}
	return v, true, nil
}

func (s *RedisStore) SetMeta(ctx context.Context, key string, value string) error {
	if s.client == nil {
		return ErrStoreUnavailable
	}
	return s.client.Set(ctx, s.metaKey(key), value, 0).Err()
}
