package main

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/sirupsen/logrus"

	"github.com/printflowhq/printshop_backend/config"
	"github.com/printflowhq/printshop_backend/connectivity"
	"github.com/printflowhq/printshop_backend/icount"
	"github.com/printflowhq/printshop_backend/localstore"
	"github.com/printflowhq/printshop_backend/models"
	"github.com/printflowhq/printshop_backend/realtime"
	"github.com/printflowhq/printshop_backend/remote"
	"github.com/printflowhq/printshop_backend/syncer"
)

// shopRuntime is the fully wired service graph for one shop: local store,
// remote store, connectivity monitor, reconciler and realtime listener.
// Construction is explicit so tests can assemble the same graph from fakes.
type shopRuntime struct {
	shopId   string
	store    localstore.Store
	syncer   *syncer.Syncer
	monitor  *connectivity.Monitor
	listener *realtime.Listener
}

type syncRuntime struct {
	logger *logrus.Logger

	mu    sync.Mutex
	shops map[string]*shopRuntime

	probeCancel context.CancelFunc
}

func newSyncRuntime(logger *logrus.Logger) *syncRuntime {
	return &syncRuntime{
		logger: logger,
		shops:  make(map[string]*shopRuntime),
	}
}

// forShop returns the runtime for one shop, building and wiring it on
// first use. Shops are independent: each gets its own monitor, listener
// and reconciler over the shared DB and Redis handles.
func (rt *syncRuntime) forShop(shopId string) *shopRuntime {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if sr, ok := rt.shops[shopId]; ok {
		return sr
	}

	store := localstore.NewRedisStore(config.GetRedisDB(), shopId, rt.logger)
	remoteStore := remote.NewGormStore(config.GetDB(), rt.logger)
	recorder := &syncer.GormRunRecorder{DB: config.GetDB()}
	monitor := connectivity.NewDefaultMonitor(rt.logger)

	reconciler := syncer.NewSyncer(shopId, store, remoteStore, monitor, recorder, rt.logger)
	if locker := config.GetRedisLock(); locker != nil {
		reconciler.SetLocker(locker)
	}
	if cid := strings.TrimSpace(os.Getenv("ICOUNT_COMPANY_ID")); cid != "" {
		accounting, err := icount.NewClient(cid, os.Getenv("ICOUNT_USERNAME"), os.Getenv("ICOUNT_PASSWORD"), rt.logger)
		if err != nil {
			config.LogError(rt.logger, "syncRuntime.go", "forShop", "icount.NewClient", shopId, err)
		} else {
			reconciler.SetAccounting(accounting)
		}
	}

	monitor.SetPendingCounter(func(ctx context.Context) int {
		return store.GetAllPendingSync(ctx).Total
	})
	monitor.SetSyncTrigger(func() {
		go reconciler.FullSync(context.Background(), models.SyncTriggeredReconnect)
	})

	feed := realtime.NewRedisFeed(config.GetRedisDB(), shopId)
	listener := realtime.NewListener(shopId, store, feed, rt.logger)

	// The listener follows connectivity: subscribed while online, torn
	// down while offline.
	monitor.OnChange(func(online bool) {
		if online {
			if err := listener.Connect(context.Background()); err != nil {
				config.LogError(rt.logger, "syncRuntime.go", "forShop", "listener.Connect", shopId, err)
			}
			return
		}
		listener.Disconnect()
	})

	sr := &shopRuntime{
		shopId:   shopId,
		store:    store,
		syncer:   reconciler,
		monitor:  monitor,
		listener: listener,
	}
	rt.shops[shopId] = sr

	// Monitors start offline; feed the current probe result immediately
	// so a shop created while the backend is up does not wait a cycle.
	monitor.SetOnline(rt.probeOnce(context.Background()))

	return sr
}

// probeOnce reports whether the remote side is reachable. The DB is the
// source of truth for "online": a shop can upload if and only if MySQL
// answers.
func (rt *syncRuntime) probeOnce(ctx context.Context) bool {
	db := config.GetDB()
	if db == nil {
		return false
	}
	sqlDB, err := db.DB()
	if err != nil {
		return false
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return sqlDB.PingContext(pingCtx) == nil
}

// startProbes runs the connectivity probe loop feeding every shop monitor.
func (rt *syncRuntime) startProbes() {
	interval := 10 * time.Second
	if v := strings.TrimSpace(os.Getenv("CONNECTIVITY_PROBE_SECONDS")); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil && d > 0 {
			interval = d
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	rt.probeCancel = cancel

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				online := rt.probeOnce(ctx)
				rt.mu.Lock()
				shops := make([]*shopRuntime, 0, len(rt.shops))
				for _, sr := range rt.shops {
					shops = append(shops, sr)
				}
				rt.mu.Unlock()
				for _, sr := range shops {
					sr.monitor.SetOnline(online)
				}
			}
		}
	}()
}

func (rt *syncRuntime) shutdown() {
	if rt.probeCancel != nil {
		rt.probeCancel()
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for _, sr := range rt.shops {
		sr.listener.Disconnect()
		sr.monitor.Stop()
	}
}

type syncPubSubPayload struct {
	RunId  uint   `json:"run_id"`
	ShopId string `json:"shop_id"`
}

// PublishSyncRun queues a reconciliation request for another instance (or
// a later retry) via Pub/Sub. The push endpoint in server.go consumes the
// same payload.
func PublishSyncRun(ctx context.Context, runId uint, shopId string) error {
	topicName := strings.TrimSpace(os.Getenv("SYNC_TOPIC"))
	if topicName == "" {
		topicName = "printshop-sync"
	}

	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}

	topic := client.Topic(topicName)
	if strings.EqualFold(strings.TrimSpace(os.Getenv("SYNC_CREATE_TOPIC")), "true") {
		topic, err = config.CreateTopicIfNotExists(client, topicName)
		if err != nil {
			return err
		}
	}

	payload := syncPubSubPayload{RunId: runId, ShopId: shopId}
	data, _ := json.Marshal(payload)
	res := topic.Publish(ctx, &pubsub.Message{Data: data})
	_, err = res.Get(ctx)
	return err
}
