package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/printflowhq/printshop_backend/config"
	"github.com/printflowhq/printshop_backend/localstore"
	"github.com/printflowhq/printshop_backend/models"
)

// Listener subscribes once per logical table and mirrors every event into
// the Local Store: insert/update upserts the payload tagged synced, delete
// removes the record. Registered UI-level subscribers see every event;
// each invocation is isolated so one panicking subscriber neither blocks
// the rest nor corrupts the store write.
type Listener struct {
	shopId string
	store  localstore.Store
	feed   ChangeFeed
	logger *logrus.Logger

	mu          sync.Mutex
	connected   bool
	cancel      context.CancelFunc
	subscribers map[int]func(ChangeEvent)
	nextID      int
	wg          sync.WaitGroup
}

func NewListener(shopId string, store localstore.Store, feed ChangeFeed, logger *logrus.Logger) *Listener {
	return &Listener{
		shopId:      shopId,
		store:       store,
		feed:        feed,
		logger:      logger,
		subscribers: map[int]func(ChangeEvent){},
	}
}

func (l *Listener) OnEvent(fn func(ChangeEvent)) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	id := l.nextID
	l.subscribers[id] = fn
	return id
}

func (l *Listener) RemoveOnEvent(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.subscribers, id)
}

// Connect subscribes to the three record tables. Calling it while already
// connected is a logged no-op, not an error.
func (l *Listener) Connect(ctx context.Context) error {
	l.mu.Lock()
	if l.connected {
		l.mu.Unlock()
		if l.logger != nil {
			l.logger.WithField("module", "realtime/listener.go").Info("realtime already connected")
		}
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.connected = true
	l.mu.Unlock()

	for _, collection := range []string{models.CollectionOrders, models.CollectionCustomers, models.CollectionInvoices} {
		ch, err := l.feed.Subscribe(ctx, collection)
		if err != nil {
			l.Disconnect()
			return err
		}
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			for ev := range ch {
				l.Handle(ctx, ev)
			}
		}()
	}
	return nil
}

func (l *Listener) Disconnect() {
	l.mu.Lock()
	cancel := l.cancel
	l.cancel = nil
	l.connected = false
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	l.wg.Wait()
}

func (l *Listener) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

// Handle applies one event to the Local Store, then fans it out. Exported
// so tests and alternative transports can drive the listener directly.
func (l *Listener) Handle(ctx context.Context, ev ChangeEvent) {
	kind, ok := models.KindForCollection(ev.Table)
	if !ok {
		return
	}

	switch ev.Type {
	case EventInsert, EventUpdate:
		rec, err := models.DecodeRecord(kind, ev.New)
		if err != nil {
			l.logFault("Handle", err)
			break
		}
		env := rec.Envelope()
		if env == nil || env.ID == "" {
			break
		}
		// Remote state is authoritative here; the mirrored copy is clean
		// by definition.
		env.SyncStatus = models.SyncStatusSynced
		env.IsOffline = false
		now := time.Now()
		env.SyncedAt = &now
		if err := l.store.Put(ctx, rec); err != nil {
			l.logFault("Handle", err)
		}
	case EventDelete:
		id := payloadID(ev.Old)
		if id == "" {
			id = payloadID(ev.New)
		}
		if id == "" {
			break
		}
		if err := l.store.Delete(ctx, ev.Table, id); err != nil {
			l.logFault("Handle", err)
		}
	}

	l.mu.Lock()
	subscribers := make([]func(ChangeEvent), 0, len(l.subscribers))
	for _, fn := range l.subscribers {
		subscribers = append(subscribers, fn)
	}
	l.mu.Unlock()

	for _, fn := range subscribers {
		l.deliver(fn, ev)
	}
}

func (l *Listener) deliver(fn func(ChangeEvent), ev ChangeEvent) {
	defer func() {
		if r := recover(); r != nil && l.logger != nil {
			l.logger.WithField("module", "realtime/listener.go").
				Errorf("realtime subscriber panicked: %v", r)
		}
	}()
	fn(ev)
}

func (l *Listener) logFault(fn string, err error) {
	if l.logger != nil {
		config.LogError(l.logger, "realtime/listener.go", fn, "", nil, err)
	}
}

func payloadID(payload json.RawMessage) string {
	if len(payload) == 0 {
		return ""
	}
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return ""
	}
	return probe.ID
}
