package syncer

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/printflowhq/printshop_backend/models"
)

type Status string

const (
	StatusIdle      Status = "idle"
	StatusSyncing   Status = "syncing"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// RecordError is one per-record failure, tagged so the aggregate surface
// can say what went wrong without the UI tracking individual records.
type RecordError struct {
	EntityType models.RecordKind `json:"entity_type"`
	RecordId   string            `json:"record_id"`
	Message    string            `json:"message"`
}

// State is the ephemeral per-pass status exposed to listeners. It is
// rebuilt from scratch every pass, never persisted.
type State struct {
	Status   Status        `json:"status"`
	Progress int           `json:"progress"`
	Synced   int           `json:"synced"`
	Total    int           `json:"total"`
	Errors   []RecordError `json:"errors"`
}

// Result is what one upload or full pass returns to its caller.
type Result struct {
	Success bool          `json:"success"`
	Reason  string        `json:"reason,omitempty"` // "offline" or "busy" when short-circuited
	Synced  int           `json:"synced"`
	Total   int           `json:"total"`
	Errors  []RecordError `json:"errors,omitempty"`
}

const (
	ReasonOffline = "offline"
	ReasonBusy    = "busy"
)

// DownloadResult reports the download path separately; it never assigns
// numbers and never touches the queue.
type DownloadResult struct {
	Success    bool          `json:"success"`
	Downloaded int           `json:"downloaded"`
	Errors     []RecordError `json:"errors,omitempty"`
}

// Snapshot is the aggregate status surface the UI polls.
type Snapshot struct {
	Online       bool  `json:"online"`
	SyncStatus   State `json:"syncStatus"`
	PendingCount int   `json:"pendingCount"`
}

// observerRegistry fans State updates out to subscribers. A panicking
// subscriber is logged and skipped; it cannot stop delivery to the rest.
type observerRegistry struct {
	mu        sync.Mutex
	observers map[int]func(State)
	nextID    int
	logger    *logrus.Logger
}

func newObserverRegistry(logger *logrus.Logger) *observerRegistry {
	return &observerRegistry{observers: map[int]func(State){}, logger: logger}
}

func (r *observerRegistry) subscribe(fn func(State)) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.observers[id] = fn
	return id
}

func (r *observerRegistry) unsubscribe(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.observers, id)
}

func (r *observerRegistry) broadcast(state State) {
	r.mu.Lock()
	observers := make([]func(State), 0, len(r.observers))
	for _, fn := range r.observers {
		observers = append(observers, fn)
	}
	r.mu.Unlock()

	for _, fn := range observers {
		r.deliver(fn, state)
	}
}

func (r *observerRegistry) deliver(fn func(State), state State) {
	defer func() {
		if rec := recover(); rec != nil && r.logger != nil {
			r.logger.WithField("module", "syncer/status.go").
				Errorf("status observer panicked: %v", rec)
		}
	}()
	fn(state)
}
