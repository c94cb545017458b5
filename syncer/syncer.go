// Package syncer reconciles the Local Store against the central store:
// dirty records go up, remote changes come down, and document numbers are
// assigned exactly once on the way up.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/printflowhq/printshop_backend/config"
	"github.com/printflowhq/printshop_backend/connectivity"
	"github.com/printflowhq/printshop_backend/localstore"
	"github.com/printflowhq/printshop_backend/models"
	"github.com/printflowhq/printshop_backend/remote"
)

// lockTTL bounds how long a crashed instance can hold the cross-instance
// reconciliation lock.
const lockTTL = 5 * time.Minute

// AccountingForwarder mirrors freshly uploaded invoices into the external
// accounting system. Forwarding is best effort: a failure is logged and
// never fails the sync pass.
type AccountingForwarder interface {
	IssueInvoice(ctx context.Context, inv models.Invoice) error
}

type Syncer struct {
	shopId     string
	store      localstore.Store
	remote     remote.Store
	monitor    *connectivity.Monitor
	recorder   RunRecorder
	locker     *redislock.Client
	accounting AccountingForwarder
	logger     *logrus.Logger

	inFlight  atomic.Bool
	observers *observerRegistry
	tracer    trace.Tracer

	stateMu   sync.Mutex
	lastState State
}

func NewSyncer(shopId string, store localstore.Store, remoteStore remote.Store, monitor *connectivity.Monitor, recorder RunRecorder, logger *logrus.Logger) *Syncer {
	if recorder == nil {
		recorder = &MemoryRunRecorder{}
	}
	return &Syncer{
		shopId:    shopId,
		store:     store,
		remote:    remoteStore,
		monitor:   monitor,
		recorder:  recorder,
		logger:    logger,
		observers: newObserverRegistry(logger),
		tracer:    otel.Tracer("printshop-sync"),
		lastState: State{Status: StatusIdle},
	}
}

// SetLocker enables the best-effort cross-instance lock. Reliability does
// not depend on Redis: the in-process single-flight guard alone is enough
// for one instance, the redislock only stops two instances of the same
// shop from uploading at once.
func (s *Syncer) SetLocker(locker *redislock.Client) {
	s.locker = locker
}

// SetAccounting enables invoice forwarding to the accounting integration.
func (s *Syncer) SetAccounting(fwd AccountingForwarder) {
	s.accounting = fwd
}

func (s *Syncer) Subscribe(fn func(State)) int { return s.observers.subscribe(fn) }
func (s *Syncer) Unsubscribe(id int)           { s.observers.unsubscribe(id) }

func (s *Syncer) setState(state State) {
	s.stateMu.Lock()
	s.lastState = state
	s.stateMu.Unlock()
	s.observers.broadcast(state)
}

// LastState returns the most recently broadcast pass state.
func (s *Syncer) LastState() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.lastState
}

// StatusSnapshot is the aggregate surface the UI polls: online flag, last
// pass state, and the current pending count.
func (s *Syncer) StatusSnapshot(ctx context.Context) Snapshot {
	online := false
	if s.monitor != nil {
		online = s.monitor.IsOnline()
	}
	return Snapshot{
		Online:       online,
		SyncStatus:   s.LastState(),
		PendingCount: s.store.GetAllPendingSync(ctx).Total,
	}
}

// SyncToRemote runs one upload pass. Overlapping callers get a "busy"
// result without touching the store; offline callers get an "offline"
// result with no partial work.
func (s *Syncer) SyncToRemote(ctx context.Context, triggeredBy string) Result {
	if !s.inFlight.CompareAndSwap(false, true) {
		return Result{Success: false, Reason: ReasonBusy}
	}
	defer s.inFlight.Store(false)
	return s.uploadPass(ctx, triggeredBy)
}

// FullSync is upload then download under one single-flight guard. Either
// half failing is surfaced without blocking the other from running.
func (s *Syncer) FullSync(ctx context.Context, triggeredBy string) (Result, DownloadResult) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return Result{Success: false, Reason: ReasonBusy}, DownloadResult{Success: false}
	}
	defer s.inFlight.Store(false)

	up := s.uploadPass(ctx, triggeredBy)
	if up.Reason == ReasonOffline {
		// No point fetching either; the transport is down.
		return up, DownloadResult{Success: false, Errors: []RecordError{{Message: "offline"}}}
	}
	down := s.SyncFromRemote(ctx, time.Time{})
	return up, down
}

func (s *Syncer) uploadPass(ctx context.Context, triggeredBy string) (result Result) {
	ctx, span := s.tracer.Start(ctx, "syncer.upload")
	defer span.End()

	if s.monitor != nil && !s.monitor.IsOnline() {
		return Result{Success: false, Reason: ReasonOffline}
	}

	// Best-effort cross-instance lock.
	if s.locker != nil {
		lock, err := s.locker.Obtain(ctx, "sync:"+s.shopId, lockTTL, nil)
		if err == nil {
			defer func() { _ = lock.Release(ctx) }()
		} else if errors.Is(err, redislock.ErrNotObtained) {
			return Result{Success: false, Reason: ReasonBusy}
		} else if s.logger != nil {
			config.LogError(s.logger, "syncer/syncer.go", "uploadPass", "redislock unavailable, proceeding", nil, err)
		}
	}

	startedAt := time.Now()
	runId := s.recorder.Begin(ctx, s.shopId, triggeredBy)

	// The store itself faulting, or a programming fault below, must still
	// surface an error status and release the single-flight guard (handled
	// by the callers' defers).
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("sync pass panicked: %v", r)
			if s.logger != nil {
				config.LogError(s.logger, "syncer/syncer.go", "uploadPass", "panic", nil, errors.New(msg))
			}
			result = Result{Success: false, Errors: []RecordError{{Message: msg}}}
			s.setState(State{Status: StatusError, Errors: result.Errors})
			s.recorder.Finish(ctx, runId, models.SyncRunStatusFailed, 0, 0, 1, startedAt)
		}
	}()

	pending := s.store.GetAllPendingSync(ctx)
	queued, err := s.store.PendingQueueEntries(ctx)
	if err != nil {
		queued = nil
	}
	total := pending.Total + len(queued)

	if total == 0 {
		// Nothing dirty is a successful pass, not an error.
		s.recordLastSync(ctx, startedAt)
		s.setState(State{Status: StatusCompleted, Progress: 100})
		s.recorder.Finish(ctx, runId, models.SyncRunStatusSuccess, 0, total, 0, startedAt)
		return Result{Success: true, Total: 0}
	}

	state := State{Status: StatusSyncing, Total: total, Errors: []RecordError{}}
	s.setState(state)

	// Progress counts records that actually made it up, so a pass with
	// failures ends below 100% rather than masking them.
	for _, rec := range pending.All() {
		env := rec.Envelope()
		if err := s.uploadRecord(ctx, rec); err != nil {
			recErr := RecordError{EntityType: rec.Kind, RecordId: env.ID, Message: err.Error()}
			state.Errors = append(state.Errors, recErr)
			s.recorder.RecordError(ctx, runId, s.shopId, recErr, true)
			if s.logger != nil {
				config.LogError(s.logger, "syncer/syncer.go", "uploadRecord", string(rec.Kind), env.ID, err)
			}
		} else {
			state.Synced++
		}
		state.Progress = state.Synced * 100 / total
		s.setState(state)
	}

	for _, entry := range queued {
		if err := s.drainQueueEntry(ctx, entry); err != nil {
			recErr := RecordError{EntityType: entry.Kind, RecordId: entry.RecordId, Message: err.Error()}
			state.Errors = append(state.Errors, recErr)
			s.recorder.RecordError(ctx, runId, s.shopId, recErr, true)
		} else {
			state.Synced++
		}
		state.Progress = state.Synced * 100 / total
		s.setState(state)
	}

	s.recordLastSync(ctx, startedAt)

	runStatus := models.SyncRunStatusSuccess
	if len(state.Errors) > 0 && state.Synced == 0 {
		runStatus = models.SyncRunStatusFailed
	} else if len(state.Errors) > 0 {
		runStatus = models.SyncRunStatusPartial
	}
	s.recorder.Finish(ctx, runId, runStatus, state.Synced, total, len(state.Errors), startedAt)

	terminal := state
	terminal.Status = StatusCompleted
	if runStatus == models.SyncRunStatusFailed {
		terminal.Status = StatusError
	}
	s.setState(terminal)

	return Result{
		Success: len(state.Errors) == 0,
		Synced:  state.Synced,
		Total:   total,
		Errors:  state.Errors,
	}
}

// uploadRecord pushes one dirty record. The remote existence check must
// happen before any sequence assignment so a number is never requested
// twice for the same id.
func (s *Syncer) uploadRecord(ctx context.Context, rec models.Record) error {
	env := rec.Envelope()
	if env == nil || env.ID == "" {
		return errors.New("record has no id")
	}

	existing, err := s.remote.SelectByID(ctx, rec.Kind, env.ID)
	now := time.Now()

	switch {
	case err == nil:
		// Known remotely: update in place. The remote document number is
		// preserved by the update itself (the column is excluded), and
		// copied down if the local copy never learned it.
		rec.MarkSynced(now)
		if err := s.remote.UpdateByID(ctx, rec); err != nil {
			return err
		}
		if rec.DocumentNumber() == nil {
			if n := existing.DocumentNumber(); n != nil {
				rec.SetDocumentNumber(*n)
			}
		}
	case errors.Is(err, remote.ErrNotFound):
		// First successful upload: this is the one place a document
		// number is ever assigned.
		n, seqErr := s.remote.NextSequence(ctx, s.shopId, rec.Kind)
		if seqErr != nil {
			return seqErr
		}
		rec.SetDocumentNumber(n)
		rec.MarkSynced(now)
		if err := s.remote.Insert(ctx, rec); err != nil {
			return err
		}
		// First upload is the one moment to mirror an invoice into the
		// accounting system; updates never re-issue the document.
		if s.accounting != nil && rec.Kind == models.RecordKindInvoice && rec.Invoice != nil {
			if fwdErr := s.accounting.IssueInvoice(ctx, *rec.Invoice); fwdErr != nil && s.logger != nil {
				config.LogError(s.logger, "syncer/syncer.go", "uploadRecord", "accounting forward", env.ID, fwdErr)
			}
		}
	default:
		return err
	}

	// Only after the remote accepted it does the local copy flip to
	// synced. A write failure here propagates; retrying the upload of an
	// already-synced record is harmless (the existence check wins).
	return s.store.Put(ctx, rec)
}

func (s *Syncer) drainQueueEntry(ctx context.Context, entry models.SyncQueueEntry) error {
	var opErr error
	switch entry.Action {
	case models.SyncActionDelete:
		opErr = s.remote.DeleteByID(ctx, entry.Kind, entry.RecordId)
		if errors.Is(opErr, remote.ErrNotFound) {
			opErr = nil
		}
	case models.SyncActionCreate, models.SyncActionUpdate:
		rec, decErr := models.DecodeRecord(entry.Kind, entry.Payload)
		if decErr != nil {
			opErr = decErr
		} else if opErr = s.uploadRecord(ctx, rec); opErr != nil {
			// The retained snapshot carries the failure marker so an
			// inspector sees the entry's real state, not the original
			// pending one.
			rec.MarkFailed()
			if snap, mErr := rec.MarshalPayload(); mErr == nil {
				entry.Payload = snap
			}
		}
	default:
		opErr = fmt.Errorf("unsupported queue action %q", entry.Action)
	}

	if opErr != nil {
		entry.Attempts++
		entry.Status = models.SyncStatusFailed
		entry.LastError = opErr.Error()
		// The entry survives the failure; nothing is dropped.
		if putErr := s.store.PutQueueEntry(ctx, entry); putErr != nil && s.logger != nil {
			config.LogError(s.logger, "syncer/syncer.go", "drainQueueEntry", "requeue", entry.ID, putErr)
		}
		return opErr
	}
	return s.store.DeleteQueueEntry(ctx, entry.ID)
}

// SyncFromRemote mirrors remote changes since the given time into the
// Local Store. A zero since falls back to the last recorded sync, then to
// 24 hours ago for a store that has never synced.
func (s *Syncer) SyncFromRemote(ctx context.Context, since time.Time) DownloadResult {
	ctx, span := s.tracer.Start(ctx, "syncer.download")
	defer span.End()

	if since.IsZero() {
		since = s.lastSyncOrDefault(ctx)
	}

	preservePending := config.DownloadPreservesPendingEdits()
	result := DownloadResult{Success: true}

	for _, kind := range models.RecordKinds {
		rows, err := s.remote.FetchModifiedSince(ctx, s.shopId, kind, since)
		if err != nil {
			result.Success = false
			result.Errors = append(result.Errors, RecordError{EntityType: kind, Message: err.Error()})
			continue
		}
		for _, rec := range rows {
			env := rec.Envelope()
			if preservePending {
				if local, err := s.store.Get(ctx, kind.Collection(), env.ID); err == nil {
					if localEnv := local.Envelope(); localEnv != nil && localEnv.SyncStatus == models.SyncStatusPending {
						// A dirty local edit outranks a remote view that
						// predates its upload; it will win on the next
						// upload pass instead.
						continue
					}
				}
			}
			rec.MarkSynced(time.Now())
			if err := s.store.Put(ctx, rec); err != nil {
				result.Success = false
				result.Errors = append(result.Errors, RecordError{EntityType: kind, RecordId: env.ID, Message: err.Error()})
				continue
			}
			result.Downloaded++
		}
	}
	return result
}

func (s *Syncer) recordLastSync(ctx context.Context, at time.Time) {
	if err := s.store.SetMeta(ctx, localstore.MetaKeyLastSyncAt, at.UTC().Format(time.RFC3339Nano)); err != nil && s.logger != nil {
		config.LogError(s.logger, "syncer/syncer.go", "recordLastSync", "meta write", nil, err)
	}
}

func (s *Syncer) lastSyncOrDefault(ctx context.Context) time.Time {
	if v, ok, err := s.store.GetMeta(ctx, localstore.MetaKeyLastSyncAt); err == nil && ok {
		if t, perr := time.Parse(time.RFC3339Nano, v); perr == nil {
			return t
		}
	}
	return time.Now().Add(-24 * time.Hour)
}

// QueueDelete removes a record locally right away and queues the remote
// removal for the next pass. Deletion is the one mutation that cannot ride
// on the record's own sync_status.
func (s *Syncer) QueueDelete(ctx context.Context, kind models.RecordKind, recordId string) error {
	if err := s.store.Delete(ctx, kind.Collection(), recordId); err != nil {
		return err
	}
	return s.store.PutQueueEntry(ctx, models.NewDeleteQueueEntry(s.shopId, kind, recordId))
}
