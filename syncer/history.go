package syncer

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/printflowhq/printshop_backend/models"
)

// RunRecorder persists reconciliation-pass history. The gorm recorder
// writes the same rows the /api/sync/history surface reads; the memory
// recorder backs tests and DB-less deployments. Recording is best-effort:
// a history write failure never fails the pass itself.
type RunRecorder interface {
	Begin(ctx context.Context, shopId string, triggeredBy string) uint
	RecordError(ctx context.Context, runId uint, shopId string, recErr RecordError, retryable bool)
	Finish(ctx context.Context, runId uint, status string, synced int, total int, errorCount int, startedAt time.Time)
}

type GormRunRecorder struct {
	DB *gorm.DB
}

func (r *GormRunRecorder) Begin(ctx context.Context, shopId string, triggeredBy string) uint {
	if r.DB == nil {
		return 0
	}
	now := time.Now()
	run := models.SyncRun{
		ShopId:      shopId,
		Status:      models.SyncRunStatusRunning,
		TriggeredBy: triggeredBy,
		StartedAt:   &now,
	}
	if err := r.DB.WithContext(ctx).Create(&run).Error; err != nil {
		return 0
	}
	return run.ID
}

func (r *GormRunRecorder) RecordError(ctx context.Context, runId uint, shopId string, recErr RecordError, retryable bool) {
	if r.DB == nil || runId == 0 {
		return
	}
	_ = r.DB.WithContext(ctx).Create(&models.SyncRunError{
		SyncRunId:  runId,
		ShopId:     shopId,
		EntityType: string(recErr.EntityType),
		RecordId:   recErr.RecordId,
		ErrorCode:  "sync_failed",
		Message:    recErr.Message,
		Retryable:  retryable,
	}).Error
}

func (r *GormRunRecorder) Finish(ctx context.Context, runId uint, status string, synced int, total int, errorCount int, startedAt time.Time) {
	if r.DB == nil || runId == 0 {
		return
	}
	finishedAt := time.Now()
	_ = r.DB.WithContext(ctx).Model(&models.SyncRun{}).
		Where("id = ?", runId).
		Updates(map[string]interface{}{
			"status":         status,
			"records_synced": synced,
			"records_total":  total,
			"error_count":    errorCount,
			"finished_at":    finishedAt,
			"duration_ms":    finishedAt.Sub(startedAt).Milliseconds(),
		}).Error
}

type MemoryRunRecorder struct {
	mu     sync.Mutex
	nextID uint
	Runs   []models.SyncRun
	Errors []models.SyncRunError
}

func (r *MemoryRunRecorder) Begin(ctx context.Context, shopId string, triggeredBy string) uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	now := time.Now()
	r.Runs = append(r.Runs, models.SyncRun{
		ID:          r.nextID,
		ShopId:      shopId,
		Status:      models.SyncRunStatusRunning,
		TriggeredBy: triggeredBy,
		StartedAt:   &now,
	})
	return r.nextID
}

func (r *MemoryRunRecorder) RecordError(ctx context.Context, runId uint, shopId string, recErr RecordError, retryable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, models.SyncRunError{
		SyncRunId:  runId,
		ShopId:     shopId,
		EntityType: string(recErr.EntityType),
		RecordId:   recErr.RecordId,
		Message:    recErr.Message,
		Retryable:  retryable,
	})
}

func (r *MemoryRunRecorder) Finish(ctx context.Context, runId uint, status string, synced int, total int, errorCount int, startedAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.Runs {
		if r.Runs[i].ID == runId {
			finishedAt := time.Now()
			r.Runs[i].Status = status
			r.Runs[i].RecordsSynced = synced
			r.Runs[i].RecordsTotal = total
			r.Runs[i].ErrorCount = errorCount
			r.Runs[i].FinishedAt = &finishedAt
			r.Runs[i].DurationMs = finishedAt.Sub(startedAt).Milliseconds()
			return
		}
	}
}
