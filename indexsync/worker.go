package indexsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/akarakonline-arch/hggzk-sub012/health"
	"github.com/akarakonline-arch/hggzk-sub012/models"
	"github.com/akarakonline-arch/hggzk-sub012/utils"
)

// Worker applies lifecycle events to the index store. Every event triggers a
// full recomputation of the unit document from authoritative state; redislock
// keeps at most one recomputation in flight per unit, and a concurrent event
// folds into the next sweep by marking the unit Stale instead of spawning a
// parallel write. Index writes are write-behind: a failure never propagates
// to the CRUD operation that emitted the event.
type Worker struct {
	DB       *gorm.DB
	Store    DocumentStore
	Locker   *redislock.Client
	Logger   *logrus.Logger
	Metrics  *health.Metrics
	WorkerID string

	MaxRetries     int
	InitialBackoff time.Duration
	LockTTL        time.Duration

	Now       func() time.Time
	BuildDoc  func(ctx context.Context, unitId uint, now time.Time) (*UnitSearchDocument, error)
	MarkStale func(ctx context.Context, unitId uint, eventId string, cause error) error
}

func NewWorker(db *gorm.DB, store DocumentStore, locker *redislock.Client, logger *logrus.Logger) *Worker {
	w := &Worker{
		DB:             db,
		Store:          store,
		Locker:         locker,
		Logger:         logger,
		Metrics:        health.Default(),
		WorkerID:       uuid.NewString(),
		MaxRetries:     10,
		InitialBackoff: 5 * time.Second,
		LockTTL:        30 * time.Second,
		Now:            time.Now,
	}
	w.BuildDoc = func(ctx context.Context, unitId uint, now time.Time) (*UnitSearchDocument, error) {
		return BuildUnitDocument(db.WithContext(ctx), unitId, now)
	}
	w.MarkStale = w.markStale
	return w
}

// HandleEvent processes one lifecycle event. The returned error is for
// logging and retry bookkeeping only; push handlers ack regardless.
func (w *Worker) HandleEvent(ctx context.Context, evt LifecycleEvent) error {
	if evt.Kind == "" {
		return utils.NewValidationError("kind", "missing event kind")
	}

	if evt.Kind.IsPropertyScoped() {
		if evt.PropertyID == 0 {
			return utils.NewValidationError("property_id", "missing property id")
		}
		ids, err := models.GetPropertyUnitIds(w.DB.WithContext(ctx), evt.PropertyID)
		if err != nil {
			return err
		}
		var firstErr error
		for _, id := range ids {
			if err := w.SyncUnit(ctx, id, evt.EventID); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	if evt.UnitID == 0 {
		return utils.NewValidationError("unit_id", "missing unit id")
	}
	if evt.Kind == EventUnitDeleted {
		return w.removeUnit(ctx, evt.UnitID)
	}
	return w.SyncUnit(ctx, evt.UnitID, evt.EventID)
}

// SyncUnit recomputes and writes one unit document under the per-unit lock.
func (w *Worker) SyncUnit(ctx context.Context, unitId uint, eventId string) error {
	if w.Locker != nil {
		lock, err := w.Locker.Obtain(ctx, unitLockKey(unitId), w.LockTTL, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			// A recomputation is already in flight; fold this event
			// into the next sweep.
			return w.MarkStale(ctx, unitId, eventId, nil)
		}
		if err != nil {
			// Lock backend unavailable. Record the pending work so the
			// sweeper retries it; push handlers ack regardless.
			w.recordWrite(err)
			_ = w.MarkStale(ctx, unitId, eventId, err)
			return err
		}
		defer func() { _ = lock.Release(context.WithoutCancel(ctx)) }()
	}
	return w.recompute(ctx, unitId, eventId)
}

func (w *Worker) recompute(ctx context.Context, unitId uint, eventId string) error {
	doc, err := w.BuildDoc(ctx, unitId, w.Now().UTC())
	if errors.Is(err, utils.ErrorRecordNotFound) {
		return w.removeUnit(ctx, unitId)
	}
	if err != nil {
		w.recordWrite(err)
		_ = w.MarkStale(ctx, unitId, eventId, err)
		return err
	}

	version, err := w.Store.NextVersion(ctx, unitId)
	if err != nil {
		w.recordWrite(err)
		_ = w.MarkStale(ctx, unitId, eventId, err)
		return err
	}
	doc.Version = version

	if err := w.Store.Put(ctx, doc); err != nil {
		if errors.Is(err, utils.ErrorStaleWrite) {
			// A newer document superseded this write; discard, do not retry.
			if w.Logger != nil {
				w.Logger.WithFields(logrus.Fields{
					"module":  "indexsync",
					"unit_id": unitId,
					"version": version,
				}).Warn("stale index write discarded")
			}
			w.recordWrite(nil)
			return nil
		}
		w.recordWrite(err)
		_ = w.MarkStale(ctx, unitId, eventId, err)
		return err
	}

	w.recordWrite(nil)
	return w.markIndexed(ctx, unitId, eventId)
}

func (w *Worker) removeUnit(ctx context.Context, unitId uint) error {
	if err := w.Store.Delete(ctx, unitId); err != nil {
		w.recordWrite(err)
		_ = w.MarkStale(ctx, unitId, "", err)
		return err
	}
	w.recordWrite(nil)
	if w.DB == nil {
		return nil
	}
	return w.DB.WithContext(ctx).Where("unit_id = ?", unitId).Delete(&models.IndexSyncState{}).Error
}

func (w *Worker) markIndexed(ctx context.Context, unitId uint, eventId string) error {
	if w.DB == nil {
		return nil
	}
	state := models.IndexSyncState{
		UnitID:             unitId,
		Status:             models.SyncStatusIndexed,
		LastEventProcessed: eventId,
	}
	return w.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "unit_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"status":               models.SyncStatusIndexed,
			"last_event_processed": eventId,
			"retry_count":          0,
			"next_attempt_at":      nil,
			"locked_at":            nil,
			"locked_by":            nil,
			"last_error":           nil,
		}),
	}).Create(&state).Error
}

func (w *Worker) markStale(ctx context.Context, unitId uint, eventId string, cause error) error {
	if w.DB == nil {
		return nil
	}
	now := w.Now().UTC()

	var existing models.IndexSyncState
	retry := 0
	err := w.DB.WithContext(ctx).Where("unit_id = ?", unitId).First(&existing).Error
	if err == nil {
		retry = existing.RetryCount
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	updates := map[string]interface{}{
		"status":          models.SyncStatusStale,
		"next_attempt_at": now.Add(w.backoff(retry + 1)),
		"retry_count":     retry + 1,
		"locked_at":       nil,
		"locked_by":       nil,
	}
	if eventId != "" {
		updates["last_event_processed"] = eventId
	}
	if cause != nil {
		msg := cause.Error()
		updates["last_error"] = &msg
	}
	state := models.IndexSyncState{
		UnitID:             unitId,
		Status:             models.SyncStatusStale,
		LastEventProcessed: eventId,
	}
	return w.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "unit_id"}},
		DoUpdates: clause.Assignments(updates),
	}).Create(&state).Error
}

func (w *Worker) backoff(attempt int) time.Duration {
	backoff := w.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff > 10*time.Minute {
			return 10 * time.Minute
		}
	}
	return backoff
}

func (w *Worker) recordWrite(err error) {
	if w.Metrics != nil {
		w.Metrics.RecordIndexWrite(err)
	}
}

func unitLockKey(unitId uint) string {
	return fmt.Sprintf("indexlock:unit:%d", unitId)
}
