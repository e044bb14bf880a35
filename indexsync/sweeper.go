package indexsync

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/akarakonline-arch/hggzk-sub012/models"
)

// Sweeper is the background retry loop for Stale and Pending units. It claims
// a batch under SKIP LOCKED, recomputes each unit through the worker and
// reschedules failures with exponential backoff. Units that exhaust
// MaxRetries are left alone and show up in statistics as perpetually stale
// until an operator triggers a rebuild.
type Sweeper struct {
	DB     *gorm.DB
	Worker *Worker
	Logger *logrus.Logger

	BatchSize    int
	PollInterval time.Duration
	LockTimeout  time.Duration
	MaxRetries   int
}

func NewSweeper(db *gorm.DB, worker *Worker, logger *logrus.Logger) *Sweeper {
	return &Sweeper{
		DB:           db,
		Worker:       worker,
		Logger:       logger,
		BatchSize:    50,
		PollInterval: 2 * time.Second,
		LockTimeout:  60 * time.Second,
		MaxRetries:   worker.MaxRetries,
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.sweepOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.PollInterval):
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	db := s.DB
	if db == nil {
		return
	}
	now := time.Now().UTC()
	staleBefore := now.Add(-s.LockTimeout)

	var claimed []models.IndexSyncState
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Eligible:
		// - Pending / Stale under the retry cap and ready to retry
		// - Rebuilding but the claim is stale (worker crashed mid-write)
		q := tx.
			Where(`
				(
					status IN ? AND retry_count < ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
				)
				OR
				(
					status = ? AND locked_at IS NOT NULL AND locked_at <= ?
				)
			`, []models.SyncStatus{models.SyncStatusPending, models.SyncStatusStale}, s.MaxRetries, now,
				models.SyncStatusRebuilding, staleBefore).
			Order("unit_id ASC").
			Limit(s.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}
		for i := range claimed {
			claimed[i].Status = models.SyncStatusRebuilding
			claimed[i].LockedAt = &now
			claimed[i].LockedBy = &s.Worker.WorkerID
			if err := tx.Model(&models.IndexSyncState{}).
				Where("unit_id = ?", claimed[i].UnitID).
				Updates(map[string]interface{}{
					"status":    models.SyncStatusRebuilding,
					"locked_at": &now,
					"locked_by": &s.Worker.WorkerID,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if s.Logger != nil {
			s.Logger.WithFields(logrus.Fields{
				"module": "indexsync",
				"step":   "claim",
			}).Error("sweep claim failed: " + err.Error())
		}
		return
	}

	for _, state := range claimed {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := s.Worker.SyncUnit(ctx, state.UnitID, state.LastEventProcessed); err != nil {
			if s.Logger != nil {
				s.Logger.WithFields(logrus.Fields{
					"module":      "indexsync",
					"unit_id":     state.UnitID,
					"retry_count": state.RetryCount,
				}).Error("sweep recompute failed: " + err.Error())
			}
		}
	}
}
