package indexsync

import (
	"context"

	"gorm.io/gorm"

	"github.com/akarakonline-arch/hggzk-sub012/models"
)

// Rebuilder drives operator-triggered and scheduled rebuilds. Rebuilds go
// through the same worker path as event-driven updates so version and lock
// discipline is identical.
type Rebuilder struct {
	DB     *gorm.DB
	Worker *Worker
	Store  DocumentStore
}

func NewRebuilder(db *gorm.DB, worker *Worker) *Rebuilder {
	return &Rebuilder{DB: db, Worker: worker, Store: worker.Store}
}

func (r *Rebuilder) RebuildUnit(ctx context.Context, unitId uint) error {
	return r.Worker.SyncUnit(ctx, unitId, "rebuild")
}

func (r *Rebuilder) RebuildPropertyUnits(ctx context.Context, propertyId uint) error {
	ids, err := models.GetPropertyUnitIds(r.DB.WithContext(ctx), propertyId)
	if err != nil {
		return err
	}
	var firstErr error
	for _, id := range ids {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := r.Worker.SyncUnit(ctx, id, "rebuild"); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// RebuildAll walks every unit in id batches. Batching bounds memory and the
// write rate against the backing store; cancellation is honored between
// batches, never inside one, so no unit is left half-written.
func (r *Rebuilder) RebuildAll(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}
	var rebuilt int
	var lastId uint
	for {
		select {
		case <-ctx.Done():
			return rebuilt, ctx.Err()
		default:
		}

		var ids []uint
		err := r.DB.WithContext(ctx).Model(&models.Unit{}).
			Where("id > ?", lastId).
			Order("id ASC").
			Limit(batchSize).
			Pluck("id", &ids).Error
		if err != nil {
			return rebuilt, err
		}
		if len(ids) == 0 {
			return rebuilt, nil
		}
		for _, id := range ids {
			if err := r.Worker.SyncUnit(ctx, id, "rebuild-all"); err == nil {
				rebuilt++
			}
			lastId = id
		}
	}
}

// CleanupOrphans removes index documents whose source unit no longer exists
// (or is inactive). The member set is the ground truth of what the index
// currently holds.
func (r *Rebuilder) CleanupOrphans(ctx context.Context) (int, error) {
	indexed, err := r.Store.UnitIds(ctx)
	if err != nil {
		return 0, err
	}
	if len(indexed) == 0 {
		return 0, nil
	}

	var live []uint
	err = r.DB.WithContext(ctx).Model(&models.Unit{}).
		Where("id IN ?", indexed).
		Where("COALESCE(is_active, true) = true").
		Pluck("id", &live).Error
	if err != nil {
		return 0, err
	}
	liveSet := make(map[uint]struct{}, len(live))
	for _, id := range live {
		liveSet[id] = struct{}{}
	}

	removed := 0
	for _, id := range indexed {
		if _, ok := liveSet[id]; ok {
			continue
		}
		select {
		case <-ctx.Done():
			return removed, ctx.Err()
		default:
		}
		if err := r.Store.Delete(ctx, id); err != nil {
			return removed, err
		}
		_ = r.DB.WithContext(ctx).Where("unit_id = ?", id).Delete(&models.IndexSyncState{}).Error
		removed++
	}
	return removed, nil
}

// Statistics reports index size and sync-state counts, including units that
// exhausted their retries and need an operator rebuild.
func (r *Rebuilder) Statistics(ctx context.Context) (map[string]interface{}, error) {
	counts, err := models.CountSyncStates(r.DB.WithContext(ctx), r.Worker.MaxRetries)
	if err != nil {
		return nil, err
	}
	stats := map[string]interface{}{
		"sync_states": counts,
	}
	if ids, err := r.Store.UnitIds(ctx); err == nil {
		stats["indexed_documents"] = len(ids)
	} else {
		stats["indexed_documents"] = nil
		stats["index_store_error"] = err.Error()
	}
	return stats, nil
}
