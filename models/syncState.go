package models

import (
	"time"

	"gorm.io/gorm"
)

// IndexSyncState is the per-unit bookkeeping row behind the synchronizer's
// state machine: Pending -> Indexed -> Stale -> Rebuilding -> Indexed.
// The claim/backoff columns mirror the outbox pattern so the background
// sweeper can reclaim work from a crashed worker.
type IndexSyncState struct {
	UnitID    uint      `gorm:"primaryKey" json:"unitID"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Status             SyncStatus `gorm:"size:16;not null;default:'Pending';index" json:"status"`
	LastEventProcessed string     `gorm:"size:64" json:"lastEventProcessed"`
	RetryCount         int        `gorm:"default:0" json:"retryCount"`
	NextAttemptAt      *time.Time `gorm:"index" json:"nextAttemptAt,omitempty"`
	LockedAt           *time.Time `json:"lockedAt,omitempty"`
	LockedBy           *string    `gorm:"size:64" json:"lockedBy,omitempty"`
	LastError          *string    `gorm:"size:1024" json:"lastError,omitempty"`
}

// SyncStateCounts is the statistics projection for maintenance endpoints.
type SyncStateCounts struct {
	Pending    int64 `json:"pending"`
	Indexed    int64 `json:"indexed"`
	Stale      int64 `json:"stale"`
	Rebuilding int64 `json:"rebuilding"`
	// PerpetuallyStale units exhausted their retries and need an
	// operator-triggered rebuild.
	PerpetuallyStale int64 `json:"perpetuallyStale"`
}

func CountSyncStates(db *gorm.DB, maxRetries int) (*SyncStateCounts, error) {
	var counts SyncStateCounts
	type row struct {
		Status SyncStatus
		N      int64
	}
	var rows []row
	if err := db.Model(&IndexSyncState{}).
		Select("status, count(*) as n").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		switch r.Status {
		case SyncStatusPending:
			counts.Pending = r.N
		case SyncStatusIndexed:
			counts.Indexed = r.N
		case SyncStatusStale:
			counts.Stale = r.N
		case SyncStatusRebuilding:
			counts.Rebuilding = r.N
		}
	}
	if err := db.Model(&IndexSyncState{}).
		Where("status = ? AND retry_count >= ?", SyncStatusStale, maxRetries).
		Count(&counts.PerpetuallyStale).Error; err != nil {
		return nil, err
	}
	return &counts, nil
}
