package health

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/akarakonline-arch/hggzk-sub012/config"
)

// Status of one backing component.
type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

type Report struct {
	Status     Status            `json:"status"`
	Components map[string]Status `json:"components"`
}

// Check pings the authoritative store and the index backing store. The
// overall status is down only when the authoritative store is down: a dead
// index store degrades search, it does not take the service down.
func Check(ctx context.Context) Report {
	report := Report{Status: StatusUp, Components: map[string]Status{}}

	report.Components["database"] = StatusDown
	if db := config.GetDB(); db != nil {
		if sqlDB, err := db.DB(); err == nil {
			if err := sqlDB.PingContext(ctx); err == nil {
				report.Components["database"] = StatusUp
			}
		}
	}

	report.Components["index_store"] = StatusDown
	if rdb := config.GetRedisDB(); rdb != nil {
		if err := rdb.Ping(ctx).Err(); err == nil {
			report.Components["index_store"] = StatusUp
		}
	}

	if report.Components["database"] == StatusDown {
		report.Status = StatusDown
	}
	return report
}

// IndexStoreUp is the cheap gate the search engine consults before deciding
// whether to fall back to the authoritative store.
func IndexStoreUp(ctx context.Context) bool {
	rdb := config.GetRedisDB()
	if rdb == nil {
		return false
	}
	return rdb.Ping(ctx).Err() == nil
}

// Metrics aggregates throughput and error-rate counters. Rates are computed
// over the process lifetime; the consumer decides what to do with them.
type Metrics struct {
	startedAt time.Time

	searches     atomic.Int64
	searchErrors atomic.Int64
	searchNanos  atomic.Int64

	indexWrites atomic.Int64
	indexErrors atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{startedAt: time.Now()}
}

var defaultMetrics = NewMetrics()

func Default() *Metrics {
	return defaultMetrics
}

func (m *Metrics) RecordSearch(d time.Duration, err error) {
	m.searches.Add(1)
	m.searchNanos.Add(int64(d))
	if err != nil {
		m.searchErrors.Add(1)
	}
}

func (m *Metrics) RecordIndexWrite(err error) {
	m.indexWrites.Add(1)
	if err != nil {
		m.indexErrors.Add(1)
	}
}

type PerformanceMetrics struct {
	IndexingRate      float64 `json:"indexingRate"`
	SearchRate        float64 `json:"searchRate"`
	ErrorRate         float64 `json:"errorRate"`
	AvgResponseTimeMs float64 `json:"avgResponseTimeMs"`
}

func (m *Metrics) Snapshot() PerformanceMetrics {
	elapsed := time.Since(m.startedAt).Seconds()
	if elapsed <= 0 {
		elapsed = 1
	}
	searches := m.searches.Load()
	writes := m.indexWrites.Load()
	errs := m.searchErrors.Load() + m.indexErrors.Load()

	var avgMs float64
	if searches > 0 {
		avgMs = float64(m.searchNanos.Load()) / float64(searches) / float64(time.Millisecond)
	}
	var errRate float64
	if total := searches + writes; total > 0 {
		errRate = float64(errs) / float64(total)
	}
	return PerformanceMetrics{
		IndexingRate:      float64(writes) / elapsed,
		SearchRate:        float64(searches) / elapsed,
		ErrorRate:         errRate,
		AvgResponseTimeMs: avgMs,
	}
}
