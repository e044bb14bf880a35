package indexsync

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/akarakonline-arch/hggzk-sub012/models"
	"github.com/akarakonline-arch/hggzk-sub012/utils"
)

// memoryStore is an in-memory DocumentStore with the same version discipline
// as the redis one.
type memoryStore struct {
	mu       sync.Mutex
	docs     map[uint]*UnitSearchDocument
	versions map[uint]int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{docs: map[uint]*UnitSearchDocument{}, versions: map[uint]int64{}}
}

func (s *memoryStore) NextVersion(_ context.Context, unitId uint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[unitId]++
	return s.versions[unitId], nil
}

func (s *memoryStore) Put(_ context.Context, doc *UnitSearchDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stored, ok := s.docs[doc.UnitID]; ok && doc.Version <= stored.Version {
		return utils.ErrorStaleWrite
	}
	doc.LastIndexedAt = time.Now().UTC()
	cp := *doc
	s.docs[doc.UnitID] = &cp
	return nil
}

func (s *memoryStore) Get(_ context.Context, unitId uint) (*UnitSearchDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[unitId]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	cp := *doc
	return &cp, nil
}

func (s *memoryStore) GetMany(ctx context.Context, unitIds []uint) ([]*UnitSearchDocument, error) {
	var out []*UnitSearchDocument
	for _, id := range unitIds {
		if doc, err := s.Get(ctx, id); err == nil {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (s *memoryStore) Delete(_ context.Context, unitId uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, unitId)
	return nil
}

func (s *memoryStore) UnitIds(_ context.Context) ([]uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *memoryStore) GeoSearch(ctx context.Context, _, _, _ float64) ([]uint, error) {
	return s.UnitIds(ctx)
}

func (s *memoryStore) Ping(_ context.Context) error { return nil }

func testDoc(unitId uint) *UnitSearchDocument {
	return &UnitSearchDocument{
		UnitID:         unitId,
		PropertyID:     1,
		UnitName:       "Sea View Room",
		PropertyName:   "Harbor House",
		City:           "Aden",
		Country:        "Yemen",
		UnitType:       models.UnitTypeEntirePlace,
		MaxGuests:      2,
		BasePrice:      decimal.NewFromInt(100),
		EffectivePrice: decimal.NewFromInt(100),
		Currency:       "YER",
	}
}

func testWorker(store DocumentStore, build func(ctx context.Context, unitId uint, now time.Time) (*UnitSearchDocument, error)) *Worker {
	w := NewWorker(nil, store, nil, nil)
	w.BuildDoc = build
	return w
}

func TestSyncUnitWritesVersionedDocument(t *testing.T) {
	store := newMemoryStore()
	w := testWorker(store, func(_ context.Context, unitId uint, _ time.Time) (*UnitSearchDocument, error) {
		return testDoc(unitId), nil
	})

	if err := w.SyncUnit(context.Background(), 42, "evt-1"); err != nil {
		t.Fatalf("SyncUnit: %v", err)
	}
	doc, err := store.Get(context.Background(), 42)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.Version != 1 {
		t.Fatalf("Version = %d, want 1", doc.Version)
	}

	if err := w.SyncUnit(context.Background(), 42, "evt-2"); err != nil {
		t.Fatalf("second SyncUnit: %v", err)
	}
	doc2, _ := store.Get(context.Background(), 42)
	if doc2.Version != 2 {
		t.Fatalf("Version after resync = %d, want 2", doc2.Version)
	}
}

func TestResyncFromUnchangedStateIsIdempotent(t *testing.T) {
	store := newMemoryStore()
	w := testWorker(store, func(_ context.Context, unitId uint, _ time.Time) (*UnitSearchDocument, error) {
		return testDoc(unitId), nil
	})

	if err := w.SyncUnit(context.Background(), 42, "evt-1"); err != nil {
		t.Fatalf("SyncUnit: %v", err)
	}
	first, _ := store.Get(context.Background(), 42)

	// Redelivered event: same authoritative state, recomputed again.
	if err := w.SyncUnit(context.Background(), 42, "evt-1"); err != nil {
		t.Fatalf("redelivered SyncUnit: %v", err)
	}
	second, _ := store.Get(context.Background(), 42)

	a, err := first.CanonicalBytes()
	if err != nil {
		t.Fatal(err)
	}
	b, err := second.CanonicalBytes()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("recomputed document differs:\n%s\n%s", a, b)
	}
	if second.Version <= first.Version {
		t.Fatalf("version must still advance: %d then %d", first.Version, second.Version)
	}
}

func TestStaleWriteIsDiscardedNotRetried(t *testing.T) {
	store := newMemoryStore()
	w := testWorker(store, func(_ context.Context, unitId uint, _ time.Time) (*UnitSearchDocument, error) {
		return testDoc(unitId), nil
	})

	// A newer writer already put version 5.
	newer := testDoc(42)
	newer.Version = 5
	if err := store.Put(context.Background(), newer); err != nil {
		t.Fatal(err)
	}

	// This worker allocates version 1 and loses the race. That is success,
	// not an error: the newer document stays.
	if err := w.SyncUnit(context.Background(), 42, "evt-late"); err != nil {
		t.Fatalf("stale write must be swallowed, got %v", err)
	}
	doc, _ := store.Get(context.Background(), 42)
	if doc.Version != 5 {
		t.Fatalf("stored version = %d, want the newer 5", doc.Version)
	}
}

// failingScripter stands in for a redis backend that is down: every script
// call fails with the same error.
type failingScripter struct{ err error }

func (f failingScripter) Eval(ctx context.Context, _ string, _ []string, _ ...interface{}) *redis.Cmd {
	cmd := redis.NewCmd(ctx)
	cmd.SetErr(f.err)
	return cmd
}

func (f failingScripter) EvalSha(ctx context.Context, _ string, _ []string, _ ...interface{}) *redis.Cmd {
	return f.Eval(ctx, "", nil)
}

func (f failingScripter) EvalRO(ctx context.Context, _ string, _ []string, _ ...interface{}) *redis.Cmd {
	return f.Eval(ctx, "", nil)
}

func (f failingScripter) EvalShaRO(ctx context.Context, _ string, _ []string, _ ...interface{}) *redis.Cmd {
	return f.Eval(ctx, "", nil)
}

func (f failingScripter) ScriptExists(ctx context.Context, _ ...string) *redis.BoolSliceCmd {
	cmd := redis.NewBoolSliceCmd(ctx)
	cmd.SetErr(f.err)
	return cmd
}

func (f failingScripter) ScriptLoad(ctx context.Context, _ string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	cmd.SetErr(f.err)
	return cmd
}

func TestLockBackendFailureMarksStale(t *testing.T) {
	store := newMemoryStore()
	w := testWorker(store, func(_ context.Context, unitId uint, _ time.Time) (*UnitSearchDocument, error) {
		return testDoc(unitId), nil
	})
	w.Locker = redislock.New(failingScripter{err: errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")})

	var staleUnit uint
	var staleCause error
	w.MarkStale = func(_ context.Context, unitId uint, _ string, cause error) error {
		staleUnit = unitId
		staleCause = cause
		return nil
	}

	if err := w.SyncUnit(context.Background(), 42, "evt-1"); err == nil {
		t.Fatal("lock backend failure must surface an error")
	}
	if staleUnit != 42 {
		t.Fatalf("unit must be recorded for the sweeper, marked %d", staleUnit)
	}
	if staleCause == nil {
		t.Fatal("stale mark must carry the failure cause")
	}
	if _, err := store.Get(context.Background(), 42); !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("nothing may be written without the lock: %v", err)
	}
}

func TestDeletedUnitIsRemovedFromIndex(t *testing.T) {
	store := newMemoryStore()
	w := testWorker(store, func(_ context.Context, unitId uint, _ time.Time) (*UnitSearchDocument, error) {
		return nil, utils.ErrorRecordNotFound
	})
	seed := testDoc(42)
	seed.Version = 1
	if err := store.Put(context.Background(), seed); err != nil {
		t.Fatal(err)
	}

	if err := w.SyncUnit(context.Background(), 42, "evt-del"); err != nil {
		t.Fatalf("SyncUnit: %v", err)
	}
	if _, err := store.Get(context.Background(), 42); err != utils.ErrorRecordNotFound {
		t.Fatalf("document still present after source vanished: %v", err)
	}
}

func TestHandleEventUnitDeleted(t *testing.T) {
	store := newMemoryStore()
	w := testWorker(store, func(_ context.Context, unitId uint, _ time.Time) (*UnitSearchDocument, error) {
		return testDoc(unitId), nil
	})
	if err := w.SyncUnit(context.Background(), 7, "evt-1"); err != nil {
		t.Fatal(err)
	}

	err := w.HandleEvent(context.Background(), LifecycleEvent{Kind: EventUnitDeleted, UnitID: 7})
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if ids, _ := store.UnitIds(context.Background()); len(ids) != 0 {
		t.Fatalf("index still lists %v", ids)
	}
}

func TestHandleEventRejectsMalformed(t *testing.T) {
	store := newMemoryStore()
	w := testWorker(store, func(_ context.Context, unitId uint, _ time.Time) (*UnitSearchDocument, error) {
		return testDoc(unitId), nil
	})

	if err := w.HandleEvent(context.Background(), LifecycleEvent{}); !utils.IsValidationError(err) {
		t.Fatalf("missing kind: %v", err)
	}
	err := w.HandleEvent(context.Background(), LifecycleEvent{Kind: EventUnitUpdated})
	if !utils.IsValidationError(err) {
		t.Fatalf("missing unit id: %v", err)
	}
}

func TestCanonicalBytesIgnoreWriteMetadata(t *testing.T) {
	a := testDoc(42)
	a.Version = 3
	a.LastIndexedAt = time.Now()
	b := testDoc(42)
	b.Version = 9

	ab, err := a.CanonicalBytes()
	if err != nil {
		t.Fatal(err)
	}
	bb, err := b.CanonicalBytes()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(ab, bb) {
		t.Fatalf("canonical bytes must not depend on version or indexing time:\n%s\n%s", ab, bb)
	}
}
