package indexsync

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/akarakonline-arch/hggzk-sub012/utils"
)

// DocumentStore is the index backing store contract. The redis implementation
// is the production one; tests substitute an in-memory fake.
type DocumentStore interface {
	// NextVersion allocates a monotonically increasing version for a unit.
	NextVersion(ctx context.Context, unitId uint) (int64, error)
	// Put writes the document atomically (doc + member set + geo entry).
	// A write carrying a version lower than or equal to the stored one
	// returns utils.ErrorStaleWrite and leaves the newer document intact.
	Put(ctx context.Context, doc *UnitSearchDocument) error
	Get(ctx context.Context, unitId uint) (*UnitSearchDocument, error)
	GetMany(ctx context.Context, unitIds []uint) ([]*UnitSearchDocument, error)
	Delete(ctx context.Context, unitId uint) error
	UnitIds(ctx context.Context) ([]uint, error)
	// GeoSearch returns unit ids within radiusKm of the center.
	GeoSearch(ctx context.Context, lat, lng, radiusKm float64) ([]uint, error)
	Ping(ctx context.Context) error
}

const (
	docKeyPrefix = "unitdoc:"
	memberSetKey = "unitdoc:ids"
	geoSetKey    = "unitdoc:geo"
	versionKey   = "unitdoc:ver:"
)

// putScript compares versions and writes doc, member set and geo entry in one
// atomic step, so a failed write never leaves a partial document behind.
var putScript = redis.NewScript(`
local stored = tonumber(redis.call('HGET', KEYS[1], 'version') or '0')
local next = tonumber(ARGV[1])
if next <= stored then
	return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'doc', ARGV[2])
redis.call('SADD', KEYS[2], ARGV[3])
redis.call('GEOADD', KEYS[3], ARGV[4], ARGV[5], ARGV[3])
return 1
`)

type redisDocumentStore struct {
	rdb *redis.Client
}

func NewRedisDocumentStore(rdb *redis.Client) DocumentStore {
	return &redisDocumentStore{rdb: rdb}
}

func docKey(unitId uint) string {
	return docKeyPrefix + strconv.FormatUint(uint64(unitId), 10)
}

func (s *redisDocumentStore) NextVersion(ctx context.Context, unitId uint) (int64, error) {
	if s.rdb == nil {
		return 0, utils.ErrorIndexUnavailable
	}
	return s.rdb.Incr(ctx, versionKey+strconv.FormatUint(uint64(unitId), 10)).Result()
}

func (s *redisDocumentStore) Put(ctx context.Context, doc *UnitSearchDocument) error {
	if s.rdb == nil {
		return utils.ErrorIndexUnavailable
	}
	doc.LastIndexedAt = time.Now().UTC()
	payload, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	member := strconv.FormatUint(uint64(doc.UnitID), 10)
	ok, err := putScript.Run(ctx, s.rdb,
		[]string{docKey(doc.UnitID), memberSetKey, geoSetKey},
		doc.Version, payload, member, doc.Lng, doc.Lat,
	).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return utils.ErrorStaleWrite
	}
	return nil
}

func (s *redisDocumentStore) Get(ctx context.Context, unitId uint) (*UnitSearchDocument, error) {
	if s.rdb == nil {
		return nil, utils.ErrorIndexUnavailable
	}
	val, err := s.rdb.HGet(ctx, docKey(unitId), "doc").Result()
	if err != nil {
		if err == redis.Nil {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	var doc UnitSearchDocument
	if err := json.Unmarshal([]byte(val), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *redisDocumentStore) GetMany(ctx context.Context, unitIds []uint) ([]*UnitSearchDocument, error) {
	if s.rdb == nil {
		return nil, utils.ErrorIndexUnavailable
	}
	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.StringCmd, 0, len(unitIds))
	for _, id := range unitIds {
		cmds = append(cmds, pipe.HGet(ctx, docKey(id), "doc"))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}
	docs := make([]*UnitSearchDocument, 0, len(unitIds))
	for _, cmd := range cmds {
		val, err := cmd.Result()
		if err != nil {
			// Removed between listing and fetch: skip, the member set
			// catches up on the next write or orphan sweep.
			continue
		}
		var doc UnitSearchDocument
		if err := json.Unmarshal([]byte(val), &doc); err != nil {
			continue
		}
		docs = append(docs, &doc)
	}
	return docs, nil
}

func (s *redisDocumentStore) Delete(ctx context.Context, unitId uint) error {
	if s.rdb == nil {
		return utils.ErrorIndexUnavailable
	}
	member := strconv.FormatUint(uint64(unitId), 10)
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, docKey(unitId))
	pipe.SRem(ctx, memberSetKey, member)
	pipe.ZRem(ctx, geoSetKey, member)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisDocumentStore) UnitIds(ctx context.Context) ([]uint, error) {
	if s.rdb == nil {
		return nil, utils.ErrorIndexUnavailable
	}
	members, err := s.rdb.SMembers(ctx, memberSetKey).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}

func (s *redisDocumentStore) GeoSearch(ctx context.Context, lat, lng, radiusKm float64) ([]uint, error) {
	if s.rdb == nil {
		return nil, utils.ErrorIndexUnavailable
	}
	members, err := s.rdb.GeoSearch(ctx, geoSetKey, &redis.GeoSearchQuery{
		Longitude:  lng,
		Latitude:   lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
	}).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}

func (s *redisDocumentStore) Ping(ctx context.Context) error {
	if s.rdb == nil {
		return utils.ErrorIndexUnavailable
	}
	return s.rdb.Ping(ctx).Err()
}
