package search

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/akarakonline-arch/hggzk-sub012/health"
	"github.com/akarakonline-arch/hggzk-sub012/indexsync"
	"github.com/akarakonline-arch/hggzk-sub012/models"
)

var tracer = otel.Tracer("search-engine")

// Engine serves structured search against the index store, with a degraded
// direct-database path when the index backing store is unhealthy. The engine
// never writes the index.
type Engine struct {
	DB      *gorm.DB
	Store   indexsync.DocumentStore
	Logger  *logrus.Logger
	Metrics *health.Metrics

	// IndexUp gates the fallback decision; overridable in tests.
	IndexUp func(ctx context.Context) bool
}

func NewEngine(db *gorm.DB, store indexsync.DocumentStore, logger *logrus.Logger) *Engine {
	return &Engine{
		DB:      db,
		Store:   store,
		Logger:  logger,
		Metrics: health.Default(),
		IndexUp: health.IndexStoreUp,
	}
}

// SearchItem is one result with its soft-filter annotations. Weight is the
// additive mismatch severity used as a ranking tiebreaker.
type SearchItem struct {
	Document   *indexsync.UnitSearchDocument   `json:"document"`
	DistanceKm *float64                        `json:"distanceKm,omitempty"`
	Mismatches []models.PropertyFilterMismatch `json:"mismatches,omitempty"`
	Weight     int                             `json:"mismatchWeight"`
}

type SearchResult struct {
	Items      []SearchItem `json:"items"`
	TotalCount int          `json:"totalCount"`
	Page       models.Page  `json:"page"`
	// Degraded marks results served from the authoritative store with a
	// reduced feature set (no dynamic filters, no mismatch annotations).
	Degraded bool `json:"degraded"`
}

func (e *Engine) Search(ctx context.Context, req *SearchRequest) (res *SearchResult, err error) {
	ctx, span := tracer.Start(ctx, "Search")
	defer span.End()
	started := time.Now()
	defer func() {
		if e.Metrics != nil {
			e.Metrics.RecordSearch(time.Since(started), err)
		}
	}()

	if err = req.Validate(); err != nil {
		return nil, err
	}
	req.Page = req.Page.Normalized()

	if e.IndexUp != nil && !e.IndexUp(ctx) {
		return e.fallbackSearch(ctx, req)
	}

	var candidateIds []uint
	if req.Geo != nil {
		candidateIds, err = e.Store.GeoSearch(ctx, req.Geo.Lat, req.Geo.Lng, req.Geo.RadiusKm)
	} else {
		candidateIds, err = e.Store.UnitIds(ctx)
	}
	if err != nil {
		if e.Logger != nil {
			e.Logger.WithFields(logrus.Fields{"module": "search"}).Error("index query failed, degrading: " + err.Error())
		}
		return e.fallbackSearch(ctx, req)
	}

	docs, err := e.Store.GetMany(ctx, candidateIds)
	if err != nil {
		return e.fallbackSearch(ctx, req)
	}

	items := e.assemble(docs, req)
	sortItems(items, req.Sort)

	lo, hi := req.Page.Slice(len(items))
	return &SearchResult{
		Items:      items[lo:hi],
		TotalCount: len(items),
		Page:       req.Page,
	}, nil
}

// assemble runs the two passes: hard filters exclude, soft filters annotate.
func (e *Engine) assemble(docs []*indexsync.UnitSearchDocument, req *SearchRequest) []SearchItem {
	items := make([]SearchItem, 0, len(docs))
	for _, doc := range docs {
		if !matchesHardFilters(doc, req) {
			continue
		}
		item := SearchItem{Document: doc}
		if req.Geo != nil {
			d := HaversineKm(req.Geo.Lat, req.Geo.Lng, doc.Lat, doc.Lng)
			item.DistanceKm = &d
		}
		item.Mismatches = collectMismatches(doc, req)
		for _, m := range item.Mismatches {
			item.Weight += m.Severity.Weight()
		}
		items = append(items, item)
	}
	return items
}

// matchesHardFilters is the exclusion pass: text/location identity and the
// geo radius (already applied by the store query). Everything price- and
// capacity-shaped is soft so a narrow request cannot dead-end at zero
// results while near-matches exist.
func matchesHardFilters(doc *indexsync.UnitSearchDocument, req *SearchRequest) bool {
	if req.City != "" && !strings.EqualFold(doc.City, req.City) {
		return false
	}
	if req.Country != "" && !strings.EqualFold(doc.Country, req.Country) {
		return false
	}
	if req.Text != "" {
		t := strings.ToLower(req.Text)
		if !strings.Contains(strings.ToLower(doc.UnitName), t) &&
			!strings.Contains(strings.ToLower(doc.PropertyName), t) {
			return false
		}
	}
	return true
}

func collectMismatches(doc *indexsync.UnitSearchDocument, req *SearchRequest) []models.PropertyFilterMismatch {
	var out []models.PropertyFilterMismatch

	if m := priceMismatch(doc.EffectivePrice, req.MinPrice, req.MaxPrice); m != nil {
		out = append(out, *m)
	}
	if m := guestsMismatch(doc.MaxGuests, req.Guests); m != nil {
		out = append(out, *m)
	}
	if req.MinRating > 0 && doc.Rating < req.MinRating {
		out = append(out, models.PropertyFilterMismatch{
			FilterType: "rating",
			Requested:  fmt.Sprintf(">=%.1f", req.MinRating),
			Actual:     fmt.Sprintf("%.1f", doc.Rating),
			Severity:   models.MismatchMinor,
		})
	}
	out = append(out, amenityMismatches(doc.AmenityIds, req.AmenityIds)...)
	for _, f := range req.Dynamic {
		if m := dynamicMismatch(doc.DynamicFields, f); m != nil {
			out = append(out, *m)
		}
	}
	return out
}

// priceMismatch grades how far the effective price falls outside the
// requested band: within 10% Minor, within 25% Moderate, beyond that Major.
func priceMismatch(price decimal.Decimal, minPrice, maxPrice *decimal.Decimal) *models.PropertyFilterMismatch {
	var bound decimal.Decimal
	var over decimal.Decimal
	requested := ""
	switch {
	case maxPrice != nil && price.GreaterThan(*maxPrice):
		bound = *maxPrice
		over = price.Sub(*maxPrice)
		requested = "<=" + maxPrice.String()
	case minPrice != nil && price.LessThan(*minPrice):
		bound = *minPrice
		over = minPrice.Sub(price)
		requested = ">=" + minPrice.String()
	default:
		return nil
	}

	severity := models.MismatchMajor
	if bound.IsPositive() {
		ratio := over.Div(bound)
		switch {
		case ratio.LessThanOrEqual(decimal.NewFromFloat(0.10)):
			severity = models.MismatchMinor
		case ratio.LessThanOrEqual(decimal.NewFromFloat(0.25)):
			severity = models.MismatchModerate
		}
	}
	return &models.PropertyFilterMismatch{
		FilterType: "price",
		Requested:  requested,
		Actual:     price.String(),
		Severity:   severity,
	}
}

// guestsMismatch: one or two guests over capacity is Minor, more is
// Moderate. Requesting 5 guests against a 4-guest unit must not exclude it.
func guestsMismatch(maxGuests, requested int) *models.PropertyFilterMismatch {
	if requested <= 0 || requested <= maxGuests {
		return nil
	}
	severity := models.MismatchMinor
	if requested-maxGuests > 2 {
		severity = models.MismatchModerate
	}
	return &models.PropertyFilterMismatch{
		FilterType: "guests",
		Requested:  strconv.Itoa(requested),
		Actual:     strconv.Itoa(maxGuests),
		Severity:   severity,
	}
}

func amenityMismatches(have []uint, want []uint) []models.PropertyFilterMismatch {
	if len(want) == 0 {
		return nil
	}
	haveSet := make(map[uint]struct{}, len(have))
	for _, id := range have {
		haveSet[id] = struct{}{}
	}
	var out []models.PropertyFilterMismatch
	for _, id := range want {
		if _, ok := haveSet[id]; ok {
			continue
		}
		out = append(out, models.PropertyFilterMismatch{
			FilterType: "amenity",
			Requested:  strconv.FormatUint(uint64(id), 10),
			Actual:     "absent",
			Severity:   models.MismatchModerate,
		})
	}
	return out
}

func dynamicMismatch(values map[string]interface{}, f DynamicFieldFilter) *models.PropertyFilterMismatch {
	value, present := values[f.Field]
	ok := present && dynamicValueMatches(value, f)
	if ok {
		return nil
	}
	severity := models.MismatchModerate
	if f.Primary {
		severity = severity.Promote()
	}
	actual := "absent"
	if present {
		actual = fmt.Sprintf("%v", value)
	}
	return &models.PropertyFilterMismatch{
		FilterType: "dynamic:" + f.Field,
		Requested:  f.describeWanted(),
		Actual:     actual,
		Severity:   severity,
	}
}

func dynamicValueMatches(value interface{}, f DynamicFieldFilter) bool {
	switch f.Kind {
	case FilterNumericRange:
		n, ok := toFloat(value)
		if !ok {
			return false
		}
		if f.Min != nil && n < *f.Min {
			return false
		}
		if f.Max != nil && n > *f.Max {
			return false
		}
		return true
	case FilterEnum:
		s := fmt.Sprintf("%v", value)
		for _, v := range f.Values {
			if strings.EqualFold(s, v) {
				return true
			}
		}
		return false
	case FilterBool:
		b, ok := value.(bool)
		return ok && b == *f.Bool
	case FilterTextContains:
		s, ok := value.(string)
		return ok && strings.Contains(strings.ToLower(s), strings.ToLower(f.Contains))
	}
	return false
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		n, err := strconv.ParseFloat(v, 64)
		return n, err == nil
	}
	return 0, false
}

func (f DynamicFieldFilter) describeWanted() string {
	switch f.Kind {
	case FilterNumericRange:
		lo, hi := "", ""
		if f.Min != nil {
			lo = strconv.FormatFloat(*f.Min, 'f', -1, 64)
		}
		if f.Max != nil {
			hi = strconv.FormatFloat(*f.Max, 'f', -1, 64)
		}
		return "[" + lo + ".." + hi + "]"
	case FilterEnum:
		return strings.Join(f.Values, "|")
	case FilterBool:
		return strconv.FormatBool(*f.Bool)
	case FilterTextContains:
		return "contains:" + f.Contains
	}
	return ""
}

// sortItems orders by the requested key, then ascending mismatch weight so
// exact matches precede annotated ones, then unit id for stability.
func sortItems(items []SearchItem, key SortKey) {
	less := func(a, b SearchItem) int {
		switch key {
		case SortPriceAsc:
			if c := a.Document.EffectivePrice.Cmp(b.Document.EffectivePrice); c != 0 {
				return c
			}
		case SortPriceDesc:
			if c := b.Document.EffectivePrice.Cmp(a.Document.EffectivePrice); c != 0 {
				return c
			}
		case SortRating:
			if a.Document.Rating != b.Document.Rating {
				if a.Document.Rating > b.Document.Rating {
					return -1
				}
				return 1
			}
		case SortDistance:
			ad, bd := distanceOf(a), distanceOf(b)
			if ad != bd {
				if ad < bd {
					return -1
				}
				return 1
			}
		case SortName:
			if c := strings.Compare(strings.ToLower(a.Document.UnitName), strings.ToLower(b.Document.UnitName)); c != 0 {
				return c
			}
		default:
			// No explicit key: best matches first, then rating.
			if a.Weight != b.Weight {
				if a.Weight < b.Weight {
					return -1
				}
				return 1
			}
			if a.Document.Rating != b.Document.Rating {
				if a.Document.Rating > b.Document.Rating {
					return -1
				}
				return 1
			}
		}
		if a.Weight != b.Weight {
			if a.Weight < b.Weight {
				return -1
			}
			return 1
		}
		if a.Document.UnitID < b.Document.UnitID {
			return -1
		}
		if a.Document.UnitID > b.Document.UnitID {
			return 1
		}
		return 0
	}
	sort.SliceStable(items, func(i, j int) bool { return less(items[i], items[j]) < 0 })
}

func distanceOf(it SearchItem) float64 {
	if it.DistanceKm == nil {
		return 0
	}
	return *it.DistanceKm
}

// fallbackSearch serves a reduced query straight from the authoritative
// store: hard filters only, no dynamic-field constraints, no mismatch
// annotations, no geo. Failing the whole request because the index is down
// is not acceptable; shrinking the feature set is.
func (e *Engine) fallbackSearch(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if e.DB == nil {
		return nil, fmt.Errorf("search unavailable: no authoritative store")
	}

	q := e.DB.WithContext(ctx).Model(&models.Unit{}).
		Joins("JOIN properties ON properties.id = units.property_id AND properties.deleted_at IS NULL").
		Where("COALESCE(units.is_active, true) = true").
		Where("COALESCE(properties.is_active, true) = true")

	if req.City != "" {
		q = q.Where("LOWER(properties.city) = LOWER(?)", req.City)
	}
	if req.Country != "" {
		q = q.Where("LOWER(properties.country) = LOWER(?)", req.Country)
	}
	if req.Text != "" {
		like := "%" + strings.ToLower(req.Text) + "%"
		q = q.Where("LOWER(units.name) LIKE ? OR LOWER(properties.name) LIKE ?", like, like)
	}
	if req.MinPrice != nil {
		q = q.Where("units.base_price >= ?", req.MinPrice)
	}
	if req.MaxPrice != nil {
		q = q.Where("units.base_price <= ?", req.MaxPrice)
	}
	if req.MinRating > 0 {
		q = q.Where("properties.rating >= ?", req.MinRating)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, err
	}

	switch req.Sort {
	case SortPriceAsc:
		q = q.Order("units.base_price ASC")
	case SortPriceDesc:
		q = q.Order("units.base_price DESC")
	case SortRating:
		q = q.Order("properties.rating DESC")
	case SortName:
		q = q.Order("units.name ASC")
	default:
		q = q.Order("units.id ASC")
	}

	var units []models.Unit
	if err := q.Preload("Property").
		Limit(req.Page.Normalized().Size).
		Offset(req.Page.Offset()).
		Find(&units).Error; err != nil {
		return nil, err
	}

	items := make([]SearchItem, 0, len(units))
	for _, u := range units {
		items = append(items, SearchItem{Document: fallbackDocument(&u)})
	}
	return &SearchResult{
		Items:      items,
		TotalCount: int(total),
		Page:       req.Page.Normalized(),
		Degraded:   true,
	}, nil
}

func fallbackDocument(u *models.Unit) *indexsync.UnitSearchDocument {
	return &indexsync.UnitSearchDocument{
		UnitID:         u.ID,
		PropertyID:     u.PropertyID,
		UnitName:       u.Name,
		PropertyName:   u.Property.Name,
		City:           u.Property.City,
		Country:        u.Property.Country,
		Lat:            u.Property.Lat,
		Lng:            u.Property.Lng,
		UnitType:       u.UnitType,
		MaxGuests:      u.MaxGuests,
		Rating:         u.Property.Rating,
		BasePrice:      u.BasePrice,
		EffectivePrice: u.BasePrice,
		Currency:       u.Currency,
		AmenityIds:     u.AmenityIdList(),
		DynamicFields:  u.DynamicFields,
	}
}
