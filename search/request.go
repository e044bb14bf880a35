package search

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/akarakonline-arch/hggzk-sub012/models"
	"github.com/akarakonline-arch/hggzk-sub012/utils"
)

var validate = validator.New()

type SortKey string

const (
	SortPriceAsc  SortKey = "price_asc"
	SortPriceDesc SortKey = "price_desc"
	SortRating    SortKey = "rating"
	SortDistance  SortKey = "distance"
	SortName      SortKey = "name"
)

// DynamicFilterKind tags the union of dynamic-field constraints. Kinds are
// resolved at query-build time so the index schema stays a flat value map.
type DynamicFilterKind string

const (
	FilterNumericRange DynamicFilterKind = "numeric_range"
	FilterEnum         DynamicFilterKind = "enum"
	FilterBool         DynamicFilterKind = "bool"
	FilterTextContains DynamicFilterKind = "text_contains"
)

// DynamicFieldFilter constrains one searchable dynamic field. Filters are
// ANDed across fields; Values within one filter are ORed. All dynamic-field
// filters are soft: a miss annotates the result instead of excluding it.
type DynamicFieldFilter struct {
	Field string            `json:"field" validate:"required"`
	Kind  DynamicFilterKind `json:"kind" validate:"required,oneof=numeric_range enum bool text_contains"`

	// Primary fields weigh heavier in ranking: their mismatches are
	// promoted one severity step.
	Primary bool `json:"primary"`

	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	Values   []string `json:"values,omitempty"`
	Bool     *bool    `json:"bool,omitempty"`
	Contains string   `json:"contains,omitempty"`
}

type GeoFilter struct {
	Lat      float64 `json:"lat" validate:"min=-90,max=90"`
	Lng      float64 `json:"lng" validate:"min=-180,max=180"`
	RadiusKm float64 `json:"radiusKm" validate:"gt=0"`
}

type SearchRequest struct {
	Text    string `json:"text"`
	City    string `json:"city"`
	Country string `json:"country"`

	MinPrice  *decimal.Decimal `json:"minPrice,omitempty"`
	MaxPrice  *decimal.Decimal `json:"maxPrice,omitempty"`
	MinRating float64          `json:"minRating"`
	Guests    int              `json:"guests"`

	AmenityIds []uint               `json:"amenityIds,omitempty"`
	Dynamic    []DynamicFieldFilter `json:"dynamic,omitempty"`
	Geo        *GeoFilter           `json:"geo,omitempty"`

	Sort SortKey     `json:"sort"`
	Page models.Page `json:"page"`
}

func (r *SearchRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return utils.NewValidationError("request", err.Error())
	}
	switch r.Sort {
	case "", SortPriceAsc, SortPriceDesc, SortRating, SortDistance, SortName:
	default:
		return utils.NewValidationError("sort", "unknown sort key")
	}
	if r.Sort == SortDistance && r.Geo == nil {
		return utils.NewValidationError("sort", "distance sort requires a geo center")
	}
	if r.MinPrice != nil && r.MaxPrice != nil && r.MinPrice.GreaterThan(*r.MaxPrice) {
		return utils.NewValidationError("price", "minPrice must not exceed maxPrice")
	}
	for _, f := range r.Dynamic {
		switch f.Kind {
		case FilterNumericRange:
			if f.Min == nil && f.Max == nil {
				return utils.NewValidationError("dynamic."+f.Field, "numeric_range needs min or max")
			}
		case FilterEnum:
			if len(f.Values) == 0 {
				return utils.NewValidationError("dynamic."+f.Field, "enum needs values")
			}
		case FilterBool:
			if f.Bool == nil {
				return utils.NewValidationError("dynamic."+f.Field, "bool needs a value")
			}
		case FilterTextContains:
			if strings.TrimSpace(f.Contains) == "" {
				return utils.NewValidationError("dynamic."+f.Field, "text_contains needs a value")
			}
		}
	}
	return nil
}
