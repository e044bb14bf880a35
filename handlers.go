package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/akarakonline-arch/hggzk-sub012/config"
	"github.com/akarakonline-arch/hggzk-sub012/health"
	"github.com/akarakonline-arch/hggzk-sub012/indexsync"
	"github.com/akarakonline-arch/hggzk-sub012/models"
	"github.com/akarakonline-arch/hggzk-sub012/search"
	"github.com/akarakonline-arch/hggzk-sub012/utils"
)

type apiHandlers struct {
	logger *logrus.Logger
	engine *search.Engine
}

func (h *apiHandlers) healthz(c *gin.Context) {
	report := health.Check(c.Request.Context())
	status := http.StatusOK
	if report.Status != health.StatusUp {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

func (h *apiHandlers) metrics(c *gin.Context) {
	c.JSON(http.StatusOK, health.Default().Snapshot())
}

func (h *apiHandlers) search(c *gin.Context) {
	if h.engine == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "search not ready"})
		return
	}
	var req search.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.engine.Search(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, "search", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *apiHandlers) availabilityPeriods(c *gin.Context) {
	unitId, ok := pathUnitId(c)
	if !ok {
		return
	}
	from, ok := queryDate(c, "from")
	if !ok {
		return
	}
	to, ok := queryDate(c, "to")
	if !ok {
		return
	}
	periods, err := models.GetAvailabilityPeriods(c.Request.Context(), config.GetDB(), unitId, from, to)
	if err != nil {
		h.writeError(c, "availabilityPeriods", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unitID": unitId, "periods": periods})
}

func (h *apiHandlers) checkAvailability(c *gin.Context) {
	unitId, ok := pathUnitId(c)
	if !ok {
		return
	}
	start, ok := queryDate(c, "start")
	if !ok {
		return
	}
	end, ok := queryDate(c, "end")
	if !ok {
		return
	}
	var exclude *uint
	if raw := c.Query("excludeBookingId"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "excludeBookingId must be numeric"})
			return
		}
		v := uint(id)
		exclude = &v
	}
	res, err := models.CheckAvailability(c.Request.Context(), config.GetDB(), unitId, start, end, exclude)
	if err != nil {
		h.writeError(c, "checkAvailability", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *apiHandlers) pricing(c *gin.Context) {
	unitId, ok := pathUnitId(c)
	if !ok {
		return
	}
	start, ok := queryDate(c, "start")
	if !ok {
		return
	}
	end, ok := queryDate(c, "end")
	if !ok {
		return
	}
	db := config.GetDB()
	unit, err := models.GetUnit(db.WithContext(c.Request.Context()), unitId)
	if err != nil {
		h.writeError(c, "pricing", err)
		return
	}
	res, err := models.CalculatePriceForPeriod(c.Request.Context(), db, unitId, start, end, unit.BasePrice, unit.Currency)
	if err != nil {
		h.writeError(c, "pricing", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *apiHandlers) alternatives(c *gin.Context) {
	unitId, ok := pathUnitId(c)
	if !ok {
		return
	}
	start, ok := queryDate(c, "start")
	if !ok {
		return
	}
	end, ok := queryDate(c, "end")
	if !ok {
		return
	}
	before := intQuery(c, "maxDaysBefore", 30)
	after := intQuery(c, "maxDaysAfter", 30)
	alts, err := models.GetAlternativePeriods(c.Request.Context(), config.GetDB(), unitId, start, end, before, after)
	if err != nil {
		h.writeError(c, "alternatives", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unitID": unitId, "alternatives": alts})
}

type resolveConflictsRequest struct {
	Start         string `json:"start" binding:"required"`
	End           string `json:"end" binding:"required"`
	Strategy      string `json:"strategy" binding:"required"`
	BookingID     *uint  `json:"bookingId"`
	MaxDaysBefore *int   `json:"maxDaysBefore"`
	MaxDaysAfter  *int   `json:"maxDaysAfter"`
}

func (h *apiHandlers) resolveConflicts(c *gin.Context) {
	unitId, ok := pathUnitId(c)
	if !ok {
		return
	}
	var req resolveConflictsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	start, end, ok := parseDatePair(c, req.Start, req.End)
	if !ok {
		return
	}
	strategy, err := models.ParseResolutionStrategy(req.Strategy)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	// Manual overrides are an operator action, gated on an explicit header
	// rather than ambient trust.
	if c.GetHeader("x-override-blocks") == "true" {
		ctx = utils.SetPrivilegedInContext(ctx, true)
	}

	res, err := models.ResolveConflicts(ctx, config.GetDB(), unitId, start, end, strategy,
		req.BookingID, models.ResolveOptions{MaxDaysBefore: req.MaxDaysBefore, MaxDaysAfter: req.MaxDaysAfter})
	if err != nil {
		h.writeError(c, "resolveConflicts", err)
		return
	}
	if res.Resolved && strategy == models.ResolutionOverrideBlock {
		h.publishScheduleChanged(ctx, unitId)
	}
	c.JSON(http.StatusOK, res)
}

type applyBookingRequest struct {
	BookingID uint   `json:"bookingId" binding:"required"`
	Start     string `json:"start" binding:"required"`
	End       string `json:"end" binding:"required"`
}

func (h *apiHandlers) applyBooking(c *gin.Context) {
	unitId, ok := pathUnitId(c)
	if !ok {
		return
	}
	var req applyBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	start, end, ok := parseDatePair(c, req.Start, req.End)
	if !ok {
		return
	}
	res, err := models.ApplyBooking(c.Request.Context(), config.GetDB(), unitId, req.BookingID, start, end)
	if err != nil {
		h.writeError(c, "applyBooking", err)
		return
	}
	if !res.IsAvailable {
		c.JSON(http.StatusConflict, res)
		return
	}
	h.publishScheduleChanged(c.Request.Context(), unitId)
	c.JSON(http.StatusOK, res)
}

func (h *apiHandlers) releaseBooking(c *gin.Context) {
	unitId, ok := pathUnitId(c)
	if !ok {
		return
	}
	bookingId, err := strconv.ParseUint(c.Param("bookingId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bookingId must be numeric"})
		return
	}
	if err := models.ReleaseBooking(c.Request.Context(), config.GetDB(), unitId, uint(bookingId)); err != nil {
		h.writeError(c, "releaseBooking", err)
		return
	}
	h.publishScheduleChanged(c.Request.Context(), unitId)
	c.Status(http.StatusNoContent)
}

type applyBlockRequest struct {
	Start  string `json:"start" binding:"required"`
	End    string `json:"end" binding:"required"`
	Reason string `json:"reason"`
}

func (h *apiHandlers) applyBlock(c *gin.Context) {
	unitId, ok := pathUnitId(c)
	if !ok {
		return
	}
	var req applyBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	start, end, ok := parseDatePair(c, req.Start, req.End)
	if !ok {
		return
	}
	res, err := models.ApplyBlock(c.Request.Context(), config.GetDB(), unitId, start, end, req.Reason)
	if err != nil {
		h.writeError(c, "applyBlock", err)
		return
	}
	if !res.IsAvailable {
		c.JSON(http.StatusConflict, res)
		return
	}
	h.publishScheduleChanged(c.Request.Context(), unitId)
	c.JSON(http.StatusOK, res)
}

func (h *apiHandlers) removeBlock(c *gin.Context) {
	unitId, ok := pathUnitId(c)
	if !ok {
		return
	}
	start, ok := queryDate(c, "start")
	if !ok {
		return
	}
	end, ok := queryDate(c, "end")
	if !ok {
		return
	}
	if err := models.RemoveBlock(c.Request.Context(), config.GetDB(), unitId, start, end); err != nil {
		h.writeError(c, "removeBlock", err)
		return
	}
	h.publishScheduleChanged(c.Request.Context(), unitId)
	c.Status(http.StatusNoContent)
}

type priceOverrideRequest struct {
	Date  string           `json:"date" binding:"required"`
	Price *decimal.Decimal `json:"price"`
}

func (h *apiHandlers) setPriceOverride(c *gin.Context) {
	unitId, ok := pathUnitId(c)
	if !ok {
		return
	}
	var req priceOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	if err := models.SetPriceOverride(c.Request.Context(), config.GetDB(), unitId, date, req.Price); err != nil {
		h.writeError(c, "setPriceOverride", err)
		return
	}
	h.publishScheduleChanged(c.Request.Context(), unitId)
	c.Status(http.StatusNoContent)
}

// publishScheduleChanged notifies the synchronizer after a committed schedule
// mutation. Publish failures are logged, not surfaced: the sweeper re-reads
// authoritative state, so a lost event delays convergence without corrupting.
func (h *apiHandlers) publishScheduleChanged(ctx context.Context, unitId uint) {
	evt := indexsync.LifecycleEvent{Kind: indexsync.EventDailyScheduleChanged, UnitID: unitId}
	if err := indexsync.PublishLifecycleEvent(ctx, evt); err != nil {
		config.LogError(h.logger, "api", "publishScheduleChanged", "publish", evt, err)
	}
}

func (h *apiHandlers) writeError(c *gin.Context, funcName string, err error) {
	switch {
	case utils.IsValidationError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err == utils.ErrorRecordNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
	default:
		config.LogError(h.logger, "api", funcName, c.Request.URL.Path, nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func pathUnitId(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unit id must be numeric"})
		return 0, false
	}
	return uint(id), true
}

func queryDate(c *gin.Context, name string) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " is required (YYYY-MM-DD)"})
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be YYYY-MM-DD"})
		return time.Time{}, false
	}
	return t, true
}

func parseDatePair(c *gin.Context, start, end string) (time.Time, time.Time, bool) {
	s, err := time.Parse("2006-01-02", start)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start must be YYYY-MM-DD"})
		return time.Time{}, time.Time{}, false
	}
	e, err := time.Parse("2006-01-02", end)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end must be YYYY-MM-DD"})
		return time.Time{}, time.Time{}, false
	}
	return s, e, true
}

func intQuery(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
