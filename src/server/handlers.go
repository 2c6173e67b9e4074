package server

import (
	"errors"
	"strconv"
	"time"

	"trading-data-viewer/src/aggregation"
	"trading-data-viewer/src/helpers"
	"trading-data-viewer/src/models"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------
// Error Mapping
// -----------------------------------------------------------------------------

// abortWithError translates service errors into HTTP responses. Transient
// storage conditions advertise a retry so well-behaved clients back off
// instead of hammering an overloaded pool.
func (s *APIServer) abortWithError(c *gin.Context, err error) {
	switch {
	case helpers.IsValidation(err):
		c.JSON(400, gin.H{"error": err.Error()})
	case errors.Is(err, helpers.ErrNotFound):
		c.JSON(404, gin.H{"error": err.Error()})
	case helpers.IsRetryable(err):
		c.Header("Retry-After", "1")
		c.JSON(503, gin.H{"error": err.Error()})
	default:
		s.Logger.Error("request failed: %v", err)
		c.JSON(500, gin.H{"error": err.Error()})
	}
}

// -----------------------------------------------------------------------------

// intQuery parses an optional integer query parameter.
func intQuery(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, helpers.WrapError(helpers.ErrInvalidInput, err, "parameter '%s' must be an integer", name)
	}
	return v, nil
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *APIServer) getInstruments(c *gin.Context) {
	instruments, err := s.Service.ListInstruments(c.Request.Context())
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(200, gin.H{
		"instruments": instruments,
		"count":       len(instruments),
	})
}

// -----------------------------------------------------------------------------

func (s *APIServer) getData(c *gin.Context) {
	table := c.Param("table")
	timeframe := c.DefaultQuery("timeframe", aggregation.RawTimeframe)

	offset, err := intQuery(c, "offset", 0)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	limit, err := intQuery(c, "limit", 0)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	page, err := s.Service.GetBars(c.Request.Context(), table, timeframe,
		c.Query("start_date"), c.Query("end_date"), offset, limit)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(200, page)
}

// -----------------------------------------------------------------------------

func (s *APIServer) getHealth(c *gin.Context) {
	start := time.Now()

	tableCount, err := s.Service.HealthCheck(c.Request.Context())
	status := "ok"
	connected := true
	if err != nil {
		s.Logger.Warning("health probe failed: %v", err)
		status = "degraded"
		connected = false
	}

	pool := s.Service.PoolStats()

	c.JSON(200, gin.H{
		"status":             status,
		"database_connected": connected,
		"table_count":        tableCount,
		"pool": gin.H{
			"open":    pool.Open,
			"idle":    pool.Idle,
			"in_use":  pool.InUse,
			"waiting": pool.Waiting,
		},
		"trading_day":      s.Service.Calendar.IsTradingDay(time.Now()),
		"response_time_ms": float64(time.Since(start).Microseconds()) / 1000.0,
	})
}

// -----------------------------------------------------------------------------
// Drawing Handlers
// -----------------------------------------------------------------------------

func (s *APIServer) listDrawings(c *gin.Context) {
	page, err := intQuery(c, "page", 1)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	perPage, err := intQuery(c, "per_page", 50)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	if page < 1 {
		page = 1
	}

	list, err := s.Service.ListDrawings(c.Request.Context(), (page-1)*perPage, perPage)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(200, list)
}

// -----------------------------------------------------------------------------

func (s *APIServer) saveDrawing(c *gin.Context) {
	var drawing models.MDrawing
	if err := c.ShouldBindJSON(&drawing); err != nil {
		s.abortWithError(c, helpers.WrapError(helpers.ErrInvalidInput, err, "invalid drawing payload"))
		return
	}

	id, err := s.Service.SaveDrawing(c.Request.Context(), &drawing)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(201, gin.H{"id": id, "name": drawing.Name})
}

// -----------------------------------------------------------------------------

func (s *APIServer) getDrawing(c *gin.Context) {
	id, err := drawingID(c)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	drawing, err := s.Service.GetDrawing(c.Request.Context(), id)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(200, drawing)
}

// -----------------------------------------------------------------------------

func (s *APIServer) deleteDrawing(c *gin.Context) {
	id, err := drawingID(c)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	if err := s.Service.DeleteDrawing(c.Request.Context(), id); err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(200, gin.H{"deleted": id})
}

// -----------------------------------------------------------------------------

func drawingID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, helpers.WrapError(helpers.ErrInvalidInput, err, "invalid drawing id '%s'", c.Param("id"))
	}
	return id, nil
}
