package server

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"trading-data-viewer/src/aggregation"
	"trading-data-viewer/src/helpers"
	"trading-data-viewer/src/models"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------
// File Exports
// -----------------------------------------------------------------------------

var csvHeader = []string{"timestamp", "datetime", "open", "high", "low", "close", "volume"}

// downloadData serves a full-range export of one table as an attachment.
// The export reuses the regular retrieval path with the page cap as the
// limit, so a single download can never exceed the largest allowed page.
func (s *APIServer) downloadData(c *gin.Context) {
	table := c.Param("table")
	format := strings.ToLower(c.DefaultQuery("format", "csv"))
	timeframe := c.DefaultQuery("timeframe", aggregation.RawTimeframe)

	if format != "csv" && format != "json" {
		s.abortWithError(c, helpers.WrapError(helpers.ErrInvalidInput, nil,
			"unsupported export format '%s' (expected csv or json)", format))
		return
	}

	page, err := s.Service.GetBars(c.Request.Context(), table, timeframe,
		c.Query("start_date"), c.Query("end_date"), 0, s.Config.Paging.HardCap)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	filename := fmt.Sprintf("%s_%s_%s.%s",
		table, page.Timeframe, time.Now().Format("20060102_150405"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))

	if format == "json" {
		c.JSON(200, page)
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Status(200)
	if err := s.writeCSV(c, page.Bars); err != nil {
		// Headers are already out; all we can do is log.
		s.Logger.Error("csv export for %s aborted: %v", table, err)
	}
}

// -----------------------------------------------------------------------------

func (s *APIServer) writeCSV(c *gin.Context, bars []models.MBar) error {
	w := csv.NewWriter(c.Writer)
	if err := w.Write(csvHeader); err != nil {
		return err
	}

	loc := s.Service.Calendar.Location()
	for _, b := range bars {
		record := []string{
			strconv.FormatInt(b.Timestamp, 10),
			time.Unix(b.Timestamp, 0).In(loc).Format("2006-01-02 15:04:05"),
			strconv.FormatFloat(b.Open, 'f', -1, 64),
			strconv.FormatFloat(b.High, 'f', -1, 64),
			strconv.FormatFloat(b.Low, 'f', -1, 64),
			strconv.FormatFloat(b.Close, 'f', -1, 64),
			strconv.FormatInt(b.Volume, 10),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}
