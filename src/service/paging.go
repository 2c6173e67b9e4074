package service

import (
	"time"

	"trading-data-viewer/src/helpers"
	"trading-data-viewer/src/models"
)

// -----------------------------------------------------------------------------
// Pagination & Limiting
// -----------------------------------------------------------------------------

// clampLimit applies the default for unset limits and silently caps requests
// above the hard cap. Oversized limits are never rejected; the cap protects
// memory without breaking simple callers.
func clampLimit(limit int, cfg models.MPagingConfig) int {
	if limit <= 0 {
		return cfg.DefaultLimit
	}
	if limit > cfg.HardCap {
		return cfg.HardCap
	}
	return limit
}

// -----------------------------------------------------------------------------

// clampOffset normalizes negative offsets to zero.
func clampOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

// -----------------------------------------------------------------------------

// buildPage assembles a page with consistent has_more semantics: more rows
// exist beyond this page iff offset plus the returned count falls short of
// the filtered total.
func buildPage(bars []models.MBar, offset, limit int, total int64, timeframe string, dropped int) *models.MPage {
	if bars == nil {
		bars = []models.MBar{}
	}
	return &models.MPage{
		Bars: bars,
		Pagination: models.MPagination{
			Offset:  offset,
			Limit:   limit,
			Total:   total,
			HasMore: int64(offset)+int64(len(bars)) < total,
		},
		Timeframe:   timeframe,
		DroppedBars: dropped,
	}
}

// -----------------------------------------------------------------------------
// Date Range Parsing
// -----------------------------------------------------------------------------

const dateLayout = "2006-01-02"

// parseDateRange converts optional YYYY-MM-DD bounds into an inclusive epoch
// range covering the full days in the session timezone. Empty strings leave
// the corresponding bound open.
func parseDateRange(startDate, endDate string, loc *time.Location) (*int64, *int64, error) {
	var from, to *int64

	if startDate != "" {
		t, err := time.ParseInLocation(dateLayout, startDate, loc)
		if err != nil {
			return nil, nil, helpers.WrapError(helpers.ErrInvalidInput, err,
				"invalid start_date '%s' (expected YYYY-MM-DD)", startDate)
		}
		v := t.Unix()
		from = &v
	}

	if endDate != "" {
		t, err := time.ParseInLocation(dateLayout, endDate, loc)
		if err != nil {
			return nil, nil, helpers.WrapError(helpers.ErrInvalidInput, err,
				"invalid end_date '%s' (expected YYYY-MM-DD)", endDate)
		}
		v := t.AddDate(0, 0, 1).Unix() - 1 // end of day, inclusive
		to = &v
	}

	if from != nil && to != nil && *from > *to {
		return nil, nil, helpers.WrapError(helpers.ErrInvalidInput, nil,
			"start_date %s is after end_date %s", startDate, endDate)
	}

	return from, to, nil
}
