package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"trading-data-viewer/src/aggregation"
	"trading-data-viewer/src/helpers"
	"trading-data-viewer/src/models"
)

// -----------------------------------------------------------------------------
// Saved Drawings
// -----------------------------------------------------------------------------

const maxDrawingNameLen = 255

// SaveDrawing validates and persists a chart layout, returning the new id.
// Out-of-range layout and timeframe values are coerced to defaults rather
// than rejected; a missing name is an error.
func (s *DataService) SaveDrawing(ctx context.Context, d *models.MDrawing) (int64, error) {
	if d == nil {
		return 0, helpers.WrapError(helpers.ErrInvalidInput, nil, "drawing payload is required")
	}

	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		return 0, helpers.WrapError(helpers.ErrInvalidInput, nil, "drawing name is required")
	}
	if len(d.Name) > maxDrawingNameLen {
		return 0, helpers.WrapError(helpers.ErrInvalidInput, nil,
			"drawing name exceeds %d characters", maxDrawingNameLen)
	}

	if d.Layout != 1 && d.Layout != 2 {
		d.Layout = 1
	}
	if !aggregation.IsSupported(d.Timeframe) {
		d.Timeframe = "1min"
	}
	if len(d.Drawings) == 0 || !json.Valid(d.Drawings) {
		d.Drawings = json.RawMessage("[]")
	}

	var id int64
	err := s.withConn(ctx, "saveDrawing", func(conn *sql.Conn) error {
		var err error
		id, err = s.Store.CreateDrawing(ctx, conn, d)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.Logger.Info("saved drawing '%s' (id=%d)", d.Name, id)
	return id, nil
}

// -----------------------------------------------------------------------------

// GetDrawing loads a saved layout by id.
func (s *DataService) GetDrawing(ctx context.Context, id int64) (*models.MDrawing, error) {
	if id <= 0 {
		return nil, helpers.WrapError(helpers.ErrInvalidInput, nil, "invalid drawing id %d", id)
	}

	var drawing *models.MDrawing
	err := s.withConn(ctx, fmt.Sprintf("getDrawing(%d)", id), func(conn *sql.Conn) error {
		var err error
		drawing, err = s.Store.GetDrawing(ctx, conn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return drawing, nil
}

// -----------------------------------------------------------------------------

// ListDrawings returns one page of saved layout summaries, newest first.
func (s *DataService) ListDrawings(ctx context.Context, offset, limit int) (*models.MDrawingList, error) {
	offset = clampOffset(offset)
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	var summaries []models.MDrawingSummary
	var total int64
	err := s.withConn(ctx, "listDrawings", func(conn *sql.Conn) error {
		var err error
		summaries, total, err = s.Store.ListDrawings(ctx, conn, offset, limit)
		return err
	})
	if err != nil {
		return nil, err
	}

	if summaries == nil {
		summaries = []models.MDrawingSummary{}
	}
	return &models.MDrawingList{
		Drawings: summaries,
		Pagination: models.MPagination{
			Offset:  offset,
			Limit:   limit,
			Total:   total,
			HasMore: int64(offset)+int64(len(summaries)) < total,
		},
	}, nil
}

// -----------------------------------------------------------------------------

// DeleteDrawing removes a saved layout by id.
func (s *DataService) DeleteDrawing(ctx context.Context, id int64) error {
	if id <= 0 {
		return helpers.WrapError(helpers.ErrInvalidInput, nil, "invalid drawing id %d", id)
	}

	err := s.withConn(ctx, fmt.Sprintf("deleteDrawing(%d)", id), func(conn *sql.Conn) error {
		return s.Store.DeleteDrawing(ctx, conn, id)
	})
	if err != nil {
		return err
	}

	s.Logger.Info("deleted drawing id=%d", id)
	return nil
}
