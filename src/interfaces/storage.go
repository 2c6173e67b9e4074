package interfaces

import (
	"context"
	"database/sql"

	"trading-data-viewer/src/models"
)

// -----------------------------------------------------------------------------
// IBarStore defines the contract for storage operations.
//
// Read methods take the *sql.Conn supplied by the connection pool so that
// exactly one in-flight operation owns a physical handle at a time; the store
// itself holds no per-request state.
// -----------------------------------------------------------------------------

type IBarStore interface {

	// -----------------------------------------------------------------------------

	// Initialize opens the underlying store and prepares auxiliary tables.
	Initialize() error

	// Handle exposes the underlying database for pool construction.
	Handle() *sql.DB

	// -----------------------------------------------------------------------------
	// Bar reads. Table names must pass identifier validation before they are
	// interpolated; implementations re-check defensively.

	// TableExists reports whether the named table is present.
	TableExists(ctx context.Context, conn *sql.Conn, table string) (bool, error)

	// QueryBars returns bars matching q, ordered ascending by timestamp.
	QueryBars(ctx context.Context, conn *sql.Conn, q models.MBarQuery) ([]models.MBar, error)

	// CountBars returns the number of well-formed rows matching q's filter
	// predicate. It ranges over the same sequence QueryBars and StreamBars
	// return, so pagination totals and pages never drift apart.
	CountBars(ctx context.Context, conn *sql.Conn, q models.MBarQuery) (int64, error)

	// CountMalformedBars returns how many rows in q's range carry NULL OHLC
	// fields and are therefore excluded from every read.
	CountMalformedBars(ctx context.Context, conn *sql.Conn, q models.MBarQuery) (int64, error)

	// StreamBars invokes fn for each matching bar in ascending timestamp
	// order without materializing the full result set.
	StreamBars(ctx context.Context, conn *sql.Conn, q models.MBarQuery, fn func(models.MBar) error) error

	// -----------------------------------------------------------------------------

	// ListInstruments discovers instrument tables and their metadata.
	ListInstruments(ctx context.Context, conn *sql.Conn) ([]models.MInstrument, error)

	// -----------------------------------------------------------------------------
	// Saved drawing sets (same pooled-connection discipline).

	CreateDrawing(ctx context.Context, conn *sql.Conn, d *models.MDrawing) (int64, error)
	GetDrawing(ctx context.Context, conn *sql.Conn, id int64) (*models.MDrawing, error)
	ListDrawings(ctx context.Context, conn *sql.Conn, offset, limit int) ([]models.MDrawingSummary, int64, error)
	DeleteDrawing(ctx context.Context, conn *sql.Conn, id int64) error

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
