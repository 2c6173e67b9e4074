package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"trading-data-viewer/src/helpers"
	"trading-data-viewer/src/logger"
	"trading-data-viewer/src/models"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------

type SQLiteStore struct {
	Config *models.MConfig
	Logger *logger.Logger
	DB     *sql.DB
}

// -----------------------------------------------------------------------------

func NewSQLiteStore(cfg *models.MConfig, log *logger.Logger) (*SQLiteStore, error) {
	return &SQLiteStore{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (s *SQLiteStore) Initialize() error {
	dsn := s.Config.Storage.DBPath

	// Open DB
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return helpers.WrapError(helpers.ErrStorageUnavailable, err, "failed to open sqlite database '%s'", dsn)
	}

	if err := db.Ping(); err != nil {
		return helpers.WrapError(helpers.ErrStorageUnavailable, err, "cannot connect to sqlite database '%s'", dsn)
	}

	s.DB = db

	// PRAGMA optimizations: WAL keeps readers concurrent with the writer.
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		s.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		s.Logger.Warning("Failed to set synchronous mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA cache_size = 10000;"); err != nil {
		s.Logger.Warning("Failed to set cache size: %v", err)
	}

	return s.ensureDrawingsTable()
}

// -----------------------------------------------------------------------------

func (s *SQLiteStore) Handle() *sql.DB {
	return s.DB
}

// -----------------------------------------------------------------------------

func (s *SQLiteStore) ensureDrawingsTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS saved_drawings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			layout INTEGER DEFAULT 1,
			instruments TEXT,
			timeframe TEXT DEFAULT '1min',
			start_date TEXT,
			end_date TEXT,
			drawings_data TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`
	if _, err := s.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create saved_drawings: %w", err)
	}

	if _, err := s.DB.Exec(`CREATE INDEX IF NOT EXISTS idx_drawings_created_at ON saved_drawings(created_at DESC)`); err != nil {
		return fmt.Errorf("failed to create created_at index: %w", err)
	}
	if _, err := s.DB.Exec(`CREATE INDEX IF NOT EXISTS idx_drawings_name ON saved_drawings(name)`); err != nil {
		return fmt.Errorf("failed to create name index: %w", err)
	}

	return nil
}

// -----------------------------------------------------------------------------
// Bar Reads
// -----------------------------------------------------------------------------

// barFilter builds the predicate shared by data and count queries so
// pagination totals always match the data query's filter. All regular reads
// use the well-formedness predicate; NULL-OHLC rows never enter a page, a
// stream or a total, only the malformed diagnostic count.
func barFilter(q models.MBarQuery, predicate string) (string, []interface{}) {
	conditions := []string{predicate}
	var args []interface{}

	if q.FromTime != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, *q.FromTime)
	}
	if q.ToTime != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, *q.ToTime)
	}

	return strings.Join(conditions, " AND "), args
}

func barWhere(q models.MBarQuery) (string, []interface{}) {
	return barFilter(q, wellFormedPredicate)
}

// -----------------------------------------------------------------------------

func scanBar(rows *sql.Rows) (models.MBar, error) {
	var (
		ts                     int64
		open, high, low, closp sql.NullFloat64
		volume                 sql.NullInt64
	)
	if err := rows.Scan(&ts, &open, &high, &low, &closp, &volume); err != nil {
		return models.MBar{}, err
	}

	bar := models.MBar{Timestamp: ts}
	if !open.Valid || !high.Valid || !low.Valid || !closp.Valid {
		bar.Malformed = true
		return bar, nil
	}

	bar.Open = open.Float64
	bar.High = high.Float64
	bar.Low = low.Float64
	bar.Close = closp.Float64
	if volume.Valid {
		bar.Volume = volume.Int64
	}
	return bar, nil
}

// -----------------------------------------------------------------------------

func (s *SQLiteStore) TableExists(ctx context.Context, conn *sql.Conn, table string) (bool, error) {
	if err := ValidateIdentifier(table); err != nil {
		return false, err
	}

	var name string
	err := conn.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name = ? LIMIT 1", table,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// -----------------------------------------------------------------------------

func (s *SQLiteStore) QueryBars(ctx context.Context, conn *sql.Conn, q models.MBarQuery) ([]models.MBar, error) {
	if err := ValidateIdentifier(q.Table); err != nil {
		return nil, err
	}

	where, args := barWhere(q)
	query := fmt.Sprintf(`
		SELECT timestamp, open, high, low, close, volume
		FROM "%s"
		WHERE %s
		ORDER BY timestamp ASC
	`, q.Table, where)

	if q.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, q.Limit, q.Offset)
	}

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []models.MBar
	for rows.Next() {
		bar, err := scanBar(rows)
		if err != nil {
			return nil, err
		}
		bars = append(bars, bar)
	}
	return bars, rows.Err()
}

// -----------------------------------------------------------------------------

func (s *SQLiteStore) CountBars(ctx context.Context, conn *sql.Conn, q models.MBarQuery) (int64, error) {
	if err := ValidateIdentifier(q.Table); err != nil {
		return 0, err
	}

	where, args := barWhere(q)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM "%s" WHERE %s`, q.Table, where)

	var total int64
	if err := conn.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// -----------------------------------------------------------------------------

func (s *SQLiteStore) CountMalformedBars(ctx context.Context, conn *sql.Conn, q models.MBarQuery) (int64, error) {
	if err := ValidateIdentifier(q.Table); err != nil {
		return 0, err
	}

	where, args := barFilter(q, malformedPredicate)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM "%s" WHERE %s`, q.Table, where)

	var dropped int64
	if err := conn.QueryRowContext(ctx, query, args...).Scan(&dropped); err != nil {
		return 0, err
	}
	return dropped, nil
}

// -----------------------------------------------------------------------------

func (s *SQLiteStore) StreamBars(ctx context.Context, conn *sql.Conn, q models.MBarQuery, fn func(models.MBar) error) error {
	if err := ValidateIdentifier(q.Table); err != nil {
		return err
	}

	where, args := barWhere(q)
	query := fmt.Sprintf(`
		SELECT timestamp, open, high, low, close, volume
		FROM "%s"
		WHERE %s
		ORDER BY timestamp ASC
	`, q.Table, where)

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		bar, err := scanBar(rows)
		if err != nil {
			return err
		}
		if err := fn(bar); err != nil {
			return err
		}
	}
	return rows.Err()
}

// -----------------------------------------------------------------------------
// Instrument Discovery
// -----------------------------------------------------------------------------

func (s *SQLiteStore) ListInstruments(ctx context.Context, conn *sql.Conn) ([]models.MInstrument, error) {
	rows, err := conn.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type='table' AND name LIKE '%\_bars' ESCAPE '\' ORDER BY name`)
	if err != nil {
		return nil, err
	}

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, err
		}
		tables = append(tables, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	instruments := make([]models.MInstrument, 0, len(tables))
	for _, table := range tables {
		if err := ValidateIdentifier(table); err != nil {
			s.Logger.Warning("Skipping table with unsafe name: %v", err)
			continue
		}

		columns, err := s.tableColumns(ctx, conn, table)
		if err != nil {
			s.Logger.Warning("Error checking table %s: %v", table, err)
			continue
		}
		if !hasRequiredColumns(columns) {
			continue
		}

		var count int64
		var minTs, maxTs sql.NullInt64
		query := fmt.Sprintf(`SELECT COUNT(*), MIN(timestamp), MAX(timestamp) FROM "%s"`, table)
		if err := conn.QueryRowContext(ctx, query).Scan(&count, &minTs, &maxTs); err != nil {
			s.Logger.Warning("Error reading metadata for %s: %v", table, err)
			continue
		}
		if count == 0 || !minTs.Valid || !maxTs.Valid {
			continue
		}

		instruments = append(instruments, buildInstrument(table, count, minTs.Int64, maxTs.Int64))
	}

	s.Logger.Info("Detected %d instrument tables", len(instruments))
	return instruments, nil
}

// -----------------------------------------------------------------------------

func (s *SQLiteStore) tableColumns(ctx context.Context, conn *sql.Conn, table string) (map[string]struct{}, error) {
	rows, err := conn.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info("%s")`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := make(map[string]struct{})
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		columns[strings.ToLower(name)] = struct{}{}
	}
	return columns, rows.Err()
}

// -----------------------------------------------------------------------------
// Saved Drawings
// -----------------------------------------------------------------------------

func (s *SQLiteStore) CreateDrawing(ctx context.Context, conn *sql.Conn, d *models.MDrawing) (int64, error) {
	payload := d.Drawings
	if payload == nil {
		payload = json.RawMessage("[]")
	}

	res, err := conn.ExecContext(ctx, `
		INSERT INTO saved_drawings (name, layout, instruments, timeframe, start_date, end_date, drawings_data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, d.Name, d.Layout, strings.Join(d.Instruments, ","), d.Timeframe, d.StartDate, d.EndDate, string(payload))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// -----------------------------------------------------------------------------

func (s *SQLiteStore) GetDrawing(ctx context.Context, conn *sql.Conn, id int64) (*models.MDrawing, error) {
	var (
		d           models.MDrawing
		instruments string
		payload     sql.NullString
		startDate   sql.NullString
		endDate     sql.NullString
	)

	err := conn.QueryRowContext(ctx, `
		SELECT id, name, layout, instruments, timeframe, start_date, end_date, drawings_data, created_at
		FROM saved_drawings WHERE id = ? LIMIT 1
	`, id).Scan(&d.ID, &d.Name, &d.Layout, &instruments, &d.Timeframe, &startDate, &endDate, &payload, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, helpers.WrapError(helpers.ErrNotFound, nil, "drawing %d not found", id)
	}
	if err != nil {
		return nil, err
	}

	d.Instruments = splitInstruments(instruments)
	d.StartDate = startDate.String
	d.EndDate = endDate.String
	if payload.Valid && json.Valid([]byte(payload.String)) {
		d.Drawings = json.RawMessage(payload.String)
	} else {
		d.Drawings = json.RawMessage("[]")
	}
	return &d, nil
}

// -----------------------------------------------------------------------------

func (s *SQLiteStore) ListDrawings(ctx context.Context, conn *sql.Conn, offset, limit int) ([]models.MDrawingSummary, int64, error) {
	var total int64
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM saved_drawings`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := conn.QueryContext(ctx, `
		SELECT id, name, layout, instruments, timeframe, created_at
		FROM saved_drawings
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	drawings := make([]models.MDrawingSummary, 0)
	for rows.Next() {
		var (
			d           models.MDrawingSummary
			instruments string
		)
		if err := rows.Scan(&d.ID, &d.Name, &d.Layout, &instruments, &d.Timeframe, &d.CreatedAt); err != nil {
			return nil, 0, err
		}
		d.Instruments = splitInstruments(instruments)
		drawings = append(drawings, d)
	}
	return drawings, total, rows.Err()
}

// -----------------------------------------------------------------------------

func (s *SQLiteStore) DeleteDrawing(ctx context.Context, conn *sql.Conn, id int64) error {
	res, err := conn.ExecContext(ctx, `DELETE FROM saved_drawings WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return helpers.WrapError(helpers.ErrNotFound, nil, "drawing %d not found", id)
	}
	return nil
}

// -----------------------------------------------------------------------------

func splitInstruments(joined string) []string {
	if joined == "" {
		return []string{}
	}
	return strings.Split(joined, ",")
}

// -----------------------------------------------------------------------------

func (s *SQLiteStore) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}
