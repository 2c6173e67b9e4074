package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"trading-data-viewer/src/helpers"
	"trading-data-viewer/src/logger"
	"trading-data-viewer/src/models"

	_ "github.com/lib/pq"
)

// -----------------------------------------------------------------------------

// PostgresStore is the alternate IBarStore backend for deployments where the
// bar archive lives in Postgres instead of an embedded file.
type PostgresStore struct {
	Config *models.MConfig
	Logger *logger.Logger
	DB     *sql.DB
}

// -----------------------------------------------------------------------------

func NewPostgresStore(cfg *models.MConfig, log *logger.Logger) (*PostgresStore, error) {
	return &PostgresStore{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (s *PostgresStore) Initialize() error {
	dsn := s.Config.Storage.DBConnectionString

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return helpers.WrapError(helpers.ErrStorageUnavailable, err, "failed to open postgres database")
	}
	if err := db.Ping(); err != nil {
		return helpers.WrapError(helpers.ErrStorageUnavailable, err, "cannot connect to postgres database")
	}

	s.DB = db
	return s.ensureDrawingsTable()
}

// -----------------------------------------------------------------------------

func (s *PostgresStore) Handle() *sql.DB {
	return s.DB
}

// -----------------------------------------------------------------------------

func (s *PostgresStore) ensureDrawingsTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS saved_drawings (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			layout INTEGER DEFAULT 1,
			instruments TEXT,
			timeframe TEXT DEFAULT '1min',
			start_date TEXT,
			end_date TEXT,
			drawings_data TEXT,
			created_at TIMESTAMPTZ DEFAULT now()
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

// pgBarFilter mirrors barFilter with numbered placeholders.
func pgBarFilter(q models.MBarQuery, predicate string) (string, []interface{}) {
	conditions := []string{predicate}
	var args []interface{}

	if q.FromTime != nil {
		args = append(args, *q.FromTime)
		conditions = append(conditions, fmt.Sprintf("timestamp >= $%d", len(args)))
	}
	if q.ToTime != nil {
		args = append(args, *q.ToTime)
		conditions = append(conditions, fmt.Sprintf("timestamp <= $%d", len(args)))
	}

	return strings.Join(conditions, " AND "), args
}

func pgBarWhere(q models.MBarQuery) (string, []interface{}) {
	return pgBarFilter(q, wellFormedPredicate)
}

// -----------------------------------------------------------------------------

func (s *PostgresStore) TableExists(ctx context.Context, conn *sql.Conn, table string) (bool, error) {
	if err := ValidateIdentifier(table); err != nil {
		return false, err
	}

	var name string
	err := conn.QueryRowContext(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = 'public' AND table_name = $1 LIMIT 1
	`, table).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// -----------------------------------------------------------------------------

func (s *PostgresStore) QueryBars(ctx context.Context, conn *sql.Conn, q models.MBarQuery) ([]models.MBar, error) {
	if err := ValidateIdentifier(q.Table); err != nil {
		return nil, err
	}

	where, args := pgBarWhere(q)
	query := fmt.Sprintf(`
		SELECT timestamp, open, high, low, close, volume
		FROM "%s"
		WHERE %s
		ORDER BY timestamp ASC
	`, q.Table, where)

	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		args = append(args, q.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
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

func (s *PostgresStore) CountBars(ctx context.Context, conn *sql.Conn, q models.MBarQuery) (int64, error) {
	if err := ValidateIdentifier(q.Table); err != nil {
		return 0, err
	}

	where, args := pgBarWhere(q)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM "%s" WHERE %s`, q.Table, where)

	var total int64
	if err := conn.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// -----------------------------------------------------------------------------

func (s *PostgresStore) CountMalformedBars(ctx context.Context, conn *sql.Conn, q models.MBarQuery) (int64, error) {
	if err := ValidateIdentifier(q.Table); err != nil {
		return 0, err
	}

	where, args := pgBarFilter(q, malformedPredicate)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM "%s" WHERE %s`, q.Table, where)

	var dropped int64
	if err := conn.QueryRowContext(ctx, query, args...).Scan(&dropped); err != nil {
		return 0, err
	}
	return dropped, nil
}

// -----------------------------------------------------------------------------

func (s *PostgresStore) StreamBars(ctx context.Context, conn *sql.Conn, q models.MBarQuery, fn func(models.MBar) error) error {
	if err := ValidateIdentifier(q.Table); err != nil {
		return err
	}

	where, args := pgBarWhere(q)
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

func (s *PostgresStore) ListInstruments(ctx context.Context, conn *sql.Conn) ([]models.MInstrument, error) {
	rows, err := conn.QueryContext(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = 'public' AND table_name LIKE '%\_bars'
		ORDER BY table_name
	`)
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

func (s *PostgresStore) tableColumns(ctx context.Context, conn *sql.Conn, table string) (map[string]struct{}, error) {
	rows, err := conn.QueryContext(ctx, `
		SELECT column_name FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
	`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		columns[strings.ToLower(name)] = struct{}{}
	}
	return columns, rows.Err()
}

// -----------------------------------------------------------------------------
// Saved Drawings
// -----------------------------------------------------------------------------

func (s *PostgresStore) CreateDrawing(ctx context.Context, conn *sql.Conn, d *models.MDrawing) (int64, error) {
	payload := d.Drawings
	if payload == nil {
		payload = json.RawMessage("[]")
	}

	var id int64
	err := conn.QueryRowContext(ctx, `
		INSERT INTO saved_drawings (name, layout, instruments, timeframe, start_date, end_date, drawings_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, d.Name, d.Layout, strings.Join(d.Instruments, ","), d.Timeframe, d.StartDate, d.EndDate, string(payload)).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// -----------------------------------------------------------------------------

func (s *PostgresStore) GetDrawing(ctx context.Context, conn *sql.Conn, id int64) (*models.MDrawing, error) {
	var (
		d           models.MDrawing
		instruments string
		payload     sql.NullString
		startDate   sql.NullString
		endDate     sql.NullString
		createdAt   time.Time
	)

	err := conn.QueryRowContext(ctx, `
		SELECT id, name, layout, instruments, timeframe, start_date, end_date, drawings_data, created_at
		FROM saved_drawings WHERE id = $1 LIMIT 1
	`, id).Scan(&d.ID, &d.Name, &d.Layout, &instruments, &d.Timeframe, &startDate, &endDate, &payload, &createdAt)
	if err == sql.ErrNoRows {
		return nil, helpers.WrapError(helpers.ErrNotFound, nil, "drawing %d not found", id)
	}
	if err != nil {
		return nil, err
	}

	d.Instruments = splitInstruments(instruments)
	d.StartDate = startDate.String
	d.EndDate = endDate.String
	d.CreatedAt = createdAt.UTC().Format("2006-01-02 15:04:05")
	if payload.Valid && json.Valid([]byte(payload.String)) {
		d.Drawings = json.RawMessage(payload.String)
	} else {
		d.Drawings = json.RawMessage("[]")
	}
	return &d, nil
}

// -----------------------------------------------------------------------------

func (s *PostgresStore) ListDrawings(ctx context.Context, conn *sql.Conn, offset, limit int) ([]models.MDrawingSummary, int64, error) {
	var total int64
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM saved_drawings`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := conn.QueryContext(ctx, `
		SELECT id, name, layout, instruments, timeframe, created_at
		FROM saved_drawings
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
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
			createdAt   time.Time
		)
		if err := rows.Scan(&d.ID, &d.Name, &d.Layout, &instruments, &d.Timeframe, &createdAt); err != nil {
			return nil, 0, err
		}
		d.Instruments = splitInstruments(instruments)
		d.CreatedAt = createdAt.UTC().Format("2006-01-02 15:04:05")
		drawings = append(drawings, d)
	}
	return drawings, total, rows.Err()
}

// -----------------------------------------------------------------------------

func (s *PostgresStore) DeleteDrawing(ctx context.Context, conn *sql.Conn, id int64) error {
	res, err := conn.ExecContext(ctx, `DELETE FROM saved_drawings WHERE id = $1`, id)
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

func (s *PostgresStore) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}
