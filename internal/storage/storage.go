// Package storage persists scan results, alerts and duplicate-suppression
// marks. SQLite is the default backend; PostgreSQL is supported for shared
// deployments.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/rewired-gh/cryptoscan/internal/models"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func init() {
	// modernc registers as "sqlite", which sqlx does not know by default.
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Storage wraps a SQL database for all persistence operations.
type Storage struct {
	db     *sqlx.DB
	driver string
}

// New opens or creates the database. For sqlite an empty dsn defaults to
// $TMPDIR/cryptoscan/data.db; ":memory:" is accepted for tests.
func New(driver, dsn string) (*Storage, error) {
	switch driver {
	case "", DriverSQLite:
		return openSQLite(dsn)
	case DriverPostgres:
		if dsn == "" {
			return nil, errors.New("postgres dsn must not be empty")
		}
		db, err := sqlx.Open(DriverPostgres, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return initStorage(db, DriverPostgres)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
}

func openSQLite(dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "cryptoscan", "data.db")
	}
	if dbPath != ":memory:" && !strings.HasPrefix(dbPath, "file:") {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sqlx.Open(DriverSQLite, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	return initStorage(db, DriverSQLite)
}

func initStorage(db *sqlx.DB, driver string) (*Storage, error) {
	s := &Storage{db: db, driver: driver}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS scan_results (
			symbol          TEXT PRIMARY KEY,
			coin_id         TEXT NOT NULL,
			name            TEXT NOT NULL,
			price           DOUBLE PRECISION NOT NULL,
			volume_24h      DOUBLE PRECISION NOT NULL,
			market_cap      DOUBLE PRECISION NOT NULL,
			change_pct_24h  DOUBLE PRECISION NOT NULL,
			rsi             DOUBLE PRECISION NOT NULL,
			ema_5           DOUBLE PRECISION NOT NULL,
			ema_13          DOUBLE PRECISION NOT NULL,
			ema_50          DOUBLE PRECISION NOT NULL,
			vwap            DOUBLE PRECISION NOT NULL,
			vwap_delta_pct  DOUBLE PRECISION NOT NULL,
			atr             DOUBLE PRECISION NOT NULL,
			rvol            DOUBLE PRECISION NOT NULL,
			scanned_at      BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id              TEXT PRIMARY KEY,
			symbol          TEXT NOT NULL,
			created_at      BIGINT NOT NULL,
			score           DOUBLE PRECISION NOT NULL,
			notified        INTEGER NOT NULL DEFAULT 0,
			payload         TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_symbol_created ON alerts(symbol, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at)`,
		`CREATE TABLE IF NOT EXISTS alert_marks (
			symbol          TEXT PRIMARY KEY,
			marked_at       BIGINT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// UpsertScanResults stores the latest Tier 1 result per symbol.
func (s *Storage) UpsertScanResults(ctx context.Context, results []models.ScanResult, at time.Time) error {
	if len(results) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PreparexContext(ctx, s.db.Rebind(`
		INSERT INTO scan_results
			(symbol, coin_id, name, price, volume_24h, market_cap, change_pct_24h,
			 rsi, ema_5, ema_13, ema_50, vwap, vwap_delta_pct, atr, rvol, scanned_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(symbol) DO UPDATE SET
			coin_id=excluded.coin_id, name=excluded.name, price=excluded.price,
			volume_24h=excluded.volume_24h, market_cap=excluded.market_cap,
			change_pct_24h=excluded.change_pct_24h, rsi=excluded.rsi,
			ema_5=excluded.ema_5, ema_13=excluded.ema_13, ema_50=excluded.ema_50,
			vwap=excluded.vwap, vwap_delta_pct=excluded.vwap_delta_pct,
			atr=excluded.atr, rvol=excluded.rvol, scanned_at=excluded.scanned_at`))
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		snap, ind := r.Snapshot, r.Indicators
		if _, err := stmt.ExecContext(ctx,
			snap.Symbol, snap.ID, snap.Name, snap.Price, snap.Volume24h, snap.MarketCap,
			snap.PriceChangePct24h, ind.RSI, ind.EMA5, ind.EMA13, ind.EMA50, ind.VWAP,
			ind.VWAPDeltaPct, ind.ATR, ind.RVOL, at.UnixNano(),
		); err != nil {
			return fmt.Errorf("failed to upsert scan result %s: %w", snap.Symbol, err)
		}
	}
	return tx.Commit()
}

type scanResultRow struct {
	Symbol       string  `db:"symbol"`
	CoinID       string  `db:"coin_id"`
	Name         string  `db:"name"`
	Price        float64 `db:"price"`
	Volume24h    float64 `db:"volume_24h"`
	MarketCap    float64 `db:"market_cap"`
	ChangePct24h float64 `db:"change_pct_24h"`
	RSI          float64 `db:"rsi"`
	EMA5         float64 `db:"ema_5"`
	EMA13        float64 `db:"ema_13"`
	EMA50        float64 `db:"ema_50"`
	VWAP         float64 `db:"vwap"`
	VWAPDeltaPct float64 `db:"vwap_delta_pct"`
	ATR          float64 `db:"atr"`
	RVOL         float64 `db:"rvol"`
	ScannedAt    int64   `db:"scanned_at"`
}

func (r scanResultRow) toModel() models.ScanResult {
	return models.ScanResult{
		Snapshot: models.MarketSnapshot{
			ID:                r.CoinID,
			Symbol:            r.Symbol,
			Name:              r.Name,
			Price:             r.Price,
			Volume24h:         r.Volume24h,
			MarketCap:         r.MarketCap,
			PriceChangePct24h: r.ChangePct24h,
			FetchedAt:         time.Unix(0, r.ScannedAt),
		},
		Indicators: models.IndicatorSet{
			Close:        r.Price,
			RSI:          r.RSI,
			EMA5:         r.EMA5,
			EMA13:        r.EMA13,
			EMA50:        r.EMA50,
			EMAAligned:   r.EMA5 > r.EMA13 && r.EMA13 > r.EMA50,
			VWAP:         r.VWAP,
			VWAPDeltaPct: r.VWAPDeltaPct,
			ATR:          r.ATR,
			ATRValid:     r.ATR > 0,
			RVOL:         r.RVOL,
		},
	}
}

// ScanResults returns stored results scanned at or after since, newest first.
func (s *Storage) ScanResults(ctx context.Context, since time.Time) ([]models.ScanResult, error) {
	var rows []scanResultRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT * FROM scan_results WHERE scanned_at >= ? ORDER BY scanned_at DESC, symbol`),
		since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to query scan results: %w", err)
	}
	results := make([]models.ScanResult, 0, len(rows))
	for _, r := range rows {
		results = append(results, r.toModel())
	}
	return results, nil
}

// PersistAlert inserts rec, assigning an ID when it has none.
func (s *Storage) PersistAlert(ctx context.Context, rec models.AlertRecord) error {
	if rec.Symbol == "" {
		return errors.New("alert symbol must not be empty")
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	payload := string(rec.Payload)
	if payload == "" {
		payload = "{}"
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO alerts (id, symbol, created_at, score, notified, payload)
		VALUES (?,?,?,?,?,?)`),
		rec.ID, rec.Symbol, rec.Timestamp.UnixNano(), rec.Score, boolToInt(rec.Notified), payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

type alertRow struct {
	ID        string  `db:"id"`
	Symbol    string  `db:"symbol"`
	CreatedAt int64   `db:"created_at"`
	Score     float64 `db:"score"`
	Notified  int     `db:"notified"`
	Payload   string  `db:"payload"`
}

func (r alertRow) toModel() models.AlertRecord {
	return models.AlertRecord{
		ID:        r.ID,
		Symbol:    r.Symbol,
		Timestamp: time.Unix(0, r.CreatedAt),
		Score:     r.Score,
		Notified:  r.Notified != 0,
		Payload:   []byte(r.Payload),
	}
}

// RecentAlerts returns alerts at or after since, newest first. An empty
// symbol matches every symbol.
func (s *Storage) RecentAlerts(ctx context.Context, symbol string, since time.Time) ([]models.AlertRecord, error) {
	query := `SELECT * FROM alerts WHERE created_at >= ?`
	args := []interface{}{since.UnixNano()}
	if symbol != "" {
		query += ` AND symbol = ?`
		args = append(args, symbol)
	}
	query += ` ORDER BY created_at DESC`

	var rows []alertRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	alerts := make([]models.AlertRecord, 0, len(rows))
	for _, r := range rows {
		alerts = append(alerts, r.toModel())
	}
	return alerts, nil
}

// PruneAlerts deletes alerts older than before and returns how many went.
func (s *Storage) PruneAlerts(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM alerts WHERE created_at < ?`), before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune alerts: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// LastAlert returns the last mark for symbol.
func (s *Storage) LastAlert(ctx context.Context, symbol string) (time.Time, bool, error) {
	var markedAt int64
	err := s.db.GetContext(ctx, &markedAt, s.db.Rebind(`SELECT marked_at FROM alert_marks WHERE symbol = ?`), symbol)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to load alert mark: %w", err)
	}
	return time.Unix(0, markedAt), true, nil
}

// Claim marks symbol at `at` unless an unexpired mark exists. The update only
// fires when the existing mark is at least window old, so concurrent
// claimants sharing the database see exactly one winner.
func (s *Storage) Claim(ctx context.Context, symbol string, at time.Time, window time.Duration) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO alert_marks (symbol, marked_at) VALUES (?, ?)
		ON CONFLICT(symbol) DO UPDATE SET marked_at = excluded.marked_at
		WHERE alert_marks.marked_at <= ?`),
		symbol, at.UnixNano(), at.Add(-window).UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim alert mark: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}
	return n == 1, nil
}

// Record stores a mark unconditionally.
func (s *Storage) Record(ctx context.Context, symbol string, at time.Time, _ time.Duration) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO alert_marks (symbol, marked_at) VALUES (?, ?)
		ON CONFLICT(symbol) DO UPDATE SET marked_at = excluded.marked_at`),
		symbol, at.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record alert mark: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
