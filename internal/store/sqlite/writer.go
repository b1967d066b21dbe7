package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"ma-screener/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/screener.db"
}

// Writer persists scan results and fetched daily bars.
type Writer struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

func open(path string) (*sql.DB, error) {
	return sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
}

// New opens the database with WAL mode and creates the schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	slog.Info("[sqlite] opened database", "path", cfg.DBPath)
	return &Writer{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars_daily (
			symbol TEXT    NOT NULL,
			date   TEXT    NOT NULL,
			open   REAL    NOT NULL,
			high   REAL    NOT NULL,
			low    REAL    NOT NULL,
			close  REAL    NOT NULL,
			volume INTEGER NOT NULL,
			PRIMARY KEY (symbol, date)
		);

		CREATE TABLE IF NOT EXISTS scan_runs (
			id          TEXT    PRIMARY KEY,
			strategy    TEXT    NOT NULL,
			mode        TEXT    NOT NULL,
			started_at  INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			universe    INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS scan_signals (
			scan_id    TEXT NOT NULL,
			seq        INTEGER NOT NULL,
			symbol     TEXT NOT NULL,
			strategy   TEXT NOT NULL,
			date       TEXT NOT NULL,
			close      REAL NOT NULL,
			ema_fast   REAL,
			ema_trend  REAL,
			sma_fast   REAL,
			sma_mid    REAL,
			sma_slow   REAL,
			strength   REAL,
			next_close REAL,
			ret        REAL,
			PRIMARY KEY (scan_id, seq)
		);

		CREATE TABLE IF NOT EXISTS scan_failures (
			scan_id TEXT NOT NULL,
			symbol  TEXT NOT NULL,
			kind    TEXT NOT NULL,
			reason  TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS scan_skips (
			scan_id TEXT NOT NULL,
			symbol  TEXT NOT NULL,
			reason  TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_scan_runs_finished ON scan_runs (finished_at);
	`)
	return err
}

// WriteBars upserts daily bars for one symbol in a single transaction.
// A later write for the same session date replaces the stored bar.
func (w *Writer) WriteBars(ctx context.Context, symbol string, bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	start := time.Now()
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars_daily (symbol, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range bars {
		b := &bars[i]
		if _, err := stmt.ExecContext(ctx, symbol, b.DateKey(), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert bar %s %s: %w", symbol, b.DateKey(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Debug("[sqlite] committed bars", "symbol", symbol, "count", len(bars), "took", time.Since(start).String())
	return nil
}

// WriteScan stores a finished scan with its records, failures and skips.
// Writing the same scan ID twice replaces the earlier copy.
func (w *Writer) WriteScan(ctx context.Context, res *model.ScanResult) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := writeScanTx(ctx, tx, res); err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite write scan %s: %w", res.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("[sqlite] stored scan", "scan_id", res.ID, "records", len(res.Records),
		"failures", len(res.Failures), "skipped", len(res.Skipped))
	return nil
}

func writeScanTx(ctx context.Context, tx *sql.Tx, res *model.ScanResult) error {
	for _, table := range []string{"scan_runs", "scan_signals", "scan_failures", "scan_skips"} {
		col := "scan_id"
		if table == "scan_runs" {
			col = "id"
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE `+col+` = ?`, res.ID); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO scan_runs (id, strategy, mode, started_at, finished_at, universe)
		VALUES (?, ?, ?, ?, ?, ?)
	`, res.ID, res.Strategy, res.Mode, res.StartedAt.UnixMilli(), res.FinishedAt.UnixMilli(), res.Universe); err != nil {
		return err
	}

	sig, err := tx.PrepareContext(ctx, `
		INSERT INTO scan_signals (scan_id, seq, symbol, strategy, date, close,
			ema_fast, ema_trend, sma_fast, sma_mid, sma_slow, strength, next_close, ret)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer sig.Close()
	for i, r := range res.Records {
		if _, err := sig.ExecContext(ctx, res.ID, i, r.Symbol, r.Strategy, r.Date.Format(model.DateLayout), r.Close,
			nullFloat(r.EMAFast), nullFloat(r.EMATrend), nullFloat(r.SMAFast), nullFloat(r.SMAMid), nullFloat(r.SMASlow),
			nullFloat(r.Strength), nullFloat(r.NextClose), nullFloat(r.Return)); err != nil {
			return err
		}
	}

	for _, f := range res.Failures {
		if _, err := tx.ExecContext(ctx, `INSERT INTO scan_failures (scan_id, symbol, kind, reason) VALUES (?, ?, ?, ?)`,
			res.ID, f.Symbol, string(f.Kind), f.Reason); err != nil {
			return err
		}
	}
	for _, s := range res.Skipped {
		if _, err := tx.ExecContext(ctx, `INSERT INTO scan_skips (scan_id, symbol, reason) VALUES (?, ?, ?)`,
			res.ID, s.Symbol, s.Reason); err != nil {
			return err
		}
	}
	return nil
}

// PruneScans keeps the newest keep scans and deletes the rest.
func (w *Writer) PruneScans(ctx context.Context, keep int) error {
	const stale = `SELECT id FROM scan_runs ORDER BY finished_at DESC LIMIT -1 OFFSET ?`
	for _, q := range []string{
		`DELETE FROM scan_signals WHERE scan_id IN (` + stale + `)`,
		`DELETE FROM scan_failures WHERE scan_id IN (` + stale + `)`,
		`DELETE FROM scan_skips WHERE scan_id IN (` + stale + `)`,
		`DELETE FROM scan_runs WHERE id IN (` + stale + `)`,
	} {
		if _, err := w.db.ExecContext(ctx, q, keep); err != nil {
			return fmt.Errorf("sqlite prune scans: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}

func nullFloat(v model.Value) sql.NullFloat64 {
	f, ok := v.Get()
	return sql.NullFloat64{Float64: f, Valid: ok}
}

func fromNull(n sql.NullFloat64) model.Value {
	if !n.Valid {
		return model.None()
	}
	return model.Some(n.Float64)
}
