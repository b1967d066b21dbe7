package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ma-screener/internal/model"
)

// Reader provides read-only access for offline scans and the API.
type Reader struct {
	db  *sql.DB
	now func() time.Time
}

// NewReader opens a SQLite connection for reading. The schema is created
// if missing so a fresh database reads as empty.
func NewReader(dbPath string) (*Reader, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	slog.Info("[sqlite-reader] opened", "path", dbPath)
	return &Reader{db: db, now: time.Now}, nil
}

// FetchHistory implements model.HistoryFetcher over stored bars.
func (r *Reader) FetchHistory(ctx context.Context, symbol string, lookback int) ([]model.Bar, error) {
	from := ""
	if lookback > 0 {
		from = r.now().AddDate(0, 0, -lookback).Format(model.DateLayout)
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT date, open, high, low, close, volume
		FROM bars_daily
		WHERE symbol = ? AND date >= ?
		ORDER BY date ASC
	`, symbol, from)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars_daily: %w", err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		var date string
		if err := rows.Scan(&date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan bars_daily: %w", err)
		}
		if b.Date, err = time.Parse(model.DateLayout, date); err != nil {
			return nil, fmt.Errorf("sqlite bar date %q: %w", date, err)
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// LatestScan loads the most recently finished screen, or nil when none is
// stored. Backtest runs are never returned. An empty strategy matches any.
func (r *Reader) LatestScan(ctx context.Context, strategy string) (*model.ScanResult, error) {
	var res model.ScanResult
	var started, finished int64
	err := r.db.QueryRowContext(ctx, `
		SELECT id, strategy, mode, started_at, finished_at, universe
		FROM scan_runs
		WHERE (? = '' OR strategy = ?) AND mode <> ?
		ORDER BY finished_at DESC
		LIMIT 1
	`, strategy, strategy, model.ModeFullHistory).Scan(&res.ID, &res.Strategy, &res.Mode, &started, &finished, &res.Universe)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite read scan: %w", err)
	}
	res.StartedAt = time.UnixMilli(started).UTC()
	res.FinishedAt = time.UnixMilli(finished).UTC()

	if err := r.loadScanRows(ctx, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *Reader) loadScanRows(ctx context.Context, res *model.ScanResult) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol, strategy, date, close, ema_fast, ema_trend, sma_fast, sma_mid, sma_slow,
			strength, next_close, ret
		FROM scan_signals WHERE scan_id = ? ORDER BY seq ASC
	`, res.ID)
	if err != nil {
		return fmt.Errorf("sqlite query scan_signals: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rec model.SignalRecord
		var date string
		var ef, et, sf, sm, ss, st, nc, ret sql.NullFloat64
		if err := rows.Scan(&rec.Symbol, &rec.Strategy, &date, &rec.Close,
			&ef, &et, &sf, &sm, &ss, &st, &nc, &ret); err != nil {
			return fmt.Errorf("sqlite scan scan_signals: %w", err)
		}
		if rec.Date, err = time.Parse(model.DateLayout, date); err != nil {
			return err
		}
		rec.EMAFast, rec.EMATrend = fromNull(ef), fromNull(et)
		rec.SMAFast, rec.SMAMid, rec.SMASlow = fromNull(sf), fromNull(sm), fromNull(ss)
		rec.Strength, rec.NextClose, rec.Return = fromNull(st), fromNull(nc), fromNull(ret)
		res.Records = append(res.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	frows, err := r.db.QueryContext(ctx, `SELECT symbol, kind, reason FROM scan_failures WHERE scan_id = ? ORDER BY rowid`, res.ID)
	if err != nil {
		return fmt.Errorf("sqlite query scan_failures: %w", err)
	}
	defer frows.Close()
	for frows.Next() {
		var f model.Failure
		var kind string
		if err := frows.Scan(&f.Symbol, &kind, &f.Reason); err != nil {
			return err
		}
		f.Kind = model.FailureKind(kind)
		res.Failures = append(res.Failures, f)
	}
	if err := frows.Err(); err != nil {
		return err
	}

	srows, err := r.db.QueryContext(ctx, `SELECT symbol, reason FROM scan_skips WHERE scan_id = ? ORDER BY rowid`, res.ID)
	if err != nil {
		return fmt.Errorf("sqlite query scan_skips: %w", err)
	}
	defer srows.Close()
	for srows.Next() {
		var s model.Skip
		if err := srows.Scan(&s.Symbol, &s.Reason); err != nil {
			return err
		}
		res.Skipped = append(res.Skipped, s)
	}
	return srows.Err()
}

// Ping checks the connection.
func (r *Reader) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
