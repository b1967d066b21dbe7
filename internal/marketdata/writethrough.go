package marketdata

import (
	"context"
	"log/slog"

	"ma-screener/internal/model"
)

// WriteThrough mirrors every successful fetch into a BarWriter so a later
// run can read the same history offline. Write errors are logged and do not
// fail the fetch.
type WriteThrough struct {
	src model.HistoryFetcher
	dst model.BarWriter
	log *slog.Logger
}

// NewWriteThrough wraps src.
func NewWriteThrough(src model.HistoryFetcher, dst model.BarWriter, log *slog.Logger) *WriteThrough {
	if log == nil {
		log = slog.Default()
	}
	return &WriteThrough{src: src, dst: dst, log: log}
}

// FetchHistory implements model.HistoryFetcher.
func (w *WriteThrough) FetchHistory(ctx context.Context, symbol string, lookback int) ([]model.Bar, error) {
	bars, err := w.src.FetchHistory(ctx, symbol, lookback)
	if err != nil || len(bars) == 0 {
		return bars, err
	}
	if werr := w.dst.WriteBars(ctx, symbol, bars); werr != nil {
		w.log.Warn("[marketdata] bar write-through failed", "symbol", symbol, "error", werr)
	}
	return bars, nil
}
