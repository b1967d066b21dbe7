package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"ma-screener/internal/model"
)

// DefaultScreenPath and DefaultBacktestPath are the CSV files written when
// no path is configured.
const (
	DefaultScreenPath   = "ma_screen_results.csv"
	DefaultBacktestPath = "ma_backtest_trades.csv"
)

// WriteCSV writes a header row and one row per record.
func WriteCSV(w io.Writer, l Layout, records []model.SignalRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(l.Header()); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write(l.Row(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes records to path, creating parent directories.
func WriteCSVFile(path string, l Layout, records []model.SignalRecord) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteCSV(f, l, records); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
