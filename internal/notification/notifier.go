// Package notification delivers scan alerts to external channels
// (Telegram, webhooks, the log).
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"ma-screener/internal/model"
	"ma-screener/internal/report"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent. Data is attached verbatim by
// structured backends (webhook) and ignored by text ones.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	Data    any        `json:"data,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier logs alerts.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	n.log.InfoContext(ctx, "[notify] "+alert.Title, "level", string(alert.Level), "message", alert.Message)
	return nil
}

// Multi sends to every backend and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// maxAlertLines caps the symbol lines in a text alert.
const maxAlertLines = 25

// ScanSummary is the structured payload of a scan alert.
type ScanSummary struct {
	ScanID   string   `json:"scan_id"`
	Strategy string   `json:"strategy"`
	Mode     string   `json:"mode"`
	Universe int      `json:"universe"`
	Matches  []string `json:"matches"`
	Failed   []string `json:"failed,omitempty"`
}

// ScanAlert summarises a ranked scan. Records should already be in display
// order. The alert is a warning when more than half the universe failed.
func ScanAlert(res *model.ScanResult, prec report.Precision) Alert {
	level := AlertInfo
	if res.Universe > 0 && len(res.Failures)*2 > res.Universe {
		level = AlertWarning
	}

	title := fmt.Sprintf("%s: %d match(es) in %d symbols", res.Strategy, len(res.Records), res.Universe)

	var b strings.Builder
	if len(res.Records) == 0 {
		b.WriteString("No matches found.")
	}
	summary := ScanSummary{ScanID: res.ID, Strategy: res.Strategy, Mode: res.Mode, Universe: res.Universe}
	for i, r := range res.Records {
		summary.Matches = append(summary.Matches, r.Symbol)
		if i >= maxAlertLines {
			continue
		}
		fmt.Fprintf(&b, "%s %s close %s", r.Symbol, r.Date.Format(model.DateLayout), report.Round(r.Close, prec.PricePlaces))
		if s, ok := r.Strength.Get(); ok {
			fmt.Fprintf(&b, " strength %s%%", report.Round(s, prec.PctPlaces))
		}
		b.WriteByte('\n')
	}
	if extra := len(res.Records) - maxAlertLines; extra > 0 {
		fmt.Fprintf(&b, "... and %d more\n", extra)
	}
	for _, f := range res.Failures {
		summary.Failed = append(summary.Failed, f.Symbol)
	}
	if len(res.Failures) > 0 {
		fmt.Fprintf(&b, "\n%d symbol(s) failed, %d skipped", len(res.Failures), len(res.Skipped))
	}

	return Alert{
		Level:   level,
		Title:   title,
		Message: strings.TrimRight(b.String(), "\n"),
		Data:    summary,
	}
}
