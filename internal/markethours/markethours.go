// Package markethours knows the NSE cash session: trading days, the
// 9:15–15:30 IST window, and whether a daily bar is final.
package markethours

import (
	"fmt"
	"time"

	"ma-screener/internal/model"
)

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// Market hours in IST
const (
	OpenHour    = 9
	OpenMinute  = 15
	CloseHour   = 15
	CloseMinute = 30

	// Daily bars from the data vendors settle a little after the close.
	SettleMinutesAfter = 15
)

// IsMarketOpen returns true if t falls within NSE trading hours
// (9:15 AM – 3:30 PM IST, Mon–Fri, excluding holidays).
func IsMarketOpen(t time.Time) bool {
	ist := t.In(IST)
	if !IsTradingDay(ist) {
		return false
	}
	hm := ist.Hour()*60 + ist.Minute()
	return hm >= OpenHour*60+OpenMinute && hm < CloseHour*60+CloseMinute
}

// IsWeekday returns true if t is Mon–Fri.
func IsWeekday(t time.Time) bool {
	wd := t.In(IST).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay returns true if t is a weekday and not a holiday.
func IsTradingDay(t time.Time) bool {
	ist := t.In(IST)
	return IsWeekday(ist) && !IsHoliday(ist)
}

// TodayClose returns today's market close time (3:30 PM IST).
func TodayClose(t time.Time) time.Time {
	ist := t.In(IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), CloseHour, CloseMinute, 0, 0, IST)
}

// SettledAt is when the daily bar of t's session becomes final.
func SettledAt(t time.Time) time.Time {
	return TodayClose(t).Add(SettleMinutesAfter * time.Minute)
}

// NextSettle returns the next settle time strictly after t on a trading day.
func NextSettle(t time.Time) time.Time {
	ist := t.In(IST)
	if IsTradingDay(ist) && ist.Before(SettledAt(ist)) {
		return SettledAt(ist)
	}
	d := ist.AddDate(0, 0, 1)
	for i := 0; i < 10; i++ { // max 10 days ahead (holidays + weekends)
		if IsTradingDay(d) {
			return SettledAt(d)
		}
		d = d.AddDate(0, 0, 1)
	}
	return SettledAt(ist.AddDate(0, 0, 1))
}

// LastCompletedSession returns the date of the most recent session whose
// daily bar is final at t.
func LastCompletedSession(t time.Time) time.Time {
	ist := t.In(IST)
	d := ist
	if !ist.After(SettledAt(ist)) {
		d = d.AddDate(0, 0, -1)
	}
	for i := 0; i < 10 && !IsTradingDay(d); i++ {
		d = d.AddDate(0, 0, -1)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// IsForming reports whether a bar dated date is today's session that has
// not settled yet at now.
func IsForming(date, now time.Time) bool {
	ist := now.In(IST)
	if !IsTradingDay(ist) || !ist.Before(SettledAt(ist)) {
		return false
	}
	return date.Format(model.DateLayout) == ist.Format(model.DateLayout)
}

// DropForming removes a trailing bar that is still forming at now. The
// input is not modified.
func DropForming(bars []model.Bar, now time.Time) []model.Bar {
	n := len(bars)
	if n == 0 || !IsForming(bars[n-1].Date, now) {
		return bars
	}
	return bars[:n-1]
}

// StatusString returns a human-readable market status.
func StatusString(t time.Time) string {
	if IsMarketOpen(t) {
		d := TodayClose(t).Sub(t.In(IST))
		return fmt.Sprintf("Market Open — closes in %s", fmtDur(d))
	}
	next := NextSettle(t)
	return fmt.Sprintf("Market Closed — last session %s, next bar final %s %s",
		LastCompletedSession(t).Format(model.DateLayout),
		next.Weekday().String()[:3], next.Format("15:04"))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
