package markethours

import (
	"sort"
	"time"
)

// NSE equity segment trading holidays by year, as published by NSE.
// Weekend holidays are omitted since weekends are closed anyway.
var nseHolidays = map[int][]string{
	2025: {
		"2025-02-26", // Mahashivratri
		"2025-03-14", // Holi
		"2025-03-31", // Id-ul-Fitr
		"2025-04-10", // Mahavir Jayanti
		"2025-04-14", // Dr. Ambedkar Jayanti
		"2025-04-18", // Good Friday
		"2025-05-01", // Maharashtra Day
		"2025-08-15", // Independence Day
		"2025-08-27", // Ganesh Chaturthi
		"2025-10-02", // Gandhi Jayanti / Dussehra
		"2025-10-21", // Diwali Laxmi Pujan
		"2025-10-22", // Balipratipada
		"2025-11-05", // Guru Nanak Jayanti
		"2025-12-25", // Christmas
	},
	2026: {
		"2026-01-26", // Republic Day
		"2026-02-17", // Mahashivratri
		"2026-03-14", // Holi
		"2026-03-31", // Id-ul-Fitr
		"2026-04-02", // Ram Navami
		"2026-04-06", // Mahavir Jayanti
		"2026-04-10", // Good Friday
		"2026-04-14", // Dr. Ambedkar Jayanti
		"2026-05-01", // Maharashtra Day
		"2026-06-07", // Bakrid
		"2026-07-06", // Muharram
		"2026-08-15", // Independence Day
		"2026-08-16", // Janmashtami
		"2026-09-05", // Milad-un-Nabi
		"2026-10-02", // Gandhi Jayanti
		"2026-10-20", // Dussehra
		"2026-10-21", // Dussehra
		"2026-11-05", // Diwali Laxmi Pujan
		"2026-11-06", // Balipratipada
		"2026-11-07", // Bhai Dooj
		"2026-11-19", // Guru Nanak Jayanti
		"2026-12-25", // Christmas
	},
}

var holidaySet = func() map[string]bool {
	set := make(map[string]bool)
	for _, days := range nseHolidays {
		for _, d := range days {
			set[d] = true
		}
	}
	return set
}()

// IsHoliday reports whether the IST date of t is a listed NSE holiday.
// Years without a published list have no holidays.
func IsHoliday(t time.Time) bool {
	return holidaySet[t.In(IST).Format("2006-01-02")]
}

// HolidayYears returns the years with a holiday list, ascending.
func HolidayYears() []int {
	years := make([]int, 0, len(nseHolidays))
	for y := range nseHolidays {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}
