package markethours

import "time"

// NYSE full-day closures, observed dates.
var nyseHolidays = map[int][]struct {
	month time.Month
	day   int
}{
	2025: {
		{time.January, 1},   // New Year's Day
		{time.January, 9},   // National Day of Mourning
		{time.January, 20},  // Martin Luther King Jr. Day
		{time.February, 17}, // Washington's Birthday
		{time.April, 18},    // Good Friday
		{time.May, 26},      // Memorial Day
		{time.June, 19},     // Juneteenth
		{time.July, 4},      // Independence Day
		{time.September, 1}, // Labor Day
		{time.November, 27}, // Thanksgiving
		{time.December, 25}, // Christmas
	},
	2026: {
		{time.January, 1},
		{time.January, 19},
		{time.February, 16},
		{time.April, 3},
		{time.May, 25},
		{time.June, 19},
		{time.July, 3}, // Independence Day (observed)
		{time.September, 7},
		{time.November, 26},
		{time.December, 25},
	},
	2027: {
		{time.January, 1},
		{time.January, 18},
		{time.February, 15},
		{time.March, 26},
		{time.May, 31},
		{time.June, 18}, // Juneteenth (observed)
		{time.July, 5},  // Independence Day (observed)
		{time.September, 6},
		{time.November, 25},
		{time.December, 24}, // Christmas (observed)
	},
}

var holidaySet map[string]bool

func init() {
	holidaySet = make(map[string]bool)
	for year, days := range nyseHolidays {
		for _, h := range days {
			holidaySet[dateKey(year, h.month, h.day)] = true
		}
	}
}

// IsHoliday returns true if the date (in New York) is an NYSE holiday.
func IsHoliday(t time.Time) bool {
	et := t.In(NewYork)
	return holidaySet[dateKey(et.Year(), et.Month(), et.Day())]
}

func dateKey(year int, month time.Month, day int) string {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
}
