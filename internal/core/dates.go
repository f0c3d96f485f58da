package core

import "time"

var frenchWeekdays = [...]string{"Dim", "Lun", "Mar", "Mer", "Jeu", "Ven", "Sam"}

// DayStart returns midnight UTC of the day containing t.
func DayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// MonthStart returns midnight UTC of the first day of the month containing t.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// FrenchWeekday returns the three-letter French abbreviation of the weekday.
func FrenchWeekday(t time.Time) string {
	return frenchWeekdays[t.Weekday()]
}

// ParseDay parses a YYYY-MM-DD date as midnight UTC.
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", s, time.UTC)
}

// PeriodDays maps a report period to its length in days.
func PeriodDays(period string) int {
	switch period {
	case "", "day", "week", "jour", "semaine":
		return 7
	default:
		return 14
	}
}
