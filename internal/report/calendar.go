// Package report assembles the dashboard views: calendar navigation, cached
// month chart series, day views and session detail views over the whistle
// store. All calendar math is done in UTC.
package report

import (
	"fmt"
	"time"
)

// Direction selects which neighbor AdjustMonth and AdjustDay move to.
type Direction string

const (
	Next     Direction = "next"
	Previous Direction = "previous"
)

const dateLayout = "2006-01-02"

// MonthBounds returns the [start, end) UTC window covering the whole month.
func MonthBounds(year int, month time.Month) (time.Time, time.Time) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// DayBounds returns the [start, end) UTC window covering t's calendar day.
func DayBounds(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// AdjustMonth returns the first day of the month adjacent to date's month,
// rolling the year over at the December/January boundary.
func AdjustMonth(date string, dir Direction) (string, error) {
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return "", fmt.Errorf("adjust month: %w", err)
	}
	year, month := t.Year(), int(t.Month())
	switch dir {
	case Next:
		month++
		if month > 12 {
			month = 1
			year++
		}
	case Previous:
		month--
		if month < 1 {
			month = 12
			year--
		}
	default:
		return "", fmt.Errorf("adjust month: unknown direction %q", dir)
	}
	return fmt.Sprintf("%04d-%02d-01", year, month), nil
}

// AdjustDay returns the calendar day adjacent to date.
func AdjustDay(date string, dir Direction) (string, error) {
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return "", fmt.Errorf("adjust day: %w", err)
	}
	switch dir {
	case Next:
		t = t.AddDate(0, 0, 1)
	case Previous:
		t = t.AddDate(0, 0, -1)
	default:
		return "", fmt.Errorf("adjust day: unknown direction %q", dir)
	}
	return t.Format(dateLayout), nil
}
