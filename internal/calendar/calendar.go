package calendar

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Calendar is a weekday trading calendar with an explicit holiday set.
// Dates are compared by calendar day; time of day and location are ignored.
type Calendar struct {
	holidays map[string]struct{}
}

// New creates a calendar; holidays are non-trading weekdays
func New(holidays ...time.Time) *Calendar {
	c := &Calendar{holidays: make(map[string]struct{}, len(holidays))}
	for _, h := range holidays {
		c.holidays[h.Format(dateLayout)] = struct{}{}
	}
	return c
}

// Parse builds a calendar from YYYY-MM-DD strings (SCAN_HOLIDAYS)
func Parse(dates []string) (*Calendar, error) {
	holidays := make([]time.Time, 0, len(dates))
	for _, s := range dates {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		d, err := time.Parse(dateLayout, s)
		if err != nil {
			return nil, fmt.Errorf("parse holiday %q: %w", s, err)
		}
		holidays = append(holidays, d)
	}
	return New(holidays...), nil
}

// IsTradingDay reports whether d is a weekday that is not a holiday
func (c *Calendar) IsTradingDay(d time.Time) bool {
	if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		return false
	}
	_, holiday := c.holidays[d.Format(dateLayout)]
	return !holiday
}

// Latest returns the last trading day on or before d
func (c *Calendar) Latest(d time.Time) time.Time {
	d = Truncate(d)
	for !c.IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// Back returns the trading day n sessions before the latest trading day on or before from.
// Back(from, 0) == Latest(from).
func (c *Calendar) Back(from time.Time, n int) time.Time {
	d := c.Latest(from)
	for i := 0; i < n; i++ {
		d = c.Latest(d.AddDate(0, 0, -1))
	}
	return d
}

// Truncate drops the time of day, keeping the date in UTC
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
