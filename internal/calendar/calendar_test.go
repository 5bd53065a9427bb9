package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCalendar_IsTradingDay(t *testing.T) {
	c := New(date(2026, 3, 2)) // Monday holiday

	tests := []struct {
		name string
		d    time.Time
		want bool
	}{
		{name: "friday", d: date(2026, 3, 6), want: true},
		{name: "saturday", d: date(2026, 3, 7), want: false},
		{name: "sunday", d: date(2026, 3, 8), want: false},
		{name: "holiday", d: date(2026, 3, 2), want: false},
		{name: "tuesday", d: date(2026, 3, 3), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.IsTradingDay(tt.d))
		})
	}
}

func TestCalendar_Back(t *testing.T) {
	c := New(date(2026, 3, 2))
	sunday := time.Date(2026, 3, 8, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		n    int
		want time.Time
	}{
		{n: 0, want: date(2026, 3, 6)},
		{n: 1, want: date(2026, 3, 5)},
		{n: 3, want: date(2026, 3, 3)},
		{n: 4, want: date(2026, 2, 27)}, // skips the holiday and the weekend
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, c.Back(sunday, tt.n), "n=%d", tt.n)
	}
}

func TestParse(t *testing.T) {
	c, err := Parse([]string{"2026-03-02", " ", "2026-05-05"})
	require.NoError(t, err)
	assert.False(t, c.IsTradingDay(date(2026, 5, 5)))

	_, err = Parse([]string{"03/02/2026"})
	assert.Error(t, err)
}
