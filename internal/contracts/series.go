package contracts

import "time"

// Bar is one daily OHLCV bar
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Series is one instrument's history as seen from an as-of date.
// Bars ends at the as-of bar (ascending); Forward holds the bars after it and is
// only read to compute backtest forward returns.
type Series struct {
	Instrument string
	AsOf       time.Time
	Bars       []Bar
	Forward    []Bar
}

// Len returns the number of lookback bars
func (s Series) Len() int { return len(s.Bars) }

// Last returns the as-of bar
func (s Series) Last() Bar { return s.Bars[len(s.Bars)-1] }

// Closes returns the close prices of the lookback bars
func (s Series) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}
