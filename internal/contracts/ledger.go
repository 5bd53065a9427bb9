package contracts

import "time"

// DisplayRow is the human-oriented projection of a ScanRecord
type DisplayRow struct {
	Instrument string            `json:"instrument"`
	AsOf       time.Time         `json:"as_of"`
	Fields     map[string]string `json:"fields"`
}

// PersistRow is the storable projection of a ScanRecord
type PersistRow struct {
	Instrument string             `json:"instrument"`
	AsOf       time.Time          `json:"as_of"`
	Values     map[string]float64 `json:"values"`
}

// DisplayTable is keyed by instrument, at most one row per instrument per as-of date
type DisplayTable []DisplayRow

// PersistTable mirrors DisplayTable with raw values
type PersistTable []PersistRow

// LedgerRow is one backtest outcome: forward returns plus per-horizon hits
type LedgerRow struct {
	Instrument  string          `json:"instrument"`
	AsOf        time.Time       `json:"as_of"`
	Orientation Orientation     `json:"orientation"`
	Returns     map[int]float64 `json:"returns"`
	Hits        map[int]bool    `json:"hits"`
}

// NewLedgerRow scores a sample with its own orientation
func NewLedgerRow(s BacktestSample) LedgerRow {
	row := LedgerRow{
		Instrument:  s.Instrument,
		AsOf:        s.AsOf,
		Orientation: s.Orientation,
		Returns:     make(map[int]float64, len(s.Returns)),
		Hits:        make(map[int]bool, len(s.Returns)),
	}
	for h, r := range s.Returns {
		row.Returns[h] = r
		row.Hits[h] = s.Orientation.Hit(r)
	}
	return row
}
