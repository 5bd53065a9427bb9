package criteria

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/wonny/scanengine/internal/contracts"
)

// Registry maps every built-in family to its evaluator.
// Evaluators are stateless values; one instance serves all workers.
// ⭐ SSOT: 조건식 패밀리 등록은 여기서만
func Registry() map[contracts.Family]contracts.Evaluator {
	return map[contracts.Family]contracts.Evaluator{
		contracts.FamilyMomentum:    Momentum{},
		contracts.FamilyBreakout:    Breakout{},
		contracts.FamilyVolumeSurge: VolumeSurge{},
	}
}

// Lookup returns the evaluator of one family
func Lookup(family contracts.Family) (contracts.Evaluator, error) {
	ev, ok := Registry()[family]
	if !ok {
		return nil, fmt.Errorf("unknown criterion family %q", family)
	}
	return ev, nil
}

// Families lists the registered family names, sorted
func Families() []string {
	reg := Registry()
	out := make([]string, 0, len(reg))
	for f := range reg {
		out = append(out, string(f))
	}
	sort.Strings(out)
	return out
}

// ForwardReturns computes pct returns from the as-of close to each horizon's close.
// Horizons beyond the available forward bars are omitted.
func ForwardReturns(s contracts.Series) map[int]float64 {
	if s.Len() == 0 || len(s.Forward) == 0 {
		return nil
	}
	base := s.Last().Close
	if base == 0 {
		return nil
	}

	out := make(map[int]float64, len(contracts.Horizons))
	for _, h := range contracts.Horizons {
		if h > len(s.Forward) {
			break
		}
		out[h] = (s.Forward[h-1].Close - base) / base * 100
	}
	return out
}

// match builds the outcome shared by every family
func match(s contracts.Series, persist map[string]float64) contracts.Outcome {
	last := s.Last()
	persist["close"] = last.Close
	persist["volume"] = last.Volume

	display := make(map[string]string, len(persist))
	for k, v := range persist {
		display[k] = strconv.FormatFloat(v, 'f', 2, 64)
	}

	record := &contracts.ScanRecord{
		Instrument: s.Instrument,
		AsOf:       s.AsOf,
		Display:    display,
		Persist:    persist,
	}

	var sample *contracts.BacktestSample
	if returns := ForwardReturns(s); len(returns) > 0 {
		sample = &contracts.BacktestSample{
			Instrument: s.Instrument,
			AsOf:       s.AsOf,
			Returns:    returns,
		}
	}

	return contracts.Match(record, sample)
}

func meanVolume(bars []contracts.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	sum := 0.0
	for _, b := range bars {
		sum += b.Volume
	}
	return sum / float64(len(bars))
}
