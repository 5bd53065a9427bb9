package criteria

import "github.com/wonny/scanengine/internal/contracts"

// Momentum matches when the return over `period` bars reaches `min_return` pct.
// `direction` -1 flips it to a decline screen (return <= -min_return).
type Momentum struct{}

// Evaluate implements contracts.Evaluator
func (Momentum) Evaluate(s contracts.Series, p contracts.Params) contracts.Outcome {
	period := int(p.Get("period", 20))
	minReturn := p.Get("min_return", 5)
	direction := p.Get("direction", 1)

	if period < 1 || s.Len() < period+1 {
		return contracts.NoData()
	}

	past := s.Bars[s.Len()-1-period].Close
	if past == 0 {
		return contracts.NoData()
	}
	ret := (s.Last().Close - past) / past * 100

	if direction < 0 {
		if ret > -minReturn {
			return contracts.NoMatch()
		}
	} else if ret < minReturn {
		return contracts.NoMatch()
	}

	return match(s, map[string]float64{"return_pct": ret})
}
