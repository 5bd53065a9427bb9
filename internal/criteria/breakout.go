package criteria

import "github.com/wonny/scanengine/internal/contracts"

// Breakout matches when the as-of close exceeds the highest high of the prior `period` bars.
// With `volume_ratio` > 0 the as-of volume must also reach that multiple of the prior mean.
type Breakout struct{}

// Evaluate implements contracts.Evaluator
func (Breakout) Evaluate(s contracts.Series, p contracts.Params) contracts.Outcome {
	period := int(p.Get("period", 20))
	volumeRatio := p.Get("volume_ratio", 0)

	if period < 1 || s.Len() < period+1 {
		return contracts.NoData()
	}

	prior := s.Bars[s.Len()-1-period : s.Len()-1]
	highest := prior[0].High
	for _, b := range prior[1:] {
		if b.High > highest {
			highest = b.High
		}
	}

	last := s.Last()
	if last.Close <= highest {
		return contracts.NoMatch()
	}

	persist := map[string]float64{"prior_high": highest}
	if volumeRatio > 0 {
		avg := meanVolume(prior)
		if avg == 0 || last.Volume < volumeRatio*avg {
			return contracts.NoMatch()
		}
		persist["volume_ratio"] = last.Volume / avg
	}

	return match(s, persist)
}
