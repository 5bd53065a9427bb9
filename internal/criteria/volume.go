package criteria

import "github.com/wonny/scanengine/internal/contracts"

// VolumeSurge matches when the as-of volume is at least `ratio` times the mean of the prior `period` bars
type VolumeSurge struct{}

// Evaluate implements contracts.Evaluator
func (VolumeSurge) Evaluate(s contracts.Series, p contracts.Params) contracts.Outcome {
	period := int(p.Get("period", 20))
	ratio := p.Get("ratio", 2)

	if period < 1 || s.Len() < period+1 {
		return contracts.NoData()
	}

	avg := meanVolume(s.Bars[s.Len()-1-period : s.Len()-1])
	if avg == 0 {
		return contracts.NoMatch()
	}

	got := s.Last().Volume / avg
	if got < ratio {
		return contracts.NoMatch()
	}

	return match(s, map[string]float64{"volume_ratio": got})
}
