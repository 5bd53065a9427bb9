package aggregate

// EffectiveQuota applies test mode (quota forced to 1). A quota <= 0 means unlimited.
func EffectiveQuota(quota int, testMode bool) int {
	if testMode {
		return 1
	}
	return quota
}

// ShouldStop reports whether the result consumer has enough matches for the current batch.
// It is checked after every folded match; results already in flight when it turns true
// are drained but not folded.
func ShouldStop(matched, quota int, testMode bool) bool {
	q := EffectiveQuota(quota, testMode)
	if q <= 0 {
		return false
	}
	return matched >= q
}
