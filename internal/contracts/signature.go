package contracts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Signature identifies a criterion configuration for the day cache.
// Two requests share cached days only when family, params, orientation, exchange,
// lookback and universe all agree. Universe order does not matter.
func Signature(r *ScanRequest) string {
	h := sha256.New()
	fmt.Fprintf(h, "family=%s\n", r.Family)
	fmt.Fprintf(h, "orientation=%s\n", r.Orientation)
	fmt.Fprintf(h, "exchange=%s\n", strings.ToUpper(r.Exchange))
	fmt.Fprintf(h, "lookback=%d\n", r.Lookback)

	keys := make([]string, 0, len(r.Params))
	for k := range r.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "param.%s=%g\n", k, r.Params[k])
	}

	universe := append([]string(nil), r.Universe...)
	sort.Strings(universe)
	fmt.Fprintf(h, "universe=%s\n", strings.Join(universe, ","))

	return hex.EncodeToString(h.Sum(nil))[:24]
}
