package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/scanengine/internal/contracts"
	"github.com/wonny/scanengine/internal/criteria"
)

// requestFlags are the scan request flags shared by scan, backtest, monitor and cache
type requestFlags struct {
	family      string
	params      []string
	universe    []string
	exchange    string
	asOf        string
	quota       int
	orientation string
	lookback    int
}

func (f *requestFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.family, "family", "momentum", "조건식 family ("+strings.Join(criteria.Families(), ", ")+")")
	cmd.Flags().StringSliceVar(&f.params, "param", nil, "조건식 파라미터 key=value (반복 가능)")
	cmd.Flags().StringSliceVar(&f.universe, "universe", nil, "종목코드 목록 (생략 시 --exchange 전체)")
	cmd.Flags().StringVar(&f.exchange, "exchange", "KOSPI", "거래소 (KOSPI|KOSDAQ)")
	cmd.Flags().StringVar(&f.asOf, "as-of", "", "기준일 YYYY-MM-DD (기본: 최근 거래일)")
	cmd.Flags().IntVar(&f.quota, "quota", 0, "하루 최대 매칭 수 (0 = 무제한)")
	cmd.Flags().StringVar(&f.orientation, "orientation", "buy", "buy | sell")
	cmd.Flags().IntVar(&f.lookback, "lookback", 0, "평가에 넘길 과거 봉 수 (기본: SCAN_LOOKBACK_DAYS)")
}

func (f *requestFlags) build() (contracts.ScanRequest, error) {
	params, err := parseParams(f.params)
	if err != nil {
		return contracts.ScanRequest{}, err
	}

	req := contracts.ScanRequest{
		Family:      contracts.Family(f.family),
		Params:      params,
		Universe:    f.universe,
		Exchange:    strings.ToUpper(f.exchange),
		Quota:       f.quota,
		Orientation: contracts.Orientation(strings.ToLower(f.orientation)),
		Lookback:    f.lookback,
	}

	if _, err := criteria.Lookup(req.Family); err != nil {
		return req, err
	}

	if f.asOf != "" {
		t, err := time.Parse("2006-01-02", f.asOf)
		if err != nil {
			return req, fmt.Errorf("--as-of: %w", err)
		}
		req.AsOf = t
	}

	return req, nil
}

// parseParams turns ["period=20", "min_return=5"] into Params
func parseParams(kvs []string) (contracts.Params, error) {
	if len(kvs) == 0 {
		return nil, nil
	}
	out := make(contracts.Params, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid param %q (want key=value)", kv)
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", k, err)
		}
		out[strings.TrimSpace(k)] = n
	}
	return out, nil
}

// parseStage parses a chained stage "family[:k=v,k=v]"; the stage inherits base's
// exchange, as-of, orientation, quota and lookback
func parseStage(spec string, base contracts.ScanRequest) (contracts.ScanRequest, error) {
	name, rest, _ := strings.Cut(spec, ":")

	st := base
	st.Family = contracts.Family(strings.TrimSpace(name))
	st.Universe = nil
	st.Params = nil

	if _, err := criteria.Lookup(st.Family); err != nil {
		return st, fmt.Errorf("stage %q: %w", spec, err)
	}

	if rest != "" {
		params, err := parseParams(strings.Split(rest, ","))
		if err != nil {
			return st, fmt.Errorf("stage %q: %w", spec, err)
		}
		st.Params = params
	}
	return st, nil
}
