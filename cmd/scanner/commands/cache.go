package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/scanengine/internal/daywalker"
)

// cacheCmd represents the cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "데이 캐시 관리",
	Long: `백테스트 데이 캐시를 조회하거나 삭제합니다.

캐시 키는 조건식 시그니처(family, params, orientation,
exchange, lookback, universe)와 기준일로 구성됩니다.

Example:
  go run ./cmd/scanner cache get --family breakout --days 5
  go run ./cmd/scanner cache clear --family breakout`,
}

var cacheGetCmd = &cobra.Command{
	Use:   "get",
	Short: "캐시된 날짜 조회",
	RunE:  runCacheGet,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "시그니처의 캐시 삭제",
	RunE:  runCacheClear,
}

var (
	cacheFlags requestFlags
	cacheDays  int
)

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheGetCmd)
	cacheCmd.AddCommand(cacheClearCmd)

	cacheFlags.bind(cacheGetCmd)
	cacheGetCmd.Flags().IntVar(&cacheDays, "days", 20, "조회할 거래일 수")

	cacheFlags.bind(cacheClearCmd)
}

func runCacheGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	req, err := cacheFlags.build()
	if err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	p, err := a.newPipeline()
	if err != nil {
		return err
	}
	defer p.Close()

	req.SampleWindow = cacheDays
	prepared, sig, err := p.Signature(ctx, req)
	if err != nil {
		return err
	}

	PrintHeader("Day Cache", [][2]string{
		{"Signature", sig},
		{"Backend", a.cfg.Scan.DayCache},
		{"Family", string(prepared.Family)},
		{"Universe", fmt.Sprintf("%d", len(prepared.Universe))},
	})

	widths := []int{10, 8, 6}
	PrintTableHeader([]string{"As-of", "Cached", "Rows"}, widths)

	hits := 0
	for _, day := range daywalker.Dates(a.cal, &prepared) {
		rows, ok, err := a.cache.Get(ctx, sig, day)
		status := "-"
		switch {
		case err != nil:
			status = "error"
		case ok:
			status = "yes"
			hits++
		}
		count := ""
		if ok {
			count = fmt.Sprintf("%d", len(rows))
		}
		PrintTableRow([]string{day.Format("2006-01-02"), status, count}, widths)
	}

	fmt.Println()
	PrintInfo(fmt.Sprintf("%d of %d days cached", hits, cacheDays+1))
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	req, err := cacheFlags.build()
	if err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	p, err := a.newPipeline()
	if err != nil {
		return err
	}
	defer p.Close()

	_, sig, err := p.Signature(ctx, req)
	if err != nil {
		return err
	}

	n, err := a.cache.Clear(ctx, sig)
	if err != nil {
		PrintError(err.Error())
		return err
	}

	PrintSuccess(fmt.Sprintf("Cleared %d cached days for signature %s", n, sig))
	return nil
}
