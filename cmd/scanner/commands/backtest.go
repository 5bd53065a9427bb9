package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// backtestCmd represents the backtest command
var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "과거 N 거래일 백테스트",
	Long: `기준일부터 과거 N 거래일 각각에 대해 스캔을 실행하고
매칭 종목의 D+1 … D+30 수익률로 원장을 만듭니다.

완료된 날짜는 데이 캐시(SCAN_DAY_CACHE)에 저장되어
같은 조건식으로 다시 실행하면 재계산하지 않습니다.

Example:
  go run ./cmd/scanner backtest --family breakout --days 60
  go run ./cmd/scanner backtest --family momentum --param direction=-1 --orientation sell --days 20`,
	RunE: runBacktest,
}

var (
	backtestFlags requestFlags
	backtestDays  int
	backtestRows  int
	backtestJSON  bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestFlags.bind(backtestCmd)
	backtestCmd.Flags().IntVar(&backtestDays, "days", 20, "백테스트 거래일 수")
	backtestCmd.Flags().IntVar(&backtestRows, "rows", 20, "출력할 원장 행 수")
	backtestCmd.Flags().BoolVar(&backtestJSON, "json", false, "결과를 JSON 으로 출력")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if backtestDays <= 0 {
		return fmt.Errorf("--days must be positive")
	}

	req, err := backtestFlags.build()
	if err != nil {
		return err
	}
	req.SampleWindow = backtestDays

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

	stop := onInterrupt(func() {
		PrintWarning("Interrupt received, cancelling backtest")
		_ = p.RequestCancel()
	})
	defer stop()

	start := time.Now()
	res, _, err := p.RunScan(ctx, req, nil)
	if err != nil {
		PrintError(err.Error())
		return err
	}

	if backtestJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	PrintHeader(fmt.Sprintf("Backtest · %s", res.Request.Family), [][2]string{
		{"Run ID", res.RunID},
		{"Signature", res.Signature},
		{"Days", fmt.Sprintf("%d (%d cached, %d computed)", len(res.Days), res.CacheHits, res.Batches)},
		{"Universe", fmt.Sprintf("%d", len(res.Request.Universe))},
		{"Side", string(res.Request.Orientation)},
	})
	printLedgerSummary(res.Summary)
	printLedgerRows(res.Ledger, backtestRows)

	if res.Incomplete {
		PrintWarning("Backtest was cancelled; the ledger covers completed days only")
	}

	PrintCompletion("Backtest", time.Since(start))
	return nil
}
