package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/scanengine/internal/contracts"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "당일 스캔 실행",
	Long: `유니버스 전 종목에 조건식을 병렬 평가합니다.

--then 으로 후속 스테이지를 이어 붙이면 앞 스테이지의 매칭 종목이
다음 스테이지의 유니버스가 되고, 워커풀은 한 번만 기동됩니다.
Ctrl+C 는 진행 중인 스캔을 취소하고 부분 결과를 출력합니다.

Example:
  go run ./cmd/scanner scan --family momentum --param period=20 --param min_return=8
  go run ./cmd/scanner scan --family momentum --quota 50 --then breakout:period=20,volume_ratio=1.5
  go run ./cmd/scanner scan --universe 005930,000660 --test`,
	RunE: runScan,
}

var (
	scanFlags requestFlags
	scanThen  []string
	scanTest  bool
	scanJSON  bool
)

func init() {
	rootCmd.AddCommand(scanCmd)

	scanFlags.bind(scanCmd)
	scanCmd.Flags().StringArrayVar(&scanThen, "then", nil, "후속 스테이지 family[:k=v,k=v] (반복 가능)")
	scanCmd.Flags().BoolVar(&scanTest, "test", false, "테스트 모드 (quota = 1)")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "결과를 JSON 으로 출력")
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	base, err := scanFlags.build()
	if err != nil {
		return err
	}
	stages := []contracts.ScanRequest{base}
	for _, spec := range scanThen {
		st, err := parseStage(spec, base)
		if err != nil {
			return err
		}
		stages = append(stages, st)
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if scanTest {
		a.cfg.Scan.TestMode = true
	}

	p, err := a.newPipeline()
	if err != nil {
		return err
	}
	defer p.Close()

	stop := onInterrupt(func() {
		PrintWarning("Interrupt received, cancelling scan")
		_ = p.RequestCancel()
	})
	defer stop()

	start := time.Now()
	results, err := p.RunChain(ctx, stages)
	if err != nil {
		PrintError(err.Error())
		return err
	}

	if scanJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	for _, res := range results {
		printScanResult(res)
	}
	if len(results) < len(stages) {
		PrintInfo(fmt.Sprintf("Chain ended after %d of %d stages", len(results), len(stages)))
	}

	PrintCompletion("Scan", time.Since(start))
	return nil
}
