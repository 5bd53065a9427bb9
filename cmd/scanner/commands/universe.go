package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// universeCmd represents the universe command
var universeCmd = &cobra.Command{
	Use:   "universe",
	Short: "유니버스 조회",
	Long: `거래소 상장 종목 목록을 조회합니다.

DB(data.stocks) 가 있으면 DB 를, 없거나 비어 있으면
네이버 금융 시가총액 페이지를 사용합니다.

Example:
  go run ./cmd/scanner universe --exchange KOSDAQ --limit 50`,
	RunE: runUniverse,
}

var (
	universeExchange string
	universeLimit    int
)

func init() {
	rootCmd.AddCommand(universeCmd)

	universeCmd.Flags().StringVar(&universeExchange, "exchange", "KOSPI", "거래소 (KOSPI|KOSDAQ)")
	universeCmd.Flags().IntVar(&universeLimit, "limit", 30, "출력할 종목 수 (0 = 전체)")
}

func runUniverse(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	exchange := strings.ToUpper(universeExchange)
	list, err := a.resolver.List(ctx, exchange)
	if err != nil {
		PrintError(err.Error())
		return err
	}

	PrintHeader("Universe", [][2]string{
		{"Exchange", exchange},
		{"Count", fmt.Sprintf("%d", len(list))},
	})

	widths := []int{8, 24, 8}
	PrintTableHeader([]string{"Code", "Name", "Market"}, widths)
	for i, inst := range list {
		if universeLimit > 0 && i == universeLimit {
			fmt.Printf("   … %d more\n", len(list)-universeLimit)
			break
		}
		PrintTableRow([]string{inst.Code, inst.Name, inst.Market}, widths)
	}
	return nil
}
