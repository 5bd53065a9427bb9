package commands

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/wonny/scanengine/internal/contracts"
	"github.com/wonny/scanengine/internal/engine"
	"github.com/wonny/scanengine/internal/ledger"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

// PrintHeader prints a formatted command header
func PrintHeader(title string, fields [][2]string) {
	fmt.Println()
	PrintDoubleSeparator()
	fmt.Printf("  %s\n", title)
	PrintSeparator()
	for _, f := range fields {
		fmt.Printf("  %-10s: %s\n", f[0], f[1])
	}
	PrintSeparator()
}

// PrintCompletion prints the completion line
func PrintCompletion(what string, d time.Duration) {
	fmt.Println()
	fmt.Printf("✅ %s completed in %.2fs\n", what, d.Seconds())
}

// PrintSeparator prints a visual separator
func PrintSeparator() {
	fmt.Println("───────────────────────────────────────────────────────────")
}

// PrintDoubleSeparator prints a double-line separator
func PrintDoubleSeparator() {
	fmt.Println("═══════════════════════════════════════════════════════════")
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Println()
	fmt.Printf("⚠️  %s\n", message)
	fmt.Println()
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Printf("✅ %s\n", message)
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Printf("❌ %s\n", message)
}

// PrintInfo prints an info message
func PrintInfo(message string) {
	fmt.Printf("ℹ️  %s\n", message)
}

// PrintTableHeader prints a table header
func PrintTableHeader(columns []string, widths []int) {
	PrintTableRow(columns, widths)

	total := 0
	for i, width := range widths {
		total += width
		if i < len(widths)-1 {
			total += 2
		}
	}
	fmt.Println(strings.Repeat("─", total))
}

// PrintTableRow prints a table row
func PrintTableRow(values []string, widths []int) {
	for i, val := range values {
		fmt.Printf("%-*s", widths[i], val)
		if i < len(values)-1 {
			fmt.Print("  ")
		}
	}
	fmt.Println()
}

// PrintKeyValue prints key-value pairs
func PrintKeyValue(key string, value string, keyWidth int) {
	fmt.Printf("   %-*s : %s\n", keyWidth, key, value)
}

// printScanResult prints the display table of one stage
func printScanResult(res *engine.ScanResult) {
	req := res.Request
	PrintHeader(fmt.Sprintf("Stage %d · %s", res.Stage, req.Family), [][2]string{
		{"Run ID", res.RunID},
		{"As-of", req.AsOf.Format("2006-01-02")},
		{"Universe", fmt.Sprintf("%d", len(req.Universe))},
		{"Quota", quotaLabel(req.Quota)},
		{"Matched", fmt.Sprintf("%d", len(res.Display))},
	})

	if len(res.Display) > 0 {
		keys := displayKeys(res.Display)
		columns := append([]string{"Code", "As-of"}, keys...)
		widths := make([]int, len(columns))
		widths[0], widths[1] = 8, 10
		for i := range keys {
			widths[i+2] = 12
		}

		PrintTableHeader(columns, widths)
		for _, row := range res.Display {
			values := []string{row.Instrument, row.AsOf.Format("2006-01-02")}
			for _, k := range keys {
				values = append(values, row.Fields[k])
			}
			PrintTableRow(values, widths)
		}
	}

	if res.Incomplete {
		PrintWarning("Scan was cancelled; the result is partial")
	}
}

// printLedgerSummary prints hit rate and mean return per horizon
func printLedgerSummary(sum ledger.Summary) {
	fmt.Println()
	fmt.Printf("📊 Backtest ledger: %d rows over %d days\n", sum.Rows, sum.Days)
	widths := []int{8, 8, 6, 9, 11}
	PrintTableHeader([]string{"Horizon", "Samples", "Hits", "Hit rate", "Mean ret %"}, widths)
	for _, h := range sum.Horizons {
		PrintTableRow([]string{
			fmt.Sprintf("D+%d", h.Horizon),
			fmt.Sprintf("%d", h.Samples),
			fmt.Sprintf("%d", h.Hits),
			fmt.Sprintf("%.1f%%", h.HitRate*100),
			fmt.Sprintf("%+.2f", h.MeanReturn),
		}, widths)
	}
}

// printLedgerRows prints up to limit ledger rows in ledger order
func printLedgerRows(rows []contracts.LedgerRow, limit int) {
	if limit <= 0 || len(rows) == 0 {
		return
	}
	fmt.Println()
	widths := []int{10, 8, 5, 8, 8, 8}
	PrintTableHeader([]string{"As-of", "Code", "Side", "D+1", "D+5", "D+22"}, widths)
	for i, row := range rows {
		if i == limit {
			fmt.Printf("   … %d more\n", len(rows)-limit)
			break
		}
		PrintTableRow([]string{
			row.AsOf.Format("2006-01-02"),
			row.Instrument,
			string(row.Orientation),
			returnCell(row, 1),
			returnCell(row, 5),
			returnCell(row, 22),
		}, widths)
	}
}

func returnCell(row contracts.LedgerRow, h int) string {
	r, ok := row.Returns[h]
	if !ok {
		return "-"
	}
	mark := " "
	if row.Hits[h] {
		mark = "*"
	}
	return fmt.Sprintf("%+.2f%s", r, mark)
}

func displayKeys(table contracts.DisplayTable) []string {
	set := make(map[string]struct{})
	for _, row := range table {
		for k := range row.Fields {
			set[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func quotaLabel(q int) string {
	if q <= 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d", q)
}

// onInterrupt runs fn on the first SIGINT/SIGTERM until stop is called
func onInterrupt(fn func()) (stop func()) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		select {
		case <-quit:
			fn()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(quit)
		close(done)
	}
}
