package commands

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/scanengine/internal/api"
	"github.com/wonny/scanengine/internal/api/handlers"
	"github.com/wonny/scanengine/internal/scheduler"
	"github.com/wonny/scanengine/internal/scheduler/jobs"
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "장중 모니터링 + API 서버",
	Long: `장중 스케줄에 맞춰 당일 스캔을 반복 실행하고
상태 조회/취소/스트리밍 API 를 제공합니다.

워커풀은 첫 사이클에 한 번 기동되고 이후 사이클은
유니버스 데이터만 교체합니다.

Endpoints:
  GET  /health               - Health check
  GET  /metrics              - Prometheus metrics
  GET  /api/scans/status     - 파이프라인 상태
  GET  /api/scans/latest     - 최근 스캔 결과
  POST /api/scans/cancel     - 진행 중 스캔 취소
  GET  /api/jobs             - 스케줄러 작업 통계
  GET  /api/monitor/stream   - WebSocket 스캔 스트림

Example:
  go run ./cmd/scanner monitor --family volume_surge --param ratio=3
  go run ./cmd/scanner monitor --family momentum --schedule "0 */1 9-15 * * MON-FRI" --now`,
	RunE: runMonitor,
}

var (
	monitorFlags    requestFlags
	monitorSchedule string
	monitorPort     string
	monitorNow      bool
	monitorRetries  int
)

func init() {
	rootCmd.AddCommand(monitorCmd)

	monitorFlags.bind(monitorCmd)
	monitorCmd.Flags().StringVar(&monitorSchedule, "schedule", "", "cron 스케줄 (기본: SCAN_MONITOR_SCHEDULE)")
	monitorCmd.Flags().StringVar(&monitorPort, "port", "", "API 서버 포트 (기본: PORT)")
	monitorCmd.Flags().BoolVar(&monitorNow, "now", false, "시작 즉시 1회 실행")
	monitorCmd.Flags().IntVar(&monitorRetries, "retries", 0, "실패 시 재시도 횟수")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	req, err := monitorFlags.build()
	if err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if monitorPort != "" {
		a.cfg.Port = monitorPort
	}
	schedule := monitorSchedule
	if schedule == "" {
		schedule = a.cfg.Scan.MonitorSchedule
	}

	p, err := a.newPipeline()
	if err != nil {
		return err
	}
	defer p.Close()

	// 1. Scheduler
	sched := scheduler.New(a.log, scheduler.WithRetries(monitorRetries, 10*time.Second))

	monitorJob := jobs.NewMonitorJob(p, req, schedule, a.log)
	if err := sched.AddJob(monitorJob); err != nil {
		return fmt.Errorf("register monitor job: %w", err)
	}
	if len(req.Universe) == 0 {
		universeJob := jobs.NewUniverseJob(a.resolver, req.Exchange, monitorJob, a.log)
		if err := sched.AddJob(universeJob); err != nil {
			return fmt.Errorf("register universe job: %w", err)
		}
		if _, err := sched.RunJob(universeJob.Name()); err != nil {
			return err
		}
	}

	// 2. API server
	var metricsHandler http.Handler
	if a.metrics != nil {
		metricsHandler = a.metrics.Handler()
	}
	checks := map[string]api.HealthCheck{}
	if a.db != nil {
		checks["database"] = func(r *http.Request) error { return a.db.Ping(r.Context()) }
	}
	if a.rc.Enabled() {
		checks["redis"] = func(r *http.Request) error { return a.rc.Redis().Ping(r.Context()).Err() }
	}

	scanHandler := handlers.NewScanHandler(p, sched, a.log)
	router := api.NewRouter(scanHandler, metricsHandler, a.log, checks)
	server := api.New(a.cfg, a.log, router)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	sched.Start()
	if monitorNow {
		go func() {
			_, _ = sched.RunJob(monitorJob.Name())
		}()
	}

	next, _ := sched.NextRun(monitorJob.Name())
	PrintHeader("Scan Monitor", [][2]string{
		{"Run ID", p.ID()},
		{"Family", string(req.Family)},
		{"Schedule", schedule},
		{"Next run", next.Format("2006-01-02 15:04:05")},
		{"Server", "http://localhost:" + a.cfg.Port},
	})
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal or server failure
	quit := make(chan struct{})
	stop := onInterrupt(func() { close(quit) })
	defer stop()

	select {
	case <-quit:
	case err := <-serverErr:
		if err != nil {
			a.log.WithError(err).Error("API server stopped")
		}
	}

	a.log.Info("Shutting down monitor...")

	if err := p.RequestCancel(); err != nil {
		a.log.WithError(err).Warn("Pool termination incomplete")
	}
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	a.log.Info("Monitor stopped")
	return nil
}
