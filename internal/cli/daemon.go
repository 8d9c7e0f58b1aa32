package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aravindh-murugesan/autobackup-go/internal/workflow"
	"github.com/go-co-op/gocron-ui/server"
	"github.com/go-co-op/gocron/v2"
	"github.com/spf13/cobra"
)

var (
	runSchedule string
	bindAddress string
	uiPort      int
)

var daemonCommand = &cobra.Command{
	Use:     "daemon",
	Short:   "Run AutoBackup in daemon mode",
	GroupID: "autobackup",
	Long:    `Starts AutoBackup as a long running service that executes the full backup and retention workflow on a cron schedule and serves a scheduler dashboard.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		banner := fmt.Sprintf("AutoBackup - Daemon Mode \n\nVersion: %s\nBuild Date: %s", AutoBackupVersion, AutoBackupDate)
		fmt.Println(headerStyle.Render(banner))

		dlog := workflow.SetupLogger(cfg.LogLevel, cfg.Provider).With("component", "daemon")

		// Every scheduled run must use its own date.
		jobCfg := cfg
		if jobCfg.RunDate != "" {
			dlog.Warn("Ignoring run-date in daemon mode", "run_date", jobCfg.RunDate)
			jobCfg.RunDate = ""
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s, err := gocron.NewScheduler()
		if err != nil {
			return fmt.Errorf("failed to create scheduler: %w", err)
		}
		s.Start()
		dlog.Info("Scheduler started", "regions", jobCfg.Regions)

		// Declared first so that the task closure can report the next run.
		var runJob gocron.Job

		runJob, err = s.NewJob(
			gocron.CronJob(runSchedule, false),
			gocron.NewTask(func() {
				summary, err := workflow.RunAutoBackupWorkflow(ctx, jobCfg, workflow.AllPhases)
				if err != nil {
					dlog.Error("Backup workflow failed", "error", err, "run_id", summary.RunID)
				}

				if runJob != nil {
					if nextRun, err := runJob.NextRun(); err == nil {
						dlog.Info("Backup workflow completed",
							"next_run", nextRun.Format(time.RFC3339),
							"job_id", runJob.ID())
					}
				}
			}),
			gocron.WithName("AutoBackup Workflow"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			_ = s.Shutdown()
			return fmt.Errorf("failed to schedule workflow: %w", err)
		}

		if nextRun, err := runJob.NextRun(); err == nil {
			dlog.Info("Job Scheduled",
				"job_name", runJob.Name(),
				"job_id", runJob.ID(),
				"schedule", runSchedule,
				"next_run", nextRun.Format(time.RFC3339))
		}

		srv := server.NewServer(s, uiPort, server.WithTitle("AutoBackup - Dashboard"))
		httpServer := &http.Server{Addr: bindAddress, Handler: srv.Router}

		go func() {
			dlog.Info("AutoBackup Scheduler UI started", "address", bindAddress)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				dlog.Error("Failed to start UI server", "error", err)
				stop()
			}
		}()

		<-ctx.Done()
		dlog.Warn("Shutting down scheduler due to system signal...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		return s.Shutdown()
	},
}

func init() {
	rootCommand.AddCommand(daemonCommand)
	daemonCommand.Flags().StringVar(&runSchedule, "schedule", "0 1 * * *", "Cron schedule for the backup workflow")
	daemonCommand.Flags().StringVar(&bindAddress, "bind-address", "0.0.0.0:8080", "Address to bind the UI server")
	daemonCommand.Flags().IntVar(&uiPort, "ui-port", 8080, "Public port the dashboard uses for its API calls")
}
