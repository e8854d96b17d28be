package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run or inspect maintenance jobs",
	Long: `Maintenance jobs keep the order layer tidy.

Jobs:
  idempotency_sweep     - every minute, drops expired idempotency records
  read_cache_sweep      - every 30s, drops expired read views
  order_reconcile       - every 10s, advances orders to the venue's status
  client_limiter_evict  - every 5m, drops idle per-user / per-IP buckets
  retry_state_cleanup   - every 10m, forgets finished retry bookkeeping

Subcommands:
  start   - run the scheduler in the foreground
  list    - list registered jobs
  run     - run one job now
  status  - show job statistics

Example:
  go run ./cmd/vega scheduler start
  go run ./cmd/vega scheduler run order_reconcile`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "Run the scheduler until interrupted",
		RunE:  runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "List registered jobs",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "Run one job immediately",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}

	schedulerStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show job statistics",
		RunE:  showStatus,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
	schedulerCmd.AddCommand(schedulerStatusCmd)
}

func withApp(fn func(a *app) error) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(context.Background(), cfg, log)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer a.Close()
	return fn(a)
}

func runScheduler(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app) error {
		sched, err := a.newScheduler()
		if err != nil {
			return fmt.Errorf("init scheduler: %w", err)
		}
		sched.Start()

		fmt.Println("\n✅ Scheduler started")
		fmt.Println("\nRegistered jobs:")
		for _, jobName := range sched.GetAllJobs() {
			fmt.Printf("  - %s\n", jobName)
		}
		fmt.Println("\nPress Ctrl+C to stop")

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit

		fmt.Println("\nShutting down scheduler...")
		sched.Stop()
		return nil
	})
}

func listJobs(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app) error {
		sched, err := a.newScheduler()
		if err != nil {
			return err
		}
		stats := sched.GetJobStats()
		fmt.Println("Registered jobs:")
		for _, jobName := range sched.GetAllJobs() {
			fmt.Printf("  - %-22s %s\n", jobName, stats[jobName].Schedule)
		}
		return nil
	})
}

func runJob(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app) error {
		sched, err := a.newScheduler()
		if err != nil {
			return err
		}
		result, err := sched.RunJob(args[0])
		if err != nil {
			return fmt.Errorf("run job: %w", err)
		}
		if !result.Success {
			return fmt.Errorf("job %s failed: %s", result.JobName, result.Error)
		}
		fmt.Printf("✅ %s completed in %v\n", result.JobName, result.Duration)
		return nil
	})
}

func showStatus(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app) error {
		sched, err := a.newScheduler()
		if err != nil {
			return err
		}
		stats := sched.GetJobStats()

		fmt.Println("Job Statistics:")
		fmt.Println()
		for _, jobName := range sched.GetAllJobs() {
			stat := stats[jobName]
			fmt.Printf("📊 %s\n", jobName)
			fmt.Printf("   Schedule: %s\n", stat.Schedule)
			fmt.Printf("   Total Runs: %d\n", stat.TotalRuns)
			fmt.Printf("   Success: %d (%.1f%%)\n", stat.SuccessCount, stat.SuccessRate*100)
			fmt.Printf("   Failures: %d\n", stat.FailureCount)
			if stat.LastRun != nil {
				fmt.Printf("   Last Run: %s\n", stat.LastRun.Format("2006-01-02 15:04:05"))
			}
			if stat.NextRun != nil {
				fmt.Printf("   Next Run: %s\n", stat.NextRun.Format("2006-01-02 15:04:05"))
			}
			fmt.Println()
		}
		return nil
	})
}
