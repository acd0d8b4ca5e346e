package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-t0/internal/audit"
	"github.com/wonny/aegis-t0/internal/s0_data"
	"github.com/wonny/aegis-t0/internal/scheduler"
	"github.com/wonny/aegis-t0/internal/scheduler/jobs"
	"github.com/wonny/aegis-t0/pkg/metrics"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run scheduled jobs",
	Long: `Starts the job scheduler or runs a job once.

Jobs:
  daily_score       - weekdays 15:30, rank the latest session
  nightly_backtest  - daily 02:00, replay history and archive the run

Subcommands:
  start   - start the scheduler daemon
  list    - list registered jobs
  run     - run one job now and wait for it

Example:
  go run ./cmd/quant scheduler start
  go run ./cmd/quant scheduler run daily_score`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the scheduler",
		RunE:  runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "List registered jobs",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "Run one job now",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
}

func runScheduler(cmd *cobra.Command, args []string) error {
	a, sched, err := initScheduler()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched.Start()
	PrintSuccess("Scheduler started")
	printJobs(sched)
	fmt.Println("Press Ctrl+C to stop")

	<-ctx.Done()
	sched.Stop()
	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	a, sched, err := initScheduler()
	if err != nil {
		return err
	}
	defer a.close()

	printJobs(sched)
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	a, sched, err := initScheduler()
	if err != nil {
		return err
	}
	defer a.close()

	result, err := sched.RunJob(args[0])
	if err != nil {
		return err
	}
	if !result.Success {
		PrintError(fmt.Sprintf("%s failed after %d attempts: %s", result.JobName, result.Attempts, result.Error))
		return fmt.Errorf("job %s failed", result.JobName)
	}
	PrintSuccess(fmt.Sprintf("%s completed in %s", result.JobName, result.Duration))
	return nil
}

func printJobs(sched *scheduler.Scheduler) {
	stats := sched.GetJobStats()
	widths := []int{18, 22, 20}
	PrintTableHeader([]string{"Job", "Schedule", "Next Run"}, widths)
	for _, name := range sched.GetAllJobs() {
		st := stats[name]
		next := "-"
		if st.NextRun != nil {
			next = st.NextRun.Format("2006-01-02 15:04:05")
		}
		PrintTableRow([]string{name, st.Schedule, next}, widths)
	}
}

func initScheduler() (*app, *scheduler.Scheduler, error) {
	a, err := newApp(false)
	if err != nil {
		return nil, nil, err
	}
	strategy, yamlData, err := a.strategy()
	if err != nil {
		a.close()
		return nil, nil, err
	}

	reg := metrics.NewRegistry()
	load := func(ctx context.Context) (*s0_data.Market, error) { return a.loadMarket(ctx) }

	scorer, err := newScorer(a, strategy)
	if err != nil {
		a.close()
		return nil, nil, err
	}

	var archive *audit.Archive
	if a.db != nil {
		archive = audit.NewArchive(a.db.Pool)
	}
	nightly, err := jobs.NewNightlyBacktestJob(load, strategy, yamlData, archive, reg, "", a.log)
	if err != nil {
		a.close()
		return nil, nil, err
	}

	sched := scheduler.New(a.log, scheduler.DefaultOptions())
	for _, job := range []scheduler.Job{
		jobs.NewDailyScoreJob(load, scorer, reg, "", a.log),
		nightly,
	} {
		if err := sched.AddJob(job); err != nil {
			a.close()
			return nil, nil, err
		}
	}
	return a, sched, nil
}
