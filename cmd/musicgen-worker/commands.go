package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"

	"github.com/hochfrequenz/musicgen-worker/internal/app"
	"github.com/hochfrequenz/musicgen-worker/internal/config"
	"github.com/hochfrequenz/musicgen-worker/internal/jobkey"
	"github.com/hochfrequenz/musicgen-worker/internal/logging"
	"github.com/hochfrequenz/musicgen-worker/internal/objectstore"
	"github.com/hochfrequenz/musicgen-worker/internal/parser"
	"github.com/hochfrequenz/musicgen-worker/internal/runner"
	"github.com/hochfrequenz/musicgen-worker/internal/runstore"
	"github.com/hochfrequenz/musicgen-worker/tui"
)

var (
	runJobsFile  string
	runNoReport  bool
	historyLimit int
	reportUpload bool
	daemonWatch  bool
	monitorLimit int
)

func init() {
	// run command
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Process every job in the job file",
		RunE:  runRun,
	}
	runCmd.Flags().StringVar(&runJobsFile, "jobs", "", "job file (default from config)")
	runCmd.Flags().BoolVar(&runNoReport, "no-report", false, "skip the cost report upload")
	rootCmd.AddCommand(runCmd)

	// parse command
	parseCmd := &cobra.Command{
		Use:   "parse [FILE]",
		Short: "Validate a job file and show destination keys",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runParse,
	}
	rootCmd.AddCommand(parseCmd)

	// ls command
	lsCmd := &cobra.Command{
		Use:   "ls [PREFIX]",
		Short: "List stored objects",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLs,
	}
	rootCmd.AddCommand(lsCmd)

	// download command
	downloadCmd := &cobra.Command{
		Use:   "download PREFIX DEST",
		Short: "Download every object under a prefix",
		Args:  cobra.ExactArgs(2),
		RunE:  runDownload,
	}
	rootCmd.AddCommand(downloadCmd)

	// history command
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs",
		RunE:  runHistory,
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of runs to show")
	rootCmd.AddCommand(historyCmd)

	// report command
	reportCmd := &cobra.Command{
		Use:   "report [RUN_ID]",
		Short: "Rebuild the cost report of a recorded run (default: latest)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runReport,
	}
	reportCmd.Flags().BoolVar(&reportUpload, "upload", false, "publish the rebuilt report to storage")
	rootCmd.AddCommand(reportCmd)

	// daemon command
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run scheduled job files until interrupted",
		RunE:  runDaemon,
	}
	daemonCmd.Flags().BoolVar(&daemonWatch, "watch", false, "re-run the job file whenever it changes")
	rootCmd.AddCommand(daemonCmd)

	// monitor command
	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "Launch the live run dashboard",
		RunE:  runMonitor,
	}
	monitorCmd.Flags().IntVar(&monitorLimit, "limit", 20, "number of runs to show")
	rootCmd.AddCommand(monitorCmd)
}

func loadConfig() (*config.Config, error) {
	if err := config.LoadEnvFile(envFile); err != nil {
		return nil, err
	}
	cfg, err := config.LoadWithLocalFallback(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

func loadConfigAndLogger() (*config.Config, arbor.ILogger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, logFile := logging.New(cfg.Logging)
	if logFile != "" {
		logger.Debug().Str("file", logFile).Msg("Logging to file")
	}
	return cfg, logger, nil
}

func openApp(cmd *cobra.Command) (*app.App, arbor.ILogger, error) {
	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Configuration error")
		return nil, nil, err
	}
	return a, logger, nil
}

// openStore connects to storage without opening the ledger
func openStore(cmd *cobra.Command) (objectstore.Store, arbor.ILogger, error) {
	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	store, err := app.OpenStore(cmd.Context(), cfg.Storage)
	if err != nil {
		return nil, nil, err
	}
	if err := app.CheckStorage(cmd.Context(), store); err != nil {
		return nil, nil, err
	}
	return store, logger, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	banner.Print("MusicGen Worker", version)

	a, _, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	path := runJobsFile
	if path == "" {
		path = a.Config().General.JobsFile
	}

	res, err := a.RunFile(cmd.Context(), path, app.RunOptions{NoReport: runNoReport})
	if res != nil {
		fmt.Print(tui.RenderSummary(res.Summary))
	}
	if errors.Is(err, runner.ErrJobsFailed) {
		return fmt.Errorf("%d of %d jobs failed", res.Summary.Failed, res.Summary.Total)
	}
	return err
}

func runParse(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		return err
	}

	path := cfg.General.JobsFile
	if len(args) > 0 {
		path = args[0]
	}

	jobs, err := parser.ParseJobFile(path, logger)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return fmt.Errorf("%s: %w", path, app.ErrNoJobs)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LINE\tKEY\tSECONDS\tPROMPT")
	var total int
	for _, job := range jobs {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", job.Line, jobkey.ForJob(job), job.DurationSeconds, truncate(job.Prompt, 60))
		total += job.DurationSeconds
	}
	w.Flush()

	fmt.Printf("\n%d jobs, %s of audio\n", len(jobs), formatSeconds(total))
	return nil
}

func runLs(cmd *cobra.Command, args []string) error {
	store, _, err := openStore(cmd)
	if err != nil {
		return err
	}

	prefix := ""
	if len(args) > 0 {
		prefix = args[0]
	}

	objects, err := store.List(cmd.Context(), prefix)
	if err != nil {
		return err
	}
	if len(objects) == 0 {
		fmt.Println("No objects found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tSIZE\tMODIFIED")
	var total int64
	for _, obj := range objects {
		fmt.Fprintf(w, "%s\t%s\t%s\n", obj.Key, humanize.Bytes(uint64(obj.Size)), humanize.Time(obj.LastModified))
		total += obj.Size
	}
	w.Flush()

	fmt.Printf("\n%d objects, %s\n", len(objects), humanize.Bytes(uint64(total)))
	return nil
}

func runDownload(cmd *cobra.Command, args []string) error {
	store, logger, err := openStore(cmd)
	if err != nil {
		return err
	}

	results, err := objectstore.DownloadPrefix(cmd.Context(), store, args[0], args[1], logger)
	if err != nil {
		return err
	}
	if failed := objectstore.FailedDownloads(results); len(failed) > 0 {
		return fmt.Errorf("%d of %d downloads failed", len(failed), len(results))
	}
	fmt.Printf("Downloaded %d files to %s\n", len(results), args[1])
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(runstore.ListOptions{Limit: historyLimit})
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tSTATUS\tOK\tSKIPPED\tFAILED\tCOST\tREPORT")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t$%.4f\t%s\n",
			run.ID,
			humanize.Time(run.StartedAt),
			run.Status,
			run.Succeeded,
			run.Skipped,
			run.Failed,
			run.TotalCostUSD,
			run.ReportKey,
		)
	}
	w.Flush()
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	a, _, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	runID := ""
	if len(args) > 0 {
		runID = args[0]
	}

	content, key, err := a.RebuildReport(cmd.Context(), runID, reportUpload)
	if err != nil {
		return err
	}
	fmt.Println(content)
	if key != "" {
		fmt.Fprintf(os.Stderr, "Uploaded as %s\n", key)
	}
	return nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	banner.Print("MusicGen Worker", version)

	a, _, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Daemon(cmd.Context(), daemonWatch)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	model := tui.NewModel(tui.ModelConfig{Source: store, RunLimit: monitorLimit})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context()))

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func formatSeconds(total int) string {
	if total < 60 {
		return fmt.Sprintf("%ds", total)
	}
	return fmt.Sprintf("%dm%02ds", total/60, total%60)
}
