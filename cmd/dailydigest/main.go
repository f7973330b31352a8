package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/DailyDigest/internal/config"
	"github.com/TobiSchelling/DailyDigest/internal/kv"
	"github.com/TobiSchelling/DailyDigest/internal/logging"
	"github.com/TobiSchelling/DailyDigest/internal/metrics"
	"github.com/TobiSchelling/DailyDigest/internal/netguard"
	"github.com/TobiSchelling/DailyDigest/internal/pipeline"
	"github.com/TobiSchelling/DailyDigest/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     zerolog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "dailydigest",
	Short:         "Daily RSS digests pushed to your channels",
	Long:          "dailydigest collects RSS feeds, analyzes new items with a language model, and pushes a compact daily report to webhooks and tables.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			logger = logging.New("info", "console", os.Stderr)
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		logger = logging.New(level, cfg.Logging.Format, os.Stderr)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(usersCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("dailydigest", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/dailydigest/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Next, seed users with: dailydigest users import <file.yaml>")
		return nil
	},
}

// app is the wiring shared by every command that runs digests.
type app struct {
	store    *kv.SQLiteStore
	pipeline *pipeline.Pipeline
	registry *prometheus.Registry
}

func openApp() (*app, error) {
	store, err := kv.Open(cfg.DBPath(), logger)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	p := pipeline.New(pipeline.Deps{
		Config:  cfg,
		Store:   store,
		Logger:  logger,
		Metrics: metrics.NewCollector(reg),
	})
	return &app{store: store, pipeline: p, registry: reg}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// --- status command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store and user status",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := context.Background()
		repo := a.pipeline.Repository()
		users, err := repo.ListUsers(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Store: %s\n", a.store.Path())
		fmt.Printf("Users: %d\n", len(users))
		for _, id := range users {
			s, err := repo.GetSettings(ctx, id)
			if err != nil {
				fmt.Printf("\n  %s: invalid settings: %v\n", id, err)
				continue
			}
			sources, _ := repo.GetRSSSources(ctx, id)
			channels, _ := repo.GetPushChannels(ctx, id)
			fmt.Printf("\n  %s\n", id)
			if s != nil {
				fmt.Printf("    Push: %02d:00 %s, days %v\n", s.PushHour, orDefault(s.Timezone, "UTC"), s.PushDays)
				fmt.Printf("    Provider: %s\n", orDefault(s.Provider, "gemini"))
			}
			fmt.Printf("    Feeds: %d, channels: %d\n", len(sources), len(channels))

			logs, _ := repo.GetPushLogs(ctx, id, 1)
			if len(logs) > 0 {
				l := logs[0]
				fmt.Printf("    Last push: %s (%s, %d/%d channels)\n", l.Timestamp.Format("2006-01-02 15:04"), l.Status, l.Details.SuccessCount, l.Details.ChannelCount)
			}
		}
		return nil
	},
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// --- run command ---

var runUser string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the digest for one user: collect -> analyze -> synthesize -> compose -> push",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signalContext()
		defer stop()

		result, err := a.pipeline.Run(ctx, runUser)
		if err != nil {
			return err
		}
		printResult(result)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&runUser, "user", "u", "", "User id to run")
	runCmd.MarkFlagRequired("user")
}

func printResult(r *pipeline.RunResult) {
	fmt.Printf("\n%s: %s", r.UserID, r.Status)
	if r.Reason != "" {
		fmt.Printf(" (%s)", r.Reason)
	}
	fmt.Println()
	for i, step := range r.Steps {
		fmt.Printf("  %d. %-10s %s\n", i+1, step.Name, step.Summary)
	}
	for id, ch := range r.Channels {
		if ch.Success {
			fmt.Printf("  -> %s: ok\n", id)
		} else {
			fmt.Printf("  -> %s: %s\n", id, ch.Error)
		}
	}
}

// --- serve command ---

var (
	servePort     int
	serveSchedule bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP trigger and preview server",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signalContext()
		defer stop()

		if serveSchedule {
			sched := pipeline.NewScheduler(a.pipeline, a.pipeline.Repository(), cfg.Scheduler.Interval, cfg.Scheduler.QueueSize, logger)
			go sched.Start(ctx)
		}

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}
		srv := server.New(a.pipeline, a.pipeline.Repository(), metrics.Handler(a.registry), logger)
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return srv.ListenAndServe(ctx, fmt.Sprintf(":%d", port))
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
	serveCmd.Flags().BoolVar(&serveSchedule, "schedule", false, "Also run the hourly scheduler")
}

// --- schedule command ---

var scheduleOnce bool

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run digests for users whose push hour has come",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signalContext()
		defer stop()

		sched := pipeline.NewScheduler(a.pipeline, a.pipeline.Repository(), cfg.Scheduler.Interval, cfg.Scheduler.QueueSize, logger)
		if scheduleOnce {
			results, err := sched.RunOnce(ctx)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Println("No users due this hour.")
			}
			for _, r := range results {
				printResult(r)
			}
			return nil
		}

		logger.Info().Dur("interval", cfg.Scheduler.Interval).Msg("scheduler started")
		sched.Start(ctx)
		return nil
	},
}

func init() {
	scheduleCmd.Flags().BoolVar(&scheduleOnce, "once", false, "Check once, run due users, and exit")
}

// --- logs command ---

var (
	logsUser  string
	logsLimit int
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show recent push logs for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		logs, err := a.pipeline.Repository().GetPushLogs(context.Background(), logsUser, logsLimit)
		if err != nil {
			return err
		}
		if len(logs) == 0 {
			fmt.Printf("No push logs for %s.\n", logsUser)
			return nil
		}
		for _, l := range logs {
			fmt.Printf("%s  %-7s  %d/%d channels  %s\n",
				l.Timestamp.Format("2006-01-02 15:04"), l.Status, l.Details.SuccessCount, l.Details.ChannelCount, l.Error)
		}
		return nil
	},
}

func init() {
	logsCmd.Flags().StringVarP(&logsUser, "user", "u", "", "User id")
	logsCmd.Flags().IntVarP(&logsLimit, "limit", "n", 10, "Number of entries")
	logsCmd.MarkFlagRequired("user")
}

// --- users command ---

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage users",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered users",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		users, err := a.pipeline.Repository().ListUsers(context.Background())
		if err != nil {
			return err
		}
		if len(users) == 0 {
			fmt.Println("No users. Add some with: dailydigest users import <file.yaml>")
			return nil
		}
		for _, id := range users {
			fmt.Println(id)
		}
		return nil
	},
}

var usersImportCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import users, feeds and channels from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		guard := netguard.Guard{AllowPrivate: cfg.Network.AllowPrivate}
		ids, err := a.pipeline.Repository().ImportPath(context.Background(), args[0], guard.ValidateURL)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d user(s): %v\n", len(ids), ids)
		return nil
	},
}

func init() {
	usersCmd.AddCommand(usersListCmd)
	usersCmd.AddCommand(usersImportCmd)
}
