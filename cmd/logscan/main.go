package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/viniciushammett/go-log-anomaly-scan/internal/api"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/app"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/config"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/detector"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/ingest"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/logger"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/metrics"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/model"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/tracing"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/window"
)

var (
	commit = "dev"
	date   = "unknown"
)

// exitNoData is the status for inputs without a single timestamped line.
const exitNoData = 2

type globals struct {
	cfgPath  string
	logLevel string

	cfg *config.Config
	log *logger.Logger
}

func main() {
	g := &globals{}
	root := &cobra.Command{
		Use:           "logscan",
		Short:         "Unsupervised anomaly detection over heterogeneous log files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(g.cfgPath)
			if err != nil {
				return err
			}
			if g.logLevel != "" {
				cfg.Log.Level = g.logLevel
			}
			g.cfg = cfg
			g.log = logger.NewWithFile(cfg.Log.Level, logger.FileConfig{
				Path:       cfg.Log.File,
				MaxSizeMB:  cfg.Log.MaxSizeMB,
				MaxBackups: cfg.Log.MaxBackups,
				MaxAgeDays: cfg.Log.MaxAgeDays,
			})
			return nil
		},
	}

	// Global flags
	root.PersistentFlags().StringVar(&g.cfgPath, "config", os.Getenv("CONFIG_PATH"), "YAML config path (missing file = defaults)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level override (debug|info|warn|error)")

	root.AddCommand(analyzeCmd(g), templatesCmd(g), serveCmd(g), versionCmd())

	if err := root.Execute(); err != nil {
		if errors.Is(err, ingest.ErrNoData) {
			fmt.Fprintln(os.Stderr, "no valid log data found")
			os.Exit(exitNoData)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		if errors.Is(err, window.ErrTooManyWindows) {
			fmt.Fprintln(os.Stderr, "hint: use a larger --window or raise analysis.maxWindows")
		}
		os.Exit(1)
	}
}

func analyzeCmd(g *globals) *cobra.Command {
	var (
		win         time.Duration
		sensitivity float64
		modelName   string
		syslogYear  int
		rulesFile   string
		output      string
		drill       bool
		withRecords bool
		noCache     bool
	)
	cmd := &cobra.Command{
		Use:   "analyze <file|->",
		Short: "Classify, bucket and score a log file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "text" && output != "json" {
				return fmt.Errorf("--output must be text or json, got %q", output)
			}
			if cmd.Flags().Changed("syslog-year") {
				g.cfg.Analysis.SyslogYear = syslogYear
			}
			if cmd.Flags().Changed("rules") {
				g.cfg.RulesFile = rulesFile
			}

			ctx, stop := withSignals()
			defer stop()
			in, closeIn, err := openInput(args)
			if err != nil {
				return err
			}
			defer closeIn()

			a, err := app.Build(ctx, g.cfg, g.log)
			if err != nil {
				return err
			}
			defer a.Close()

			rep, err := a.Detector.Analyze(ctx, in, model.Params{
				Window: win, Sensitivity: sensitivity, Model: modelName,
			}, detector.Options{
				NoCache:     noCache,
				WithRecords: withRecords || drill,
				Notify:      true,
			})
			if err != nil {
				return err
			}

			var drills []windowRecords
			if drill {
				drills = drillAnomalies(rep)
			}
			if !withRecords {
				rep.Records = nil
			}
			out := cmd.OutOrStdout()
			if output == "json" {
				return renderJSON(out, rep, drills)
			}
			return renderText(out, rep, drills)
		},
	}
	cmd.Flags().DurationVar(&win, "window", 0, "window duration (default from config, 1m)")
	cmd.Flags().Float64Var(&sensitivity, "sensitivity", 0, "expected anomalous fraction in (0,1) (default from config, 0.01)")
	cmd.Flags().StringVar(&modelName, "model", "", "outlier model: iforest|zscore")
	cmd.Flags().IntVar(&syslogYear, "syslog-year", 0, "year assumed for syslog timestamps (0 = current year)")
	cmd.Flags().StringVar(&rulesFile, "rules", "", "YAML file with extra error patterns")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text|json")
	cmd.Flags().BoolVar(&drill, "drill", false, "print the records of every anomalous window")
	cmd.Flags().BoolVar(&withRecords, "records", false, "include all classified records in the output")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "ignore and do not update the record cache")
	return cmd
}

func templatesCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "templates <file|->",
		Short: "List the message templates discovered in a log file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, closeIn, err := openInput(args)
			if err != nil {
				return err
			}
			defer closeIn()

			det := detector.New(g.log, nil, nil, nil, nil, app.DetectorConfig(g.cfg))
			ctx, stop := withSignals()
			defer stop()
			ts, res, err := det.Templates(ctx, in)
			if err != nil {
				return err
			}
			return renderTemplates(cmd.OutOrStdout(), ts, res)
		},
	}
}

func serveCmd(g *globals) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				g.cfg.Server.Addr = addr
			}
			ctx, stop := withSignals()
			defer stop()
			metrics.MustRegister()

			closer, err := tracing.Init(ctx, g.cfg.Tracing, app.Version)
			if err != nil {
				g.log.Error().Err(err).Msg("tracing init failed")
			} else {
				defer func() { _ = closer(context.Background()) }()
			}

			a, err := app.Build(ctx, g.cfg, g.log)
			if err != nil {
				return err
			}
			defer a.Close()

			return api.NewServer(api.Deps{
				Log: g.log, Detector: a.Detector, AuthToken: g.cfg.AuthToken,
			}, api.Config{Addr: g.cfg.Server.Addr}).Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "logscan %s (%s) %s\n", app.Version, commit, date)
		},
	}
}

// openInput returns stdin for no argument or "-".
func openInput(args []string) (io.Reader, func(), error) {
	if len(args) == 0 || args[0] == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

func withSignals() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
