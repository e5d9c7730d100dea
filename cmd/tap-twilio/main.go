package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tap-twilio/pkg/compression"
	"github.com/ajitpratap0/tap-twilio/pkg/errors"
	"github.com/ajitpratap0/tap-twilio/pkg/logger"
	"github.com/ajitpratap0/tap-twilio/pkg/metrics"
	"github.com/ajitpratap0/tap-twilio/pkg/observability"
	"github.com/ajitpratap0/tap-twilio/pkg/sink"
	"github.com/ajitpratap0/tap-twilio/pkg/tap"
)

var version = "0.1.0"

// options are the command line flags of one run.
type options struct {
	configPath  string
	discovery   bool
	logLevel    string
	output      string
	compression string
	level       string
	metricsAddr string
	trace       bool
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var opts options

	root := &cobra.Command{
		Use:   "tap-twilio",
		Short: "Singer tap for the Twilio API",
		Long: `tap-twilio extracts Twilio resources and writes them to standard output
as Singer RECORD messages, one JSON object per line.

Example:
  tap-twilio --config config.json > records.jsonl`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	root.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to the JSON configuration file")
	root.Flags().BoolVarP(&opts.discovery, "discovery", "d", false, "Run in discovery mode (not supported)")
	root.Flags().StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.Flags().StringVarP(&opts.output, "output", "o", "-", "Output file; - writes to standard output")
	root.Flags().StringVar(&opts.compression, "compression", string(compression.None), "Output compression (none, gzip, snappy, lz4, zstd, s2)")
	root.Flags().StringVar(&opts.level, "compression-level", "default", "Compression level (fastest, default, better, best)")
	root.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	root.Flags().BoolVar(&opts.trace, "trace", false, "Export trace spans to standard error")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "tap-twilio v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	return root
}

func run(ctx context.Context, opts options) error {
	if err := logger.Init(logger.Config{Level: opts.logLevel, Encoding: "json"}); err != nil {
		return errors.Wrap(err, errors.ErrorTypeUsage, "invalid --log-level")
	}
	defer func() { _ = logger.Sync() }()
	log := logger.With(zap.String("version", version))

	algorithm, err := compression.ParseAlgorithm(opts.compression)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeUsage, "invalid --compression")
	}
	level, err := compression.ParseLevel(opts.level)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeUsage, "invalid --compression-level")
	}

	if opts.trace {
		cfg := observability.DefaultTracingConfig()
		cfg.ServiceVersion = version
		tp, err := observability.InitTracing(cfg)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := observability.Shutdown(shutdownCtx, tp); err != nil {
				log.Warn("failed to flush traces", zap.Error(err))
			}
		}()
	}

	collector := metrics.NewCollector()
	t, err := tap.New(tap.Args{ConfigPath: opts.configPath, Discovery: opts.discovery},
		tap.WithLogger(log), tap.WithMetrics(collector))
	if err != nil {
		return err
	}

	if opts.metricsAddr != "" {
		srv := metrics.NewServer(opts.metricsAddr, collector, log)
		if err := srv.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	out, err := sink.Open(sink.Config{Path: opts.output, Compression: algorithm, Level: level})
	if err != nil {
		return err
	}
	log.Debug("writing messages", zap.String("output", sink.OutputPath(opts.output, algorithm)))

	return t.Start(ctx, out)
}
