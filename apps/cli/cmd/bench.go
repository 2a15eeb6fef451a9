package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/hitwire/packages/core/config"
	"github.com/abdul-hamid-achik/hitwire/packages/stress"
	"github.com/abdul-hamid-achik/hitwire/packages/webclient"
	"github.com/spf13/cobra"
)

var benchCmd = &cobra.Command{
	Use:   "bench <url> [url...]",
	Short: "Drive keep-alive load against one or more URLs",
	Long: `Send requests at a fixed rate or from a pool of virtual users over
keep-alive connections, then report latency percentiles, status codes and
how often connections were reused.

Examples:
  # Constant rate for 30 seconds
  hitwire bench http://localhost:8080/health -d 30s -r 200

  # Virtual users with think time
  hitwire bench http://localhost:8080/items -d 1m -u 20 --think-time 100ms

  # Ramp up and fail the run when thresholds are missed
  hitwire bench http://localhost:8080/ -d 2m -r 500 --ramp-up 20s \
    --threshold "p95<50ms,errors<0.1%,reuse>95%"`,
	Args: cobra.MinimumNArgs(1),
	RunE: benchCommand,
}

var (
	benchDurationFlag   time.Duration
	benchRateFlag       float64
	benchVUsFlag        int
	benchMaxVUsFlag     int
	benchThinkTimeFlag  time.Duration
	benchRampUpFlag     time.Duration
	benchThresholdFlag  string
	benchMethodFlag     string
	benchHeaderFlags    []string
	benchBodyFlag       string
	benchJSONFlag       bool
	benchNoProgressFlag bool
	benchInsecureFlag   bool
)

func init() {
	benchCmd.Flags().DurationVarP(&benchDurationFlag, "duration", "d", 10*time.Second, "Run duration (e.g., 30s, 5m)")
	benchCmd.Flags().Float64VarP(&benchRateFlag, "rate", "r", 10, "Target requests per second")
	benchCmd.Flags().IntVarP(&benchVUsFlag, "vus", "u", 0, "Number of virtual users (alternative to rate)")
	benchCmd.Flags().IntVarP(&benchMaxVUsFlag, "max-vus", "c", 0, "Maximum concurrent requests (default from config concurrency or 10)")
	benchCmd.Flags().DurationVarP(&benchThinkTimeFlag, "think-time", "t", 0, "Think time between requests per VU")
	benchCmd.Flags().DurationVar(&benchRampUpFlag, "ramp-up", 0, "Ramp-up time to reach the target rate/VUs")
	benchCmd.Flags().StringVar(&benchThresholdFlag, "threshold", "", "Pass/fail thresholds (e.g., \"p95<200ms,errors<1%,reuse>90%\")")
	benchCmd.Flags().StringVarP(&benchMethodFlag, "method", "X", "GET", "HTTP method")
	benchCmd.Flags().StringArrayVarP(&benchHeaderFlags, "header", "H", nil, "Request header as \"Name: value\" (repeatable)")
	benchCmd.Flags().StringVarP(&benchBodyFlag, "body", "b", "", "Request body, or @file to read it from a file")
	benchCmd.Flags().BoolVar(&benchJSONFlag, "json", false, "Output results as JSON")
	benchCmd.Flags().BoolVar(&benchNoProgressFlag, "no-progress", false, "Disable real-time progress display")
	benchCmd.Flags().BoolVarP(&benchInsecureFlag, "insecure", "k", false, "Disable SSL certificate validation")
}

func benchCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if benchInsecureFlag {
		cfg.ValidateSSL = config.BoolPtr(false)
	}
	// status codes are counted, not raised
	cfg.ThrowOnError = config.BoolPtr(false)

	benchCfg, err := buildBenchConfig(cfg)
	if err != nil {
		return withExitCode(ExitUsageError, err)
	}

	headers := make(map[string]string, len(benchHeaderFlags))
	for _, h := range benchHeaderFlags {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return withExitCode(ExitUsageError, fmt.Errorf("invalid header %q (expected \"Name: value\")", h))
		}
		headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	body, err := readBody(benchBodyFlag)
	if err != nil {
		return withExitCode(ExitUsageError, err)
	}
	for _, u := range args {
		if _, err := webclient.ParseURL(u); err != nil {
			return withExitCode(ExitUsageError, err)
		}
	}

	logger := newLogger(cfg.GetVerbose())
	defer func() { _ = logger.Sync() }()

	// the idle pool has to hold every concurrent connection or reuse suffers
	if cfg.MaxIdlePerHost > 0 && cfg.MaxIdlePerHost < benchCfg.MaxVUs {
		logger.Warn("maxIdlePerHost is below the bench concurrency; connections will be closed instead of reused")
	}

	client := webclient.NewClient(cfg.ClientOptions(logger)...)
	defer client.CloseIdleConnections()

	reporter := stress.NewReporter(
		stress.WithWriter(cmd.OutOrStdout()),
		stress.WithNoColor(cfg.GetNoColor()),
		stress.WithNoProgress(benchNoProgressFlag || benchJSONFlag),
		stress.WithVerbose(cfg.GetVerbose()),
	)

	runner := stress.NewRunner(benchCfg,
		stress.WithClient(client),
		stress.WithReporter(reporter),
		stress.WithLogger(logger),
	)
	method := strings.ToUpper(benchMethodFlag)
	for _, u := range args {
		runner.AddTarget(stress.Target{
			Method:  method,
			URL:     u,
			Body:    body,
			Headers: headers,
		})
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nReceived interrupt, stopping gracefully...")
			cancel()
		case <-ctx.Done():
		}
	}()

	result, err := runner.Run(ctx)
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}

	if benchJSONFlag {
		if err := reporter.JSONSummary(result); err != nil {
			return err
		}
	} else {
		reporter.Summary(result)
	}

	if result.HasThresholdFailures() {
		return withExitCode(ExitCheckFailure, nil)
	}
	return nil
}

// buildBenchConfig applies the bench flags over the defaults
func buildBenchConfig(cfg *config.Config) (*stress.Config, error) {
	benchCfg := stress.DefaultConfig()
	benchCfg.Duration = benchDurationFlag
	benchCfg.Rate = benchRateFlag
	benchCfg.ThinkTime = benchThinkTimeFlag
	benchCfg.RampUp = benchRampUpFlag

	if cfg.Concurrency > 0 {
		benchCfg.MaxVUs = cfg.Concurrency
	}
	if benchMaxVUsFlag > 0 {
		benchCfg.MaxVUs = benchMaxVUsFlag
	}
	if benchVUsFlag > 0 {
		benchCfg.Mode = stress.VUMode
		benchCfg.VUs = benchVUsFlag
		benchCfg.MaxVUs = max(benchCfg.MaxVUs, benchVUsFlag)
	}

	if benchThresholdFlag != "" {
		t, err := stress.ParseThresholds(benchThresholdFlag)
		if err != nil {
			return nil, fmt.Errorf("invalid thresholds: %w", err)
		}
		benchCfg.Thresholds = t
	}

	if err := benchCfg.Validate(); err != nil {
		return nil, err
	}
	return benchCfg, nil
}
