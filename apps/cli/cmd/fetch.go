package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/hitwire/packages/assertions"
	"github.com/abdul-hamid-achik/hitwire/packages/capture"
	"github.com/abdul-hamid-achik/hitwire/packages/core/config"
	"github.com/abdul-hamid-achik/hitwire/packages/history"
	"github.com/abdul-hamid-achik/hitwire/packages/output"
	"github.com/abdul-hamid-achik/hitwire/packages/webclient"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	// WatchDebounceDelay is the debounce delay for file watch events
	WatchDebounceDelay = 300 * time.Millisecond
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Send one request and show the response",
	Long: `Send a single HTTP/1.1 request over a raw socket and print the response.

Examples:
  # Simple GET
  hitwire fetch http://localhost:8080/health

  # POST a JSON body from a file and check the result
  hitwire fetch -X POST -H "Content-Type: application/json" -d @user.json \
    --expect "status == 201" --expect "body.id exists" http://localhost:8080/users

  # Stream the body with chunked transfer encoding
  hitwire fetch -X PUT --chunked -d @big.bin http://localhost:8080/upload

  # Record the exchange and re-send whenever the body file changes
  hitwire fetch --record --watch -d @query.json http://localhost:8080/search`,
	Args: cobra.ExactArgs(1),
	RunE: fetchCommand,
}

var (
	fetchMethodFlag   string
	fetchHeaderFlags  []string
	fetchDataFlag     string
	fetchChunkedFlag  bool
	fetchExpectFlags  []string
	fetchSchemaFlag   string
	fetchExtractFlags []string
	fetchOutputFlag   string
	fetchRecordFlag   bool
	fetchDBFlag       string
	fetchWatchFlag    bool
	fetchNoThrowFlag  bool
	fetchTimeoutFlag  time.Duration
	fetchInsecureFlag bool
)

func init() {
	fetchCmd.Flags().StringVarP(&fetchMethodFlag, "method", "X", "GET", "HTTP method")
	fetchCmd.Flags().StringArrayVarP(&fetchHeaderFlags, "header", "H", nil, "Request header as \"Name: value\" (repeatable)")
	fetchCmd.Flags().StringVarP(&fetchDataFlag, "data", "d", "", "Request body, or @file to read it from a file")
	fetchCmd.Flags().BoolVar(&fetchChunkedFlag, "chunked", false, "Send the body with chunked transfer encoding")
	fetchCmd.Flags().StringArrayVarP(&fetchExpectFlags, "expect", "e", nil, "Assertion such as \"status == 200\" (repeatable)")
	fetchCmd.Flags().StringVar(&fetchSchemaFlag, "schema", "", "Validate the JSON body against a JSON Schema file")
	fetchCmd.Flags().StringArrayVar(&fetchExtractFlags, "extract", nil, "Capture such as \"token=body.auth.token\" (repeatable)")
	fetchCmd.Flags().StringVarP(&fetchOutputFlag, "output", "o", "console", "Output format (console, json)")
	fetchCmd.Flags().BoolVar(&fetchRecordFlag, "record", false, "Record the exchange in the history database")
	fetchCmd.Flags().StringVar(&fetchDBFlag, "db", "", "History database path (default from config or "+config.DefaultHistoryDB+")")
	fetchCmd.Flags().BoolVarP(&fetchWatchFlag, "watch", "w", false, "Re-send when the body, schema or config file changes")
	fetchCmd.Flags().BoolVar(&fetchNoThrowFlag, "no-throw", false, "Treat 4xx/5xx responses as results instead of errors")
	fetchCmd.Flags().DurationVar(&fetchTimeoutFlag, "timeout", 0, "Socket timeout (e.g. 5s); overrides the config")
	fetchCmd.Flags().BoolVarP(&fetchInsecureFlag, "insecure", "k", false, "Disable SSL certificate validation")
}

// fetchRequest is everything needed to send one exchange
type fetchRequest struct {
	Method   string
	URL      string
	Headers  map[string]string
	Body     []byte
	Chunked  bool
	Checks   []*assertions.Assertion
	Schema   string
	Captures []*capture.Capture
}

func fetchCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if fetchNoThrowFlag {
		cfg.ThrowOnError = config.BoolPtr(false)
	}
	if fetchInsecureFlag {
		cfg.ValidateSSL = config.BoolPtr(false)
	}
	if fetchTimeoutFlag > 0 {
		cfg.Timeout = int(fetchTimeoutFlag.Milliseconds())
	}

	logger := newLogger(cfg.GetVerbose())
	defer func() { _ = logger.Sync() }()

	formatter, err := output.New(strings.ToLower(fetchOutputFlag), cmd.OutOrStdout(), cfg.GetVerbose(), cfg.GetNoColor())
	if err != nil {
		return withExitCode(ExitUsageError, err)
	}

	client := webclient.NewClient(cfg.ClientOptions(logger)...)
	defer client.CloseIdleConnections()

	var store *history.Store
	if fetchRecordFlag {
		dbPath := fetchDBFlag
		if dbPath == "" {
			dbPath = cfg.HistoryDB
		}
		if dbPath == "" {
			dbPath = config.DefaultHistoryDB
		}
		store, err = history.Open(dbPath)
		if err != nil {
			return withExitCode(ExitConfigError, err)
		}
		defer store.Close()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	send := func() (*output.Exchange, error) {
		req, err := buildFetchRequest(args[0])
		if err != nil {
			return nil, withExitCode(ExitUsageError, err)
		}
		ex := fetchOnce(ctx, client, req)
		formatter.FormatExchange(ex)
		if f, ok := formatter.(output.Flushable); ok {
			if err := f.Flush(); err != nil {
				return ex, err
			}
		}
		if store != nil {
			entry := history.NewEntry(ex.Method, ex.URL, ex.Started, ex.Result, ex.Err)
			if err := store.Record(context.WithoutCancel(ctx), entry); err != nil {
				logger.Warn("failed to record exchange", zap.Error(err))
			}
		}
		return ex, nil
	}

	ex, err := send()
	if err != nil {
		return err
	}

	if !fetchWatchFlag {
		return exchangeExitError(ex)
	}

	return watchAndResend(ctx, cmd.OutOrStdout(), watchedFiles(), logger, func() {
		if _, err := send(); err != nil {
			formatter.FormatError(err)
		}
	})
}

// buildFetchRequest reads the flags into a fetchRequest. Body files are read
// on every call so watch mode picks up edits.
func buildFetchRequest(url string) (*fetchRequest, error) {
	req := &fetchRequest{
		Method:  strings.ToUpper(fetchMethodFlag),
		URL:     url,
		Headers: make(map[string]string, len(fetchHeaderFlags)),
		Chunked: fetchChunkedFlag,
		Schema:  fetchSchemaFlag,
	}

	for _, h := range fetchHeaderFlags {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid header %q (expected \"Name: value\")", h)
		}
		req.Headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}

	body, err := readBody(fetchDataFlag)
	if err != nil {
		return nil, err
	}
	req.Body = body

	for _, s := range fetchExpectFlags {
		a, err := assertions.Parse(s)
		if err != nil {
			return nil, err
		}
		req.Checks = append(req.Checks, a)
	}

	for _, s := range fetchExtractFlags {
		c, err := capture.Parse(s)
		if err != nil {
			return nil, err
		}
		req.Captures = append(req.Captures, c)
	}

	return req, nil
}

// readBody returns the literal body or the contents of the file after "@"
func readBody(data string) ([]byte, error) {
	if path, ok := strings.CutPrefix(data, "@"); ok {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read body file: %w", err)
		}
		return b, nil
	}
	if data == "" {
		return nil, nil
	}
	return []byte(data), nil
}

// fetchOnce sends req and evaluates its checks and captures
func fetchOnce(ctx context.Context, client *webclient.Client, req *fetchRequest) *output.Exchange {
	ex := &output.Exchange{
		Method:  req.Method,
		URL:     req.URL,
		Started: time.Now(),
	}

	var (
		res *webclient.Result
		err error
	)
	if req.Chunked {
		res, err = client.DoStream(ctx, req.Method, req.URL, bytes.NewReader(req.Body), req.Headers)
	} else {
		res, err = client.Do(ctx, req.Method, req.URL, req.Body, req.Headers)
	}

	var statusErr *webclient.StatusError
	if errors.As(err, &statusErr) {
		res = statusResult(statusErr, time.Since(ex.Started))
	}
	ex.Result = res
	ex.Err = err
	if res == nil {
		return ex
	}

	if len(req.Captures) > 0 {
		ex.Captures = capture.ExtractAll(res, req.Captures)
	}
	if len(req.Checks) > 0 {
		ex.Checks = assertions.EvaluateAll(res, req.Checks)
	}
	if req.Schema != "" {
		ex.Checks = append(ex.Checks, assertions.ValidateSchema(res, req.Schema))
	}
	return ex
}

// statusResult turns a raised status into a result so it can be displayed,
// checked and recorded like any other response
func statusResult(e *webclient.StatusError, d time.Duration) *webclient.Result {
	res := &webclient.Result{
		StatusCode: e.Code,
		Status:     fmt.Sprintf("%d %s", e.Code, e.Description),
		Body:       e.Body,
		Duration:   d,
	}
	if e.Headers != nil {
		res.Headers = e.Headers.Map()
	}
	return res
}

// exchangeExitError maps a finished exchange to the process exit status
func exchangeExitError(ex *output.Exchange) error {
	if ex.Err != nil {
		return withExitCode(exitCodeFor(ex.Err), nil)
	}
	if !assertions.AllPassed(ex.Checks) {
		return withExitCode(ExitCheckFailure, nil)
	}
	return nil
}

// watchedFiles lists the files whose edits should trigger a resend
func watchedFiles() []string {
	var files []string
	if path, ok := strings.CutPrefix(fetchDataFlag, "@"); ok {
		files = append(files, path)
	}
	if fetchSchemaFlag != "" {
		files = append(files, fetchSchemaFlag)
	}
	if configFlag != "" {
		files = append(files, configFlag)
	}
	return files
}

// watchAndResend calls resend after writes to any of files settle, until ctx
// is cancelled
func watchAndResend(ctx context.Context, out io.Writer, files []string, logger *zap.Logger, resend func()) error {
	if len(files) == 0 {
		return withExitCode(ExitUsageError, errors.New("--watch needs a body file (-d @file), --schema or --config to watch"))
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	wanted := make(map[string]bool, len(files))
	watchedDirs := make(map[string]bool)
	for _, file := range files {
		abs, err := filepath.Abs(file)
		if err != nil {
			return err
		}
		wanted[abs] = true
		// editors replace files on save, so watch the directory
		dir := filepath.Dir(abs)
		if !watchedDirs[dir] {
			if err := watcher.Add(dir); err != nil {
				return fmt.Errorf("failed to watch %s: %w", dir, err)
			}
			watchedDirs[dir] = true
		}
	}

	fmt.Fprintf(out, "\nWatching for changes... (press Ctrl+C to stop)\n\n")

	// a resend still running when the next debounce fires finishes first
	var resendMu sync.Mutex
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			abs, _ := filepath.Abs(event.Name)
			if !wanted[abs] || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			name := event.Name
			debounceTimer = time.AfterFunc(WatchDebounceDelay, func() {
				resendMu.Lock()
				defer resendMu.Unlock()
				fmt.Fprintf(out, "\nFile changed: %s\nRe-sending...\n\n", name)
				resend()
				fmt.Fprintf(out, "Watching for changes... (press Ctrl+C to stop)\n")
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", zap.Error(err))
		}
	}
}
