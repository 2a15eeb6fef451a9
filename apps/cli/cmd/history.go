package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/abdul-hamid-achik/hitwire/packages/core/config"
	"github.com/abdul-hamid-achik/hitwire/packages/history"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List exchanges recorded with fetch --record",
	Long: `List the most recent exchanges stored in the history database,
newest first, followed by totals for the whole database.

Examples:
  hitwire history
  hitwire history --limit 50 --json`,
	Args: cobra.NoArgs,
	RunE: historyCommand,
}

var (
	historyDBFlag    string
	historyLimitFlag int
	historyJSONFlag  bool
)

func init() {
	historyCmd.Flags().StringVar(&historyDBFlag, "db", "", "History database path (default from config or "+config.DefaultHistoryDB+")")
	historyCmd.Flags().IntVarP(&historyLimitFlag, "limit", "n", 20, "Number of entries to show (0 for all)")
	historyCmd.Flags().BoolVar(&historyJSONFlag, "json", false, "Output entries as JSON")
}

type historyOutput struct {
	Entries []*history.Entry `json:"entries"`
	Stats   history.Stats    `json:"stats"`
}

func historyCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dbPath := historyDBFlag
	if dbPath == "" {
		dbPath = cfg.HistoryDB
	}
	if dbPath == "" {
		dbPath = config.DefaultHistoryDB
	}

	store, err := history.Open(dbPath)
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}
	defer store.Close()

	entries, err := store.List(cmd.Context(), historyLimitFlag)
	if err != nil {
		return err
	}
	stats, err := store.Stats(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if historyJSONFlag {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(historyOutput{Entries: entries, Stats: stats})
	}

	if len(entries) == 0 {
		fmt.Fprintf(out, "No exchanges recorded in %s\n", dbPath)
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tMETHOD\tSTATUS\tDURATION\tCONN\tBYTES\tURL")
	for _, e := range entries {
		status := fmt.Sprintf("%d", e.Status)
		if e.Error != "" && e.Status == 0 {
			status = "ERR"
		}
		conn := "new"
		if e.Reused {
			conn = "reused"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			e.StartedAt.Local().Format("2006-01-02 15:04:05"),
			e.Method, status, e.Duration.Round(100*time.Microsecond), conn, e.BodyBytes, e.URL)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n%d exchanges, %d on reused connections, %d failed\n", stats.Total, stats.Reused, stats.Failed)
	return nil
}
