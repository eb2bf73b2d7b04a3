// Command briefing-agent selects each user's daily briefing signals with an
// LLM tool loop, keeps their knowledge models tidy and ingests feeds.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scrypster/briefing/internal/config"
	"github.com/scrypster/briefing/internal/logging"
)

var (
	// Global flags
	verbose bool
	dbPath  string

	// Set in PersistentPreRunE
	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "briefing-agent",
	Short: "Daily briefing signal selection",
	Long: `briefing-agent picks the few signals worth a user's attention each day.

Candidate signals come from polled feeds, pass the user's content universe
filter and are then judged by a reasoning model that can call tools
(knowledge lookup, meetings, trends, search, briefing history) before it
submits its selections.

Configuration is read from BRIEFING_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig()
		if err != nil {
			return err
		}
		level := cfg.Observability.LogLevel
		if verbose {
			level = "debug"
		}
		logger, err = logging.New(level, cfg.Observability.LogFormat)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the briefing pipeline once",
	Long: `Runs the selection pipeline for one user (--user) or for every user with
a profile. With --trace the agent's round-by-round summary is printed as JSON.`,
	RunE: runBriefings,
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Prune generic or off-domain entities from a user's knowledge model",
	RunE:  runPrune,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Poll every due feed once",
	RunE:  runIngest,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Ingest and brief on a schedule until interrupted",
	RunE:  runServe,
}

var seedCmd = &cobra.Command{
	Use:   "seed FILE",
	Short: "Load users, knowledge and feeds from a YAML fixture",
	Args:  cobra.ExactArgs(1),
	RunE:  runSeed,
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or persist agent overrides stored in the database",
	RunE:  runSettings,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (default: $BRIEFING_DATA_PATH/briefing.db)")

	runCmd.Flags().String("user", "", "Only run for this user ID")
	runCmd.Flags().Bool("trace", false, "Print the agent run summary as JSON")

	pruneCmd.Flags().String("user", "", "User ID to prune (required)")
	_ = pruneCmd.MarkFlagRequired("user")

	serveCmd.Flags().Duration("every", 24*time.Hour, "Interval between briefing runs")
	serveCmd.Flags().Bool("brief-now", false, "Run briefings once at start")

	settingsCmd.Flags().String("model", "", "Persist this agent model override")
	settingsCmd.Flags().Int("rounds", 0, "Persist this tool round budget")

	rootCmd.AddCommand(runCmd, pruneCmd, ingestCmd, serveCmd, seedCmd, settingsCmd)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
