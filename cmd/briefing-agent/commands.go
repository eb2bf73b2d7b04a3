package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/scrypster/briefing/internal/config"
	"github.com/scrypster/briefing/internal/engine"
	"github.com/scrypster/briefing/internal/ingestion"
	"github.com/scrypster/briefing/internal/seed"
	"github.com/scrypster/briefing/internal/storage/sqlite"
)

func runBriefings(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	userID, _ := cmd.Flags().GetString("user")
	trace, _ := cmd.Flags().GetBool("trace")
	out := cmd.OutOrStdout()

	if userID == "" {
		reports, err := a.pipeline.RunAll(ctx)
		if err != nil {
			return err
		}
		for _, r := range reports {
			printOutcome(out, r.UserID, r.Output, r.Err)
		}
		return nil
	}

	var tc *engine.TraceCollector
	if trace {
		tc = engine.NewTraceCollector()
		ctx = engine.WithTraceCollector(ctx, tc)
	}
	output, runErr := a.pipeline.RunForUser(ctx, userID)
	printOutcome(out, userID, output, runErr)
	if tc != nil {
		if err := writeJSON(out, engine.BuildRunSummary(tc.Events(), tc.ElapsedMS())); err != nil {
			return err
		}
	}
	return nil
}

// printOutcome writes a short per-user line. A failed run means no briefing
// today, not a command failure.
func printOutcome(w io.Writer, userID string, output *engine.BriefingOutput, err error) {
	switch {
	case errors.Is(err, engine.ErrNoCandidates):
		fmt.Fprintf(w, "%s: no candidates\n", userID)
	case err != nil:
		fmt.Fprintf(w, "%s: no briefing today (%v)\n", userID, err)
	default:
		fmt.Fprintf(w, "%s: %d selections from %d candidates (%d filtered, %d discarded)\n",
			userID, len(output.Selections), len(output.Candidates), output.Filtered, output.Discarded)
		for _, sel := range output.Selections {
			c := output.Candidates[sel.SignalIndex]
			fmt.Fprintf(w, "  [%d] %s: %s (%.2f)\n", sel.SignalIndex, sel.ReasonLabel, c.Title, sel.Confidence)
		}
	}
}

func runPrune(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	userID, _ := cmd.Flags().GetString("user")
	report, err := a.pruner.Prune(ctx, userID)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: evaluated %d entities in %d batches (%d failed), removed %d\n",
		userID, report.Evaluated, report.Batches, report.FailedBatches, len(report.Removed))
	for _, r := range report.Removed {
		fmt.Fprintf(out, "  - %s (%s): %s\n", r.Name, r.Type, r.Reason)
	}
	return nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := registerFeedsFile(ctx, a); err != nil {
		return err
	}
	report, err := a.poller.PollDue(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "polled %d due queries: %d ok, %d failed, %d new signals\n",
		report.Due, report.Succeeded, report.Failed, report.Inserted)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := registerFeedsFile(ctx, a); err != nil {
		return err
	}

	every, _ := cmd.Flags().GetDuration("every")
	briefNow, _ := cmd.Flags().GetBool("brief-now")

	sched := ingestion.NewScheduler(logger.Named("scheduler"))
	// Polling runs on a short tick; each query's own next_poll_at decides
	// whether it is actually fetched.
	pollTick := a.cfg.Ingestion.BackoffUnit
	if pollTick <= 0 || pollTick > a.cfg.Ingestion.PollInterval {
		pollTick = a.cfg.Ingestion.PollInterval
	}
	if err := sched.Add(ingestion.Job{
		Name:      "ingestion",
		Interval:  pollTick,
		Immediate: true,
		Run: func(ctx context.Context) error {
			_, err := a.poller.PollDue(ctx)
			return err
		},
	}); err != nil {
		return err
	}
	if err := sched.Add(ingestion.Job{
		Name:      "briefings",
		Interval:  every,
		Immediate: briefNow,
		Run: func(ctx context.Context) error {
			reports, err := a.pipeline.RunAll(ctx)
			if err != nil {
				return err
			}
			produced := 0
			for _, r := range reports {
				if r.Err == nil {
					produced++
				}
			}
			logger.Info("briefing pass finished", zap.Int("users", len(reports)), zap.Int("briefings", produced))
			return nil
		},
	}); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if addr := a.cfg.Observability.MetricsAddr; addr != "" {
		g.Go(func() error {
			return a.metrics.Serve(ctx, addr, logger)
		})
	}

	logger.Info("serving", zap.Duration("poll_tick", pollTick), zap.Duration("brief_every", every))
	return g.Wait()
}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	f, err := seed.LoadFile(args[0])
	if err != nil {
		return err
	}

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := seed.NewSeeder(a.store, a.model, logger.Named("seed")).Apply(ctx, f)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(),
		"seeded %d users: %d entities (%d duplicate, %d suppressed, %d embedded), %d edges, %d peers, %d meetings, %d feeds\n",
		res.Users, res.Entities.Inserted, res.Entities.Duplicates, res.Entities.Suppressed, res.Entities.Embedded,
		res.Edges, res.Peers, res.Meetings, res.Feeds)
	return nil
}

func runSettings(cmd *cobra.Command, args []string) error {
	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	sq, ok := store.(*sqlite.Store)
	if !ok {
		return errors.New("settings are only persisted with sqlite storage")
	}
	current, err := config.LoadConfigFromDB(sq.GetDB())
	if err != nil {
		return err
	}

	model, _ := cmd.Flags().GetString("model")
	rounds, _ := cmd.Flags().GetInt("rounds")
	if cmd.Flags().Changed("model") || cmd.Flags().Changed("rounds") {
		if cmd.Flags().Changed("model") {
			current.Agent.Model = model
		}
		if cmd.Flags().Changed("rounds") {
			if rounds < 1 {
				return fmt.Errorf("--rounds must be >= 1, got %d", rounds)
			}
			current.Agent.MaxToolRounds = rounds
		}
		if err := current.SaveConfig(sq.GetDB()); err != nil {
			return err
		}
	}

	return writeJSON(cmd.OutOrStdout(), map[string]any{
		"agent_model":           current.ChatModel(),
		"agent_max_tool_rounds": current.Agent.MaxToolRounds,
	})
}

// registerFeedsFile upserts the queries listed in BRIEFING_FEEDS_FILE.
func registerFeedsFile(ctx context.Context, a *app) error {
	path := a.cfg.Ingestion.FeedsFile
	if path == "" {
		return nil
	}
	feeds, err := ingestion.LoadFeeds(path)
	if err != nil {
		return err
	}
	if err := ingestion.RegisterFeeds(ctx, a.store, feeds); err != nil {
		return err
	}
	logger.Info("feeds registered", zap.String("file", path), zap.Int("feeds", len(feeds)))
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
