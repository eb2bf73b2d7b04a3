package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// PromRecorder is a Recorder backed by Prometheus collectors.
type PromRecorder struct {
	registry    *prom.Registry
	toolTotal   *prom.CounterVec
	toolSeconds *prom.HistogramVec
	rounds      prom.Histogram
	runs        *prom.CounterVec
	tokens      *prom.CounterVec
	polls       *prom.CounterVec
}

// NewPrometheus creates a recorder registered on a fresh registry.
func NewPrometheus() *PromRecorder {
	p := &PromRecorder{
		registry: prom.NewRegistry(),
		toolTotal: prom.NewCounterVec(prom.CounterOpts{
			Name: "briefing_tool_calls_total",
			Help: "Total number of agent tool calls",
		}, []string{"tool", "success"}),
		toolSeconds: prom.NewHistogramVec(prom.HistogramOpts{
			Name:    "briefing_tool_call_seconds",
			Help:    "Agent tool call duration in seconds",
			Buckets: prom.DefBuckets,
		}, []string{"tool", "success"}),
		rounds: prom.NewHistogram(prom.HistogramOpts{
			Name:    "briefing_agent_rounds",
			Help:    "Model rounds used per agent run",
			Buckets: prom.LinearBuckets(1, 1, 12),
		}),
		runs: prom.NewCounterVec(prom.CounterOpts{
			Name: "briefing_agent_runs_total",
			Help: "Agent runs by outcome",
		}, []string{"outcome"}),
		tokens: prom.NewCounterVec(prom.CounterOpts{
			Name: "briefing_llm_tokens_total",
			Help: "Tokens consumed by the reasoning model",
		}, []string{"kind"}),
		polls: prom.NewCounterVec(prom.CounterOpts{
			Name: "briefing_ingestion_polls_total",
			Help: "Ingestion polls by result",
		}, []string{"success"}),
	}
	p.registry.MustRegister(p.toolTotal, p.toolSeconds, p.rounds, p.runs, p.tokens, p.polls)
	return p
}

func (p *PromRecorder) IncToolTotal(tool string, success bool) {
	p.toolTotal.WithLabelValues(tool, strconv.FormatBool(success)).Inc()
}

func (p *PromRecorder) ObserveToolSeconds(tool string, success bool, seconds float64) {
	p.toolSeconds.WithLabelValues(tool, strconv.FormatBool(success)).Observe(seconds)
}

func (p *PromRecorder) ObserveAgentRounds(rounds int) {
	p.rounds.Observe(float64(rounds))
}

func (p *PromRecorder) IncRunOutcome(outcome string) {
	p.runs.WithLabelValues(outcome).Inc()
}

func (p *PromRecorder) AddTokens(kind string, n int) {
	if n > 0 {
		p.tokens.WithLabelValues(kind).Add(float64(n))
	}
}

func (p *PromRecorder) IncPollTotal(success bool) {
	p.polls.WithLabelValues(strconv.FormatBool(success)).Inc()
}

// Handler returns an http.Handler serving /metrics and /healthz.
func (p *PromRecorder) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Serve exposes the recorder on addr until ctx is cancelled.
func (p *PromRecorder) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           p.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics endpoint listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
