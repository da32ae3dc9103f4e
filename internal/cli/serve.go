package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"orderflow-signals/internal/broadcast"
	"orderflow-signals/internal/cache"
	"orderflow-signals/internal/engine"
	"orderflow-signals/internal/notify"
	"orderflow-signals/internal/source"
	"orderflow-signals/internal/stream"
	"orderflow-signals/internal/supervise"
	"orderflow-signals/pkg/utils"
)

func newServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the signal daemon",
		Long: `Connect to the market-data feed, evaluate every configured instrument
on a fixed cadence during live trading hours, and serve the current
signal and health state over HTTP.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), app)
		},
	}
	return cmd
}

func runServe(ctx context.Context, app *App) error {
	cfg := app.Config
	logger := app.Logger

	if !cfg.HasKiteCredentials() {
		return fmt.Errorf("kite credentials not set: export KITE_API_KEY and KITE_ACCESS_TOKEN")
	}

	instruments := cfg.InstrumentList()

	src := source.NewKiteSource(source.KiteSourceConfig{
		APIKey:      cfg.Kite.APIKey,
		AccessToken: cfg.Kite.AccessToken,
		Instruments: instruments,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectRetry := utils.DefaultRetryConfig()
	connectRetry.InitialDelay = time.Second
	if err := utils.Retry(ctx, connectRetry, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		return src.Connect(attemptCtx)
	}); err != nil {
		return fmt.Errorf("connecting market-data feed: %w", err)
	}
	defer src.Close()

	eng := engine.NewWithConfig(cfg.EngineConfig())
	signalCache := cache.New()
	hub := stream.NewHubWithConfig(cfg.HubConfig())

	broadcaster := broadcast.New(
		instruments,
		src,
		eng,
		signalCache,
		hub,
		app.Clock,
		logger,
		cfg.BroadcastConfig(),
	)
	broadcaster.Start(ctx)
	defer broadcaster.Stop()

	var recorder supervise.EventRecorder
	if app.Store != nil {
		recorder = app.Store
	}
	notifier := notify.NewMultiNotifier(cfg.Notify)

	supervisor := supervise.New(broadcaster, src, app.Clock, recorder, logger, cfg.SupervisorConfig())
	supervisor.SetAlertCallback(func(alert supervise.Alert) {
		logger.Error().
			Str("symbol", alert.Symbol).
			Int("restarts", alert.Restarts).
			Msg(alert.Message)
		alertCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := notifier.Send(alertCtx, notify.Escalation(alert.Symbol, alert.Restarts, alert.At)); err != nil {
			logger.Warn().Err(err).Msg("Failed to deliver escalation alert")
		}
	})
	supervisor.Start(ctx)
	defer supervisor.Stop()

	httpServer := startHealthServer(app, broadcaster, supervisor)
	defer shutdownHealthServer(httpServer, logger)

	logger.Info().
		Int("instruments", len(instruments)).
		Str("interval", cfg.Broadcast.Interval.String()).
		Str("health_addr", cfg.Supervisor.HealthAddr).
		Msg("Signal daemon started")

	<-ctx.Done()
	logger.Info().Msg("Shutting down")
	return nil
}

// startHealthServer serves health probes and the current signal per
// instrument on the supervisor's address.
func startHealthServer(app *App, b *broadcast.Broadcaster, s *supervise.Supervisor) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.LivenessHTTPHandler())
	mux.HandleFunc("/health", s.HealthHTTPHandler())
	mux.HandleFunc("/signals", signalsHandler(b))

	srv := &http.Server{
		Addr:              app.Config.Supervisor.HealthAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Error().Err(err).Msg("Health server failed")
		}
	}()
	return srv
}

func shutdownHealthServer(srv *http.Server, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("Health server shutdown")
	}
}

// signalsHandler serves every instrument's current cached signal.
func signalsHandler(b *broadcast.Broadcaster) http.HandlerFunc {
	type entry struct {
		Symbol     string    `json:"symbol"`
		Direction  string    `json:"direction"`
		Confidence int       `json:"confidence"`
		Tier       string    `json:"tier"`
		ProducedAt time.Time `json:"produced_at"`
		AgeSeconds float64   `json:"age_seconds"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var entries []entry
		for _, symbol := range b.Symbols() {
			sig, ok := b.GetCurrent(symbol)
			if !ok {
				continue
			}
			entries = append(entries, entry{
				Symbol:     sig.Symbol,
				Direction:  string(sig.Direction),
				Confidence: sig.Confidence,
				Tier:       sig.Tier.String(),
				ProducedAt: sig.ProducedAt,
				AgeSeconds: sig.Age(time.Now()).Seconds(),
			})
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(entries); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}
