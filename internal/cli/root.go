// Package cli provides the command-line interface for the signal daemon.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"orderflow-signals/internal/config"
	"orderflow-signals/internal/logging"
	"orderflow-signals/internal/session"
	"orderflow-signals/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2026-08-31"
)

// App holds the application dependencies.
type App struct {
	Config    *config.Config
	ConfigDir string
	Logger    zerolog.Logger
	Store     *store.SQLiteStore
	Clock     *session.Clock
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, configDir string, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config:    cfg,
		ConfigDir: configDir,
		Logger:    logger,
		Clock:     session.NewClockWith(cfg.SessionLocation(), cfg.SessionBoundaries()),
	}

	dataStore, err := store.NewSQLiteStore(cfg.StorePath(configDir))
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to open store, holiday calendar unavailable")
	} else {
		app.Store = dataStore
		app.seedHolidays()
	}

	rootCmd := &cobra.Command{
		Use:   "signald",
		Short: "Orderflow Signals - streaming BUY/SELL signal daemon for NSE indices",
		Long: `Orderflow Signals derives tiered BUY/SELL/NEUTRAL signals with confidence
scores from live order-flow metrics and broadcasts them to subscribers
on a fixed cadence while the market session is live.

Use 'signald help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/orderflow-signals)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newServeCmd(app))
	rootCmd.AddCommand(newSessionCmd(app))
	rootCmd.AddCommand(newEvaluateCmd(app))
	rootCmd.AddCommand(newStatusCmd(app))
	rootCmd.AddCommand(newHolidayCmd(app))
	rootCmd.AddCommand(newEventsCmd(app))

	return rootCmd
}

// seedHolidays loads stored holiday dates into the session clock.
func (app *App) seedHolidays() {
	dates, err := app.Store.HolidayDates(rootContext())
	if err != nil {
		app.Logger.Warn().Err(err).Msg("Failed to load holiday calendar")
		return
	}
	for _, d := range dates {
		t, err := parseDate(d)
		if err != nil {
			app.Logger.Warn().Str("date", d).Msg("Skipping malformed holiday date")
			continue
		}
		app.Clock.AddHoliday(t)
	}
	app.Logger.Debug().Int("count", len(dates)).Msg("Holiday calendar loaded")
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("Orderflow Signals v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			return showConfig(output, app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": app.ConfigDir})
			} else {
				output.Println(app.ConfigDir)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) error {
	output.Bold("Instruments")
	for _, ins := range cfg.Instruments {
		output.Printf("  %-12s token=%d  %s\n", ins.Symbol, ins.Token, ins.Name)
	}
	output.Println()

	output.Bold("Session")
	output.Printf("  Pre-open:  %s\n", minuteClock(cfg.Session.PreOpenStartMinute))
	output.Printf("  Open:      %s\n", minuteClock(cfg.Session.OpenMinute))
	output.Printf("  Close:     %s\n", minuteClock(cfg.Session.CloseMinute))
	output.Printf("  Timezone:  %s\n", cfg.Session.Timezone)
	output.Println()

	output.Bold("Engine")
	output.Printf("  Trend Scale:    %.2f\n", cfg.Engine.TrendScale)
	output.Printf("  Moderate Scale: %.2f\n", cfg.Engine.ModerateScale)
	output.Printf("  Moderate Cap:   %.0f\n", cfg.Engine.ModerateCap)
	output.Println()

	output.Bold("Broadcast")
	output.Printf("  Interval:       %s\n", cfg.Broadcast.Interval)
	output.Printf("  Fetch Timeout:  %s\n", cfg.Broadcast.FetchTimeout)
	output.Printf("  Subscriber Buf: %d\n", cfg.Broadcast.SubscriberBuffer)
	output.Println()

	output.Bold("Supervisor")
	output.Printf("  Interval:        %s\n", cfg.Supervisor.Interval)
	output.Printf("  Grace Intervals: %d\n", cfg.Supervisor.GraceIntervals)
	output.Printf("  Max Restarts:    %d\n", cfg.Supervisor.MaxRestarts)
	output.Printf("  Health Addr:     %s\n", cfg.Supervisor.HealthAddr)
	output.Println()

	output.Bold("Credentials")
	if cfg.HasKiteCredentials() {
		output.Printf("  Kite: configured (from environment)\n")
	} else {
		output.Printf("  Kite: not set (export KITE_API_KEY and KITE_ACCESS_TOKEN)\n")
	}

	return nil
}
