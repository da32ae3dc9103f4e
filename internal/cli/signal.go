package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"orderflow-signals/internal/engine"
	"orderflow-signals/internal/models"
)

func newSessionCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Classify the current (or a given) time against the trading calendar",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			at := time.Now()
			if flagAt, _ := cmd.Flags().GetString("at"); flagAt != "" {
				parsed, err := time.ParseInLocation("2006-01-02 15:04", flagAt, app.Config.SessionLocation())
				if err != nil {
					return fmt.Errorf("parsing --at (want \"2006-01-02 15:04\"): %w", err)
				}
				at = parsed
			}

			state := app.Clock.Classify(at)
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"time":      at.In(app.Config.SessionLocation()).Format(time.RFC3339),
					"state":     string(state),
					"next_open": app.Clock.NextOpen(at).Format(time.RFC3339),
				})
			}

			local := at.In(app.Config.SessionLocation())
			output.Printf("Time:  %s\n", local.Format("Mon 02-Jan-2006 15:04:05 MST"))
			switch state {
			case models.SessionLive:
				output.Success("State: LIVE (closes %s)", app.Clock.TodayClose(at).Format("15:04"))
			case models.SessionPreOpen:
				output.Warning("State: PRE_OPEN")
			default:
				output.Dim("State: CLOSED (next open %s)",
					app.Clock.NextOpen(at).Format("Mon 02-Jan 15:04"))
			}
			return nil
		},
	}
	cmd.Flags().String("at", "", "classify this exchange-local time instead of now (\"2006-01-02 15:04\")")
	return cmd
}

func newEvaluateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate one metrics snapshot through the signal engine",
		Long: `Run the tier cascade on a hand-supplied snapshot. Useful for checking
what signal a given order-flow reading would produce without a live feed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			ratio, _ := cmd.Flags().GetFloat64("ratio")
			ema, _ := cmd.Flags().GetString("ema")
			strength, _ := cmd.Flags().GetFloat64("strength")
			aligned, _ := cmd.Flags().GetBool("aligned")
			sessionFlag, _ := cmd.Flags().GetString("session")

			alignment, err := parseAlignment(ema)
			if err != nil {
				return err
			}

			state := app.Clock.Now()
			if sessionFlag != "" {
				state, err = parseSessionState(sessionFlag)
				if err != nil {
					return err
				}
			}

			snap := models.MetricsSnapshot{
				Symbol:             "MANUAL",
				BuyVolumeRatio:     ratio,
				EMAAlignment:       alignment,
				CandleStrength:     strength,
				PriceVolumeAligned: aligned,
				CapturedAt:         time.Now(),
			}

			eng := engine.NewWithConfig(app.Config.EngineConfig())
			sig, err := eng.Evaluate(snap, state)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(sig)
			}

			output.Printf("Session:    %s\n", state)
			output.Printf("Tier:       %s\n", sig.Tier)
			switch sig.Direction {
			case models.DirectionBuy:
				output.Bullish("Signal:     BUY %d", sig.Confidence)
			case models.DirectionSell:
				output.Bearish("Signal:     SELL %d", sig.Confidence)
			default:
				output.Dim("Signal:     NEUTRAL")
			}
			return nil
		},
	}

	cmd.Flags().Float64("ratio", 50, "buy volume ratio, 0-100")
	cmd.Flags().String("ema", "none", "EMA alignment: bullish, bearish, none")
	cmd.Flags().Float64("strength", 0, "candle strength, 0-100")
	cmd.Flags().Bool("aligned", false, "price move agrees with flow skew")
	cmd.Flags().String("session", "", "override session state: live, pre_open, closed")
	return cmd
}

func parseAlignment(s string) (models.EMAAlignment, error) {
	switch strings.ToLower(s) {
	case "bullish":
		return models.EMABullish, nil
	case "bearish":
		return models.EMABearish, nil
	case "none", "":
		return models.EMANone, nil
	default:
		return models.EMANone, fmt.Errorf("unknown EMA alignment: %s", s)
	}
}

func parseSessionState(s string) (models.SessionState, error) {
	switch strings.ToLower(s) {
	case "live":
		return models.SessionLive, nil
	case "pre_open", "preopen":
		return models.SessionPreOpen, nil
	case "closed":
		return models.SessionClosed, nil
	default:
		return models.SessionClosed, fmt.Errorf("unknown session state: %s", s)
	}
}
