package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// healthReport mirrors the daemon's /health payload.
type healthReport struct {
	Healthy     bool `json:"healthy"`
	Instruments []struct {
		Symbol      string `json:"symbol"`
		Running     bool   `json:"running"`
		LastSuccess string `json:"last_success,omitempty"`
		HasData     bool   `json:"has_data"`
		Restarts    int    `json:"restarts"`
		Escalated   bool   `json:"escalated"`
	} `json:"instruments"`
}

type signalReport struct {
	Symbol     string    `json:"symbol"`
	Direction  string    `json:"direction"`
	Confidence int       `json:"confidence"`
	Tier       string    `json:"tier"`
	ProducedAt time.Time `json:"produced_at"`
	AgeSeconds float64   `json:"age_seconds"`
}

func newStatusCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query a running daemon's health and current signals",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			addr, _ := cmd.Flags().GetString("addr")
			if addr == "" {
				addr = app.Config.Supervisor.HealthAddr
			}

			client := &http.Client{Timeout: 5 * time.Second}

			var health healthReport
			if err := fetchJSON(client, "http://"+addr+"/health", &health); err != nil {
				return fmt.Errorf("daemon unreachable at %s: %w", addr, err)
			}
			var signals []signalReport
			if err := fetchJSON(client, "http://"+addr+"/signals", &signals); err != nil {
				return fmt.Errorf("fetching signals: %w", err)
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"health":  health,
					"signals": signals,
				})
			}

			if health.Healthy {
				output.Success("Daemon healthy (%d instruments)", len(health.Instruments))
			} else {
				output.Error("Daemon degraded: one or more instruments escalated")
			}
			output.Println()

			output.Bold("Instruments")
			for _, ins := range health.Instruments {
				state := output.Green("running")
				if !ins.Running {
					state = output.Red("stopped")
				}
				if ins.Escalated {
					state = output.Red("ESCALATED")
				}
				output.Printf("  %-12s %s  restarts=%d\n", ins.Symbol, state, ins.Restarts)
			}
			output.Println()

			output.Bold("Signals")
			if len(signals) == 0 {
				output.Dim("  none cached yet")
			}
			for _, sig := range signals {
				label := fmt.Sprintf("%s %d", sig.Direction, sig.Confidence)
				switch sig.Direction {
				case "BUY":
					label = output.Green(label)
				case "SELL":
					label = output.Red(label)
				default:
					label = output.DimText(label)
				}
				output.Printf("  %-12s %s  tier=%s  age=%.0fs\n",
					sig.Symbol, label, sig.Tier, sig.AgeSeconds)
			}
			return nil
		},
	}
	cmd.Flags().String("addr", "", "daemon health address (default from config)")
	return cmd
}

func fetchJSON(client *http.Client, url string, target interface{}) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	// /health returns 503 when any instrument is escalated; the payload
	// is still well-formed.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(target)
}
