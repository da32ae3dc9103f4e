package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"orderflow-signals/internal/store"
)

func newHolidayCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "holiday",
		Short: "Manage the exchange holiday calendar",
		Long: `List, add, or remove exchange holidays. Holidays are treated as CLOSED
for the whole day regardless of the weekday.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured holidays",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return fmt.Errorf("holiday store unavailable")
			}
			dates, err := app.Store.HolidayDates(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(dates)
			}
			if len(dates) == 0 {
				output.Dim("No holidays configured")
				return nil
			}
			for _, d := range dates {
				output.Println(d)
			}
			return nil
		},
	})

	addCmd := &cobra.Command{
		Use:   "add <date> [name]",
		Short: "Add a holiday (date as 2006-01-02)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return fmt.Errorf("holiday store unavailable")
			}
			date, err := parseDate(args[0])
			if err != nil {
				return fmt.Errorf("parsing date: %w", err)
			}
			name := strings.Join(args[1:], " ")
			if err := app.Store.AddHoliday(cmd.Context(), date, name); err != nil {
				return err
			}
			output.Success("Added holiday %s", args[0])
			return nil
		},
	}
	cmd.AddCommand(addCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <date>",
		Short: "Remove a holiday",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return fmt.Errorf("holiday store unavailable")
			}
			date, err := parseDate(args[0])
			if err != nil {
				return fmt.Errorf("parsing date: %w", err)
			}
			if err := app.Store.RemoveHoliday(cmd.Context(), date); err != nil {
				return err
			}
			output.Success("Removed holiday %s", args[0])
			return nil
		},
	})

	return cmd
}

func newEventsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent supervisor restarts and escalations",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return fmt.Errorf("event store unavailable")
			}
			limit, _ := cmd.Flags().GetInt("limit")
			symbol, _ := cmd.Flags().GetString("symbol")

			events, err := listEvents(app, cmd, symbol, limit)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(events)
			}
			if len(events) == 0 {
				output.Dim("No supervisor events recorded")
				return nil
			}
			for _, ev := range events {
				line := fmt.Sprintf("%s  %-12s %-10s %s",
					ev.Timestamp.Format("02-Jan-2006 15:04:05"), ev.Symbol, ev.Event, ev.Detail)
				if ev.Event == "escalation" {
					output.Error("%s", line)
				} else {
					output.Println(line)
				}
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 50, "maximum events to show")
	cmd.Flags().String("symbol", "", "only show events for this instrument")
	return cmd
}

func listEvents(app *App, cmd *cobra.Command, symbol string, limit int) ([]store.SupervisorEvent, error) {
	if symbol != "" {
		return app.Store.EventsForSymbol(cmd.Context(), symbol, limit)
	}
	return app.Store.RecentEvents(cmd.Context(), limit)
}
