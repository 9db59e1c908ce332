package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/driver/sqlite"

	"github.com/planmesh/planmesh/core"
	"github.com/planmesh/planmesh/schedule"
	"github.com/planmesh/planmesh/search"
	"github.com/planmesh/planmesh/store/gormstore"
)

func newStatusCmd() *cobra.Command {
	var (
		configPath string
		eventID    string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the planning state of an event",
		Long:  "Reads the configured database and prints the event together with its chosen schedule and venue, if any.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, configPath, eventID)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to planmesh config file")
	cmd.Flags().StringVarP(&eventID, "event-id", "e", "", "event id to inspect")
	_ = cmd.MarkFlagRequired("event-id")
	return cmd
}

func runStatus(cmd *cobra.Command, configPath, eventID string) error {
	ctx := context.Background()
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Database.Path == "" {
		return fmt.Errorf("status needs database.path in the config; in-memory runs leave nothing to inspect")
	}
	docs, err := gormstore.Open(sqlite.Open(cfg.Database.Path))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	out := cmd.OutOrStdout()

	var event core.Event
	if err := docs.Get(ctx, "events", eventID, &event); err != nil {
		return fmt.Errorf("event %s: %w", eventID, err)
	}
	fmt.Fprintf(out, "%s (%s), organized by %s\n", event.Title, event.Type, event.OrganizerID)

	if event.ScheduledAt != nil {
		fmt.Fprintf(out, "scheduled: %s for %d minutes\n",
			event.ScheduledAt.Format("2006-01-02 15:04 MST"), event.DurationMinutes)
	} else {
		var result schedule.Result
		if err := docs.Get(ctx, "schedules", eventID, &result); err == nil && result.Message != "" {
			fmt.Fprintf(out, "scheduled: no (%s)\n", result.Message)
		} else {
			fmt.Fprintln(out, "scheduled: not yet")
		}
	}

	if event.VenueID != "" {
		var venue search.Venue
		if err := docs.Get(ctx, "venues", eventID, &venue); err != nil {
			return fmt.Errorf("venue %s: %w", event.VenueID, err)
		}
		fmt.Fprintf(out, "venue: %s (%s, capacity %d, status %s)\n",
			venue.Name, venue.Type, venue.Capacity, venue.BookingStatus)
	} else if event.VenueRequired {
		fmt.Fprintln(out, "venue: not yet selected")
	}

	if event.CalendarRef != "" {
		fmt.Fprintf(out, "calendar: %s\n", event.CalendarRef)
	}
	return nil
}
