package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"catwatch/internal/dto"
	"catwatch/internal/repository/sqlite"

	"github.com/spf13/cobra"
)

var (
	eventsLabel string
	eventsLimit int
	eventsSince time.Duration
	pruneAge    time.Duration
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List stored notification events",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer db.Close()

		filter := &dto.EventFilters{Label: eventsLabel, Limit: eventsLimit}
		if eventsSince > 0 {
			filter.After = time.Now().Add(-eventsSince)
		}
		events, err := sqlite.NewEventRepository(db).GetAll(filter)
		if err != nil {
			return err
		}

		if len(events) == 0 {
			fmt.Println("No events found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "TIME\tLABEL\tTRACK\tCONF\tBOX\tSNAPSHOT")
		fmt.Fprintln(w, "----\t-----\t-----\t----\t---\t--------")
		for _, ev := range events {
			fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\t%d,%d-%d,%d\t%s\n",
				ev.OccurredAt.Local().Format("2006-01-02 15:04:05"), ev.Label, ev.TrackID, ev.Confidence,
				ev.Box.X1, ev.Box.Y1, ev.Box.X2, ev.Box.Y2, ev.Snapshot)
		}
		return w.Flush()
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete events older than --older-than",
	RunE: func(cmd *cobra.Command, args []string) error {
		if pruneAge <= 0 {
			return fmt.Errorf("--older-than must be positive")
		}
		db, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := sqlite.NewEventRepository(db).DeleteBefore(time.Now().Add(-pruneAge))
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d event(s).\n", n)
		return nil
	},
}

func init() {
	eventsCmd.Flags().StringVar(&eventsLabel, "label", "", "only events of this label")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 50, "maximum number of events")
	eventsCmd.Flags().DurationVar(&eventsSince, "since", 0, "only events newer than this (e.g. 24h)")
	pruneCmd.Flags().DurationVar(&pruneAge, "older-than", 30*24*time.Hour, "age of events to delete")

	eventsCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(eventsCmd)
}
