package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/eva-cli/internal/model"
	"github.com/sells-group/eva-cli/internal/store"
)

// -- events --

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List emitted signal events",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}
		ctx := cmd.Context()

		typ, _ := cmd.Flags().GetString("type")
		brand, _ := cmd.Flags().GetString("brand")
		sinceFlag, _ := cmd.Flags().GetString("since")
		limit, _ := cmd.Flags().GetInt("limit")
		format, _ := cmd.Flags().GetString("format")
		if err := checkFormat(format); err != nil {
			return err
		}

		filter := store.EventFilter{
			Type:  model.EventType(strings.ToUpper(typ)),
			Brand: brand,
			Limit: limit,
		}
		if sinceFlag != "" {
			since, err := parseSince(sinceFlag, time.Now())
			if err != nil {
				return err
			}
			filter.Since = &since
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		events, err := st.ListEvents(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "events")
		}
		if len(events) == 0 && format == formatTable {
			fmt.Fprintln(os.Stderr, "No events found.")
			return nil
		}
		return formatEvents(os.Stdout, events, format)
	},
}

// -- confidence --

var confidenceCmd = &cobra.Command{
	Use:   "confidence",
	Short: "List persisted confidence records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}
		ctx := cmd.Context()

		dayFlag, _ := cmd.Flags().GetString("day")
		band, _ := cmd.Flags().GetString("band")
		brand, _ := cmd.Flags().GetString("brand")
		version, _ := cmd.Flags().GetString("version")
		limit, _ := cmd.Flags().GetInt("limit")
		format, _ := cmd.Flags().GetString("format")
		if err := checkFormat(format); err != nil {
			return err
		}

		filter, err := confidenceFilter(dayFlag, band, brand, version, limit)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		recs, err := st.ListConfidence(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "confidence")
		}
		if len(recs) == 0 && format == formatTable {
			fmt.Fprintln(os.Stderr, "No confidence records found.")
			return nil
		}
		return formatConfidence(os.Stdout, recs, format)
	},
}

func confidenceFilter(day, band, brand, version string, limit int) (store.ConfidenceFilter, error) {
	f := store.ConfidenceFilter{Brand: brand, ScoringVersion: version, Limit: limit}
	if day != "" {
		d, err := time.Parse(model.DayLayout, day)
		if err != nil {
			return f, eris.Wrapf(err, "invalid --day %q (want YYYY-MM-DD)", day)
		}
		f.Day = &d
	}
	if band != "" {
		b := model.Band(strings.ToUpper(band))
		switch b {
		case model.BandHigh, model.BandWatchlist, model.BandSuppressed:
			f.Band = b
		default:
			return f, eris.Errorf("invalid --band %q (want HIGH, WATCHLIST or SUPPRESSED)", band)
		}
	}
	return f, nil
}

// parseSince accepts a duration back from now ("24h") or a date or RFC 3339 time.
func parseSince(s string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(model.DayLayout, s); err == nil {
		return t, nil
	}
	return time.Time{}, eris.Errorf("invalid --since %q (want a duration like 24h, a date or an RFC 3339 time)", s)
}

func init() {
	eventsCmd.Flags().String("type", "", "filter by event type (WATCHLIST_WARM, RECOMMENDATION_ELIGIBLE)")
	eventsCmd.Flags().String("brand", "", "filter by brand")
	eventsCmd.Flags().String("since", "", "only events created after this (duration, date or RFC 3339)")
	eventsCmd.Flags().Int("limit", 50, "max events to show")
	eventsCmd.Flags().String("format", formatTable, "output format: table or json")

	confidenceCmd.Flags().String("day", "", "filter by candidate day (YYYY-MM-DD)")
	confidenceCmd.Flags().String("band", "", "filter by band (HIGH, WATCHLIST, SUPPRESSED)")
	confidenceCmd.Flags().String("brand", "", "filter by brand")
	confidenceCmd.Flags().String("version", "", "filter by scoring version")
	confidenceCmd.Flags().Int("limit", 50, "max records to show")
	confidenceCmd.Flags().String("format", formatTable, "output format: table or json")

	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(confidenceCmd)
}
