package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/eva-cli/internal/engine"
	"github.com/sells-group/eva-cli/internal/model"
	"github.com/sells-group/eva-cli/internal/trends"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

func checkFormat(format string) error {
	switch format {
	case formatTable, formatJSON:
		return nil
	default:
		return eris.Errorf("unknown format %q (want table or json)", format)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode json")
}

func formatRunStats(w io.Writer, s *engine.RunStats, format string) error {
	if format == formatJSON {
		return writeJSON(w, s)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Run:\t%s\n", s.RunID)
	fmt.Fprintf(tw, "Started:\t%s\n", s.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(tw, "Duration:\t%s\n", s.Duration.Round(time.Millisecond))
	fmt.Fprintf(tw, "Candidates:\t%d\n", s.Candidates)
	fmt.Fprintf(tw, "Scored:\t%d\n", s.Scored)
	fmt.Fprintf(tw, "Skipped:\t%d\n", s.Skipped)
	fmt.Fprintf(tw, "High:\t%d\n", s.High)
	fmt.Fprintf(tw, "Watchlist:\t%d\n", s.Watchlist)
	fmt.Fprintf(tw, "Suppressed:\t%d\n", s.Suppressed)
	fmt.Fprintf(tw, "Failed:\t%d\n", s.Failed)
	fmt.Fprintf(tw, "Cross-validated:\t%d (%d downgraded)\n", s.Validated, s.Downgraded)
	fmt.Fprintf(tw, "Events:\t%d warm, %d eligible\n", s.WarmEvents, s.EligibleEvents)
	if s.Canceled {
		fmt.Fprintf(tw, "Canceled:\ttrue\n")
	}
	return tw.Flush()
}

func formatConfidence(w io.Writer, recs []model.ConfidenceRecord, format string) error {
	if format == formatJSON {
		return writeJSON(w, recs)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DAY\tTAG\tBRAND\tBAND\tFINAL\tREASON\tVERSION")
	fmt.Fprintln(tw, "---\t---\t-----\t----\t-----\t------\t-------")
	for _, r := range recs {
		reason := "-"
		if r.GateFailedReason != nil {
			reason = *r.GateFailedReason
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.4f\t%s\t%s\n",
			r.Day.Format(model.DayLayout), r.Tag, r.Brand, r.Band, r.FinalConfidence, reason, r.ScoringVersion)
	}
	return tw.Flush()
}

func formatEvents(w io.Writer, events []model.SignalEvent, format string) error {
	if format == formatJSON {
		return writeJSON(w, events)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tTYPE\tSEVERITY\tDAY\tTAG\tBRAND\tPAYLOAD")
	fmt.Fprintln(tw, "-------\t----\t--------\t---\t---\t-----\t-------")
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			ev.CreatedAt.Format("2006-01-02 15:04"), ev.Type, ev.Severity,
			ev.Day.Format(model.DayLayout), ev.Tag, ev.Brand, summarizePayload(ev.Payload))
	}
	return tw.Flush()
}

// summarizePayload renders top-level scalar payload fields as sorted k=v pairs.
func summarizePayload(p map[string]any) string {
	if len(p) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(p))
	for k, v := range p {
		if _, nested := v.(map[string]any); nested {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		switch v := p[k].(type) {
		case nil:
			parts = append(parts, k+"=null")
		case float64:
			parts = append(parts, fmt.Sprintf("%s=%.4f", k, v))
		default:
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
	}
	return strings.Join(parts, " ")
}

func formatTrendsResult(w io.Writer, r trends.Result, format string) error {
	if format == formatJSON {
		return writeJSON(w, r)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Query:\t%s\n", r.QueryTerm)
	fmt.Fprintf(tw, "Timeframe:\t%s\n", r.Timeframe)
	if !r.OK() {
		fmt.Fprintf(tw, "Error:\t%s\n", r.Error)
		return tw.Flush()
	}
	fmt.Fprintf(tw, "Search interest:\t%.4f\n", r.SearchInterest)
	fmt.Fprintf(tw, "Direction:\t%s\n", r.Direction)
	fmt.Fprintf(tw, "Adjustment:\t%+.4f\n", r.Adjustment)
	fmt.Fprintf(tw, "Validates:\t%t\n", r.Validates)
	fmt.Fprintf(tw, "Cached:\t%t\n", r.Cached)
	if r.Raw != nil {
		fmt.Fprintf(tw, "Samples:\t%d (mean %.2f, std %.2f)\n", len(r.Raw.Values), r.Raw.Mean, r.Raw.Std)
	}
	return tw.Flush()
}
