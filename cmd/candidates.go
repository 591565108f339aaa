package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/eva-cli/internal/model"
)

const (
	candidateFormatJSON = "json"
	candidateFormatCSV  = "csv"
)

// candidateLoader is implemented by stores that keep their own candidate
// table. The Postgres store reads the upstream view and cannot be loaded.
type candidateLoader interface {
	InsertCandidates(ctx context.Context, cs []model.Candidate) error
}

var candidatesFormat string

var candidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "Manage local candidate signals",
}

var candidatesLoadCmd = &cobra.Command{
	Use:   "load <file>",
	Short: "Load candidate signals from a JSON or CSV file into the SQLite store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		cs, err := readCandidatesFile(args[0], candidatesFormat)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		loader, ok := st.(candidateLoader)
		if !ok {
			return eris.Errorf("candidates load: driver %q reads candidates from the upstream view", cfg.Store.Driver)
		}
		if err := st.Migrate(ctx); err != nil {
			return err
		}
		if err := loader.InsertCandidates(ctx, cs); err != nil {
			return eris.Wrap(err, "candidates load")
		}

		zap.L().Info("candidates loaded",
			zap.Int("rows", len(cs)),
			zap.String("file", args[0]),
		)
		return nil
	},
}

func init() {
	candidatesLoadCmd.Flags().StringVar(&candidatesFormat, "format", "", "input format: json or csv (default from file extension)")
	candidatesCmd.AddCommand(candidatesLoadCmd)
	rootCmd.AddCommand(candidatesCmd)
}

// candidateRow is the file form of a candidate. Day is a YYYY-MM-DD string.
type candidateRow struct {
	Day              string   `json:"day"`
	Tag              string   `json:"tag"`
	Brand            string   `json:"brand"`
	DeltaPct         *float64 `json:"delta_pct"`
	MsgCount         *int     `json:"msg_count"`
	SourceCount      *int     `json:"source_count"`
	PlatformCount    *int     `json:"platform_count"`
	ActionIntentRate *float64 `json:"action_intent_rate"`
	EvalIntentRate   *float64 `json:"eval_intent_rate"`
	MemeRisk         *float64 `json:"meme_risk"`
}

func (r candidateRow) candidate() (model.Candidate, error) {
	day, err := time.Parse(model.DayLayout, strings.TrimSpace(r.Day))
	if err != nil {
		return model.Candidate{}, eris.Wrapf(err, "parse day %q", r.Day)
	}
	return model.Candidate{
		Day:              day,
		Tag:              r.Tag,
		Brand:            r.Brand,
		DeltaPct:         r.DeltaPct,
		MsgCount:         r.MsgCount,
		SourceCount:      r.SourceCount,
		PlatformCount:    r.PlatformCount,
		ActionIntentRate: r.ActionIntentRate,
		EvalIntentRate:   r.EvalIntentRate,
		MemeRisk:         r.MemeRisk,
	}, nil
}

func readCandidatesFile(path, format string) ([]model.Candidate, error) {
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "candidates load: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	var rows []candidateRow
	switch format {
	case candidateFormatJSON:
		rows, err = decodeCandidatesJSON(f)
	case candidateFormatCSV:
		rows, err = decodeCandidatesCSV(f)
	default:
		return nil, eris.Errorf("candidates load: unknown format %q (want json or csv)", format)
	}
	if err != nil {
		return nil, err
	}

	out := make([]model.Candidate, 0, len(rows))
	for i, r := range rows {
		c, err := r.candidate()
		if err != nil {
			return nil, eris.Wrapf(err, "candidates load: row %d", i+1)
		}
		out = append(out, c)
	}
	return out, nil
}

func decodeCandidatesJSON(r io.Reader) ([]candidateRow, error) {
	var rows []candidateRow
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, eris.Wrap(err, "candidates load: decode json")
	}
	return rows, nil
}

// decodeCandidatesCSV maps columns by header name. Empty cells are NULL and
// unknown columns are ignored.
func decodeCandidatesCSV(r io.Reader) ([]candidateRow, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "candidates load: read csv")
	}
	if len(records) == 0 {
		return nil, nil
	}

	cols := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := cols["day"]; !ok {
		return nil, eris.New("candidates load: csv has no day column")
	}

	rows := make([]candidateRow, 0, len(records)-1)
	for n, rec := range records[1:] {
		cell := func(name string) string {
			if i, ok := cols[name]; ok && i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}

		row := candidateRow{Day: cell("day"), Tag: cell("tag"), Brand: cell("brand")}
		var errs []error
		row.DeltaPct, errs = parseFloatCell(cell("delta_pct"), errs)
		row.MsgCount, errs = parseIntCell(cell("msg_count"), errs)
		row.SourceCount, errs = parseIntCell(cell("source_count"), errs)
		row.PlatformCount, errs = parseIntCell(cell("platform_count"), errs)
		row.ActionIntentRate, errs = parseFloatCell(cell("action_intent_rate"), errs)
		row.EvalIntentRate, errs = parseFloatCell(cell("eval_intent_rate"), errs)
		row.MemeRisk, errs = parseFloatCell(cell("meme_risk"), errs)
		if len(errs) > 0 {
			return nil, eris.Wrapf(errs[0], "candidates load: csv line %d", n+2)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseFloatCell(s string, errs []error) (*float64, []error) {
	if s == "" {
		return nil, errs
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, append(errs, err)
	}
	return &v, errs
}

func parseIntCell(s string, errs []error) (*int, []error) {
	if s == "" {
		return nil, errs
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil, append(errs, err)
	}
	return &v, errs
}
