package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/tutu-network/classifier/internal/app/dispatch"
	"github.com/tutu-network/classifier/internal/domain"
)

// Output formats accepted by --format.
const (
	formatText  = "text"
	formatTable = "table"
	formatJSON  = "json"
)

func validFormat(f string) error {
	switch f {
	case formatText, formatTable, formatJSON:
		return nil
	}
	return fmt.Errorf("unsupported format %q (want text, table or json)", f)
}

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment, colorize bool) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	if colorize {
		tw.Style().Color.Header = text.Colors{text.Bold}
	}

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// ─── Responses ──────────────────────────────────────────────────────────────

// renderResponses writes the batch responses in the chosen format.
func renderResponses(w io.Writer, format string, b dispatch.Batch) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"batch_id":   b.ID,
			"mode":       b.Mode,
			"workers":    b.Workers,
			"failed":     domain.CountFailed(b.Responses),
			"elapsed_ms": b.Elapsed.Milliseconds(),
			"responses":  b.Responses,
		})

	case formatTable:
		rows := make([][]string, 0, len(b.Responses))
		for _, r := range b.Responses {
			if !r.OK() {
				rows = append(rows, []string{strconv.Itoa(r.Index), string(r.Item), "", "None", ""})
				continue
			}
			for rank, res := range r.Results {
				image := ""
				if rank == 0 {
					image = string(r.Item)
				}
				rows = append(rows, []string{
					strconv.Itoa(r.Index), image, strconv.Itoa(rank + 1), res.Label, formatScore(res.Score),
				})
			}
		}
		_, err := fmt.Fprintln(w, renderTable(
			[]string{"#", "IMAGE", "RANK", "LABEL", "SCORE"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignRight},
			shouldColorize(w),
		))
		return err

	default:
		for _, r := range b.Responses {
			if _, err := fmt.Fprintln(w, r.String()); err != nil {
				return err
			}
		}
		return nil
	}
}

func formatScore(s float32) string {
	return strconv.FormatFloat(float64(s), 'f', 4, 32)
}

// ─── History ────────────────────────────────────────────────────────────────

func renderBatchList(w io.Writer, format string, batches []domain.BatchSummary) error {
	if format == formatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(batches)
	}
	if len(batches) == 0 {
		_, err := fmt.Fprintln(w, "No batches recorded yet. Run 'classifier classify' to get started.")
		return err
	}

	rows := make([][]string, 0, len(batches))
	for _, b := range batches {
		rows = append(rows, []string{
			b.ID,
			b.StartedAt.Local().Format("2006-01-02 15:04:05"),
			string(b.Mode),
			strconv.Itoa(b.Workers),
			strconv.Itoa(b.Items),
			strconv.Itoa(b.Failed),
			b.Duration.Round(time.Millisecond).String(),
		})
	}
	_, err := fmt.Fprintln(w, renderTable(
		[]string{"ID", "STARTED", "MODE", "WORKERS", "ITEMS", "FAILED", "DURATION"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
		shouldColorize(w),
	))
	return err
}

func renderBatchRecord(w io.Writer, format string, rec *domain.BatchRecord) error {
	if format == formatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}

	fmt.Fprintf(w, "Batch %s\n", rec.ID)
	fmt.Fprintf(w, "  %s, %d worker(s), %d item(s), %d failed, %s\n\n",
		rec.Mode, rec.Workers, rec.Items, rec.Failed, rec.Duration.Round(time.Millisecond))

	b := dispatch.Batch{
		ID:        rec.ID,
		Mode:      rec.Mode,
		Workers:   rec.Workers,
		StartedAt: rec.StartedAt,
		Elapsed:   rec.Duration,
		Responses: rec.Responses,
	}
	if format == formatText {
		format = formatTable
	}
	return renderResponses(w, format, b)
}

// indent prefixes every line of s.
func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
