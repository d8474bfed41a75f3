// Package format renders CLI command output in the operator's chosen
// OutputFormat (table, json, or csv), the way the teacher's cmd/cli
// commands render benchmark run/comparison results.
package format

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// OutputFormat selects how a command renders its result.
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatCSV   OutputFormat = "csv"
)

// Rows renders headers/rows (or, for FormatJSON, v directly) to stdout in
// f's format, so commands that have both a tabular and a JSON view don't
// each repeat the same format-switch. Commands with no tabular shape
// (footprint, pareto) skip this and write their JSON payload through as-is.
func Rows(f OutputFormat, headers []string, rows [][]string, v any) error {
	switch f {
	case FormatJSON:
		return JSON(v)
	case FormatCSV:
		return CSV(os.Stdout, headers, rows)
	default:
		Table(headers, rows)
		return nil
	}
}

// Table renders rows as a tab-aligned table to stdout.
func Table(headers []string, rows [][]string) {
	TableTo(os.Stdout, headers, rows)
}

// TableTo renders headers and rows as a tab-aligned table to w: a header
// line, a separator line sized to each header, then one line per row.
func TableTo(w io.Writer, headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	fmt.Fprintln(tw, strings.Join(separators(headers), "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	tw.Flush()
}

func separators(headers []string) []string {
	seps := make([]string, len(headers))
	for i, h := range headers {
		seps[i] = strings.Repeat("-", len(h))
	}
	return seps
}

// JSON renders v as indented JSON to stdout.
func JSON(v any) error {
	return JSONTo(os.Stdout, v)
}

// JSONTo renders v as indented JSON to w.
func JSONTo(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// CSV writes headers followed by rows as CSV to w.
func CSV(w io.Writer, headers []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(headers); err != nil {
		return err
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Ptr dereferences p with fmtStr, or returns "-" if p is nil — used for the
// optional fields (e.g. a goal threshold) that tabular output renders as a
// dash rather than an empty cell.
func Ptr[T any](p *T, fmtStr string) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf(fmtStr, *p)
}

// PtrF64 formats *p to prec decimal places, or "-" if p is nil.
func PtrF64(p *float64, prec int) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.*f", prec, *p)
}
