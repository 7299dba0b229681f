// Package formatter renders command output as aligned text tables.
package formatter

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Table buffers rows and writes them as tabwriter-aligned columns with a
// dashed separator under the header.
type Table struct {
	out      io.Writer
	headers  []string
	rows     [][]string
	maxWidth map[int]int // column index -> max display width (0 = unlimited)
	empty    string
}

// NewTable creates a table that writes to w with the given column headers.
func NewTable(w io.Writer, headers ...string) *Table {
	return &Table{out: w, headers: headers, maxWidth: make(map[int]int)}
}

// SetMaxWidth sets the maximum display width for a column (0-indexed).
// Longer values are cut and end in "...".
func (t *Table) SetMaxWidth(col, width int) *Table {
	t.maxWidth[col] = width
	return t
}

// SetEmptyMessage sets a line printed instead of the table when no rows were added.
func (t *Table) SetEmptyMessage(msg string) *Table {
	t.empty = msg
	return t
}

// AddRow appends a data row. Extra values beyond the header count are ignored;
// missing values are filled with empty strings. Line breaks and tabs inside a
// value are flattened to spaces so every row stays on one line.
func (t *Table) AddRow(values ...string) {
	cells := make([]string, len(t.headers))
	for i := range cells {
		if i < len(values) {
			cells[i] = t.truncate(i, flatten(values[i]))
		}
	}
	t.rows = append(t.rows, cells)
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.rows) }

// Render writes the table. Must be called after all AddRow calls.
func (t *Table) Render() error {
	if len(t.rows) == 0 {
		if t.empty == "" {
			return nil
		}
		_, err := fmt.Fprintln(t.out, t.empty)
		return err
	}

	tw := tabwriter.NewWriter(t.out, 0, 0, 2, ' ', 0)
	sep := make([]string, len(t.headers))
	for i, h := range t.headers {
		sep[i] = strings.Repeat("-", len([]rune(h)))
	}
	for _, line := range append([][]string{t.headers, sep}, t.rows...) {
		if _, err := fmt.Fprintln(tw, strings.Join(line, "\t")); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func (t *Table) truncate(col int, s string) string {
	max, ok := t.maxWidth[col]
	r := []rune(s)
	if !ok || max <= 0 || len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

func flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
