package display

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Table builds the fixed-width tables the CLI prints. It wraps go-pretty's
// writer so commands deal only with headers, rows, and column alignment.
type Table struct {
	writer table.Writer
}

// NewTable creates a table with the given column headers.
func NewTable(headers ...string) *Table {
	w := table.NewWriter()
	w.SetStyle(table.StyleLight)
	row := make(table.Row, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	w.AppendHeader(row)
	return &Table{writer: w}
}

// Row appends one data row. Values are rendered via fmt.Sprint.
func (t *Table) Row(vals ...any) {
	row := make(table.Row, len(vals))
	copy(row, vals)
	t.writer.AppendRow(row)
}

// AlignRight right-aligns the given 1-based columns, for numeric output.
func (t *Table) AlignRight(columns ...int) {
	cfgs := make([]table.ColumnConfig, len(columns))
	for i, n := range columns {
		cfgs[i] = table.ColumnConfig{Number: n, Align: text.AlignRight}
	}
	t.writer.SetColumnConfigs(cfgs)
}

// String renders the table.
func (t *Table) String() string {
	return t.writer.Render()
}
