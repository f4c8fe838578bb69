package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// Table writes column-aligned rows. The header and divider are written on
// the first Row, so an empty table prints nothing.
type Table struct {
	w       *tabwriter.Writer
	headers []string
	prefix  string
	rows    int
}

// NewTable creates a table on stdout.
func NewTable(headers ...string) *Table {
	return NewTableTo(os.Stdout, headers...)
}

// NewTableTo creates a table writing to out.
func NewTableTo(out io.Writer, headers ...string) *Table {
	return &Table{
		w:       tabwriter.NewWriter(out, 0, 0, 2, ' ', 0),
		headers: headers,
	}
}

// WithPrefix sets a string prepended to every line.
func (t *Table) WithPrefix(prefix string) *Table {
	t.prefix = prefix
	return t
}

// Row writes one row.
func (t *Table) Row(values ...string) {
	if t.rows == 0 {
		fmt.Fprintln(t.w, t.prefix+strings.Join(t.headers, "\t"))
		dividers := make([]string, len(t.headers))
		for i, h := range t.headers {
			dividers[i] = strings.Repeat("-", len(h))
		}
		fmt.Fprintln(t.w, t.prefix+strings.Join(dividers, "\t"))
	}
	t.rows++
	fmt.Fprintln(t.w, t.prefix+strings.Join(values, "\t"))
}

// Len returns the number of rows written.
func (t *Table) Len() int { return t.rows }

// Flush writes buffered output.
func (t *Table) Flush() {
	if t.rows > 0 {
		t.w.Flush()
	}
}
