// Package table implements the row-ordered, column-named value table the
// pipeline stages exchange. Tables are immutable: every operation returns
// a new table, sharing untouched columns with its input, so a failure in
// one stage never corrupts the table held by the caller.
package table

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Table is an ordered set of equal-length columns.
type Table struct {
	cols  []*Column
	index map[string]int
	rows  int
}

// New builds a table from columns. All columns must have equal lengths
// and distinct names.
func New(cols ...*Column) (*Table, error) {
	t := &Table{index: make(map[string]int, len(cols))}
	for _, c := range cols {
		if _, dup := t.index[c.name]; dup {
			return nil, eris.Errorf("table: duplicate column %q", c.name)
		}
		if len(t.cols) > 0 && c.Len() != t.rows {
			return nil, eris.Errorf("table: column %q has %d rows, want %d", c.name, c.Len(), t.rows)
		}
		t.rows = c.Len()
		t.index[c.name] = len(t.cols)
		t.cols = append(t.cols, c)
	}
	return t, nil
}

// Empty returns a zero-row, zero-column table.
func Empty() *Table {
	return &Table{index: make(map[string]int)}
}

// NumRows returns the row count.
func (t *Table) NumRows() int { return t.rows }

// NumCols returns the column count.
func (t *Table) NumCols() int { return len(t.cols) }

// Names returns the column names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.name
	}
	return names
}

// Col returns the named column.
func (t *Table) Col(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.cols[i], true
}

// Has reports whether the named column exists.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Columns returns the columns in order. Callers must not mutate them.
func (t *Table) Columns() []*Column { return t.cols }

// WithColumn returns a new table with col appended, or replacing an
// existing column of the same name in place.
func (t *Table) WithColumn(col *Column) (*Table, error) {
	if len(t.cols) > 0 && col.Len() != t.rows {
		return nil, eris.Errorf("table: column %q has %d rows, want %d", col.name, col.Len(), t.rows)
	}
	out := &Table{
		cols:  make([]*Column, len(t.cols)),
		index: make(map[string]int, len(t.cols)+1),
		rows:  t.rows,
	}
	copy(out.cols, t.cols)
	for k, v := range t.index {
		out.index[k] = v
	}
	if len(t.cols) == 0 {
		out.rows = col.Len()
	}
	if i, ok := out.index[col.name]; ok {
		out.cols[i] = col
	} else {
		out.index[col.name] = len(out.cols)
		out.cols = append(out.cols, col)
	}
	return out, nil
}

// MustWithColumn is WithColumn for columns already sized to the table.
// It panics on length mismatch, which is a programming error in the
// calling transform, never a data condition.
func (t *Table) MustWithColumn(col *Column) *Table {
	out, err := t.WithColumn(col)
	if err != nil {
		panic(err)
	}
	return out
}

// Take returns a new table containing only the given row indices, in the
// given order.
func (t *Table) Take(idx []int) *Table {
	out := &Table{
		cols:  make([]*Column, len(t.cols)),
		index: make(map[string]int, len(t.cols)),
		rows:  len(idx),
	}
	for i, c := range t.cols {
		out.cols[i] = c.take(idx)
		out.index[c.name] = i
	}
	return out
}

// Filter returns a new table keeping rows where keep[i] is true.
func (t *Table) Filter(keep []bool) *Table {
	idx := make([]int, 0, t.rows)
	for i, k := range keep {
		if k {
			idx = append(idx, i)
		}
	}
	return t.Take(idx)
}

// SortByDate returns a new table stably sorted ascending by the named
// date column. Missing dates sort last.
func (t *Table) SortByDate(name string) (*Table, error) {
	col, ok := t.Col(name)
	if !ok {
		return nil, eris.Errorf("table: sort column %q not found", name)
	}
	if col.kind != Date {
		return nil, eris.Errorf("table: sort column %q is %s, want date", name, col.kind)
	}
	idx := make([]int, t.rows)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ia, ib := idx[a], idx[b]
		if col.na[ia] != col.na[ib] {
			return !col.na[ia]
		}
		if col.na[ia] {
			return false
		}
		return col.date[ia].Before(col.date[ib])
	})
	return t.Take(idx), nil
}

// RowKey fingerprints row i over the given columns (all columns when
// names is empty). Equal keys mean equal rows for dedup purposes.
func (t *Table) RowKey(i int, names []string) string {
	cols := t.cols
	if len(names) > 0 {
		cols = make([]*Column, 0, len(names))
		for _, n := range names {
			if c, ok := t.Col(n); ok {
				cols = append(cols, c)
			}
		}
	}
	var b strings.Builder
	for _, c := range cols {
		if c.na[i] {
			b.WriteString("\x00")
		} else {
			switch c.kind {
			case Categorical:
				b.WriteString(c.str[i])
			case Date:
				b.WriteString(strconv.FormatInt(c.date[i].UnixNano(), 36))
			default:
				b.WriteString(strconv.FormatFloat(c.num[i], 'g', -1, 64))
			}
		}
		b.WriteString("\x1f")
	}
	return b.String()
}

// Day truncates a timestamp to calendar-day granularity in UTC. This is
// the join key unit for daily aggregates; the original timestamp column
// is never modified.
func Day(ts time.Time) time.Time {
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
}
