package table

import (
	"math"
	"time"
)

// Kind classifies a column's cell type and drives default imputation
// and aggregation behavior downstream.
type Kind int

const (
	Numeric Kind = iota
	Categorical
	Date
	Flag
)

// String returns the kind name used in validation reports.
func (k Kind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Categorical:
		return "categorical"
	case Date:
		return "date"
	case Flag:
		return "flag"
	default:
		return "unknown"
	}
}

// Column is an immutable named column. Exactly one backing slice is
// populated depending on Kind; na marks missing cells. Flags share the
// numeric backing as 0/1 so interaction products stay cheap.
type Column struct {
	name string
	kind Kind
	num  []float64
	str  []string
	date []time.Time
	na   []bool
}

// NewNumeric builds a numeric column. A nil na slice means fully present.
func NewNumeric(name string, vals []float64, na []bool) *Column {
	return &Column{name: name, kind: Numeric, num: vals, na: normalizeNA(na, len(vals))}
}

// NewCategorical builds a string-valued column.
func NewCategorical(name string, vals []string, na []bool) *Column {
	return &Column{name: name, kind: Categorical, str: vals, na: normalizeNA(na, len(vals))}
}

// NewDate builds a date column.
func NewDate(name string, vals []time.Time, na []bool) *Column {
	return &Column{name: name, kind: Date, date: vals, na: normalizeNA(na, len(vals))}
}

// NewFlag builds a derived 0/1 flag column.
func NewFlag(name string, vals []bool, na []bool) *Column {
	num := make([]float64, len(vals))
	for i, v := range vals {
		if v {
			num[i] = 1
		}
	}
	return &Column{name: name, kind: Flag, num: num, na: normalizeNA(na, len(vals))}
}

// NewNumericLike rebuilds a numeric-backed column under the given kind,
// so value rewrites (imputation, clipping) keep a flag column a flag. A
// Flag kind survives only while every present value stays 0 or 1; a
// fractional fill or clip bound demotes the rebuild to Numeric.
func NewNumericLike(kind Kind, name string, vals []float64, na []bool) *Column {
	na = normalizeNA(na, len(vals))
	if kind == Flag {
		for i, v := range vals {
			if !na[i] && v != 0 && v != 1 {
				kind = Numeric
				break
			}
		}
	}
	if kind != Flag {
		kind = Numeric
	}
	return &Column{name: name, kind: kind, num: vals, na: na}
}

func normalizeNA(na []bool, n int) []bool {
	if na == nil {
		return make([]bool, n)
	}
	return na
}

// Name returns the column name.
func (c *Column) Name() string { return c.name }

// Kind returns the column kind.
func (c *Column) Kind() Kind { return c.kind }

// Len returns the number of cells.
func (c *Column) Len() int {
	switch c.kind {
	case Categorical:
		return len(c.str)
	case Date:
		return len(c.date)
	default:
		return len(c.num)
	}
}

// IsNA reports whether cell i is missing.
func (c *Column) IsNA(i int) bool { return c.na[i] }

// IsNumericLike reports whether the column carries float cells (numeric
// or flag).
func (c *Column) IsNumericLike() bool { return c.kind == Numeric || c.kind == Flag }

// Float returns the numeric cell i. NaN for missing or non-numeric kinds.
func (c *Column) Float(i int) float64 {
	if !c.IsNumericLike() || c.na[i] {
		return math.NaN()
	}
	return c.num[i]
}

// String returns the categorical cell i, "" when missing.
func (c *Column) String(i int) string {
	if c.kind != Categorical || c.na[i] {
		return ""
	}
	return c.str[i]
}

// Time returns the date cell i, zero time when missing.
func (c *Column) Time(i int) time.Time {
	if c.kind != Date || c.na[i] {
		return time.Time{}
	}
	return c.date[i]
}

// Floats returns all present numeric cells, in row order.
func (c *Column) Floats() []float64 {
	if !c.IsNumericLike() {
		return nil
	}
	out := make([]float64, 0, len(c.num))
	for i, v := range c.num {
		if !c.na[i] {
			out = append(out, v)
		}
	}
	return out
}

// CountNA returns the number of missing cells.
func (c *Column) CountNA() int {
	n := 0
	for _, m := range c.na {
		if m {
			n++
		}
	}
	return n
}

// take builds a new column keeping only the given row indices.
func (c *Column) take(idx []int) *Column {
	out := &Column{name: c.name, kind: c.kind, na: make([]bool, len(idx))}
	switch c.kind {
	case Categorical:
		out.str = make([]string, len(idx))
		for j, i := range idx {
			out.str[j] = c.str[i]
			out.na[j] = c.na[i]
		}
	case Date:
		out.date = make([]time.Time, len(idx))
		for j, i := range idx {
			out.date[j] = c.date[i]
			out.na[j] = c.na[i]
		}
	default:
		out.num = make([]float64, len(idx))
		for j, i := range idx {
			out.num[j] = c.num[i]
			out.na[j] = c.na[i]
		}
	}
	return out
}
