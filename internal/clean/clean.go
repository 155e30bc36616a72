// Package clean normalizes raw visit records and scraped auxiliary
// streams into canonical tables: typed columns, deduplicated rows,
// imputed missing values, and derived categorical buckets.
package clean

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"

	"github.com/wardview/edsignal/internal/table"
)

// Raw column names as they arrive from the visit-record collaborator.
const (
	RawVisitDate   = "VDATE"
	RawAge         = "AGE"
	RawArrivalTime = "ARRTIME"
	RawAcuity      = "IMMEDR"
	RawPayer       = "PAYTYPER"
)

// Derived column names produced by cleaning. Downstream stages key off
// these.
const (
	ColVisitDate    = "visit_date"
	ColAgeGroup     = "age_group"
	ColArrivalHour  = "arrival_hour"
	ColTimeOfDay    = "time_of_day"
	ColHighAcuity   = "high_acuity"
	ColHasInsurance = "has_insurance"
	ColDayOfWeek    = "day_of_week"
	ColIsWeekend    = "is_weekend"
	ColMonth        = "month"
	ColYear         = "year"
	ColDate         = "date"
	ColSentiment    = "sentiment_polarity"
)

// clipPercentile is the fixed upper-tail containment bound for primary
// numeric columns.
const clipPercentile = 99

// Primary cleans a raw visit-record table: impute, dedupe exact rows,
// derive buckets and flags, clip numeric upper tails. Row count only
// changes through deduplication; row order is preserved.
func Primary(raw *table.Table) *table.Table {
	log := zap.L()
	log.Info("clean: primary start", zap.Int("rows", raw.NumRows()), zap.Int("cols", raw.NumCols()))

	t := imputeMissing(raw)

	before := t.NumRows()
	t = dedupe(t, nil)
	if removed := before - t.NumRows(); removed > 0 {
		log.Info("clean: removed duplicate rows", zap.Int("count", removed))
	}

	t = deriveVisitDate(t)
	t = deriveAgeGroup(t)
	t = deriveArrival(t)
	t = deriveCodeFlags(t)
	t = trimDiagnosisCodes(t)
	t = deriveCalendar(t, ColVisitDate)
	t = clipUpperTails(t)

	log.Info("clean: primary complete", zap.Int("rows", t.NumRows()), zap.Int("cols", t.NumCols()))
	return t
}

// imputeMissing fills numeric gaps with the column median and
// categorical gaps with the column mode ("Unknown" when every cell is
// missing). Fully-present columns are untouched, as are date columns.
func imputeMissing(t *table.Table) *table.Table {
	for _, c := range t.Columns() {
		if c.CountNA() == 0 {
			continue
		}
		switch {
		case c.IsNumericLike():
			present := c.Floats()
			if len(present) == 0 {
				continue
			}
			median, err := stats.Median(present)
			if err != nil {
				continue
			}
			vals := make([]float64, c.Len())
			for i := range vals {
				if c.IsNA(i) {
					vals[i] = median
				} else {
					vals[i] = c.Float(i)
				}
			}
			t = t.MustWithColumn(table.NewNumericLike(c.Kind(), c.Name(), vals, nil))
		case c.Kind() == table.Categorical:
			fill := mode(c)
			vals := make([]string, c.Len())
			for i := range vals {
				if c.IsNA(i) {
					vals[i] = fill
				} else {
					vals[i] = c.String(i)
				}
			}
			t = t.MustWithColumn(table.NewCategorical(c.Name(), vals, nil))
		}
	}
	return t
}

// mode returns the most frequent present value, ties broken by the
// lexicographically smallest, or "Unknown" for an all-missing column.
func mode(c *table.Column) string {
	counts := make(map[string]int)
	for i := 0; i < c.Len(); i++ {
		if !c.IsNA(i) {
			counts[c.String(i)]++
		}
	}
	if len(counts) == 0 {
		return "Unknown"
	}
	best, bestN := "", -1
	for v, n := range counts {
		if n > bestN || (n == bestN && v < best) {
			best, bestN = v, n
		}
	}
	return best
}

// dedupe removes rows whose fingerprint over the given columns (all
// columns when names is nil) has been seen before, keeping first
// occurrences in row order.
func dedupe(t *table.Table, names []string) *table.Table {
	seen := make(map[string]struct{}, t.NumRows())
	keep := make([]bool, t.NumRows())
	dropped := false
	for i := 0; i < t.NumRows(); i++ {
		key := t.RowKey(i, names)
		if _, dup := seen[key]; dup {
			dropped = true
			continue
		}
		seen[key] = struct{}{}
		keep[i] = true
	}
	if !dropped {
		return t
	}
	return t.Filter(keep)
}

// deriveVisitDate parses the raw visit date into a typed date column,
// leaving the raw column unmodified. Unparseable cells become missing.
func deriveVisitDate(t *table.Table) *table.Table {
	raw, ok := t.Col(RawVisitDate)
	if !ok {
		return t
	}
	return t.MustWithColumn(coerceDate(ColVisitDate, raw))
}

// ageBuckets: inclusive-low / exclusive-high, final bucket open-ended.
var ageBuckets = []struct {
	low, high float64
	label     string
}{
	{0, 18, "0-17"},
	{18, 45, "18-44"},
	{45, 65, "45-64"},
}

const seniorBucket = "65+"

func deriveAgeGroup(t *table.Table) *table.Table {
	age, ok := t.Col(RawAge)
	if !ok || !age.IsNumericLike() {
		return t
	}
	vals := make([]string, t.NumRows())
	na := make([]bool, t.NumRows())
	for i := range vals {
		if age.IsNA(i) {
			na[i] = true
			continue
		}
		v := age.Float(i)
		if v < 0 {
			na[i] = true
			continue
		}
		if v >= 65 {
			vals[i] = seniorBucket
			continue
		}
		for _, b := range ageBuckets {
			if v >= b.low && v < b.high {
				vals[i] = b.label
				break
			}
		}
	}
	return t.MustWithColumn(table.NewCategorical(ColAgeGroup, vals, na))
}

// deriveArrival turns a 4-digit arrival time (e.g. 1435) into an hour of
// day and a time-of-day bucket.
func deriveArrival(t *table.Table) *table.Table {
	arr, ok := t.Col(RawArrivalTime)
	if !ok || !arr.IsNumericLike() {
		return t
	}
	hours := make([]float64, t.NumRows())
	hourNA := make([]bool, t.NumRows())
	buckets := make([]string, t.NumRows())
	bucketNA := make([]bool, t.NumRows())
	for i := range hours {
		if arr.IsNA(i) {
			hourNA[i], bucketNA[i] = true, true
			continue
		}
		h := float64(int(arr.Float(i)) / 100)
		hours[i] = h
		switch {
		case h >= 0 && h <= 5:
			buckets[i] = "Night"
		case h >= 6 && h <= 11:
			buckets[i] = "Morning"
		case h >= 12 && h <= 17:
			buckets[i] = "Afternoon"
		case h >= 18 && h <= 23:
			buckets[i] = "Evening"
		default:
			bucketNA[i] = true
		}
	}
	t = t.MustWithColumn(table.NewNumeric(ColArrivalHour, hours, hourNA))
	return t.MustWithColumn(table.NewCategorical(ColTimeOfDay, buckets, bucketNA))
}

// deriveCodeFlags maps acuity and payer codes to binary flags: codes 1
// and 2 are the two most severe acuity levels, codes 5 and 6 the
// self-pay/charity payers.
func deriveCodeFlags(t *table.Table) *table.Table {
	if acuity, ok := t.Col(RawAcuity); ok && acuity.IsNumericLike() {
		vals := make([]bool, t.NumRows())
		na := make([]bool, t.NumRows())
		for i := range vals {
			if acuity.IsNA(i) {
				na[i] = true
				continue
			}
			v := acuity.Float(i)
			vals[i] = v == 1 || v == 2
		}
		t = t.MustWithColumn(table.NewFlag(ColHighAcuity, vals, na))
	}
	if payer, ok := t.Col(RawPayer); ok && payer.IsNumericLike() {
		vals := make([]bool, t.NumRows())
		na := make([]bool, t.NumRows())
		for i := range vals {
			if payer.IsNA(i) {
				na[i] = true
				continue
			}
			v := payer.Float(i)
			vals[i] = v != 5 && v != 6
		}
		t = t.MustWithColumn(table.NewFlag(ColHasInsurance, vals, na))
	}
	return t
}

// trimDiagnosisCodes strips whitespace from every DIAG* code column.
func trimDiagnosisCodes(t *table.Table) *table.Table {
	for _, c := range t.Columns() {
		if c.Kind() != table.Categorical || !strings.Contains(c.Name(), "DIAG") {
			continue
		}
		vals := make([]string, c.Len())
		na := make([]bool, c.Len())
		for i := range vals {
			na[i] = c.IsNA(i)
			vals[i] = strings.TrimSpace(c.String(i))
		}
		t = t.MustWithColumn(table.NewCategorical(c.Name(), vals, na))
	}
	return t
}

// deriveCalendar adds day-of-week (Monday=0), weekend flag, and month
// from the named date column.
func deriveCalendar(t *table.Table, dateCol string) *table.Table {
	date, ok := t.Col(dateCol)
	if !ok || date.Kind() != table.Date {
		return t
	}
	dow := make([]float64, t.NumRows())
	weekend := make([]bool, t.NumRows())
	month := make([]float64, t.NumRows())
	na := make([]bool, t.NumRows())
	for i := range dow {
		if date.IsNA(i) {
			na[i] = true
			continue
		}
		ts := date.Time(i)
		d := (int(ts.Weekday()) + 6) % 7
		dow[i] = float64(d)
		weekend[i] = d >= 5
		month[i] = float64(ts.Month())
	}
	t = t.MustWithColumn(table.NewNumeric(ColDayOfWeek, dow, na))
	t = t.MustWithColumn(table.NewFlag(ColIsWeekend, weekend, append([]bool(nil), na...)))
	return t.MustWithColumn(table.NewNumeric(ColMonth, month, append([]bool(nil), na...)))
}

// clipUpperTails caps every nonzero-variance numeric column at its 99th
// percentile. Upper tail only; rows are never dropped.
func clipUpperTails(t *table.Table) *table.Table {
	for _, c := range t.Columns() {
		if !c.IsNumericLike() {
			continue
		}
		present := c.Floats()
		if len(present) < 2 {
			continue
		}
		std, err := stats.StandardDeviationSample(present)
		if err != nil || std == 0 {
			continue
		}
		bound := quantile(present, clipPercentile/100.0)
		vals := make([]float64, c.Len())
		na := make([]bool, c.Len())
		for i := range vals {
			na[i] = c.IsNA(i)
			v := c.Float(i)
			if v > bound {
				v = bound
			}
			vals[i] = v
		}
		t = t.MustWithColumn(table.NewNumericLike(c.Kind(), c.Name(), vals, na))
	}
	return t
}

// quantile computes the q-th quantile with linear interpolation between
// the two nearest order statistics. Callers guarantee len(vals) >= 2.
func quantile(vals []float64, q float64) float64 {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// coerceDate converts a column of any kind into a typed date column
// named name. Unparseable cells become missing.
func coerceDate(name string, c *table.Column) *table.Column {
	vals := make([]time.Time, c.Len())
	na := make([]bool, c.Len())
	for i := range vals {
		if c.IsNA(i) {
			na[i] = true
			continue
		}
		switch c.Kind() {
		case table.Date:
			vals[i] = c.Time(i)
		case table.Categorical:
			ts, ok := table.ParseTime(c.String(i))
			if !ok {
				na[i] = true
				continue
			}
			vals[i] = ts
		default:
			na[i] = true
		}
	}
	return table.NewDate(name, vals, na)
}
