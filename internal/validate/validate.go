// Package validate inspects table quality without mutating anything.
// Checks produce structured diagnostics; threshold breaches are reported
// as warnings and never halt a pipeline run.
package validate

import (
	"fmt"
	"sort"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/wardview/edsignal/internal/table"
)

// iqrMultiplier is the fixed Tukey fence factor for outlier bounds.
const iqrMultiplier = 1.5

// DefaultMissingThreshold flags columns whose missing ratio exceeds it.
const DefaultMissingThreshold = 0.5

// Report is the assembled diagnostic output of a full validation pass.
// It is rebuilt per invocation and safe to serialize as JSON.
type Report struct {
	DatasetInfo     DatasetInfo            `json:"dataset_info"`
	MissingValues   *MissingReport         `json:"missing_values,omitempty"`
	Duplicates      *DuplicateReport       `json:"duplicates,omitempty"`
	DataTypes       *TypeReport            `json:"data_types,omitempty"`
	NumericRanges   *NumericRangeReport    `json:"numeric_ranges,omitempty"`
	Categorical     *CategoricalReport     `json:"categorical_distribution,omitempty"`
	DateConsistency map[string]DateSummary `json:"date_consistency,omitempty"`
}

// DatasetInfo describes the validated table's shape.
type DatasetInfo struct {
	Rows    int `json:"n_rows"`
	Columns int `json:"n_columns"`
}

// MissingReport summarizes per-column missingness.
type MissingReport struct {
	TotalMissing   int                `json:"total_missing"`
	MissingCounts  map[string]int     `json:"columns_with_missing,omitempty"`
	MissingRatios  map[string]float64 `json:"missing_ratios,omitempty"`
	HighMissing    []string           `json:"high_missing_columns,omitempty"`
	RatioThreshold float64            `json:"ratio_threshold"`
}

// DuplicateReport summarizes duplicate rows over the checked columns.
type DuplicateReport struct {
	Count          int      `json:"duplicate_count"`
	Ratio          float64  `json:"duplicate_ratio"`
	CheckedColumns []string `json:"checked_columns,omitempty"`
}

// TypeReport tallies columns per kind.
type TypeReport struct {
	Counts  map[string]int      `json:"data_types"`
	Columns map[string][]string `json:"columns_by_type"`
}

// NumericRangeReport carries IQR outlier diagnostics and descriptive
// statistics per numeric column.
type NumericRangeReport struct {
	Outliers        map[string]OutlierSummary `json:"outliers,omitempty"`
	RangeViolations map[string]int            `json:"range_violations,omitempty"`
	Statistics      map[string]ColumnStats    `json:"statistics,omitempty"`
}

// OutlierSummary reports rows outside the Tukey fences.
type OutlierSummary struct {
	Count      int     `json:"count"`
	Ratio      float64 `json:"ratio"`
	LowerBound float64 `json:"lower_bound"`
	UpperBound float64 `json:"upper_bound"`
}

// ColumnStats holds descriptive statistics over present cells.
type ColumnStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Std    float64 `json:"std"`
}

// Bounds is a caller-supplied expected (min, max) range for a column.
type Bounds struct {
	Min float64
	Max float64
}

// CategoricalReport summarizes categorical cardinality.
type CategoricalReport struct {
	Distributions map[string]CategoricalSummary `json:"distributions,omitempty"`
	Warnings      []string                      `json:"warnings,omitempty"`
}

// CategoricalSummary describes one categorical column.
type CategoricalSummary struct {
	UniqueValues int            `json:"n_unique"`
	TopValues    map[string]int `json:"top_5_values,omitempty"`
	NullCount    int            `json:"null_count"`
}

// DateSummary describes one date column.
type DateSummary struct {
	NullCount int    `json:"null_count"`
	MinDate   string `json:"min_date"`
	MaxDate   string `json:"max_date"`
	SpanDays  int    `json:"date_range_days"`
}

// Options configures a full validation pass.
type Options struct {
	MissingThreshold float64
	DuplicateSubset  []string
	ExpectedRanges   map[string]Bounds
	DateColumns      []string
	MinCategories    int
	MaxCategories    int
}

// CheckMissing reports per-column missing counts and ratios, flagging
// columns above the threshold.
func CheckMissing(t *table.Table, threshold float64) *MissingReport {
	r := &MissingReport{
		MissingCounts:  make(map[string]int),
		MissingRatios:  make(map[string]float64),
		RatioThreshold: threshold,
	}
	for _, c := range t.Columns() {
		n := c.CountNA()
		if n == 0 {
			continue
		}
		r.TotalMissing += n
		r.MissingCounts[c.Name()] = n
		ratio := float64(n) / float64(t.NumRows())
		r.MissingRatios[c.Name()] = ratio
		if ratio > threshold {
			r.HighMissing = append(r.HighMissing, c.Name())
		}
	}
	sort.Strings(r.HighMissing)
	if len(r.HighMissing) > 0 {
		zap.L().Warn("validate: columns above missing threshold",
			zap.Float64("threshold", threshold),
			zap.Strings("columns", r.HighMissing))
	}
	return r
}

// CheckDuplicates reports the count and ratio of duplicate rows,
// optionally restricted to a column subset. Deterministic for an
// unmodified table. A subset matching no column at all is a caller
// contract violation and surfaces as an error rather than degrading to
// an empty row key; individually absent columns are skipped.
func CheckDuplicates(t *table.Table, subset []string) (*DuplicateReport, error) {
	checked := subset
	if len(subset) > 0 {
		var present []string
		for _, name := range subset {
			if t.Has(name) {
				present = append(present, name)
			}
		}
		if len(present) == 0 {
			sorted := append([]string(nil), subset...)
			sort.Strings(sorted)
			return nil, eris.Errorf("validate: duplicate check columns %v match no column in table", sorted)
		}
		checked = present
	}

	seen := make(map[string]struct{}, t.NumRows())
	count := 0
	for i := 0; i < t.NumRows(); i++ {
		key := t.RowKey(i, checked)
		if _, dup := seen[key]; dup {
			count++
			continue
		}
		seen[key] = struct{}{}
	}
	ratio := 0.0
	if t.NumRows() > 0 {
		ratio = float64(count) / float64(t.NumRows())
	}
	if count > 0 {
		zap.L().Warn("validate: duplicate rows found", zap.Int("count", count))
	}
	return &DuplicateReport{Count: count, Ratio: ratio, CheckedColumns: checked}, nil
}

// CheckTypes tallies columns per kind.
func CheckTypes(t *table.Table) *TypeReport {
	r := &TypeReport{Counts: make(map[string]int), Columns: make(map[string][]string)}
	for _, c := range t.Columns() {
		k := c.Kind().String()
		r.Counts[k]++
		r.Columns[k] = append(r.Columns[k], c.Name())
	}
	return r
}

// CheckNumericRanges computes Tukey-fence outlier diagnostics and
// descriptive statistics per numeric column, plus out-of-bound counts
// for caller-supplied expected ranges.
func CheckNumericRanges(t *table.Table, expected map[string]Bounds) *NumericRangeReport {
	r := &NumericRangeReport{
		Outliers:        make(map[string]OutlierSummary),
		RangeViolations: make(map[string]int),
		Statistics:      make(map[string]ColumnStats),
	}
	for _, c := range t.Columns() {
		if !c.IsNumericLike() {
			continue
		}
		present := c.Floats()
		if len(present) == 0 {
			continue
		}
		q, err := stats.Quartile(present)
		if err != nil {
			continue
		}
		iqr := q.Q3 - q.Q1
		lower := q.Q1 - iqrMultiplier*iqr
		upper := q.Q3 + iqrMultiplier*iqr

		outliers := 0
		for _, v := range present {
			if v < lower || v > upper {
				outliers++
			}
		}
		r.Outliers[c.Name()] = OutlierSummary{
			Count:      outliers,
			Ratio:      float64(outliers) / float64(t.NumRows()),
			LowerBound: lower,
			UpperBound: upper,
		}

		min, _ := stats.Min(present)
		max, _ := stats.Max(present)
		mean, _ := stats.Mean(present)
		median, _ := stats.Median(present)
		std := 0.0
		if len(present) > 1 {
			std, _ = stats.StandardDeviationSample(present)
		}
		r.Statistics[c.Name()] = ColumnStats{Min: min, Max: max, Mean: mean, Median: median, Std: std}

		if b, ok := expected[c.Name()]; ok {
			violations := 0
			for _, v := range present {
				if v < b.Min || v > b.Max {
					violations++
				}
			}
			r.RangeViolations[c.Name()] = violations
		}
	}
	return r
}

// CheckCategorical summarizes unique-value counts and top-5 frequencies
// per categorical column, warning (never failing) on cardinality outside
// [minCategories, maxCategories].
func CheckCategorical(t *table.Table, minCategories, maxCategories int) *CategoricalReport {
	r := &CategoricalReport{Distributions: make(map[string]CategoricalSummary)}
	for _, c := range t.Columns() {
		if c.Kind() != table.Categorical {
			continue
		}
		counts := make(map[string]int)
		nulls := 0
		for i := 0; i < c.Len(); i++ {
			if c.IsNA(i) {
				nulls++
				continue
			}
			counts[c.String(i)]++
		}
		r.Distributions[c.Name()] = CategoricalSummary{
			UniqueValues: len(counts),
			TopValues:    topN(counts, 5),
			NullCount:    nulls,
		}
		if len(counts) < minCategories {
			msg := fmt.Sprintf("%s has only %d unique values", c.Name(), len(counts))
			r.Warnings = append(r.Warnings, msg)
			zap.L().Warn("validate: " + msg)
		}
		if len(counts) > maxCategories {
			msg := fmt.Sprintf("%s has %d unique values (high cardinality)", c.Name(), len(counts))
			r.Warnings = append(r.Warnings, msg)
			zap.L().Warn("validate: " + msg)
		}
	}
	return r
}

// topN returns the n most frequent values, ties broken by value for
// determinism.
func topN(counts map[string]int, n int) map[string]int {
	type kv struct {
		k string
		v int
	}
	all := make([]kv, 0, len(counts))
	for k, v := range counts {
		all = append(all, kv{k, v})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].v != all[j].v {
			return all[i].v > all[j].v
		}
		return all[i].k < all[j].k
	})
	if len(all) > n {
		all = all[:n]
	}
	out := make(map[string]int, len(all))
	for _, e := range all {
		out[e.k] = e.v
	}
	return out
}

// CheckDates summarizes each named date column: post-parse null count,
// min/max, and span in days. Absent columns are skipped.
func CheckDates(t *table.Table, names []string) map[string]DateSummary {
	out := make(map[string]DateSummary)
	for _, name := range names {
		c, ok := t.Col(name)
		if !ok || c.Kind() != table.Date {
			continue
		}
		s := DateSummary{NullCount: c.CountNA()}
		var min, max time.Time
		first := true
		for i := 0; i < c.Len(); i++ {
			if c.IsNA(i) {
				continue
			}
			ts := c.Time(i)
			if first {
				min, max = ts, ts
				first = false
				continue
			}
			if ts.Before(min) {
				min = ts
			}
			if ts.After(max) {
				max = ts
			}
		}
		if !first {
			s.MinDate = min.Format("2006-01-02 15:04:05")
			s.MaxDate = max.Format("2006-01-02 15:04:05")
			s.SpanDays = int(max.Sub(min).Hours() / 24)
		}
		out[name] = s
	}
	return out
}

// GenerateFullReport runs every check and assembles one report. The
// report is local to the call, so concurrent callers validating
// different tables never share state. The only error path is a
// duplicate-check subset matching no column (a caller contract
// violation); threshold breaches stay warnings inside the report.
func GenerateFullReport(t *table.Table, opts Options) (*Report, error) {
	zap.L().Info("validate: full report", zap.Int("rows", t.NumRows()), zap.Int("cols", t.NumCols()))

	if opts.MissingThreshold == 0 {
		opts.MissingThreshold = DefaultMissingThreshold
	}
	if opts.MinCategories == 0 {
		opts.MinCategories = 2
	}
	if opts.MaxCategories == 0 {
		opts.MaxCategories = 100
	}

	dups, err := CheckDuplicates(t, opts.DuplicateSubset)
	if err != nil {
		return nil, err
	}

	r := &Report{
		DatasetInfo:   DatasetInfo{Rows: t.NumRows(), Columns: t.NumCols()},
		MissingValues: CheckMissing(t, opts.MissingThreshold),
		Duplicates:    dups,
		DataTypes:     CheckTypes(t),
		NumericRanges: CheckNumericRanges(t, opts.ExpectedRanges),
		Categorical:   CheckCategorical(t, opts.MinCategories, opts.MaxCategories),
	}
	if len(opts.DateColumns) > 0 {
		r.DateConsistency = CheckDates(t, opts.DateColumns)
	}
	return r, nil
}
