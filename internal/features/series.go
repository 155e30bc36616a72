package features

import (
	"fmt"
	"sort"

	"github.com/montanaflynn/stats"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wardview/edsignal/internal/table"
)

// Lagged adds, for each value column and lag k, a column holding the
// value from k rows earlier. The first k rows are missing; insufficient
// history is never zero-filled here. Returns an error only when the
// value-column list matches nothing in the table (a caller contract
// violation); individually absent columns are skipped.
func Lagged(t *table.Table, valueCols []string, lags []int) (*table.Table, error) {
	present, err := presentValueCols(t, valueCols, "lagged")
	if err != nil {
		return nil, err
	}
	if len(lags) == 0 {
		lags = DefaultLags
	}

	// Columns are mutually independent; compute them in parallel and
	// append in deterministic order afterwards.
	results := make([][]*table.Column, len(present))
	var g errgroup.Group
	for i, name := range present {
		i := i
		c, _ := t.Col(name)
		g.Go(func() error {
			for _, k := range lags {
				results[i] = append(results[i], lagColumn(c, k))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, cols := range results {
		for _, c := range cols {
			t = t.MustWithColumn(c)
		}
	}
	zap.L().Info("features: lagged complete", zap.Strings("columns", present), zap.Ints("lags", lags))
	return t, nil
}

func lagColumn(c *table.Column, k int) *table.Column {
	n := c.Len()
	vals := make([]float64, n)
	na := make([]bool, n)
	for i := 0; i < n; i++ {
		if i < k || c.IsNA(i-k) {
			na[i] = true
			continue
		}
		vals[i] = c.Float(i - k)
	}
	return table.NewNumeric(fmt.Sprintf("%s_lag%d", c.Name(), k), vals, na)
}

// Rolling adds trailing-window mean, std, max, and min columns for each
// value column and window size, inclusive of the current row. The first
// w-1 rows are missing, as is any window containing a missing cell.
func Rolling(t *table.Table, valueCols []string, windows []int) (*table.Table, error) {
	present, err := presentValueCols(t, valueCols, "rolling")
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		windows = DefaultWindows
	}

	results := make([][]*table.Column, len(present))
	var g errgroup.Group
	for i, name := range present {
		i := i
		c, _ := t.Col(name)
		g.Go(func() error {
			for _, w := range windows {
				results[i] = append(results[i], rollingColumns(c, w)...)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, cols := range results {
		for _, c := range cols {
			t = t.MustWithColumn(c)
		}
	}
	zap.L().Info("features: rolling complete", zap.Strings("columns", present), zap.Ints("windows", windows))
	return t, nil
}

func rollingColumns(c *table.Column, w int) []*table.Column {
	n := c.Len()
	mean := make([]float64, n)
	std := make([]float64, n)
	max := make([]float64, n)
	min := make([]float64, n)
	na := make([]bool, n)

	window := make([]float64, 0, w)
	for i := 0; i < n; i++ {
		if i < w-1 {
			na[i] = true
			continue
		}
		window = window[:0]
		complete := true
		for j := i - w + 1; j <= i; j++ {
			if c.IsNA(j) {
				complete = false
				break
			}
			window = append(window, c.Float(j))
		}
		if !complete {
			na[i] = true
			continue
		}
		mean[i] = sum(window) / float64(w)
		if w > 1 {
			std[i], _ = stats.StandardDeviationSample(window)
		}
		max[i], min[i] = window[0], window[0]
		for _, v := range window[1:] {
			if v > max[i] {
				max[i] = v
			}
			if v < min[i] {
				min[i] = v
			}
		}
	}

	naCopy := func() []bool { return append([]bool(nil), na...) }
	name := c.Name()
	return []*table.Column{
		table.NewNumeric(fmt.Sprintf("%s_rolling_mean_%dd", name, w), mean, naCopy()),
		table.NewNumeric(fmt.Sprintf("%s_rolling_std_%dd", name, w), std, naCopy()),
		table.NewNumeric(fmt.Sprintf("%s_rolling_max_%dd", name, w), max, naCopy()),
		table.NewNumeric(fmt.Sprintf("%s_rolling_min_%dd", name, w), min, naCopy()),
	}
}

func sum(vals []float64) float64 {
	s := 0.0
	for _, v := range vals {
		s += v
	}
	return s
}

// presentValueCols filters the requested value columns to those present
// and numeric. An entirely unmatched request is a caller contract
// violation and surfaces as an error rather than a silent no-op.
func presentValueCols(t *table.Table, valueCols []string, op string) ([]string, error) {
	if len(valueCols) == 0 {
		return nil, nil
	}
	var present []string
	for _, name := range valueCols {
		if c, ok := t.Col(name); ok && c.IsNumericLike() {
			present = append(present, name)
		}
	}
	if len(present) == 0 {
		sorted := append([]string(nil), valueCols...)
		sort.Strings(sorted)
		return nil, eris.Errorf("features: %s value columns %v match no column in table", op, sorted)
	}
	return present, nil
}
