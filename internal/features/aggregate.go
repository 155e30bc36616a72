package features

import (
	"strconv"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"

	"github.com/wardview/edsignal/internal/table"
)

// groupStats holds per-group summary statistics of the target column.
type groupStats struct {
	mean, std, min, max float64
	count               int
	stdNA               bool
}

// Aggregated computes per-group mean/std/count/min/max of the target
// column for each grouping column and joins the statistics back onto
// every row of the group. Result columns are prefixed by the grouping
// column name so multiple groupings never collide. Absent grouping
// columns are skipped; an absent target column skips the whole
// transform.
func Aggregated(t *table.Table, groupCols []string, targetCol string) *table.Table {
	target, ok := t.Col(targetCol)
	if !ok || !target.IsNumericLike() {
		zap.L().Warn("features: aggregate target not found, skipping", zap.String("column", targetCol))
		return t
	}

	for _, groupCol := range groupCols {
		group, ok := t.Col(groupCol)
		if !ok {
			continue
		}

		byKey := make(map[string][]float64)
		keys := make([]string, t.NumRows())
		keyNA := make([]bool, t.NumRows())
		for i := 0; i < t.NumRows(); i++ {
			if group.IsNA(i) {
				keyNA[i] = true
				continue
			}
			keys[i] = groupKey(group, i)
			if !target.IsNA(i) {
				byKey[keys[i]] = append(byKey[keys[i]], target.Float(i))
			}
		}

		summary := make(map[string]groupStats, len(byKey))
		for key, vals := range byKey {
			s := groupStats{count: len(vals)}
			s.mean, _ = stats.Mean(vals)
			s.min, _ = stats.Min(vals)
			s.max, _ = stats.Max(vals)
			if len(vals) > 1 {
				s.std, _ = stats.StandardDeviationSample(vals)
			} else {
				s.stdNA = true
			}
			summary[key] = s
		}

		n := t.NumRows()
		mean := make([]float64, n)
		std := make([]float64, n)
		count := make([]float64, n)
		min := make([]float64, n)
		max := make([]float64, n)
		na := make([]bool, n)
		stdNA := make([]bool, n)
		for i := 0; i < n; i++ {
			if keyNA[i] {
				na[i], stdNA[i] = true, true
				continue
			}
			s, ok := summary[keys[i]]
			if !ok {
				na[i], stdNA[i] = true, true
				continue
			}
			mean[i], std[i], min[i], max[i] = s.mean, s.std, s.min, s.max
			count[i] = float64(s.count)
			stdNA[i] = s.stdNA
		}

		naCopy := func() []bool { return append([]bool(nil), na...) }
		t = t.MustWithColumn(table.NewNumeric(groupCol+"_mean", mean, naCopy()))
		t = t.MustWithColumn(table.NewNumeric(groupCol+"_std", std, stdNA))
		t = t.MustWithColumn(table.NewNumeric(groupCol+"_count", count, naCopy()))
		t = t.MustWithColumn(table.NewNumeric(groupCol+"_min", min, naCopy()))
		t = t.MustWithColumn(table.NewNumeric(groupCol+"_max", max, naCopy()))
		zap.L().Info("features: aggregated complete",
			zap.String("group", groupCol), zap.String("target", targetCol), zap.Int("groups", len(summary)))
	}
	return t
}

// groupKey renders a group cell as a stable map key.
func groupKey(c *table.Column, i int) string {
	switch c.Kind() {
	case table.Categorical:
		return c.String(i)
	case table.Date:
		return strconv.FormatInt(c.Time(i).Unix(), 10)
	default:
		return strconv.FormatFloat(c.Float(i), 'g', -1, 64)
	}
}
