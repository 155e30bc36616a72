package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardview/edsignal/internal/table"
)

func mustTable(t *testing.T, cols ...*table.Column) *table.Table {
	t.Helper()
	tbl, err := table.New(cols...)
	require.NoError(t, err)
	return tbl
}

func TestLagged_ShiftsValuesDown(t *testing.T) {
	tbl := mustTable(t, table.NewNumeric("visits", []float64{10, 20, 30, 40}, nil))

	out, err := Lagged(tbl, []string{"visits"}, []int{1, 3})
	require.NoError(t, err)

	lag1, ok := out.Col("visits_lag1")
	require.True(t, ok)
	assert.True(t, lag1.IsNA(0))
	assert.Equal(t, 10.0, lag1.Float(1))
	assert.Equal(t, 20.0, lag1.Float(2))
	assert.Equal(t, 30.0, lag1.Float(3))

	lag3, ok := out.Col("visits_lag3")
	require.True(t, ok)
	assert.True(t, lag3.IsNA(2))
	assert.Equal(t, 10.0, lag3.Float(3))
}

func TestLagged_PropagatesSourceMissing(t *testing.T) {
	tbl := mustTable(t,
		table.NewNumeric("visits", []float64{10, 0, 30}, []bool{false, true, false}),
	)

	out, err := Lagged(tbl, []string{"visits"}, []int{1})
	require.NoError(t, err)

	lag1, _ := out.Col("visits_lag1")
	assert.True(t, lag1.IsNA(0))
	assert.Equal(t, 10.0, lag1.Float(1))
	assert.True(t, lag1.IsNA(2), "lag of a missing cell stays missing")
}

func TestLagged_SkipsAbsentColumnsButErrorsOnNoMatch(t *testing.T) {
	tbl := mustTable(t, table.NewNumeric("visits", []float64{1, 2}, nil))

	out, err := Lagged(tbl, []string{"visits", "no_such"}, []int{1})
	require.NoError(t, err)
	assert.True(t, out.Has("visits_lag1"))
	assert.False(t, out.Has("no_such_lag1"))

	_, err = Lagged(tbl, []string{"no_such"}, []int{1})
	assert.Error(t, err)
}

func TestLagged_ColumnOrderDeterministic(t *testing.T) {
	tbl := mustTable(t,
		table.NewNumeric("a", []float64{1, 2}, nil),
		table.NewNumeric("b", []float64{3, 4}, nil),
	)

	out, err := Lagged(tbl, []string{"a", "b"}, []int{1, 2})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "a_lag1", "a_lag2", "b_lag1", "b_lag2"}, out.Names())
}

func TestRolling_TrailingWindowStats(t *testing.T) {
	tbl := mustTable(t, table.NewNumeric("visits", []float64{1, 2, 3, 4, 5}, nil))

	out, err := Rolling(tbl, []string{"visits"}, []int{3})
	require.NoError(t, err)

	mean, ok := out.Col("visits_rolling_mean_3d")
	require.True(t, ok)
	assert.True(t, mean.IsNA(0))
	assert.True(t, mean.IsNA(1))
	assert.Equal(t, 2.0, mean.Float(2))
	assert.Equal(t, 3.0, mean.Float(3))
	assert.Equal(t, 4.0, mean.Float(4))

	max, _ := out.Col("visits_rolling_max_3d")
	assert.Equal(t, 3.0, max.Float(2))
	assert.Equal(t, 5.0, max.Float(4))
	min, _ := out.Col("visits_rolling_min_3d")
	assert.Equal(t, 1.0, min.Float(2))
	assert.Equal(t, 3.0, min.Float(4))

	std, _ := out.Col("visits_rolling_std_3d")
	// Sample std of any three consecutive integers.
	assert.InDelta(t, 1.0, std.Float(2), 1e-9)
}

func TestRolling_WindowWithMissingCellIsMissing(t *testing.T) {
	tbl := mustTable(t,
		table.NewNumeric("visits", []float64{1, 0, 3, 4, 5}, []bool{false, true, false, false, false}),
	)

	out, err := Rolling(tbl, []string{"visits"}, []int{3})
	require.NoError(t, err)

	mean, _ := out.Col("visits_rolling_mean_3d")
	assert.True(t, mean.IsNA(2), "window covers the missing row 1")
	assert.True(t, mean.IsNA(3))
	assert.Equal(t, 4.0, mean.Float(4))
}

func TestLagged_EmptyTableExtendsSchema(t *testing.T) {
	tbl := mustTable(t, table.NewNumeric("visits", nil, nil))

	out, err := Lagged(tbl, []string{"visits"}, []int{1})
	require.NoError(t, err)
	assert.Equal(t, 0, out.NumRows())
	assert.True(t, out.Has("visits_lag1"))
}

func TestRolling_ErrorsWhenNoColumnMatches(t *testing.T) {
	tbl := mustTable(t, table.NewCategorical("text", []string{"a"}, nil))
	_, err := Rolling(tbl, []string{"visits"}, []int{3})
	assert.Error(t, err)
}
