package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardview/edsignal/internal/clean"
	"github.com/wardview/edsignal/internal/table"
)

func dateCol(name string, days ...time.Time) *table.Column {
	return table.NewDate(name, days, nil)
}

func TestTemporal_CalendarDecomposition(t *testing.T) {
	// Thanksgiving 2023, a Thursday.
	thanksgiving := time.Date(2023, 11, 23, 0, 0, 0, 0, time.UTC)
	tbl := mustTable(t, dateCol(clean.ColVisitDate,
		thanksgiving,
		time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 2, 28, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 6, 3, 0, 0, 0, 0, time.UTC),
	))

	out := Temporal(tbl, clean.ColVisitDate, []time.Time{thanksgiving}, time.Time{})

	get := func(name string, i int) float64 {
		c, ok := out.Col(name)
		require.True(t, ok, name)
		return c.Float(i)
	}

	assert.Equal(t, 2023.0, get(clean.ColYear, 0))
	assert.Equal(t, 11.0, get(clean.ColMonth, 0))
	assert.Equal(t, 23.0, get("day", 0))
	assert.Equal(t, 3.0, get(clean.ColDayOfWeek, 0), "Thursday with Monday=0")
	assert.Equal(t, 47.0, get("week_of_year", 0))
	assert.Equal(t, 4.0, get("quarter", 0))
	assert.Equal(t, 1422.0, get("days_since_epoch", 0), "days from 2020-01-01")
	assert.Equal(t, 1.0, get("is_holiday", 0))
	assert.Equal(t, 0.0, get(clean.ColIsWeekend, 0))

	// 2023-01-01 is a Sunday and a month start.
	assert.Equal(t, 6.0, get(clean.ColDayOfWeek, 1))
	assert.Equal(t, 1.0, get(clean.ColIsWeekend, 1))
	assert.Equal(t, 1.0, get("is_month_start", 1))
	assert.Equal(t, 0.0, get("is_holiday", 1))

	// February month end.
	assert.Equal(t, 1.0, get("is_month_end", 2))
	assert.Equal(t, 0.0, get("is_month_end", 3))

	// Monday/Friday flags on a Saturday.
	assert.Equal(t, 0.0, get("is_monday", 3))
	assert.Equal(t, 0.0, get("is_friday", 3))
}

func TestTemporal_MissingDatePropagates(t *testing.T) {
	tbl := mustTable(t, table.NewDate(clean.ColVisitDate,
		[]time.Time{time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), {}},
		[]bool{false, true}))

	out := Temporal(tbl, clean.ColVisitDate, nil, time.Time{})

	y, _ := out.Col(clean.ColYear)
	assert.False(t, y.IsNA(0))
	assert.True(t, y.IsNA(1))
	w, _ := out.Col(clean.ColIsWeekend)
	assert.True(t, w.IsNA(1))
}

func TestTemporal_AbsentDateColumnIsNoOp(t *testing.T) {
	tbl := mustTable(t, table.NewNumeric("v", []float64{1}, nil))
	out := Temporal(tbl, clean.ColVisitDate, nil, time.Time{})
	assert.Equal(t, []string{"v"}, out.Names())
}

func TestTemporal_CustomEpoch(t *testing.T) {
	day := time.Date(2023, 1, 11, 0, 0, 0, 0, time.UTC)
	tbl := mustTable(t, dateCol(clean.ColVisitDate, day))

	out := Temporal(tbl, clean.ColVisitDate, nil, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))

	c, _ := out.Col("days_since_epoch")
	assert.Equal(t, 10.0, c.Float(0))
}

func TestCyclical_SinCosPairs(t *testing.T) {
	tbl := mustTable(t,
		table.NewNumeric(clean.ColDayOfWeek, []float64{0, 3.5}, nil),
		table.NewNumeric(clean.ColMonth, []float64{6, 12}, nil),
		table.NewNumeric(clean.ColArrivalHour, []float64{6, 18}, nil),
	)

	out := Cyclical(tbl)

	sin, _ := out.Col("day_of_week_sin")
	cos, _ := out.Col("day_of_week_cos")
	assert.InDelta(t, 0.0, sin.Float(0), 1e-12)
	assert.InDelta(t, 1.0, cos.Float(0), 1e-12)
	// Half the period lands diametrically opposite.
	assert.InDelta(t, 0.0, sin.Float(1), 1e-12)
	assert.InDelta(t, -1.0, cos.Float(1), 1e-12)

	msin, _ := out.Col("month_sin")
	assert.InDelta(t, math.Sin(2*math.Pi*6/12), msin.Float(0), 1e-12)

	hsin, _ := out.Col("hour_sin")
	hcos, _ := out.Col("hour_cos")
	assert.InDelta(t, 1.0, hsin.Float(0), 1e-12, "hour 6 is a quarter turn")
	assert.InDelta(t, 0.0, hcos.Float(0), 1e-12)
	assert.InDelta(t, -1.0, hsin.Float(1), 1e-12)
}

func TestCyclical_SkipsAbsentSources(t *testing.T) {
	tbl := mustTable(t, table.NewNumeric(clean.ColMonth, []float64{3}, nil))

	out := Cyclical(tbl)

	assert.True(t, out.Has("month_sin"))
	assert.False(t, out.Has("day_of_week_sin"))
	assert.False(t, out.Has("hour_sin"))
}

func TestInteractions_FlagsAndProducts(t *testing.T) {
	tbl := mustTable(t,
		table.NewFlag(clean.ColIsWeekend, []bool{true, true, false, false}, nil),
		table.NewNumeric(clean.ColArrivalHour, []float64{20, 10, 20, 2}, nil),
		table.NewCategorical(clean.ColAgeGroup, []string{"65+", "65+", "18-44", "65+"}, nil),
		table.NewFlag(clean.ColHasInsurance, []bool{false, true, false, false}, nil),
		table.NewFlag(clean.ColHighAcuity, []bool{true, false, true, false}, nil),
		table.NewNumeric(clean.ColMonth, []float64{12, 4, 1, 7}, nil),
	)

	out := Interactions(tbl)

	we, _ := out.Col("weekend_evening")
	assert.Equal(t, []float64{1, 0, 0, 0}, flagFloats(we))

	su, _ := out.Col("senior_uninsured")
	assert.Equal(t, []float64{1, 0, 0, 1}, flagFloats(su))

	wa, _ := out.Col("weekend_high_acuity")
	assert.Equal(t, []float64{1, 0, 0, 0}, flagFloats(wa))

	flu, _ := out.Col("is_flu_season")
	assert.Equal(t, []float64{1, 0, 1, 0}, flagFloats(flu))
}

func TestInteractions_MissingNumericInputPropagates(t *testing.T) {
	tbl := mustTable(t,
		table.NewFlag(clean.ColIsWeekend, []bool{true, true}, []bool{false, true}),
		table.NewFlag(clean.ColHighAcuity, []bool{true, true}, nil),
	)

	out := Interactions(tbl)

	wa, _ := out.Col("weekend_high_acuity")
	assert.Equal(t, 1.0, wa.Float(0))
	assert.True(t, wa.IsNA(1))
}

func TestInteractions_SkipsWhenInputsAbsent(t *testing.T) {
	tbl := mustTable(t, table.NewNumeric("v", []float64{1}, nil))
	out := Interactions(tbl)
	assert.Equal(t, []string{"v"}, out.Names())
}

func TestAggregated_GroupStatisticsJoinedBack(t *testing.T) {
	tbl := mustTable(t,
		table.NewCategorical("site", []string{"east", "east", "west", "east", "solo"}, nil),
		table.NewNumeric("wait", []float64{10, 20, 100, 30, 7}, nil),
	)

	out := Aggregated(tbl, []string{"site"}, "wait")

	mean, ok := out.Col("site_mean")
	require.True(t, ok)
	assert.Equal(t, 20.0, mean.Float(0))
	assert.Equal(t, 20.0, mean.Float(3))
	assert.Equal(t, 100.0, mean.Float(2))

	count, _ := out.Col("site_count")
	assert.Equal(t, 3.0, count.Float(0))
	assert.Equal(t, 1.0, count.Float(2))

	min, _ := out.Col("site_min")
	max, _ := out.Col("site_max")
	assert.Equal(t, 10.0, min.Float(0))
	assert.Equal(t, 30.0, max.Float(0))

	std, _ := out.Col("site_std")
	assert.InDelta(t, 10.0, std.Float(0), 1e-9)
	assert.True(t, std.IsNA(4), "single-member group has no sample std")
}

func TestAggregated_MissingGroupKeyYieldsMissingStats(t *testing.T) {
	tbl := mustTable(t,
		table.NewCategorical("site", []string{"east", ""}, []bool{false, true}),
		table.NewNumeric("wait", []float64{10, 20}, nil),
	)

	out := Aggregated(tbl, []string{"site"}, "wait")

	mean, _ := out.Col("site_mean")
	assert.Equal(t, 10.0, mean.Float(0))
	assert.True(t, mean.IsNA(1))
}

func TestAggregated_AbsentTargetIsNoOp(t *testing.T) {
	tbl := mustTable(t, table.NewCategorical("site", []string{"east"}, nil))
	out := Aggregated(tbl, []string{"site"}, "wait")
	assert.Equal(t, []string{"site"}, out.Names())
}

func TestCreateAllFeatures_ComposesInOrder(t *testing.T) {
	tbl := mustTable(t,
		dateCol(clean.ColVisitDate,
			time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2023, 6, 2, 0, 0, 0, 0, time.UTC),
			time.Date(2023, 6, 3, 0, 0, 0, 0, time.UTC),
		),
		table.NewNumeric("visits", []float64{5, 6, 7}, nil),
	)

	out, err := CreateAllFeatures(tbl, Options{
		ValueCols: []string{"visits"},
		Lags:      []int{1},
		Windows:   []int{2},
	})
	require.NoError(t, err)

	// Temporal output feeds cyclical and interactions.
	assert.True(t, out.Has(clean.ColDayOfWeek))
	assert.True(t, out.Has("day_of_week_sin"))
	assert.True(t, out.Has("is_flu_season"))
	assert.True(t, out.Has("visits_lag1"))
	assert.True(t, out.Has("visits_rolling_mean_2d"))
}

func TestCreateAllFeatures_NoValueColsSkipsSeries(t *testing.T) {
	tbl := mustTable(t,
		dateCol(clean.ColVisitDate, time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)),
	)

	out, err := CreateAllFeatures(tbl, Options{})
	require.NoError(t, err)

	for _, name := range out.Names() {
		assert.NotContains(t, name, "_lag")
		assert.NotContains(t, name, "_rolling_")
	}
}

func flagFloats(c *table.Column) []float64 {
	out := make([]float64, c.Len())
	for i := range out {
		out[i] = c.Float(i)
	}
	return out
}
