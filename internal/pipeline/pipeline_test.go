package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardview/edsignal/internal/clean"
	"github.com/wardview/edsignal/internal/config"
	"github.com/wardview/edsignal/internal/runlog"
	"github.com/wardview/edsignal/internal/table"
)

func fixturePrimary(t *testing.T) *table.Table {
	t.Helper()
	days := []string{"2023-06-05", "2023-06-06", "2023-06-07", "2023-06-08", "2023-06-09"}
	var ids, dates []string
	var ages, arrivals []float64
	for d, dayStr := range days {
		for i := 0; i < 4; i++ {
			ids = append(ids, fmt.Sprintf("v%d-%d", d, i))
			dates = append(dates, dayStr)
			ages = append(ages, float64(20+10*i))
			arrivals = append(arrivals, float64(800+100*i))
		}
	}
	tbl, err := table.New(
		table.NewCategorical("record_id", ids, nil),
		table.NewCategorical(clean.RawVisitDate, dates, nil),
		table.NewNumeric(clean.RawAge, ages, nil),
		table.NewNumeric(clean.RawArrivalTime, arrivals, nil),
	)
	require.NoError(t, err)
	return tbl
}

func fixtureForum(t *testing.T) *table.Table {
	t.Helper()
	tbl, err := table.New(
		table.NewCategorical(clean.ColDate,
			[]string{"2023-06-05", "2023-06-05", "2023-06-07"}, nil),
		table.NewCategorical("text",
			[]string{"waiting forever", "fever everywhere", "quiet tonight"}, nil),
		table.NewNumeric(clean.ColSentiment, []float64{-0.8, -0.4, 0.6}, nil),
	)
	require.NoError(t, err)
	return tbl
}

func TestRun_EndToEndWithoutLedger(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{}

	res, err := Run(ctx, cfg, nil, fixturePrimary(t), map[string]*table.Table{
		"forum": fixtureForum(t),
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Empty(t, res.RunID)

	out := res.Table
	require.Equal(t, 20, out.NumRows(), "row count survives the whole pipeline")

	// Cleaning, temporal, cyclical, and interaction outputs all landed.
	for _, name := range []string{
		clean.ColVisitDate, clean.ColAgeGroup, clean.ColTimeOfDay,
		clean.ColDayOfWeek, "quarter", "days_since_epoch",
		"day_of_week_sin", "hour_cos", "is_flu_season",
	} {
		assert.True(t, out.Has(name), name)
	}

	// Merge joined the forum aggregate and zero-filled uncovered days.
	posts, ok := out.Col("forum_posts")
	require.True(t, ok)
	assert.Equal(t, 0, posts.CountNA())
	vd, _ := out.Col(clean.ColVisitDate)
	for i := 0; i < out.NumRows(); i++ {
		switch vd.Time(i).Day() {
		case 5:
			assert.Equal(t, 2.0, posts.Float(i))
		case 7:
			assert.Equal(t, 1.0, posts.Float(i))
		default:
			assert.Equal(t, 0.0, posts.Float(i))
		}
	}

	require.NotNil(t, res.Report)
	assert.Equal(t, 20, res.Report.DatasetInfo.Rows)
}

func TestRun_RecordsLifecycleInLedger(t *testing.T) {
	ctx := context.Background()
	ledger, err := runlog.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer ledger.Close()
	require.NoError(t, ledger.Migrate(ctx))

	res, err := Run(ctx, &config.Config{}, ledger, fixturePrimary(t), nil)
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)

	runs, err := ledger.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].ID)
	assert.Equal(t, runlog.StatusComplete, runs[0].Status)
	assert.Equal(t, int64(res.Table.NumRows()), runs[0].Rows)

	report, err := ledger.LatestReport(ctx)
	require.NoError(t, err)
	assert.NotNil(t, report)
}

func TestRun_FailureIsRecorded(t *testing.T) {
	ctx := context.Background()
	ledger, err := runlog.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer ledger.Close()
	require.NoError(t, ledger.Migrate(ctx))

	cfg := &config.Config{}
	cfg.Features.ValueCols = []string{"no_such_column"}

	_, err = Run(ctx, cfg, ledger, fixturePrimary(t), nil)
	require.Error(t, err)

	runs, err := ledger.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runlog.StatusFailed, runs[0].Status)
	assert.NotEmpty(t, runs[0].Error)
}

func TestRun_SortsByDateBeforeSeriesFeatures(t *testing.T) {
	ctx := context.Background()

	// Dates arrive out of order; counts encode the date so the lag can
	// be checked against chronological order.
	tbl, err := table.New(
		table.NewCategorical("record_id", []string{"a", "b", "c"}, nil),
		table.NewCategorical(clean.RawVisitDate,
			[]string{"2023-06-03", "2023-06-01", "2023-06-02"}, nil),
		table.NewNumeric("visits", []float64{3, 1, 2}, nil),
	)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Features.ValueCols = []string{"visits"}
	cfg.Features.Lags = []int{1}
	cfg.Features.Windows = []int{2}

	res, err := Run(ctx, cfg, nil, tbl, nil)
	require.NoError(t, err)

	lag, ok := res.Table.Col("visits_lag1")
	require.True(t, ok)
	assert.True(t, lag.IsNA(0))
	assert.Equal(t, 1.0, lag.Float(1))
	assert.Equal(t, 2.0, lag.Float(2))
}

func TestRun_BadHolidayConfigFails(t *testing.T) {
	cfg := &config.Config{}
	cfg.Features.Holidays = []string{"sometime in june"}

	_, err := Run(context.Background(), cfg, nil, fixturePrimary(t), nil)
	assert.Error(t, err)
}
