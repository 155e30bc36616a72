package runlog

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	require.NoError(t, l.Migrate(context.Background()))
	return l
}

func TestLedger_RunLifecycle(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t)

	id, err := l.StartRun(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.NoError(t, l.RecordStage(ctx, Stage{
		RunID: id, Name: "clean_primary", RowsIn: 120, RowsOut: 100, ColsOut: 14,
	}))
	require.NoError(t, l.CompleteRun(ctx, id, 100, 42))

	runs, err := l.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
	assert.Equal(t, StatusComplete, runs[0].Status)
	assert.Equal(t, int64(100), runs[0].Rows)
	assert.Equal(t, int64(42), runs[0].Columns)
	require.NotNil(t, runs[0].CompletedAt)
	assert.Empty(t, runs[0].Error)
}

func TestLedger_FailedRunKeepsError(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t)

	id, err := l.StartRun(ctx)
	require.NoError(t, err)
	require.NoError(t, l.FailRun(ctx, id, errors.New("primary file unreadable")))

	runs, err := l.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, StatusFailed, runs[0].Status)
	assert.Equal(t, "primary file unreadable", runs[0].Error)
}

func TestLedger_ReportUpsertAndLatest(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t)

	latest, err := l.LatestReport(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest, "empty ledger has no report")

	id, err := l.StartRun(ctx)
	require.NoError(t, err)

	require.NoError(t, l.SaveReport(ctx, id, map[string]int{"n_rows": 10}))
	require.NoError(t, l.SaveReport(ctx, id, map[string]int{"n_rows": 20}))

	latest, err = l.LatestReport(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)

	var got map[string]int
	require.NoError(t, json.Unmarshal(latest, &got))
	assert.Equal(t, 20, got["n_rows"], "same-run report overwrites")
}

func TestLedger_ListRunsHonorsLimit(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t)

	for i := 0; i < 3; i++ {
		_, err := l.StartRun(ctx)
		require.NoError(t, err)
	}

	runs, err := l.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}
