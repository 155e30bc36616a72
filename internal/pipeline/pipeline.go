// Package pipeline composes the core stages (clean, validate, features,
// merge) into one synchronous batch transform, recording stage
// accounting in the run ledger when one is attached.
package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/wardview/edsignal/internal/clean"
	"github.com/wardview/edsignal/internal/config"
	"github.com/wardview/edsignal/internal/features"
	"github.com/wardview/edsignal/internal/merge"
	"github.com/wardview/edsignal/internal/runlog"
	"github.com/wardview/edsignal/internal/table"
	"github.com/wardview/edsignal/internal/validate"
)

// Result carries the pipeline outputs: the merged feature table and the
// validation report over the cleaned primary table.
type Result struct {
	RunID  string
	Table  *table.Table
	Report *validate.Report
}

// Run executes the full pipeline over already-loaded tables. The ledger
// may be nil; validation never gates the run.
func Run(ctx context.Context, cfg *config.Config, ledger *runlog.Ledger,
	primary *table.Table, aux map[string]*table.Table) (*Result, error) {

	log := zap.L()

	runID := ""
	if ledger != nil {
		id, err := ledger.StartRun(ctx)
		if err != nil {
			return nil, err
		}
		runID = id
	}

	res, err := run(ctx, cfg, ledger, runID, primary, aux)
	if ledger != nil && runID != "" {
		if err != nil {
			if ferr := ledger.FailRun(ctx, runID, err); ferr != nil {
				log.Warn("pipeline: failed to record run failure", zap.Error(ferr))
			}
		} else {
			if cerr := ledger.CompleteRun(ctx, runID, res.Table.NumRows(), res.Table.NumCols()); cerr != nil {
				log.Warn("pipeline: failed to record run completion", zap.Error(cerr))
			}
		}
	}
	return res, err
}

func run(ctx context.Context, cfg *config.Config, ledger *runlog.Ledger, runID string,
	primary *table.Table, aux map[string]*table.Table) (*Result, error) {

	record := func(name string, rowsIn int, t *table.Table) {
		if ledger == nil || runID == "" {
			return
		}
		stage := runlog.Stage{
			RunID: runID, Name: name,
			RowsIn: int64(rowsIn), RowsOut: int64(t.NumRows()), ColsOut: int64(t.NumCols()),
		}
		if err := ledger.RecordStage(ctx, stage); err != nil {
			zap.L().Warn("pipeline: failed to record stage", zap.String("stage", name), zap.Error(err))
		}
	}

	rowsIn := primary.NumRows()
	cleaned := clean.Primary(primary)
	record("clean_primary", rowsIn, cleaned)

	cleanedAux := make(map[string]*table.Table, len(aux))
	for name, t := range aux {
		if t == nil {
			continue
		}
		in := t.NumRows()
		ct := clean.Auxiliary(t, name)
		cleanedAux[name] = ct
		record("clean_"+name, in, ct)
	}

	report, err := validate.GenerateFullReport(cleaned, validate.Options{
		MissingThreshold: cfg.Validate.MissingThreshold,
		DateColumns:      cfg.Validate.DateColumns,
		MinCategories:    cfg.Validate.MinCategories,
		MaxCategories:    cfg.Validate.MaxCategories,
	})
	if err != nil {
		return nil, err
	}
	if ledger != nil && runID != "" {
		if err := ledger.SaveReport(ctx, runID, report); err != nil {
			zap.L().Warn("pipeline: failed to save report", zap.Error(err))
		}
	}

	holidays, err := cfg.Features.ParsedHolidays()
	if err != nil {
		return nil, err
	}
	epoch := features.DefaultEpoch
	if cfg.Features.Epoch != "" {
		epoch, err = cfg.Features.ParsedEpoch()
		if err != nil {
			return nil, err
		}
	}
	dateCol := cfg.Features.DateColumn
	if dateCol == "" {
		dateCol = clean.ColVisitDate
	}

	sorted := cleaned
	if sorted.Has(dateCol) {
		// Lag and rolling features are only meaningful over a
		// date-sorted series.
		sorted, err = sorted.SortByDate(dateCol)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: sort by date")
		}
	}

	featured, err := features.CreateAllFeatures(sorted, features.Options{
		DateCol:   dateCol,
		ValueCols: cfg.Features.ValueCols,
		Lags:      cfg.Features.Lags,
		Windows:   cfg.Features.Windows,
		Holidays:  holidays,
		Epoch:     epoch,
	})
	if err != nil {
		return nil, err
	}
	if len(cfg.Features.GroupCols) > 0 && cfg.Features.AggregateTarget != "" {
		featured = features.Aggregated(featured, cfg.Features.GroupCols, cfg.Features.AggregateTarget)
	}
	record("features", sorted.NumRows(), featured)

	merged, err := merge.Merge(featured, cleanedAux)
	if err != nil {
		return nil, err
	}
	record("merge", featured.NumRows(), merged)

	return &Result{RunID: runID, Table: merged, Report: report}, nil
}
