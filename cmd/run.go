package main

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wardview/edsignal/internal/pipeline"
	"github.com/wardview/edsignal/internal/runlog"
	"github.com/wardview/edsignal/internal/tabio"
	"github.com/wardview/edsignal/internal/table"
)

var (
	runPrimaryPath string
	runOutputPath  string
	runReportPath  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline and write the merged dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		primaryPath := runPrimaryPath
		if primaryPath == "" {
			primaryPath = cfg.Inputs.Primary
		}
		if primaryPath == "" {
			return eris.New("run: no primary input configured (set inputs.primary or --primary)")
		}

		primary, err := loadTable(primaryPath)
		if err != nil {
			return err
		}

		aux := make(map[string]*table.Table, len(cfg.Inputs.Sources))
		for name, path := range cfg.Inputs.Sources {
			t, err := loadTable(path)
			if err != nil {
				zap.L().Warn("run: skipping unreadable source",
					zap.String("source", name), zap.Error(err))
				continue
			}
			aux[name] = t
		}

		ledger, err := runlog.Open(cfg.Ledger.Path)
		if err != nil {
			return err
		}
		defer ledger.Close()
		if err := ledger.Migrate(ctx); err != nil {
			return err
		}

		res, err := pipeline.Run(ctx, cfg, ledger, primary, aux)
		if err != nil {
			return err
		}

		outPath := runOutputPath
		if outPath == "" {
			outPath = cfg.Output.DatasetPath
		}
		if err := tabio.WriteCSV(res.Table, outPath); err != nil {
			return err
		}

		reportPath := runReportPath
		if reportPath == "" {
			reportPath = cfg.Output.ReportPath
		}
		if err := tabio.WriteReportJSON(res.Report, reportPath); err != nil {
			return err
		}

		zap.L().Info("run: complete",
			zap.String("run_id", res.RunID),
			zap.Int("rows", res.Table.NumRows()),
			zap.Int("cols", res.Table.NumCols()),
			zap.String("dataset", outPath),
			zap.String("report", reportPath))
		return nil
	},
}

// loadTable reads a table by extension: .xlsx via the spreadsheet
// reader, everything else as CSV.
func loadTable(path string) (*table.Table, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return tabio.ReadXLSX(path, tabio.XLSXOptions{})
	}
	return tabio.ReadCSV(path)
}

func init() {
	runCmd.Flags().StringVar(&runPrimaryPath, "primary", "", "primary visit-record table (csv or xlsx)")
	runCmd.Flags().StringVar(&runOutputPath, "out", "", "merged dataset output path")
	runCmd.Flags().StringVar(&runReportPath, "report", "", "validation report output path")
	rootCmd.AddCommand(runCmd)
}
