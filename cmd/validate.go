package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wardview/edsignal/internal/tabio"
	"github.com/wardview/edsignal/internal/validate"
)

var validateOutPath string

var validateCmd = &cobra.Command{
	Use:   "validate <table.csv>",
	Short: "Generate a data-quality report for a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := loadTable(args[0])
		if err != nil {
			return err
		}

		report, err := validate.GenerateFullReport(t, validate.Options{
			MissingThreshold: cfg.Validate.MissingThreshold,
			DateColumns:      cfg.Validate.DateColumns,
			MinCategories:    cfg.Validate.MinCategories,
			MaxCategories:    cfg.Validate.MaxCategories,
		})
		if err != nil {
			return err
		}

		if validateOutPath != "" {
			return tabio.WriteReportJSON(report, validateOutPath)
		}
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateOutPath, "out", "", "write the report to a file instead of stdout")
	rootCmd.AddCommand(validateCmd)
}
