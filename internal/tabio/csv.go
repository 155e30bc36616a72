// Package tabio loads raw tables from delimited text and spreadsheet
// files and writes pipeline outputs. Cell-level coercion failures become
// missing values, never errors; only structural problems (unreadable
// file, missing header) surface to the caller.
package tabio

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/wardview/edsignal/internal/table"
)

// ReadCSV loads a header-rowed CSV file and infers column kinds: a
// column whose present cells all parse as numbers is numeric, else all
// as dates is a date column, else categorical. Blank cells are missing.
func ReadCSV(path string) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "tabio: open csv")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "tabio: read csv")
	}
	return fromRecords(records)
}

// fromRecords builds a typed table from a header row plus raw string
// rows. Shared by the CSV and XLSX readers.
func fromRecords(records [][]string) (*table.Table, error) {
	if len(records) == 0 {
		return nil, eris.New("tabio: missing header row")
	}
	header := records[0]
	rows := records[1:]

	cols := make([]*table.Column, 0, len(header))
	for j, name := range header {
		raw := make([]string, len(rows))
		for i, row := range rows {
			if j < len(row) {
				raw[i] = row[j]
			}
		}
		cols = append(cols, inferColumn(name, raw))
	}
	return table.New(cols...)
}

// inferColumn picks the narrowest kind every present cell coerces into.
func inferColumn(name string, raw []string) *table.Column {
	numeric, date := true, true
	present := 0
	for _, s := range raw {
		if s == "" {
			continue
		}
		present++
		if _, ok := table.ParseFloat(s); !ok {
			numeric = false
		}
		if _, ok := table.ParseTime(s); !ok {
			date = false
		}
	}
	na := make([]bool, len(raw))

	switch {
	case present > 0 && numeric:
		vals := make([]float64, len(raw))
		for i, s := range raw {
			v, ok := table.ParseFloat(s)
			if !ok {
				na[i] = true
				continue
			}
			vals[i] = v
		}
		return table.NewNumeric(name, vals, na)
	case present > 0 && date:
		vals := make([]time.Time, len(raw))
		for i, s := range raw {
			v, ok := table.ParseTime(s)
			if !ok {
				na[i] = true
				continue
			}
			vals[i] = v
		}
		return table.NewDate(name, vals, na)
	default:
		vals := make([]string, len(raw))
		for i, s := range raw {
			if s == "" {
				na[i] = true
				continue
			}
			vals[i] = s
		}
		return table.NewCategorical(name, vals, na)
	}
}

// WriteCSV writes the table with a header row. Missing cells are empty;
// dates use "2006-01-02 15:04:05".
func WriteCSV(t *table.Table, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "tabio: create csv")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(t.Names()); err != nil {
		return eris.Wrap(err, "tabio: write header")
	}
	cols := t.Columns()
	row := make([]string, len(cols))
	for i := 0; i < t.NumRows(); i++ {
		for j, c := range cols {
			row[j] = formatCell(c, i)
		}
		if err := w.Write(row); err != nil {
			return eris.Wrap(err, "tabio: write row")
		}
	}
	w.Flush()
	return eris.Wrap(w.Error(), "tabio: flush csv")
}

func formatCell(c *table.Column, i int) string {
	if c.IsNA(i) {
		return ""
	}
	switch c.Kind() {
	case table.Categorical:
		return c.String(i)
	case table.Date:
		return c.Time(i).Format("2006-01-02 15:04:05")
	default:
		return strconv.FormatFloat(c.Float(i), 'g', -1, 64)
	}
}
