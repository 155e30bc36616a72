package tabio

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
)

// WriteReportJSON serializes a validation report (or any nested
// key-value structure) as indented JSON.
func WriteReportJSON(report any, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return eris.Wrap(err, "tabio: marshal report")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrap(err, "tabio: write report")
	}
	return nil
}
