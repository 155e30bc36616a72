package features

import (
	"go.uber.org/zap"

	"github.com/wardview/edsignal/internal/clean"
	"github.com/wardview/edsignal/internal/table"
)

// fluSeasonMonths is October through March.
var fluSeasonMonths = map[int]struct{}{
	10: {}, 11: {}, 12: {}, 1: {}, 2: {}, 3: {},
}

// Interactions adds the fixed cross-column combinations the domain uses.
// Each interaction is computed only when its inputs are present; an
// absent input silently skips that one interaction.
func Interactions(t *table.Table) *table.Table {
	p := planFor(t)
	added := 0

	if p.weekend && p.arrivalHour {
		weekend, _ := t.Col(clean.ColIsWeekend)
		hour, _ := t.Col(clean.ColArrivalHour)
		vals := make([]bool, t.NumRows())
		for i := range vals {
			if weekend.IsNA(i) || hour.IsNA(i) {
				continue
			}
			h := hour.Float(i)
			vals[i] = weekend.Float(i) == 1 && h >= 18 && h <= 23
		}
		t = t.MustWithColumn(table.NewFlag("weekend_evening", vals, nil))
		added++
	}

	if p.ageGroup && p.insurance {
		age, _ := t.Col(clean.ColAgeGroup)
		ins, _ := t.Col(clean.ColHasInsurance)
		vals := make([]bool, t.NumRows())
		for i := range vals {
			if age.IsNA(i) || ins.IsNA(i) {
				continue
			}
			vals[i] = age.String(i) == "65+" && ins.Float(i) == 0
		}
		t = t.MustWithColumn(table.NewFlag("senior_uninsured", vals, nil))
		added++
	}

	if p.weekend && p.acuity {
		weekend, _ := t.Col(clean.ColIsWeekend)
		acuity, _ := t.Col(clean.ColHighAcuity)
		vals := make([]float64, t.NumRows())
		na := make([]bool, t.NumRows())
		for i := range vals {
			// Numeric product: missing inputs propagate, unlike the
			// boolean interactions above.
			if weekend.IsNA(i) || acuity.IsNA(i) {
				na[i] = true
				continue
			}
			vals[i] = weekend.Float(i) * acuity.Float(i)
		}
		t = t.MustWithColumn(table.NewNumeric("weekend_high_acuity", vals, na))
		added++
	}

	if p.month {
		month, _ := t.Col(clean.ColMonth)
		vals := make([]bool, t.NumRows())
		for i := range vals {
			if month.IsNA(i) {
				continue
			}
			_, vals[i] = fluSeasonMonths[int(month.Float(i))]
		}
		t = t.MustWithColumn(table.NewFlag("is_flu_season", vals, nil))
		added++
	}

	zap.L().Info("features: interactions complete", zap.Int("columns", added))
	return t
}
