// Package features derives temporal, cyclical, lagged, rolling,
// interaction, and group-aggregate columns from a cleaned primary table.
// Lag and rolling transforms assume date-sorted input; that ordering is
// the caller's contract, not enforced here.
package features

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/wardview/edsignal/internal/clean"
	"github.com/wardview/edsignal/internal/table"
)

// Defaults for the recognized configuration knobs.
var (
	DefaultLags    = []int{1, 3, 7, 14}
	DefaultWindows = []int{3, 7, 14}
)

// DefaultEpoch anchors the monotone day-offset feature.
var DefaultEpoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// Options configures CreateAllFeatures.
type Options struct {
	DateCol   string
	ValueCols []string
	Lags      []int
	Windows   []int
	Holidays  []time.Time
	Epoch     time.Time
}

func (o Options) withDefaults() Options {
	if o.DateCol == "" {
		o.DateCol = clean.ColVisitDate
	}
	if o.Lags == nil {
		o.Lags = DefaultLags
	}
	if o.Windows == nil {
		o.Windows = DefaultWindows
	}
	if o.Epoch.IsZero() {
		o.Epoch = DefaultEpoch
	}
	return o
}

// plan is the declared-schema capability set, computed once per call so
// skipped-feature behavior is auditable in one place instead of being
// scattered through inline presence checks.
type plan struct {
	dayOfWeek   bool
	month       bool
	arrivalHour bool
	weekend     bool
	ageGroup    bool
	insurance   bool
	acuity      bool
}

func planFor(t *table.Table) plan {
	numericLike := func(name string) bool {
		c, ok := t.Col(name)
		return ok && c.IsNumericLike()
	}
	return plan{
		dayOfWeek:   numericLike(clean.ColDayOfWeek),
		month:       numericLike(clean.ColMonth),
		arrivalHour: numericLike(clean.ColArrivalHour),
		weekend:     numericLike(clean.ColIsWeekend),
		ageGroup:    t.Has(clean.ColAgeGroup),
		insurance:   numericLike(clean.ColHasInsurance),
		acuity:      numericLike(clean.ColHighAcuity),
	}
}

// Temporal decomposes the named date column into calendar features:
// year, month, day, day-of-week (Monday=0), ISO week, quarter, weekend /
// Monday / Friday / month-start / month-end / holiday flags, and a day
// offset from the epoch. An absent or non-date column skips the whole
// transform.
func Temporal(t *table.Table, dateCol string, holidays []time.Time, epoch time.Time) *table.Table {
	date, ok := t.Col(dateCol)
	if !ok || date.Kind() != table.Date {
		zap.L().Warn("features: date column not found, skipping temporal", zap.String("column", dateCol))
		return t
	}
	if epoch.IsZero() {
		epoch = DefaultEpoch
	}
	holidaySet := make(map[time.Time]struct{}, len(holidays))
	for _, h := range holidays {
		holidaySet[table.Day(h)] = struct{}{}
	}

	n := t.NumRows()
	year := make([]float64, n)
	month := make([]float64, n)
	day := make([]float64, n)
	dow := make([]float64, n)
	week := make([]float64, n)
	quarter := make([]float64, n)
	sinceEpoch := make([]float64, n)
	weekend := make([]bool, n)
	monday := make([]bool, n)
	friday := make([]bool, n)
	monthStart := make([]bool, n)
	monthEnd := make([]bool, n)
	holiday := make([]bool, n)
	na := make([]bool, n)

	for i := 0; i < n; i++ {
		if date.IsNA(i) {
			na[i] = true
			continue
		}
		ts := date.Time(i)
		year[i] = float64(ts.Year())
		month[i] = float64(ts.Month())
		day[i] = float64(ts.Day())
		d := (int(ts.Weekday()) + 6) % 7
		dow[i] = float64(d)
		_, isoWeek := ts.ISOWeek()
		week[i] = float64(isoWeek)
		quarter[i] = float64((int(ts.Month())-1)/3 + 1)
		sinceEpoch[i] = math.Floor(table.Day(ts).Sub(epoch).Hours() / 24)
		weekend[i] = d >= 5
		monday[i] = d == 0
		friday[i] = d == 4
		monthStart[i] = ts.Day() == 1
		monthEnd[i] = ts.AddDate(0, 0, 1).Month() != ts.Month()
		_, holiday[i] = holidaySet[table.Day(ts)]
	}

	added := 0
	add := func(c *table.Column) {
		t = t.MustWithColumn(c)
		added++
	}
	naCopy := func() []bool { return append([]bool(nil), na...) }
	add(table.NewNumeric(clean.ColYear, year, naCopy()))
	add(table.NewNumeric(clean.ColMonth, month, naCopy()))
	add(table.NewNumeric("day", day, naCopy()))
	add(table.NewNumeric(clean.ColDayOfWeek, dow, naCopy()))
	add(table.NewNumeric("week_of_year", week, naCopy()))
	add(table.NewNumeric("quarter", quarter, naCopy()))
	add(table.NewFlag(clean.ColIsWeekend, weekend, naCopy()))
	add(table.NewFlag("is_monday", monday, naCopy()))
	add(table.NewFlag("is_friday", friday, naCopy()))
	add(table.NewFlag("is_month_start", monthStart, naCopy()))
	add(table.NewFlag("is_month_end", monthEnd, naCopy()))
	add(table.NewFlag("is_holiday", holiday, naCopy()))
	add(table.NewNumeric("days_since_epoch", sinceEpoch, naCopy()))

	zap.L().Info("features: temporal complete", zap.Int("columns", added))
	return t
}

// Cyclical adds sine/cosine pairs for day-of-week (period 7), month
// (period 12), and arrival hour (period 24). The pair preserves
// adjacency that a bare ordinal encoding would destroy. Each pair is
// emitted only when its source column is present.
func Cyclical(t *table.Table) *table.Table {
	p := planFor(t)
	if p.dayOfWeek {
		t = addSinCos(t, clean.ColDayOfWeek, "day_of_week", 7)
	}
	if p.month {
		t = addSinCos(t, clean.ColMonth, "month", 12)
	}
	if p.arrivalHour {
		t = addSinCos(t, clean.ColArrivalHour, "hour", 24)
	}
	return t
}

func addSinCos(t *table.Table, src, prefix string, period float64) *table.Table {
	c, _ := t.Col(src)
	n := c.Len()
	sin := make([]float64, n)
	cos := make([]float64, n)
	na := make([]bool, n)
	for i := 0; i < n; i++ {
		if c.IsNA(i) {
			na[i] = true
			continue
		}
		theta := 2 * math.Pi * c.Float(i) / period
		sin[i] = math.Sin(theta)
		cos[i] = math.Cos(theta)
	}
	t = t.MustWithColumn(table.NewNumeric(prefix+"_sin", sin, na))
	return t.MustWithColumn(table.NewNumeric(prefix+"_cos", cos, append([]bool(nil), na...)))
}

// CreateAllFeatures composes the standard transforms in their fixed
// order: temporal, cyclical, lagged and rolling when value columns are
// supplied, then interactions. Cyclical and interaction features depend
// on columns the temporal step produces, so the order is load-bearing.
func CreateAllFeatures(t *table.Table, opts Options) (*table.Table, error) {
	opts = opts.withDefaults()
	before := t.NumCols()

	t = Temporal(t, opts.DateCol, opts.Holidays, opts.Epoch)
	t = Cyclical(t)

	if len(opts.ValueCols) > 0 {
		var err error
		t, err = Lagged(t, opts.ValueCols, opts.Lags)
		if err != nil {
			return nil, err
		}
		t, err = Rolling(t, opts.ValueCols, opts.Windows)
		if err != nil {
			return nil, err
		}
	}

	t = Interactions(t)

	zap.L().Info("features: all features complete", zap.Int("new_columns", t.NumCols()-before))
	return t, nil
}
