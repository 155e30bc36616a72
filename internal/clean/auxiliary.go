package clean

import (
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/wardview/edsignal/internal/table"
)

// textColumns are the auxiliary free-text fields that get trimmed and
// shadowed with a lower-cased copy for case-insensitive matching.
var textColumns = []string{"text", "title", "content", "clean_text"}

var lowercaser = cases.Lower(language.Und)

// Auxiliary cleans a scraped stream table (news, forum, microblog):
// drops rows with blank text, coerces the date column and drops
// unparseable dates, lower-cases text copies, drops rows with sentiment
// outside [-1, 1], dedupes on (date, title) or (date, text), and sorts
// by date ascending.
func Auxiliary(raw *table.Table, source string) *table.Table {
	log := zap.L()
	log.Info("clean: auxiliary start", zap.String("source", source), zap.Int("rows", raw.NumRows()))

	t := raw
	for _, name := range []string{"text", "content"} {
		t = dropBlankRows(t, name)
	}

	if c, ok := t.Col(ColDate); ok {
		t = t.MustWithColumn(coerceDate(ColDate, c))
		dateCol, _ := t.Col(ColDate)
		keep := make([]bool, t.NumRows())
		for i := range keep {
			keep[i] = !dateCol.IsNA(i)
		}
		t = t.Filter(keep)
	}

	t = lowerTextColumns(t)
	t = boundSentiment(t)

	before := t.NumRows()
	t = dedupe(t, auxDedupKey(t))
	if removed := before - t.NumRows(); removed > 0 {
		log.Info("clean: removed duplicate rows",
			zap.String("source", source), zap.Int("count", removed))
	}

	t = deriveCalendarWithYear(t, ColDate)

	if t.Has(ColDate) {
		sorted, err := t.SortByDate(ColDate)
		if err == nil {
			t = sorted
		}
	}

	log.Info("clean: auxiliary complete", zap.String("source", source), zap.Int("rows", t.NumRows()))
	return t
}

// dropBlankRows removes rows where the named text column is missing or
// whitespace-only. Absent column means nothing to drop.
func dropBlankRows(t *table.Table, name string) *table.Table {
	c, ok := t.Col(name)
	if !ok || c.Kind() != table.Categorical {
		return t
	}
	keep := make([]bool, t.NumRows())
	dropped := false
	for i := range keep {
		keep[i] = !c.IsNA(i) && strings.TrimSpace(c.String(i)) != ""
		if !keep[i] {
			dropped = true
		}
	}
	if !dropped {
		return t
	}
	return t.Filter(keep)
}

// lowerTextColumns trims each known text column and adds a lower-cased
// shadow column named <col>_lower.
func lowerTextColumns(t *table.Table) *table.Table {
	for _, name := range textColumns {
		c, ok := t.Col(name)
		if !ok || c.Kind() != table.Categorical {
			continue
		}
		trimmed := make([]string, c.Len())
		lowered := make([]string, c.Len())
		na := make([]bool, c.Len())
		for i := range trimmed {
			na[i] = c.IsNA(i)
			s := strings.TrimSpace(c.String(i))
			trimmed[i] = s
			lowered[i] = lowercaser.String(s)
		}
		t = t.MustWithColumn(table.NewCategorical(name, trimmed, na))
		t = t.MustWithColumn(table.NewCategorical(name+"_lower", lowered, append([]bool(nil), na...)))
	}
	return t
}

// boundSentiment drops rows whose pre-computed sentiment polarity falls
// outside [-1, 1]. Missing sentiment is kept.
func boundSentiment(t *table.Table) *table.Table {
	c, ok := t.Col(ColSentiment)
	if !ok || !c.IsNumericLike() {
		return t
	}
	keep := make([]bool, t.NumRows())
	dropped := false
	for i := range keep {
		if c.IsNA(i) {
			keep[i] = true
			continue
		}
		v := c.Float(i)
		keep[i] = v >= -1 && v <= 1
		if !keep[i] {
			dropped = true
		}
	}
	if !dropped {
		return t
	}
	return t.Filter(keep)
}

// auxDedupKey picks the composite duplicate key for an auxiliary table:
// (date, title) when a title exists, else (date, text), else nil for a
// full-row match.
func auxDedupKey(t *table.Table) []string {
	var key []string
	if t.Has(ColDate) {
		key = append(key, ColDate)
	}
	switch {
	case t.Has("title"):
		key = append(key, "title")
	case t.Has("text"):
		key = append(key, "text")
	}
	if len(key) == 0 {
		return nil
	}
	return key
}

// deriveCalendarWithYear adds day-of-week, month, and year from the
// named date column. The weekend flag is a primary-table concern and is
// not derived here.
func deriveCalendarWithYear(t *table.Table, dateCol string) *table.Table {
	date, ok := t.Col(dateCol)
	if !ok || date.Kind() != table.Date {
		return t
	}
	dow := make([]float64, t.NumRows())
	month := make([]float64, t.NumRows())
	year := make([]float64, t.NumRows())
	na := make([]bool, t.NumRows())
	for i := 0; i < t.NumRows(); i++ {
		if date.IsNA(i) {
			na[i] = true
			continue
		}
		ts := date.Time(i)
		dow[i] = float64((int(ts.Weekday()) + 6) % 7)
		month[i] = float64(ts.Month())
		year[i] = float64(ts.Year())
	}
	t = t.MustWithColumn(table.NewNumeric(ColDayOfWeek, dow, na))
	t = t.MustWithColumn(table.NewNumeric(ColMonth, month, append([]bool(nil), na...)))
	return t.MustWithColumn(table.NewNumeric(ColYear, year, append([]bool(nil), na...)))
}
