// Package merge aligns cleaned auxiliary stream tables onto the primary
// table's daily time axis: per-source daily aggregation, a day-keyed
// left join, and zero-fill of the joined columns. This is the only stage
// permitted to zero-fill, and only for source-derived columns: "no
// external signal that day" is semantically zero, unlike the
// insufficient-history missing values of lag/rolling features, which
// survive the merge untouched.
package merge

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wardview/edsignal/internal/clean"
	"github.com/wardview/edsignal/internal/table"
)

// Source names with a defined aggregation recipe.
const (
	SourceNews      = "news"
	SourceForum     = "forum"
	SourceMicroblog = "microblog"
)

// newsCountLags are applied to the daily mention count, over the
// aggregate's own row order.
var newsCountLags = []int{1, 3, 5, 7}

// forumSentimentWindow is the trailing mean window over daily sentiment.
const forumSentimentWindow = 7

// dailyAgg is one source's per-day aggregate: parallel stat series over
// an ascending day axis.
type dailyAgg struct {
	days    []time.Time
	rowOf   map[time.Time]int
	numeric map[string][]float64 // column name -> per-day values
	numNA   map[string][]bool
	text    map[string][]string // concat columns
}

// Merge left-joins each source's daily aggregate onto the primary table,
// keyed on the visit date truncated to day granularity. The primary row
// count is invariant; the original timestamp column is preserved
// unmodified. Sources are processed in name order for determinism.
func Merge(primary *table.Table, sources map[string]*table.Table) (*table.Table, error) {
	log := zap.L()
	visitDate, ok := primary.Col(clean.ColVisitDate)
	if !ok || visitDate.Kind() != table.Date {
		log.Warn("merge: primary table has no visit date column, returning unmerged")
		return primary, nil
	}

	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)

	out := primary
	var joined []string
	for _, name := range names {
		aux := sources[name]
		if aux == nil || aux.NumRows() == 0 {
			continue
		}
		agg, ok := aggregate(name, aux)
		if !ok {
			continue
		}
		var err error
		out, joined, err = join(out, visitDate, agg, joined)
		if err != nil {
			return nil, err
		}
		log.Info("merge: source joined",
			zap.String("source", name), zap.Int("days", len(agg.days)))
	}

	out = zeroFill(out, joined)

	log.Info("merge: complete",
		zap.Int("rows", out.NumRows()), zap.Int("cols", out.NumCols()))
	return out, nil
}

// aggregate dispatches to the source's recipe. Unknown sources are
// skipped with a warning rather than failing the merge.
func aggregate(name string, aux *table.Table) (*dailyAgg, bool) {
	agg := newDailyAgg(aux)
	if agg == nil {
		zap.L().Warn("merge: auxiliary table has no date column, skipping", zap.String("source", name))
		return nil, false
	}
	switch name {
	case SourceNews:
		agg.count(aux, "news_mentions")
		agg.concat(aux, "keywords", "news_keywords")
		for _, k := range newsCountLags {
			agg.lag("news_mentions", k)
		}
	case SourceForum:
		agg.count(aux, "forum_posts")
		agg.mean(aux, clean.ColSentiment, "forum_sentiment")
		agg.concat(aux, "symptoms_mentioned", "forum_symptoms")
		agg.trailingMean("forum_sentiment", forumSentimentWindow)
	case SourceMicroblog:
		agg.count(aux, "micro_posts")
		agg.mean(aux, clean.ColSentiment, "micro_sentiment")
		agg.sum(aux, "likes", "micro_likes")
		agg.sum(aux, reshareColumn(aux), "micro_reshares")
	default:
		zap.L().Warn("merge: no aggregation recipe for source, skipping", zap.String("source", name))
		return nil, false
	}
	return agg, true
}

// reshareColumn tolerates both the generic and the platform-specific
// engagement column name.
func reshareColumn(aux *table.Table) string {
	if aux.Has("reshares") {
		return "reshares"
	}
	return "retweets"
}

// newDailyAgg builds the day axis from the auxiliary date column.
func newDailyAgg(aux *table.Table) *dailyAgg {
	date, ok := aux.Col(clean.ColDate)
	if !ok || date.Kind() != table.Date {
		return nil
	}
	seen := make(map[time.Time]struct{})
	var days []time.Time
	for i := 0; i < aux.NumRows(); i++ {
		if date.IsNA(i) {
			continue
		}
		day := table.Day(date.Time(i))
		if _, dup := seen[day]; !dup {
			seen[day] = struct{}{}
			days = append(days, day)
		}
	}
	sort.Slice(days, func(a, b int) bool { return days[a].Before(days[b]) })
	rowOf := make(map[time.Time]int, len(days))
	for i, d := range days {
		rowOf[d] = i
	}
	return &dailyAgg{
		days:    days,
		rowOf:   rowOf,
		numeric: make(map[string][]float64),
		numNA:   make(map[string][]bool),
		text:    make(map[string][]string),
	}
}

// rowDay resolves the aggregate row index for auxiliary row i.
func (a *dailyAgg) rowDay(aux *table.Table, i int) (int, bool) {
	date, _ := aux.Col(clean.ColDate)
	if date.IsNA(i) {
		return 0, false
	}
	row, ok := a.rowOf[table.Day(date.Time(i))]
	return row, ok
}

// count tallies auxiliary rows per day.
func (a *dailyAgg) count(aux *table.Table, out string) {
	vals := make([]float64, len(a.days))
	for i := 0; i < aux.NumRows(); i++ {
		if row, ok := a.rowDay(aux, i); ok {
			vals[row]++
		}
	}
	a.numeric[out] = vals
	a.numNA[out] = make([]bool, len(a.days))
}

// mean averages the named column per day; a day with no present values
// stays missing.
func (a *dailyAgg) mean(aux *table.Table, src, out string) {
	sums := make([]float64, len(a.days))
	counts := make([]int, len(a.days))
	c, ok := aux.Col(src)
	if ok && c.IsNumericLike() {
		for i := 0; i < aux.NumRows(); i++ {
			row, dayOK := a.rowDay(aux, i)
			if !dayOK || c.IsNA(i) {
				continue
			}
			sums[row] += c.Float(i)
			counts[row]++
		}
	}
	vals := make([]float64, len(a.days))
	na := make([]bool, len(a.days))
	for i := range vals {
		if counts[i] == 0 {
			na[i] = true
			continue
		}
		vals[i] = sums[i] / float64(counts[i])
	}
	a.numeric[out] = vals
	a.numNA[out] = na
}

// sum totals the named column per day.
func (a *dailyAgg) sum(aux *table.Table, src, out string) {
	vals := make([]float64, len(a.days))
	c, ok := aux.Col(src)
	if ok && c.IsNumericLike() {
		for i := 0; i < aux.NumRows(); i++ {
			row, dayOK := a.rowDay(aux, i)
			if !dayOK || c.IsNA(i) {
				continue
			}
			vals[row] += c.Float(i)
		}
	}
	a.numeric[out] = vals
	a.numNA[out] = make([]bool, len(a.days))
}

// concat joins the named column's present values per day with ", ".
func (a *dailyAgg) concat(aux *table.Table, src, out string) {
	parts := make([][]string, len(a.days))
	c, ok := aux.Col(src)
	if ok && c.Kind() == table.Categorical {
		for i := 0; i < aux.NumRows(); i++ {
			row, dayOK := a.rowDay(aux, i)
			if !dayOK || c.IsNA(i) {
				continue
			}
			parts[row] = append(parts[row], c.String(i))
		}
	}
	vals := make([]string, len(a.days))
	for i, p := range parts {
		vals[i] = strings.Join(p, ", ")
	}
	a.text[out] = vals
}

// lag shifts an aggregate series by k of its own rows; the first k rows
// become missing until the zero-fill pass.
func (a *dailyAgg) lag(src string, k int) {
	base := a.numeric[src]
	baseNA := a.numNA[src]
	vals := make([]float64, len(base))
	na := make([]bool, len(base))
	for i := range base {
		if i < k || baseNA[i-k] {
			na[i] = true
			continue
		}
		vals[i] = base[i-k]
	}
	name := src + "_lag" + strconv.Itoa(k)
	a.numeric[name] = vals
	a.numNA[name] = na
}

// trailingMean computes a w-row trailing mean over an aggregate series.
func (a *dailyAgg) trailingMean(src string, w int) {
	base := a.numeric[src]
	baseNA := a.numNA[src]
	vals := make([]float64, len(base))
	na := make([]bool, len(base))
	for i := range base {
		if i < w-1 {
			na[i] = true
			continue
		}
		sum := 0.0
		complete := true
		for j := i - w + 1; j <= i; j++ {
			if baseNA[j] {
				complete = false
				break
			}
			sum += base[j]
		}
		if !complete {
			na[i] = true
			continue
		}
		vals[i] = sum / float64(w)
	}
	name := src + "_" + strconv.Itoa(w) + "d"
	a.numeric[name] = vals
	a.numNA[name] = na
}

// join appends every aggregate column to the primary table, matching
// each primary row's day against the aggregate axis. Unmatched days stay
// missing until zeroFill.
func join(primary *table.Table, visitDate *table.Column, agg *dailyAgg, joined []string) (*table.Table, []string, error) {
	n := primary.NumRows()
	match := make([]int, n)
	for i := 0; i < n; i++ {
		match[i] = -1
		if visitDate.IsNA(i) {
			continue
		}
		if row, ok := agg.rowOf[table.Day(visitDate.Time(i))]; ok {
			match[i] = row
		}
	}

	numNames := make([]string, 0, len(agg.numeric))
	for name := range agg.numeric {
		numNames = append(numNames, name)
	}
	sort.Strings(numNames)
	for _, name := range numNames {
		vals := make([]float64, n)
		na := make([]bool, n)
		for i, row := range match {
			if row < 0 || agg.numNA[name][row] {
				na[i] = true
				continue
			}
			vals[i] = agg.numeric[name][row]
		}
		var err error
		primary, err = primary.WithColumn(table.NewNumeric(name, vals, na))
		if err != nil {
			return nil, nil, err
		}
		joined = append(joined, name)
	}

	textNames := make([]string, 0, len(agg.text))
	for name := range agg.text {
		textNames = append(textNames, name)
	}
	sort.Strings(textNames)
	for _, name := range textNames {
		vals := make([]string, n)
		na := make([]bool, n)
		for i, row := range match {
			if row < 0 {
				na[i] = true
				continue
			}
			vals[i] = agg.text[name][row]
		}
		var err error
		primary, err = primary.WithColumn(table.NewCategorical(name, vals, na))
		if err != nil {
			return nil, nil, err
		}
		joined = append(joined, name)
	}
	return primary, joined, nil
}

// zeroFill replaces missing cells with zero (empty string for concat
// columns) in exactly the columns this merge appended. Primary-derived
// lag/rolling columns are never touched.
func zeroFill(t *table.Table, joined []string) *table.Table {
	for _, name := range joined {
		c, ok := t.Col(name)
		if !ok || c.CountNA() == 0 {
			continue
		}
		switch {
		case c.IsNumericLike():
			vals := make([]float64, c.Len())
			for i := range vals {
				if !c.IsNA(i) {
					vals[i] = c.Float(i)
				}
			}
			t = t.MustWithColumn(table.NewNumeric(name, vals, nil))
		case c.Kind() == table.Categorical:
			vals := make([]string, c.Len())
			for i := range vals {
				vals[i] = c.String(i)
			}
			t = t.MustWithColumn(table.NewCategorical(name, vals, nil))
		}
	}
	return t
}
