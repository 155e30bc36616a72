package clean

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardview/edsignal/internal/table"
)

func TestAuxiliary_DropsBlankText(t *testing.T) {
	raw := mustTable(t,
		table.NewCategorical("text", []string{"fever spike", "   ", "", "clinic packed"},
			[]bool{false, false, true, false}),
	)

	out := Auxiliary(raw, "forum")

	assert.Equal(t, 2, out.NumRows())
	c, _ := out.Col("text")
	assert.Equal(t, "fever spike", c.String(0))
	assert.Equal(t, "clinic packed", c.String(1))
}

func TestAuxiliary_CoercesDatesAndDropsUnparseable(t *testing.T) {
	raw := mustTable(t,
		table.NewCategorical("text", []string{"a", "b", "c"}, nil),
		table.NewCategorical(ColDate, []string{"2023-06-02", "not a date", "2023-06-01"}, nil),
	)

	out := Auxiliary(raw, "forum")

	require.Equal(t, 2, out.NumRows())
	date, _ := out.Col(ColDate)
	assert.Equal(t, table.Date, date.Kind())
	// Sorted ascending after cleaning.
	assert.Equal(t, time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), date.Time(0))
	assert.Equal(t, time.Date(2023, 6, 2, 0, 0, 0, 0, time.UTC), date.Time(1))
}

func TestAuxiliary_LowercasesTextShadow(t *testing.T) {
	raw := mustTable(t,
		table.NewCategorical("title", []string{"  ER Overflow Tonight  "}, nil),
		table.NewCategorical("text", []string{"Waiting SIX hours"}, nil),
	)

	out := Auxiliary(raw, "news")

	title, _ := out.Col("title")
	assert.Equal(t, "ER Overflow Tonight", title.String(0))
	lower, ok := out.Col("title_lower")
	require.True(t, ok)
	assert.Equal(t, "er overflow tonight", lower.String(0))
	textLower, _ := out.Col("text_lower")
	assert.Equal(t, "waiting six hours", textLower.String(0))
}

func TestAuxiliary_DropsOutOfRangeSentiment(t *testing.T) {
	raw := mustTable(t,
		table.NewCategorical("text", []string{"a", "b", "c", "d", "e"}, nil),
		table.NewNumeric(ColSentiment, []float64{-1, 0.5, 1.7, 1, 0},
			[]bool{false, false, false, false, true}),
	)

	out := Auxiliary(raw, "microblog")

	assert.Equal(t, 4, out.NumRows())
	c, _ := out.Col("text")
	assert.Equal(t, "a", c.String(0))
	assert.Equal(t, "b", c.String(1))
	assert.Equal(t, "d", c.String(2))
	// Missing sentiment is kept, not treated as out of range.
	assert.Equal(t, "e", c.String(3))
}

func TestAuxiliary_DedupesOnDateAndTitle(t *testing.T) {
	raw := mustTable(t,
		table.NewCategorical(ColDate, []string{"2023-06-01", "2023-06-01", "2023-06-02"}, nil),
		table.NewCategorical("title", []string{"outbreak", "outbreak", "outbreak"}, nil),
		table.NewCategorical("text", []string{"first copy", "second copy", "next day"}, nil),
	)

	out := Auxiliary(raw, "news")

	require.Equal(t, 2, out.NumRows())
	text, _ := out.Col("text")
	assert.Equal(t, "first copy", text.String(0))
	assert.Equal(t, "next day", text.String(1))
}

func TestAuxiliary_DedupesOnDateAndTextWithoutTitle(t *testing.T) {
	raw := mustTable(t,
		table.NewCategorical(ColDate, []string{"2023-06-01", "2023-06-01", "2023-06-01"}, nil),
		table.NewCategorical("text", []string{"same post", "same post", "different post"}, nil),
	)

	out := Auxiliary(raw, "forum")

	assert.Equal(t, 2, out.NumRows())
}

func TestAuxiliary_AddsCalendarWithYear(t *testing.T) {
	raw := mustTable(t,
		table.NewCategorical("text", []string{"a", "b"}, nil),
		table.NewCategorical(ColDate, []string{"2023-11-23", "2024-01-01"}, nil),
	)

	out := Auxiliary(raw, "news")

	dow, ok := out.Col(ColDayOfWeek)
	require.True(t, ok)
	month, _ := out.Col(ColMonth)
	year, _ := out.Col(ColYear)

	// 2023-11-23 is a Thursday.
	assert.Equal(t, 3.0, dow.Float(0))
	assert.Equal(t, 11.0, month.Float(0))
	assert.Equal(t, 2023.0, year.Float(0))
	assert.Equal(t, 0.0, dow.Float(1))
	assert.Equal(t, 1.0, month.Float(1))
	assert.Equal(t, 2024.0, year.Float(1))

	assert.False(t, out.Has(ColIsWeekend), "weekend flag is a visit-table derivation")
}

func TestAuxiliary_NoDateColumnStillCleans(t *testing.T) {
	raw := mustTable(t,
		table.NewCategorical("text", []string{"Post", "Post", ""}, []bool{false, false, true}),
	)

	out := Auxiliary(raw, "forum")

	// Blank dropped, then the duplicate lowered text rows deduped on text.
	assert.Equal(t, 1, out.NumRows())
	assert.True(t, out.Has("text_lower"))
}
