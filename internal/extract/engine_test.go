package extract

import (
	"net/url"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cropharvest/internal/corpus"
)

func TestNewFillsDefaults(t *testing.T) {
	t.Parallel()

	e := New(Options{MaxMatches: 2})
	opts := e.Options()
	assert.Equal(t, 15, opts.MinFragmentLen)
	assert.Equal(t, 1000, opts.MaxFragmentLen)
	assert.Equal(t, 2, opts.MaxMatches)
	assert.Equal(t, DefaultDenylist, opts.Denylist)
	assert.Equal(t, DefaultContentScope, opts.ContentScope)
}

func TestKeywordScanPrefersContentArea(t *testing.T) {
	t.Parallel()

	page := `<html><body>
<aside><p>Sign up for watering reminders from our garden club.</p></aside>
<article><h1>Carrots</h1><p>Keep the bed moist with light watering every few days.</p></article>
</body></html>`
	doc, err := corpus.FromHTML("https://site/plant/carrots", 200, []byte(page))
	require.NoError(t, err)

	spec := FieldSpec{Name: "water", Multi: true, Strategies: []Strategy{Keyword{Words: []string{"watering"}}}}
	got, ok := New(Options{}).Extract(spec, doc)
	require.True(t, ok)
	assert.Equal(t, []string{"Keep the bed moist with light watering every few days."}, got.Snippets)

	got, ok = New(Options{ContentScope: []string{".missing"}}).Extract(spec, doc)
	require.True(t, ok)
	assert.Len(t, got.Snippets, 2)
}

func TestValueFloatRejectsNonFinite(t *testing.T) {
	t.Parallel()

	for _, text := range []string{"NaN", "Inf", "-Infinity", "1e400"} {
		f := Fields{"n": Value{Snippets: []string{text}}}
		assert.Nil(t, f.Float("n"), text)
	}
	_, ok := Value{Snippets: []string{"2.5"}}.Float()
	assert.True(t, ok)
}

func TestSelectorBeatsKeyword(t *testing.T) {
	t.Parallel()

	v := corpus.New("https://site/plant/basil", "Basil", "Basil", []string{
		"Keep the soil evenly moist with regular watering.",
	})
	v.Selections = map[string][]string{".water": {"1 inch per week"}}

	spec := FieldSpec{Name: "water_needs", Strategies: []Strategy{
		// Deliberately listed out of tier order.
		Keyword{Words: []string{"water"}},
		Selector{CSS: []string{".water"}},
	}}

	got, ok := New(Options{}).Extract(spec, v)
	require.True(t, ok)
	assert.Equal(t, []string{"1 inch per week"}, got.Snippets)
}

func TestKeywordScan(t *testing.T) {
	t.Parallel()

	fragments := []string{
		"Water",                             // too short
		"Water deeply once a week.",         // kept
		"Water times for the moon calendar", // denied
		"Water deeply once a week.",         // duplicate
		strings.Repeat("water ", 200),       // too long
		"Mulch to keep moisture in the soil.",
		"Nothing relevant in this sentence.",
	}
	v := corpus.New("https://site/a", "", "", fragments)
	spec := FieldSpec{Name: "water", Multi: true, Strategies: []Strategy{
		Keyword{Words: []string{"Water", "moisture"}},
	}}

	got, ok := New(Options{}).Extract(spec, v)
	require.True(t, ok)
	assert.Equal(t, []string{"Water deeply once a week.", "Mulch to keep moisture in the soil."}, got.Snippets)
}

func TestKeywordScanHonoursMaxMatches(t *testing.T) {
	t.Parallel()

	var fragments []string
	for i := 0; i < 8; i++ {
		fragments = append(fragments, "Fertilizer note number "+string(rune('a'+i)))
	}
	v := corpus.New("https://site/a", "", "", fragments)
	spec := FieldSpec{Name: "fert", Multi: true, Strategies: []Strategy{Keyword{Words: []string{"fertilizer"}}}}

	got, ok := New(Options{MaxMatches: 3}).Extract(spec, v)
	require.True(t, ok)
	assert.Equal(t, fragments[:3], got.Snippets)

	single := FieldSpec{Name: "fert", Strategies: spec.Strategies}
	got, ok = New(Options{MaxMatches: 3}).Extract(single, v)
	require.True(t, ok)
	assert.Equal(t, fragments[:1], got.Snippets)
}

func TestPatternCaptures(t *testing.T) {
	t.Parallel()

	v := corpus.New("https://site/a", "", "", []string{"Spacing: 18 inches apart.", "Soil pH 6.0 to 6.8 is ideal."})
	e := New(Options{})

	spacing := FieldSpec{Name: "spacing", Strategies: []Strategy{
		Pattern{Exprs: []*regexp.Regexp{regexp.MustCompile(`(?i)spacing\s*:?\s*([^.]+)`)}},
	}}
	got, ok := e.Extract(spacing, v)
	require.True(t, ok)
	assert.Equal(t, "18 inches apart", got.Text())

	ph := FieldSpec{Name: "ph", Strategies: []Strategy{
		Pattern{Numeric: true, Exprs: []*regexp.Regexp{
			regexp.MustCompile(`(?i)ph\s+(\d+(?:\.\d+)?)\s+to\s+(\d+(?:\.\d+)?)`),
		}},
	}}
	got, ok = e.Extract(ph, v)
	require.True(t, ok)
	assert.Equal(t, "6.0-6.8", got.Text())
}

func TestPatternMaxLen(t *testing.T) {
	t.Parallel()

	v := corpus.New("https://site/a", "", "", []string{"Spacing: " + strings.Repeat("x", 50) + "."})
	spec := FieldSpec{Name: "spacing", Strategies: []Strategy{
		Pattern{MaxLen: 10, Exprs: []*regexp.Regexp{regexp.MustCompile(`Spacing: ([^.]+)`)}},
	}}

	_, ok := New(Options{}).Extract(spec, v)
	assert.False(t, ok)
}

func TestNumericPatternRejectsMalformedNumbers(t *testing.T) {
	t.Parallel()

	v := corpus.New("https://site/a", "", "", []string{"Nitrogen at 1.2.3 ppm is a typo."})
	spec := FieldSpec{Name: FieldNitrogenPPM, Strategies: []Strategy{
		Pattern{Numeric: true, Group: "value", Exprs: []*regexp.Regexp{
			regexp.MustCompile(`(?i)nitrogen[^\d.]*(?P<value>[\d.]+)\s*ppm`),
		}},
	}}

	_, ok := New(Options{}).Extract(spec, v)
	assert.False(t, ok)
}

func TestFromURLFallback(t *testing.T) {
	t.Parallel()

	v := corpus.New("https://site/plant/sweet-corn", "", "", nil)
	spec := FieldSpec{Name: "name", Strategies: []Strategy{
		FromURL{Derive: func(u *url.URL) string { return u.Host }},
		Selector{CSS: []string{"h1"}},
	}}

	got, ok := New(Options{}).Extract(spec, v)
	require.True(t, ok)
	assert.Equal(t, "site", got.Text())
}

func TestExtractMissIsAbsent(t *testing.T) {
	t.Parallel()

	v := corpus.New("https://site/a", "", "", []string{"nothing to see"})
	fields := New(Options{}).ExtractAll([]FieldSpec{
		{Name: "a", Strategies: []Strategy{Selector{CSS: []string{".a"}}}},
		{Name: "b", Strategies: []Strategy{Keyword{Words: []string{"zebra"}}}},
	}, v)

	assert.Empty(t, fields)
	assert.False(t, fields.Has("a"))
	assert.Nil(t, fields.Float("a"))
	assert.Equal(t, "", fields.Text("b"))
	assert.Nil(t, fields.List("b"))
}

func TestFieldsSetAndFloat(t *testing.T) {
	t.Parallel()

	f := Fields{}
	f.Set("blank", "   ")
	f.Set("n", " 150 ")
	f.Set("word", "lots")

	assert.False(t, f.Has("blank"))
	require.NotNil(t, f.Float("n"))
	assert.InDelta(t, 150.0, *f.Float("n"), 1e-9)
	assert.Nil(t, f.Float("word"))
}

func TestTierString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "structural", TierStructural.String())
	assert.Equal(t, "keyword", TierKeyword.String())
	assert.Equal(t, "pattern", TierPattern.String())
	assert.Equal(t, "fallback", TierFallback.String())
	assert.Equal(t, "unknown", Tier(42).String())
}
