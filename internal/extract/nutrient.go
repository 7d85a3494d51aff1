package extract

import (
	"regexp"
	"sort"
	"strings"

	"github.com/JakeFAU/cropharvest/internal/corpus"
)

// nutrientTerms names each ppm field by its word (case-insensitive) and its
// chemical symbol (case-sensitive, so "N" never matches "n").
var nutrientTerms = []struct {
	field, word, symbol string
}{
	{FieldNitrogenPPM, `nitrogen`, `N`},
	{FieldPhosphorusPPM, `phosphorus`, `P`},
	{FieldPotassiumPPM, `potassium`, `K`},
	{FieldCalciumPPM, `calcium`, `Ca`},
	{FieldMagnesiumPPM, `magnesium`, `Mg`},
	{FieldSulfurPPM, `sulfur|sulphur`, `S`},
	{FieldIronPPM, `iron`, `Fe`},
	{FieldManganesePPM, `manganese`, `Mn`},
	{FieldZincPPM, `zinc`, `Zn`},
	{FieldCopperPPM, `copper`, `Cu`},
	{FieldBoronPPM, `boron`, `B`},
	{FieldMolybdenumPPM, `molybdenum`, `Mo`},
}

var (
	mentionRes = func() []*regexp.Regexp {
		out := make([]*regexp.Regexp, len(nutrientTerms))
		for i, n := range nutrientTerms {
			out[i] = regexp.MustCompile(`\b(?:(?i:` + n.word + `)|` + n.symbol + `)\b`)
		}
		return out
	}()
	// A range such as "150-200 ppm" yields its lower bound.
	quantityRe   = re(`(\d+(?:\.\d+)?)(?:\s*(?:[-–]|to)\s*\d+(?:\.\d+)?)?\s*(?:ppm|parts\s+per\s+million|mg/l)\b`)
	trailingOfRe = re(`^\s+(?:of\s+)?$`)
)

const maxLeadGap = 30

type span struct {
	field      string
	start, end int
}

// Nutrient reads the concentration of one nutrient from the joined corpus
// text. Every "<number> ppm" (or mg/L) quantity is paired with the nutrient
// named just before it ("nitrogen at 150 ppm") or just after it
// ("150 ppm N"). A quantity with no unambiguous owner is dropped rather than
// guessed.
type Nutrient struct {
	Field string
}

// Tier implements Strategy.
func (Nutrient) Tier() Tier { return TierPattern }

func (n Nutrient) extract(_ *Engine, v corpus.View, _ int) []string {
	text := corpus.Join(v)
	if text == "" {
		return nil
	}
	if value, ok := pairNutrients(text)[n.Field]; ok {
		return []string{value}
	}
	return nil
}

// pairNutrients maps each nutrient field to the first quantity attributed to
// it in text.
func pairNutrients(text string) map[string]string {
	var mentions []span
	for i, rx := range mentionRes {
		for _, loc := range rx.FindAllStringIndex(text, -1) {
			mentions = append(mentions, span{field: nutrientTerms[i].field, start: loc[0], end: loc[1]})
		}
	}
	if len(mentions) == 0 {
		return nil
	}
	sort.Slice(mentions, func(i, j int) bool { return mentions[i].start < mentions[j].start })

	type quantity struct {
		value      string
		start, end int
	}
	var quantities []quantity
	for _, m := range quantityRe.FindAllStringSubmatchIndex(text, -1) {
		value := text[m[2]:m[3]]
		if _, ok := ParseFloat(value); !ok {
			continue
		}
		quantities = append(quantities, quantity{value: value, start: m[0], end: m[1]})
	}

	// leads reports whether mention m introduces a quantity starting at start:
	// a short gap with no number and no clause break between them.
	leads := func(m span, start int) bool {
		if m.end > start {
			return false
		}
		gap := text[m.end:start]
		return len(gap) <= maxLeadGap && !strings.ContainsAny(gap, "0123456789.,;")
	}
	// introducesLater reports whether m is followed by a quantity of its own.
	introducesLater := func(m span) bool {
		for _, q := range quantities {
			if q.start >= m.end {
				return leads(m, q.start)
			}
		}
		return false
	}

	out := make(map[string]string)
	for _, q := range quantities {
		var before, after *span
		for i := range mentions {
			m := &mentions[i]
			if m.end <= q.start {
				before = m
				continue
			}
			if m.start >= q.end {
				after = m
				break
			}
		}
		if before != nil && !leads(*before, q.start) {
			before = nil
		}
		if after != nil && !trailingOfRe.MatchString(text[q.end:after.start]) {
			after = nil
		}

		var owner *span
		switch {
		case before != nil && after != nil:
			// "nitrogen 150 ppm potassium 200 ppm": potassium owns the next one.
			if introducesLater(*after) {
				owner = before
			} else {
				owner = after
			}
		case before != nil:
			owner = before
		case after != nil:
			owner = after
		}
		if owner == nil {
			continue
		}
		if _, taken := out[owner.field]; !taken {
			out[owner.field] = q.value
		}
	}
	return out
}
