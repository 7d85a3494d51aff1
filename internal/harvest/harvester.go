package harvest

import (
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/cropharvest/internal/corpus"
	"github.com/JakeFAU/cropharvest/internal/extract"
)

// minSectionFragment is the shortest fragment considered part of a nutrient
// section.
const minSectionFragment = 50

// Harvester runs the field tables over one page and builds every record it
// yields: one crop record for the page and a nutrient recipe for each
// nutrient section that names an N, P or K concentration.
type Harvester struct {
	engine  *extract.Engine
	builder Builder
	onMiss  func(kind Kind, field string)
}

// HarvesterOption configures a Harvester.
type HarvesterOption func(*Harvester)

// WithMissHook registers fn to be told about every field a table could not
// fill.
func WithMissHook(fn func(kind Kind, field string)) HarvesterOption {
	return func(h *Harvester) { h.onMiss = fn }
}

// NewHarvester wraps engine. A nil engine uses default options.
func NewHarvester(engine *extract.Engine, opts ...HarvesterOption) *Harvester {
	if engine == nil {
		engine = extract.New(extract.Options{})
	}
	h := &Harvester{engine: engine}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Harvest returns the crop record for v followed by its recipes in document
// order. Records are unvalidated.
func (h *Harvester) Harvest(v corpus.View, meta Metadata) []Record {
	crop := h.run(KindCrop, extract.CropFields, v)
	records := []Record{h.builder.Build(v, crop, meta)}

	cropName := crop.Text(extract.FieldName)
	for _, sec := range NutrientSections(v) {
		fields := h.run(KindRecipe, extract.RecipeFields, sec)
		if !fields.Has(extract.FieldNitrogenPPM) &&
			!fields.Has(extract.FieldPhosphorusPPM) &&
			!fields.Has(extract.FieldPotassiumPPM) {
			continue
		}
		fields.Set(extract.FieldCropName, cropName)
		if !fields.Has(extract.FieldStageOfGrowth) {
			fields.Set(extract.FieldStageOfGrowth, DefaultStage)
		}
		records = append(records, h.builder.Build(sec, fields, meta))
	}
	return records
}

func (h *Harvester) run(kind Kind, specs []extract.FieldSpec, v corpus.View) extract.Fields {
	fields := h.engine.ExtractAll(specs, v)
	if h.onMiss != nil {
		for _, spec := range specs {
			if !fields.Has(spec.Name) {
				h.onMiss(kind, spec.Name)
			}
		}
	}
	return fields
}

// NutrientSections groups consecutive fragments that talk about nutrients
// into sections. A fragment qualifies when it is longer than 50 characters
// and mentions a nutrient keyword.
func NutrientSections(v corpus.View) []corpus.View {
	var (
		sections []corpus.View
		run      []string
	)
	flush := func() {
		if len(run) > 0 {
			sections = append(sections, corpus.Section(v, run))
			run = nil
		}
	}
	for _, frag := range v.Fragments() {
		if isNutrientFragment(frag) {
			run = append(run, frag)
			continue
		}
		flush()
	}
	flush()
	return sections
}

func isNutrientFragment(frag string) bool {
	if utf8.RuneCountInString(frag) <= minSectionFragment {
		return false
	}
	lower := strings.ToLower(frag)
	for _, kw := range extract.NutrientKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
