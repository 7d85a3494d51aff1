package extract

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cropharvest/internal/corpus"
)

const tomatoHTML = `<html><head><title>Tomatoes | The Old Farmer's Almanac</title></head>
<body>
<nav><a href="/calendar">Gardening Calendar</a></nav>
<div class="breadcrumb"><a href="/">Home</a> <a href="/vegetables">Vegetables</a></div>
<h1 class="page-title">Tomatoes</h1>
<p><em>Solanum lycopersicum</em></p>
<p>Water deeply once a week.</p>
<p>Soil pH should be between 6.2 and 6.8.</p>
<p>Spacing: 24 to 36 inches apart.</p>
<p>Use a 5-10-10 fertilizer at planting time.</p>
<p>Tomatoes need full sun for at least 8 hours.</p>
</body></html>`

func TestCropFieldsOnTomatoPage(t *testing.T) {
	t.Parallel()

	doc, err := corpus.FromHTML("https://www.almanac.com/plant/tomatoes", 200, []byte(tomatoHTML))
	require.NoError(t, err)

	fields := New(Options{}).ExtractAll(CropFields, doc)

	assert.Equal(t, "Tomatoes", fields.Text(FieldName))
	assert.Equal(t, "Solanum lycopersicum", fields.Text(FieldScientificName))
	assert.Equal(t, "Vegetable", fields.Text(FieldCategory))
	assert.Equal(t, "Water deeply once a week.", fields.Text(FieldWaterNeeds))
	assert.Equal(t, "6.2-6.8", fields.Text(FieldSoilPH))
	assert.Equal(t, "24 to 36 inches apart", fields.Text(FieldSpacing))
	assert.Equal(t, "5-10-10", fields.Text(FieldFertilizerNPK))
	assert.Equal(t, "full sun", fields.Text(FieldSunRequirements))
	assert.Contains(t, fields.List(FieldFertilizerRecommendation), "Use a 5-10-10 fertilizer at planting time.")
}

func TestCropNameFallsBackToURL(t *testing.T) {
	t.Parallel()

	v := corpus.New("https://www.almanac.com/plant/sweet-corn", "Planting Calendar | Almanac", "", nil)
	fields := New(Options{}).ExtractAll(CropFields, v)
	assert.Equal(t, "Sweet Corn", fields.Text(FieldName))
}

func TestSlugNameAndCategoryFromURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw      string
		name     string
		category string
	}{
		{raw: "https://x/plant/bell-peppers", name: "Bell Peppers"},
		{raw: "https://x/vegetables/beans.html", name: "Beans", category: "Vegetable"},
		{raw: "https://x/herbs/plant/thai_basil/", name: "Thai Basil", category: "Herb"},
	}
	for _, tt := range tests {
		u, err := url.Parse(tt.raw)
		require.NoError(t, err)
		assert.Equal(t, tt.name, slugName(u), tt.raw)
		assert.Equal(t, tt.category, categoryFromURL(u), tt.raw)
	}
}

func TestRecipeFieldsOnNutrientSection(t *testing.T) {
	t.Parallel()

	page := corpus.New("https://extension.psu.edu/hydroponic-tomatoes", "Hydroponic Tomato Nutrition", "", nil)
	sec := corpus.Section(page, []string{
		"During flowering, maintain nitrogen at 150 ppm, phosphorus 50 ppm and potassium 200 mg/L.",
		"Calcium 190 ppm and Mg 48 ppm. Keep EC at 2.0-3.5 mS/cm and pH 5.5-6.5.",
		"Apply by fertigation daily.",
	})

	fields := New(Options{}).ExtractAll(RecipeFields, sec)

	assert.Equal(t, "flowering", fields.Text(FieldStageOfGrowth))
	assert.Equal(t, "150", fields.Text(FieldNitrogenPPM))
	assert.Equal(t, "50", fields.Text(FieldPhosphorusPPM))
	assert.Equal(t, "200", fields.Text(FieldPotassiumPPM))
	assert.Equal(t, "190", fields.Text(FieldCalciumPPM))
	assert.Equal(t, "48", fields.Text(FieldMagnesiumPPM))
	assert.False(t, fields.Has(FieldZincPPM))
	assert.Equal(t, "2.0-3.5", fields.Text(FieldECRange))
	assert.Equal(t, "5.5-6.5", fields.Text(FieldPHRange))
	assert.Equal(t, "Fertigation", fields.Text(FieldApplicationMethod))
	assert.Equal(t, "daily", fields.Text(FieldFrequency))
	assert.Equal(t, "Hydroponic Tomato Nutrition", fields.Text(FieldReferenceDocument))
}

func TestNormalizeStage(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":              "general",
		"Seedlings":     "seedling",
		"germination":   "seedling",
		"transplanting": "seedling",
		"vegetative":    "vegetative",
		"Blooming":      "flowering",
		"fruit set":     "fruiting",
		"harvest":       "general",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeStage(in), in)
	}
}

func TestRecipePPMPairsValuesWithTheirNutrient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		text    string
		want    map[string]string
		missing []string
	}{
		{
			name: "value first",
			text: "Feed the hydroponic solution with 150 ppm N, 50 ppm P and 200 ppm K at flowering.",
			want: map[string]string{FieldNitrogenPPM: "150", FieldPhosphorusPPM: "50", FieldPotassiumPPM: "200"},
		},
		{
			name:    "ranges keep the lower bound",
			text:    "Nutrient solution targets: Nitrogen 150-200 ppm, potassium 180-220 ppm for fruiting plants.",
			want:    map[string]string{FieldNitrogenPPM: "150", FieldPotassiumPPM: "180"},
			missing: []string{FieldPhosphorusPPM},
		},
		{
			name: "names without separators",
			text: "Solution concentration of nitrogen 120 ppm potassium 160 ppm during vegetative growth.",
			want: map[string]string{FieldNitrogenPPM: "120", FieldPotassiumPPM: "160"},
		},
		{
			name:    "clause break drops the quantity",
			text:    "Phosphorus is important; 40 ppm is typical for most nutrient solutions overall.",
			missing: []string{FieldPhosphorusPPM},
		},
		{
			name: "of between value and name",
			text: "Supply 2.5 mg/L of iron and 0.5 ppm of boron in the nutrient solution.",
			want: map[string]string{FieldIronPPM: "2.5", FieldBoronPPM: "0.5"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sec := corpus.New("https://extension.example.edu/tomato-nutrition", "Tomato Nutrition", "", []string{tt.text})
			fields := New(Options{}).ExtractAll(RecipeFields, sec)
			for field, want := range tt.want {
				assert.Equal(t, want, fields.Text(field), field)
			}
			for _, field := range tt.missing {
				assert.False(t, fields.Has(field), field)
			}
		})
	}
}

func TestCropNutrientRequirements(t *testing.T) {
	t.Parallel()

	v := corpus.New("https://site/plant/peppers", "Peppers", "Peppers", []string{
		"Peppers need about 2 lb of nitrogen per 1000 sq ft. Apply phosphate at 1 lb per 100 ft of row.",
		"Add 1 tablespoon of Epsom salt (magnesium) per gallon at bloom.",
		"Too much nitrogen makes leaves, not fruit.",
	})
	fields := New(Options{}).ExtractAll(CropFields, v)

	assert.Equal(t, []string{"Peppers need about 2 lb of nitrogen per 1000 sq ft"}, fields.List(FieldNitrogenRequirement))
	assert.Equal(t, []string{"Apply phosphate at 1 lb per 100 ft of row"}, fields.List(FieldPhosphorusRequirement))
	assert.Equal(t, []string{"Add 1 tablespoon of Epsom salt (magnesium) per gallon at bloom"}, fields.List(FieldSecondaryNutrients))
	assert.False(t, fields.Has(FieldPotassiumRequirement))
	assert.False(t, fields.Has(FieldMicronutrients))
}
