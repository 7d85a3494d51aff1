package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cropharvest/internal/harvest"
)

func TestRowForCrop(t *testing.T) {
	t.Parallel()

	npk := harvest.ParseNPK("10-10-10")
	now := time.Date(2024, 4, 2, 9, 30, 0, 0, time.UTC)
	row, err := RowFor(&harvest.CropRecord{
		Name:                      "Tomatoes",
		WaterNeeds:                "Water deeply once a week.",
		FertilizerNPK:             &npk,
		FertilizerRecommendations: []string{"Side-dress in June", "Use compost"},
		SourceURL:                 "https://site/plant/tomatoes",
		DataSource:                "site",
		ScrapedAt:                 now,
	})
	require.NoError(t, err)
	require.Len(t, row.Values, len(row.Columns))

	assert.Equal(t, CropsTable, row.Table)
	values := map[string]any{}
	for i, c := range row.Columns {
		values[c] = row.Values[i]
	}
	assert.Equal(t, "Tomatoes", values["name"])
	assert.Nil(t, values["common_name"])
	assert.Equal(t, "Water deeply once a week.", values["water_needs"])
	assert.Equal(t, "10-10-10", values["fertilizer_npk"])
	assert.Equal(t, "Side-dress in June; Use compost", values["fertilizer_recommendations"])
	assert.Nil(t, values["organic_fertilizer_options"])
	assert.Equal(t, now, values["scraped_at"])
}

func TestRowForRecipe(t *testing.T) {
	t.Parallel()

	n := 150.0
	row, err := RowFor(&harvest.NutrientRecipeRecord{
		CropName:    "Tomatoes",
		NitrogenPPM: &n,
		SourceURL:   "u",
		DataSource:  "d",
	})
	require.NoError(t, err)
	require.Len(t, row.Values, len(row.Columns))

	assert.Equal(t, RecipesTable, row.Table)
	assert.Equal(t, "general", row.Values[1])
	assert.Equal(t, 150.0, row.Values[2])
	assert.Nil(t, row.Values[3])
}

func TestInsertSQL(t *testing.T) {
	t.Parallel()

	row := Row{Table: "crops", Columns: []string{"name", "source_url"}, Conflict: CropKey}
	assert.Equal(t,
		"INSERT INTO crops (name, source_url) VALUES ($1, $2) ON CONFLICT (name, source_url) DO NOTHING",
		row.InsertSQL(Dollar))
	assert.Equal(t,
		"INSERT INTO crops (name, source_url) VALUES (?, ?) ON CONFLICT (name, source_url) DO NOTHING",
		row.InsertSQL(Question))
}

type otherRecord struct{ harvest.Record }

func TestRowForUnknownRecord(t *testing.T) {
	t.Parallel()

	_, err := RowFor(otherRecord{})
	require.Error(t, err)
}
