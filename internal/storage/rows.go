// Package storage maps harvest records onto the relational schema shared by
// the SQL stores. Multi-valued attributes are joined with "; " here and
// nowhere earlier; absent values become SQL NULL.
package storage

import (
	"fmt"
	"strings"

	"github.com/JakeFAU/cropharvest/internal/harvest"
)

// Table names.
const (
	CropsTable   = "crops"
	RecipesTable = "nutrient_recipes"
)

// ListSeparator joins multi-valued attributes at the storage boundary.
const ListSeparator = "; "

// CropColumns lists the crops columns written on insert, in argument order.
var CropColumns = []string{
	"name", "common_name", "scientific_name", "category",
	"planting_depth", "spacing", "days_to_maturity",
	"water_needs", "irrigation_frequency", "soil_ph", "soil_type",
	"fertilizer_npk", "fertilizer_recommendations", "organic_fertilizer_options",
	"sun_requirements", "temperature_range", "hardiness_zone",
	"planting_season", "harvest_time",
	"nitrogen_requirement", "phosphorus_requirement", "potassium_requirement",
	"secondary_nutrients", "micronutrients",
	"source_url", "data_source", "scraped_at",
}

// CropRequirementColumns were added to crops after its first release; stores
// add them to older databases on open.
var CropRequirementColumns = []string{
	"nitrogen_requirement", "phosphorus_requirement", "potassium_requirement",
	"secondary_nutrients", "micronutrients",
}

// RecipeColumns lists the nutrient_recipes columns written on insert.
var RecipeColumns = []string{
	"crop_name", "stage_of_growth",
	"nitrogen_ppm", "phosphorus_ppm", "potassium_ppm",
	"calcium_ppm", "magnesium_ppm", "sulfur_ppm",
	"iron_ppm", "manganese_ppm", "zinc_ppm",
	"copper_ppm", "boron_ppm", "molybdenum_ppm",
	"ec_range", "ph_range", "application_method", "frequency",
	"source_url", "reference_document", "data_source", "scraped_at",
}

// Natural keys, used as ON CONFLICT targets.
var (
	CropKey   = []string{"name", "source_url"}
	RecipeKey = []string{"crop_name", "stage_of_growth", "source_url"}
)

// Row is a record flattened for insertion.
type Row struct {
	Table    string
	Columns  []string
	Values   []any
	Conflict []string
}

// RowFor flattens rec.
func RowFor(rec harvest.Record) (Row, error) {
	switch r := rec.(type) {
	case *harvest.CropRecord:
		return Row{
			Table:    CropsTable,
			Columns:  CropColumns,
			Conflict: CropKey,
			Values: []any{
				r.Name,
				Nullable(r.CommonName),
				Nullable(r.ScientificName),
				Nullable(r.Category),
				Nullable(r.PlantingDepth),
				Nullable(r.Spacing),
				Nullable(r.DaysToMaturity),
				Nullable(r.WaterNeeds),
				Nullable(r.IrrigationFrequency),
				Nullable(r.SoilPH),
				Nullable(r.SoilType),
				npkValue(r.FertilizerNPK),
				JoinList(r.FertilizerRecommendations),
				JoinList(r.OrganicFertilizerOptions),
				Nullable(r.SunRequirements),
				Nullable(r.TemperatureRange),
				Nullable(r.HardinessZone),
				Nullable(r.PlantingSeason),
				Nullable(r.HarvestTime),
				JoinList(r.NitrogenRequirement),
				JoinList(r.PhosphorusRequirement),
				JoinList(r.PotassiumRequirement),
				JoinList(r.SecondaryNutrients),
				JoinList(r.Micronutrients),
				r.SourceURL,
				r.DataSource,
				r.ScrapedAt,
			},
		}, nil
	case *harvest.NutrientRecipeRecord:
		return Row{
			Table:    RecipesTable,
			Columns:  RecipeColumns,
			Conflict: RecipeKey,
			Values: []any{
				r.CropName,
				r.Stage(),
				Float(r.NitrogenPPM),
				Float(r.PhosphorusPPM),
				Float(r.PotassiumPPM),
				Float(r.CalciumPPM),
				Float(r.MagnesiumPPM),
				Float(r.SulfurPPM),
				Float(r.IronPPM),
				Float(r.ManganesePPM),
				Float(r.ZincPPM),
				Float(r.CopperPPM),
				Float(r.BoronPPM),
				Float(r.MolybdenumPPM),
				Nullable(r.ECRange),
				Nullable(r.PHRange),
				Nullable(r.ApplicationMethod),
				Nullable(r.Frequency),
				r.SourceURL,
				Nullable(r.ReferenceDocument),
				r.DataSource,
				r.ScrapedAt,
			},
		}, nil
	default:
		return Row{}, fmt.Errorf("unsupported record type %T", rec)
	}
}

// InsertSQL renders an insert that silently skips rows whose natural key
// already exists. placeholder renders the i-th (1-based) bind parameter.
func (r Row) InsertSQL(placeholder func(i int) string) string {
	params := make([]string, len(r.Columns))
	for i := range r.Columns {
		params[i] = placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
		r.Table,
		strings.Join(r.Columns, ", "),
		strings.Join(params, ", "),
		strings.Join(r.Conflict, ", "),
	)
}

// Dollar renders Postgres style placeholders.
func Dollar(i int) string { return fmt.Sprintf("$%d", i) }

// Question renders SQLite style placeholders.
func Question(int) string { return "?" }

// Nullable maps a blank string to NULL.
func Nullable(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

// JoinList joins values with ListSeparator, or returns NULL for an empty list.
func JoinList(values []string) any {
	if len(values) == 0 {
		return nil
	}
	return strings.Join(values, ListSeparator)
}

// Float dereferences f, mapping nil to NULL.
func Float(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func npkValue(n *harvest.NPK) any {
	if n == nil || n.IsZero() {
		return nil
	}
	return n.String()
}
