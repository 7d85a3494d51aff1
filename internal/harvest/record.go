package harvest

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/cropharvest/internal/extract"
)

// Kind names a record variant. It is also the record_type written to
// snapshots.
type Kind string

// Record kinds.
const (
	KindCrop   Kind = "crop"
	KindRecipe Kind = "nutrient_recipe"
)

// Key is the natural key of a record; two records with equal keys describe
// the same thing and only the first is stored.
type Key string

func newKey(kind Kind, parts ...string) Key {
	return Key(string(kind) + "\x1f" + strings.Join(parts, "\x1f"))
}

// String renders the key for logs.
func (k Key) String() string {
	return strings.ReplaceAll(string(k), "\x1f", "|")
}

// Record is either a *CropRecord or a *NutrientRecipeRecord.
type Record interface {
	Kind() Kind
	Key() Key
	// URL is the page the record was built from.
	URL() string
	// requiredField returns the name of the first blank required attribute.
	requiredField() string
	stamp(t time.Time)
}

// Metadata is stamped onto every record by the Builder.
type Metadata struct {
	SourceURL  string
	DataSource string
}

// NPK is a fertilizer N-P-K ratio. Components that could not be read are nil.
type NPK struct {
	N *float64
	P *float64
	K *float64
}

// ParseNPK reads a ratio such as "10-10-10" out of text.
func ParseNPK(text string) NPK {
	n, p, k := extract.ParseNPK(text)
	return NPK{N: n, P: p, K: k}
}

// IsZero reports whether no component was read.
func (n NPK) IsZero() bool {
	return n.N == nil && n.P == nil && n.K == nil
}

// String renders "N-P-K", writing "?" for an absent component.
func (n NPK) String() string {
	if n.IsZero() {
		return ""
	}
	part := func(f *float64) string {
		if f == nil {
			return "?"
		}
		return strconv.FormatFloat(*f, 'f', -1, 64)
	}
	return part(n.N) + "-" + part(n.P) + "-" + part(n.K)
}

// MarshalJSON writes the ratio in its text form.
func (n NPK) MarshalJSON() ([]byte, error) {
	if n.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(n.String())
}

// CropRecord describes how to grow one crop, as read from one page.
type CropRecord struct {
	Name                      string   `json:"name"`
	CommonName                string   `json:"common_name,omitempty"`
	ScientificName            string   `json:"scientific_name,omitempty"`
	Category                  string   `json:"category,omitempty"`
	PlantingDepth             string   `json:"planting_depth,omitempty"`
	Spacing                   string   `json:"spacing,omitempty"`
	DaysToMaturity            string   `json:"days_to_maturity,omitempty"`
	WaterNeeds                string   `json:"water_needs,omitempty"`
	IrrigationFrequency       string   `json:"irrigation_frequency,omitempty"`
	SoilPH                    string   `json:"soil_ph,omitempty"`
	SoilType                  string   `json:"soil_type,omitempty"`
	FertilizerNPK             *NPK     `json:"fertilizer_npk,omitempty"`
	FertilizerRecommendations []string `json:"fertilizer_recommendations,omitempty"`
	OrganicFertilizerOptions  []string `json:"organic_fertilizer_options,omitempty"`
	SunRequirements           string   `json:"sun_requirements,omitempty"`
	TemperatureRange          string   `json:"temperature_range,omitempty"`
	HardinessZone             string   `json:"hardiness_zone,omitempty"`
	PlantingSeason            string   `json:"planting_season,omitempty"`
	HarvestTime               string   `json:"harvest_time,omitempty"`

	// Crop-level nutrient requirements, as the sentences that state them.
	NitrogenRequirement   []string `json:"nitrogen_requirement,omitempty"`
	PhosphorusRequirement []string `json:"phosphorus_requirement,omitempty"`
	PotassiumRequirement  []string `json:"potassium_requirement,omitempty"`
	SecondaryNutrients    []string `json:"secondary_nutrients,omitempty"`
	Micronutrients        []string `json:"micronutrients,omitempty"`

	SourceURL  string    `json:"source_url"`
	DataSource string    `json:"data_source"`
	ScrapedAt  time.Time `json:"scraped_at"`
}

// Kind implements Record.
func (c *CropRecord) Kind() Kind { return KindCrop }

// Key implements Record. Crops are keyed by (name, source_url).
func (c *CropRecord) Key() Key { return newKey(KindCrop, c.Name, c.SourceURL) }

// URL implements Record.
func (c *CropRecord) URL() string { return c.SourceURL }

func (c *CropRecord) requiredField() string {
	switch {
	case strings.TrimSpace(c.Name) == "":
		return extract.FieldName
	case strings.TrimSpace(c.SourceURL) == "":
		return "source_url"
	case strings.TrimSpace(c.DataSource) == "":
		return "data_source"
	}
	return ""
}

func (c *CropRecord) stamp(t time.Time) { c.ScrapedAt = t }

// MarshalJSON flattens the record and tags it with its record_type.
func (c *CropRecord) MarshalJSON() ([]byte, error) {
	type alias CropRecord
	return json.Marshal(struct {
		RecordType Kind `json:"record_type"`
		*alias
	}{RecordType: KindCrop, alias: (*alias)(c)})
}

// NutrientRecipeRecord is a fertilizer schedule for one crop at one growth
// stage.
type NutrientRecipeRecord struct {
	CropName      string `json:"crop_name"`
	StageOfGrowth string `json:"stage_of_growth"`

	NitrogenPPM   *float64 `json:"nitrogen_ppm,omitempty"`
	PhosphorusPPM *float64 `json:"phosphorus_ppm,omitempty"`
	PotassiumPPM  *float64 `json:"potassium_ppm,omitempty"`
	CalciumPPM    *float64 `json:"calcium_ppm,omitempty"`
	MagnesiumPPM  *float64 `json:"magnesium_ppm,omitempty"`
	SulfurPPM     *float64 `json:"sulfur_ppm,omitempty"`
	IronPPM       *float64 `json:"iron_ppm,omitempty"`
	ManganesePPM  *float64 `json:"manganese_ppm,omitempty"`
	ZincPPM       *float64 `json:"zinc_ppm,omitempty"`
	CopperPPM     *float64 `json:"copper_ppm,omitempty"`
	BoronPPM      *float64 `json:"boron_ppm,omitempty"`
	MolybdenumPPM *float64 `json:"molybdenum_ppm,omitempty"`

	ECRange           string `json:"ec_range,omitempty"`
	PHRange           string `json:"ph_range,omitempty"`
	ApplicationMethod string `json:"application_method,omitempty"`
	Frequency         string `json:"frequency,omitempty"`
	ReferenceDocument string `json:"reference_document,omitempty"`

	SourceURL  string    `json:"source_url"`
	DataSource string    `json:"data_source"`
	ScrapedAt  time.Time `json:"scraped_at"`
}

// DefaultStage is used when a recipe names no growth stage.
const DefaultStage = "general"

// Kind implements Record.
func (r *NutrientRecipeRecord) Kind() Kind { return KindRecipe }

// Key implements Record. Recipes are keyed by (crop_name, stage_of_growth,
// source_url).
func (r *NutrientRecipeRecord) Key() Key {
	return newKey(KindRecipe, r.CropName, r.Stage(), r.SourceURL)
}

// URL implements Record.
func (r *NutrientRecipeRecord) URL() string { return r.SourceURL }

// Stage returns the growth stage, defaulting to "general".
func (r *NutrientRecipeRecord) Stage() string {
	if strings.TrimSpace(r.StageOfGrowth) == "" {
		return DefaultStage
	}
	return r.StageOfGrowth
}

// PPM returns the nutrient concentrations keyed by field name. Absent
// nutrients are nil.
func (r *NutrientRecipeRecord) PPM() map[string]*float64 {
	return map[string]*float64{
		extract.FieldNitrogenPPM:   r.NitrogenPPM,
		extract.FieldPhosphorusPPM: r.PhosphorusPPM,
		extract.FieldPotassiumPPM:  r.PotassiumPPM,
		extract.FieldCalciumPPM:    r.CalciumPPM,
		extract.FieldMagnesiumPPM:  r.MagnesiumPPM,
		extract.FieldSulfurPPM:     r.SulfurPPM,
		extract.FieldIronPPM:       r.IronPPM,
		extract.FieldManganesePPM:  r.ManganesePPM,
		extract.FieldZincPPM:       r.ZincPPM,
		extract.FieldCopperPPM:     r.CopperPPM,
		extract.FieldBoronPPM:      r.BoronPPM,
		extract.FieldMolybdenumPPM: r.MolybdenumPPM,
	}
}

func (r *NutrientRecipeRecord) requiredField() string {
	switch {
	case strings.TrimSpace(r.CropName) == "":
		return extract.FieldCropName
	case strings.TrimSpace(r.SourceURL) == "":
		return "source_url"
	case strings.TrimSpace(r.DataSource) == "":
		return "data_source"
	}
	return ""
}

func (r *NutrientRecipeRecord) stamp(t time.Time) { r.ScrapedAt = t }

// MarshalJSON flattens the record and tags it with its record_type.
func (r *NutrientRecipeRecord) MarshalJSON() ([]byte, error) {
	type alias NutrientRecipeRecord
	out := struct {
		RecordType Kind `json:"record_type"`
		*alias
	}{RecordType: KindRecipe, alias: (*alias)(r)}
	if out.StageOfGrowth == "" {
		cp := *r
		cp.StageOfGrowth = DefaultStage
		out.alias = (*alias)(&cp)
	}
	return json.Marshal(out)
}

// Outcome reports what a Store did with a record.
type Outcome int

// Store outcomes.
const (
	Inserted Outcome = iota + 1
	SkippedDuplicate
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case SkippedDuplicate:
		return "skipped_duplicate"
	default:
		return "unknown"
	}
}

// Summary counts what happened during one run.
type Summary struct {
	Documents  int `json:"documents"`
	Built      int `json:"built"`
	Validated  int `json:"validated"`
	Rejected   int `json:"rejected"`
	Persisted  int `json:"persisted"`
	Duplicates int `json:"duplicates"`
	Exported   int `json:"exported"`
}
