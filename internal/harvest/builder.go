package harvest

import (
	"net/url"
	"strings"

	"github.com/JakeFAU/cropharvest/internal/corpus"
	"github.com/JakeFAU/cropharvest/internal/extract"
)

// Builder turns extracted fields into a record. It never validates; a record
// with a blank name is still built and left for Validator to reject.
type Builder struct{}

// Build returns a *NutrientRecipeRecord when fields carry a growth stage or
// any ppm value, and a *CropRecord otherwise. SourceURL and DataSource always
// come from meta.
func (Builder) Build(v corpus.View, fields extract.Fields, meta Metadata) Record {
	if isRecipe(fields) {
		return buildRecipe(v, fields, meta)
	}
	return buildCrop(fields, meta)
}

func isRecipe(fields extract.Fields) bool {
	if fields.Has(extract.FieldStageOfGrowth) {
		return true
	}
	for _, name := range extract.PPMFields {
		if fields.Has(name) {
			return true
		}
	}
	return false
}

func buildCrop(f extract.Fields, meta Metadata) *CropRecord {
	rec := &CropRecord{
		Name:                      f.Text(extract.FieldName),
		CommonName:                f.Text(extract.FieldCommonName),
		ScientificName:            f.Text(extract.FieldScientificName),
		Category:                  f.Text(extract.FieldCategory),
		PlantingDepth:             f.Text(extract.FieldPlantingDepth),
		Spacing:                   f.Text(extract.FieldSpacing),
		DaysToMaturity:            f.Text(extract.FieldDaysToMaturity),
		WaterNeeds:                f.Text(extract.FieldWaterNeeds),
		IrrigationFrequency:       f.Text(extract.FieldIrrigationFrequency),
		SoilPH:                    f.Text(extract.FieldSoilPH),
		SoilType:                  f.Text(extract.FieldSoilType),
		FertilizerRecommendations: f.List(extract.FieldFertilizerRecommendation),
		OrganicFertilizerOptions:  f.List(extract.FieldOrganicFertilizer),
		SunRequirements:           f.Text(extract.FieldSunRequirements),
		TemperatureRange:          f.Text(extract.FieldTemperatureRange),
		HardinessZone:             f.Text(extract.FieldHardinessZone),
		PlantingSeason:            f.Text(extract.FieldPlantingSeason),
		HarvestTime:               f.Text(extract.FieldHarvestTime),
		NitrogenRequirement:       f.List(extract.FieldNitrogenRequirement),
		PhosphorusRequirement:     f.List(extract.FieldPhosphorusRequirement),
		PotassiumRequirement:      f.List(extract.FieldPotassiumRequirement),
		SecondaryNutrients:        f.List(extract.FieldSecondaryNutrients),
		Micronutrients:            f.List(extract.FieldMicronutrients),
		SourceURL:                 meta.SourceURL,
		DataSource:                meta.DataSource,
	}
	if rec.CommonName == "" {
		rec.CommonName = rec.Name
	}
	if f.Has(extract.FieldFertilizerNPK) {
		if npk := ParseNPK(f.Text(extract.FieldFertilizerNPK)); !npk.IsZero() {
			rec.FertilizerNPK = &npk
		}
	}
	return rec
}

func buildRecipe(v corpus.View, f extract.Fields, meta Metadata) *NutrientRecipeRecord {
	rec := &NutrientRecipeRecord{
		CropName:          f.Text(extract.FieldCropName),
		StageOfGrowth:     extract.NormalizeStage(f.Text(extract.FieldStageOfGrowth)),
		NitrogenPPM:       f.Float(extract.FieldNitrogenPPM),
		PhosphorusPPM:     f.Float(extract.FieldPhosphorusPPM),
		PotassiumPPM:      f.Float(extract.FieldPotassiumPPM),
		CalciumPPM:        f.Float(extract.FieldCalciumPPM),
		MagnesiumPPM:      f.Float(extract.FieldMagnesiumPPM),
		SulfurPPM:         f.Float(extract.FieldSulfurPPM),
		IronPPM:           f.Float(extract.FieldIronPPM),
		ManganesePPM:      f.Float(extract.FieldManganesePPM),
		ZincPPM:           f.Float(extract.FieldZincPPM),
		CopperPPM:         f.Float(extract.FieldCopperPPM),
		BoronPPM:          f.Float(extract.FieldBoronPPM),
		MolybdenumPPM:     f.Float(extract.FieldMolybdenumPPM),
		ECRange:           f.Text(extract.FieldECRange),
		PHRange:           f.Text(extract.FieldPHRange),
		ApplicationMethod: f.Text(extract.FieldApplicationMethod),
		Frequency:         f.Text(extract.FieldFrequency),
		ReferenceDocument: f.Text(extract.FieldReferenceDocument),
		SourceURL:         meta.SourceURL,
		DataSource:        meta.DataSource,
	}
	if rec.ReferenceDocument == "" && v != nil {
		rec.ReferenceDocument = v.Title()
	}
	return rec
}

// extensionSources maps host suffixes to the publisher credited on records.
var extensionSources = []struct {
	suffix string
	label  string
}{
	{suffix: "psu.edu", label: "Penn State Extension"},
	{suffix: "purdue.edu", label: "Purdue Extension"},
	{suffix: "umn.edu", label: "University of Minnesota Extension"},
	{suffix: "illinois.edu", label: "University of Illinois Extension"},
	{suffix: "usu.edu", label: "Utah State University Extension"},
	{suffix: "almanac.com", label: "almanac.com"},
}

// DataSourceLabel names the publisher of rawURL: a friendly name for known
// hosts, "University Extension" for other .edu hosts and the bare host
// otherwise.
func DataSourceLabel(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for _, s := range extensionSources {
		if host == s.suffix || strings.HasSuffix(host, "."+s.suffix) {
			return s.label
		}
	}
	if strings.HasSuffix(host, ".edu") {
		return "University Extension"
	}
	return host
}

// MetadataFor derives record metadata from a page URL.
func MetadataFor(rawURL string) Metadata {
	return Metadata{SourceURL: rawURL, DataSource: DataSourceLabel(rawURL)}
}
