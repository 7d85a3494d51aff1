package extract

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Crop field names. They double as storage column and snapshot keys.
const (
	FieldName                     = "name"
	FieldCommonName               = "common_name"
	FieldScientificName           = "scientific_name"
	FieldCategory                 = "category"
	FieldPlantingDepth            = "planting_depth"
	FieldSpacing                  = "spacing"
	FieldDaysToMaturity           = "days_to_maturity"
	FieldWaterNeeds               = "water_needs"
	FieldIrrigationFrequency      = "irrigation_frequency"
	FieldSoilPH                   = "soil_ph"
	FieldSoilType                 = "soil_type"
	FieldFertilizerNPK            = "fertilizer_npk"
	FieldFertilizerRecommendation = "fertilizer_recommendations"
	FieldOrganicFertilizer        = "organic_fertilizer_options"
	FieldSunRequirements          = "sun_requirements"
	FieldTemperatureRange         = "temperature_range"
	FieldHardinessZone            = "hardiness_zone"
	FieldPlantingSeason           = "planting_season"
	FieldHarvestTime              = "harvest_time"
	FieldNitrogenRequirement      = "nitrogen_requirement"
	FieldPhosphorusRequirement    = "phosphorus_requirement"
	FieldPotassiumRequirement     = "potassium_requirement"
	FieldSecondaryNutrients       = "secondary_nutrients"
	FieldMicronutrients           = "micronutrients"
)

// Nutrient recipe field names.
const (
	FieldCropName          = "crop_name"
	FieldStageOfGrowth     = "stage_of_growth"
	FieldNitrogenPPM       = "nitrogen_ppm"
	FieldPhosphorusPPM     = "phosphorus_ppm"
	FieldPotassiumPPM      = "potassium_ppm"
	FieldCalciumPPM        = "calcium_ppm"
	FieldMagnesiumPPM      = "magnesium_ppm"
	FieldSulfurPPM         = "sulfur_ppm"
	FieldIronPPM           = "iron_ppm"
	FieldManganesePPM      = "manganese_ppm"
	FieldZincPPM           = "zinc_ppm"
	FieldCopperPPM         = "copper_ppm"
	FieldBoronPPM          = "boron_ppm"
	FieldMolybdenumPPM     = "molybdenum_ppm"
	FieldECRange           = "ec_range"
	FieldPHRange           = "ph_range"
	FieldApplicationMethod = "application_method"
	FieldFrequency         = "frequency"
	FieldReferenceDocument = "reference_document"
)

// PPMFields lists the nutrient concentration fields in macro-to-micro order.
var PPMFields = []string{
	FieldNitrogenPPM, FieldPhosphorusPPM, FieldPotassiumPPM,
	FieldCalciumPPM, FieldMagnesiumPPM, FieldSulfurPPM,
	FieldIronPPM, FieldManganesePPM, FieldZincPPM,
	FieldCopperPPM, FieldBoronPPM, FieldMolybdenumPPM,
}

// NutrientKeywords mark fragments that may hold a nutrient schedule.
var NutrientKeywords = []string{
	"nutrient", "fertilizer", "ppm", "mg/l", "n-p-k", "nitrogen",
	"phosphorus", "potassium", "solution", "concentration", "feeding",
}

var (
	siteSuffix = regexp.MustCompile(`\s*[|»].*$|\s+-\s+(?:Extension|University).*$`)
	binomial   = regexp.MustCompile(`^[A-Z][a-z]+ [a-z]+(?: (?:var\.|subsp\.) [a-z]+)?$`)
)

var categories = map[string]string{
	"vegetable": "Vegetable", "vegetables": "Vegetable",
	"fruit": "Fruit", "fruits": "Fruit",
	"herb": "Herb", "herbs": "Herb",
	"flower": "Flower", "flowers": "Flower",
	"tree": "Tree", "shrub": "Shrub",
}

// titleCase builds a Caser per call; Casers are not safe for concurrent use.
func titleCase(s string) string {
	return cases.Title(language.Und).String(s)
}

func re(expr string) *regexp.Regexp { return regexp.MustCompile(`(?i)` + expr) }

// slugName turns ".../plant/sweet-corn" into "Sweet Corn", falling back to
// the last path segment.
func slugName(u *url.URL) string {
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	slug := ""
	for i, s := range segments {
		if (s == "plant" || s == "plants" || s == "crops") && i+1 < len(segments) {
			slug = segments[i+1]
			break
		}
	}
	if slug == "" {
		slug = segments[len(segments)-1]
	}
	slug = strings.TrimSuffix(slug, ".html")
	slug = strings.NewReplacer("-", " ", "_", " ").Replace(slug)
	return titleCase(strings.TrimSpace(slug))
}

func categoryFromURL(u *url.URL) string {
	for _, s := range strings.Split(strings.ToLower(u.Path), "/") {
		if c, ok := categories[s]; ok {
			return c
		}
	}
	return ""
}

func normalizeCategory(s string) string {
	return categories[strings.ToLower(strings.TrimSpace(s))]
}

// CropFields declares the extraction of every crop attribute.
var CropFields = []FieldSpec{
	{Name: FieldName, Strategies: []Strategy{
		Selector{
			CSS:    []string{"h1.page-title", "h1", ".plant-name", ".crop-name", ".entry-title", "title"},
			Trim:   siteSuffix,
			Reject: []string{"almanac", "calendar", "extension", "university", "home"},
		},
		FromURL{Derive: slugName},
	}},
	{Name: FieldScientificName, Strategies: []Strategy{
		Selector{
			CSS:    []string{".scientific-name", `[class*="scientific"]`, `[class*="latin"]`, "em", "i"},
			Accept: binomial.MatchString,
		},
	}},
	{Name: FieldCategory, Strategies: []Strategy{
		Selector{
			CSS:       []string{".breadcrumb a", ".category", ".plant-type"},
			Normalize: normalizeCategory,
		},
		FromURL{Derive: categoryFromURL},
	}},
	{Name: FieldPlantingDepth, Strategies: []Strategy{
		Selector{CSS: []string{`[class*="planting-depth"]`, `[class*="depth"]`}},
		Pattern{MaxLen: 200, Exprs: []*regexp.Regexp{
			re(`plant(?:ing)?\s+(?:depth|deep)\s*:?\s*([^.]+)`),
			re(`(?:sow|plant)\s+(?:seeds?\s+)?(\d[^.]*?(?:inch(?:es)?|in|cm|centimeters?)\s+deep)`),
			re(`depth\s*:?\s*([^.]+)`),
		}},
	}},
	{Name: FieldSpacing, Strategies: []Strategy{
		Selector{CSS: []string{`[class*="spacing"]`}},
		Pattern{MaxLen: 200, Exprs: []*regexp.Regexp{
			re(`spac(?:ing|e)\s*:?\s*([^.]+)`),
			re(`plant\s+(\d[^.]*?(?:inch(?:es)?|in|cm|feet|ft)\s+apart)`),
			re(`distance\s*:?\s*([^.]+)`),
		}},
	}},
	{Name: FieldDaysToMaturity, Strategies: []Strategy{
		Selector{CSS: []string{`[class*="maturity"]`}},
		Pattern{MaxLen: 100, Exprs: []*regexp.Regexp{
			re(`(?:days?\s+to\s+)?matur(?:ity|e)\s*:?\s*(\d[^.]*?days?)`),
			re(`harvest\s+in\s+(\d[^.]*?days?)`),
			re(`ready\s+in\s+(\d[^.]*?days?)`),
		}},
	}},
	{Name: FieldWaterNeeds, Strategies: []Strategy{
		Selector{CSS: []string{`[class*="water-needs"]`, `[class*="watering"]`}},
		Keyword{Words: []string{"water", "watering", "irrigation", "moisture", "inches per week"}},
		Pattern{MaxLen: 200, Exprs: []*regexp.Regexp{
			re(`water(?:ing)?\s*:?\s*([^.]+)`),
			re(`moisture\s*:?\s*([^.]+)`),
			re(`irrigation\s*:?\s*([^.]+)`),
		}},
	}},
	{Name: FieldIrrigationFrequency, Strategies: []Strategy{
		Pattern{MaxLen: 200, Exprs: []*regexp.Regexp{
			re(`water\s+([^.]*?(?:daily|weekly|twice|once|every)[^.]*)`),
			re(`irrigat(?:e|ion)\s+([^.]*?(?:daily|weekly|twice|once|every)[^.]*)`),
		}},
	}},
	{Name: FieldSoilPH, Strategies: []Strategy{
		Selector{CSS: []string{`[class*="soil-ph"]`}},
		Pattern{Numeric: true, Exprs: []*regexp.Regexp{
			re(`\bph\b[^\d]{0,40}?(\d+(?:\.\d+)?)\s*(?:[-–]|to|and)\s*(\d+(?:\.\d+)?)`),
		}},
		Pattern{MaxLen: 100, Exprs: []*regexp.Regexp{
			re(`soil\s+ph\s*:?\s*([^.]+)`),
			re(`\bph\s*:?\s*([^.]+)`),
			re(`acidity\s*:?\s*([^.]+)`),
		}},
	}},
	{Name: FieldSoilType, Strategies: []Strategy{
		Selector{CSS: []string{`[class*="soil-type"]`}},
		Pattern{MaxLen: 200, Exprs: []*regexp.Regexp{
			re(`soil\s+type\s*:?\s*([^.]+)`),
			re(`soil\s*:?\s*([^.]*?(?:clay|sand|sandy|loam|loamy|well[\s-]drain\w*)[^.]*)`),
			re(`growing\s+medium\s*:?\s*([^.]+)`),
		}},
	}},
	{Name: FieldFertilizerNPK, Strategies: []Strategy{
		Pattern{Numeric: true, Exprs: []*regexp.Regexp{
			re(`\bn[-:]?p[-:]?k\b\s*(?:ratio)?\s*:?\s*(\d+(?:\.\d+)?)\s*[-:]\s*(\d+(?:\.\d+)?)\s*[-:]\s*(\d+(?:\.\d+)?)`),
			re(`\b(\d{1,2}(?:\.\d+)?)-(\d{1,2}(?:\.\d+)?)-(\d{1,2}(?:\.\d+)?)\b`),
			re(`nitrogen\s*:?\s*(\d+(?:\.\d+)?)[^.]*?phosph(?:orus|ate)\s*:?\s*(\d+(?:\.\d+)?)[^.]*?potassium\s*:?\s*(\d+(?:\.\d+)?)`),
		}},
	}},
	{Name: FieldFertilizerRecommendation, Multi: true, Strategies: []Strategy{
		Selector{CSS: []string{`[class*="fertiliz"]`, ".feeding", ".nutrition"}},
		Keyword{Words: []string{
			"fertilizer", "fertilize", "fertiliser", "feed", "feeding", "nutrient",
			"nutrition", "compost", "manure", "npk", "nitrogen", "phosphorus", "potassium",
		}},
		Pattern{MaxLen: 300, Exprs: []*regexp.Regexp{
			re(`fertili[sz]er?\s*:?\s*([^.]+)`),
			re(`feed(?:ing)?\s*:?\s*([^.]+)`),
		}},
	}},
	{Name: FieldOrganicFertilizer, Multi: true, Strategies: []Strategy{
		Pattern{MaxLen: 200, Exprs: []*regexp.Regexp{
			re(`organic\s+fertili[sz]er\s*:?\s*([^.]+)`),
			re(`compost\s*:?\s*([^.]+)`),
			re(`manure\s*:?\s*([^.]+)`),
			re(`organic\s+matter\s*:?\s*([^.]+)`),
		}},
	}},
	{Name: FieldSunRequirements, Strategies: []Strategy{
		Selector{CSS: []string{`[class*="sun-exposure"]`, `[class*="sunlight"]`}},
		Pattern{MaxLen: 100, Exprs: []*regexp.Regexp{
			re(`\b(?:full|partial)\s+(?:sun|shade)\b`),
			re(`sun(?:light)?\s*:\s*([^.]+)`),
			re(`light\s*:\s*([^.]+)`),
		}},
	}},
	{Name: FieldTemperatureRange, Strategies: []Strategy{
		Pattern{MaxLen: 100, Exprs: []*regexp.Regexp{
			re(`temperature\s*:?\s*([^.]+)`),
			re(`(\d+\s*[-–]\s*\d+\s*°?\s*[CF])\b`),
			re(`\b(?:warm|cool)[\s-]season\b|\bcold[\s-]hardy\b`),
		}},
	}},
	{Name: FieldHardinessZone, Strategies: []Strategy{
		Pattern{MaxLen: 20, Exprs: []*regexp.Regexp{
			re(`(?:hardiness\s+)?zones?\s*:?\s*(\d+[ab]?\s*[-–]\s*\d+[ab]?)`),
			re(`usda\s+(?:zone\s+)?(\d+[ab]?\s*[-–]\s*\d+[ab]?)`),
			re(`\bzone\s+(\d+[ab]?)\b`),
		}},
	}},
	{Name: FieldPlantingSeason, Strategies: []Strategy{
		Pattern{MaxLen: 200, Exprs: []*regexp.Regexp{
			re(`plant(?:ing)?\s+(?:time|season)\s*:?\s*([^.]+)`),
			re(`\bsow\s*:\s*([^.]+)`),
			re(`start\s+(?:seeds?\s+)?(?:indoors\s+)?(?:in|during)\s+([^.]+)`),
		}},
	}},
	{Name: FieldHarvestTime, Strategies: []Strategy{
		Pattern{MaxLen: 200, Exprs: []*regexp.Regexp{
			re(`harvest\s*:\s*([^.]+)`),
			re(`ready\s+(?:to\s+harvest|for\s+harvest)\s*:?\s*([^.]+)`),
			re(`harvest\s+(?:when|in|after)\s+([^.]+)`),
			re(`\bpick\s*:\s*([^.]+)`),
		}},
	}},
	requirementSpec(FieldNitrogenRequirement, `nitrogen|nitrate`, `N`),
	requirementSpec(FieldPhosphorusRequirement, `phosphorus|phosphate`, `P`),
	requirementSpec(FieldPotassiumRequirement, `potassium|potash`, `K`),
	requirementSpec(FieldSecondaryNutrients, `calcium|magnesium|sulfur|sulphur`, `Ca|Mg|S`),
	requirementSpec(FieldMicronutrients, `iron|manganese|zinc|copper|boron|molybdenum`, `Fe|Mn|Zn|Cu|B|Mo`),
}

// requirementSpec collects the sentences that state a quantity for a
// nutrient group, e.g. "Side-dress with 2 lb of nitrogen per 1000 sq ft".
func requirementSpec(name, words, symbols string) FieldSpec {
	return FieldSpec{Name: name, Multi: true, Strategies: []Strategy{
		Sentence{Match: regexp.MustCompile(`\b(?:(?i:` + words + `)|` + symbols + `)\b`)},
	}}
}

func ppmSpec(name string) FieldSpec {
	return FieldSpec{Name: name, Strategies: []Strategy{Nutrient{Field: name}}}
}

var stageRe = re(`\b(seedlings?|germination|emergence|transplant(?:ing)?|vegetative|flowering|bloom(?:ing)?|fruiting|fruit\s+set)\b`)

// RecipeFields declares the extraction of nutrient recipe attributes from a
// section of a page. The crop name comes from the enclosing page.
var RecipeFields = []FieldSpec{
	{Name: FieldStageOfGrowth, Strategies: []Strategy{
		Pattern{Exprs: []*regexp.Regexp{stageRe}, Normalize: NormalizeStage},
	}},
	ppmSpec(FieldNitrogenPPM),
	ppmSpec(FieldPhosphorusPPM),
	ppmSpec(FieldPotassiumPPM),
	ppmSpec(FieldCalciumPPM),
	ppmSpec(FieldMagnesiumPPM),
	ppmSpec(FieldSulfurPPM),
	ppmSpec(FieldIronPPM),
	ppmSpec(FieldManganesePPM),
	ppmSpec(FieldZincPPM),
	ppmSpec(FieldCopperPPM),
	ppmSpec(FieldBoronPPM),
	ppmSpec(FieldMolybdenumPPM),
	{Name: FieldECRange, Strategies: []Strategy{
		Pattern{Numeric: true, Exprs: []*regexp.Regexp{
			re(`\bEC\b[^\d]{0,20}(\d+(?:\.\d+)?)\s*[-–]\s*(\d+(?:\.\d+)?)`),
			re(`electrical\s+conductivity[^\d]{0,20}(\d+(?:\.\d+)?)\s*[-–]\s*(\d+(?:\.\d+)?)`),
			re(`(\d+(?:\.\d+)?)\s*[-–]\s*(\d+(?:\.\d+)?)\s*(?:mS|dS|µS)`),
		}},
	}},
	{Name: FieldPHRange, Strategies: []Strategy{
		Pattern{Numeric: true, Exprs: []*regexp.Regexp{
			re(`\bpH\b[^\d]{0,20}(\d+(?:\.\d+)?)\s*[-–]\s*(\d+(?:\.\d+)?)`),
			re(`(\d+(?:\.\d+)?)\s*[-–]\s*(\d+(?:\.\d+)?)\s*pH\b`),
		}},
	}},
	{Name: FieldApplicationMethod, Strategies: []Strategy{
		Pattern{
			Exprs:     []*regexp.Regexp{re(`\b(?:foliar|fertigation|hydroponic|broadcast|side-dress|top-dress|banded|injection)\b`)},
			Normalize: titleCase,
		},
	}},
	{Name: FieldFrequency, Strategies: []Strategy{
		Pattern{Exprs: []*regexp.Regexp{
			re(`\b(?:daily|weekly|monthly|bi-weekly|every\s+\d+\s+(?:days?|weeks?|months?)|(?:once|twice)\s+(?:per|a)\s+(?:week|month))\b`),
		}},
	}},
	{Name: FieldReferenceDocument, Strategies: []Strategy{
		Selector{CSS: []string{"title"}},
	}},
}

// NormalizeStage maps growth-stage wording onto seedling, vegetative,
// flowering, fruiting or general.
func NormalizeStage(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "":
		return "general"
	case strings.HasPrefix(s, "seedling"), s == "germination", s == "emergence", strings.HasPrefix(s, "transplant"):
		return "seedling"
	case s == "vegetative":
		return "vegetative"
	case s == "flowering", strings.HasPrefix(s, "bloom"):
		return "flowering"
	case s == "fruiting", strings.HasPrefix(s, "fruit"):
		return "fruiting"
	default:
		return "general"
	}
}
