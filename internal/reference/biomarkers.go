package reference

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Biomarker describes one canonical lab measurement: its unit, optimal range,
// and the aliases documents use for it.
type Biomarker struct {
	Min     float64
	Max     float64
	Unit    string
	Aliases []string
}

// Range-classification statuses and severities.
const (
	StatusLow     = "low"
	StatusOptimal = "optimal"
	StatusHigh    = "high"

	SeverityMild     = "mild"
	SeverityModerate = "moderate"
	SeveritySevere   = "severe"
)

// Catalog maps canonical biomarker names to their reference data. Every alias
// resolves to exactly one canonical name; lookups go through NormalizeName.
var Catalog = map[string]Biomarker{
	// Vitamins (fat-soluble)
	"vitamin_d":      {30, 100, "ng/mL", []string{"25-oh-d", "25ohd", "25-hydroxyvitamin-d", "calcidiol", "vitamin-d-25-oh"}},
	"vitamin_d_1_25": {20, 79, "pg/mL", []string{"1,25-dihydroxyvitamin-d", "calcitriol", "active-vitamin-d"}},
	"vitamin_a":      {30, 65, "mcg/dL", []string{"retinol", "retinol-binding-protein"}},
	"vitamin_e":      {12, 20, "mg/L", []string{"tocopherol", "alpha-tocopherol", "gamma-tocopherol"}},
	"vitamin_k":      {0.4, 2.0, "ng/mL", []string{"phylloquinone", "vitamin-k1"}},
	"vitamin_k2":     {0.5, 5.0, "ng/mL", []string{"menaquinone", "mk-7", "mk-4"}},

	// Vitamins (water-soluble)
	"vitamin_c":          {11, 20, "mg/L", []string{"ascorbic-acid", "ascorbate"}},
	"thiamine":           {70, 180, "nmol/L", []string{"b1", "vitamin-b1", "thiamin"}},
	"riboflavin":         {6.2, 39, "nmol/L", []string{"b2", "vitamin-b2"}},
	"niacin":             {14, 50, "mcg/mL", []string{"b3", "vitamin-b3", "nicotinic-acid", "nicotinamide"}},
	"pantothenic_acid":   {1.8, 6.0, "mg/L", []string{"b5", "vitamin-b5", "pantothenate"}},
	"pyridoxine":         {20, 125, "nmol/L", []string{"b6", "vitamin-b6", "pyridoxal", "pyridoxal-5-phosphate", "p5p"}},
	"biotin":             {400, 1200, "ng/L", []string{"b7", "vitamin-b7", "vitamin-h"}},
	"folate":             {5.4, 24, "ng/mL", []string{"folic-acid", "vitamin-b9", "b9", "methylfolate"}},
	"folate_rbc":         {280, 1500, "ng/mL", []string{"red-cell-folate", "rbc-folate"}},
	"vitamin_b12":        {300, 900, "pg/mL", []string{"b12", "cobalamin", "vitamin-b12", "methylcobalamin"}},
	"methylmalonic_acid": {0, 0.4, "umol/L", []string{"mma", "methylmalonate"}},
	"choline":            {7, 20, "umol/L", []string{"phosphatidylcholine"}},

	// Minerals
	"calcium":         {8.5, 10.5, "mg/dL", []string{"ca", "serum-calcium"}},
	"calcium_ionized": {4.5, 5.3, "mg/dL", []string{"ionized-calcium", "free-calcium"}},
	"magnesium":       {1.8, 2.6, "mg/dL", []string{"serum-magnesium"}},
	"magnesium_rbc":   {4.2, 6.8, "mg/dL", []string{"rbc-magnesium", "red-blood-cell-magnesium"}},
	"phosphorus":      {2.5, 4.5, "mg/dL", []string{"phosphate", "po4"}},
	"potassium":       {3.5, 5.0, "mEq/L", []string{"serum-potassium"}},
	"sodium":          {136, 145, "mEq/L", []string{"na", "serum-sodium"}},
	"chloride":        {96, 106, "mEq/L", []string{"serum-chloride"}},
	"iron":            {60, 170, "mcg/dL", []string{"fe", "serum-iron"}},
	"ferritin":        {30, 400, "ng/mL", []string{"iron-stores", "serum-ferritin"}},
	"tibc":            {250, 450, "mcg/dL", []string{"total-iron-binding-capacity"}},
	"transferrin":     {200, 360, "mg/dL", []string{"transferrin-saturation"}},
	"zinc":            {70, 120, "mcg/dL", []string{"zn", "serum-zinc"}},
	"zinc_rbc":        {11, 18, "mg/L", []string{"rbc-zinc", "red-cell-zinc"}},
	"copper":          {70, 140, "mcg/dL", []string{"cu", "serum-copper"}},
	"ceruloplasmin":   {20, 40, "mg/dL", []string{"copper-binding-protein"}},
	"selenium":        {120, 300, "mcg/L", []string{"se", "serum-selenium"}},
	"manganese":       {0.4, 2.0, "mcg/L", []string{"mn"}},
	"chromium":        {0.2, 0.5, "mcg/L", []string{"cr"}},
	"molybdenum":      {0.5, 2.0, "mcg/L", []string{"mo"}},
	"iodine":          {40, 92, "mcg/L", []string{"urinary-iodine"}},

	// Metabolic markers
	"glucose":        {70, 100, "mg/dL", []string{"blood-sugar", "fasting-glucose", "fbg"}},
	"glucose_pp":     {70, 140, "mg/dL", []string{"postprandial-glucose", "2hr-glucose"}},
	"hemoglobin_a1c": {4.0, 5.6, "%", []string{"hba1c", "a1c", "glycated-hemoglobin"}},
	"insulin":        {2.6, 24.9, "uIU/mL", []string{"fasting-insulin"}},
	"c_peptide":      {0.8, 3.2, "ng/mL", []string{"connecting-peptide"}},
	"homa_ir":        {0.5, 2.0, "ratio", []string{"insulin-resistance", "homa"}},

	// Lipid panel
	"total_cholesterol": {125, 200, "mg/dL", []string{"cholesterol", "tc"}},
	"ldl_cholesterol":   {0, 100, "mg/dL", []string{"ldl", "ldl-c", "bad-cholesterol"}},
	"hdl_cholesterol":   {40, 100, "mg/dL", []string{"hdl", "hdl-c", "good-cholesterol"}},
	"vldl_cholesterol":  {5, 40, "mg/dL", []string{"vldl", "vldl-c"}},
	"triglycerides":     {0, 150, "mg/dL", []string{"tg", "trigs"}},
	"apolipoprotein_a1": {110, 205, "mg/dL", []string{"apo-a1", "apoa1"}},
	"apolipoprotein_b":  {55, 140, "mg/dL", []string{"apo-b", "apob"}},
	"lipoprotein_a":     {0, 30, "mg/dL", []string{"lp(a)", "lpa"}},

	// Liver function
	"alt":                  {10, 40, "U/L", []string{"alanine-aminotransferase", "sgpt"}},
	"ast":                  {10, 40, "U/L", []string{"aspartate-aminotransferase", "sgot"}},
	"alkaline_phosphatase": {44, 147, "U/L", []string{"alp", "alk-phos"}},
	"ggt":                  {0, 65, "U/L", []string{"gamma-glutamyl-transferase", "ggtp"}},
	"bilirubin_total":      {0.1, 1.2, "mg/dL", []string{"total-bilirubin"}},
	"bilirubin_direct":     {0, 0.3, "mg/dL", []string{"conjugated-bilirubin"}},
	"albumin":              {3.5, 5.0, "g/dL", []string{"serum-albumin"}},
	"total_protein":        {6.0, 8.3, "g/dL", []string{"tp", "serum-protein"}},

	// Kidney function
	"creatinine": {0.6, 1.2, "mg/dL", []string{"serum-creatinine"}},
	"bun":        {7, 20, "mg/dL", []string{"blood-urea-nitrogen", "urea"}},
	"egfr":       {90, 120, "mL/min/1.73m2", []string{"estimated-gfr", "glomerular-filtration-rate"}},
	"uric_acid":  {3.5, 7.2, "mg/dL", []string{"urate"}},

	// Complete blood count
	"hemoglobin":  {13.5, 17.5, "g/dL", []string{"hgb", "hb"}},
	"hematocrit":  {41, 53, "%", []string{"hct", "packed-cell-volume"}},
	"rbc":         {4.5, 5.9, "million/uL", []string{"red-blood-cells", "erythrocytes"}},
	"mcv":         {80, 100, "fL", []string{"mean-corpuscular-volume"}},
	"mch":         {27, 33, "pg", []string{"mean-corpuscular-hemoglobin"}},
	"mchc":        {32, 36, "g/dL", []string{"mean-corpuscular-hemoglobin-concentration"}},
	"wbc":         {4.5, 11.0, "thousand/uL", []string{"white-blood-cells", "leukocytes"}},
	"neutrophils": {45, 70, "%", []string{"neut", "pmn"}},
	"lymphocytes": {20, 45, "%", []string{"lymph"}},
	"monocytes":   {2, 10, "%", []string{"mono"}},
	"eosinophils": {1, 4, "%", []string{"eos"}},
	"basophils":   {0, 2, "%", []string{"baso"}},
	"platelets":   {150, 400, "thousand/uL", []string{"plt", "thrombocytes"}},

	// Thyroid panel
	"tsh":        {0.5, 4.5, "mIU/L", []string{"thyroid-stimulating-hormone", "thyrotropin"}},
	"free_t4":    {0.9, 1.7, "ng/dL", []string{"ft4", "free-thyroxine"}},
	"free_t3":    {2.3, 4.2, "pg/mL", []string{"ft3", "free-triiodothyronine"}},
	"total_t4":   {4.5, 12.0, "mcg/dL", []string{"t4", "thyroxine"}},
	"total_t3":   {80, 200, "ng/dL", []string{"t3", "triiodothyronine"}},
	"reverse_t3": {9.2, 24.1, "ng/dL", []string{"rt3"}},
	"anti_tpo":   {0, 34, "IU/mL", []string{"thyroid-peroxidase-antibody", "tpo-ab"}},

	// Inflammatory markers
	"crp":    {0, 3.0, "mg/L", []string{"c-reactive-protein"}},
	"hs_crp": {0, 1.0, "mg/L", []string{"high-sensitivity-crp", "cardio-crp"}},
	"esr":    {0, 20, "mm/hr", []string{"sed-rate", "erythrocyte-sedimentation-rate"}},

	// Hormones
	"testosterone_total": {300, 1000, "ng/dL", []string{"testosterone", "total-testosterone"}},
	"testosterone_free":  {8.7, 25.1, "pg/mL", []string{"free-testosterone"}},
	"estradiol":          {20, 55, "pg/mL", []string{"e2", "estrogen"}},
	"progesterone":       {0.2, 1.4, "ng/mL", []string{"prog"}},
	"cortisol_morning":   {6, 23, "mcg/dL", []string{"am-cortisol", "morning-cortisol"}},
	"dhea_s":             {80, 560, "mcg/dL", []string{"dhea-sulfate", "dheas"}},

	// Cardiovascular markers
	"homocysteine": {5, 15, "umol/L", []string{"hcy"}},

	// Nutritional markers
	"coq10":         {0.5, 1.5, "mg/L", []string{"coenzyme-q10", "ubiquinone"}},
	"omega_3_index": {8, 12, "%", []string{"omega-3-index"}},
}

// aliasIndex is the reverse index alias -> canonical name, built once so
// resolution never scans the catalog.
var aliasIndex = func() map[string]string {
	idx := make(map[string]string, len(Catalog)*3)
	for canonical, bm := range Catalog {
		for _, alias := range bm.Aliases {
			idx[collapseName(alias)] = canonical
		}
	}
	return idx
}()

// fuzzyNames covers common abbreviations that are neither canonical names nor
// catalog aliases after collapsing.
var fuzzyNames = map[string]string{
	"vitamin_d_25_oh":       "vitamin_d",
	"25_hydroxyvitamin_d":   "vitamin_d",
	"vit_d":                 "vitamin_d",
	"b12":                   "vitamin_b12",
	"cobalamin":             "vitamin_b12",
	"hgb":                   "hemoglobin",
	"hb":                    "hemoglobin",
	"hct":                   "hematocrit",
	"chol":                  "total_cholesterol",
	"trig":                  "triglycerides",
	"hdl_c":                 "hdl_cholesterol",
	"ldl_c":                 "ldl_cholesterol",
}

var nonAlphanumericRx = regexp.MustCompile(`[^a-z0-9]+`)

func collapseName(name string) string {
	collapsed := nonAlphanumericRx.ReplaceAllString(strings.ToLower(name), "_")
	return strings.Trim(collapsed, "_")
}

// NormalizeName resolves a raw biomarker label to its canonical catalog name.
// Resolution order: direct match, alias index, fuzzy table. The second return
// is false for names that resolve to nothing.
func NormalizeName(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	collapsed := collapseName(name)
	if collapsed == "" {
		return "", false
	}
	if _, ok := Catalog[collapsed]; ok {
		return collapsed, true
	}
	if canonical, ok := aliasIndex[collapsed]; ok {
		return canonical, true
	}
	if canonical, ok := fuzzyNames[collapsed]; ok {
		return canonical, true
	}
	return "", false
}

var numericRx = regexp.MustCompile(`(\d+\.?\d*)`)

// ExtractNumericValue pulls the first decimal number out of a raw value
// string, tolerating comparison operators ("<0.4", ">= 12") and units.
func ExtractNumericValue(raw string) (float64, bool) {
	if raw == "" {
		return 0, false
	}
	cleaned := strings.NewReplacer("<", "", ">", "", "≤", "", "≥", "").Replace(raw)
	match := numericRx.FindString(strings.TrimSpace(cleaned))
	if match == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// RangeStatus classifies value against the biomarker's optimal range.
func (b Biomarker) RangeStatus(value float64) string {
	switch {
	case value < b.Min:
		return StatusLow
	case value > b.Max:
		return StatusHigh
	default:
		return StatusOptimal
	}
}

// Severity grades an out-of-range value by percentage deviation from the
// nearest bound. In-range values grade as mild.
func (b Biomarker) Severity(value float64) string {
	var deviation float64
	switch {
	case value < b.Min && b.Min > 0:
		deviation = (b.Min - value) / b.Min * 100
	case value > b.Max && b.Max > 0:
		deviation = (value - b.Max) / b.Max * 100
	}
	switch {
	case deviation > 50:
		return SeveritySevere
	case deviation > 25:
		return SeverityModerate
	default:
		return SeverityMild
	}
}

// ReferenceRange renders the optimal range for display, e.g. "30-100 ng/mL".
func (b Biomarker) ReferenceRange() string {
	return fmt.Sprintf("%g-%g %s", b.Min, b.Max, b.Unit)
}
