package services

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/fsupp/healthdataflow/internal/models"
	"github.com/fsupp/healthdataflow/internal/reference"
)

// ParseText extracts genetic markers and biomarkers from machine-readable
// text. It runs multiple independent strategies and unions their results;
// a malformed line never fails the whole parse.
func ParseText(text, fileType string) *models.ExtractionResult {
	result := models.NewExtractionResult()
	result.RawText = truncate(text, rawTextLimit)
	result.SourceCompany = detectSourceCompany(text)
	result.TestDate = extractTestDate(text)

	if fileType == "csv" || fileType == "text/csv" {
		parseDelimited(text, result)
	} else {
		lines := nonEmptyLines(text)
		if hasTabSeparatedGenetic(lines) {
			parseTabularGenetic(lines, result)
		} else {
			parseFreeform(text, result)
		}
		extractBiomarkers(text, result)
	}

	result.GeneticMarkers = dedupeMarkers(result.GeneticMarkers)

	// A narrative third-party report reads interpretively and carries few raw
	// markers; downstream consumers treat it differently from a raw export.
	if hasInterpretiveLanguage(text) && len(result.GeneticMarkers) < 10 && len(result.Biomarkers) < 10 {
		result.IsInterpretedReport = true
		result.InterpretationSummary = "This appears to be an interpreted report rather than raw data."
	}
	return result
}

// --- Delimited/tabular strategy ---

var geneticHeaderTokens = []string{"rsid", "snp", "rs#", "variant", "genotype", "allele"}

var (
	rsidTokenRx     = regexp.MustCompile(`^(?i:rs\d+)$`)
	rsidAnywhereRx  = regexp.MustCompile(`(?i)(rs\d{4,})`)
	genotypeTokenRx = regexp.MustCompile(`^(?i:[ACGT]{1,2})$`)
	genotypePairRx  = regexp.MustCompile(`^(?i:[ACGT][/\-][ACGT])$`)
)

// parseDelimited handles CSV content: a genetic header routes rows through
// rsid/genotype token scanning, anything else pairs name and value columns.
func parseDelimited(text string, result *models.ExtractionResult) {
	lines := nonEmptyLines(text)
	if len(lines) == 0 {
		return
	}

	headers := splitFields(strings.ToLower(lines[0]))
	isGenetic := false
	for _, h := range headers {
		for _, token := range geneticHeaderTokens {
			if strings.Contains(h, token) {
				isGenetic = true
			}
		}
	}

	for _, line := range lines[1:] {
		fields := splitFields(line)
		if isGenetic {
			rsid, genotype := scanRowForVariant(fields)
			if rsid != "" && genotype != "" && reference.IsTargetVariant(rsid) {
				result.GeneticMarkers = append(result.GeneticMarkers, models.GeneticMarker{RSID: rsid, Genotype: genotype})
			}
			continue
		}
		if len(fields) >= 2 {
			name, ok := reference.NormalizeName(fields[0])
			if !ok {
				continue
			}
			value, ok := reference.ExtractNumericValue(fields[1])
			if !ok {
				continue
			}
			result.Biomarkers[name] = fmt.Sprintf("%g %s", value, reference.Catalog[name].Unit)
		}
	}
}

// scanRowForVariant finds an rsid token and a genotype-looking token anywhere
// in the row, in either column order.
func scanRowForVariant(fields []string) (rsid, genotype string) {
	for _, field := range fields {
		field = strings.TrimSpace(field)
		switch {
		case rsidTokenRx.MatchString(field):
			rsid = strings.ToLower(field)
		case genotypeTokenRx.MatchString(field):
			genotype = strings.ToUpper(field)
		case genotypePairRx.MatchString(field):
			genotype = strings.ToUpper(field[:1] + field[2:])
		}
	}
	return rsid, genotype
}

// parseTabularGenetic handles raw-export TXT files (23andMe and similar):
// one tab-separated row per variant, rsid first.
func parseTabularGenetic(lines []string, result *models.ExtractionResult) {
	for _, line := range lines {
		lower := strings.ToLower(line)
		if strings.HasPrefix(line, "#") || strings.Contains(lower, "rsid") || strings.Contains(lower, "chromosome") {
			continue // header
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			continue
		}
		rsid := strings.ToLower(strings.TrimSpace(fields[0]))
		if !rsidTokenRx.MatchString(rsid) {
			continue
		}
		var genotype string
		for _, field := range fields[1:] {
			field = strings.TrimSpace(field)
			if genotypeTokenRx.MatchString(field) {
				genotype = strings.ToUpper(field)
				break
			}
			if genotypePairRx.MatchString(field) {
				genotype = strings.ToUpper(field[:1] + field[2:])
				break
			}
		}
		if genotype != "" && reference.IsTargetVariant(rsid) {
			result.GeneticMarkers = append(result.GeneticMarkers, models.GeneticMarker{RSID: rsid, Genotype: genotype})
		}
	}
}

func hasTabSeparatedGenetic(lines []string) bool {
	for _, line := range lines {
		if strings.Contains(line, "\t") && rsidAnywhereRx.MatchString(line) {
			return true
		}
	}
	return false
}

// --- Line-scan strategy ---

// genotypeStrategy tries to recover a genotype for rsid from one line.
// Strategies are tried in a fixed priority order; the first match wins.
type genotypeStrategy struct {
	name string
	fn   func(line, rsid string) (string, bool)
}

var lineStrategies = []genotypeStrategy{
	{"table-row", tableRowGenotype},
	{"inline", inlineGenotype},
	{"parenthetical", parentheticalGenotype},
	{"positional", positionalGenotype},
}

var (
	zygosityRowRx   = regexp.MustCompile(`[+\-]{2}`)
	trailingPairRx  = regexp.MustCompile(`\b([ACGT]{1,2})\s+[ACGT]?\s*$`)
	parentheticalRx = regexp.MustCompile(`\(([ACGT]{1,2})\)`)
)

// tableRowGenotype handles report shorthand like
// "VDR-FOK rs2228570 ++ Homozygous AA A".
func tableRowGenotype(line, _ string) (string, bool) {
	if !zygosityRowRx.MatchString(line) {
		return "", false
	}
	if m := trailingPairRx.FindStringSubmatch(line); m != nil {
		return m[1], true
	}
	return "", false
}

// inlineGenotype handles "rs1801133 CT" and "rs1801133: CT".
func inlineGenotype(line, rsid string) (string, bool) {
	rx, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(rsid) + `[\s:]+([ACGT]{1,2})\b`)
	if err != nil {
		return "", false
	}
	if m := rx.FindStringSubmatch(line); m != nil {
		return strings.ToUpper(m[1]), true
	}
	return "", false
}

// parentheticalGenotype handles prose like "heterozygous for VDR rs2228570 (AA)".
func parentheticalGenotype(line, _ string) (string, bool) {
	if m := parentheticalRx.FindStringSubmatch(line); m != nil {
		return m[1], true
	}
	return "", false
}

// positionalGenotype falls back to any standalone genotype-looking token.
func positionalGenotype(line, rsid string) (string, bool) {
	for _, part := range strings.Fields(line) {
		if strings.EqualFold(part, rsid) {
			continue
		}
		if reference.IsValidGenotype(part) {
			return part, true
		}
	}
	return "", false
}

// globalPatterns is the fixed set of whole-document expressions that catch
// pairs the line scan missed. The final pattern covers the reversed order
// (genotype before rsid).
var globalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(rs\d{4,})[^\w]*([ACGT]{1,2})\b`),
	regexp.MustCompile(`(?i)(rs\d{4,})[\s:]+([ACGT]{1,2})\b`),
	regexp.MustCompile(`(?i)(rs\d{4,})[^)]*\(([ACGT]{1,2})\)`),
	regexp.MustCompile(`(?i)\b(rs\d{4,})\s+[+\-]{2}\s+\w+[/\w]*\s+([ACGT]{1,2})`),
	regexp.MustCompile(`(?i)\b([ACGT]{1,2})\s+[^r]*?(rs\d{4,})`),
}

// targetSweepPatterns anchors one narrow expression per panel rsid, built
// once at init, to maximize recall on the clinically prioritized panel.
var targetSweepPatterns = func() map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp, len(reference.TargetVariants))
	for _, rsid := range reference.TargetVariants {
		patterns[rsid] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(rsid) + `\b[^\n]*?([ACGT]{1,2})`)
	}
	return patterns
}()

// parseFreeform runs the line-scan strategies, the global sweep, and the
// targeted panel sweep over report-style text.
func parseFreeform(text string, result *models.ExtractionResult) {
	found := make(map[string]struct{})
	addMarker := func(rsid, genotype string) {
		result.GeneticMarkers = append(result.GeneticMarkers, models.GeneticMarker{RSID: rsid, Genotype: genotype})
		found[rsid] = struct{}{}
	}

	// Pass 1: line-by-line scan. Repeated sightings of an rsid overwrite
	// earlier ones at dedup time (last occurrence wins).
	for _, line := range strings.Split(text, "\n") {
		m := rsidAnywhereRx.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		rsid := strings.ToLower(m[1])
		for _, strategy := range lineStrategies {
			genotype, ok := strategy.fn(line, rsid)
			if !ok {
				continue
			}
			genotype = strings.ToUpper(genotype)
			if reference.IsValidGenotype(genotype) {
				addMarker(rsid, genotype)
			} else {
				slog.Debug("Discarding non-genotype token.", "rsid", rsid, "token", genotype, "strategy", strategy.name)
			}
			break
		}
	}

	// Pass 2: global sweep for pairs the line scan missed.
	for _, pattern := range globalPatterns {
		for _, m := range pattern.FindAllStringSubmatch(text, -1) {
			rsid, genotype := orientMatch(m[1], m[2])
			if rsid == "" || !reference.IsValidGenotype(genotype) {
				continue
			}
			if _, ok := found[rsid]; ok {
				continue
			}
			addMarker(rsid, genotype)
		}
	}

	// Pass 3: targeted sweep over the panel.
	for _, rsid := range reference.TargetVariants {
		if _, ok := found[rsid]; ok {
			continue
		}
		if m := targetSweepPatterns[rsid].FindStringSubmatch(text); m != nil {
			genotype := strings.ToUpper(m[1])
			if reference.IsValidGenotype(genotype) {
				addMarker(rsid, genotype)
			}
		}
	}
}

// orientMatch resolves which capture is the rsid for patterns that match in
// either order.
func orientMatch(a, b string) (rsid, genotype string) {
	if strings.HasPrefix(strings.ToLower(a), "rs") {
		return strings.ToLower(a), strings.ToUpper(b)
	}
	if strings.HasPrefix(strings.ToLower(b), "rs") {
		return strings.ToLower(b), strings.ToUpper(a)
	}
	return "", ""
}

// --- Biomarker extraction ---

// biomarkerMatcher holds the precompiled phrasings for one catalog entry:
// "Name: value", "Name  value  unit", "Name Result: value".
type biomarkerMatcher struct {
	name     string
	unit     string
	patterns []*regexp.Regexp
}

var biomarkerMatchers = buildBiomarkerMatchers()

func buildBiomarkerMatchers() []biomarkerMatcher {
	canonicals := make([]string, 0, len(reference.Catalog))
	for name := range reference.Catalog {
		canonicals = append(canonicals, name)
	}
	sort.Strings(canonicals) // deterministic match order

	separator := `[\s\-_]*`
	// One pass over both separator characters: sequential ReplaceAll calls
	// would re-match the "-" and "_" inside the separator just inserted.
	separatorRx := regexp.MustCompile(`[-_]`)
	matchers := make([]biomarkerMatcher, 0, len(canonicals))
	for _, canonical := range canonicals {
		bm := reference.Catalog[canonical]
		variants := make([]string, 0, len(bm.Aliases)+1)
		for _, n := range append([]string{canonical}, bm.Aliases...) {
			quoted := separatorRx.ReplaceAllLiteralString(regexp.QuoteMeta(n), separator)
			variants = append(variants, quoted)
		}
		alternation := `\b(?:` + strings.Join(variants, "|") + `)`
		unitRx := regexp.QuoteMeta(bm.Unit)

		matchers = append(matchers, biomarkerMatcher{
			name: canonical,
			unit: bm.Unit,
			patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)` + alternation + `\s*:\s*([\d.]+)\s*(?:` + unitRx + `|[\w/%]+)?`),
				regexp.MustCompile(`(?i)` + alternation + `\s+([\d.]+)\s+(?:` + unitRx + `|[\w/%]+)?`),
				regexp.MustCompile(`(?i)` + alternation + `\s*result\s*:?\s*([\d.]+)`),
			},
		})
	}
	return matchers
}

// extractBiomarkers tries every catalog entry's phrasings against the whole
// document; the first matching phrasing wins per biomarker.
func extractBiomarkers(text string, result *models.ExtractionResult) {
	for _, matcher := range biomarkerMatchers {
		for _, pattern := range matcher.patterns {
			m := pattern.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			if value, ok := reference.ExtractNumericValue(m[1]); ok {
				result.Biomarkers[matcher.name] = fmt.Sprintf("%g %s", value, matcher.unit)
			}
			break
		}
	}
}

// --- Provenance detection ---

// companyPattern pairs a provider name with its detection expression.
// Order is priority: an earlier detection wins over a later, more generic one.
type companyPattern struct {
	name string
	rx   *regexp.Regexp
}

var companyPatterns = []companyPattern{
	{"MaxGen Labs", regexp.MustCompile(`(?i)maxgen|max gen|Gene RS#|Client Minor|VDR-FOK|MTHFR`)},
	{"23andMe", regexp.MustCompile(`(?i)23andme|23 and me`)},
	{"AncestryDNA", regexp.MustCompile(`(?i)ancestry\.com|ancestrydna|ancestry dna`)},
	{"MyHeritage", regexp.MustCompile(`(?i)myheritage|my heritage`)},
	{"Dante Labs", regexp.MustCompile(`(?i)dante labs|dantelabs`)},
	{"Nebula Genomics", regexp.MustCompile(`(?i)nebula genomics|nebula`)},
	{"LabCorp", regexp.MustCompile(`(?i)labcorp|laboratory corporation`)},
	{"Quest Diagnostics", regexp.MustCompile(`(?i)quest diagnostics|quest`)},
	{"Everlywell", regexp.MustCompile(`(?i)everlywell|everly well`)},
	{"Thorne", regexp.MustCompile(`(?i)thorne`)},
	{"InsideTracker", regexp.MustCompile(`(?i)insidetracker|inside tracker`)},
	{"SelfDecode", regexp.MustCompile(`(?i)selfdecode|self decode`)},
	{"Genova Diagnostics", regexp.MustCompile(`(?i)genova diagnostics|genova`)},
	{"Great Plains", regexp.MustCompile(`(?i)great plains|gpl`)},
	{"Doctors Data", regexp.MustCompile(`(?i)doctors data|doctor's data`)},
	{"ZRT Laboratory", regexp.MustCompile(`(?i)zrt laboratory|zrt lab`)},
}

var genericGeneticRx = regexp.MustCompile(`rs\d+.*[+\-]{2}`)

// detectSourceCompany matches provider patterns in priority order, with a
// generic genetic-export fallback.
func detectSourceCompany(text string) string {
	if text == "" {
		return ""
	}
	for _, cp := range companyPatterns {
		if cp.rx.MatchString(text) {
			return cp.name
		}
	}
	if genericGeneticRx.MatchString(text) && regexp.MustCompile(`[ACGT]{2}`).MatchString(text) {
		return "Unknown Genetic Lab"
	}
	return ""
}

// datePattern pairs a detection expression with the time layouts its capture
// might parse as.
type datePattern struct {
	rx      *regexp.Regexp
	layouts []string
}

var datePatterns = []datePattern{
	{regexp.MustCompile(`(?i)test date:?\s*(\d{1,2}/\d{1,2}/\d{2,4})`), []string{"1/2/2006", "1/2/06"}},
	{regexp.MustCompile(`(?i)collected:?\s*(\d{1,2}/\d{1,2}/\d{2,4})`), []string{"1/2/2006", "1/2/06"}},
	{regexp.MustCompile(`(?i)collection date:?\s*(\d{1,2}/\d{1,2}/\d{2,4})`), []string{"1/2/2006", "1/2/06"}},
	{regexp.MustCompile(`(?i)report date:?\s*(\d{1,2}/\d{1,2}/\d{2,4})`), []string{"1/2/2006", "1/2/06"}},
	{regexp.MustCompile(`(?i)date:?\s*(\d{1,2}[\-/]\d{1,2}[\-/]\d{2,4})`), []string{"1/2/2006", "1/2/06", "1-2-2006", "1-2-06"}},
	{regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`), []string{"2006-01-02"}},
	{regexp.MustCompile(`(\w+ \d{1,2}, \d{4})`), []string{"January 2, 2006"}},
}

// extractTestDate finds the first recognizable date and normalizes it to an
// ISO calendar date when parseable, else keeps the raw matched string.
func extractTestDate(text string) string {
	for _, dp := range datePatterns {
		m := dp.rx.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		for _, layout := range dp.layouts {
			if t, err := time.Parse(layout, m[1]); err == nil {
				return t.Format("2006-01-02")
			}
		}
		return m[1]
	}
	return ""
}

// --- Shared helpers ---

var interpretationKeywords = []string{
	"recommendation", "suggest", "optimal", "deficient", "elevated",
	"your results show", "interpretation", "summary", "analysis",
}

func hasInterpretiveLanguage(text string) bool {
	lower := strings.ToLower(text)
	for _, keyword := range interpretationKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// dedupeMarkers collapses repeated rsids: last occurrence wins, first-seen
// order is preserved.
func dedupeMarkers(markers []models.GeneticMarker) []models.GeneticMarker {
	index := make(map[string]int, len(markers))
	deduped := make([]models.GeneticMarker, 0, len(markers))
	for _, marker := range markers {
		if marker.RSID == "" {
			continue
		}
		if i, ok := index[marker.RSID]; ok {
			deduped[i] = marker
			continue
		}
		index[marker.RSID] = len(deduped)
		deduped = append(deduped, marker)
	}
	return deduped
}

func nonEmptyLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

var fieldSplitRx = regexp.MustCompile(`[,\t]`)

func splitFields(line string) []string {
	fields := fieldSplitRx.Split(line, -1)
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}
