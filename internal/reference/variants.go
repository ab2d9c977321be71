// Package reference holds the immutable lookup data the pipeline normalizes
// against: the target variant panel and the biomarker catalog. Everything in
// this package is built once at process start and safe for concurrent use.
package reference

import (
	"regexp"
	"strings"
)

// GeneReference groups the rsids belonging to one clinically relevant gene.
type GeneReference struct {
	Gene  string
	RSIDs []string
}

// GeneReferences lists the genes downstream analysis keys on.
var GeneReferences = []GeneReference{
	{Gene: "MTHFR", RSIDs: []string{"rs1801133", "rs1801131"}},
	{Gene: "COMT", RSIDs: []string{"rs4680"}},
	{Gene: "VDR", RSIDs: []string{"rs2228570", "rs1544410", "rs7975232"}},
	{Gene: "APOE", RSIDs: []string{"rs429358", "rs7412"}},
	{Gene: "FADS1", RSIDs: []string{"rs174547"}},
	{Gene: "FADS2", RSIDs: []string{"rs174575"}},
	{Gene: "GST", RSIDs: []string{"rs1695", "rs366631"}},
	{Gene: "SOD2", RSIDs: []string{"rs4880"}},
	{Gene: "FUT2", RSIDs: []string{"rs601338"}},
	{Gene: "TCN2", RSIDs: []string{"rs1801198"}},
}

// TargetVariants is the curated panel of rsids the parser prioritizes,
// grouped by pathway. Extraction reports found-vs-missing against this list.
var TargetVariants = []string{
	// Methylation & folate pathway
	"rs1801133", "rs1801131", "rs1805087", "rs1801394", "rs2236225",
	"rs1979277", "rs3733890", "rs70991108", "rs34743033", "rs819147",
	"rs1051266", "rs2071010",
	// Neurotransmitter & mood
	"rs4680", "rs6323", "rs6265", "rs6313", "rs6295", "rs25531",
	"rs5569", "rs40184", "rs1800497", "rs1800955", "rs1800532",
	"rs4570625", "rs1611115",
	// Detoxification & antioxidants
	"rs366631", "rs17856199", "rs1695", "rs3957357", "rs4880",
	"rs4998557", "rs1050450", "rs1800566", "rs1001179", "rs2071746",
	"rs662", "rs1051740",
	// Vitamin metabolism & transport
	"rs2228570", "rs1544410", "rs7975232", "rs10741657", "rs10877012",
	"rs6013897", "rs2282679", "rs12785878", "rs601338", "rs1801198",
	"rs1801222", "rs2287921", "rs7501331", "rs33972313", "rs6596473",
	// Iron metabolism
	"rs1800562", "rs1799945", "rs855791", "rs3811647", "rs7385804", "rs11568350",
	// Cardiovascular & lipids
	"rs429358", "rs7412", "rs174547", "rs174575", "rs6511720",
	"rs11591147", "rs708272", "rs1800588", "rs4646994", "rs699",
	// Drug/supplement metabolism
	"rs762551", "rs1065852", "rs4244285", "rs2740574", "rs8175347",
	"rs4149056", "rs1045642", "rs1801280",
	// Inflammation & immune
	"rs1800795", "rs16944", "rs1800629", "rs1205", "rs20417",
	// Other important pathways
	"rs234706", "rs7946", "rs671", "rs5751876", "rs1801260",
}

var targetVariantSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(TargetVariants))
	for _, rsid := range TargetVariants {
		set[rsid] = struct{}{}
	}
	return set
}()

// IsTargetVariant reports whether rsid belongs to the curated panel.
func IsTargetVariant(rsid string) bool {
	_, ok := targetVariantSet[strings.ToLower(rsid)]
	return ok
}

var genotypeRx = regexp.MustCompile(`^[ACGT]{1,2}$`)

// IsValidGenotype reports whether s is a 1-2 letter nucleotide genotype.
func IsValidGenotype(s string) bool {
	return genotypeRx.MatchString(s)
}

// apoeAlleleNucleotides maps APOE allele notation (E2/E3/E4) to the
// nucleotide observed at each of the two defining variants. Scope is
// deliberately narrow: only these two rsids carry allele-notation results
// in the wild.
var apoeAlleleNucleotides = map[string]map[string]string{
	"rs429358": {"E2": "T", "E3": "C", "E4": "C"},
	"rs7412":   {"E2": "C", "E3": "C", "E4": "T"},
}

// CoerceGenotype normalizes a raw genotype token for the given rsid into a
// nucleotide-pair genotype. It maps APOE allele notation (e.g. "E3/E4"),
// strips slash/dash separators, and uppercases. The second return is false
// when the token cannot be coerced into a valid genotype.
func CoerceGenotype(rsid, raw string) (string, bool) {
	genotype := strings.ToUpper(strings.TrimSpace(raw))
	if genotype == "" {
		return "", false
	}

	if table, ok := apoeAlleleNucleotides[strings.ToLower(rsid)]; ok && strings.HasPrefix(genotype, "E") {
		if strings.Contains(genotype, "/") {
			alleles := strings.Split(genotype, "/")
			if len(alleles) == 2 {
				n1, ok1 := table[alleles[0]]
				n2, ok2 := table[alleles[1]]
				if ok1 && ok2 {
					genotype = n1 + n2
				}
			}
		} else if n, ok := table[genotype]; ok {
			// Single allele reported; treat as homozygous.
			genotype = n + n
		}
	}

	if len(genotype) == 3 && (genotype[1] == '/' || genotype[1] == '-') {
		genotype = string(genotype[0]) + string(genotype[2])
	}

	if !IsValidGenotype(genotype) {
		return "", false
	}
	return genotype, true
}

// CoveredGenes reports which reference genes have at least one defining
// variant present in snpData, in GeneReferences order.
func CoveredGenes(snpData map[string]string) []string {
	var genes []string
	for _, ref := range GeneReferences {
		for _, rsid := range ref.RSIDs {
			if _, ok := snpData[rsid]; ok {
				genes = append(genes, ref.Gene)
				break
			}
		}
	}
	return genes
}

// apoeDiplotypes keys on "rs429358 genotype + _ + rs7412 genotype".
var apoeDiplotypes = map[string]string{
	"TT_CC": "E2/E2",
	"CT_CC": "E2/E3",
	"CC_CC": "E3/E3",
	"TT_CT": "E2/E4",
	"CT_CT": "E3/E4",
	"CC_CT": "E4/E4",
}

// DeriveAPOE computes the APOE diplotype from the two defining variants.
// Unknown combinations return an empty string.
func DeriveAPOE(rs429358, rs7412 string) string {
	return apoeDiplotypes[rs429358+"_"+rs7412]
}
