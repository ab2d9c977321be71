package reference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Every alias must resolve back to its own canonical name. A collision here
// means two catalog entries claim the same alias.
func TestAliasRoundTrip(t *testing.T) {
	seen := make(map[string]string)
	for canonical, bm := range Catalog {
		for _, alias := range bm.Aliases {
			collapsed := collapseName(alias)
			if owner, dup := seen[collapsed]; dup {
				t.Fatalf("alias %q claimed by both %q and %q", alias, owner, canonical)
			}
			seen[collapsed] = canonical

			resolved, ok := NormalizeName(alias)
			require.True(t, ok, "alias %q did not resolve", alias)
			assert.Equal(t, canonical, resolved, "alias %q", alias)
		}
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in    string
		want  string
		found bool
	}{
		{"vitamin_d", "vitamin_d", true},
		{"Vitamin D", "vitamin_d", true},
		{"25-OH-D", "vitamin_d", true},
		{"Vit D", "vitamin_d", true},
		{"B12", "vitamin_b12", true},
		{"Cobalamin", "vitamin_b12", true},
		{"HGB", "hemoglobin", true},
		{"HDL-C", "hdl_cholesterol", true},
		{"total cholesterol", "total_cholesterol", true},
		{"not a biomarker", "", false},
		{"", "", false},
		{"---", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeName(tt.in)
		assert.Equal(t, tt.found, ok, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestExtractNumericValue(t *testing.T) {
	tests := []struct {
		in    string
		want  float64
		found bool
	}{
		{"22", 22, true},
		{"22.5 ng/mL", 22.5, true},
		{"<0.4", 0.4, true},
		{">= 12", 12, true},
		{"≤5.5", 5.5, true},
		{"no number here", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ExtractNumericValue(tt.in)
		assert.Equal(t, tt.found, ok, "input %q", tt.in)
		assert.InDelta(t, tt.want, got, 1e-9, "input %q", tt.in)
	}
}

func TestRangeStatusMonotonic(t *testing.T) {
	bm := Catalog["vitamin_d"] // 30-100 ng/mL
	assert.Equal(t, StatusLow, bm.RangeStatus(22))
	assert.Equal(t, StatusOptimal, bm.RangeStatus(30))
	assert.Equal(t, StatusOptimal, bm.RangeStatus(65))
	assert.Equal(t, StatusOptimal, bm.RangeStatus(100))
	assert.Equal(t, StatusHigh, bm.RangeStatus(101))
}

func TestSeverity(t *testing.T) {
	bm := Biomarker{Min: 100, Max: 200, Unit: "x"}

	// Deviation below the minimum, graded against Min.
	assert.Equal(t, SeverityMild, bm.Severity(80))      // 20% below
	assert.Equal(t, SeverityModerate, bm.Severity(70))  // 30% below
	assert.Equal(t, SeveritySevere, bm.Severity(40))    // 60% below

	// Deviation above the maximum, graded against Max.
	assert.Equal(t, SeverityMild, bm.Severity(220))     // 10% above
	assert.Equal(t, SeverityModerate, bm.Severity(280)) // 40% above
	assert.Equal(t, SeveritySevere, bm.Severity(320))   // 60% above

	// In-range values grade as mild.
	assert.Equal(t, SeverityMild, bm.Severity(150))
}

func TestReferenceRange(t *testing.T) {
	bm := Biomarker{Min: 30, Max: 100, Unit: "ng/mL"}
	assert.Equal(t, "30-100 ng/mL", bm.ReferenceRange())

	bm = Biomarker{Min: 0.4, Max: 2.0, Unit: "ng/mL"}
	assert.Equal(t, "0.4-2 ng/mL", bm.ReferenceRange())
}
