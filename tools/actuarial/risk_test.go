package actuarial

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quicksuite-labs/agentgateway/gateway"
)

func riskClaims() []Claim {
	return []Claim{
		// Monday report.
		{"claimnumber": "R-1", "lineofbusiness": "AUTO", "claimstatus": "Open",
			"paidtotal": 100.0, "note_date": "2022-01-10"},
		// Saturday report.
		{"claimnumber": "R-2", "lineofbusiness": "HOME", "claimstatus": "Closed",
			"paidtotal": 9000.0, "note_date": "2022-01-15"},
	}
}

func factorByName(t *testing.T, report *RiskReport, name string) RiskFactor {
	t.Helper()
	for _, factor := range report.RiskFactorAnalyses {
		if factor.FactorName == name {
			return factor
		}
	}
	t.Fatalf("factor %s not analyzed", name)
	return RiskFactor{}
}

func TestAnalyzeRiskFactors(t *testing.T) {
	report, err := AnalyzeRiskFactors(riskClaims())
	require.NoError(t, err)

	// Two categorical columns plus the three date-derived factors and the
	// paid amount banding.
	assert.Equal(t, 6, report.Summary.TotalFactorsAnalyzed)
	assert.Equal(t, 2, report.Summary.TotalClaims)

	lob := factorByName(t, report, "lineofbusiness")
	assert.Equal(t, []string{"AUTO", "HOME"}, lob.Segments)
	assert.InDelta(t, 0.01, lob.LossRatios["AUTO"], 1e-9)
	assert.InDelta(t, 0.9, lob.LossRatios["HOME"], 1e-9)
	assert.InDelta(t, 1, lob.FrequencyRates["AUTO"], 1e-9)
	// Widely separated segment means register as significant.
	assert.Less(t, lob.SignificanceScore, significanceThreshold)
	assert.True(t, lob.IsSignificant)

	// A single-segment factor can never be significant.
	year := factorByName(t, report, "accident_year")
	assert.Equal(t, []string{"2022"}, year.Segments)
	assert.InDelta(t, 1, year.SignificanceScore, 1e-9)
	assert.False(t, year.IsSignificant)

	weekend := factorByName(t, report, "is_weekend")
	assert.Equal(t, []string{"false", "true"}, weekend.Segments)
	assert.True(t, weekend.IsSignificant)

	category := factorByName(t, report, "amount_category")
	assert.Equal(t, []string{"Small", "Large"}, category.Segments)

	// Ranking puts the most significant (lowest score) factors last.
	ranked := report.RankedFactors
	require.Len(t, ranked, 6)
	assert.GreaterOrEqual(t, ranked[0].SignificanceScore, ranked[5].SignificanceScore)
}

func TestAnalyzeRiskFactorsInsights(t *testing.T) {
	report, err := AnalyzeRiskFactors(riskClaims())
	require.NoError(t, err)

	insights := report.RiskInsights
	require.NotEmpty(t, insights.HighRiskSegments)
	// Every significant factor's worst segment carries the 9000 claim.
	for _, segment := range insights.HighRiskSegments {
		assert.InDelta(t, 0.9, segment.LossRatio, 1e-9)
	}
	assert.LessOrEqual(t, len(insights.HighRiskSegments), 5)

	metrics := insights.PortfolioMetrics
	assert.InDelta(t, 4550, metrics.AverageClaimAmount, 1e-9)
	assert.InDelta(t, 4550, metrics.MedianClaimAmount, 1e-9)
	assert.InDelta(t, 9100, metrics.TotalPaid, 1e-9)
	assert.Equal(t, 2, metrics.ClaimCount)
	assert.Equal(t, 5, metrics.AnalysisPeriodDays)
	assert.InDelta(t, 0.4, metrics.ClaimsPerDay, 1e-9)

	// Only one reporting month and no severity outliers here.
	assert.Empty(t, insights.EmergingPatterns)
}

func TestIdentifyEmergingPatternsFrequency(t *testing.T) {
	// Monthly counts 1,1,1,2,2,2: the recent three months average 2 against
	// an overall 1.5.
	var claims []Claim
	for month := 1; month <= 6; month++ {
		n := 1
		if month > 3 {
			n = 2
		}
		for i := 0; i < n; i++ {
			claims = append(claims, Claim{"note_date": fmt.Sprintf("2022-%02d-10", month)})
		}
	}

	patterns := identifyEmergingPatterns(claims)
	require.Len(t, patterns, 1)
	assert.Equal(t, "increasing_frequency", patterns[0].Type)
	assert.Equal(t, "medium", patterns[0].Severity)
	assert.Contains(t, patterns[0].Description, "33.3%")
}

func TestIdentifyEmergingPatternsOutliers(t *testing.T) {
	claims := make([]Claim, 0, 21)
	for i := 0; i < 19; i++ {
		claims = append(claims, Claim{"paidtotal": 1000.0})
	}
	claims = append(claims, Claim{"paidtotal": 100000.0}, Claim{"paidtotal": 100000.0})

	patterns := identifyEmergingPatterns(claims)
	require.Len(t, patterns, 1)
	assert.Equal(t, "high_severity_outliers", patterns[0].Type)
	assert.Equal(t, "high", patterns[0].Severity)
}

func TestAnalyzeRiskFactorsEmpty(t *testing.T) {
	_, err := AnalyzeRiskFactors(nil)
	assert.Equal(t, gateway.CodeValidationError, gateway.AsToolError(err).Code)
}

func TestPercentileInterpolates(t *testing.T) {
	values := []float64{10, 20, 30, 40}
	assert.InDelta(t, 25, percentile(values, 0.5), 1e-9)
	assert.InDelta(t, 10, percentile(values, 0), 1e-9)
	assert.InDelta(t, 40, percentile(values, 1), 1e-9)
	assert.InDelta(t, 17.5, percentile(values, 0.25), 1e-9)
}
