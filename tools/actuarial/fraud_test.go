package actuarial

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scoringTime = time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

func TestScoreFraudRiskFlagsIndicators(t *testing.T) {
	claims := []Claim{{
		"claimnumber":       "CLM-100",
		"paidtotal":         20000.0,
		"totalincurred":     30000.0,
		"driverage":         22.0,
		"losstype":          "3PTY BI",
		"injurydescription": "whiplash pain",
		"note_text":         "customer suspicious of staged accident, attorney involved",
	}}

	report := ScoreFraudRisk(claims, DefaultFraudConfig(), scoringTime)
	require.Len(t, report.FraudScores, 1)

	score := report.FraudScores[0]
	assert.Equal(t, "CLM-100", score.ClaimID)
	// round amount 0.2 + young driver 0.08 + soft tissue 0.15 +
	// third-party BI 0.15 + fraud keywords 0.1 + litigation keywords 0.1
	assert.InDelta(t, 0.78, score.FraudProbability, 1e-9)
	assert.ElementsMatch(t, []string{
		"round_number_amount", "high_risk_driver_age", "soft_tissue_high_cost",
		"third_party_bi_high_severity", "fraud_keywords", "litigation_keywords",
	}, score.RiskFactors)
	assert.Zero(t, score.AnomalyScore)

	assert.Equal(t, 1, report.Summary.TotalClaims)
	assert.Equal(t, 1, report.Summary.HighRiskClaims)
	assert.Equal(t, 1, report.Summary.FlaggedClaims)
}

func TestScoreFraudRiskVehicleAge(t *testing.T) {
	claims := []Claim{
		{"claimnumber": "NEW", "paidtotal": 333.0, "totalincurred": 25000.0, "vehicleyear": 2025.0},
		{"claimnumber": "OLD", "paidtotal": 6333.0, "totalincurred": 9000.0, "vehicleyear": 2005.0},
	}

	report := ScoreFraudRisk(claims, DefaultFraudConfig(), scoringTime)

	byID := map[string]FraudScore{}
	for _, score := range report.FraudScores {
		byID[score.ClaimID] = score
	}
	assert.Contains(t, byID["NEW"].RiskFactors, "new_vehicle_high_severity")
	assert.Contains(t, byID["OLD"].RiskFactors, "old_vehicle_high_payout")
}

func TestScoreFraudRiskPaidIncurredAnomaly(t *testing.T) {
	// ratio 0.2 is below the 0.3 floor; |0.2-0.75|*2 clamps to 1.
	claims := []Claim{{"claimnumber": "A", "paidtotal": 333.0, "totalincurred": 1665.0}}

	report := ScoreFraudRisk(claims, DefaultFraudConfig(), scoringTime)
	score := report.FraudScores[0]
	assert.InDelta(t, 1.0, score.AnomalyScore, 1e-9)
	assert.Contains(t, score.RiskFactors, "paid_incurred_ratio_anomaly")
	assert.InDelta(t, 0.3, score.FraudProbability, 1e-9)
}

func TestScoreFraudRiskOrganizedIndicators(t *testing.T) {
	claims := make([]Claim, 0, 6)
	for i := 0; i < 5; i++ {
		claims = append(claims, Claim{
			"claimnumber":       "DUP",
			"paidtotal":         7500.0,
			"totalincurred":     26000.0,
			"medpdtotal":        20000.0,
			"losstype":          "3PTY",
			"driverage":         21.0,
			"injurydescription": "whiplash",
			"note_text":         "staged collision, suspicious and exaggerated injuries, attorney retained, total loss",
		})
	}
	claims = append(claims, Claim{"claimnumber": "OK", "paidtotal": 1234.0, "totalincurred": 2000.0})

	report := ScoreFraudRisk(claims, DefaultFraudConfig(), scoringTime)

	organized := report.OrganizedFraudIndicators
	require.Len(t, organized.Indicators, 2)
	assert.Equal(t, "duplicate_amounts", organized.Indicators[0].Type)
	assert.Equal(t, "high", organized.Indicators[0].Severity)
	assert.Equal(t, "high_fraud_cluster", organized.Indicators[1].Type)
	assert.Equal(t, 2, organized.HighSeverityCount)
}

func TestScoreFraudRiskRanksAndCaps(t *testing.T) {
	claims := make([]Claim, 0, 60)
	for i := 0; i < 60; i++ {
		paid := 100.0 + float64(i)
		if i == 59 {
			paid = 60000.0 // round, high, and very high amount
		}
		claims = append(claims, Claim{"claimnumber": "C", "paidtotal": paid, "totalincurred": paid / 0.75})
	}

	report := ScoreFraudRisk(claims, DefaultFraudConfig(), scoringTime)
	assert.Len(t, report.FraudScores, maxRankedClaims)
	assert.Equal(t, 60, report.Summary.TotalClaims)
	// Highest scoring claim first.
	assert.GreaterOrEqual(t, report.FraudScores[0].FraudProbability, report.FraudScores[1].FraudProbability)
	assert.InDelta(t, 0.6, report.FraudScores[0].FraudProbability, 1e-9)
}

func TestScoreFraudRiskEmpty(t *testing.T) {
	report := ScoreFraudRisk(nil, DefaultFraudConfig(), scoringTime)
	assert.Empty(t, report.FraudScores)
	assert.Zero(t, report.Summary.TotalClaims)
	assert.Zero(t, report.Summary.AverageFraudScore)
}
