package actuarial

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// FraudConfig holds the thresholds and weights the fraud scorer applies.
// Callers may override any subset through the tool's fraud_config argument.
type FraudConfig struct {
	AmountThresholds struct {
		Low      float64 `json:"low"`
		Medium   float64 `json:"medium"`
		High     float64 `json:"high"`
		VeryHigh float64 `json:"very_high"`
	} `json:"amount_thresholds"`
	ScoreWeights struct {
		AmountAnomaly      float64 `json:"amount_anomaly"`
		PatternAnomaly     float64 `json:"pattern_anomaly"`
		RatioAnomaly       float64 `json:"ratio_anomaly"`
		DemographicAnomaly float64 `json:"demographic_anomaly"`
		KeywordMatch       float64 `json:"keyword_match"`
		SevereInjury       float64 `json:"severe_injury"`
		SoftTissue         float64 `json:"soft_tissue"`
		ThirdPartyBI       float64 `json:"third_party_bi"`
		TotalLoss          float64 `json:"total_loss"`
	} `json:"score_weights"`
	AgeThresholds struct {
		YoungDriver  int `json:"young_driver"`
		SeniorDriver int `json:"senior_driver"`
	} `json:"age_thresholds"`
	VehicleThresholds struct {
		NewVehicle int `json:"new_vehicle"`
		OldVehicle int `json:"old_vehicle"`
	} `json:"vehicle_thresholds"`
	Ratios struct {
		MedicalShareHigh float64 `json:"medical_share_high"`
	} `json:"ratios"`
}

// DefaultFraudConfig returns the standard thresholds and weights.
func DefaultFraudConfig() FraudConfig {
	var cfg FraudConfig
	cfg.AmountThresholds.Low = 1000
	cfg.AmountThresholds.Medium = 5000
	cfg.AmountThresholds.High = 20000
	cfg.AmountThresholds.VeryHigh = 50000
	cfg.ScoreWeights.AmountAnomaly = 0.2
	cfg.ScoreWeights.PatternAnomaly = 0.3
	cfg.ScoreWeights.RatioAnomaly = 0.1
	cfg.ScoreWeights.DemographicAnomaly = 0.08
	cfg.ScoreWeights.KeywordMatch = 0.1
	cfg.ScoreWeights.SevereInjury = 0.15
	cfg.ScoreWeights.SoftTissue = 0.15
	cfg.ScoreWeights.ThirdPartyBI = 0.15
	cfg.ScoreWeights.TotalLoss = 0.1
	cfg.AgeThresholds.YoungDriver = 25
	cfg.AgeThresholds.SeniorDriver = 70
	cfg.VehicleThresholds.NewVehicle = 3
	cfg.VehicleThresholds.OldVehicle = 15
	cfg.Ratios.MedicalShareHigh = 0.7
	return cfg
}

var fraudKeywords = []string{
	"fraud", "staged", "suspicious", "exaggerated", "inflated",
	"questionable", "inconsistent", "fabricated",
}

var litigationKeywords = []string{
	"attorney", "lawyer", "legal", "lawsuit", "litigation", "court",
	"settlement", "deposition", "subpoena", "trial", "plaintiff",
	"defendant", "counsel", "sue", "suing", "sued",
}

var totalLossTerms = []string{"total loss", "write off", "beyond repair"}

var severeWeatherTerms = []string{"fog", "black ice", "heavy rain", "hail", "snowstorm"}

var softTissueTerms = []string{"whiplash", "soft tissue", "sprain", "strain"}

var severeInjuryTerms = []string{"head", "spine", "back", "neck"}

var severeBodyPartCodes = map[string]bool{"HEAD": true, "L2": true, "SPINE": true, "BACK": true}

// FraudScore is the per-claim scoring result.
type FraudScore struct {
	ClaimID          string   `json:"claim_id"`
	FraudProbability float64  `json:"fraud_probability"`
	RiskFactors      []string `json:"risk_factors"`
	AnomalyScore     float64  `json:"anomaly_score"`
	RedFlags         []string `json:"red_flags"`
}

// OrganizedFraudIndicator flags a portfolio-level fraud pattern.
type OrganizedFraudIndicator struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

// OrganizedFraud summarizes portfolio-level indicators.
type OrganizedFraud struct {
	Indicators        []OrganizedFraudIndicator `json:"indicators"`
	TotalIndicators   int                       `json:"total_indicators"`
	HighSeverityCount int                       `json:"high_severity_count"`
}

// FraudSummary aggregates the scored portfolio.
type FraudSummary struct {
	TotalClaims       int     `json:"total_claims"`
	HighRiskClaims    int     `json:"high_risk_claims"`
	MediumRiskClaims  int     `json:"medium_risk_claims"`
	FlaggedClaims     int     `json:"flagged_claims"`
	AverageFraudScore float64 `json:"average_fraud_score"`
}

// FraudReport is the score_fraud_risk result.
type FraudReport struct {
	FraudScores              []FraudScore   `json:"fraud_scores"`
	RankedClaims             []FraudScore   `json:"ranked_claims"`
	OrganizedFraudIndicators OrganizedFraud `json:"organized_fraud_indicators"`
	Summary                  FraudSummary   `json:"summary"`
}

// maxRankedClaims caps the scores returned; the full portfolio still feeds
// the summary and organized-fraud detection.
const maxRankedClaims = 50

// ScoreFraudRisk scores every claim for fraud indicators. now anchors the
// vehicle age calculation.
func ScoreFraudRisk(claims []Claim, cfg FraudConfig, now time.Time) *FraudReport {
	report := &FraudReport{
		FraudScores:  []FraudScore{},
		RankedClaims: []FraudScore{},
		OrganizedFraudIndicators: OrganizedFraud{
			Indicators: []OrganizedFraudIndicator{},
		},
	}
	if len(claims) == 0 {
		return report
	}

	scores := make([]FraudScore, 0, len(claims))
	var total float64
	for _, claim := range claims {
		score := scoreClaim(claim, cfg, now)
		scores = append(scores, score)
		total += score.FraudProbability

		switch {
		case score.FraudProbability > 0.7:
			report.Summary.HighRiskClaims++
		case score.FraudProbability > 0.3:
			report.Summary.MediumRiskClaims++
		}
		if score.FraudProbability > 0.3 {
			report.Summary.FlaggedClaims++
		}
	}

	ranked := make([]FraudScore, len(scores))
	copy(ranked, scores)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].FraudProbability > ranked[j].FraudProbability
	})
	if len(ranked) > maxRankedClaims {
		ranked = ranked[:maxRankedClaims]
	}
	report.FraudScores = ranked
	report.RankedClaims = ranked

	report.OrganizedFraudIndicators = detectOrganizedFraud(claims, scores)

	report.Summary.TotalClaims = len(claims)
	report.Summary.AverageFraudScore = total / float64(len(claims))
	return report
}

func scoreClaim(claim Claim, cfg FraudConfig, now time.Time) FraudScore {
	score := FraudScore{
		RiskFactors: []string{},
		RedFlags:    []string{},
	}
	var points float64

	paid := claim.Number(paidAmountKeys...)
	incurred := claim.Number(incurredKeys...)

	if paid > 0 && cfg.AmountThresholds.Low > 0 && math.Mod(paid, cfg.AmountThresholds.Low) == 0 {
		score.flag("round_number_amount", fmt.Sprintf("Round number amount: $%.0f", paid))
		points += cfg.ScoreWeights.AmountAnomaly
	}
	if paid > cfg.AmountThresholds.High {
		score.flag("moderately_high_amount", fmt.Sprintf("High claim amount: $%.0f", paid))
		points += cfg.ScoreWeights.AmountAnomaly
	}
	if paid > cfg.AmountThresholds.VeryHigh {
		score.flag("unusually_high_amount", fmt.Sprintf("Very high claim amount: $%.0f", paid))
		points += cfg.ScoreWeights.AmountAnomaly
	}

	if med := claim.Number("medpdtotal"); incurred > 0 {
		share := med / incurred
		if share > cfg.Ratios.MedicalShareHigh && incurred > cfg.AmountThresholds.Medium {
			score.flag("high_medical_share", fmt.Sprintf("High medical share: %.2f", share))
			points += cfg.ScoreWeights.RatioAnomaly
		}
	}

	if age := claim.Int("driverage"); age != 0 &&
		(age < cfg.AgeThresholds.YoungDriver || age > cfg.AgeThresholds.SeniorDriver) {
		score.flag("high_risk_driver_age", fmt.Sprintf("High-risk driver age: %d", age))
		points += cfg.ScoreWeights.DemographicAnomaly
	}

	if vehicleYear := claim.Int("vehicleyear"); vehicleYear != 0 {
		vehicleAge := now.Year() - vehicleYear
		if vehicleAge < 0 {
			vehicleAge = 0
		}
		if vehicleAge < cfg.VehicleThresholds.NewVehicle && incurred > cfg.AmountThresholds.High {
			score.flag("new_vehicle_high_severity", fmt.Sprintf("High severity on new vehicle (age %d)", vehicleAge))
			points += cfg.ScoreWeights.PatternAnomaly
		}
		if vehicleAge > cfg.VehicleThresholds.OldVehicle && paid > cfg.AmountThresholds.Medium {
			score.flag("old_vehicle_high_payout", fmt.Sprintf("High payout on old vehicle (age %d)", vehicleAge))
			points += cfg.ScoreWeights.PatternAnomaly
		}
	}

	bodyPart := strings.ToUpper(claim.String("bodypartproductcode"))
	lossType := strings.ToUpper(claim.String("losstype"))
	injuryDesc := strings.ToLower(claim.String("injurydescription"))

	if (severeBodyPartCodes[bodyPart] || containsAny(injuryDesc, severeInjuryTerms)) && incurred > 10000 {
		score.flag("severe_injury_high_cost", "Severe injury with high cost")
		points += cfg.ScoreWeights.SevereInjury
	}
	if containsAny(injuryDesc, softTissueTerms) && incurred > 5000 {
		score.flag("soft_tissue_high_cost", "Soft tissue injury with high cost")
		points += cfg.ScoreWeights.SoftTissue
	}
	if strings.Contains(lossType, "3PTY") && incurred > 25000 {
		score.flag("third_party_bi_high_severity", "High-severity third-party BI claim")
		points += cfg.ScoreWeights.ThirdPartyBI
	}

	text := narrative(claim)
	if containsAny(text, fraudKeywords) {
		score.flag("fraud_keywords", "Fraud-related keywords in notes")
		points += cfg.ScoreWeights.KeywordMatch
	}
	if containsAny(text, litigationKeywords) {
		score.flag("litigation_keywords", "Litigation keywords in notes")
		points += cfg.ScoreWeights.KeywordMatch
	}
	if containsAny(text, totalLossTerms) {
		score.flag("total_loss_language", "Total loss language")
		points += cfg.ScoreWeights.TotalLoss
	}
	if containsAny(text, severeWeatherTerms) && incurred > 10000 {
		score.flag("severe_weather_high_cost", "Weather narrative with high cost")
		points += 0.1
	}

	score.AnomalyScore = paidIncurredAnomaly(paid, incurred)
	if score.AnomalyScore > 0 {
		score.flag("paid_incurred_ratio_anomaly", fmt.Sprintf("Unusual paid/incurred ratio: %.2f", score.AnomalyScore))
	}
	points += score.AnomalyScore * 0.3

	score.ClaimID = claimID(claim)
	score.FraudProbability = math.Min(1, points)
	return score
}

func (s *FraudScore) flag(factor, redFlag string) {
	s.RiskFactors = append(s.RiskFactors, factor)
	s.RedFlags = append(s.RedFlags, redFlag)
}

// paidIncurredAnomaly scores how far outside the normal 0.3..1.0 band the
// paid/incurred ratio sits.
func paidIncurredAnomaly(paid, incurred float64) float64 {
	if incurred <= 0 {
		return 0
	}
	ratio := paid / incurred
	if ratio > 1.0 || ratio < 0.3 {
		return math.Min(1, math.Abs(ratio-0.75)*2)
	}
	return 0
}

func detectOrganizedFraud(claims []Claim, scores []FraudScore) OrganizedFraud {
	fraud := OrganizedFraud{Indicators: []OrganizedFraudIndicator{}}

	amountCounts := make(map[float64]int)
	for _, claim := range claims {
		if paid := claim.Number(paidAmountKeys...); paid != 0 {
			amountCounts[paid]++
		}
	}
	amounts := make([]float64, 0, len(amountCounts))
	for amount := range amountCounts {
		amounts = append(amounts, amount)
	}
	sort.Float64s(amounts)
	for _, amount := range amounts {
		count := amountCounts[amount]
		if count >= 3 && amount > 1000 {
			severity := "medium"
			if count >= 5 {
				severity = "high"
			}
			fraud.Indicators = append(fraud.Indicators, OrganizedFraudIndicator{
				Type:        "duplicate_amounts",
				Description: fmt.Sprintf("%d claims with identical amount: $%.0f", count, amount),
				Severity:    severity,
			})
		}
	}

	highFraud := 0
	for _, score := range scores {
		if score.FraudProbability > 0.7 {
			highFraud++
		}
	}
	if highFraud >= 3 {
		fraud.Indicators = append(fraud.Indicators, OrganizedFraudIndicator{
			Type:        "high_fraud_cluster",
			Description: fmt.Sprintf("%d claims with high fraud probability", highFraud),
			Severity:    "high",
		})
	}

	fraud.TotalIndicators = len(fraud.Indicators)
	for _, indicator := range fraud.Indicators {
		if indicator.Severity == "high" {
			fraud.HighSeverityCount++
		}
	}
	return fraud
}

func claimID(claim Claim) string {
	if id := claim.String(claimNumberKeys...); id != "" {
		return id
	}
	return "unknown"
}

// narrative joins the free-text fields into one lowercased blob for keyword
// matching. extra names additional fields to include, e.g. claimantname.
func narrative(claim Claim, extra ...string) string {
	parts := make([]string, 0, len(extra)+len(narrativeKeys))
	for _, key := range extra {
		parts = append(parts, claim.String(key))
	}
	for _, key := range narrativeKeys {
		parts = append(parts, claim.String(key))
	}
	return strings.ToLower(strings.Join(parts, " "))
}

func containsAny(text string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}
