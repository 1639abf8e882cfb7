package actuarial

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/quicksuite-labs/agentgateway/gateway"
)

// significanceThreshold is the p-value-like cutoff for calling a factor
// statistically significant.
const significanceThreshold = 0.05

// categoricalFactors are the claim columns analyzed directly as segments.
var categoricalFactors = []string{
	"lineofbusiness", "claimstatus", "losstype",
	"causeofloss", "garagestate", "accidentstate",
}

// RiskFactor is the per-factor segmentation analysis. Loss ratios are the
// segment's average paid amount against a nominal exposure; frequency is the
// segment claim count.
type RiskFactor struct {
	FactorName        string             `json:"factor_name"`
	Segments          []string           `json:"segments"`
	LossRatios        map[string]float64 `json:"loss_ratios"`
	FrequencyRates    map[string]float64 `json:"frequency_rates"`
	SignificanceScore float64            `json:"significance_score"`
	IsSignificant     bool               `json:"is_significant"`
}

// HighRiskSegment names the worst segment of a significant factor.
type HighRiskSegment struct {
	Factor    string  `json:"factor"`
	Segment   string  `json:"segment"`
	LossRatio float64 `json:"loss_ratio"`
}

// EmergingPattern flags a portfolio-level trend.
type EmergingPattern struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

// PortfolioMetrics summarizes the analyzed portfolio.
type PortfolioMetrics struct {
	AverageClaimAmount float64 `json:"average_claim_amount"`
	MedianClaimAmount  float64 `json:"median_claim_amount"`
	TotalPaid          float64 `json:"total_paid"`
	ClaimCount         int     `json:"claim_count"`
	AnalysisPeriodDays int     `json:"analysis_period_days"`
	ClaimsPerDay       float64 `json:"claims_per_day"`
}

// RiskInsights is the derived portfolio view.
type RiskInsights struct {
	HighRiskSegments []HighRiskSegment `json:"high_risk_segments"`
	EmergingPatterns []EmergingPattern `json:"emerging_patterns"`
	PortfolioMetrics PortfolioMetrics  `json:"portfolio_metrics"`
}

// RiskSummary counts the analysis.
type RiskSummary struct {
	TotalFactorsAnalyzed int `json:"total_factors_analyzed"`
	SignificantFactors   int `json:"significant_factors"`
	TotalClaims          int `json:"total_claims"`
}

// RiskReport is the analyze_risk_factors result.
type RiskReport struct {
	RiskFactorAnalyses []RiskFactor `json:"risk_factor_analyses"`
	RankedFactors      []RiskFactor `json:"ranked_factors"`
	RiskInsights       RiskInsights `json:"risk_insights"`
	Summary            RiskSummary  `json:"summary"`
}

// riskFactorDef maps a claim to its segment for one factor.
type riskFactorDef struct {
	name    string
	segment func(Claim) (string, bool)
}

// AnalyzeRiskFactors segments the portfolio by its risk drivers and reports
// loss ratios, frequencies, significance, and derived insights.
func AnalyzeRiskFactors(claims []Claim) (*RiskReport, error) {
	if len(claims) == 0 {
		return nil, gateway.NewToolError(gateway.CodeValidationError, "no claims data provided")
	}

	factors := identifyRiskFactors(claims)

	analyses := make([]RiskFactor, 0, len(factors))
	significant := 0
	for _, factor := range factors {
		analysis := analyzeFactor(claims, factor)
		analyses = append(analyses, analysis)
		if analysis.IsSignificant {
			significant++
		}
	}

	ranked := make([]RiskFactor, len(analyses))
	copy(ranked, analyses)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].SignificanceScore > ranked[j].SignificanceScore
	})

	return &RiskReport{
		RiskFactorAnalyses: analyses,
		RankedFactors:      ranked,
		RiskInsights:       generateRiskInsights(claims, analyses),
		Summary: RiskSummary{
			TotalFactorsAnalyzed: len(analyses),
			SignificantFactors:   significant,
			TotalClaims:          len(claims),
		},
	}, nil
}

func identifyRiskFactors(claims []Claim) []riskFactorDef {
	columns := make(map[string]bool)
	for _, claim := range claims {
		for key, v := range claim {
			if v != nil {
				columns[key] = true
			}
		}
	}

	var factors []riskFactorDef
	for _, col := range categoricalFactors {
		if !columns[col] {
			continue
		}
		name := col
		factors = append(factors, riskFactorDef{
			name: name,
			segment: func(c Claim) (string, bool) {
				s := c.String(name)
				return s, s != ""
			},
		})
	}

	hasDates := false
	for _, key := range reportDateKeys {
		if columns[key] {
			hasDates = true
			break
		}
	}
	if hasDates {
		factors = append(factors,
			riskFactorDef{name: "accident_year", segment: func(c Claim) (string, bool) {
				if d, ok := c.Date(reportDateKeys...); ok {
					return strconv.Itoa(d.Year()), true
				}
				return "", false
			}},
			riskFactorDef{name: "accident_month", segment: func(c Claim) (string, bool) {
				if d, ok := c.Date(reportDateKeys...); ok {
					return strconv.Itoa(int(d.Month())), true
				}
				return "", false
			}},
			riskFactorDef{name: "is_weekend", segment: func(c Claim) (string, bool) {
				if d, ok := c.Date(reportDateKeys...); ok {
					wd := d.Weekday()
					return strconv.FormatBool(wd == time.Saturday || wd == time.Sunday), true
				}
				return "", false
			}},
		)
	}

	if columns["paidtotal"] {
		factors = append(factors, riskFactorDef{name: "amount_category", segment: func(c Claim) (string, bool) {
			return amountCategory(c.Number(paidAmountKeys...))
		}})
	}
	return factors
}

// amountCategory bands a paid amount; non-positive amounts are unbanded.
func amountCategory(paid float64) (string, bool) {
	switch {
	case paid <= 0:
		return "", false
	case paid <= 1000:
		return "Small", true
	case paid <= 5000:
		return "Medium", true
	case paid <= 25000:
		return "Large", true
	default:
		return "Very Large", true
	}
}

func analyzeFactor(claims []Claim, factor riskFactorDef) RiskFactor {
	analysis := RiskFactor{
		FactorName:     factor.name,
		Segments:       []string{},
		LossRatios:     map[string]float64{},
		FrequencyRates: map[string]float64{},
	}

	paidBySegment := make(map[string][]float64)
	for _, claim := range claims {
		segment, ok := factor.segment(claim)
		if !ok {
			continue
		}
		if _, seen := paidBySegment[segment]; !seen {
			analysis.Segments = append(analysis.Segments, segment)
		}
		paidBySegment[segment] = append(paidBySegment[segment], claim.Number(paidAmountKeys...))
	}

	segmentMeans := make([]float64, 0, len(analysis.Segments))
	for _, segment := range analysis.Segments {
		paid := paidBySegment[segment]
		avg := mean(paid)
		// Nominal exposure stands in for premium, which the extract lacks.
		analysis.LossRatios[segment] = avg / 10000
		analysis.FrequencyRates[segment] = float64(len(paid))
		segmentMeans = append(segmentMeans, avg)
	}

	analysis.SignificanceScore = segmentSignificance(segmentMeans)
	analysis.IsSignificant = analysis.SignificanceScore < significanceThreshold
	return analysis
}

// segmentSignificance converts the coefficient of variation across segment
// means into a p-value-like score: 0 is very significant, 1 is not.
func segmentSignificance(means []float64) float64 {
	if len(means) < 2 {
		return 1
	}
	overall := mean(means)
	cv := stddev(means) / (overall + 0.001)
	return math.Max(0, math.Min(1, 1-cv))
}

func generateRiskInsights(claims []Claim, analyses []RiskFactor) RiskInsights {
	insights := RiskInsights{
		HighRiskSegments: []HighRiskSegment{},
		EmergingPatterns: []EmergingPattern{},
	}

	for _, analysis := range analyses {
		if !analysis.IsSignificant || len(analysis.LossRatios) == 0 {
			continue
		}
		var worst string
		worstRatio := math.Inf(-1)
		for _, segment := range analysis.Segments {
			if ratio := analysis.LossRatios[segment]; ratio > worstRatio {
				worst = segment
				worstRatio = ratio
			}
		}
		insights.HighRiskSegments = append(insights.HighRiskSegments, HighRiskSegment{
			Factor:    analysis.FactorName,
			Segment:   worst,
			LossRatio: worstRatio,
		})
	}
	sort.SliceStable(insights.HighRiskSegments, func(i, j int) bool {
		return insights.HighRiskSegments[i].LossRatio > insights.HighRiskSegments[j].LossRatio
	})
	if len(insights.HighRiskSegments) > 5 {
		insights.HighRiskSegments = insights.HighRiskSegments[:5]
	}

	insights.EmergingPatterns = identifyEmergingPatterns(claims)
	insights.PortfolioMetrics = calculatePortfolioMetrics(claims)
	return insights
}

func identifyEmergingPatterns(claims []Claim) []EmergingPattern {
	patterns := []EmergingPattern{}

	monthlyCounts := make(map[string]float64)
	for _, claim := range claims {
		if d, ok := claim.Date(reportDateKeys...); ok {
			monthlyCounts[d.Format("2006-01")]++
		}
	}
	if len(monthlyCounts) > 3 {
		months := make([]string, 0, len(monthlyCounts))
		for month := range monthlyCounts {
			months = append(months, month)
		}
		sort.Strings(months)

		counts := make([]float64, len(months))
		for i, month := range months {
			counts[i] = monthlyCounts[month]
		}
		recent := mean(counts[len(counts)-3:])
		historical := mean(counts)
		if len(counts) > 6 {
			historical = mean(counts[:len(counts)-3])
		}
		if historical > 0 && recent > historical*1.2 {
			patterns = append(patterns, EmergingPattern{
				Type:        "increasing_frequency",
				Description: fmt.Sprintf("Claim frequency increased by %.1f%% in recent months", (recent/historical-1)*100),
				Severity:    "medium",
			})
		}
	}

	paid := paidAmounts(claims)
	if len(paid) > 0 {
		q75 := percentile(paid, 0.75)
		q25 := percentile(paid, 0.25)
		threshold := q75 + 1.5*(q75-q25)
		outliers := 0
		for _, amount := range paid {
			if amount > threshold {
				outliers++
			}
		}
		if float64(outliers) > float64(len(claims))*0.05 {
			patterns = append(patterns, EmergingPattern{
				Type: "high_severity_outliers",
				Description: fmt.Sprintf("%d claims (%.1f%%) exceed normal severity range",
					outliers, float64(outliers)/float64(len(claims))*100),
				Severity: "high",
			})
		}
	}
	return patterns
}

func calculatePortfolioMetrics(claims []Claim) PortfolioMetrics {
	metrics := PortfolioMetrics{ClaimCount: len(claims)}

	paid := paidAmounts(claims)
	if len(paid) > 0 {
		metrics.AverageClaimAmount = mean(paid)
		metrics.MedianClaimAmount = percentile(paid, 0.5)
		for _, amount := range paid {
			metrics.TotalPaid += amount
		}
	}

	var first, last time.Time
	for _, claim := range claims {
		d, ok := claim.Date(reportDateKeys...)
		if !ok {
			continue
		}
		if first.IsZero() || d.Before(first) {
			first = d
		}
		if last.IsZero() || d.After(last) {
			last = d
		}
	}
	if !first.IsZero() {
		days := int(last.Sub(first).Hours() / 24)
		metrics.AnalysisPeriodDays = days
		if days > 0 {
			metrics.ClaimsPerDay = float64(len(claims)) / float64(days)
		}
	}
	return metrics
}

func paidAmounts(claims []Claim) []float64 {
	amounts := make([]float64, 0, len(claims))
	for _, claim := range claims {
		if claim.Has(paidAmountKeys...) {
			amounts = append(amounts, claim.Number(paidAmountKeys...))
		}
	}
	return amounts
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	var variance float64
	for _, v := range values {
		variance += (v - m) * (v - m)
	}
	return math.Sqrt(variance / float64(len(values)))
}

// percentile computes the q-th quantile with linear interpolation.
func percentile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	pos := q * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	frac := pos - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}
