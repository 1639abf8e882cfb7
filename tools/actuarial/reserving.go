package actuarial

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"

	"github.com/quicksuite-labs/agentgateway/gateway"
)

// Bornhuetter-Ferguson exposure assumptions. Premium data is not available
// in the claims extract, so exposure is proxied by an estimated policy count.
const (
	bfAvgClaimSize   = 2000.0
	bfClaimFrequency = 0.05
	bfPaymentRatio   = 0.75
	bfMinPolicies    = 50.0
	bfUltimateFloor  = 1.02
)

const bootstrapSimulations = 1000

// ChainLadderSummary totals the chain ladder estimate.
type ChainLadderSummary struct {
	TotalCurrent             float64 `json:"total_current"`
	TotalUltimate            float64 `json:"total_ultimate"`
	TotalIBNR                float64 `json:"total_ibnr"`
	OverallDevelopmentFactor float64 `json:"overall_development_factor"`
	IBNRPercentage           int     `json:"ibnr_percentage"`
}

// ChainLadderResult is the chain ladder estimate: volume-weighted development
// factors keyed "from-to", plus per-accident-year ultimates and IBNR.
type ChainLadderResult struct {
	DevelopmentFactors map[string]float64 `json:"development_factors"`
	UltimateValues     map[string]float64 `json:"ultimate_values"`
	IBNRValues         map[string]float64 `json:"ibnr_values"`
	Summary            ChainLadderSummary `json:"summary"`
}

// BFAssumptions records the exposure assumptions behind the BF estimate.
type BFAssumptions struct {
	BaseLossRatio     float64 `json:"base_loss_ratio"`
	DevelopmentMethod string  `json:"development_method"`
	ExposureProxy     string  `json:"exposure_proxy"`
	AvgClaimSize      float64 `json:"avg_claim_size"`
	ClaimFrequency    string  `json:"claim_frequency"`
	PaymentRatio      string  `json:"payment_ratio"`
}

// BornhuetterFergusonResult is the BF estimate.
type BornhuetterFergusonResult struct {
	Methodology        string             `json:"methodology"`
	UltimateLosses     map[string]float64 `json:"ultimate_losses"`
	IBNRReserves       map[string]float64 `json:"ibnr_reserves"`
	TotalIBNR          float64            `json:"total_ibnr"`
	ExpectedLossRatios map[string]float64 `json:"expected_loss_ratios"`
	Assumptions        BFAssumptions      `json:"assumptions"`
}

// ConfidenceIntervals summarizes the bootstrap distribution of the reserve
// estimate.
type ConfidenceIntervals struct {
	Percentile75    float64 `json:"percentile_75"`
	Percentile90    float64 `json:"percentile_90"`
	Percentile95    float64 `json:"percentile_95"`
	Mean            float64 `json:"mean"`
	StdDev          float64 `json:"std_dev"`
	SimulationCount int     `json:"simulation_count"`
}

// AdequacyTests itemizes the reserve adequacy checks.
type AdequacyTests struct {
	MethodologyConsistency bool `json:"methodology_consistency"`
	BenchmarkComparison    bool `json:"benchmark_comparison"`
	OverallAdequate        bool `json:"overall_adequate"`
}

// AdequacyResult compares the two methodologies as an adequacy test.
type AdequacyResult struct {
	AdequacyRatio            float64       `json:"adequacy_ratio"`
	Status                   string        `json:"status"`
	MethodologyDifferencePct float64       `json:"methodology_difference_pct"`
	RecommendedReserves      float64       `json:"recommended_reserves"`
	ChainLadderReserves      float64       `json:"chain_ladder_reserves"`
	BFReserves               float64       `json:"bf_reserves"`
	IndustryBenchmark        float64       `json:"industry_benchmark"`
	AdequacyTests            AdequacyTests `json:"adequacy_tests"`
}

// MethodologyComparison contrasts the two IBNR estimates.
type MethodologyComparison struct {
	ChainLadderIBNR         float64 `json:"chain_ladder_ibnr"`
	BornhuetterFergusonIBNR float64 `json:"bornhuetter_ferguson_ibnr"`
	Difference              float64 `json:"difference"`
	DifferencePercentage    float64 `json:"difference_percentage"`
	RecommendedReserve      float64 `json:"recommended_reserve"`
	Consistency             string  `json:"consistency"`
}

// ReservesSummary is the headline numbers of the combined estimate.
type ReservesSummary struct {
	TotalIBNRChainLadder float64 `json:"total_ibnr_chain_ladder"`
	TotalIBNRBF          float64 `json:"total_ibnr_bf"`
	Confidence75Pct      float64 `json:"confidence_75_pct"`
	Confidence90Pct      float64 `json:"confidence_90_pct"`
	Confidence95Pct      float64 `json:"confidence_95_pct"`
	ReserveAdequacyRatio float64 `json:"reserve_adequacy_ratio"`
	RecommendedReserves  float64 `json:"recommended_reserves"`
}

// ReservesResult is the calculate_reserves result.
type ReservesResult struct {
	ChainLadder           ChainLadderResult         `json:"chain_ladder"`
	BornhuetterFerguson   BornhuetterFergusonResult `json:"bornhuetter_ferguson"`
	ConfidenceIntervals   ConfidenceIntervals       `json:"confidence_intervals"`
	ReserveAdequacy       AdequacyResult            `json:"reserve_adequacy"`
	MethodologyComparison MethodologyComparison     `json:"methodology_comparison"`
	Summary               ReservesSummary           `json:"summary"`
}

// cumulativeTriangle holds per-year cumulative incurred values restricted to
// each year's observed development range.
type cumulativeTriangle struct {
	devs    []int
	years   []int
	cum     map[int][]float64 // year -> cumulative value per dev index, up to lastIdx
	lastIdx map[int]int       // year -> index of the latest observed development period
}

func cumulate(incurred Triangle) *cumulativeTriangle {
	yearSet := make(map[int]bool)
	devSet := make(map[int]bool)
	for year, row := range incurred.Data {
		yearSet[year] = true
		for dev := range row {
			devSet[dev] = true
		}
	}

	ct := &cumulativeTriangle{
		devs:    sortedKeys(devSet),
		years:   sortedKeys(yearSet),
		cum:     make(map[int][]float64),
		lastIdx: make(map[int]int),
	}

	for _, year := range ct.years {
		row := incurred.Data[year]
		last := -1
		for i, dev := range ct.devs {
			if row[dev] > 0 {
				last = i
			}
		}
		ct.lastIdx[year] = last
		if last < 0 {
			continue
		}
		cum := make([]float64, last+1)
		running := 0.0
		for i := 0; i <= last; i++ {
			running += row[ct.devs[i]]
			cum[i] = running
		}
		ct.cum[year] = cum
	}
	return ct
}

// latest returns the most developed cumulative value for a year, or 0 when
// the year has no observed data.
func (ct *cumulativeTriangle) latest(year int) float64 {
	last := ct.lastIdx[year]
	if last < 0 {
		return 0
	}
	return ct.cum[year][last]
}

// CalculateChainLadder estimates ultimates and IBNR from the incurred
// triangle using volume-weighted age-to-age factors and a tail factor.
func CalculateChainLadder(set *TriangleSet) (*ChainLadderResult, error) {
	if set == nil || len(set.Incurred.Data) == 0 {
		return nil, gateway.NewToolError(gateway.CodeValidationError, "no incurred triangle data available")
	}

	ct := cumulate(set.Incurred)

	factors := make(map[string]float64)
	factorByIdx := make([]float64, len(ct.devs))
	for i := 0; i < len(ct.devs)-1; i++ {
		var sumCurrent, sumNext float64
		for _, year := range ct.years {
			if ct.lastIdx[year] < i+1 {
				continue
			}
			current := ct.cum[year][i]
			next := ct.cum[year][i+1]
			if current > 0 && next > 0 {
				sumCurrent += current
				sumNext += next
			}
		}
		if sumCurrent > 0 {
			factor := sumNext / sumCurrent
			factors[fmt.Sprintf("%d-%d", ct.devs[i], ct.devs[i+1])] = factor
			factorByIdx[i] = factor
		}
	}

	result := &ChainLadderResult{
		DevelopmentFactors: factors,
		UltimateValues:     make(map[string]float64),
		IBNRValues:         make(map[string]float64),
	}

	var totalCurrent, totalUltimate, totalIBNR float64
	for _, year := range ct.years {
		yearKey := strconv.Itoa(year)
		latest := ct.latest(year)
		if latest <= 0 {
			result.UltimateValues[yearKey] = 0
			result.IBNRValues[yearKey] = 0
			continue
		}

		lastIdx := ct.lastIdx[year]
		ultimate := latest
		for i := lastIdx; i < len(ct.devs)-1; i++ {
			if factorByIdx[i] > 0 {
				ultimate *= factorByIdx[i]
			}
		}
		// Immature years carry a larger tail.
		tail := 1.05
		if lastIdx < len(ct.devs)-2 {
			tail = 1.10
		}
		ultimate *= tail

		result.UltimateValues[yearKey] = ultimate
		result.IBNRValues[yearKey] = math.Max(0, ultimate-latest)
		totalCurrent += latest
		totalUltimate += ultimate
		totalIBNR += result.IBNRValues[yearKey]
	}

	result.Summary = ChainLadderSummary{
		TotalCurrent:             totalCurrent,
		TotalUltimate:            totalUltimate,
		TotalIBNR:                totalIBNR,
		OverallDevelopmentFactor: 1.0,
	}
	if totalCurrent > 0 {
		result.Summary.OverallDevelopmentFactor = totalUltimate / totalCurrent
		result.Summary.IBNRPercentage = int(totalIBNR / totalCurrent * 100)
	}
	return result, nil
}

// CalculateBornhuetterFerguson estimates reserves using an expected-loss
// method with a policy-count exposure proxy.
func CalculateBornhuetterFerguson(set *TriangleSet, chainLadder *ChainLadderResult) *BornhuetterFergusonResult {
	result := &BornhuetterFergusonResult{
		Methodology:        "Bornhuetter-Ferguson",
		UltimateLosses:     make(map[string]float64),
		IBNRReserves:       make(map[string]float64),
		ExpectedLossRatios: make(map[string]float64),
		Assumptions: BFAssumptions{
			BaseLossRatio:     0.65,
			DevelopmentMethod: "Chain Ladder derived",
			ExposureProxy:     "Policy count from claim frequency",
			AvgClaimSize:      bfAvgClaimSize,
			ClaimFrequency:    "5%",
			PaymentRatio:      "75%",
		},
	}
	if set == nil || len(set.Incurred.Data) == 0 {
		return result
	}

	ct := cumulate(set.Incurred)

	currentIncurred := make(map[string]float64, len(ct.years))
	estimatedPolicies := make(map[string]float64, len(ct.years))
	for _, year := range ct.years {
		yearKey := strconv.Itoa(year)
		incurred := ct.latest(year)
		currentIncurred[yearKey] = incurred
		estimatedPolicies[yearKey] = math.Max(bfMinPolicies, incurred/(bfAvgClaimSize*bfClaimFrequency))
		if estimatedPolicies[yearKey] > 0 {
			result.ExpectedLossRatios[yearKey] = incurred / estimatedPolicies[yearKey]
		}
	}

	expectedLossPerPolicy := 100.0
	if len(result.ExpectedLossRatios) > 0 {
		yearKeys := make([]string, 0, len(result.ExpectedLossRatios))
		for key := range result.ExpectedLossRatios {
			yearKeys = append(yearKeys, key)
		}
		sort.Strings(yearKeys)
		if len(yearKeys) > 3 {
			yearKeys = yearKeys[len(yearKeys)-3:]
		}
		var sum float64
		for _, key := range yearKeys {
			sum += result.ExpectedLossRatios[key]
		}
		expectedLossPerPolicy = sum / float64(len(yearKeys))
	}
	result.Assumptions.BaseLossRatio = expectedLossPerPolicy

	cumulativeDevFactor := 1.0
	for _, factor := range chainLadder.DevelopmentFactors {
		cumulativeDevFactor *= factor
	}
	percentDeveloped := 0.80
	if cumulativeDevFactor > 1 {
		percentDeveloped = math.Min(0.95, 1/cumulativeDevFactor)
	}

	for _, year := range ct.years {
		yearKey := strconv.Itoa(year)
		incurred := currentIncurred[yearKey]
		paid := incurred * bfPaymentRatio
		expectedUltimate := estimatedPolicies[yearKey] * expectedLossPerPolicy

		ultimate := paid + (expectedUltimate-paid)*(1-percentDeveloped)
		ultimate = math.Max(incurred*bfUltimateFloor, ultimate)

		result.UltimateLosses[yearKey] = ultimate
		result.IBNRReserves[yearKey] = math.Max(0, ultimate-incurred)
		result.TotalIBNR += result.IBNRReserves[yearKey]
	}
	return result
}

// CalculateConfidenceIntervals bootstraps the reserve estimate by resampling
// a multiplicative error around the base reserve.
func CalculateConfidenceIntervals(baseReserve float64, simulations int, rng *rand.Rand) ConfidenceIntervals {
	if simulations <= 0 {
		simulations = bootstrapSimulations
	}
	estimates := make([]float64, simulations)
	var sum float64
	for i := range estimates {
		estimates[i] = baseReserve * (0.8 + rng.Float64()*0.4)
		sum += estimates[i]
	}
	sort.Float64s(estimates)

	mean := sum / float64(simulations)
	var variance float64
	for _, estimate := range estimates {
		variance += (estimate - mean) * (estimate - mean)
	}
	variance /= float64(simulations)

	return ConfidenceIntervals{
		Percentile75:    estimates[int(float64(simulations)*0.75)],
		Percentile90:    estimates[int(float64(simulations)*0.90)],
		Percentile95:    estimates[int(float64(simulations)*0.95)],
		Mean:            mean,
		StdDev:          math.Sqrt(variance),
		SimulationCount: simulations,
	}
}

// TestReserveAdequacy compares the two methodologies as a sanity check on
// the recommended reserve.
func TestReserveAdequacy(chainLadder *ChainLadderResult, bf *BornhuetterFergusonResult) AdequacyResult {
	clReserves := chainLadder.Summary.TotalIBNR
	bfReserves := bf.TotalIBNR

	denom := math.Max(math.Max(clReserves, bfReserves), 1)
	difference := math.Abs(clReserves-bfReserves) / denom
	adequacyRatio := math.Min(clReserves, bfReserves) / denom
	benchmark := math.Max(clReserves, bfReserves) * 0.1

	status := "Inadequate"
	if adequacyRatio > 0.8 {
		status = "Adequate"
	}

	return AdequacyResult{
		AdequacyRatio:            adequacyRatio,
		Status:                   status,
		MethodologyDifferencePct: difference * 100,
		RecommendedReserves:      math.Max(clReserves, bfReserves),
		ChainLadderReserves:      clReserves,
		BFReserves:               bfReserves,
		IndustryBenchmark:        benchmark,
		AdequacyTests: AdequacyTests{
			MethodologyConsistency: difference < 0.2,
			BenchmarkComparison:    math.Max(clReserves, bfReserves) >= benchmark,
			OverallAdequate:        adequacyRatio > 0.8 && difference < 0.2,
		},
	}
}

// CompareMethodologies contrasts the chain ladder and BF IBNR estimates.
func CompareMethodologies(chainLadder *ChainLadderResult, bf *BornhuetterFergusonResult) MethodologyComparison {
	clIBNR := chainLadder.Summary.TotalIBNR
	bfIBNR := bf.TotalIBNR

	difference := math.Abs(clIBNR - bfIBNR)
	avg := (clIBNR + bfIBNR) / 2
	var differencePct float64
	if avg > 0 {
		differencePct = difference / avg * 100
	}

	consistency := "Poor"
	if differencePct < 20 {
		consistency = "Good"
	}

	return MethodologyComparison{
		ChainLadderIBNR:         clIBNR,
		BornhuetterFergusonIBNR: bfIBNR,
		Difference:              difference,
		DifferencePercentage:    differencePct,
		RecommendedReserve:      math.Max(clIBNR, bfIBNR),
		Consistency:             consistency,
	}
}

// CalculateReserves runs the full reserving workflow over a triangle set.
func CalculateReserves(set *TriangleSet, rng *rand.Rand) (*ReservesResult, error) {
	chainLadder, err := CalculateChainLadder(set)
	if err != nil {
		return nil, err
	}
	bf := CalculateBornhuetterFerguson(set, chainLadder)
	intervals := CalculateConfidenceIntervals(chainLadder.Summary.TotalIBNR, bootstrapSimulations, rng)
	adequacy := TestReserveAdequacy(chainLadder, bf)
	comparison := CompareMethodologies(chainLadder, bf)

	return &ReservesResult{
		ChainLadder:           *chainLadder,
		BornhuetterFerguson:   *bf,
		ConfidenceIntervals:   intervals,
		ReserveAdequacy:       adequacy,
		MethodologyComparison: comparison,
		Summary: ReservesSummary{
			TotalIBNRChainLadder: chainLadder.Summary.TotalIBNR,
			TotalIBNRBF:          bf.TotalIBNR,
			Confidence75Pct:      intervals.Percentile75,
			Confidence90Pct:      intervals.Percentile90,
			Confidence95Pct:      intervals.Percentile95,
			ReserveAdequacyRatio: adequacy.AdequacyRatio,
			RecommendedReserves:  math.Max(chainLadder.Summary.TotalIBNR, bf.TotalIBNR),
		},
	}, nil
}
