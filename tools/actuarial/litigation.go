package actuarial

import "strings"

// LitigationConfig holds the confidence thresholds and signal weights the
// litigation detector applies.
type LitigationConfig struct {
	ConfidenceThresholds struct {
		High float64 `json:"high"`
		Low  float64 `json:"low"`
	} `json:"confidence_thresholds"`
	ScoreWeights struct {
		StrongSignalWeight float64 `json:"strong_signal_weight"`
		WeakSignalWeight   float64 `json:"weak_signal_weight"`
	} `json:"score_weights"`
	Limits struct {
		MaxResults int `json:"max_results"`
	} `json:"limits"`
}

// DefaultLitigationConfig returns the standard thresholds and weights.
func DefaultLitigationConfig() LitigationConfig {
	var cfg LitigationConfig
	cfg.ConfidenceThresholds.High = 0.7
	cfg.ConfidenceThresholds.Low = 0.15
	cfg.ScoreWeights.StrongSignalWeight = 0.7
	cfg.ScoreWeights.WeakSignalWeight = 0.15
	cfg.Limits.MaxResults = 100
	return cfg
}

// genericLitigationKeywords each contribute a small amount of confidence.
// Without a strong representation or suit signal they can never push a claim
// past the low threshold.
var genericLitigationKeywords = append(append([]string{}, litigationKeywords...),
	"dispute", "denied", "denial", "appeal", "complaint",
	"coverage issue", "coverage dispute", "bad faith", "investigation",
)

// representationTerms are strong signals that counsel is involved.
var representationTerms = []string{
	"represented by counsel",
	"represented by an attorney",
	"represented by attorney",
	"has an attorney",
	"has attorney",
	"attorney involved",
	"legal representation",
	"hired an attorney",
	"has hired an attorney",
	"retained counsel",
	"retained an attorney",
	"has retained counsel",
	"plaintiff's counsel",
	"defense counsel",
	"their attorney",
	"my attorney",
	"insured's attorney",
	"claimant's attorney",
}

// suitTerms are strong signals that a suit has been filed or scheduled.
var suitTerms = []string{
	"lawsuit filed",
	"has filed a lawsuit",
	"filed suit",
	"filed a suit",
	"filed a law suit",
	"complaint filed",
	"filed complaint",
	"civil complaint",
	"civil action",
	"statement of claim",
	"summons and complaint",
	"served with summons",
	"served with complaint",
	"served with papers",
	"service of process completed",
	"service of process",
	"court case opened",
	"trial",
	"trial date",
	"going to trial",
	"scheduled for trial",
}

// frictionTerms mark disputes that have not (yet) become litigation.
var frictionTerms = []string{
	"claim denied",
	"denied claim",
	"denial of claim",
	"coverage denied",
	"coverage issue",
	"coverage dispute",
	"dispute claim",
	"disputed claim",
	"formal complaint",
	"filed a complaint",
	"escalated complaint",
	"ombudsman",
	"bad faith",
	"unfair settlement",
	"legal review",
	"legal department reviewing",
	"under investigation",
	"fraud investigation",
}

var discoveryTerms = []string{"deposition", "subpoena", "interrogatories"}

var demandTerms = []string{"demand letter", "settlement demand", "policy limits demand"}

// LitigationSignal is the per-claim detection result.
type LitigationSignal struct {
	ClaimID         string   `json:"claim_id"`
	HasLitigation   bool     `json:"has_litigation"`
	HasHighFriction bool     `json:"has_high_friction"`
	ConfidenceScore float64  `json:"confidence_score"`
	Indicators      []string `json:"indicators"`
}

// LitigationSummary aggregates the detected signals.
type LitigationSummary struct {
	TotalClaims        int     `json:"total_claims"`
	LitigationClaims   int     `json:"litigation_claims"`
	HighFrictionClaims int     `json:"high_friction_claims"`
	LitigationRate     float64 `json:"litigation_rate"`
	FrictionRate       float64 `json:"friction_rate"`
}

// LitigationReport is the detect_litigation result. Flag lists are capped at
// the configured maximum; the summary counts the full portfolio.
type LitigationReport struct {
	LitigationFlags    []LitigationSignal `json:"litigation_flags"`
	HighFrictionClaims []LitigationSignal `json:"high_friction_claims"`
	Summary            LitigationSummary  `json:"summary"`
}

// DetectLitigation scans claim narratives for litigation and friction
// signals.
func DetectLitigation(claims []Claim, cfg LitigationConfig) *LitigationReport {
	report := &LitigationReport{
		LitigationFlags:    []LitigationSignal{},
		HighFrictionClaims: []LitigationSignal{},
	}

	var litigation, friction []LitigationSignal
	for _, claim := range claims {
		signal := scoreLitigation(claim, cfg)
		if signal.HasLitigation {
			litigation = append(litigation, signal)
		}
		if signal.HasHighFriction {
			friction = append(friction, signal)
		}
	}

	report.LitigationFlags = capSignals(litigation, cfg.Limits.MaxResults)
	report.HighFrictionClaims = capSignals(friction, cfg.Limits.MaxResults)

	total := len(claims)
	report.Summary = LitigationSummary{
		TotalClaims:        total,
		LitigationClaims:   len(litigation),
		HighFrictionClaims: len(friction),
	}
	if total > 0 {
		report.Summary.LitigationRate = float64(len(litigation)) / float64(total)
		report.Summary.FrictionRate = float64(len(friction)) / float64(total)
	}
	return report
}

func scoreLitigation(claim Claim, cfg LitigationConfig) LitigationSignal {
	text := narrative(claim, "claimantname")

	signal := LitigationSignal{
		ClaimID:    claimID(claim),
		Indicators: []string{},
	}
	for _, kw := range genericLitigationKeywords {
		if strings.Contains(text, kw) {
			signal.Indicators = append(signal.Indicators, kw)
		}
	}

	signal.ConfidenceScore = litigationConfidence(text, cfg)
	signal.HasLitigation = signal.ConfidenceScore > cfg.ConfidenceThresholds.High
	signal.HasHighFriction = containsAny(text, frictionTerms)
	return signal
}

func litigationConfidence(text string, cfg LitigationConfig) float64 {
	var score float64
	for _, kw := range genericLitigationKeywords {
		if strings.Contains(text, kw) {
			score += 0.01
		}
	}

	repHit := containsAny(text, representationTerms)
	suitHit := containsAny(text, suitTerms)
	if repHit {
		score += cfg.ScoreWeights.StrongSignalWeight
	}
	if suitHit {
		score += cfg.ScoreWeights.StrongSignalWeight
	}
	if !repHit && !suitHit {
		return min(score, cfg.ConfidenceThresholds.Low)
	}

	if containsAny(text, discoveryTerms) {
		score += cfg.ScoreWeights.WeakSignalWeight
	}
	if containsAny(text, demandTerms) {
		score += cfg.ScoreWeights.WeakSignalWeight
	}
	return min(1, score)
}

func capSignals(signals []LitigationSignal, limit int) []LitigationSignal {
	if limit > 0 && len(signals) > limit {
		signals = signals[:limit]
	}
	if signals == nil {
		return []LitigationSignal{}
	}
	return signals
}
