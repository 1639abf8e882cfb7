package actuarial

import (
	"fmt"
	"strings"
	"time"
)

// MonitoringConfig holds the KPI targets and alert bounds for development
// monitoring. Callers may override any subset through the tool's
// monitoring_config argument.
type MonitoringConfig struct {
	LossRatio        KPIBounds `json:"loss_ratio"`
	PaymentRatio     KPIBounds `json:"payment_ratio"`
	ReserveRatio     KPIBounds `json:"reserve_ratio"`
	AvgSeverity      KPIBounds `json:"avg_severity"`
	ClaimFrequency   KPIBounds `json:"claim_frequency"`
	LargeClaimsPct   KPIBounds `json:"large_claims_percentage"`
	OpenClaimsRatio  KPIBounds `json:"open_claims_ratio"`
	ReportingDelay   KPIBounds `json:"avg_reporting_delay_days"`
	LargeClaimCutoff float64   `json:"large_claim_cutoff"`
}

// KPIBounds is one indicator's target and alert band.
type KPIBounds struct {
	Target float64 `json:"target"`
	Upper  float64 `json:"upper"`
	Lower  float64 `json:"lower"`
}

// DefaultMonitoringConfig returns the standard targets and alert bounds.
func DefaultMonitoringConfig() MonitoringConfig {
	return MonitoringConfig{
		LossRatio:        KPIBounds{Target: 0.65, Upper: 0.80, Lower: 0.40},
		PaymentRatio:     KPIBounds{Target: 0.75, Upper: 0.95, Lower: 0.50},
		ReserveRatio:     KPIBounds{Target: 0.25, Upper: 0.50, Lower: 0.10},
		AvgSeverity:      KPIBounds{Target: 5000, Upper: 7500, Lower: 2500},
		ClaimFrequency:   KPIBounds{Target: 100, Upper: 200, Lower: 50},
		LargeClaimsPct:   KPIBounds{Target: 5, Upper: 15, Lower: 1},
		OpenClaimsRatio:  KPIBounds{Target: 30, Upper: 60, Lower: 10},
		ReportingDelay:   KPIBounds{Target: 30, Upper: 90, Lower: 5},
		LargeClaimCutoff: 50000,
	}
}

// KPI is one tracked indicator with its alert band and current status.
type KPI struct {
	Name           string  `json:"name"`
	CurrentValue   float64 `json:"current_value"`
	TargetValue    float64 `json:"target_value"`
	ThresholdUpper float64 `json:"threshold_upper"`
	ThresholdLower float64 `json:"threshold_lower"`
	Status         string  `json:"status"`
	Trend          string  `json:"trend"`
}

// Alert is a triggered KPI threshold breach.
type Alert struct {
	AlertID     string         `json:"alert_id"`
	AlertType   string         `json:"alert_type"`
	Severity    string         `json:"severity"`
	Message     string         `json:"message"`
	TriggeredAt string         `json:"triggered_at"`
	DataContext map[string]any `json:"data_context"`
}

// MonitoringReport is the monitor_development result.
type MonitoringReport struct {
	Alerts           []Alert        `json:"alerts"`
	KPIs             []KPI          `json:"kpis"`
	DashboardMetrics map[string]any `json:"dashboard_metrics"`
}

// MonitorDevelopment computes portfolio KPIs, raises alerts for breached
// upper thresholds, and assembles the dashboard metrics. now timestamps the
// alerts.
func MonitorDevelopment(claims []Claim, cfg MonitoringConfig, now time.Time) *MonitoringReport {
	report := &MonitoringReport{
		Alerts:           []Alert{},
		KPIs:             []KPI{},
		DashboardMetrics: map[string]any{},
	}
	if len(claims) == 0 {
		return report
	}

	report.KPIs = calculateKPIs(claims, cfg)
	report.Alerts = checkKPIAlerts(report.KPIs, now)
	report.DashboardMetrics = dashboardMetrics(claims, cfg)
	return report
}

func calculateKPIs(claims []Claim, cfg MonitoringConfig) []KPI {
	var kpis []KPI

	var totalIncurred, totalPaid, totalReserves float64
	incurredAmounts := make([]float64, 0, len(claims))
	for _, claim := range claims {
		incurred := claim.Number(incurredKeys...)
		totalIncurred += incurred
		totalPaid += claim.Number(paidAmountKeys...)
		totalReserves += claim.Number(reserveKeys...)
		incurredAmounts = append(incurredAmounts, incurred)
	}

	if totalIncurred > 0 {
		lossRatio := totalPaid / totalIncurred
		kpis = append(kpis, newKPI("loss_ratio", lossRatio, cfg.LossRatio))
		kpis = append(kpis, newKPI("payment_ratio", lossRatio, cfg.PaymentRatio))
		kpis = append(kpis, newKPI("reserve_ratio", totalReserves/totalIncurred, cfg.ReserveRatio))
		kpis = append(kpis, newKPI("avg_severity", mean(incurredAmounts), cfg.AvgSeverity))
	}

	kpis = append(kpis, newKPI("claim_frequency", float64(len(claims)), cfg.ClaimFrequency))

	large := 0
	for _, incurred := range incurredAmounts {
		if incurred > cfg.LargeClaimCutoff {
			large++
		}
	}
	kpis = append(kpis, newKPI("large_claims_percentage",
		float64(large)/float64(len(claims))*100, cfg.LargeClaimsPct))

	if open, hasStatus := openClaimCount(claims); hasStatus {
		kpis = append(kpis, newKPI("open_claims_ratio",
			float64(open)/float64(len(claims))*100, cfg.OpenClaimsRatio))
	}

	if delay, ok := averageReportingDelay(claims); ok {
		kpis = append(kpis, newKPI("avg_reporting_delay_days", delay, cfg.ReportingDelay))
	}
	return kpis
}

func newKPI(name string, current float64, bounds KPIBounds) KPI {
	status := "normal"
	switch {
	case current > bounds.Upper:
		status = "above_threshold"
	case current < bounds.Lower:
		status = "below_threshold"
	}
	return KPI{
		Name:           name,
		CurrentValue:   current,
		TargetValue:    bounds.Target,
		ThresholdUpper: bounds.Upper,
		ThresholdLower: bounds.Lower,
		Status:         status,
		Trend:          "stable",
	}
}

func checkKPIAlerts(kpis []KPI, now time.Time) []Alert {
	alerts := []Alert{}
	for _, kpi := range kpis {
		if kpi.Status != "above_threshold" {
			continue
		}
		alerts = append(alerts, Alert{
			AlertID:   fmt.Sprintf("kpi_%s_%s", kpi.Name, now.Format("20060102_150405")),
			AlertType: "kpi_threshold",
			Severity:  "warning",
			Message: fmt.Sprintf("KPI %s exceeded threshold: %.3f > %.3f",
				kpi.Name, kpi.CurrentValue, kpi.ThresholdUpper),
			TriggeredAt: now.Format(time.RFC3339),
			DataContext: map[string]any{
				"kpi_name":  kpi.Name,
				"current":   kpi.CurrentValue,
				"threshold": kpi.ThresholdUpper,
			},
		})
	}
	return alerts
}

func openClaimCount(claims []Claim) (open int, hasStatus bool) {
	for _, claim := range claims {
		status := claim.String("claimstatus")
		if status == "" {
			continue
		}
		hasStatus = true
		if strings.EqualFold(status, "open") {
			open++
		}
	}
	return open, hasStatus
}

func averageReportingDelay(claims []Claim) (float64, bool) {
	var total float64
	count := 0
	for _, claim := range claims {
		policy, okP := claim.Date(policyDateKeys...)
		report, okR := claim.Date(reportDateKeys...)
		if !okP || !okR {
			continue
		}
		total += report.Sub(policy).Hours() / 24
		count++
	}
	if count == 0 {
		return 0, false
	}
	return total / float64(count), true
}

func dashboardMetrics(claims []Claim, cfg MonitoringConfig) map[string]any {
	var totalIncurred, totalPaid, totalReserves float64
	incurredAmounts := make([]float64, 0, len(claims))
	maxIncurred := 0.0
	for _, claim := range claims {
		incurred := claim.Number(incurredKeys...)
		totalIncurred += incurred
		totalPaid += claim.Number(paidAmountKeys...)
		totalReserves += claim.Number(reserveKeys...)
		incurredAmounts = append(incurredAmounts, incurred)
		if incurred > maxIncurred {
			maxIncurred = incurred
		}
	}

	return map[string]any{
		"summary_statistics": map[string]any{
			"total_claims":      len(claims),
			"total_incurred":    totalIncurred,
			"total_paid":        totalPaid,
			"total_reserves":    totalReserves,
			"avg_claim_size":    mean(incurredAmounts),
			"median_claim_size": percentile(incurredAmounts, 0.5),
			"max_claim_size":    maxIncurred,
		},
		"claim_distribution":        claimDistribution(incurredAmounts),
		"line_of_business_analysis": lineOfBusinessAnalysis(claims),
		"temporal_analysis":         temporalAnalysis(claims),
		"status_breakdown":          statusBreakdown(claims),
		"performance_indicators": map[string]any{
			// Standing assumption of a 30-day reporting window.
			"claims_per_day":        float64(len(claims)) / 30,
			"avg_reserve_per_claim": totalReserves / float64(len(claims)),
			"settlement_rate":       settlementRate(claims),
		},
	}
}

func claimDistribution(amounts []float64) map[string]any {
	if len(amounts) == 0 {
		return map[string]any{}
	}
	bands := map[string]int{}
	for _, amount := range amounts {
		switch {
		case amount <= 10000:
			bands["small_claims_0_10k"]++
		case amount <= 50000:
			bands["medium_claims_10k_50k"]++
		case amount <= 100000:
			bands["large_claims_50k_100k"]++
		default:
			bands["very_large_claims_100k_plus"]++
		}
	}
	return map[string]any{
		"small_claims_0_10k":          bands["small_claims_0_10k"],
		"medium_claims_10k_50k":       bands["medium_claims_10k_50k"],
		"large_claims_50k_100k":       bands["large_claims_50k_100k"],
		"very_large_claims_100k_plus": bands["very_large_claims_100k_plus"],
		"percentiles": map[string]float64{
			"25th": percentile(amounts, 0.25),
			"50th": percentile(amounts, 0.50),
			"75th": percentile(amounts, 0.75),
			"90th": percentile(amounts, 0.90),
			"95th": percentile(amounts, 0.95),
		},
	}
}

func lineOfBusinessAnalysis(claims []Claim) map[string]any {
	byLOB := make(map[string][]float64)
	for _, claim := range claims {
		lob := claim.String("lineofbusiness")
		if lob == "" {
			continue
		}
		byLOB[lob] = append(byLOB[lob], claim.Number(incurredKeys...))
	}

	analysis := map[string]any{}
	for lob, amounts := range byLOB {
		var total float64
		for _, amount := range amounts {
			total += amount
		}
		analysis[lob] = map[string]any{
			"claim_count":         len(amounts),
			"total_incurred":      total,
			"avg_severity":        total / float64(len(amounts)),
			"percentage_of_total": float64(len(amounts)) / float64(len(claims)) * 100,
		}
	}
	return analysis
}

func temporalAnalysis(claims []Claim) map[string]any {
	type yearStats struct {
		count    int
		incurred float64
	}
	byYear := make(map[string]*yearStats)
	for _, claim := range claims {
		d, ok := claim.Date(policyDateKeys...)
		if !ok {
			continue
		}
		year := fmt.Sprintf("%d", d.Year())
		stats := byYear[year]
		if stats == nil {
			stats = &yearStats{}
			byYear[year] = stats
		}
		stats.count++
		stats.incurred += claim.Number(incurredKeys...)
	}
	if len(byYear) == 0 {
		return map[string]any{}
	}

	yearly := map[string]any{}
	mostActive := ""
	mostActiveCount := -1
	for year, stats := range byYear {
		yearly[year] = map[string]any{
			"claim_count":    stats.count,
			"total_incurred": stats.incurred,
			"avg_severity":   stats.incurred / float64(stats.count),
		}
		if stats.count > mostActiveCount || (stats.count == mostActiveCount && year < mostActive) {
			mostActive = year
			mostActiveCount = stats.count
		}
	}

	return map[string]any{
		"by_accident_year": yearly,
		"trend_analysis": map[string]any{
			"years_covered":    len(yearly),
			"most_active_year": mostActive,
		},
	}
}

func statusBreakdown(claims []Claim) map[string]any {
	counts := map[string]int{}
	total := 0
	for _, claim := range claims {
		status := claim.String("claimstatus")
		if status == "" {
			continue
		}
		counts[status]++
		total++
	}
	if total == 0 {
		return map[string]any{}
	}

	distribution := map[string]any{}
	open := 0
	closed := 0
	for status, count := range counts {
		distribution[status] = map[string]any{
			"count":      count,
			"percentage": float64(count) / float64(len(claims)) * 100,
		}
		switch strings.ToLower(status) {
		case "open":
			open += count
		case "close", "closed":
			closed += count
		}
	}

	return map[string]any{
		"status_distribution": distribution,
		"open_vs_closed": map[string]any{
			"open_claims":     open,
			"closed_claims":   closed,
			"open_percentage": float64(open) / float64(len(claims)) * 100,
		},
	}
}

func settlementRate(claims []Claim) float64 {
	if len(claims) == 0 {
		return 0
	}
	closed := 0
	for _, claim := range claims {
		status := strings.ToLower(claim.String("claimstatus"))
		if strings.Contains(status, "close") || strings.Contains(status, "settled") {
			closed++
		}
	}
	return float64(closed) / float64(len(claims)) * 100
}
