package actuarial

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/quicksuite-labs/agentgateway/gateway"
)

// averageDaysPerMonth converts reporting lags to development months.
const averageDaysPerMonth = 30.44

const triangleStructure = "accident_years_as_rows_development_years_as_columns"

// Triangle is one incremental loss triangle: accident year to development
// year to value, zero-filled across the full grid.
type Triangle struct {
	Data      map[int]map[int]float64 `json:"data"`
	Structure string                  `json:"structure"`
}

// TriangleCell is one aggregated (accident year, development year) bucket.
type TriangleCell struct {
	AccidentYear     int     `json:"accident_year"`
	DevelopmentYears int     `json:"development_years"`
	TotalIncurred    float64 `json:"totalincurred"`
	PaidTotal        float64 `json:"paidtotal"`
	ReserveTotal     float64 `json:"reservetotal"`
	ClaimCount       int     `json:"claim_count"`
}

// TriangleMetadata describes the grid.
type TriangleMetadata struct {
	AccidentYears    []int  `json:"accident_years"`
	DevelopmentYears []int  `json:"development_years"`
	Description      string `json:"description"`
}

// TriangleSet is the build_loss_triangles result: four incremental triangles
// over the same grid plus the underlying aggregated cells.
type TriangleSet struct {
	Incurred     Triangle         `json:"incurred_triangle"`
	Paid         Triangle         `json:"paid_triangle"`
	Reserve      Triangle         `json:"reserve_triangle"`
	Count        Triangle         `json:"count_triangle"`
	TriangleData []TriangleCell   `json:"triangle_data"`
	Metadata     TriangleMetadata `json:"metadata"`
}

// BuildLossTriangles aggregates validated claims into accident-year by
// development-year triangles. The accident date is the policy effective date
// and the report date is the note date, matching the claims extract layout.
func BuildLossTriangles(claims []Claim) (*TriangleSet, error) {
	if len(claims) == 0 {
		return nil, gateway.NewToolError(gateway.CodeValidationError, "no claims data provided")
	}

	if err := checkRequiredColumns(claims); err != nil {
		return nil, err
	}

	type bucket struct {
		incurred float64
		paid     float64
		reserve  float64
		count    int
	}
	type cellKey struct {
		year int
		dev  int
	}

	buckets := make(map[cellKey]*bucket)
	valid := 0
	for _, claim := range claims {
		accident, okA := claim.Date(policyDateKeys...)
		report, okR := claim.Date(reportDateKeys...)
		incurred := claim.Number(incurredKeys...)
		if !okA || !okR || incurred <= 0 || accident.After(report) {
			continue
		}
		valid++

		devMonths := int(math.Round(report.Sub(accident).Hours() / 24 / averageDaysPerMonth))
		devYears := int(math.Round(float64(devMonths)/12)) + 1

		key := cellKey{year: accident.Year(), dev: devYears}
		b := buckets[key]
		if b == nil {
			b = &bucket{}
			buckets[key] = b
		}
		b.incurred += incurred
		b.paid += claim.Number(paidAmountKeys...)
		b.reserve += claim.Number(reserveKeys...)
		b.count++
	}
	if valid == 0 {
		return nil, gateway.NewToolError(gateway.CodeValidationError, "no valid claims after date conversion")
	}

	yearSet := make(map[int]bool)
	devSet := make(map[int]bool)
	for key := range buckets {
		yearSet[key.year] = true
		devSet[key.dev] = true
	}
	years := sortedKeys(yearSet)
	devs := sortedKeys(devSet)

	set := &TriangleSet{
		Incurred: newTriangle(years, devs),
		Paid:     newTriangle(years, devs),
		Reserve:  newTriangle(years, devs),
		Count:    newTriangle(years, devs),
		Metadata: TriangleMetadata{
			AccidentYears:    years,
			DevelopmentYears: devs,
			Description:      "Incremental triangles - accident years as rows, development years as columns",
		},
	}

	for _, year := range years {
		for _, dev := range devs {
			b := buckets[cellKey{year: year, dev: dev}]
			if b == nil {
				continue
			}
			set.Incurred.Data[year][dev] = b.incurred
			set.Paid.Data[year][dev] = b.paid
			set.Reserve.Data[year][dev] = b.reserve
			set.Count.Data[year][dev] = float64(b.count)
			set.TriangleData = append(set.TriangleData, TriangleCell{
				AccidentYear:     year,
				DevelopmentYears: dev,
				TotalIncurred:    b.incurred,
				PaidTotal:        b.paid,
				ReserveTotal:     b.reserve,
				ClaimCount:       b.count,
			})
		}
	}
	return set, nil
}

// checkRequiredColumns verifies the columns the triangle builder depends on
// appear somewhere in the data set, naming the available columns otherwise.
func checkRequiredColumns(claims []Claim) error {
	required := map[string][]string{
		"policyeffectivedate": policyDateKeys,
		"note_date":           reportDateKeys,
		"totalincurred":       incurredKeys,
	}

	columns := make(map[string]bool)
	for _, claim := range claims {
		for key := range claim {
			columns[key] = true
		}
	}

	for name, variants := range required {
		found := false
		for _, variant := range variants {
			if columns[variant] {
				found = true
				break
			}
		}
		if !found {
			available := make([]string, 0, len(columns))
			for col := range columns {
				available = append(available, col)
			}
			sort.Strings(available)
			return gateway.NewToolError(gateway.CodeValidationError,
				fmt.Sprintf("required column %s not found; available columns: %s", name, strings.Join(available, ", ")))
		}
	}
	return nil
}

func newTriangle(years, devs []int) Triangle {
	data := make(map[int]map[int]float64, len(years))
	for _, year := range years {
		row := make(map[int]float64, len(devs))
		for _, dev := range devs {
			row[dev] = 0
		}
		data[year] = row
	}
	return Triangle{Data: data, Structure: triangleStructure}
}

func sortedKeys(set map[int]bool) []int {
	keys := make([]int, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
