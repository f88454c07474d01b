// Package analysis holds the waste-spend recommendation engine. All money is
// expressed in dollars here because the formulas are ratios and thresholds
// taken from operator playbooks; callers convert from stored cents at the
// boundary.
package analysis

import (
	"math"
	"sort"
)

// Property types.
const (
	PropertyGarden   = "garden"
	PropertyMidRise  = "mid-rise"
	PropertyHighRise = "high-rise"
	PropertyMixedUse = "mixed-use"
)

// Occupancy statuses.
const (
	StatusLeaseUp    = "lease-up"
	StatusStabilized = "stabilized"
	StatusValueAdd   = "value-add"
)

type Property struct {
	Name         string  `json:"name"`
	Units        int     `json:"units"`
	PropertyType string  `json:"property_type"`
	OccupancyPct float64 `json:"occupancy_pct"`
	Status       string  `json:"status"`
	HasCompactor bool    `json:"has_compactor"`
	HasValet     bool    `json:"has_valet"`
	Location     string  `json:"location,omitempty"`
}

type Equipment struct {
	CompactorTons          float64 `json:"compactor_tons,omitempty"`
	CompactorPickupDaysMax int     `json:"compactor_pickup_days_max,omitempty"`
	ContainerSizeYards     float64 `json:"container_size_yards,omitempty"`
	AnnualPickups          int     `json:"annual_pickups,omitempty"`
	DumpsterQty            int     `json:"dumpster_qty,omitempty"`
	DumpsterSize           float64 `json:"dumpster_size,omitempty"`
	DumpsterFreqPerWeek    float64 `json:"dumpster_freq_per_week,omitempty"`
	DualCompactors         bool    `json:"dual_compactors,omitempty"`
}

type Financials struct {
	MonthlyCost          float64 `json:"monthly_cost"`
	PickupCostPerHaul    float64 `json:"pickup_cost_per_haul"`
	BaseHaulFee          float64 `json:"base_haul_fee,omitempty"`
	ContaminationCharges float64 `json:"contamination_charges"`
	BulkCharges          float64 `json:"bulk_charges"`
	AvgMonthlyOverage    float64 `json:"avg_monthly_overage"`
	AvgTonsPerHaul       float64 `json:"avg_tons_per_haul"`
	OveragesPresent      bool    `json:"overages_present"`
}

// Recommendation is a single actionable finding. PaybackMonths is nil when
// the action has no upfront cost to recover.
type Recommendation struct {
	Title          string   `json:"title"`
	Detail         string   `json:"detail"`
	MonthlySavings float64  `json:"monthly_savings"`
	AnnualSavings  float64  `json:"annual_savings"`
	PaybackMonths  *float64 `json:"payback_months,omitempty"`
	Priority       int      `json:"priority,omitempty"`
}

// Overage frequency classifications for OverageStrategy.
const (
	OverageConsistent = "consistent"
	OverageSeasonal   = "seasonal"
	OverageSporadic   = "sporadic"
)

// YardsPerDoorCompactor converts hauled tons to the yards-per-door metric
// used to benchmark compactor properties. 14.49 yd/ton is the standard
// compacted-waste density conversion.
func YardsPerDoorCompactor(totalTons float64, units int) float64 {
	if units <= 0 {
		return 0
	}
	return (totalTons * 14.49) / float64(units)
}

// YardsPerDoorDumpster computes the equivalent metric for dumpster service
// from container count, size, and weekly frequency. 4.33 is weeks per month.
func YardsPerDoorDumpster(qty int, size, freqPerWeek float64, units int) float64 {
	if units <= 0 {
		return 0
	}
	return (float64(qty) * size * freqPerWeek * 4.33) / float64(units)
}

func CostPerDoor(monthlyCost float64, units int) float64 {
	if units <= 0 {
		return 0
	}
	return monthlyCost / float64(units)
}

func AnnualSavings(monthlySavings float64) float64 {
	return monthlySavings * 12
}

// CompactorOptimization recommends haul monitors when a compactor is being
// pulled light. It declines when the equipment is already efficient (7+
// tons/haul or pickups already spaced beyond 14 days), when the projected
// pickup savings are under $300/month, or when monitor costs eat the gain.
func CompactorOptimization(eq Equipment, fin Financials, installCost, monitoringCost float64) *Recommendation {
	if eq.CompactorTons <= 0 {
		return nil
	}
	if fin.AvgTonsPerHaul >= 7 {
		return nil
	}
	if eq.CompactorPickupDaysMax > 14 {
		return nil
	}

	monthlyPickupSavings := fin.PickupCostPerHaul
	if monthlyPickupSavings < 300 {
		return nil
	}

	net := monthlyPickupSavings - (installCost + monitoringCost)
	if net <= 0 {
		return nil
	}

	return &Recommendation{
		Title:          "Add Compactor Monitors",
		Detail:         "Average tons per haul is below 7 with pickups 14 days apart or closer; monitors target 8-9 tons per haul.",
		MonthlySavings: net,
		AnnualSavings:  AnnualSavings(net),
	}
}

// LeaseUpBudgetProjection scales current spend to a target occupancy for
// lease-up properties. Stabilized properties project flat.
func LeaseUpBudgetProjection(p Property, currentCost, currentOccupancy, targetOccupancy float64) float64 {
	if p.Status != StatusLeaseUp || currentOccupancy <= 0 {
		return currentCost
	}
	return (currentCost / currentOccupancy) * targetOccupancy
}

// OverageStrategy compares the annualized cost of overages against adding a
// permanent service day.
func OverageStrategy(fin Financials, frequency string, extraServiceCost float64) string {
	annualOverage := fin.AvgMonthlyOverage * 12
	annualAddedService := extraServiceCost * 12

	switch frequency {
	case OverageConsistent:
		if annualAddedService < annualOverage {
			return "Add permanent service day; cheaper than overages."
		}
		return "Overages cheaper than added service; keep status quo."
	case OverageSeasonal:
		return "Add seasonal service only during peak months."
	default:
		return "Investigate operations (valet distribution, compliance); consider larger equipment if needed."
	}
}

// ContaminationPlan recommends an intervention when contamination charges
// exceed 3% of total spend. Above a 5% rate the expected reduction is 50%,
// otherwise 25%. The full program (signage, education, monitoring) is only
// worth its cost when the monthly charges also exceed $150.
func ContaminationPlan(fin Financials, totalSpend float64) *Recommendation {
	if totalSpend <= 0 {
		return nil
	}
	rate := (fin.ContaminationCharges / totalSpend) * 100
	if rate <= 3 {
		return nil
	}

	detail := "Light intervention: signage refresh and resident reminders."
	if rate > 5 && fin.ContaminationCharges > 150 {
		detail = "Full contamination reduction: signage $500, education $300, monitoring $50/month; expected 50% charge reduction."
	}

	monthly := fin.ContaminationCharges * 0.25
	if rate > 5 {
		monthly = fin.ContaminationCharges * 0.5
	}

	return &Recommendation{
		Title:          "Contamination Reduction",
		Detail:         detail,
		MonthlySavings: monthly,
		AnnualSavings:  AnnualSavings(monthly),
	}
}

// BulkStrategy always returns a recommendation; above $500/month average
// bulk spend a $400 subscription wins, $300-500 is a watch zone.
func BulkStrategy(avgMonthlyBulk float64) *Recommendation {
	if avgMonthlyBulk > 500 {
		monthly := avgMonthlyBulk - 400
		return &Recommendation{
			Title:          "Switch to Bulk Subscription",
			Detail:         "Average bulk exceeds $500/month; a subscription at $400/month lowers cost.",
			MonthlySavings: monthly,
			AnnualSavings:  AnnualSavings(monthly),
		}
	}
	if avgMonthlyBulk >= 300 {
		return &Recommendation{
			Title:  "Monitor Bulk Spend",
			Detail: "Borderline spend; monitor 3 months and prepare for subscription if the trend increases.",
		}
	}
	return &Recommendation{
		Title:  "Keep On-Demand Bulk",
		Detail: "On-demand pricing remains cost-effective.",
	}
}

// ServiceLevel returns the pickup-frequency guidance. Contamination and
// overage problems block any reduction advice until resolved.
func ServiceLevel(fin Financials, contaminationOrOverages bool) string {
	if contaminationOrOverages && fin.AvgTonsPerHaul < 6 {
		return "Address contamination/overages before any reduction."
	}
	if fin.AvgTonsPerHaul >= 8 && fin.OveragesPresent {
		return "Add service day (compactor near capacity)."
	}
	if fin.AvgTonsPerHaul < 6 && !fin.OveragesPresent {
		return "Reduce pickup frequency (underutilized)."
	}
	return "Maintain current service."
}

// Prioritize ranks by annual savings descending, then payback ascending with
// unknown payback last, and assigns 1-based priorities in place.
func Prioritize(recs []*Recommendation) []*Recommendation {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].AnnualSavings != recs[j].AnnualSavings {
			return recs[i].AnnualSavings > recs[j].AnnualSavings
		}
		return payback(recs[i]) < payback(recs[j])
	})
	for i, r := range recs {
		r.Priority = i + 1
	}
	return recs
}

func payback(r *Recommendation) float64 {
	if r.PaybackMonths == nil {
		return math.Inf(1)
	}
	return *r.PaybackMonths
}

// Validate reports every input problem rather than stopping at the first.
func Validate(p Property, eq Equipment, invoiceCount int) []string {
	var errs []string
	if p.Name == "" {
		errs = append(errs, "property name is required")
	}
	if p.Units <= 0 {
		errs = append(errs, "units must be positive")
	}
	if p.Status == StatusLeaseUp && p.OccupancyPct >= 90 {
		errs = append(errs, "lease-up status inconsistent with occupancy >= 90%")
	}
	if eq.CompactorPickupDaysMax > 14 {
		errs = append(errs, "compactor pickup interval exceeds the 14-day optimization threshold")
	}
	if invoiceCount == 0 {
		errs = append(errs, "at least one invoice is required")
	}
	return errs
}
