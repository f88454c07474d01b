package analysis

import (
	"fmt"
	"math"
)

// Compactor capacity math. These apply to stationary compactors only; open
// top containers carry far lower tonnage for their size and must not be run
// through this model.

const (
	// Compacted waste weighs roughly 580 lb per cubic yard.
	compactedLbsPerYard = 580
	lbsPerTon           = 2000

	// One ton of compacted waste occupies about 3.448 cubic yards loose.
	yardsPerTon = 3.448

	// Haulers bill fuel and environmental surcharges on top of the base
	// haul fee; 1.39 is the observed all-in multiplier.
	haulFeeMultiplier = 1.39

	targetUtilizationPct = 75
)

type CapacityAnalysis struct {
	MaxCapacityTons float64 `json:"max_capacity_tons"`
	UtilizationPct  float64 `json:"utilization_pct"`
	Status          string  `json:"utilization_status"`
}

type PickupOptimization struct {
	RecommendedPickups int     `json:"recommended_pickups"`
	PickupReduction    int     `json:"pickup_reduction"`
	DaysBetweenPickups float64 `json:"days_between_pickups"`
	OptimizedPct       float64 `json:"optimized_utilization_pct"`
	AnnualSavings      float64 `json:"annual_savings"`
	MonthlySavings     float64 `json:"monthly_savings"`
	Priority           string  `json:"priority"`
}

// MaxCapacityTons is the theoretical fill weight of a compactor container.
func MaxCapacityTons(containerSizeYards float64) float64 {
	return (containerSizeYards * compactedLbsPerYard) / lbsPerTon
}

func UtilizationPct(actualTons, maxCapacityTons float64) float64 {
	if maxCapacityTons <= 0 {
		return 0
	}
	return (actualTons / maxCapacityTons) * 100
}

func TonsToYards(tons float64) float64 {
	return tons * yardsPerTon
}

// AnalyzeCompactorCapacity classifies how full the container runs per pull.
func AnalyzeCompactorCapacity(containerSizeYards, avgTonsPerPull float64) CapacityAnalysis {
	maxCap := MaxCapacityTons(containerSizeYards)
	util := UtilizationPct(avgTonsPerPull, maxCap)

	status := "Over-utilized"
	switch {
	case util < 60:
		status = "Under-utilized"
	case util >= 70 && util <= 85:
		status = "Optimal"
	case util < 70:
		status = "Acceptable"
	}

	return CapacityAnalysis{
		MaxCapacityTons: maxCap,
		UtilizationPct:  util,
		Status:          status,
	}
}

// OptimizePickups proposes a reduced annual pickup count for under-utilized
// compactors (below 60%), targeting 75% utilization. Returns nil when the
// current schedule is already justified.
func OptimizePickups(containerSizeYards float64, currentPickups int, avgTonsPerPull, baseHaulFee float64) *PickupOptimization {
	if currentPickups <= 0 {
		return nil
	}
	capacity := AnalyzeCompactorCapacity(containerSizeYards, avgTonsPerPull)
	if capacity.UtilizationPct >= 60 {
		return nil
	}

	optimal := int(math.Round(float64(currentPickups) * (capacity.UtilizationPct / targetUtilizationPct)))
	if optimal < 1 {
		optimal = 1
	}
	if optimal >= currentPickups {
		return nil
	}

	annualTonnage := avgTonsPerPull * float64(currentPickups)
	currentCost := baseHaulFee * float64(currentPickups) * haulFeeMultiplier
	optimizedCost := baseHaulFee * float64(optimal) * haulFeeMultiplier
	annualSavings := currentCost - optimizedCost

	priority := "MEDIUM"
	if capacity.UtilizationPct < 50 {
		priority = "HIGH"
	}

	return &PickupOptimization{
		RecommendedPickups: optimal,
		PickupReduction:    currentPickups - optimal,
		DaysBetweenPickups: 365 / float64(optimal),
		OptimizedPct:       UtilizationPct(annualTonnage/float64(optimal), capacity.MaxCapacityTons),
		AnnualSavings:      annualSavings,
		MonthlySavings:     annualSavings / 12,
		Priority:           priority,
	}
}

// Recommendation shapes the optimization for the prioritized list.
func (o *PickupOptimization) Recommendation() *Recommendation {
	return &Recommendation{
		Title: "Reduce Pickup Frequency",
		Detail: fmt.Sprintf(
			"Compactor runs light; %d annual pickups cover the tonnage at target utilization (one every %.1f days, %d fewer per year).",
			o.RecommendedPickups, o.DaysBetweenPickups, o.PickupReduction),
		MonthlySavings: o.MonthlySavings,
		AnnualSavings:  o.AnnualSavings,
	}
}
