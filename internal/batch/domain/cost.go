package domain

import (
	"math"

	ledgerdomain "github.com/trackchain/trackway/internal/ledger/domain"
)

const (
	OptimizationLevelMin = 0
	OptimizationLevelMax = 5

	// Levels at or above this apply the advanced-encoding discount.
	advancedOptimizationLevel = 3

	advancedFactor    = 0.85
	compressionFactor = 0.90
	parallelFactor    = 0.80
)

// Profile is the set of optimizations a batch is costed with. Discounts are
// multiplicative, applied in a fixed order: level, compression, parallelism.
type Profile struct {
	OptimizationLevel int  `json:"optimization_level"`
	Compressed        bool `json:"compressed"`
	Parallel          bool `json:"parallel"`
}

// DefaultProfile is the reference profile for savings estimates: advanced
// encoding plus compression, no parallelism assumed.
var DefaultProfile = Profile{OptimizationLevel: advancedOptimizationLevel, Compressed: true}

// EstimateCost models the resource cost of committing count operations of
// the kind as one batch under the profile.
func EstimateCost(kind ledgerdomain.Kind, count int, profile Profile) int64 {
	cost := float64(ledgerdomain.ResourceCost(kind)) * float64(count)
	if profile.OptimizationLevel >= advancedOptimizationLevel {
		cost *= advancedFactor
	}
	if profile.Compressed {
		cost *= compressionFactor
	}
	if profile.Parallel {
		cost *= parallelFactor
	}
	return int64(math.Round(cost))
}

// SavingsEstimate compares per-operation submission against one batch under
// the default profile.
type SavingsEstimate struct {
	OperationType    ledgerdomain.Kind `json:"operation_type"`
	Count            int               `json:"count"`
	PerOperationCost int64             `json:"per_operation_cost"`
	BaselineCost     int64             `json:"baseline_cost"`
	OptimizedCost    int64             `json:"optimized_cost"`
	Savings          int64             `json:"savings"`
}

// EstimateSavings returns the saving from batching count operations of the
// kind instead of submitting them one by one. Savings grow strictly with
// count for any kind with a nonzero cost.
func EstimateSavings(kind ledgerdomain.Kind, count int) SavingsEstimate {
	perOp := ledgerdomain.ResourceCost(kind)
	baseline := perOp * int64(count)
	optimized := EstimateCost(kind, count, DefaultProfile)
	return SavingsEstimate{
		OperationType:    kind,
		Count:            count,
		PerOperationCost: perOp,
		BaselineCost:     baseline,
		OptimizedCost:    optimized,
		Savings:          baseline - optimized,
	}
}
