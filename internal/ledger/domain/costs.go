package domain

// Modeled per-operation resource costs, in resource units. These mirror the
// gas profile of the execution substrate and feed the selector's estimates
// and the batch savings estimator; they are planning figures, not measured
// values.
var resourceCosts = map[Kind]int64{
	KindCreateShard:       2500000,
	KindCreateParticipant: 90000,
	KindCreateProduct:     150000,
	KindAdvanceStage:      65000,
	KindBatchTransfer:     65000,
	KindAddQualityCheck:   45000,
	KindSensorBatch:       30000,
	KindRecallProduct:     80000,
	KindCreateBatch:       40000,
	KindRebalance:         120000,
}

// ResourceCost returns the modeled cost of one operation of the kind.
// Unknown kinds cost zero.
func ResourceCost(k Kind) int64 {
	return resourceCosts[k]
}
