package domain

import (
	"testing"

	ledgerdomain "github.com/trackchain/trackway/internal/ledger/domain"
	"github.com/stretchr/testify/assert"
)

func TestEstimateCost(t *testing.T) {
	tests := []struct {
		name    string
		count   int
		profile Profile
		want    int64
	}{
		{
			name:    "no optimizations",
			count:   5,
			profile: Profile{},
			want:    325000,
		},
		{
			name:    "level below advanced has no discount",
			count:   5,
			profile: Profile{OptimizationLevel: 2},
			want:    325000,
		},
		{
			name:    "advanced level with compression",
			count:   5,
			profile: Profile{OptimizationLevel: 3, Compressed: true},
			want:    248625,
		},
		{
			name:    "all discounts stack",
			count:   5,
			profile: Profile{OptimizationLevel: 5, Compressed: true, Parallel: true},
			want:    198900,
		},
		{
			name:    "compression only",
			count:   10,
			profile: Profile{Compressed: true},
			want:    585000,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateCost(ledgerdomain.KindBatchTransfer, tt.count, tt.profile)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEstimateSavings(t *testing.T) {
	est := EstimateSavings(ledgerdomain.KindBatchTransfer, 5)
	assert.Equal(t, int64(65000), est.PerOperationCost)
	assert.Equal(t, int64(325000), est.BaselineCost)
	assert.Equal(t, int64(248625), est.OptimizedCost)
	assert.Equal(t, int64(76375), est.Savings)
}

func TestSavingsGrowWithCount(t *testing.T) {
	prev := int64(0)
	for count := 1; count <= 100; count++ {
		est := EstimateSavings(ledgerdomain.KindBatchTransfer, count)
		assert.Greater(t, est.Savings, prev, "count %d", count)
		prev = est.Savings
	}
}
