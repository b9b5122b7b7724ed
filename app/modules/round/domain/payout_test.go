package rounddomain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestComputePayout(t *testing.T) {
	tenPct := decimal.RequireFromString("0.10")

	tests := []struct {
		name         string
		pool         int64
		sponsored    int64
		rate         decimal.Decimal
		distribution []int
		paid         int
		wantNet      int64
		wantPrizes   []int64
	}{
		{
			name:         "top three",
			pool:         10000,
			rate:         tenPct,
			distribution: []int{50, 30, 20},
			paid:         3,
			wantNet:      9000,
			wantPrizes:   []int64{4500, 2700, 1800},
		},
		{
			name:         "sponsorship is not commissioned",
			pool:         1000,
			sponsored:    500,
			rate:         tenPct,
			distribution: []int{100},
			paid:         1,
			wantNet:      1400,
			wantPrizes:   []int64{1400},
		},
		{
			name:         "fewer actors than positions",
			pool:         10000,
			rate:         tenPct,
			distribution: []int{50, 30, 20},
			paid:         2,
			wantNet:      9000,
			wantPrizes:   []int64{4500, 2700},
		},
		{
			name:         "floor remainder stays with platform",
			pool:         1001,
			rate:         decimal.RequireFromString("0.15"),
			distribution: []int{34, 33, 33},
			paid:         3,
			wantNet:      851,
			wantPrizes:   []int64{289, 280, 280},
		},
		{
			name:         "paid positions clamp to distribution",
			pool:         100,
			rate:         decimal.Zero,
			distribution: []int{100},
			paid:         4,
			wantNet:      100,
			wantPrizes:   []int64{100},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ComputePayout(tt.pool, tt.sponsored, tt.rate, tt.distribution, tt.paid)
			assert.Equal(t, tt.wantNet, p.Net)
			assert.Equal(t, tt.wantPrizes, p.Prizes)
			assert.LessOrEqual(t, p.Distributed, p.Net)
			assert.Equal(t, p.Net-p.Distributed, p.Remainder)
			assert.Equal(t, tt.pool-p.Commission+tt.sponsored, p.Net)
		})
	}
}

func TestComputePayoutConservation(t *testing.T) {
	distributions := [][]int{{100}, {50, 50}, {50, 30, 20}, {40, 25, 15, 10, 10}, {34, 33, 33}}
	rates := []string{"0", "0.05", "0.10", "0.333"}

	for _, dist := range distributions {
		for _, rate := range rates {
			for pool := int64(0); pool <= 2000; pool += 37 {
				p := ComputePayout(pool, 13, decimal.RequireFromString(rate), dist, len(dist))
				assert.LessOrEqual(t, p.Distributed, p.Net)
				assert.Less(t, p.Remainder, int64(len(dist)), "pool=%d rate=%s dist=%v", pool, rate, dist)
			}
		}
	}
}
