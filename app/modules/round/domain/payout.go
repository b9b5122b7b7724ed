package rounddomain

import "github.com/shopspring/decimal"

// Payout is the prize computation for one round.
type Payout struct {
	Pool        int64
	Commission  int64
	Sponsored   int64
	Net         int64
	Prizes      []int64 // one per paid position, in rank order
	Distributed int64
	Remainder   int64
}

// ComputePayout applies commission to the player-funded pool only, adds the
// sponsorship, and floors every prize. Only the first paidPositions entries of
// distribution are paid; the remainder stays with the platform.
func ComputePayout(pool, sponsored int64, rate decimal.Decimal, distribution []int, paidPositions int) Payout {
	commission := decimal.NewFromInt(pool).Mul(rate).Floor().IntPart()
	net := pool - commission + sponsored

	if paidPositions > len(distribution) {
		paidPositions = len(distribution)
	}
	if paidPositions < 0 {
		paidPositions = 0
	}

	prizes := make([]int64, paidPositions)
	var distributed int64
	for i := 0; i < paidPositions; i++ {
		prizes[i] = net * int64(distribution[i]) / 100
		distributed += prizes[i]
	}

	return Payout{
		Pool:        pool,
		Commission:  commission,
		Sponsored:   sponsored,
		Net:         net,
		Prizes:      prizes,
		Distributed: distributed,
		Remainder:   net - distributed,
	}
}
