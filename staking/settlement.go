package staking

import (
	"math/big"

	"meetstake-backend/models"
)

// Settlement is the computed refund/forfeit split for one meeting. What
// happens to the forfeited total (redistribution, burn, organizer payout) is
// the token-transfer collaborator's concern; this type only reports the
// split and the wallets on each side of it.
type Settlement struct {
	RefundedTotal    *big.Int
	ForfeitedTotal   *big.Int
	RefundedCount    int
	ForfeitedCount   int
	RefundedWallets  []string
	ForfeitedWallets []string
}

// ComputeSettlement partitions the stake records in a single deterministic
// pass: checked-in stakes are marked refunded and summed into the refunded
// total, everything else is forfeited. Mutates the records' IsRefunded flags
// in place; the caller persists the whole record atomically.
//
// Conservation holds by construction: every amount lands in exactly one
// total, so RefundedTotal + ForfeitedTotal equals the sum of all stakes.
func ComputeSettlement(stakes []models.StakeRecord) Settlement {
	result := Settlement{
		RefundedTotal:  new(big.Int),
		ForfeitedTotal: new(big.Int),
	}

	for i := range stakes {
		r := &stakes[i]
		if r.HasCheckedIn {
			r.IsRefunded = true
			result.RefundedTotal.Add(result.RefundedTotal, r.Amount)
			result.RefundedCount++
			result.RefundedWallets = append(result.RefundedWallets, r.WalletAddress)
		} else {
			result.ForfeitedTotal.Add(result.ForfeitedTotal, r.Amount)
			result.ForfeitedCount++
			result.ForfeitedWallets = append(result.ForfeitedWallets, r.WalletAddress)
		}
	}

	return result
}
