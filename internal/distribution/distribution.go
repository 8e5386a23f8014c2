// Package distribution splits one applied repayment amount across the
// investors backing a pool, in exact integer kobo.
package distribution

import (
	"math/big"
	"sort"

	"github.com/Obiajulu-gif/chain-move-sub000/internal/models"
)

const bpsScale = 10_000

// Credit is one investor's computed share of a payment.
type Credit struct {
	InvestorID   string
	AmountKobo   int64
	OwnershipBps int
}

// Plan is the result of allocating an applied amount. The conservation
// invariant holds by construction:
//
//	sum(Credits[i].AmountKobo) + RemainderKobo == AppliedKobo
type Plan struct {
	AppliedKobo   int64
	Credits       []Credit
	RemainderKobo int64
}

type holding struct {
	investorID string
	amountKobo int64
}

// BuildPlan aggregates confirmed pool contributions per investor and computes
// floor-division pro-rata credits. The flooring shortfall goes to the largest
// contributor; exact ties go to the lexicographically smallest investor id so
// the outcome is independent of input order. A pool with no contributions
// yields no credits and a remainder equal to the full amount.
func BuildPlan(appliedKobo int64, contributions []models.PoolInvestment) Plan {
	if appliedKobo <= 0 {
		return Plan{AppliedKobo: appliedKobo}
	}

	byInvestor := make(map[string]int64)
	order := make([]string, 0, len(contributions))
	for _, inv := range contributions {
		if inv.AmountKobo <= 0 {
			continue
		}
		if _, seen := byInvestor[inv.InvestorID]; !seen {
			order = append(order, inv.InvestorID)
		}
		byInvestor[inv.InvestorID] += inv.AmountKobo
	}

	holdings := make([]holding, 0, len(order))
	var totalKobo int64
	for _, id := range order {
		holdings = append(holdings, holding{investorID: id, amountKobo: byInvestor[id]})
		totalKobo += byInvestor[id]
	}

	if len(holdings) == 0 || totalKobo <= 0 {
		return Plan{AppliedKobo: appliedKobo, RemainderKobo: appliedKobo}
	}

	sort.Slice(holdings, func(i, j int) bool {
		if holdings[i].amountKobo != holdings[j].amountKobo {
			return holdings[i].amountKobo > holdings[j].amountKobo
		}
		return holdings[i].investorID < holdings[j].investorID
	})

	credits := make([]Credit, 0, len(holdings))
	var allocated int64
	for _, h := range holdings {
		raw := mulDiv(appliedKobo, h.amountKobo, totalKobo)
		allocated += raw
		credits = append(credits, Credit{
			InvestorID:   h.investorID,
			AmountKobo:   raw,
			OwnershipBps: ownershipBps(h.amountKobo, totalKobo),
		})
	}

	if shortfall := appliedKobo - allocated; shortfall > 0 {
		credits[0].AmountKobo += shortfall
	}

	// Zero-kobo credits are dropped; nothing would be posted for them.
	nonZero := credits[:0]
	for _, c := range credits {
		if c.AmountKobo > 0 {
			nonZero = append(nonZero, c)
		}
	}
	return Plan{AppliedKobo: appliedKobo, Credits: nonZero}
}

func ownershipBps(amountKobo, totalKobo int64) int {
	bps := mulDiv(bpsScale, amountKobo, totalKobo)
	if bps < 0 {
		return 0
	}
	if bps > bpsScale {
		return bpsScale
	}
	return int(bps)
}

// mulDiv computes floor(a*b/div). The product can exceed int64 for large
// pools, so the intermediate goes through big.Int.
func mulDiv(a, b, div int64) int64 {
	num := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	num.Quo(num, big.NewInt(div))
	return num.Int64()
}
