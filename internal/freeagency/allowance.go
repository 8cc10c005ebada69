package freeagency

import (
	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/footy-fa-bot/internal/store"
)

var (
	creditBand1 = decimal.RequireFromString("0.5")
	creditBand2 = decimal.RequireFromString("0.25")
	half        = decimal.RequireFromString("0.5")
)

// ResignAllowance returns how many expiring players a team may re-sign for
// free. Each band-1 player earns half a credit and each band-2 player a
// quarter; the total rounds to the nearest integer with exact halves
// rounding down.
func ResignAllowance(ref *Reference, expiring []store.Player) int {
	bands := make([]int, 0, len(expiring))
	for _, p := range expiring {
		if band, ok := ref.CompensationBand(p.Age, p.OverallRating); ok {
			bands = append(bands, band)
		}
	}
	return allowanceForBands(bands)
}

func allowanceForBands(bands []int) int {
	credits := decimal.Zero
	for _, b := range bands {
		switch b {
		case 1:
			credits = credits.Add(creditBand1)
		case 2:
			credits = credits.Add(creditBand2)
		}
	}
	whole := credits.Floor()
	if credits.Sub(whole).GreaterThan(half) {
		whole = whole.Add(decimal.NewFromInt(1))
	}
	return int(whole.IntPart())
}

// MatchCost is what the original team pays to match a winning bid. Restricted
// free agents (age <= rfaMaxAge) are discounted to rate × bid, rounded to the
// nearest point.
func MatchCost(winningBid, age, rfaMaxAge int, rate decimal.Decimal) int {
	if !IsRFA(age, rfaMaxAge) {
		return winningBid
	}
	return int(decimal.NewFromInt(int64(winningBid)).Mul(rate).RoundBank(0).IntPart())
}

// IsRFA reports whether a player of age is a restricted free agent.
func IsRFA(age, rfaMaxAge int) bool { return age <= rfaMaxAge }
