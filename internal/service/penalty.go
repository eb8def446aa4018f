package service

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

type penaltyTier struct {
	below int
	rate  decimal.Decimal
}

// Ordered ascending; the first tier whose bound exceeds daysUntilEvent applies.
var penaltyTiers = []penaltyTier{
	{below: 2, rate: decimal.NewFromFloat(0.50)},
	{below: 7, rate: decimal.NewFromFloat(0.30)},
	{below: 14, rate: decimal.NewFromFloat(0.15)},
}

// PenaltyRate returns the fraction of the amount charged when cancelling daysUntilEvent days ahead.
func PenaltyRate(daysUntilEvent int) decimal.Decimal {
	for _, tier := range penaltyTiers {
		if daysUntilEvent < tier.below {
			return tier.rate
		}
	}
	return decimal.Zero
}

// CancellationPenalty computes tier(daysUntilEvent) x amount rounded to the currency.
func CancellationPenalty(amount decimal.Decimal, currency string, daysUntilEvent int) decimal.Decimal {
	return RoundToCurrency(amount.Mul(PenaltyRate(daysUntilEvent)), currency)
}

// DaysUntilEvent returns ceil(eventStart - now) in days, where eventStart is midnight of the
// event's calendar day in loc. Past events yield zero or negative values.
func DaysUntilEvent(eventDate, now time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := eventDate.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return int(math.Ceil(start.Sub(now).Hours() / 24))
}
