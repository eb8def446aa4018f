package service

import (
	"strings"

	"github.com/shopspring/decimal"

	appErrors "github.com/noah-isme/lensbook-api/pkg/errors"
)

// DefaultCommissionRate is the platform fee applied when no rate is configured.
var DefaultCommissionRate = decimal.NewFromFloat(0.05)

// currencyExponents lists ISO 4217 minor units that differ from 2.
var currencyExponents = map[string]int32{
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "ISK": 0, "JPY": 0, "KMF": 0, "KRW": 0,
	"PYG": 0, "RWF": 0, "UGX": 0, "VND": 0, "VUV": 0, "XAF": 0, "XOF": 0, "XPF": 0,
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
}

// MinorUnits returns the number of decimal places used by currency.
func MinorUnits(currency string) int32 {
	if exp, ok := currencyExponents[strings.ToUpper(currency)]; ok {
		return exp
	}
	return 2
}

// RoundToCurrency rounds amount half away from zero to the currency's minor unit.
func RoundToCurrency(amount decimal.Decimal, currency string) decimal.Decimal {
	return amount.Round(MinorUnits(currency))
}

// CommissionCalculator computes the platform fee of a reservation.
type CommissionCalculator struct {
	rate decimal.Decimal
}

// NewCommissionCalculator builds a calculator; a non-positive rate falls back to DefaultCommissionRate.
func NewCommissionCalculator(rate decimal.Decimal) CommissionCalculator {
	if !rate.IsPositive() {
		rate = DefaultCommissionRate
	}
	return CommissionCalculator{rate: rate}
}

// Rate exposes the configured percentage as a fraction.
func (c CommissionCalculator) Rate() decimal.Decimal {
	if c.rate.IsZero() {
		return DefaultCommissionRate
	}
	return c.rate
}

// Compute returns the fee for amount in currency. It is called once, when the reservation is created.
func (c CommissionCalculator) Compute(amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, appErrors.Clone(appErrors.ErrValidation, "amount must be greater than zero")
	}
	return RoundToCurrency(amount.Mul(c.Rate()), currency), nil
}
