// Package calculations provides the pure financial calculation engine.
//
// Every function is stateless and safe to call concurrently. Inputs and
// outputs are decimal.Decimal; fractional exponents and standard deviations
// are evaluated in float64 internally (decimals have no fractional power)
// and converted back, which keeps monetary inputs exact while accepting
// float precision only on derived rates.
//
// Numeric edge cases (zero price, zero years, zero variance) return a zero
// sentinel rather than an error: they are frequent, expected states, not
// exceptional ones.
package calculations

import (
	"math"

	"github.com/shopspring/decimal"
)

// DaysPerYear is the day-count denominator for accrual periods.
var DaysPerYear = decimal.NewFromFloat(365.25)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// pow returns base^exp for a positive decimal base and a float exponent.
// Non-positive bases return zero: they have no real-valued power and every
// caller treats that case as "not computable".
func pow(base decimal.Decimal, exp float64) decimal.Decimal {
	if !base.IsPositive() {
		return decimal.Zero
	}
	return decimal.NewFromFloat(math.Pow(base.InexactFloat64(), exp))
}

// ZeroCouponYTM returns the annualized yield to maturity of a zero-coupon
// bond: (face/price)^(1/years) - 1.
//
// Returns zero when price or years is zero. That is a sentinel meaning
// "not computable", not an error.
func ZeroCouponYTM(faceValue, price, yearsToMaturity decimal.Decimal) decimal.Decimal {
	if price.IsZero() || yearsToMaturity.IsZero() || !price.IsPositive() || !faceValue.IsPositive() {
		return decimal.Zero
	}
	ratio := faceValue.Div(price)
	return pow(ratio, 1/yearsToMaturity.InexactFloat64()).Sub(one)
}

// ZeroCouponDuration returns the Macaulay duration of a zero-coupon bond,
// which equals its years to maturity.
func ZeroCouponDuration(yearsToMaturity decimal.Decimal) decimal.Decimal {
	return yearsToMaturity
}

// PriceSensitivity approximates a bond's new price after a yield change of
// deltaYield percentage points, using the linear duration approximation:
// newPrice = price * (1 - duration * deltaYield / 100).
func PriceSensitivity(price, duration, deltaYield decimal.Decimal) decimal.Decimal {
	return price.Mul(one.Sub(duration.Mul(deltaYield).Div(hundred)))
}

// DV01 returns the price change for a one-basis-point (0.01 percentage
// point) yield increase. It is the deltaYield = 0.01 special case of
// PriceSensitivity, returned as a positive magnitude.
func DV01(price, duration decimal.Decimal) decimal.Decimal {
	return price.Sub(PriceSensitivity(price, duration, decimal.NewFromFloat(0.01))).Abs()
}

// PhantomIncome returns the accrued original-issue-discount income of a
// zero-coupon bond under the constant-yield method:
//
//	ytm     = (face/purchase)^(1/years) - 1
//	accrual = purchase * ((1+ytm)^(daysHeld/365.25) - 1)
//
// The accrual is taxable income even though no cash is received; callers
// must not net it against realized cash flow. For a fixed bond the result
// is monotonically non-decreasing in daysHeld.
//
// Returns zero when purchase price, years, or daysHeld is not positive.
func PhantomIncome(faceValue, purchasePrice, yearsToMaturity decimal.Decimal, daysHeld decimal.Decimal) decimal.Decimal {
	if !daysHeld.IsPositive() {
		return decimal.Zero
	}
	ytm := ZeroCouponYTM(faceValue, purchasePrice, yearsToMaturity)
	if ytm.IsZero() {
		return decimal.Zero
	}
	exponent := daysHeld.Div(DaysPerYear).InexactFloat64()
	growth := pow(one.Add(ytm), exponent).Sub(one)
	return purchasePrice.Mul(growth)
}

// YearsBetween returns the fractional number of years between two dates
// using the 365.25-day convention. Negative when to precedes from.
func YearsBetween(from, to int64) decimal.Decimal {
	// from/to are Unix timestamps
	days := decimal.NewFromInt(to - from).Div(decimal.NewFromInt(86400))
	return days.Div(DaysPerYear)
}
