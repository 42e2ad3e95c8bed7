package types

import "github.com/shopspring/decimal"

// Fixed-point scales for the value/price/subtotal path. Binary floating
// point must never appear there.
const (
	MoneyScale     = 2
	QuantityScale  = 6
	UnitPriceScale = 6
)

func init() {
	// Digits kept by decimal division. Rounding to the money/quantity/price
	// scales goes through the Round* helpers below.
	decimal.DivisionPrecision = 16
}

// RoundMoney rounds to the 2-decimal money scale, half-up. All quantities in
// this core are non-negative, so decimal.Decimal.Round (half away from zero)
// coincides with half-up.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// RoundQuantity rounds to the 6-decimal quantity scale, half-up.
func RoundQuantity(d decimal.Decimal) decimal.Decimal {
	return d.Round(QuantityScale)
}

// RoundUnitPrice rounds to the 6-decimal unit-price scale, half-up.
func RoundUnitPrice(d decimal.Decimal) decimal.Decimal {
	return d.Round(UnitPriceScale)
}
