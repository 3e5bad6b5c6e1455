package shared

import "github.com/shopspring/decimal"

const (
	// MoneyScale is the number of decimal places ledger amounts carry
	MoneyScale int32 = 2
	// CostScale is the number of decimal places stored for unit costs
	CostScale int32 = 6
	// QuantityScale is the number of decimal places stored for quantities
	QuantityScale int32 = 4
)

// RoundMoney rounds an amount to ledger precision
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// RoundCost rounds a unit cost to stored precision
func RoundCost(d decimal.Decimal) decimal.Decimal {
	return d.Round(CostScale)
}

// IsMoney reports whether d has no more than two decimal places
func IsMoney(d decimal.Decimal) bool {
	return d.Equal(d.Round(MoneyScale))
}

// IsQuantity reports whether d fits the stored quantity precision
func IsQuantity(d decimal.Decimal) bool {
	return d.Equal(d.Round(QuantityScale))
}
