package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CashPolicy decides how cash paid while an invoice is created moves the
// counterpart balance.
type CashPolicy string

const (
	// CashPolicyRecordOnly appends the cash transaction and leaves the balance alone.
	CashPolicyRecordOnly CashPolicy = "record_only"
	// CashPolicySettle nets the cash against the balance in the invoice direction:
	// paid on a sale/purchase lowers it, refunded on a return raises it.
	CashPolicySettle CashPolicy = "settle"
	// CashPolicyAlwaysDecrement lowers the balance by the cash regardless of direction.
	CashPolicyAlwaysDecrement CashPolicy = "always_decrement"
)

func ParseCashPolicy(v string) (CashPolicy, error) {
	switch CashPolicy(strings.ToLower(strings.TrimSpace(v))) {
	case CashPolicyRecordOnly:
		return CashPolicyRecordOnly, nil
	case CashPolicySettle:
		return CashPolicySettle, nil
	case CashPolicyAlwaysDecrement:
		return CashPolicyAlwaysDecrement, nil
	}
	return "", ErrInvalidCashPolicy
}

// BalanceEffect returns the signed delta applied to the counterpart balance.
func (p CashPolicy) BalanceEffect(cash decimal.Decimal, isReturn bool) decimal.Decimal {
	if !cash.IsPositive() {
		return decimal.Zero
	}
	switch p {
	case CashPolicySettle:
		if isReturn {
			return cash
		}
		return cash.Neg()
	case CashPolicyAlwaysDecrement:
		return cash.Neg()
	default:
		return decimal.Zero
	}
}
