package provider

import "github.com/shopspring/decimal"

// Both providers speak minor units (pence) on the wire; the core keeps
// decimal pounds.
var minorUnits = decimal.NewFromInt(100)

func fromMinorUnits(amount int64) decimal.Decimal {
	return decimal.NewFromInt(amount).Div(minorUnits)
}

func ddPaymentRef(p ddPayment) *PaymentRef {
	return &PaymentRef{
		ID:       p.ID,
		Status:   p.Status,
		Amount:   fromMinorUnits(p.Amount),
		Currency: p.Currency,
	}
}
