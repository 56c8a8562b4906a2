package domain

import "github.com/shopspring/decimal"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderFill is the exchange's report for an executed market order.
type OrderFill struct {
	OrderID     string
	Symbol      string
	Side        OrderSide
	ExecutedQty decimal.Decimal
	QuoteQty    decimal.Decimal
	Status      string
}

// AvgPrice returns the volume-weighted fill price, or zero when nothing was
// executed.
func (f OrderFill) AvgPrice() decimal.Decimal {
	if f.ExecutedQty.IsZero() {
		return decimal.Zero
	}
	return f.QuoteQty.Div(f.ExecutedQty)
}
