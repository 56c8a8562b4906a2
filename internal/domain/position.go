package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExitReason records which exit condition closed a position.
type ExitReason string

const (
	ExitReasonTakeProfit ExitReason = "take_profit"
	ExitReasonStopLoss   ExitReason = "stop_loss"
	ExitReasonTimeStop   ExitReason = "time_stop"
)

// Position is one opened trade. It starts open and is closed exactly once;
// after that it is history and never changes again.
type Position struct {
	ID         string           `json:"id"`
	Symbol     string           `json:"symbol"`
	EntryPrice decimal.Decimal  `json:"entry_price"`
	Quantity   decimal.Decimal  `json:"quantity"`
	EntryTime  time.Time        `json:"entry_time"`
	Closed     bool             `json:"closed"`
	ExitPrice  *decimal.Decimal `json:"exit_price,omitempty"`
	ExitTime   *time.Time       `json:"exit_time,omitempty"`
	ExitReason ExitReason       `json:"exit_reason,omitempty"`
}

// IsOpen reports whether the position still awaits an exit.
func (p Position) IsOpen() bool {
	return !p.Closed
}

// Variation returns the signed fractional price change of price relative to
// the entry price. A zero entry price yields zero.
func (p Position) Variation(price decimal.Decimal) decimal.Decimal {
	if p.EntryPrice.IsZero() {
		return decimal.Zero
	}
	return price.Sub(p.EntryPrice).Div(p.EntryPrice)
}

// RealizedPnL returns (exit - entry) * quantity, and false when the position
// has no exit price recorded.
func (p Position) RealizedPnL() (decimal.Decimal, bool) {
	if p.ExitPrice == nil {
		return decimal.Zero, false
	}
	return p.ExitPrice.Sub(p.EntryPrice).Mul(p.Quantity), true
}

// Close returns a closed copy of p stamped with the exit details. The
// receiver is left untouched.
func (p Position) Close(price decimal.Decimal, at time.Time, reason ExitReason) Position {
	exitPrice := price
	exitTime := at
	p.Closed = true
	p.ExitPrice = &exitPrice
	p.ExitTime = &exitTime
	p.ExitReason = reason
	return p
}
