package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/momentumbot/internal/domain"
)

// fallbackPrecision is the number of decimal places kept when a symbol
// reports no step size.
const fallbackPrecision = 8

// RiskService sizes entries from the free settlement balance.
type RiskService struct {
	fraction decimal.Decimal
}

// NewRiskService creates a RiskService that risks fraction of the free
// balance on each entry.
func NewRiskService(fraction decimal.Decimal) *RiskService {
	return &RiskService{fraction: fraction}
}

// Capital returns the amount of balance available to one entry.
func (s *RiskService) Capital(balance decimal.Decimal) decimal.Decimal {
	return balance.Mul(s.fraction)
}

// Size returns the largest multiple of the lot step whose cost at price does
// not exceed capital. It fails with domain.ErrInsufficientQuantity when that
// quantity is zero or below the lot minimum, and with domain.ErrInvalidQuote
// for a non-positive price.
func (s *RiskService) Size(capital, price decimal.Decimal, lot domain.LotSize) (decimal.Decimal, error) {
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("risk_service: price %s: %w", price, domain.ErrInvalidQuote)
	}
	if !capital.IsPositive() {
		return decimal.Zero, fmt.Errorf("risk_service: capital %s: %w", capital, domain.ErrInsufficientQuantity)
	}

	var qty decimal.Decimal
	if lot.StepSize.IsPositive() {
		steps, _ := capital.QuoRem(price.Mul(lot.StepSize), 0)
		qty = steps.Mul(lot.StepSize)
	} else {
		qty, _ = capital.QuoRem(price, fallbackPrecision)
	}

	if !qty.IsPositive() || qty.LessThan(lot.MinQty) {
		return decimal.Zero, fmt.Errorf("risk_service: qty %s below minimum %s: %w",
			qty, lot.MinQty, domain.ErrInsufficientQuantity)
	}
	return qty, nil
}
