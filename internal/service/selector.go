package service

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/momentumbot/internal/domain"
)

// WeightReader looks up a symbol's weight.
type WeightReader interface {
	Get(symbol string) int
}

// SelectorConfig holds the eligibility thresholds.
type SelectorConfig struct {
	QuoteAsset     string
	Denylist       []string
	MinChangePct   decimal.Decimal
	MinQuoteVolume decimal.Decimal
}

// Candidate is an eligible symbol with its ranking score.
type Candidate struct {
	Symbol        string
	Weight        int
	ChangePercent decimal.Decimal
	Score         decimal.Decimal
}

// Selector filters a market snapshot down to tradeable movers and ranks them
// by weight x abs(24h change).
type Selector struct {
	cfg SelectorConfig
}

// NewSelector creates a Selector.
func NewSelector(cfg SelectorConfig) *Selector {
	return &Selector{cfg: cfg}
}

// Eligible reports whether t passes every filter.
func (s *Selector) Eligible(t domain.Ticker) bool {
	if !strings.HasSuffix(t.Symbol, s.cfg.QuoteAsset) || t.Symbol == s.cfg.QuoteAsset {
		return false
	}
	for _, deny := range s.cfg.Denylist {
		if deny != "" && strings.Contains(t.Symbol, deny) {
			return false
		}
	}
	if t.PriceChangePercent.Abs().LessThan(s.cfg.MinChangePct) {
		return false
	}
	return !t.QuoteVolume.LessThan(s.cfg.MinQuoteVolume)
}

// Select returns the eligible candidates, best score first. Equal scores keep
// the snapshot order. An empty result means nothing to trade this tick.
func (s *Selector) Select(snapshot domain.MarketSnapshot, weights WeightReader) []Candidate {
	out := make([]Candidate, 0)
	for _, t := range snapshot {
		if !s.Eligible(t) {
			continue
		}
		w := weights.Get(t.Symbol)
		out = append(out, Candidate{
			Symbol:        t.Symbol,
			Weight:        w,
			ChangePercent: t.PriceChangePercent,
			Score:         decimal.NewFromInt(int64(w)).Mul(t.PriceChangePercent.Abs()),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score.GreaterThan(out[j].Score)
	})
	return out
}
