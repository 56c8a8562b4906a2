package domain

// DefaultWeight is the weight of a symbol that has never been adjusted.
const DefaultWeight = 1

// SymbolWeight is the adaptive preference score of one symbol.
type SymbolWeight struct {
	Symbol string `json:"symbol"`
	Weight int    `json:"weight"`
}
