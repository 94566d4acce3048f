package types

import "math"

// SizeUnit selects whether quantities are reported in base-asset or
// quote-asset units. It is explicit configuration passed into the adapters,
// never process-global state.
type SizeUnit int

const (
	SizeInBase SizeUnit = iota
	SizeInQuote
)

func (u SizeUnit) String() string {
	if u == SizeInQuote {
		return "quote"
	}
	return "base"
}

func SizeUnitFromString(s string) SizeUnit {
	if s == "quote" {
		return SizeInQuote
	}
	return SizeInBase
}

// CalcQty normalizes a raw exchange quantity. A positive contract size takes
// precedence over the unit conversion: the quantity is a contract count and
// the multiplier converts it to base units. Otherwise quote sizing converts
// through the trade price, rounded to whole quote units.
func CalcQty(qty, price, contractSize float64, unit SizeUnit) float64 {
	if contractSize > 0 {
		return qty * contractSize
	}
	if unit == SizeInQuote {
		return math.Round(qty * price)
	}
	return qty
}
