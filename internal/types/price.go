package types

import (
	"math"

	"github.com/shopspring/decimal"
)

// PriceScale is the fixed scaling factor for Price values. 1e8 covers the
// smallest tick sizes listed on the supported exchanges.
const PriceScale = 100_000_000

var priceScaleDec = decimal.NewFromInt(PriceScale)

// Price is a fixed-precision price scaled by PriceScale. It is comparable and
// totally ordered, so it keys the depth maps directly.
type Price int64

func PriceFromFloat(v float64) Price {
	return Price(math.Round(v * PriceScale))
}

func PriceFromDecimal(d decimal.Decimal) Price {
	return Price(d.Mul(priceScaleDec).Round(0).IntPart())
}

// PriceFromString parses a decimal string without going through float
// parsing, so string-encoded exchange fields keep their exact value.
func PriceFromString(s string) (Price, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, NewParseError("invalid price "+s, err)
	}
	return PriceFromDecimal(d), nil
}

func (p Price) Float64() float64 {
	return float64(p) / PriceScale
}

func (p Price) Decimal() decimal.Decimal {
	return decimal.New(int64(p), -8)
}

func (p Price) String() string {
	return p.Decimal().String()
}

// RoundToMinTick rounds to the nearest multiple of tick, half away from zero.
// Applying it twice yields the same value as applying it once. A tick of zero
// or less leaves the price untouched.
func (p Price) RoundToMinTick(tick Price) Price {
	if tick <= 0 {
		return p
	}
	if p >= 0 {
		return (p + tick/2) / tick * tick
	}
	return -((-p + tick/2) / tick * tick)
}

// Mid returns the midpoint of two prices. With the 1e8 scaling a .5 midpoint
// is exact.
func Mid(a, b Price) Price {
	return (a + b) / 2
}
