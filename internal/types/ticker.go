package types

import "strings"

// Exchange identifies one upstream market-data source.
type Exchange string

const (
	ExchangeBinanceLinear Exchange = "binance-linear"
)

// Ticker identifies an instrument on an exchange.
type Ticker struct {
	Symbol   string
	Exchange Exchange
}

func NewTicker(symbol string, exchange Exchange) Ticker {
	return Ticker{Symbol: strings.ToUpper(symbol), Exchange: exchange}
}

func (t Ticker) String() string {
	return string(t.Exchange) + ":" + t.Symbol
}

// TickerInfo carries the instrument constraints needed for normalization.
// Resolved once at startup and cached by symbol; immutable afterwards.
type TickerInfo struct {
	Ticker      Ticker
	MinTicksize Price
	MinQty      float64
	// ContractSize is 0 when the exchange does not report one; exchanges
	// never list a zero contract size.
	ContractSize float64
}

// TickerStats is the 24h rolling summary for an instrument.
type TickerStats struct {
	MarkPrice     float64
	DailyPriceChg float64
	DailyVolume   float64
}
