package types

// Trade is one print. Trades are ephemeral: buffered per update cycle, then
// flushed to the event channel together with the depth state they occurred
// against.
type Trade struct {
	Time   uint64
	Price  Price
	Qty    float64
	IsSell bool
}

// Kline is one bar. Volume is split by taker side.
type Kline struct {
	Time       uint64
	Open       Price
	High       Price
	Low        Price
	Close      Price
	BuyVolume  float64
	SellVolume float64
}

// OpenInterest is one point of an open-interest history series, in whatever
// unit the endpoint reports (base units for linear contracts).
type OpenInterest struct {
	Time  uint64
	Value float64
}

// Timeframe is a kline bar interval in the exchange's own notation.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe3m  Timeframe = "3m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe30m Timeframe = "30m"
	Timeframe1h  Timeframe = "1h"
	Timeframe2h  Timeframe = "2h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

var timeframeMS = map[Timeframe]uint64{
	Timeframe1m:  60_000,
	Timeframe3m:  3 * 60_000,
	Timeframe5m:  5 * 60_000,
	Timeframe15m: 15 * 60_000,
	Timeframe30m: 30 * 60_000,
	Timeframe1h:  3_600_000,
	Timeframe2h:  2 * 3_600_000,
	Timeframe4h:  4 * 3_600_000,
	Timeframe1d:  24 * 3_600_000,
}

func (tf Timeframe) Milliseconds() uint64 {
	return timeframeMS[tf]
}

func (tf Timeframe) Valid() bool {
	_, ok := timeframeMS[tf]
	return ok
}
