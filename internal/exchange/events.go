// Package exchange defines the public surface between the market-data core
// and its consumers: the event stream and the stream identities carried on
// it. Consumers never participate in synchronization logic; they only read
// immutable snapshots off the channel.
package exchange

import (
	"github.com/google/uuid"

	"github.com/parvezahmmedmahir/footprint/internal/exchange/depth"
	"github.com/parvezahmmedmahir/footprint/internal/types"
)

// PushFrequency is the server-side depth push interval requested on
// subscribe.
type PushFrequency string

const (
	Push100ms PushFrequency = "100ms"
	Push250ms PushFrequency = "250ms"
	Push500ms PushFrequency = "500ms"
)

// StreamKind identifies one logical stream multiplexed over a connection.
// The ID correlates log lines and events across reconnects of the same
// subscription.
type StreamKind struct {
	ID         uuid.UUID
	TickerInfo types.TickerInfo

	// Timeframe is set for kline streams, PushFreq for depth+trade streams.
	Timeframe types.Timeframe
	PushFreq  PushFrequency
}

// DepthStream builds the identity of a depth+trades subscription.
func DepthStream(info types.TickerInfo, freq PushFrequency) StreamKind {
	return StreamKind{ID: uuid.New(), TickerInfo: info, PushFreq: freq}
}

// KlineStream builds the identity of a kline subscription.
func KlineStream(info types.TickerInfo, tf types.Timeframe) StreamKind {
	return StreamKind{ID: uuid.New(), TickerInfo: info, Timeframe: tf}
}

// Event is the sole boundary artifact other subsystems depend on.
type Event interface {
	isEvent()
}

type Connected struct {
	Exchange types.Exchange
}

type Disconnected struct {
	Exchange types.Exchange
	Reason   string
}

// DepthReceived carries the book state after one applied diff, together with
// the trades that printed since the previous depth update, so consumers see
// trades and the book they occurred against atomically. Depth is an
// immutable shared snapshot.
type DepthReceived struct {
	Stream StreamKind
	Time   uint64
	Depth  *depth.Depth
	Trades []types.Trade
}

type KlineReceived struct {
	Stream StreamKind
	Kline  types.Kline
}

func (Connected) isEvent()     {}
func (Disconnected) isEvent()  {}
func (DepthReceived) isEvent() {}
func (KlineReceived) isEvent() {}
