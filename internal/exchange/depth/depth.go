// Package depth reconstructs a local order book from an exchange's snapshot
// and incremental diff payloads.
package depth

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/parvezahmmedmahir/footprint/internal/types"
)

// DeOrder is one price level as it arrives on the wire. Exchanges encode
// levels as ["price","qty",...] arrays or objects keyed "0"/"1", with each
// field either string- or number-encoded.
type DeOrder struct {
	Price float64
	Qty   float64
}

func (o *DeOrder) UnmarshalJSON(data []byte) error {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err == nil {
		if len(arr) < 2 {
			return types.NewParseError("order level needs price and qty", nil)
		}
		return o.assign(arr[0], arr[1])
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return types.NewParseError("order level is neither array nor object", err)
	}
	price, ok := obj["0"]
	if !ok {
		return types.NewParseError("order price not found", nil)
	}
	qty, ok := obj["1"]
	if !ok {
		return types.NewParseError("order qty not found", nil)
	}
	return o.assign(price, qty)
}

func (o *DeOrder) assign(rawPrice, rawQty json.RawMessage) error {
	price, err := parseNumeric(rawPrice)
	if err != nil {
		return err
	}
	qty, err := parseNumeric(rawQty)
	if err != nil {
		return err
	}
	o.Price, o.Qty = price, qty
	return nil
}

func parseNumeric(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, types.NewParseError("invalid numeric string "+s, err)
		}
		return v, nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, types.NewParseError("field is neither string nor number", err)
	}
	return v, nil
}

// DepthPayload is one complete snapshot or one incremental diff, identified
// by the sequence id it brings the book up to.
type DepthPayload struct {
	LastUpdateID uint64
	Time         uint64
	Bids         []DeOrder
	Asks         []DeOrder
}

type UpdateKind int

const (
	Snapshot UpdateKind = iota
	Diff
)

type Update struct {
	Kind    UpdateKind
	Payload DepthPayload
}

// Depth holds the reconstructed book. Every entry has qty > 0; removed
// levels are absent, never zero-valued. Instances handed to consumers are
// immutable.
type Depth struct {
	Bids map[types.Price]float64
	Asks map[types.Price]float64
}

func NewDepth() *Depth {
	return &Depth{
		Bids: make(map[types.Price]float64),
		Asks: make(map[types.Price]float64),
	}
}

func (d *Depth) clone() *Depth {
	next := &Depth{
		Bids: make(map[types.Price]float64, len(d.Bids)),
		Asks: make(map[types.Price]float64, len(d.Asks)),
	}
	for p, q := range d.Bids {
		next.Bids[p] = q
	}
	for p, q := range d.Asks {
		next.Asks[p] = q
	}
	return next
}

func (d *Depth) update(diff *DepthPayload, minTick types.Price) {
	diffPriceLevels(d.Bids, diff.Bids, minTick)
	diffPriceLevels(d.Asks, diff.Asks, minTick)
}

func diffPriceLevels(priceMap map[types.Price]float64, orders []DeOrder, minTick types.Price) {
	for _, order := range orders {
		price := types.PriceFromFloat(order.Price).RoundToMinTick(minTick)
		if order.Qty <= 0 {
			delete(priceMap, price)
		} else {
			priceMap[price] = order.Qty
		}
	}
}

func (d *Depth) replaceAll(snapshot *DepthPayload, minTick types.Price) {
	d.Bids = make(map[types.Price]float64, len(snapshot.Bids))
	d.Asks = make(map[types.Price]float64, len(snapshot.Asks))
	diffPriceLevels(d.Bids, snapshot.Bids, minTick)
	diffPriceLevels(d.Asks, snapshot.Asks, minTick)
}

// BestBid returns the highest bid price, if any.
func (d *Depth) BestBid() (types.Price, bool) {
	var best types.Price
	found := false
	for p := range d.Bids {
		if !found || p > best {
			best = p
			found = true
		}
	}
	return best, found
}

// BestAsk returns the lowest ask price, if any.
func (d *Depth) BestAsk() (types.Price, bool) {
	var best types.Price
	found := false
	for p := range d.Asks {
		if !found || p < best {
			best = p
			found = true
		}
	}
	return best, found
}

// MidPrice returns the average of best bid and best ask when both sides have
// liquidity.
func (d *Depth) MidPrice() (types.Price, bool) {
	bid, okBid := d.BestBid()
	ask, okAsk := d.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return types.Mid(bid, ask), true
}

// Level is one aggregated price level for consumers.
type Level struct {
	Price types.Price
	Qty   float64
}

// BidLevels returns bids sorted best (highest) first.
func (d *Depth) BidLevels() []Level {
	levels := collectLevels(d.Bids)
	sort.Slice(levels, func(i, j int) bool { return levels[i].Price > levels[j].Price })
	return levels
}

// AskLevels returns asks sorted best (lowest) first.
func (d *Depth) AskLevels() []Level {
	levels := collectLevels(d.Asks)
	sort.Slice(levels, func(i, j int) bool { return levels[i].Price < levels[j].Price })
	return levels
}

func collectLevels(priceMap map[types.Price]float64) []Level {
	levels := make([]Level, 0, len(priceMap))
	for p, q := range priceMap {
		levels = append(levels, Level{Price: p, Qty: q})
	}
	return levels
}
