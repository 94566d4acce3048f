package binance

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/parvezahmmedmahir/footprint/internal/exchange/depth"
	"github.com/parvezahmmedmahir/footprint/internal/types"
)

// floatString decodes a JSON number that may be string-encoded, as most
// price and size fields on this exchange are.
type floatString float64

func (f *floatString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return types.NewParseError("invalid numeric string "+s, err)
		}
		*f = floatString(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return types.NewParseError("field is neither string nor number", err)
	}
	*f = floatString(v)
	return nil
}

// streamEnvelope wraps every message on a combined-stream connection.
type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// wsTrade is one aggTrade print.
type wsTrade struct {
	Time   uint64      `json:"T"`
	Price  floatString `json:"p"`
	Qty    floatString `json:"q"`
	IsSell bool        `json:"m"`
}

// wsDepth is one incremental depth diff on the futures stream.
type wsDepth struct {
	Time        uint64          `json:"T"`
	FirstID     uint64          `json:"U"`
	FinalID     uint64          `json:"u"`
	PrevFinalID uint64          `json:"pu"`
	Bids        []depth.DeOrder `json:"b"`
	Asks        []depth.DeOrder `json:"a"`
}

type wsKline struct {
	Time        uint64      `json:"t"`
	Open        floatString `json:"o"`
	High        floatString `json:"h"`
	Low         floatString `json:"l"`
	Close       floatString `json:"c"`
	Volume      floatString `json:"v"`
	TakerBuyVol floatString `json:"V"`
	Interval    string      `json:"i"`
}

type wsKlineWrap struct {
	Symbol string  `json:"s"`
	Kline  wsKline `json:"k"`
}

// streamData is the demultiplexed content of one text frame; exactly one
// field is set.
type streamData struct {
	Trade *wsTrade
	Depth *wsDepth
	Kline *wsKlineWrap
}

// demuxFrame routes a combined-stream frame by the tag after '@' in the
// stream name: de* is depth, ag* is aggTrade, kl* is kline.
func demuxFrame(payload []byte) (*streamData, error) {
	var env streamEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, types.NewParseError("decoding stream envelope", err)
	}

	tag := ""
	if i := strings.IndexByte(env.Stream, '@'); i >= 0 {
		tag = env.Stream[i+1:]
	}

	switch {
	case strings.HasPrefix(tag, "de"):
		var d wsDepth
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, types.NewParseError("decoding depth diff", err)
		}
		return &streamData{Depth: &d}, nil
	case strings.HasPrefix(tag, "ag"):
		var t wsTrade
		if err := json.Unmarshal(env.Data, &t); err != nil {
			return nil, types.NewParseError("decoding trade", err)
		}
		return &streamData{Trade: &t}, nil
	case strings.HasPrefix(tag, "kl"):
		var k wsKlineWrap
		if err := json.Unmarshal(env.Data, &k); err != nil {
			return nil, types.NewParseError("decoding kline", err)
		}
		return &streamData{Kline: &k}, nil
	}
	return nil, types.NewParseError("unknown stream type "+env.Stream, nil)
}

// normalizeOrders applies quantity normalization to raw wire levels. A zero
// qty stays zero, so deletions survive normalization.
func normalizeOrders(orders []depth.DeOrder, contractSize float64, unit types.SizeUnit) []depth.DeOrder {
	out := make([]depth.DeOrder, 0, len(orders))
	for _, o := range orders {
		out = append(out, depth.DeOrder{
			Price: o.Price,
			Qty:   types.CalcQty(o.Qty, o.Price, contractSize, unit),
		})
	}
	return out
}
