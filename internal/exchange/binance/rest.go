package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/parvezahmmedmahir/footprint/internal/exchange/depth"
	"github.com/parvezahmmedmahir/footprint/internal/types"
)

const depthFetchLimit = 1000

type restDepth struct {
	LastUpdateID uint64          `json:"lastUpdateId"`
	Time         uint64          `json:"T"`
	Bids         []depth.DeOrder `json:"bids"`
	Asks         []depth.DeOrder `json:"asks"`
}

// FetchDepth fetches the authoritative book snapshot used to seed or resync
// the local depth cache.
func (a *Adapter) FetchDepth(ctx context.Context, info types.TickerInfo) (depth.DepthPayload, error) {
	url := fmt.Sprintf("%s/fapi/v1/depth?symbol=%s&limit=%d",
		a.restURL, strings.ToUpper(info.Ticker.Symbol), depthFetchLimit)

	var snap restDepth
	if err := a.rest.RequestJSON(ctx, url, weightDepth, &snap); err != nil {
		return depth.DepthPayload{}, err
	}

	return depth.DepthPayload{
		LastUpdateID: snap.LastUpdateID,
		Time:         snap.Time,
		Bids:         normalizeOrders(snap.Bids, info.ContractSize, a.sizeUnit),
		Asks:         normalizeOrders(snap.Asks, info.ContractSize, a.sizeUnit),
	}, nil
}

// restKlineRow is one fixed-arity kline tuple:
// [openTime, open, high, low, close, volume, closeTime, quoteVolume,
// tradeCount, takerBuyVolume, takerBuyQuoteVolume, unused].
type restKlineRow struct {
	time                                           uint64
	open, high, low, close, volume, takerBuyVolume float64
}

func (r *restKlineRow) UnmarshalJSON(data []byte) error {
	var cells []json.RawMessage
	if err := json.Unmarshal(data, &cells); err != nil {
		return types.NewParseError("kline row is not an array", err)
	}
	if len(cells) < 10 {
		return types.NewParseError(fmt.Sprintf("kline row has %d cells, want at least 10", len(cells)), nil)
	}

	if err := json.Unmarshal(cells[0], &r.time); err != nil {
		return types.NewParseError("kline open time", err)
	}
	for _, field := range []struct {
		idx int
		dst *float64
	}{
		{1, &r.open}, {2, &r.high}, {3, &r.low}, {4, &r.close},
		{5, &r.volume}, {9, &r.takerBuyVolume},
	} {
		var v floatString
		if err := json.Unmarshal(cells[field.idx], &v); err != nil {
			return err
		}
		*field.dst = float64(v)
	}
	return nil
}

const (
	klineFetchDefault = 400
	klineFetchMax     = 1000
)

// FetchKlines fetches historical bars. A zero start and end fetches the most
// recent default batch. Ranges spanning fewer than 3 intervals are widened so
// the response is usable. Malformed rows are skipped, not fatal.
func (a *Adapter) FetchKlines(ctx context.Context, info types.TickerInfo, tf types.Timeframe, start, end uint64) ([]types.Kline, error) {
	url := fmt.Sprintf("%s/fapi/v1/klines?symbol=%s&interval=%s",
		a.restURL, strings.ToUpper(info.Ticker.Symbol), tf)

	if start != 0 && end > start {
		interval := tf.Milliseconds()
		if interval == 0 {
			return nil, types.NewParseError("invalid timeframe "+string(tf), nil)
		}
		count := (end - start) / interval
		if count < 3 {
			start -= interval * 5
			end += interval * 5
			count = (end - start) / interval
		}
		if count > klineFetchMax {
			count = klineFetchMax
		}
		url += fmt.Sprintf("&startTime=%d&endTime=%d&limit=%d", start, end, count)
	} else {
		url += fmt.Sprintf("&limit=%d", klineFetchDefault)
	}

	var rows []json.RawMessage
	if err := a.rest.RequestJSON(ctx, url, weightKlines, &rows); err != nil {
		return nil, err
	}

	tick := info.MinTicksize
	klines := make([]types.Kline, 0, len(rows))
	for _, raw := range rows {
		var row restKlineRow
		if err := json.Unmarshal(raw, &row); err != nil {
			log.Warn().Err(err).Str("symbol", info.Ticker.Symbol).Msg("skipping kline row")
			continue
		}

		buy := row.takerBuyVolume
		sell := row.volume - buy
		if a.sizeUnit == types.SizeInQuote {
			buy = math.Round(buy * row.close)
			sell = math.Round(sell * row.close)
		}

		klines = append(klines, types.Kline{
			Time:       row.time,
			Open:       types.PriceFromFloat(row.open).RoundToMinTick(tick),
			High:       types.PriceFromFloat(row.high).RoundToMinTick(tick),
			Low:        types.PriceFromFloat(row.low).RoundToMinTick(tick),
			Close:      types.PriceFromFloat(row.close).RoundToMinTick(tick),
			BuyVolume:  buy,
			SellVolume: sell,
		})
	}
	return klines, nil
}

type restExchangeInfo struct {
	Symbols []restSymbol `json:"symbols"`
}

type restSymbol struct {
	Symbol       string       `json:"symbol"`
	Status       string       `json:"status"`
	ContractSize float64      `json:"contractSize"`
	Filters      []restFilter `json:"filters"`
}

type restFilter struct {
	FilterType string `json:"filterType"`
	TickSize   string `json:"tickSize"`
	MinQty     string `json:"minQty"`
}

// FetchTickerInfo fetches instrument metadata for every listed symbol.
// Symbols with missing or unparsable filters are skipped individually.
func (a *Adapter) FetchTickerInfo(ctx context.Context) (map[types.Ticker]types.TickerInfo, error) {
	url := a.restURL + "/fapi/v1/exchangeInfo"

	var info restExchangeInfo
	if err := a.rest.RequestJSON(ctx, url, weightExchangeInfo, &info); err != nil {
		return nil, err
	}

	out := make(map[types.Ticker]types.TickerInfo, len(info.Symbols))
	for _, sym := range info.Symbols {
		if sym.Status != "TRADING" && sym.Status != "HALT" {
			continue
		}

		var tick types.Price
		var minQty float64
		for _, f := range sym.Filters {
			switch f.FilterType {
			case "PRICE_FILTER":
				p, err := types.PriceFromString(f.TickSize)
				if err != nil {
					log.Warn().Err(err).Str("symbol", sym.Symbol).Msg("bad tick size filter")
					continue
				}
				tick = p
			case "LOT_SIZE":
				q, err := decimal.NewFromString(f.MinQty)
				if err != nil {
					log.Warn().Err(err).Str("symbol", sym.Symbol).Msg("bad lot size filter")
					continue
				}
				minQty = q.InexactFloat64()
			}
		}
		if tick == 0 {
			log.Debug().Str("symbol", sym.Symbol).Msg("no price filter, skipping symbol")
			continue
		}

		ticker := types.NewTicker(sym.Symbol, exchangeName)
		out[ticker] = types.TickerInfo{
			Ticker:       ticker,
			MinTicksize:  tick,
			MinQty:       minQty,
			ContractSize: sym.ContractSize,
		}
	}
	return out, nil
}

type restTickerStats struct {
	Symbol         string      `json:"symbol"`
	LastPrice      floatString `json:"lastPrice"`
	PriceChangePct floatString `json:"priceChangePercent"`
	QuoteVolume    floatString `json:"quoteVolume"`
}

// FetchTickerStats fetches the 24h rolling stats for every symbol. Records
// that fail to decode are skipped individually.
func (a *Adapter) FetchTickerStats(ctx context.Context) (map[types.Ticker]types.TickerStats, error) {
	url := a.restURL + "/fapi/v1/ticker/24hr"

	var rows []json.RawMessage
	if err := a.rest.RequestJSON(ctx, url, weightTickerStats, &rows); err != nil {
		return nil, err
	}

	out := make(map[types.Ticker]types.TickerStats, len(rows))
	for _, raw := range rows {
		var stats restTickerStats
		if err := json.Unmarshal(raw, &stats); err != nil {
			log.Warn().Err(err).Msg("skipping ticker stats record")
			continue
		}
		ticker := types.NewTicker(stats.Symbol, exchangeName)
		out[ticker] = types.TickerStats{
			MarkPrice:     float64(stats.LastPrice),
			DailyPriceChg: float64(stats.PriceChangePct),
			DailyVolume:   float64(stats.QuoteVolume),
		}
	}
	return out, nil
}

type restOpenInterest struct {
	Timestamp uint64      `json:"timestamp"`
	Sum       floatString `json:"sumOpenInterest"`
}

const (
	oiHistoryDays  = 30
	oiFetchMax     = 500
	oiFetchDefault = 400
)

// FetchOpenInterest fetches open-interest history for one instrument. The
// endpoint only serves the last 30 days, so older range starts are clamped.
// Values are returned as the endpoint reports them.
func (a *Adapter) FetchOpenInterest(ctx context.Context, ticker types.Ticker, period types.Timeframe, start, end uint64) ([]types.OpenInterest, error) {
	url := fmt.Sprintf("%s/futures/data/openInterestHist?symbol=%s&period=%s",
		a.restURL, strings.ToUpper(ticker.Symbol), period)

	if start != 0 && end > start {
		interval := period.Milliseconds()
		if interval == 0 {
			return nil, types.NewParseError("invalid period "+string(period), nil)
		}
		oldest := uint64(time.Now().UnixMilli()) - oiHistoryDays*24*3_600_000
		if start < oldest {
			start = oldest
		}
		count := (end - start) / interval
		if count > oiFetchMax {
			count = oiFetchMax
		}
		url += fmt.Sprintf("&startTime=%d&endTime=%d&limit=%d", start, end, count)
	} else {
		url += fmt.Sprintf("&limit=%d", oiFetchDefault)
	}

	var rows []restOpenInterest
	if err := a.rest.RequestJSON(ctx, url, weightOpenInterest, &rows); err != nil {
		return nil, err
	}

	out := make([]types.OpenInterest, 0, len(rows))
	for _, row := range rows {
		out = append(out, types.OpenInterest{Time: row.Timestamp, Value: float64(row.Sum)})
	}
	return out, nil
}
