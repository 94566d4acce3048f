package binance

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/parvezahmmedmahir/footprint/internal/exchange"
	"github.com/parvezahmmedmahir/footprint/internal/exchange/connect"
	"github.com/parvezahmmedmahir/footprint/internal/exchange/depth"
	"github.com/parvezahmmedmahir/footprint/internal/types"
)

const (
	reconnectBackoff = time.Second
	eventBufferSize  = 100
)

type connState int

const (
	stateDisconnected connState = iota
	stateConnected
)

type seqResult int

const (
	seqStale seqResult = iota
	seqApplied
	seqResync
	seqGap
)

// depthSequencer validates diff continuity against the last applied
// snapshot. prevID is the final id of the last applied diff; zero means no
// diff has been applied since the snapshot.
type depthSequencer struct {
	info   types.TickerInfo
	cache  *depth.LocalDepthCache
	prevID uint64
}

func newDepthSequencer(info types.TickerInfo) *depthSequencer {
	return &depthSequencer{info: info, cache: depth.NewLocalDepthCache()}
}

// seed replaces the book with a fresh snapshot and restarts sequencing.
func (s *depthSequencer) seed(payload depth.DepthPayload) {
	s.cache.Update(depth.Update{Kind: depth.Snapshot, Payload: payload}, s.info.MinTicksize)
	s.prevID = 0
}

// apply runs the sequencing rules for one incoming diff and patches the book
// when continuity holds.
func (s *depthSequencer) apply(d *wsDepth, unit types.SizeUnit) seqResult {
	lastID := s.cache.LastUpdateID

	if d.FinalID <= lastID || lastID == 0 {
		return seqStale
	}

	// First diff after a snapshot: either misalignment of the diff window
	// against the snapshot id forces a resync.
	if s.prevID == 0 && (d.FirstID > lastID+1 || lastID+1 > d.FinalID) {
		return seqResync
	}

	if s.prevID != 0 && s.prevID != d.PrevFinalID {
		return seqGap
	}

	s.cache.Update(depth.Update{
		Kind: depth.Diff,
		Payload: depth.DepthPayload{
			LastUpdateID: d.FinalID,
			Time:         d.Time,
			Bids:         normalizeOrders(d.Bids, s.info.ContractSize, unit),
			Asks:         normalizeOrders(d.Asks, s.info.ContractSize, unit),
		},
	}, s.info.MinTicksize)
	s.prevID = d.FinalID
	return seqApplied
}

type resyncResult struct {
	payload depth.DepthPayload
	err     error
}

// resyncGate tracks the in-flight snapshot refetch for one connection
// instance. fetching suppresses diff handling until the refetch resolves.
// reset swaps in a fresh channel, so a fetch launched by a torn-down
// instance can never deliver its result to the next one.
type resyncGate struct {
	fetching bool
	ch       chan resyncResult
}

func newResyncGate() *resyncGate {
	return &resyncGate{ch: make(chan resyncResult, 1)}
}

// begin marks a refetch in flight and returns the channel it must resolve
// on. The channel is buffered, so a late resolution after reset parks
// harmlessly on the abandoned channel.
func (g *resyncGate) begin() chan<- resyncResult {
	g.fetching = true
	return g.ch
}

// poll returns a completed refetch result without blocking.
func (g *resyncGate) poll() (resyncResult, bool) {
	select {
	case res := <-g.ch:
		g.fetching = false
		return res, true
	default:
		return resyncResult{}, false
	}
}

// reset abandons any in-flight refetch so the next connection instance
// starts clean.
func (g *resyncGate) reset() {
	g.fetching = false
	g.ch = make(chan resyncResult, 1)
}

// ConnectMarketStream starts the long-running task for one instrument's
// aggTrade+depth subscription and returns its event channel. The task runs
// until ctx is cancelled; the channel closes when it stops.
func (a *Adapter) ConnectMarketStream(ctx context.Context, info types.TickerInfo, pushFreq exchange.PushFrequency) <-chan exchange.Event {
	events := make(chan exchange.Event, eventBufferSize)
	go a.runMarketStream(ctx, info, pushFreq, events)
	return events
}

func (a *Adapter) runMarketStream(ctx context.Context, info types.TickerInfo, pushFreq exchange.PushFrequency, events chan<- exchange.Event) {
	defer close(events)

	stream := exchange.DepthStream(info, pushFreq)
	symbol := strings.ToLower(info.Ticker.Symbol)
	url := fmt.Sprintf("wss://%s/stream?streams=%s@aggTrade/%s@depth@%s",
		a.wsHost, symbol, symbol, string(pushFreq))

	logger := log.With().
		Str("exchange", string(exchangeName)).
		Str("symbol", info.Ticker.Symbol).
		Str("stream", stream.ID.String()).
		Logger()

	seq := newDepthSequencer(info)
	var tradesBuffer []types.Trade

	state := stateDisconnected
	var ws *connect.Conn

	gate := newResyncGate()

	disconnect := func(reason string) {
		if ws != nil {
			_ = ws.Close()
			ws = nil
		}
		// Any pending refetch belongs to the instance being torn down; a
		// fresh connect cycle starts with clean resync state.
		gate.reset()
		state = stateDisconnected
		emit(ctx, events, exchange.Disconnected{Exchange: exchangeName, Reason: reason})
	}

	for {
		select {
		case <-ctx.Done():
			if ws != nil {
				_ = ws.Close()
			}
			return
		default:
		}

		switch state {
		case stateDisconnected:
			conn, err := connect.Dial(ctx, url)
			if err != nil {
				logger.Warn().Err(err).Msg("websocket connect failed")
				emit(ctx, events, exchange.Disconnected{Exchange: exchangeName, Reason: "failed to connect to websocket"})
				sleep(ctx, reconnectBackoff)
				continue
			}

			// Seed the book while the socket buffers incoming diffs.
			payload, err := a.FetchDepth(ctx, info)
			if err != nil {
				_ = conn.Close()
				emit(ctx, events, exchange.Disconnected{Exchange: exchangeName, Reason: fmt.Sprintf("depth fetch failed: %v", err)})
				sleep(ctx, reconnectBackoff)
				continue
			}
			seq.seed(payload)
			tradesBuffer = tradesBuffer[:0]

			ws = conn
			state = stateConnected
			logger.Info().Uint64("last_update_id", payload.LastUpdateID).Msg("stream connected")
			emit(ctx, events, exchange.Connected{Exchange: exchangeName})

		case stateConnected:
			// Completed refetches are picked up before each read. At the
			// stream's push cadence the next frame is always imminent, so
			// the book is reseeded within one push interval.
			if res, ok := gate.poll(); ok {
				if res.err != nil {
					disconnect(fmt.Sprintf("depth fetch failed: %v", res.err))
					continue
				}
				seq.seed(res.payload)
				logger.Info().Uint64("last_update_id", res.payload.LastUpdateID).Msg("book resynced")
			}

			frame, err := ws.ReadFrame()
			if err != nil {
				disconnect(fmt.Sprintf("error reading frame: %v", err))
				continue
			}

			switch frame.Type {
			case connect.FrameClose:
				disconnect("connection closed")
			case connect.FrameText:
				a.handleMarketFrame(ctx, frame.Payload, stream, seq, &tradesBuffer, gate, events, disconnect, logger)
			}
		}
	}
}

func (a *Adapter) handleMarketFrame(
	ctx context.Context,
	payload []byte,
	stream exchange.StreamKind,
	seq *depthSequencer,
	tradesBuffer *[]types.Trade,
	gate *resyncGate,
	events chan<- exchange.Event,
	disconnect func(string),
	logger zerolog.Logger,
) {
	data, err := demuxFrame(payload)
	if err != nil {
		logger.Warn().Err(err).Msg("skipping frame")
		return
	}
	info := stream.TickerInfo

	switch {
	case data.Trade != nil:
		t := data.Trade
		*tradesBuffer = append(*tradesBuffer, types.Trade{
			Time:   t.Time,
			Price:  types.PriceFromFloat(float64(t.Price)).RoundToMinTick(info.MinTicksize),
			Qty:    types.CalcQty(float64(t.Qty), float64(t.Price), info.ContractSize, a.sizeUnit),
			IsSell: t.IsSell,
		})

	case data.Depth != nil:
		if gate.fetching {
			return
		}
		switch seq.apply(data.Depth, a.sizeUnit) {
		case seqApplied:
			trades := *tradesBuffer
			*tradesBuffer = nil
			emit(ctx, events, exchange.DepthReceived{
				Stream: stream,
				Time:   data.Depth.Time,
				Depth:  seq.cache.Snapshot(),
				Trades: trades,
			})
		case seqResync:
			logger.Warn().
				Uint64("last_update_id", seq.cache.LastUpdateID).
				Uint64("first_id", data.Depth.FirstID).
				Uint64("final_id", data.Depth.FinalID).
				Msg("out of sync at first diff, resyncing")
			resolve := gate.begin()
			go func() {
				payload, err := a.FetchDepth(ctx, stream.TickerInfo)
				resolve <- resyncResult{payload: payload, err: err}
			}()
		case seqGap:
			disconnect(fmt.Sprintf("out of sync: expected prev_final_id %d, got %d",
				seq.prevID, data.Depth.PrevFinalID))
		case seqStale:
		}

	case data.Kline != nil:
		logger.Warn().Msg("unexpected kline on market stream")
	}
}

// KlineSub pairs an instrument with a bar interval for a multiplexed kline
// connection.
type KlineSub struct {
	Info      types.TickerInfo
	Timeframe types.Timeframe
}

type klineKey struct {
	symbol   string
	interval string
}

// ConnectKlineStream starts the long-running task for one socket carrying
// several kline streams and returns its event channel.
func (a *Adapter) ConnectKlineStream(ctx context.Context, subs []KlineSub) <-chan exchange.Event {
	events := make(chan exchange.Event, eventBufferSize)
	go a.runKlineStream(ctx, subs, events)
	return events
}

func (a *Adapter) runKlineStream(ctx context.Context, subs []KlineSub, events chan<- exchange.Event) {
	defer close(events)

	streams := make(map[klineKey]exchange.StreamKind, len(subs))
	parts := make([]string, 0, len(subs))
	for _, sub := range subs {
		parts = append(parts, fmt.Sprintf("%s@kline_%s",
			strings.ToLower(sub.Info.Ticker.Symbol), sub.Timeframe))
		key := klineKey{symbol: sub.Info.Ticker.Symbol, interval: string(sub.Timeframe)}
		streams[key] = exchange.KlineStream(sub.Info, sub.Timeframe)
	}
	url := fmt.Sprintf("wss://%s/stream?streams=%s", a.wsHost, strings.Join(parts, "/"))

	logger := log.With().
		Str("exchange", string(exchangeName)).
		Int("streams", len(subs)).
		Logger()

	state := stateDisconnected
	var ws *connect.Conn

	disconnect := func(reason string) {
		if ws != nil {
			_ = ws.Close()
			ws = nil
		}
		state = stateDisconnected
		emit(ctx, events, exchange.Disconnected{Exchange: exchangeName, Reason: reason})
	}

	for {
		select {
		case <-ctx.Done():
			if ws != nil {
				_ = ws.Close()
			}
			return
		default:
		}

		switch state {
		case stateDisconnected:
			conn, err := connect.Dial(ctx, url)
			if err != nil {
				logger.Warn().Err(err).Msg("websocket connect failed")
				emit(ctx, events, exchange.Disconnected{Exchange: exchangeName, Reason: "failed to connect to websocket"})
				sleep(ctx, reconnectBackoff)
				continue
			}
			ws = conn
			state = stateConnected
			logger.Info().Msg("kline stream connected")
			emit(ctx, events, exchange.Connected{Exchange: exchangeName})

		case stateConnected:
			frame, err := ws.ReadFrame()
			if err != nil {
				disconnect(fmt.Sprintf("error reading frame: %v", err))
				continue
			}

			switch frame.Type {
			case connect.FrameClose:
				disconnect("connection closed")
			case connect.FrameText:
				data, err := demuxFrame(frame.Payload)
				if err != nil {
					logger.Warn().Err(err).Msg("skipping frame")
					continue
				}
				if data.Kline == nil {
					continue
				}

				key := klineKey{
					symbol:   strings.ToUpper(data.Kline.Symbol),
					interval: data.Kline.Kline.Interval,
				}
				stream, ok := streams[key]
				if !ok {
					logger.Warn().
						Str("symbol", key.symbol).
						Str("interval", key.interval).
						Msg("kline for unknown stream")
					continue
				}

				emit(ctx, events, exchange.KlineReceived{
					Stream: stream,
					Kline:  klineFromWS(&data.Kline.Kline, stream.TickerInfo, a.sizeUnit),
				})
			}
		}
	}
}

// klineFromWS splits volume by taker side and rounds prices to the
// instrument tick. The sell portion is total volume minus taker-buy volume.
func klineFromWS(k *wsKline, info types.TickerInfo, unit types.SizeUnit) types.Kline {
	buy := float64(k.TakerBuyVol)
	sell := float64(k.Volume) - buy
	if unit == types.SizeInQuote {
		buy = math.Round(buy * float64(k.Close))
		sell = math.Round(sell * float64(k.Close))
	}

	tick := info.MinTicksize
	return types.Kline{
		Time:       k.Time,
		Open:       types.PriceFromFloat(float64(k.Open)).RoundToMinTick(tick),
		High:       types.PriceFromFloat(float64(k.High)).RoundToMinTick(tick),
		Low:        types.PriceFromFloat(float64(k.Low)).RoundToMinTick(tick),
		Close:      types.PriceFromFloat(float64(k.Close)).RoundToMinTick(tick),
		BuyVolume:  buy,
		SellVolume: sell,
	}
}

func emit(ctx context.Context, events chan<- exchange.Event, ev exchange.Event) {
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
