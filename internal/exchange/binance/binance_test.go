package binance

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parvezahmmedmahir/footprint/internal/exchange/depth"
	"github.com/parvezahmmedmahir/footprint/internal/types"
)

func testTickerInfo() types.TickerInfo {
	ticker := types.NewTicker("BTCUSDT", exchangeName)
	return types.TickerInfo{
		Ticker:      ticker,
		MinTicksize: types.PriceFromFloat(0.1),
		MinQty:      0.001,
	}
}

func TestDemuxFrameDepth(t *testing.T) {
	payload := []byte(`{
		"stream": "btcusdt@depth@100ms",
		"data": {"T": 1700000000000, "U": 101, "u": 105, "pu": 100,
			"b": [["67000.1","1.5"]], "a": [["67000.2","0"]]}
	}`)

	data, err := demuxFrame(payload)
	require.NoError(t, err)
	require.NotNil(t, data.Depth)
	require.Nil(t, data.Trade)

	d := data.Depth
	require.Equal(t, uint64(101), d.FirstID)
	require.Equal(t, uint64(105), d.FinalID)
	require.Equal(t, uint64(100), d.PrevFinalID)
	require.Equal(t, 67000.1, d.Bids[0].Price)
	require.Equal(t, 0.0, d.Asks[0].Qty)
}

func TestDemuxFrameTrade(t *testing.T) {
	payload := []byte(`{
		"stream": "btcusdt@aggTrade",
		"data": {"T": 1700000000000, "p": "67000.5", "q": "0.25", "m": true}
	}`)

	data, err := demuxFrame(payload)
	require.NoError(t, err)
	require.NotNil(t, data.Trade)
	require.Equal(t, 67000.5, float64(data.Trade.Price))
	require.True(t, data.Trade.IsSell)
}

func TestDemuxFrameKline(t *testing.T) {
	payload := []byte(`{
		"stream": "btcusdt@kline_1m",
		"data": {"s": "BTCUSDT", "k": {"t": 1700000000000,
			"o": "100", "h": "110", "l": "90", "c": "105",
			"v": "10", "V": "6", "i": "1m"}}
	}`)

	data, err := demuxFrame(payload)
	require.NoError(t, err)
	require.NotNil(t, data.Kline)
	require.Equal(t, "BTCUSDT", data.Kline.Symbol)
	require.Equal(t, "1m", data.Kline.Kline.Interval)
}

func TestDemuxFrameUnknownStream(t *testing.T) {
	_, err := demuxFrame([]byte(`{"stream": "btcusdt@markPrice", "data": {}}`))
	require.Error(t, err)
	require.True(t, types.IsKind(err, types.ParseError))

	_, err = demuxFrame([]byte(`not json`))
	require.Error(t, err)
}

func seededSequencer(t *testing.T, lastUpdateID uint64) *depthSequencer {
	t.Helper()
	seq := newDepthSequencer(testTickerInfo())
	seq.seed(depth.DepthPayload{
		LastUpdateID: lastUpdateID,
		Time:         1,
		Bids:         []depth.DeOrder{{Price: 100, Qty: 2}},
		Asks:         []depth.DeOrder{{Price: 100.2, Qty: 3}},
	})
	return seq
}

func TestSequencerRejectsStaleDiff(t *testing.T) {
	seq := seededSequencer(t, 100)

	d := &wsDepth{FirstID: 95, FinalID: 100, PrevFinalID: 94,
		Bids: []depth.DeOrder{{Price: 100, Qty: 0}}}
	require.Equal(t, seqStale, seq.apply(d, types.SizeInBase))

	// stale diffs leave the book untouched
	require.Contains(t, seq.cache.Snapshot().Bids, types.PriceFromFloat(100))
	require.Equal(t, uint64(100), seq.cache.LastUpdateID)
}

func TestSequencerRejectsDiffsBeforeSnapshot(t *testing.T) {
	seq := newDepthSequencer(testTickerInfo())

	d := &wsDepth{FirstID: 1, FinalID: 5, PrevFinalID: 0}
	require.Equal(t, seqStale, seq.apply(d, types.SizeInBase))
}

func TestSequencerAppliesAlignedFirstDiff(t *testing.T) {
	seq := seededSequencer(t, 100)

	d := &wsDepth{Time: 2, FirstID: 98, FinalID: 103, PrevFinalID: 97,
		Bids: []depth.DeOrder{{Price: 99.9, Qty: 1}}}
	require.Equal(t, seqApplied, seq.apply(d, types.SizeInBase))

	require.Equal(t, uint64(103), seq.cache.LastUpdateID)
	require.Equal(t, uint64(103), seq.prevID)
	require.Contains(t, seq.cache.Snapshot().Bids, types.PriceFromFloat(99.9))
}

func TestSequencerFirstDiffMisalignmentTriggersResync(t *testing.T) {
	// gap ahead of the snapshot
	seq := seededSequencer(t, 100)
	d := &wsDepth{FirstID: 105, FinalID: 110, PrevFinalID: 104}
	require.Equal(t, seqResync, seq.apply(d, types.SizeInBase))

	// window ending before the snapshot's next id is equally sufficient
	seq = seededSequencer(t, 100)
	d = &wsDepth{FirstID: 90, FinalID: 100, PrevFinalID: 89}
	require.Equal(t, seqStale, seq.apply(d, types.SizeInBase)) // final <= last is stale first

	d = &wsDepth{FirstID: 101, FinalID: 103, PrevFinalID: 100,
		Bids: []depth.DeOrder{{Price: 99, Qty: 1}}}
	require.Equal(t, seqApplied, seq.apply(d, types.SizeInBase))
}

func TestSequencerContinuityChain(t *testing.T) {
	seq := seededSequencer(t, 100)

	first := &wsDepth{Time: 2, FirstID: 101, FinalID: 103, PrevFinalID: 100}
	require.Equal(t, seqApplied, seq.apply(first, types.SizeInBase))

	next := &wsDepth{Time: 3, FirstID: 104, FinalID: 108, PrevFinalID: 103}
	require.Equal(t, seqApplied, seq.apply(next, types.SizeInBase))
	require.Equal(t, uint64(108), seq.prevID)
}

func TestSequencerGapForcesDisconnect(t *testing.T) {
	seq := seededSequencer(t, 100)

	first := &wsDepth{Time: 2, FirstID: 101, FinalID: 103, PrevFinalID: 100}
	require.Equal(t, seqApplied, seq.apply(first, types.SizeInBase))

	bidsBefore := seq.cache.Snapshot().Bids

	// prev_final_id does not match the last applied final id
	gap := &wsDepth{Time: 4, FirstID: 109, FinalID: 112, PrevFinalID: 108,
		Bids: []depth.DeOrder{{Price: 50, Qty: 1}}}
	require.Equal(t, seqGap, seq.apply(gap, types.SizeInBase))

	// the gapped diff is not applied
	require.Equal(t, bidsBefore, seq.cache.Snapshot().Bids)
}

func TestSequencerSeedRestartsSequencing(t *testing.T) {
	seq := seededSequencer(t, 100)
	first := &wsDepth{FirstID: 101, FinalID: 103, PrevFinalID: 100}
	require.Equal(t, seqApplied, seq.apply(first, types.SizeInBase))

	seq.seed(depth.DepthPayload{LastUpdateID: 200, Time: 5,
		Bids: []depth.DeOrder{{Price: 101, Qty: 1}}})

	require.Equal(t, uint64(0), seq.prevID)
	require.Equal(t, uint64(200), seq.cache.LastUpdateID)

	// the first diff after the new snapshot follows first-diff rules again
	d := &wsDepth{FirstID: 199, FinalID: 205, PrevFinalID: 198}
	require.Equal(t, seqApplied, seq.apply(d, types.SizeInBase))
}

func TestSequencerAppliesQuantityNormalization(t *testing.T) {
	info := testTickerInfo()
	info.ContractSize = 10
	seq := newDepthSequencer(info)
	seq.seed(depth.DepthPayload{LastUpdateID: 100, Time: 1})

	d := &wsDepth{FirstID: 101, FinalID: 102, PrevFinalID: 100,
		Bids: []depth.DeOrder{{Price: 100, Qty: 2}}}
	require.Equal(t, seqApplied, seq.apply(d, types.SizeInBase))
	require.Equal(t, 20.0, seq.cache.Snapshot().Bids[types.PriceFromFloat(100)])
}

func TestResyncGateLifecycle(t *testing.T) {
	g := newResyncGate()

	_, ok := g.poll()
	require.False(t, ok)
	require.False(t, g.fetching)

	resolve := g.begin()
	require.True(t, g.fetching)

	resolve <- resyncResult{payload: depth.DepthPayload{LastUpdateID: 7}}
	res, ok := g.poll()
	require.True(t, ok)
	require.False(t, g.fetching)
	require.Equal(t, uint64(7), res.payload.LastUpdateID)
}

func TestResyncGateResetDropsPendingResult(t *testing.T) {
	g := newResyncGate()

	// a refetch is in flight when the connection is torn down
	resolve := g.begin()
	g.reset()
	require.False(t, g.fetching)

	// the old instance's fetch resolves late; the fresh instance must
	// never observe it
	resolve <- resyncResult{payload: depth.DepthPayload{LastUpdateID: 50}}
	_, ok := g.poll()
	require.False(t, ok)

	// and the gate serves the next connection's own refetch normally
	resolve = g.begin()
	resolve <- resyncResult{payload: depth.DepthPayload{LastUpdateID: 200}}
	res, ok := g.poll()
	require.True(t, ok)
	require.Equal(t, uint64(200), res.payload.LastUpdateID)
}

func TestKlineFromWSVolumeSplit(t *testing.T) {
	info := testTickerInfo()
	k := &wsKline{Time: 1, Open: 100, High: 110, Low: 90, Close: 105, Volume: 10, TakerBuyVol: 6}

	kline := klineFromWS(k, info, types.SizeInBase)
	require.Equal(t, 6.0, kline.BuyVolume)
	require.Equal(t, 4.0, kline.SellVolume)
	require.Equal(t, types.PriceFromFloat(105), kline.Close)

	quote := klineFromWS(k, info, types.SizeInQuote)
	require.Equal(t, 630.0, quote.BuyVolume)
	require.Equal(t, 420.0, quote.SellVolume)
}

func TestRestKlineRowParse(t *testing.T) {
	raw := []byte(`[1700000000000,"100.5","110","90","105","10",1700000059999,"1050",123,"6","630","0"]`)

	var row restKlineRow
	require.NoError(t, json.Unmarshal(raw, &row))
	require.Equal(t, uint64(1700000000000), row.time)
	require.Equal(t, 100.5, row.open)
	require.Equal(t, 10.0, row.volume)
	require.Equal(t, 6.0, row.takerBuyVolume)
}

func TestRestKlineRowShortArity(t *testing.T) {
	var row restKlineRow
	err := json.Unmarshal([]byte(`[1700000000000,"100.5","110"]`), &row)
	require.Error(t, err)
	require.True(t, types.IsKind(err, types.ParseError))
}

func TestFuturesLimiterUpdateFromResponse(t *testing.T) {
	l := newFuturesLimiter()

	// burn most of the budget locally
	require.Equal(t, time.Duration(0), l.PrepareRequest(2000))
	require.Greater(t, l.PrepareRequest(400), time.Duration(0))

	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set(usedWeightHeader, "100")
	l.UpdateFromResponse(resp, 0)

	// re-anchored to the server's lower figure
	require.Equal(t, time.Duration(0), l.PrepareRequest(400))

	// missing or garbage headers leave accounting alone
	l.UpdateFromResponse(&http.Response{Header: http.Header{}}, 0)
	resp.Header.Set(usedWeightHeader, "garbage")
	l.UpdateFromResponse(resp, 0)
	require.Greater(t, l.PrepareRequest(1900), time.Duration(0))
}

func TestFuturesLimiterHardStop(t *testing.T) {
	l := newFuturesLimiter()

	require.True(t, l.ShouldExitOnResponse(&http.Response{StatusCode: 429}))
	require.True(t, l.ShouldExitOnResponse(&http.Response{StatusCode: 418}))
	require.False(t, l.ShouldExitOnResponse(&http.Response{StatusCode: 200}))
}

func TestNormalizeOrdersPreservesDeletions(t *testing.T) {
	orders := []depth.DeOrder{{Price: 100, Qty: 0}, {Price: 99, Qty: 2}}

	out := normalizeOrders(orders, 0, types.SizeInQuote)
	require.Equal(t, 0.0, out[0].Qty)
	require.Equal(t, 198.0, out[1].Qty)
}
