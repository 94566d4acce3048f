// Package binance streams Binance USD-M futures market data: aggregated
// trades and incremental depth with snapshot reconciliation on one
// connection, klines on another. Adding further exchanges means supplying
// this package's parsing and URL building on top of the shared limiter,
// connect and depth packages.
package binance

import (
	"net/http"
	"strconv"
	"time"

	"github.com/parvezahmmedmahir/footprint/internal/exchange/limiter"
	"github.com/parvezahmmedmahir/footprint/internal/types"
)

const exchangeName = types.ExchangeBinanceLinear

const (
	defaultRestURL = "https://fapi.binance.com"
	defaultWSHost  = "fstream.binance.com"
)

// Futures REST budget: 2400 weight per rolling minute.
const (
	weightLimit  = 2400
	refillWindow = time.Minute
)

// Request weights per endpoint, from the exchange's published schedule.
const (
	weightDepth        = 20
	weightKlines       = 2
	weightExchangeInfo = 20
	weightTickerStats  = 40
	weightOpenInterest = 12
)

// usedWeightHeader is the authoritative rolling-window usage the server
// reports on every REST response.
const usedWeightHeader = "X-Mbx-Used-Weight-1m"

// futuresLimiter anchors a dynamic bucket on the server-reported used
// weight.
type futuresLimiter struct {
	bucket *limiter.DynamicBucket
}

func newFuturesLimiter() *futuresLimiter {
	return &futuresLimiter{
		bucket: limiter.NewDynamicBucket(limiter.EffectiveLimit(weightLimit), refillWindow),
	}
}

func (l *futuresLimiter) PrepareRequest(weight int) time.Duration {
	return l.bucket.PrepareRequest(weight)
}

func (l *futuresLimiter) UpdateFromResponse(resp *http.Response, _ int) {
	v := resp.Header.Get(usedWeightHeader)
	if v == "" {
		return
	}
	used, err := strconv.Atoi(v)
	if err != nil {
		return
	}
	l.bucket.UpdateUsed(used)
}

func (l *futuresLimiter) ShouldExitOnResponse(resp *http.Response) bool {
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 418
}

// One guard per process: all stream tasks share the exchange's REST budget.
var restGuard = limiter.NewGuard(newFuturesLimiter())

// Adapter owns stream connections and REST fetchers for Binance USD-M
// futures.
type Adapter struct {
	restURL  string
	wsHost   string
	sizeUnit types.SizeUnit
	rest     *limiter.Guard
}

// New builds an adapter. Empty URLs select the production endpoints.
func New(restURL, wsHost string, sizeUnit types.SizeUnit) *Adapter {
	if restURL == "" {
		restURL = defaultRestURL
	}
	if wsHost == "" {
		wsHost = defaultWSHost
	}
	return &Adapter{
		restURL:  restURL,
		wsHost:   wsHost,
		sizeUnit: sizeUnit,
		rest:     restGuard,
	}
}
