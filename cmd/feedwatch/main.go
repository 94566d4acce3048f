package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/parvezahmmedmahir/footprint/internal/config"
	"github.com/parvezahmmedmahir/footprint/internal/exchange"
	"github.com/parvezahmmedmahir/footprint/internal/exchange/binance"
	"github.com/parvezahmmedmahir/footprint/internal/logging"
	"github.com/parvezahmmedmahir/footprint/internal/types"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Init(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	adapter := binance.New(cfg.Exchange.RestURL, cfg.Exchange.WSDomain, cfg.Exchange.ParsedSizeUnit())

	infos, err := adapter.FetchTickerInfo(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to fetch instrument metadata")
	}
	log.Info().Int("symbols", len(infos)).Msg("instrument metadata loaded")

	pushFreq := exchange.PushFrequency(cfg.Streams.PushFrequency)

	var channels []<-chan exchange.Event
	var klineSubs []binance.KlineSub
	for _, symbol := range cfg.Streams.Symbols {
		ticker := types.NewTicker(symbol, types.ExchangeBinanceLinear)
		info, ok := infos[ticker]
		if !ok {
			log.Warn().Str("symbol", symbol).Msg("symbol not listed, skipping")
			continue
		}

		channels = append(channels, adapter.ConnectMarketStream(ctx, info, pushFreq))
		for _, tf := range cfg.Streams.Timeframes {
			timeframe := types.Timeframe(tf)
			if !timeframe.Valid() {
				log.Warn().Str("timeframe", tf).Msg("unsupported timeframe, skipping")
				continue
			}
			klineSubs = append(klineSubs, binance.KlineSub{Info: info, Timeframe: timeframe})
		}
	}
	if len(klineSubs) > 0 {
		channels = append(channels, adapter.ConnectKlineStream(ctx, klineSubs))
	}
	if len(channels) == 0 {
		log.Fatal().Msg("no streams configured")
	}

	merged := make(chan exchange.Event, 100)
	for _, ch := range channels {
		go func(ch <-chan exchange.Event) {
			for ev := range ch {
				select {
				case merged <- ev:
				case <-ctx.Done():
					return
				}
			}
		}(ch)
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			return
		case ev := <-merged:
			logEvent(ev)
		}
	}
}

func logEvent(ev exchange.Event) {
	switch e := ev.(type) {
	case exchange.Connected:
		log.Info().Str("exchange", string(e.Exchange)).Msg("connected")
	case exchange.Disconnected:
		log.Warn().Str("exchange", string(e.Exchange)).Str("reason", e.Reason).Msg("disconnected")
	case exchange.DepthReceived:
		mid, ok := e.Depth.MidPrice()
		if !ok {
			return
		}
		log.Info().
			Str("symbol", e.Stream.TickerInfo.Ticker.Symbol).
			Str("mid", mid.String()).
			Int("bids", len(e.Depth.Bids)).
			Int("asks", len(e.Depth.Asks)).
			Int("trades", len(e.Trades)).
			Msg("depth")
	case exchange.KlineReceived:
		log.Info().
			Str("symbol", e.Stream.TickerInfo.Ticker.Symbol).
			Str("timeframe", string(e.Stream.Timeframe)).
			Str("close", e.Kline.Close.String()).
			Float64("buy_vol", e.Kline.BuyVolume).
			Float64("sell_vol", e.Kline.SellVolume).
			Msg("kline")
	}
}
