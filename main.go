package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"cascadeflow/config"
	"cascadeflow/internal/aggregator"
	"cascadeflow/internal/analytics"
	"cascadeflow/internal/api"
	"cascadeflow/internal/channel"
	"cascadeflow/internal/feed"
	"cascadeflow/internal/metrics"
	binancereader "cascadeflow/internal/reader/binance"
	bybitreader "cascadeflow/internal/reader/bybit"
	kucoinreader "cascadeflow/internal/reader/kucoin"
	okxreader "cascadeflow/internal/reader/okx"
	"cascadeflow/internal/writer"
	"cascadeflow/logger"
)

type startable interface {
	Start(ctx context.Context) error
	Stop()
}

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}
	if cfg.Logging.CloudWatch.Enabled {
		logger.InitCloudWatch(cfg.Logging.CloudWatch.Region, cfg.Logging.CloudWatch.Namespace)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Cascadeflow.Name,
		"version": cfg.Cascadeflow.Version,
	}).Info("starting cascadeflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	if cfg.Metrics.Enabled {
		metrics.Init(cfg.Metrics.Address)
	}

	channels := channel.NewChannels(cfg.Channels)
	defer channels.Close()
	go channels.StartMetricsReporting(ctx)

	health := feed.NewHealth(cfg.Source.StalenessTimeout)
	normalizer := feed.NewNormalizer(cfg, channels.Liq, health)
	regime := analytics.NewRegimeDetector(cfg, channels.Market)
	engine := analytics.NewEngine(cfg, channels.Liq, channels.Market, channels.Signal, health, regime)

	agg := buildAggregator(cfg, engine, log)

	var archive *writer.ArchiveWriter
	if cfg.Storage.S3.Enabled {
		archive, err = writer.NewArchiveWriter(cfg)
		if err != nil {
			log.WithError(err).Error("failed to create archive writer")
			os.Exit(1)
		}
		engine.AddEventSink(archive.Offer)
		defer archive.Stop()
		if err := archive.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start archive writer")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("S3 storage disabled; skipping event archive")
	}

	publisher := buildPublisher(cfg, channels, archive, log)

	components := []startable{regime, engine, normalizer}
	if agg != nil {
		components = append(components, agg)
	}
	if publisher != nil {
		components = append(components, publisher)
	}
	for _, c := range components {
		if err := c.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start pipeline component")
			os.Exit(1)
		}
	}

	readers := startReaders(ctx, cfg, channels, log)

	if srv := api.NewServer(cfg.API, engine.Store(), regime, health); srv != nil {
		go func() {
			if err := srv.Run(ctx); err != nil {
				log.WithComponent("api").WithError(err).Error("api server exited")
			}
		}()
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	// Stop producers first, then drain the pipeline back to front.
	for _, stop := range readers {
		stop()
	}
	normalizer.Stop()
	engine.Stop()
	if agg != nil {
		agg.Stop()
	}
	if publisher != nil {
		publisher.Stop()
	}
	regime.Stop()

	log.Info("cascadeflow stopped")
}

// buildAggregator wires the bucket roll-up when a bucket sink exists.
func buildAggregator(cfg *config.Config, engine *analytics.Engine, log *logger.Log) *aggregator.Aggregator {
	if !cfg.Storage.Redis.Enabled {
		log.WithComponent("main").Info("redis storage disabled; skipping aggregation cache")
		return nil
	}

	redisWriter, err := writer.NewRedisWriter(cfg)
	if err != nil {
		log.WithError(err).Error("failed to create redis writer")
		os.Exit(1)
	}

	agg := aggregator.NewAggregator(cfg, redisWriter)
	engine.AddEventSink(agg.Offer)
	return agg
}

// buildPublisher wires every enabled signal and assessment sink; nil when
// none are.
func buildPublisher(cfg *config.Config, channels *channel.Channels, archive *writer.ArchiveWriter, log *logger.Log) *writer.Publisher {
	publisher := writer.NewPublisher(cfg, channels.Signal)
	sinks := 0

	if archive != nil {
		publisher.AddAssessmentSink(archive)
		sinks++
	}

	if cfg.Storage.Redis.Enabled {
		redisWriter, err := writer.NewRedisWriter(cfg)
		if err != nil {
			log.WithError(err).Error("failed to create redis writer")
			os.Exit(1)
		}
		publisher.AddSignalSink(redisWriter)
		publisher.AddAssessmentSink(redisWriter)
		sinks++
	}
	if cfg.Storage.Kafka.Enabled {
		kafkaWriter, err := writer.NewKafkaWriter(cfg)
		if err != nil {
			log.WithError(err).Error("failed to create kafka writer")
			os.Exit(1)
		}
		publisher.AddSignalSink(kafkaWriter)
		sinks++
	}

	if sinks == 0 {
		log.WithComponent("main").Info("no signal sinks enabled; signals served via api only")
		return nil
	}
	return publisher
}

// startReaders launches every enabled venue reader and returns their stop
// functions in launch order.
func startReaders(ctx context.Context, cfg *config.Config, channels *channel.Channels, log *logger.Log) []func() {
	var wg sync.WaitGroup
	var stops []func()

	launch := func(name string, s startable) {
		stops = append(stops, s.Stop)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Start(ctx); err != nil {
				log.WithComponent("main").WithError(err).WithFields(logger.Fields{
					"reader": name,
				}).Warn("reader failed to start")
			}
		}()
	}

	if cfg.Source.Binance.Liquidation.Enabled {
		launch("binance_liq", binancereader.NewLiquidationReader(cfg, channels.Liq))
	}
	if cfg.Source.Binance.MarkPrice.Enabled {
		launch("binance_markprice", binancereader.NewMarkPriceReader(cfg, channels.Market))
	}
	if cfg.Source.Binance.OpenInterest.Enabled {
		launch("binance_oi", binancereader.NewOpenInterestReader(cfg, channels.Market))
	}
	if cfg.Source.Bybit.Liquidation.Enabled {
		launch("bybit_liq", bybitreader.NewLiquidationReader(cfg, channels.Liq))
	}
	if cfg.Source.Okx.Liquidation.Enabled {
		launch("okx_liq", okxreader.NewLiquidationReader(cfg, channels.Liq))
	}
	if cfg.Source.Kucoin.Liquidation.Enabled {
		launch("kucoin_liq", kucoinreader.NewLiquidationReader(cfg, channels.Liq))
	}

	wg.Wait()
	return stops
}
