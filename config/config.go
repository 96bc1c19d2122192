package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Cascadeflow CascadeflowConfig `yaml:"cascadeflow"`
	Logging     LoggingConfig     `yaml:"logging"`
	Channels    ChannelsConfig    `yaml:"channels"`
	Source      SourceConfig      `yaml:"source"`
	Analytics   AnalyticsConfig   `yaml:"analytics"`
	Regime      RegimeConfig      `yaml:"regime"`
	Cascade     CascadeConfig     `yaml:"cascade"`
	Signal      SignalConfig      `yaml:"signal"`
	Aggregation AggregationConfig `yaml:"aggregation"`
	Storage     StorageConfig     `yaml:"storage"`
	API         APIConfig         `yaml:"api"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

type CascadeflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`

	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

type ChannelsConfig struct {
	RawBuffer    int `yaml:"raw_buffer"`
	EventBuffer  int `yaml:"event_buffer"`
	TickBuffer   int `yaml:"tick_buffer"`
	SignalBuffer int `yaml:"signal_buffer"`
}

// FeedConfig is the common shape of one venue stream configuration.
type FeedConfig struct {
	Enabled bool     `yaml:"enabled"`
	URL     string   `yaml:"url"`
	Symbols []string `yaml:"symbols"`
}

type BinanceSourceConfig struct {
	Liquidation  FeedConfig       `yaml:"liquidation"`
	MarkPrice    FeedConfig       `yaml:"mark_price"`
	OpenInterest OpenInterestConfig `yaml:"open_interest"`
}

type OpenInterestConfig struct {
	Enabled           bool          `yaml:"enabled"`
	URL               string        `yaml:"url"`
	Symbols           []string      `yaml:"symbols"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

type BybitSourceConfig struct {
	Liquidation FeedConfig `yaml:"liquidation"`
}

type OkxSourceConfig struct {
	Liquidation FeedConfig `yaml:"liquidation"`
}

type KucoinSourceConfig struct {
	Liquidation        FeedConfig `yaml:"liquidation"`
	ReadBufferBytes    int        `yaml:"read_buffer_bytes"`
	ReadMessageBuffer  int        `yaml:"read_message_buffer"`
	WriteMessageBuffer int        `yaml:"write_message_buffer"`
}

type SourceConfig struct {
	Binance BinanceSourceConfig `yaml:"binance"`
	Bybit   BybitSourceConfig   `yaml:"bybit"`
	Okx     OkxSourceConfig     `yaml:"okx"`
	Kucoin  KucoinSourceConfig  `yaml:"kucoin"`

	// StalenessTimeout marks a venue stale after this long without data.
	StalenessTimeout time.Duration `yaml:"staleness_timeout"`
	// MaxClockSkew rejects events timestamped too far from ingest time.
	MaxClockSkew time.Duration `yaml:"max_clock_skew"`
	// NormalizerWorkers sets the raw-message parsing pool size.
	NormalizerWorkers int `yaml:"normalizer_workers"`
}

type AnalyticsConfig struct {
	Workers            int             `yaml:"workers"`
	RingCapacity       int             `yaml:"ring_capacity"`
	Timeframes         []time.Duration `yaml:"timeframes"`
	CorrelationWindow  time.Duration   `yaml:"correlation_window"`
	PublishCycle       time.Duration   `yaml:"publish_cycle"`
	SignalHistorySize  int             `yaml:"signal_history_size"`
}

type RegimeConfig struct {
	ReferenceSymbol string          `yaml:"reference_symbol"`
	VolHorizons     []time.Duration `yaml:"vol_horizons"`
	// VolTierBounds are the five realized-vol (bps of short-horizon stddev)
	// boundaries between the six tiers, ascending.
	VolTierBounds []float64 `yaml:"vol_tier_bounds"`
	FastMA        time.Duration `yaml:"fast_ma"`
	SlowMA        time.Duration `yaml:"slow_ma"`
}

type CascadeConfig struct {
	Window   time.Duration `yaml:"window"`
	MinCount int           `yaml:"min_count"`
	MinValue float64       `yaml:"min_value"`

	Ceilings CascadeCeilings `yaml:"ceilings"`
	Weights  CascadeWeights  `yaml:"weights"`
}

type CascadeCeilings struct {
	VolumeUSD         float64 `yaml:"volume_usd"`
	EventsPerMinute   float64 `yaml:"events_per_minute"`
	PriceBandPct      float64 `yaml:"price_band_pct"`
	InstitutionalUSD  float64 `yaml:"institutional_usd"`
}

type CascadeWeights struct {
	VolumeConcentration float64 `yaml:"volume_concentration"`
	TimeCompression     float64 `yaml:"time_compression"`
	PriceClustering     float64 `yaml:"price_clustering"`
	SideImbalance       float64 `yaml:"side_imbalance"`
	InstitutionalRatio  float64 `yaml:"institutional_ratio"`
	ExchangeDiversity   float64 `yaml:"exchange_diversity"`
}

func (w CascadeWeights) Sum() float64 {
	return w.VolumeConcentration + w.TimeCompression + w.PriceClustering +
		w.SideImbalance + w.InstitutionalRatio + w.ExchangeDiversity
}

type SignalConfig struct {
	Ceilings SignalCeilings  `yaml:"ceilings"`
	Weights  SignalWeights   `yaml:"weights"`
	Levels   LevelThresholds `yaml:"levels"`

	// Amplifiers applied after the weighted base sum.
	AccelVelocityGate  float64 `yaml:"accel_velocity_gate"`
	AccelVelocityBoost float64 `yaml:"accel_velocity_boost"`
	CorrelationGate    float64 `yaml:"correlation_gate"`
	CorrelationBoost   float64 `yaml:"correlation_boost"`

	// Overrides on raw velocity/acceleration, independent of probability.
	ExtremeVelocity      float64 `yaml:"extreme_velocity"`
	ExtremeAcceleration  float64 `yaml:"extreme_acceleration"`
	CriticalVelocity     float64 `yaml:"critical_velocity"`
	CriticalAcceleration float64 `yaml:"critical_acceleration"`

	// ConfidenceSampleSize is the event count in the longest window at which
	// the sample-size term of confidence saturates.
	ConfidenceSampleSize int `yaml:"confidence_sample_size"`
}

type SignalCeilings struct {
	Velocity     float64 `yaml:"velocity"`      // events/s
	Acceleration float64 `yaml:"acceleration"`  // events/s^2
	VolumeRate   float64 `yaml:"volume_rate"`   // USD/s
	OIChangePct  float64 `yaml:"oi_change_pct"` // 1m OI change magnitude
	FundingPct   float64 `yaml:"funding_pct"`   // funding-rate magnitude
	RiskMult     float64 `yaml:"risk_mult"`     // regime risk multiplier
}

type SignalWeights struct {
	Velocity     float64 `yaml:"velocity"`
	Acceleration float64 `yaml:"acceleration"`
	Volume       float64 `yaml:"volume"`
	OIChange     float64 `yaml:"oi_change"`
	Funding      float64 `yaml:"funding"`
	Volatility   float64 `yaml:"volatility"`
}

func (w SignalWeights) Sum() float64 {
	return w.Velocity + w.Acceleration + w.Volume + w.OIChange + w.Funding + w.Volatility
}

type LevelThresholds struct {
	Extreme  float64 `yaml:"extreme"`
	Critical float64 `yaml:"critical"`
	Alert    float64 `yaml:"alert"`
	Watch    float64 `yaml:"watch"`
}

type AggregationConfig struct {
	BucketWidth time.Duration `yaml:"bucket_width"`
	QueueSize   int           `yaml:"queue_size"`
}

type StorageConfig struct {
	Redis RedisConfig `yaml:"redis"`
	Kafka KafkaConfig `yaml:"kafka"`
	S3    S3Config    `yaml:"s3"`
}

type RedisConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	KeyPrefix    string        `yaml:"key_prefix"`
	BucketTTL    time.Duration `yaml:"bucket_ttl"`
	HistoryLimit int           `yaml:"history_limit"`
}

type KafkaConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Brokers       []string `yaml:"brokers"`
	TopicAll      string   `yaml:"topic_all"`
	TopicAlert    string   `yaml:"topic_alert"`
	TopicCritical string   `yaml:"topic_critical"`
}

type S3Config struct {
	Enabled         bool          `yaml:"enabled"`
	Bucket          string        `yaml:"bucket"`
	Region          string        `yaml:"region"`
	Endpoint        string        `yaml:"endpoint"`
	PathStyle       bool          `yaml:"path_style"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	FlushInterval   time.Duration `yaml:"flush_interval"`
	MaxBufferSize   int           `yaml:"max_buffer_size"`
	// SignificantValueUSD filters which raw events are worth persisting.
	SignificantValueUSD float64 `yaml:"significant_value_usd"`
}

type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// LoadConfig reads, defaults and validates the YAML configuration. A
// validation failure here is the only process-fatal condition in the system.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

const weightTolerance = 1e-6

func (c *Config) applyDefaults() {
	if c.Cascadeflow.Name == "" {
		c.Cascadeflow.Name = "cascadeflow"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Channels.RawBuffer <= 0 {
		c.Channels.RawBuffer = 4096
	}
	if c.Channels.EventBuffer <= 0 {
		c.Channels.EventBuffer = 4096
	}
	if c.Channels.TickBuffer <= 0 {
		c.Channels.TickBuffer = 1024
	}
	if c.Channels.SignalBuffer <= 0 {
		c.Channels.SignalBuffer = 1024
	}

	if c.Source.StalenessTimeout <= 0 {
		c.Source.StalenessTimeout = 30 * time.Second
	}
	if c.Source.MaxClockSkew <= 0 {
		c.Source.MaxClockSkew = 5 * time.Minute
	}
	if c.Source.NormalizerWorkers <= 0 {
		c.Source.NormalizerWorkers = 2
	}
	if c.Source.Binance.OpenInterest.PollInterval <= 0 {
		c.Source.Binance.OpenInterest.PollInterval = 15 * time.Second
	}
	if c.Source.Binance.OpenInterest.RequestsPerSecond <= 0 {
		c.Source.Binance.OpenInterest.RequestsPerSecond = 4
	}

	if c.Analytics.Workers <= 0 {
		c.Analytics.Workers = 4
	}
	if c.Analytics.RingCapacity <= 0 {
		c.Analytics.RingCapacity = 1000
	}
	if len(c.Analytics.Timeframes) == 0 {
		c.Analytics.Timeframes = []time.Duration{
			100 * time.Millisecond,
			500 * time.Millisecond,
			2 * time.Second,
			10 * time.Second,
			60 * time.Second,
		}
	}
	if c.Analytics.CorrelationWindow <= 0 {
		c.Analytics.CorrelationWindow = 60 * time.Second
	}
	if c.Analytics.PublishCycle <= 0 {
		c.Analytics.PublishCycle = 250 * time.Millisecond
	}
	if c.Analytics.SignalHistorySize <= 0 {
		c.Analytics.SignalHistorySize = 1000
	}

	if c.Regime.ReferenceSymbol == "" {
		c.Regime.ReferenceSymbol = "BTCUSDT"
	}
	if len(c.Regime.VolHorizons) == 0 {
		c.Regime.VolHorizons = []time.Duration{
			time.Minute, 5 * time.Minute, 15 * time.Minute, time.Hour,
		}
	}
	if len(c.Regime.VolTierBounds) == 0 {
		// short-horizon realized vol boundaries, in basis points
		c.Regime.VolTierBounds = []float64{2, 5, 12, 25, 50}
	}
	if c.Regime.FastMA <= 0 {
		c.Regime.FastMA = time.Minute
	}
	if c.Regime.SlowMA <= 0 {
		c.Regime.SlowMA = 15 * time.Minute
	}

	if c.Cascade.Window <= 0 {
		c.Cascade.Window = 60 * time.Second
	}
	if c.Cascade.MinCount <= 0 {
		c.Cascade.MinCount = 5
	}
	if c.Cascade.MinValue <= 0 {
		c.Cascade.MinValue = 100_000
	}
	if c.Cascade.Ceilings.VolumeUSD <= 0 {
		c.Cascade.Ceilings.VolumeUSD = 1_000_000
	}
	if c.Cascade.Ceilings.EventsPerMinute <= 0 {
		c.Cascade.Ceilings.EventsPerMinute = 10
	}
	if c.Cascade.Ceilings.PriceBandPct <= 0 {
		c.Cascade.Ceilings.PriceBandPct = 0.5
	}
	if c.Cascade.Ceilings.InstitutionalUSD <= 0 {
		c.Cascade.Ceilings.InstitutionalUSD = 500_000
	}
	if c.Cascade.Weights == (CascadeWeights{}) {
		c.Cascade.Weights = CascadeWeights{
			VolumeConcentration: 0.25,
			TimeCompression:     0.20,
			PriceClustering:     0.20,
			SideImbalance:       0.15,
			InstitutionalRatio:  0.15,
			ExchangeDiversity:   0.05,
		}
	}

	if c.Signal.Ceilings == (SignalCeilings{}) {
		c.Signal.Ceilings = SignalCeilings{
			Velocity:     50,
			Acceleration: 20,
			VolumeRate:   50_000_000,
			OIChangePct:  5,
			FundingPct:   0.1,
			RiskMult:     5,
		}
	}
	if c.Signal.Weights == (SignalWeights{}) {
		c.Signal.Weights = SignalWeights{
			Velocity:     0.25,
			Acceleration: 0.20,
			Volume:       0.20,
			OIChange:     0.15,
			Funding:      0.10,
			Volatility:   0.10,
		}
	}
	if c.Signal.Levels == (LevelThresholds{}) {
		c.Signal.Levels = LevelThresholds{
			Extreme:  0.90,
			Critical: 0.70,
			Alert:    0.50,
			Watch:    0.30,
		}
	}
	if c.Signal.AccelVelocityGate <= 0 {
		c.Signal.AccelVelocityGate = 0.75
	}
	if c.Signal.AccelVelocityBoost <= 0 {
		c.Signal.AccelVelocityBoost = 1.5
	}
	if c.Signal.CorrelationGate <= 0 {
		c.Signal.CorrelationGate = 0.7
	}
	if c.Signal.CorrelationBoost <= 0 {
		c.Signal.CorrelationBoost = 1.2
	}
	if c.Signal.ExtremeVelocity <= 0 {
		c.Signal.ExtremeVelocity = 100
	}
	if c.Signal.ExtremeAcceleration <= 0 {
		c.Signal.ExtremeAcceleration = 40
	}
	if c.Signal.CriticalVelocity <= 0 {
		c.Signal.CriticalVelocity = 50
	}
	if c.Signal.CriticalAcceleration <= 0 {
		c.Signal.CriticalAcceleration = 20
	}
	if c.Signal.ConfidenceSampleSize <= 0 {
		c.Signal.ConfidenceSampleSize = 10
	}

	if c.Aggregation.BucketWidth <= 0 {
		c.Aggregation.BucketWidth = 60 * time.Second
	}
	if c.Aggregation.QueueSize <= 0 {
		c.Aggregation.QueueSize = 1024
	}

	if c.Storage.Redis.KeyPrefix == "" {
		c.Storage.Redis.KeyPrefix = "cascade"
	}
	if c.Storage.Redis.BucketTTL <= 0 {
		c.Storage.Redis.BucketTTL = 24 * time.Hour
	}
	if c.Storage.Redis.HistoryLimit <= 0 {
		c.Storage.Redis.HistoryLimit = 1000
	}
	if c.Storage.Kafka.TopicAll == "" {
		c.Storage.Kafka.TopicAll = "cascade.signals.all"
	}
	if c.Storage.Kafka.TopicAlert == "" {
		c.Storage.Kafka.TopicAlert = "cascade.signals.alert"
	}
	if c.Storage.Kafka.TopicCritical == "" {
		c.Storage.Kafka.TopicCritical = "cascade.signals.critical"
	}
	if c.Storage.S3.FlushInterval <= 0 {
		c.Storage.S3.FlushInterval = time.Minute
	}
	if c.Storage.S3.MaxBufferSize <= 0 {
		c.Storage.S3.MaxBufferSize = 500
	}
	if c.Storage.S3.SignificantValueUSD <= 0 {
		c.Storage.S3.SignificantValueUSD = 100_000
	}

	if c.API.Address == "" {
		c.API.Address = ":8080"
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = ":2112"
	}
}

// Validate rejects configurations the analytics stages cannot run with.
func (c *Config) Validate() error {
	if s := c.Cascade.Weights.Sum(); math.Abs(s-1.0) > weightTolerance {
		return fmt.Errorf("cascade weights must sum to 1.0, got %.8f", s)
	}
	if s := c.Signal.Weights.Sum(); math.Abs(s-1.0) > weightTolerance {
		return fmt.Errorf("signal weights must sum to 1.0, got %.8f", s)
	}

	for i, w := range c.Analytics.Timeframes {
		if w <= 0 {
			return fmt.Errorf("analytics timeframe %d must be positive, got %s", i, w)
		}
	}

	lv := c.Signal.Levels
	if !(lv.Watch < lv.Alert && lv.Alert < lv.Critical && lv.Critical < lv.Extreme) {
		return fmt.Errorf("signal level thresholds must be strictly increasing: %+v", lv)
	}
	if lv.Watch <= 0 || lv.Extreme > 1 {
		return fmt.Errorf("signal level thresholds must lie in (0,1]: %+v", lv)
	}

	if len(c.Regime.VolTierBounds) != 5 {
		return fmt.Errorf("regime vol_tier_bounds requires 5 boundaries, got %d", len(c.Regime.VolTierBounds))
	}
	for i := 1; i < len(c.Regime.VolTierBounds); i++ {
		if c.Regime.VolTierBounds[i] <= c.Regime.VolTierBounds[i-1] {
			return fmt.Errorf("regime vol_tier_bounds must be ascending")
		}
	}

	return nil
}
