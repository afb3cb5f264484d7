package kafkax

// Config configures the decode pipeline: worker count, ring capacities, and
// watermark ratios. The zero value is not ready to use; call DefaultConfig
// and override fields as needed.
type Config struct {
	// DecodeThreads is the number of decode worker goroutines (N). Must be
	// >= 1.
	DecodeThreads int

	// RawQueueSize and EvtQueueSize are the per-worker ring capacities.
	// Power-of-two values avoid the modulo in the ring's index math.
	RawQueueSize int
	EvtQueueSize int

	// HighWatermarkRatio/LowWatermarkRatio set the aggregate raw-queue
	// occupancy thresholds that pause/resume broker partitions.
	HighWatermarkRatio float64
	LowWatermarkRatio  float64

	// Sharder selects which worker a freshly-polled message is routed to.
	// Defaults to RoundRobinSharder. See sharding.go — this resolves the
	// spec's Open Question on per-partition ordering.
	Sharder Sharder
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		DecodeThreads:      4,
		RawQueueSize:       8192,
		EvtQueueSize:       8192,
		HighWatermarkRatio: 0.9,
		LowWatermarkRatio:  0.5,
		Sharder:            RoundRobinSharder(),
	}
}

func (c Config) validate() error {
	if c.DecodeThreads < 1 {
		return errConfigf("DecodeThreads must be >= 1, got %d", c.DecodeThreads)
	}
	if c.RawQueueSize <= 0 {
		return errConfigf("RawQueueSize must be > 0, got %d", c.RawQueueSize)
	}
	if c.EvtQueueSize <= 0 {
		return errConfigf("EvtQueueSize must be > 0, got %d", c.EvtQueueSize)
	}
	if c.HighWatermarkRatio <= 0 || c.HighWatermarkRatio > 1 {
		return errConfigf("HighWatermarkRatio must be in (0, 1], got %f", c.HighWatermarkRatio)
	}
	if c.LowWatermarkRatio < 0 || c.LowWatermarkRatio >= c.HighWatermarkRatio {
		return errConfigf("LowWatermarkRatio must be in [0, HighWatermarkRatio), got %f", c.LowWatermarkRatio)
	}
	return nil
}

func (c Config) sharder() Sharder {
	if c.Sharder != nil {
		return c.Sharder
	}
	return RoundRobinSharder()
}

// KafkaConfig carries the broker-client settings forwarded to
// confluent-kafka-go.
type KafkaConfig struct {
	BootstrapServers string
	GroupID          string
	EnableAutoCommit bool
	AutoOffsetReset  string
	Extra            map[string]string
}

// DefaultKafkaConfig returns the spec's documented defaults.
func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		EnableAutoCommit: true,
		AutoOffsetReset:  "earliest",
	}
}
