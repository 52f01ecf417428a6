package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// DefaultHFAPIURL is the hosted speech recognition model used when HF_API_URL
// is unset.
const DefaultHFAPIURL = "https://api-inference.huggingface.co/models/openai/whisper-tiny"

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Meter fleet.
	MeterCount    int
	MeterSeed     uint64
	LocationsFile string

	// Speech recognition.
	HFAPIURL     string
	HFAPIToken   string
	HFAPITimeout time.Duration
	ASRCacheSize int

	SpectralWorkers      int
	MaxUploadBytes       int64
	BroadcastSendTimeout time.Duration

	// Kafka ingest path, off unless KAFKA_ENABLED=true.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaSourceTopic   string
	KafkaSinkTopic     string
	KafkaGroupID       string
	BatchSize          int
	BatchFlushInterval time.Duration

	// Leak event bus, off when NATS_URL is empty.
	NATSURL     string
	NATSSubject string

	StatsReportSchedule string

	TracingExporter string
	OTLPEndpoint    string
	OTLPInsecure    bool
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	hfURL, err := parseHFAPIURL()
	if err != nil {
		return nil, err
	}

	hfTimeout, err := parseSeconds("HF_API_TIMEOUT", "45")
	if err != nil {
		return nil, err
	}

	broadcastTimeout, err := parseSeconds("BROADCAST_SEND_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	meterCount, err := parsePositiveInt("METER_COUNT", 1000)
	if err != nil {
		return nil, err
	}

	spectralWorkers, err := parsePositiveInt("SPECTRAL_WORKERS", runtime.GOMAXPROCS(0))
	if err != nil {
		return nil, err
	}

	maxUpload, err := parsePositiveInt("MAX_UPLOAD_BYTES", 16<<20)
	if err != nil {
		return nil, err
	}

	cacheSize, err := parseNonNegativeInt("ASR_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}

	seed, err := parseSeed()
	if err != nil {
		return nil, err
	}

	kafkaEnabled, err := parseBool("KAFKA_ENABLED", false)
	if err != nil {
		return nil, err
	}

	otlpInsecure, err := parseBool("OTEL_EXPORTER_OTLP_INSECURE", false)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8000"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		MeterCount:    meterCount,
		MeterSeed:     seed,
		LocationsFile: os.Getenv("LOCATIONS_FILE"),

		HFAPIURL:     hfURL,
		HFAPIToken:   os.Getenv("HF_API_TOKEN"),
		HFAPITimeout: hfTimeout,
		ASRCacheSize: cacheSize,

		SpectralWorkers:      spectralWorkers,
		MaxUploadBytes:       int64(maxUpload),
		BroadcastSendTimeout: broadcastTimeout,

		KafkaEnabled:       kafkaEnabled,
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "meter-audio-samples"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "meter-readings"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "leak-whisperer"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		NATSURL:     os.Getenv("NATS_URL"),
		NATSSubject: sharedcfg.EnvOrDefault("NATS_SUBJECT", "leaks.detected"),

		StatsReportSchedule: sharedcfg.EnvOrDefault("STATS_REPORT_SCHEDULE", "@every 1m"),

		TracingExporter: strings.ToLower(sharedcfg.EnvOrDefault("TRACING_EXPORTER", "none")),
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTLPInsecure:    otlpInsecure,
	}

	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if cfg.KafkaSourceTopic == "" {
			return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_SINK_TOPIC is required")
		}
	}
	switch cfg.TracingExporter {
	case "none", "stdout", "otlp":
	default:
		return nil, fmt.Errorf("invalid TRACING_EXPORTER %q: want none, stdout or otlp", cfg.TracingExporter)
	}

	return cfg, nil
}

// parseHFAPIURL falls back to the hosted model only when HF_API_URL is unset;
// an explicitly empty value is a configuration error.
func parseHFAPIURL() (string, error) {
	v, ok := os.LookupEnv("HF_API_URL")
	if !ok {
		return DefaultHFAPIURL, nil
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", errors.New("HF_API_URL is set but empty")
	}
	return v, nil
}

// parseSeconds accepts a Go duration ("45s") or a bare number of seconds ("45", "2.5").
func parseSeconds(name, def string) (time.Duration, error) {
	s := sharedcfg.EnvOrDefault(name, def)
	d, err := time.ParseDuration(s)
	if err != nil {
		secs, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0, fmt.Errorf("invalid %s %q", name, s)
		}
		d = time.Duration(secs * float64(time.Second))
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %q", name, s)
	}
	return d, nil
}

func parsePositiveInt(name string, def int) (int, error) {
	n, err := parseNonNegativeInt(name, def)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("%s must be positive", name)
	}
	return n, nil
}

func parseNonNegativeInt(name string, def int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", name, s)
	}
	return n, nil
}

func parseSeed() (uint64, error) {
	s := os.Getenv("METER_SEED")
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid METER_SEED %q", s)
	}
	return n, nil
}

func parseBool(name string, def bool) (bool, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q", name, s)
	}
	return b, nil
}
