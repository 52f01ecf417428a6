package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/furzing/leakWhisperer/internal/domain"
)

const defaultBroker = "localhost:9092"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 1000, cfg.MeterCount)
	assert.Zero(t, cfg.MeterSeed)
	assert.Empty(t, cfg.LocationsFile)
	assert.Equal(t, DefaultHFAPIURL, cfg.HFAPIURL)
	assert.Empty(t, cfg.HFAPIToken)
	assert.Equal(t, 45*time.Second, cfg.HFAPITimeout)
	assert.Equal(t, 1000, cfg.ASRCacheSize)
	assert.Equal(t, runtime.GOMAXPROCS(0), cfg.SpectralWorkers)
	assert.Equal(t, int64(16<<20), cfg.MaxUploadBytes)
	assert.Equal(t, 5*time.Second, cfg.BroadcastSendTimeout)
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{defaultBroker}, cfg.KafkaBrokers)
	assert.Equal(t, "meter-audio-samples", cfg.KafkaSourceTopic)
	assert.Equal(t, "meter-readings", cfg.KafkaSinkTopic)
	assert.Equal(t, "leak-whisperer", cfg.KafkaGroupID)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.BatchFlushInterval)
	assert.Empty(t, cfg.NATSURL)
	assert.Equal(t, "leaks.detected", cfg.NATSSubject)
	assert.Equal(t, "@every 1m", cfg.StatsReportSchedule)
	assert.Equal(t, "none", cfg.TracingExporter)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("METER_COUNT", "25")
	t.Setenv("METER_SEED", "42")
	t.Setenv("LOCATIONS_FILE", "/etc/leak/locations.yaml")
	t.Setenv("HF_API_URL", "http://asr.local/transcribe")
	t.Setenv("HF_API_TOKEN", "hf_test")
	t.Setenv("HF_API_TIMEOUT", "2.5")
	t.Setenv("ASR_CACHE_SIZE", "0")
	t.Setenv("SPECTRAL_WORKERS", "3")
	t.Setenv("MAX_UPLOAD_BYTES", "1024")
	t.Setenv("BROADCAST_SEND_TIMEOUT", "250ms")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_SOURCE_TOPIC", "custom-source")
	t.Setenv("KAFKA_SINK_TOPIC", "custom-sink")
	t.Setenv("KAFKA_GROUP_ID", "custom-group")
	t.Setenv("BATCH_SIZE", "100")
	t.Setenv("BATCH_FLUSH_INTERVAL", "1s")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("NATS_SUBJECT", "custom.leaks")
	t.Setenv("STATS_REPORT_SCHEDULE", "*/5 * * * *")
	t.Setenv("TRACING_EXPORTER", "OTLP")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 25, cfg.MeterCount)
	assert.Equal(t, uint64(42), cfg.MeterSeed)
	assert.Equal(t, "/etc/leak/locations.yaml", cfg.LocationsFile)
	assert.Equal(t, "http://asr.local/transcribe", cfg.HFAPIURL)
	assert.Equal(t, "hf_test", cfg.HFAPIToken)
	assert.Equal(t, 2500*time.Millisecond, cfg.HFAPITimeout)
	assert.Zero(t, cfg.ASRCacheSize)
	assert.Equal(t, 3, cfg.SpectralWorkers)
	assert.Equal(t, int64(1024), cfg.MaxUploadBytes)
	assert.Equal(t, 250*time.Millisecond, cfg.BroadcastSendTimeout)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-source", cfg.KafkaSourceTopic)
	assert.Equal(t, "custom-sink", cfg.KafkaSinkTopic)
	assert.Equal(t, "custom-group", cfg.KafkaGroupID)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 1*time.Second, cfg.BatchFlushInterval)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, "custom.leaks", cfg.NATSSubject)
	assert.Equal(t, "*/5 * * * *", cfg.StatsReportSchedule)
	assert.Equal(t, "otlp", cfg.TracingExporter)
	assert.Equal(t, "collector:4317", cfg.OTLPEndpoint)
	assert.True(t, cfg.OTLPInsecure)
}

func TestLoad_HFAPITimeoutDuration(t *testing.T) {
	t.Setenv("HF_API_TIMEOUT", "1m")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.HFAPITimeout)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		env   string
		value string
	}{
		{"SHUTDOWN_TIMEOUT", "not-a-duration"},
		{"SHUTDOWN_TIMEOUT", "-1s"},
		{"BATCH_SIZE", "0"},
		{"BATCH_SIZE", "9999"},
		{"BATCH_FLUSH_INTERVAL", "not-a-duration"},
		{"HF_API_URL", ""},
		{"HF_API_URL", "   "},
		{"HF_API_TIMEOUT", "soon"},
		{"HF_API_TIMEOUT", "0"},
		{"BROADCAST_SEND_TIMEOUT", "-5s"},
		{"METER_COUNT", "0"},
		{"METER_COUNT", "lots"},
		{"METER_SEED", "-1"},
		{"SPECTRAL_WORKERS", "0"},
		{"MAX_UPLOAD_BYTES", "-1"},
		{"ASR_CACHE_SIZE", "-1"},
		{"KAFKA_ENABLED", "maybe"},
		{"OTEL_EXPORTER_OTLP_INSECURE", "sometimes"},
		{"TRACING_EXPORTER", "jaeger"},
	}

	for _, tt := range tests {
		t.Run(tt.env+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.env)
		})
	}
}

func TestLoad_KafkaDisabledSkipsKafkaValidation(t *testing.T) {
	t.Setenv("KAFKA_ENABLED", "false")
	t.Setenv("KAFKA_SOURCE_TOPIC", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.KafkaEnabled)
}

func TestLoadLocations(t *testing.T) {
	t.Run("default pool", func(t *testing.T) {
		locs, err := LoadLocations("")
		require.NoError(t, err)
		assert.Equal(t, domain.DefaultLocations, locs)
	})

	t.Run("from file", func(t *testing.T) {
		path := writeFile(t, `
locations:
  - lat: 31.95
    lon: 35.91
    street: "Rainbow Street"
  - lat: 32.07
    lon: 36.09
    street: "Zarqa Main"
`)
		locs, err := LoadLocations(path)
		require.NoError(t, err)
		assert.Equal(t, []domain.Location{
			{Lat: 31.95, Lon: 35.91, Street: "Rainbow Street"},
			{Lat: 32.07, Lon: 36.09, Street: "Zarqa Main"},
		}, locs)
	})

	t.Run("empty file", func(t *testing.T) {
		_, err := LoadLocations(writeFile(t, "locations: []\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no locations")
	})

	t.Run("out of range", func(t *testing.T) {
		_, err := LoadLocations(writeFile(t, "locations:\n  - lat: 95\n    lon: 10\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "out of range")
	})

	t.Run("bad yaml", func(t *testing.T) {
		_, err := LoadLocations(writeFile(t, "locations: [\n"))
		require.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadLocations(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "locations.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
