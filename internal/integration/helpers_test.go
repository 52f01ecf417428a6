//go:build integration

package integration_test

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/furzing/leakWhisperer/internal/audio"
	"github.com/furzing/leakWhisperer/internal/broadcast"
	"github.com/furzing/leakWhisperer/internal/domain"
	"github.com/furzing/leakWhisperer/internal/observability"
	"github.com/furzing/leakWhisperer/internal/pipeline"
	"github.com/furzing/leakWhisperer/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker for the duration of the test and
// returns its bootstrap address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("leak-whisperer-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// hissTranscriber always hears a hiss, so the spectrum alone decides.
type hissTranscriber struct{}

func (hissTranscriber) Transcribe(context.Context, []byte) (string, error) {
	return "a steady hiss", nil
}

// toneWAV returns a base64 half-second mono tone at 16 kHz.
func toneWAV(t *testing.T, freq float64) string {
	t.Helper()
	samples := make([]float64, audio.TargetSampleRate/2)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/audio.TargetSampleRate)
	}
	raw, err := audio.EncodeWAV(audio.FloatToPCM16(samples), audio.TargetSampleRate, 1)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

// newProcessor builds an ingest path over a small seeded fleet.
func newProcessor(t *testing.T, meters int) (*pipeline.Processor, *store.Store) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2025, time.July, 1, 9, 0, 0, 0, time.UTC))
	fleet, err := domain.SeedMeters(meters, domain.DefaultLocations, rand.New(rand.NewPCG(1, 1)), clock.Now())
	require.NoError(t, err)
	st, err := store.New(fleet, clock)
	require.NoError(t, err)

	hub := broadcast.NewHub(discardLogger())
	t.Cleanup(hub.Close)
	return pipeline.NewProcessor(st, hissTranscriber{}, hub, discardLogger(), observability.NewMetricsForTesting()), st
}
