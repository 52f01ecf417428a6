package pipeline_test

import (
	"context"
	"encoding/base64"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/furzing/leakWhisperer/internal/audio"
	"github.com/furzing/leakWhisperer/internal/broadcast"
	"github.com/furzing/leakWhisperer/internal/domain"
	"github.com/furzing/leakWhisperer/internal/pipeline"
	"github.com/furzing/leakWhisperer/internal/store"
)

type fakeTranscriber struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
}

func (f *fakeTranscriber) Transcribe(_ context.Context, wav []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(wav) == 0 {
		return "", errors.New("empty audio")
	}
	return f.text, f.err
}

type recordingSubscriber struct {
	id     string
	mu     sync.Mutex
	events []domain.LeakEvent
}

func (r *recordingSubscriber) ID() string { return r.id }
func (r *recordingSubscriber) Close() error {
	return nil
}

func (r *recordingSubscriber) Send(_ context.Context, e domain.LeakEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSubscriber) received() []domain.LeakEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.LeakEvent(nil), r.events...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.LeakEvent
	err    error
}

func (r *recordingPublisher) Name() string { return "recording" }

func (r *recordingPublisher) Publish(_ context.Context, e domain.LeakEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func toneWAV(t *testing.T, freq float64) string {
	t.Helper()
	samples := make([]float64, audio.TargetSampleRate)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/audio.TargetSampleRate)
	}
	raw, err := audio.EncodeWAV(audio.FloatToPCM16(samples), audio.TargetSampleRate, 1)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

type fixture struct {
	proc  *pipeline.Processor
	store *store.Store
	hub   *broadcast.Hub
	tr    *fakeTranscriber
	clock *clockwork.FakeClock
}

func newFixture(t *testing.T, opts ...pipeline.ProcessorOption) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2025, time.July, 1, 9, 0, 0, 0, time.UTC))
	meters, err := domain.SeedMeters(5, domain.DefaultLocations, rand.New(rand.NewPCG(9, 9)), clock.Now())
	require.NoError(t, err)
	st, err := store.New(meters, clock)
	require.NoError(t, err)

	hub := broadcast.NewHub(discardLogger())
	tr := &fakeTranscriber{}
	proc := pipeline.NewProcessor(st, tr, hub, discardLogger(), newTestMetrics(), opts...)
	return &fixture{proc: proc, store: st, hub: hub, tr: tr, clock: clock}
}

func TestProcessor_Ingest_LeakEndToEnd(t *testing.T) {
	pub := &recordingPublisher{}
	f := newFixture(t, pipeline.WithPublishers(pub), pipeline.WithSpectralWorkers(2))
	f.tr.text = "I hear a hiss near the pipe"
	sub := &recordingSubscriber{id: "dashboard"}
	f.hub.Register(sub)
	f.clock.Advance(time.Minute)

	payload := toneWAV(t, 1000)
	res, err := f.proc.Ingest(context.Background(), domain.Sample{MeterID: "meter_0002", AudioBase64: payload}, pipeline.SourceHTTP)
	require.NoError(t, err)

	assert.True(t, res.IsLeak)
	assert.Equal(t, domain.SeverityCritical, res.Severity)
	assert.Equal(t, domain.StatusLeak, res.Meter.Status)
	assert.InDelta(t, 0.92, res.Meter.Confidence, 1e-9)
	assert.Equal(t, 2052, res.Meter.FlowRateLPH)
	assert.Equal(t, "I hear a hiss near the pipe", res.Meter.Transcript)
	require.NotNil(t, res.Meter.AudioBase64)
	assert.Equal(t, payload, *res.Meter.AudioBase64)
	assert.Equal(t, f.clock.Now(), res.Meter.LastUpdate)

	stored, ok := f.store.Get("meter_0002")
	require.True(t, ok)
	assert.Equal(t, res.Meter, stored)

	want := domain.NewLeakEvent(stored)
	assert.Equal(t, []domain.LeakEvent{want}, sub.received())
	assert.Equal(t, []domain.LeakEvent{want}, pub.events)
}

func TestProcessor_Ingest_NormalSample(t *testing.T) {
	f := newFixture(t)
	sub := &recordingSubscriber{id: "dashboard"}
	f.hub.Register(sub)

	res, err := f.proc.Ingest(context.Background(), domain.Sample{MeterID: "meter_0001", AudioBase64: toneWAV(t, 60)}, pipeline.SourceHTTP)
	require.NoError(t, err)

	assert.False(t, res.IsLeak)
	assert.Equal(t, domain.StatusNormal, res.Meter.Status)
	assert.Zero(t, res.Meter.FlowRateLPH)
	assert.Equal(t, domain.SeverityNormal, res.Severity)
	assert.Zero(t, res.Meter.Confidence)
	assert.Empty(t, sub.received(), "normal samples are not broadcast")
}

func TestProcessor_Ingest_PublisherFailureDoesNotFailIngest(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("nats down")}
	f := newFixture(t, pipeline.WithPublishers(pub))
	f.tr.text = "water leak"

	res, err := f.proc.Ingest(context.Background(), domain.Sample{MeterID: "meter_0000", AudioBase64: toneWAV(t, 2000)}, pipeline.SourceKafka)
	require.NoError(t, err)
	assert.True(t, res.IsLeak)
	assert.Len(t, pub.events, 1)
}

func TestProcessor_Ingest_Errors(t *testing.T) {
	tests := []struct {
		name      string
		meterID   string
		payload   func(t *testing.T) string
		asrErr    error
		kind      domain.Kind
		asrCalled bool
	}{
		{
			name:    "unknown meter",
			meterID: "meter_9999",
			payload: func(t *testing.T) string { return toneWAV(t, 1000) },
			kind:    domain.KindNotFound,
		},
		{
			name:    "bad base64",
			meterID: "meter_0001",
			payload: func(*testing.T) string { return "%%%" },
			kind:    domain.KindDecode,
		},
		{
			name:    "not a wav",
			meterID: "meter_0001",
			payload: func(*testing.T) string { return base64.StdEncoding.EncodeToString([]byte("plain text")) },
			kind:    domain.KindAudioFormat,
		},
		{
			name:      "asr warming up",
			meterID:   "meter_0001",
			payload:   func(t *testing.T) string { return toneWAV(t, 1000) },
			asrErr:    domain.NewError(domain.KindServiceWarmingUp, "loading", nil),
			kind:      domain.KindServiceWarmingUp,
			asrCalled: true,
		},
		{
			name:      "asr unauthorized",
			meterID:   "meter_0001",
			payload:   func(t *testing.T) string { return toneWAV(t, 1000) },
			asrErr:    domain.NewError(domain.KindUnauthorized, "bad token", nil),
			kind:      domain.KindUnauthorized,
			asrCalled: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.tr.err = tt.asrErr
			sub := &recordingSubscriber{id: "dashboard"}
			f.hub.Register(sub)
			before := f.store.All()

			_, err := f.proc.Ingest(context.Background(), domain.Sample{MeterID: tt.meterID, AudioBase64: tt.payload(t)}, pipeline.SourceHTTP)
			require.Error(t, err)
			assert.Equal(t, tt.kind, domain.KindOf(err))
			assert.Equal(t, tt.asrCalled, f.tr.calls > 0)
			assert.Equal(t, before, f.store.All(), "no meter mutation on failure")
			assert.Empty(t, sub.received())
		})
	}
}

func TestProcessor_Ingest_ConcurrentSameMeter(t *testing.T) {
	f := newFixture(t, pipeline.WithSpectralWorkers(2))
	f.tr.text = "pipe"
	leak := toneWAV(t, 1000)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.proc.Ingest(context.Background(), domain.Sample{MeterID: "meter_0003", AudioBase64: leak}, pipeline.SourceHTTP)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	m, _ := f.store.Get("meter_0003")
	assert.Equal(t, domain.StatusLeak, m.Status)
	assert.Equal(t, domain.ComputeSeverity(m.FlowRateLPH), m.Severity)
	assert.Equal(t, 16, f.tr.calls)
}

func TestProcessor_CheckReadiness(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.proc.CheckReadiness(context.Background()))

	failing := newFixture(t, pipeline.WithReadinessCheck("nats", func(context.Context) error {
		return errors.New("disconnected")
	}))
	err := failing.proc.CheckReadiness(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nats: disconnected")
}
