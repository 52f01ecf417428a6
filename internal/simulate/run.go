package simulate

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/furzing/leakWhisperer/internal/domain"
)

// positionJitter is the per-upload GPS wobble in degrees.
const positionJitter = 0.001

// Sender delivers one upload.
type Sender interface {
	Send(ctx context.Context, u Upload) error
}

// Options controls a simulation run.
type Options struct {
	Meters    int
	Locations []domain.Location
	// LeakProbability is the chance that any single upload carries a leak.
	LeakProbability float64
	// Interval is the pause between uploads.
	Interval time.Duration
	// Rounds is the number of passes over the fleet; 0 runs until cancelled.
	Rounds int
}

// Summary counts what a run sent.
type Summary struct {
	Sent   int
	Leaks  int
	Failed int
}

// Run cycles through the fleet, posting a synthesized clip for each meter.
// Failed uploads are logged and skipped so a restarting service does not stop
// the run.
func Run(ctx context.Context, opts Options, sender Sender, rng *rand.Rand, clock clockwork.Clock, logger *slog.Logger) Summary {
	synth := NewSynth(rng)
	var sum Summary

	for round := 0; opts.Rounds == 0 || round < opts.Rounds; round++ {
		for i := range opts.Meters {
			if ctx.Err() != nil {
				return sum
			}

			id := domain.MeterID(i)
			loc := opts.Locations[i%len(opts.Locations)]
			leak := rng.Float64() < opts.LeakProbability

			var samples []float64
			if leak {
				samples = synth.Leak()
			} else {
				samples = synth.Normal()
			}
			payload, err := EncodeBase64(samples)
			if err != nil {
				logger.Error("encode clip", "meter_id", id, "error", err)
				sum.Failed++
				continue
			}

			now := clock.Now()
			err = sender.Send(ctx, Upload{
				MeterID:     id,
				Lat:         loc.Lat + (rng.Float64()*2-1)*positionJitter,
				Lon:         loc.Lon + (rng.Float64()*2-1)*positionJitter,
				Timestamp:   float64(now.UnixNano()) / 1e9,
				AudioBase64: payload,
			})
			switch {
			case err != nil:
				sum.Failed++
				logger.Debug("upload failed", "meter_id", id, "error", err)
			case leak:
				sum.Sent++
				sum.Leaks++
				logger.Info("leak sample sent", "meter_id", id)
			default:
				sum.Sent++
			}

			if opts.Interval > 0 {
				select {
				case <-ctx.Done():
					return sum
				case <-clock.After(opts.Interval):
				}
			}
		}
		logger.Info("round complete", "round", round+1, "sent", sum.Sent, "leaks", sum.Leaks, "failed", sum.Failed)
	}
	return sum
}
