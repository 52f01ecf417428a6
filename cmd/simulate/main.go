// Command simulate plays a fleet of acoustic meter sensors against a running
// LeakWhisperer service, posting a synthesized clip per meter per round.
//
// Usage:
//
//	go run ./cmd/simulate -url http://localhost:8000 -meters 1000 -interval 3ms
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/furzing/leakWhisperer/internal/config"
	"github.com/furzing/leakWhisperer/internal/domain"
	"github.com/furzing/leakWhisperer/internal/simulate"
)

func main() {
	if err := run(); err != nil {
		slog.Error("simulate failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	url := flag.String("url", "http://localhost:8000", "base URL of the service")
	meters := flag.Int("meters", domain.DefaultMeterCount, "number of meters to simulate")
	leakProb := flag.Float64("leak-prob", 0.009, "probability that an upload carries a leak")
	interval := flag.Duration("interval", 3*time.Millisecond, "pause between uploads")
	rounds := flag.Int("rounds", 0, "passes over the fleet, 0 runs until interrupted")
	seed := flag.Uint64("seed", 0, "random seed, 0 picks one from the clock")
	locations := flag.String("locations", "", "YAML location pool, empty uses the built-in pool")
	timeout := flag.Duration("timeout", 2*time.Second, "per-upload HTTP timeout")
	verbose := flag.Bool("v", false, "log every failed upload")
	flag.Parse()

	if *meters <= 0 {
		return fmt.Errorf("-meters must be positive, got %d", *meters)
	}
	if *leakProb < 0 || *leakProb > 1 {
		return fmt.Errorf("-leak-prob must be within [0, 1], got %v", *leakProb)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	pool, err := config.LoadLocations(*locations)
	if err != nil {
		return err
	}

	clock := clockwork.NewRealClock()
	s := *seed
	if s == 0 {
		s = uint64(clock.Now().UnixNano())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("simulator started", "url", *url, "meters", *meters, "leak_prob", *leakProb, "seed", s)
	sum := simulate.Run(ctx, simulate.Options{
		Meters:          *meters,
		Locations:       pool,
		LeakProbability: *leakProb,
		Interval:        *interval,
		Rounds:          *rounds,
	}, simulate.NewClient(*url, *timeout), rand.New(rand.NewPCG(s, s>>1)), clock, logger)

	logger.Info("simulator stopped", "sent", sum.Sent, "leaks", sum.Leaks, "failed", sum.Failed)
	return nil
}
