// Package maintenance implements the background jobs that keep the graph
// healthy without ever blocking a writer (§4.9): decay, gap detection,
// subscriptions, self-reported health metrics and the trigger system.
// Every job reads from a shard's current snapshot and writes back, if at
// all, through the shard's ordinary write plane — none of them hold a
// lock a concurrent learn_* call could contend on.
package maintenance

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/synapsedb/synapse/pkg/shard"
	"github.com/synapsedb/synapse/pkg/telemetry"
)

// Options configures the scheduler's job intervals and individual on/off
// switches (§4.9 "All jobs are individually switchable").
type Options struct {
	DecayInterval   time.Duration
	DecayHalfLife   time.Duration
	GapInterval     time.Duration
	GapSimilarity   float32
	HealthInterval  time.Duration
	TriggerInterval time.Duration
	SubscribeBuffer int

	EnableDecay         bool
	EnableGapDetection  bool
	EnableHealthMetrics bool
	EnableTriggers      bool
	EnableSubscriptions bool
}

// DefaultOptions returns sensible intervals for a production deployment.
func DefaultOptions() Options {
	return Options{
		DecayInterval: time.Minute, DecayHalfLife: 72 * time.Hour,
		GapInterval: 5 * time.Minute, GapSimilarity: 0.92,
		HealthInterval: 30 * time.Second, TriggerInterval: 2 * time.Second,
		SubscribeBuffer: 256,
		EnableDecay: true, EnableGapDetection: true, EnableHealthMetrics: true,
		EnableTriggers: true, EnableSubscriptions: true,
	}
}

// Scheduler runs every enabled job on its own ticker across one or more
// shards. A sharded deployment gets one Scheduler total, not one per
// shard, so cross-shard jobs like gap detection over the cluster's
// concept population see every shard in the same pass.
type Scheduler struct {
	shards  []*shard.Shard
	opts    Options
	log     zerolog.Logger
	metrics *telemetry.Metrics
	hub     *Hub

	triggerState *triggerState
}

// New builds a scheduler over shards. If opts.EnableSubscriptions is
// true, the returned scheduler's Hub is ready for callers to Subscribe
// before Start is called.
func New(shards []*shard.Shard, opts Options, log zerolog.Logger, metrics *telemetry.Metrics) *Scheduler {
	return &Scheduler{
		shards: shards, opts: opts,
		log:          log.With().Str("component", "maintenance").Logger(),
		metrics:      metrics,
		hub:          NewHub(opts.SubscribeBuffer),
		triggerState: newTriggerState(),
	}
}

// Hub exposes the subscription fan-out so callers can Subscribe before or
// after Start.
func (s *Scheduler) Hub() *Hub { return s.hub }

// Start launches every enabled job as its own long-lived task, returning
// immediately; jobs stop when ctx is cancelled. Autonomy as a whole is
// controlled by the caller simply not calling Start (§6.2 AUTONOMY=false).
func (s *Scheduler) Start(ctx context.Context) {
	if s.opts.EnableDecay {
		go s.loop(ctx, s.opts.DecayInterval, s.runDecay)
	}
	if s.opts.EnableGapDetection {
		go s.loop(ctx, s.opts.GapInterval, s.runGapDetection)
	}
	if s.opts.EnableHealthMetrics {
		go s.loop(ctx, s.opts.HealthInterval, s.runHealth)
	}
	if s.opts.EnableTriggers {
		go s.loop(ctx, s.opts.TriggerInterval, s.runTriggers)
	}
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, job func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job(ctx)
		}
	}
}
