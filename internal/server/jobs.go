package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

const (
	jobTimeout = 10 * time.Second

	limiterCleanupEvery = 5 * time.Minute
	limiterMaxIdle      = 10 * time.Minute
)

// newScheduler registers the periodic jobs. Each runs in singleton mode so
// a slow run is never overlapped by the next tick.
func (s *Server) newScheduler() (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	jobs := []struct {
		name  string
		every time.Duration
		run   func()
	}{
		{"matchmaking-sweep", s.cfg.SweepInterval, s.sweep},
		{"ticket-eviction", evictionInterval(s.cfg.TicketTTL), s.evictStale},
		{"rate-limiter-cleanup", limiterCleanupEvery, s.cleanupLimiters},
	}
	for _, j := range jobs {
		if _, err := sched.NewJob(
			gocron.DurationJob(j.every),
			gocron.NewTask(j.run),
			gocron.WithName(j.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			_ = sched.Shutdown()
			return nil, err
		}
	}
	return sched, nil
}

// evictionInterval checks for stale tickets a few times per TTL, but no
// more than once a second.
func evictionInterval(ttl time.Duration) time.Duration {
	return max(ttl/5, time.Second)
}

func (s *Server) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	created, err := s.match.Sweep(ctx)
	if err != nil {
		s.logger.Error("matchmaking sweep failed", slog.String("error", err.Error()))
		return
	}
	if created > 0 {
		s.logger.Debug("matchmaking sweep", slog.Int("gamesCreated", created))
	}
}

func (s *Server) evictStale() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n, err := s.match.EvictStale(ctx)
	if err != nil {
		s.logger.Error("ticket eviction failed", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		s.logger.Info("stale tickets evicted", slog.Int("count", n))
	}
}

func (s *Server) cleanupLimiters() {
	if n := s.limiter.Cleanup(limiterMaxIdle); n > 0 {
		s.logger.Debug("rate limiters released", slog.Int("count", n))
	}
}
