package session

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const DefaultIdleTimeout = 12 * time.Hour

// Sweeper evicts sessions that have been idle longer than idleTimeout.
// The process-wide session map otherwise grows without bound, one entry per
// user ever seen; sweeping is opt-in and off by default.
type Sweeper struct {
	store       *Store
	archiver    *Archiver
	idleTimeout time.Duration
	schedule    string

	cron    *cron.Cron
	entryID cron.EntryID
	running bool
}

// NewSweeper creates a sweeper. schedule is a cron expression; an empty
// schedule runs hourly. archiver may be nil, in which case evicted
// transcripts are discarded.
func NewSweeper(store *Store, archiver *Archiver, idleTimeout time.Duration, schedule string) *Sweeper {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	if schedule == "" {
		schedule = "@hourly"
	}

	return &Sweeper{
		store:       store,
		archiver:    archiver,
		idleTimeout: idleTimeout,
		schedule:    schedule,
		cron:        cron.New(),
	}
}

// Start begins the sweep schedule.
func (s *Sweeper) Start() error {
	if s.running {
		return fmt.Errorf("sweeper is already running")
	}

	id, err := s.cron.AddFunc(s.schedule, func() {
		if n := s.Sweep(); n > 0 {
			log.Info().Int("evicted", n).Str("at", stamp()).Msg("Idle sessions evicted")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}

	s.entryID = id
	s.cron.Start()
	s.running = true

	log.Info().
		Dur("idle_timeout", s.idleTimeout).
		Str("schedule", s.schedule).
		Msg("Session sweeper started")

	return nil
}

// Stop halts the sweep schedule.
func (s *Sweeper) Stop() error {
	if !s.running {
		return fmt.Errorf("sweeper is not running")
	}

	s.cron.Remove(s.entryID)
	s.cron.Stop()
	s.running = false

	log.Info().Msg("Session sweeper stopped")

	return nil
}

// stamp correlates the log lines of one eviction batch.
func stamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Sweep evicts all sessions idle past the timeout and returns how many were
// removed. Each candidate is re-checked under its guard so a message that
// arrives mid-sweep keeps its session.
func (s *Sweeper) Sweep() int {
	cutoff := time.Now().Add(-s.idleTimeout)
	evicted := 0

	for _, userID := range s.store.Users() {
		guard := s.store.Guard(userID)
		guard.Lock()

		last, ok := s.store.LastActive(userID)
		if !ok || last.After(cutoff) {
			guard.Unlock()
			continue
		}

		turns := s.store.Evict(userID)
		guard.Unlock()

		if s.archiver != nil {
			if err := s.archiver.Archive(userID, turns); err != nil {
				log.Warn().Err(err).Int64("user_id", userID).Msg("Failed to archive evicted session")
			}
		}
		evicted++
	}

	return evicted
}
