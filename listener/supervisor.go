package listener

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// SupervisorConfig bounds the restart policy
type SupervisorConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Supervisor restarts a failed listener with bounded exponential backoff.
// Consecutive failures beyond the attempt ceiling are fatal; the process
// must then be restarted externally.
type Supervisor struct {
	listener *Listener
	cfg      SupervisorConfig
	sleep    func(time.Duration)
}

// NewSupervisor creates a supervisor for the given listener
func NewSupervisor(l *Listener, cfg SupervisorConfig) *Supervisor {
	return &Supervisor{
		listener: l,
		cfg:      cfg,
		sleep:    time.Sleep,
	}
}

// Run starts the listener and keeps it running until the context is
// cancelled or the failure ceiling is reached
func (s *Supervisor) Run(ctx context.Context) error {
	failures := 0

	for {
		err := s.listener.Start(ctx)
		if err == nil {
			failures = 0

			select {
			case <-ctx.Done():
				s.listener.Stop()
				return ctx.Err()
			case subErr := <-s.listener.Failed():
				s.listener.Stop()
				err = subErr
			}
		}

		failures++
		s.listener.recordReconnectAttempt()

		if failures > s.cfg.MaxAttempts {
			return fmt.Errorf("listener gave up after %d consecutive failures: %w", failures-1, err)
		}

		delay := s.backoff(failures)
		log.WithFields(log.Fields{
			"attempt": failures,
			"delay":   delay,
			"error":   err,
		}).Warn("Listener failed, restarting after backoff")

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			s.sleep(delay)
		}
	}
}

// backoff returns min(base * 2^(attempt-1), max)
func (s *Supervisor) backoff(attempt int) time.Duration {
	delay := s.cfg.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= s.cfg.MaxDelay {
			return s.cfg.MaxDelay
		}
	}
	if delay > s.cfg.MaxDelay {
		return s.cfg.MaxDelay
	}
	return delay
}
