package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// NavState is a node of the navigation retry state machine.
type NavState string

const (
	StateIdle       NavState = "idle"
	StateNavigating NavState = "navigating"
	StateRetrying   NavState = "retrying"
	StateLoaded     NavState = "loaded"
	StateFailed     NavState = "failed"
)

// NavOutcome is what happened to the attempt in flight.
type NavOutcome int

const (
	OutcomeStart NavOutcome = iota
	OutcomeSuccess
	OutcomeError
	OutcomeBackoffDone
)

// Next is the pure transition function of the navigation state machine.
// attempt is the 1-based number of the attempt that produced outcome.
func Next(state NavState, outcome NavOutcome, attempt, maxAttempts int) NavState {
	switch state {
	case StateIdle:
		if outcome == OutcomeStart {
			return StateNavigating
		}
	case StateNavigating:
		switch outcome {
		case OutcomeSuccess:
			return StateLoaded
		case OutcomeError:
			if attempt < maxAttempts {
				return StateRetrying
			}
			return StateFailed
		}
	case StateRetrying:
		if outcome == OutcomeBackoffDone {
			return StateNavigating
		}
	}
	return state
}

// NavAttempt is one step of a NavPlan.
type NavAttempt struct {
	Timeout time.Duration
	Wait    WaitCondition
}

// NavPlan is the ordered attempts and the backoff unit between them.
type NavPlan struct {
	Attempts []NavAttempt
	// Backoff is multiplied by the failed attempt number.
	Backoff time.Duration
}

// DefaultNavPlan waits longer, and for a later load milestone, on each retry.
func DefaultNavPlan() NavPlan {
	return NavPlan{
		Attempts: []NavAttempt{
			{Timeout: 20 * time.Second, Wait: WaitDOMParsed},
			{Timeout: 30 * time.Second, Wait: WaitLoadComplete},
			{Timeout: 45 * time.Second, Wait: WaitNetworkSettled},
		},
		Backoff: time.Second,
	}
}

// Clock abstracts time for the aggregator timestamp and retry backoff.
type Clock interface {
	Now() time.Time
	SleepContext(ctx context.Context, d time.Duration) error
}

// RealClock uses the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// navigator drives a Session through a NavPlan.
type navigator struct {
	plan   NavPlan
	clock  Clock
	logger *slog.Logger
	// onState observes every transition, mainly for tests and progress.
	onState func(NavState, int)
}

// run returns the number of attempts made and a *NavigationError when every
// attempt failed. A cancelled ctx stops immediately with ctx.Err().
func (n *navigator) run(ctx context.Context, s Session, url string) (int, error) {
	maxAttempts := len(n.plan.Attempts)
	if maxAttempts == 0 {
		return 0, &NavigationError{URL: url, Err: fmt.Errorf("empty navigation plan")}
	}

	state := Next(StateIdle, OutcomeStart, 0, maxAttempts)
	attempt := 1
	var lastErr error
	for {
		n.notify(state, attempt)
		switch state {
		case StateNavigating:
			step := n.plan.Attempts[attempt-1]
			err := s.Navigate(ctx, url, step.Timeout, step.Wait)
			if ctx.Err() != nil {
				return attempt, ctx.Err()
			}
			if err != nil {
				lastErr = err
				n.logger.Warn("navigation attempt failed",
					"url", url, "attempt", attempt, "wait", step.Wait, "timeout", step.Timeout, "error", err)
				state = Next(state, OutcomeError, attempt, maxAttempts)
				continue
			}
			state = Next(state, OutcomeSuccess, attempt, maxAttempts)

		case StateRetrying:
			if err := n.clock.SleepContext(ctx, n.plan.Backoff*time.Duration(attempt)); err != nil {
				return attempt, err
			}
			attempt++
			state = Next(state, OutcomeBackoffDone, attempt, maxAttempts)

		case StateLoaded:
			return attempt, nil

		case StateFailed:
			return attempt, &NavigationError{URL: url, Attempts: attempt, Err: lastErr}

		default:
			return attempt, fmt.Errorf("navigation stuck in state %s", state)
		}
	}
}

func (n *navigator) notify(state NavState, attempt int) {
	if n.onState != nil {
		n.onState(state, attempt)
	}
}
