package scanner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext(t *testing.T) {
	tests := []struct {
		state   NavState
		outcome NavOutcome
		attempt int
		want    NavState
	}{
		{StateIdle, OutcomeStart, 0, StateNavigating},
		{StateNavigating, OutcomeSuccess, 1, StateLoaded},
		{StateNavigating, OutcomeError, 1, StateRetrying},
		{StateNavigating, OutcomeError, 2, StateRetrying},
		{StateNavigating, OutcomeError, 3, StateFailed},
		{StateRetrying, OutcomeBackoffDone, 2, StateNavigating},
		{StateLoaded, OutcomeError, 1, StateLoaded},
		{StateFailed, OutcomeStart, 3, StateFailed},
		{StateIdle, OutcomeSuccess, 0, StateIdle},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Next(tt.state, tt.outcome, tt.attempt, 3), "%s + %d @%d", tt.state, tt.outcome, tt.attempt)
	}
}

func TestNavigator_RetriesWithPlan(t *testing.T) {
	boom := errors.New("net::ERR_CONNECTION_RESET")
	s := &fakeSession{navErrs: []error{boom, boom, nil}}
	clock := newFakeClock()

	var states []NavState
	n := &navigator{plan: DefaultNavPlan(), clock: clock, logger: quietLogger(), onState: func(st NavState, _ int) {
		states = append(states, st)
	}}

	attempts, err := n.run(context.Background(), s, "https://moh.gov.sa")
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	require.Len(t, s.navCalls, 3)
	assert.Equal(t, navCall{"https://moh.gov.sa", 20 * time.Second, WaitDOMParsed}, s.navCalls[0])
	assert.Equal(t, navCall{"https://moh.gov.sa", 30 * time.Second, WaitLoadComplete}, s.navCalls[1])
	assert.Equal(t, navCall{"https://moh.gov.sa", 45 * time.Second, WaitNetworkSettled}, s.navCalls[2])

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.Sleeps())
	assert.Equal(t, []NavState{
		StateNavigating, StateRetrying, StateNavigating, StateRetrying, StateNavigating, StateLoaded,
	}, states)
}

func TestNavigator_Exhausted(t *testing.T) {
	boom := errors.New("timeout")
	s := &fakeSession{navErrs: []error{boom}}
	n := &navigator{plan: DefaultNavPlan(), clock: newFakeClock(), logger: quietLogger()}

	attempts, err := n.run(context.Background(), s, "https://a.gov.sa")
	assert.Equal(t, 3, attempts)

	var navErr *NavigationError
	require.ErrorAs(t, err, &navErr)
	assert.Equal(t, 3, navErr.Attempts)
	assert.ErrorIs(t, err, boom)
}

func TestNavigator_FirstAttemptSucceeds(t *testing.T) {
	s := &fakeSession{}
	clock := newFakeClock()
	n := &navigator{plan: DefaultNavPlan(), clock: clock, logger: quietLogger()}

	attempts, err := n.run(context.Background(), s, "https://a.gov.sa")
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, clock.Sleeps())
}

func TestNavigator_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &fakeSession{navErrs: []error{errors.New("aborted")}}
	n := &navigator{plan: DefaultNavPlan(), clock: newFakeClock(), logger: quietLogger()}

	_, err := n.run(ctx, s, "https://a.gov.sa")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, s.navCalls, 1)
}

func TestNavigator_EmptyPlan(t *testing.T) {
	n := &navigator{clock: newFakeClock(), logger: quietLogger()}
	_, err := n.run(context.Background(), &fakeSession{}, "https://a.gov.sa")
	var navErr *NavigationError
	assert.ErrorAs(t, err, &navErr)
}
