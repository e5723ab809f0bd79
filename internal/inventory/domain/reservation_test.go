package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestNewReservation(t *testing.T) {
	res := NewReservation(7, "ORD-1", "P1", 30, 15*time.Minute, base)

	assert.Equal(t, ReservationActive, res.Status)
	assert.Equal(t, base.Add(15*time.Minute), res.ExpiresAt)
	assert.True(t, res.IsActive(base))
	assert.False(t, res.IsExpired(base))
}

func TestIsExpiredIgnoresStatus(t *testing.T) {
	res := NewReservation(7, "ORD-1", "P1", 1, 15*time.Minute, base)
	require.NoError(t, res.MarkCompleted(base))

	assert.False(t, res.IsExpired(res.ExpiresAt), "deadline itself is not expired")
	assert.True(t, res.IsExpired(res.ExpiresAt.Add(time.Second)))
	assert.False(t, res.IsActive(base), "terminal status is never active")
}

func TestMarkCompleted(t *testing.T) {
	res := NewReservation(7, "ORD-1", "P1", 1, 15*time.Minute, base)
	require.NoError(t, res.MarkCompleted(base.Add(time.Minute)))
	assert.Equal(t, ReservationCompleted, res.Status)

	var transition *StateTransitionError
	require.ErrorAs(t, res.MarkCompleted(base), &transition)
	assert.Equal(t, ReservationCompleted, transition.Status)
}

func TestMarkCompletedRejectsExpired(t *testing.T) {
	res := NewReservation(7, "ORD-1", "P1", 1, 15*time.Minute, base)

	var transition *StateTransitionError
	require.ErrorAs(t, res.MarkCompleted(base.Add(16*time.Minute)), &transition)
	assert.Equal(t, ReservationActive, res.Status, "failed completion must not change status")
}

func TestMarkCancelledSucceedsWhenExpired(t *testing.T) {
	res := NewReservation(7, "ORD-1", "P1", 1, 15*time.Minute, base)
	res.ExpiresAt = base.Add(-time.Minute)

	require.NoError(t, res.MarkCancelled())
	assert.Equal(t, ReservationCancelled, res.Status)
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	completed := NewReservation(7, "ORD-1", "P1", 1, 15*time.Minute, base)
	require.NoError(t, completed.MarkCompleted(base))
	require.Error(t, completed.MarkCancelled())
	assert.Equal(t, ReservationCompleted, completed.Status)

	cancelled := NewReservation(7, "ORD-2", "P1", 1, 15*time.Minute, base)
	require.NoError(t, cancelled.MarkCancelled())
	require.Error(t, cancelled.MarkCompleted(base))
	require.Error(t, cancelled.MarkCancelled())
	assert.Equal(t, ReservationCancelled, cancelled.Status)
}
