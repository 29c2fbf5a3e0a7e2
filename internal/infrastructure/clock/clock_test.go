package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemNowUTC(t *testing.T) {
	got := New().Now()
	assert.Equal(t, time.UTC, got.Location())
}

func TestSystemSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New().Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSystemSleepZero(t *testing.T) {
	require.NoError(t, New().Sleep(context.Background(), 0))
}

func TestFakeAdvancesOnSleep(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)

	require.NoError(t, f.Sleep(context.Background(), 6*time.Second))
	require.NoError(t, f.Sleep(context.Background(), 10*time.Millisecond))

	assert.Equal(t, start.Add(6*time.Second+10*time.Millisecond), f.Now())
	assert.Equal(t, []time.Duration{6 * time.Second, 10 * time.Millisecond}, f.Sleeps())
	assert.Equal(t, 6*time.Second+10*time.Millisecond, f.Slept())
}
