package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryScheduler_ReconnectDelaysFollowBackoffPrefix(t *testing.T) {
	s := NewRetryScheduler(RetryKindReconnect, "cam-1", newTestLogger())

	expected := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second, 60 * time.Second, 60 * time.Second}
	for i, want := range expected {
		got := s.nextDelay(i + 1)
		lower := time.Duration(float64(want) * 0.75)
		upper := want
		assert.GreaterOrEqualf(t, got, lower, "attempt %d", i+1)
		assert.LessOrEqualf(t, got, upper, "attempt %d", i+1)
	}
}

func TestRetryScheduler_RecordingRetryUsesFixedInterval(t *testing.T) {
	s := NewRetryScheduler(RetryKindRecordingRetry, "cam-1", newTestLogger())
	assert.Equal(t, recordingRetryInterval, s.nextDelay(1))
	assert.Equal(t, recordingRetryInterval, s.nextDelay(10))
}

func TestRetryScheduler_Schedule_StopsAfterMaxAttempts(t *testing.T) {
	s := NewRetryScheduler(RetryKindRecordingRetry, "cam-1", newTestLogger())

	var fired int32
	for i := 0; i < recordingRetryMaxAttempt; i++ {
		ok := s.Schedule(func(int) { atomic.AddInt32(&fired, 1) })
		require.True(t, ok)
		s.Cancel()
	}

	ok := s.Schedule(func(int) {})
	assert.False(t, ok)
}

func TestRetryScheduler_Reset_ClearsAttemptCounter(t *testing.T) {
	s := NewRetryScheduler(RetryKindReconnect, "cam-1", newTestLogger())
	s.Schedule(func(int) {})
	s.Cancel()
	assert.Equal(t, 1, s.Attempt())

	s.Reset()
	assert.Equal(t, 0, s.Attempt())
}

func TestRetryScheduler_Schedule_CancelsPriorTimerBeforeRescheduling(t *testing.T) {
	s := NewRetryScheduler(RetryKindRecordingRetry, "cam-1", newTestLogger())

	fired := make(chan int, 2)
	s.Schedule(func(attempt int) { fired <- attempt })
	// Immediately reschedule; the first timer must be cancelled so only the
	// second attempt's callback can fire.
	s.Schedule(func(attempt int) { fired <- attempt })

	select {
	case attempt := <-fired:
		assert.Equal(t, 2, attempt)
	case <-time.After(recordingRetryInterval + 2*time.Second):
		t.Fatal("expected rescheduled timer to fire")
	}
}

func TestProbeTCP_FailsOnUnroutableHost(t *testing.T) {
	err := ProbeTCP(context.Background(), "rtsp://192.0.2.1:554/stream")
	assert.Error(t, err)
}
