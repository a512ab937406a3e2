package mutation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		name       string
		retryCount int
		expected   time.Duration
	}{
		{name: "first retry", retryCount: 0, expected: 2 * time.Second},
		{name: "second retry", retryCount: 1, expected: 4 * time.Second},
		{name: "third retry", retryCount: 2, expected: 8 * time.Second},
		{name: "sixth retry", retryCount: 5, expected: 64 * time.Second},
		{name: "saturation point", retryCount: 6, expected: 128 * time.Second},
		{name: "beyond saturation", retryCount: 7, expected: 128 * time.Second},
		{name: "far beyond saturation", retryCount: 100, expected: 128 * time.Second},
		{name: "negative treated as zero", retryCount: -1, expected: 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, BackoffDelay(tt.retryCount))
		})
	}
}

func TestBackoffDelayMonotonic(t *testing.T) {
	prev := time.Duration(0)
	for rc := 0; rc <= 20; rc++ {
		d := BackoffDelay(rc)
		assert.GreaterOrEqual(t, d, prev, "задержка не должна убывать, retryCount=%d", rc)
		prev = d
	}
}

func TestEligible(t *testing.T) {
	now := time.Now()
	recent := now.Add(-1 * time.Second)
	old := now.Add(-10 * time.Minute)

	tests := []struct {
		name     string
		item     *QueueItem
		expected bool
	}{
		{
			name:     "no attempts yet",
			item:     &QueueItem{RetryCount: 0},
			expected: true,
		},
		{
			name:     "retry count zero with attempt stamp",
			item:     &QueueItem{RetryCount: 0, LastAttempt: &recent},
			expected: true,
		},
		{
			name:     "window not elapsed",
			item:     &QueueItem{RetryCount: 2, LastAttempt: &recent},
			expected: false,
		},
		{
			name:     "window elapsed",
			item:     &QueueItem{RetryCount: 2, LastAttempt: &old},
			expected: true,
		},
		{
			name:     "saturated window elapsed",
			item:     &QueueItem{RetryCount: 50, LastAttempt: &old},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Eligible(tt.item, now))
		})
	}
}
