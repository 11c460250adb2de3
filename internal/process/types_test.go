package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTerminal(t *testing.T) {
	terminal := []Status{StatusFinished, StatusFailed, StatusTimedOut, StatusCancelled}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), "%s should be terminal", s)
	}

	live := []Status{StatusEnqueued, StatusStarting, StatusRunning, StatusSuspended, StatusResuming}
	for _, s := range live {
		assert.False(t, s.Terminal(), "%s should not be terminal", s)
	}
}

func TestStatusSchedulable(t *testing.T) {
	assert.True(t, StatusEnqueued.Schedulable())
	assert.True(t, StatusResuming.Schedulable())

	for _, s := range []Status{StatusStarting, StatusRunning, StatusSuspended, StatusFinished, StatusFailed, StatusTimedOut, StatusCancelled} {
		assert.False(t, s.Schedulable(), "%s should not be schedulable", s)
	}
}

func TestSatisfies(t *testing.T) {
	tests := []struct {
		name         string
		capabilities map[string]string
		requirements map[string]string
		want         bool
	}{
		{
			name:         "empty requirements match any agent",
			capabilities: nil,
			requirements: nil,
			want:         true,
		},
		{
			name:         "exact superset",
			capabilities: map[string]string{"flavor": "docker", "region": "us-east", "gpu": "none"},
			requirements: map[string]string{"flavor": "docker", "region": "us-east"},
			want:         true,
		},
		{
			name:         "missing tag",
			capabilities: map[string]string{"flavor": "docker"},
			requirements: map[string]string{"flavor": "docker", "region": "us-east"},
			want:         false,
		},
		{
			name:         "value mismatch",
			capabilities: map[string]string{"flavor": "docker"},
			requirements: map[string]string{"flavor": "k8s"},
			want:         false,
		},
		{
			name:         "no prefix matching",
			capabilities: map[string]string{"region": "us-east-1"},
			requirements: map[string]string{"region": "us-east"},
			want:         false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Satisfies(tt.capabilities, tt.requirements))
		})
	}
}
