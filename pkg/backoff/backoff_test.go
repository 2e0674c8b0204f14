package backoff

import (
	"reflect"
	"testing"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

// TestBackoff tests if Backoff returns the correct backoff strategy for given keys.
func TestBackoff(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		expected wait.Backoff
	}{
		{
			name: "Existing Key",
			key:  DBOpen,
			expected: wait.Backoff{
				Duration: time.Millisecond * 500,
				Factor:   2,
				Jitter:   0.2,
				Steps:    5,
			},
		},
		{
			name: "Non-existing Key",
			key:  "non_existing_key",
			expected: wait.Backoff{
				Duration: time.Second * 2,
				Factor:   1.5,
				Jitter:   0.3,
				Steps:    6,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Backoff(tt.key)
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("Test %s failed, expected %v, got %v", tt.name, tt.expected, result)
			}
		})
	}
}

func TestOverrideBackoff(t *testing.T) {
	original := Backoff(DBOpen)
	defer OverrideBackoff(map[string]wait.Backoff{DBOpen: original})

	custom := wait.Backoff{Duration: time.Millisecond, Factor: 1, Steps: 2}
	OverrideBackoff(map[string]wait.Backoff{DBOpen: custom})

	if got := Backoff(DBOpen); !reflect.DeepEqual(got, custom) {
		t.Errorf("expected %v, got %v", custom, got)
	}
}
