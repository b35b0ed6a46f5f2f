package cgroup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCountCPUSet verifies the kernel cpuset list syntax: bare indices
// count one core each, inclusive ranges count hi-lo+1.
func TestCountCPUSet(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"0", 1},
		{"2-4", 3},
		{"0,2,4", 3},
		{"0-1,3", 3},
		{"0-7", 8},
		{"0-3,8-11", 8},
		{"5-5", 1},
		{"0, 2, 4", 3},   // tolerates spaces after commas
		{"  0-1,3\n", 3}, // tolerates surrounding whitespace
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			n, err := CountCPUSet(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, n)
		})
	}
}

// TestCountCPUSet_Invalid verifies malformed lists are rejected rather
// than silently miscounted.
func TestCountCPUSet_Invalid(t *testing.T) {
	tests := []string{
		"",
		"abc",
		"1-",
		"-3",
		"4-2", // end before start
		"1,,3",
		"1-2-3",
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			_, err := CountCPUSet(input)
			assert.Error(t, err)
		})
	}
}
