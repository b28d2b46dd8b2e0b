package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeString(t *testing.T) {
	testCases := []struct {
		value    string
		expected time.Duration
		wantErr  bool
	}{
		{value: "90", expected: 90 * time.Second},
		{value: "0", expected: 0},
		{value: "1m30s", expected: 90 * time.Second},
		{value: "250ms", expected: 250 * time.Millisecond},
		{value: " 10s ", expected: 10 * time.Second},
		{value: "", wantErr: true},
		{value: "-5", wantErr: true},
		{value: "-2s", wantErr: true},
		{value: "tenseconds", wantErr: true},
	}

	for _, tc := range testCases {
		parsed, err := ParseTimeString(tc.value)
		if tc.wantErr {
			assert.Error(t, err, "value %q should not parse", tc.value)
			continue
		}
		require.NoError(t, err, "value %q should parse", tc.value)
		assert.Equal(t, tc.expected, parsed)
	}
}

func TestGetRunID(t *testing.T) {
	first := GetRunID()
	second := GetRunID()

	assert.Len(t, first, 8)
	assert.NotEqual(t, first, second)
}

func FuzzParseTimeString(f *testing.F) {
	testCases := []struct {
		value string
	}{
		{value: "90"},
		{value: "1m30s"},
	}

	for _, tc := range testCases {
		f.Add(tc.value)
	}

	f.Fuzz(func(t *testing.T, value string) {
		parsed, err := ParseTimeString(value)
		if err == nil && parsed < 0 {
			t.Errorf("parsed a negative duration from %q", value)
		}
	})
}
