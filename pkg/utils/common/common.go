package common

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// WaitForDuration waits for the given ramp/chaos duration
func WaitForDuration(duration time.Duration) {
	time.Sleep(duration)
}

// GetRunID generates a short run id for labeling a repetition
func GetRunID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

// ParseTimeString parses a duration string from an experiment spec.
// Both bare seconds ("90") and Go duration strings ("1m30s") are accepted.
func ParseTimeString(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, errors.Errorf("empty duration string")
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, errors.Errorf("duration %q must not be negative", value)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.Errorf("could not parse duration %q", value)
	}
	if parsed < 0 {
		return 0, errors.Errorf("duration %q must not be negative", value)
	}
	return parsed, nil
}

// Contains checks the presence of a name inside a service list
func Contains(name string, list []string) bool {
	for _, entry := range list {
		if entry == name {
			return true
		}
	}
	return false
}
