package treatment

import (
	"regexp"
	"strconv"
	"time"

	"github.com/faultline/faultline-go/pkg/types"
	"github.com/faultline/faultline-go/pkg/utils/common"
)

var percentageRegex = regexp.MustCompile(`^\d+(\.\d+)?%?$`)

// requireParam fetches a mandatory string parameter
func requireParam(spec types.TreatmentSpec, key string) (string, error) {
	value, exists := spec.Params[key]
	if !exists || value == "" {
		return "", validationError(spec, "parameter '"+key+"' has to be supplied")
	}
	return value, nil
}

// optionalParam fetches a parameter, falling back to a default
func optionalParam(spec types.TreatmentSpec, key, fallback string) string {
	if value, exists := spec.Params[key]; exists && value != "" {
		return value
	}
	return fallback
}

// requireDurationParam fetches a mandatory duration parameter,
// accepting both bare seconds and Go duration strings
func requireDurationParam(spec types.TreatmentSpec, key string) (time.Duration, error) {
	value, err := requireParam(spec, key)
	if err != nil {
		return 0, err
	}
	parsed, err := common.ParseTimeString(value)
	if err != nil {
		return 0, validationError(spec, "parameter '"+key+"': "+err.Error())
	}
	return parsed, nil
}

// requirePercentageParam fetches a mandatory percentage parameter and
// normalizes it to the "N%" form tc and netem expect
func requirePercentageParam(spec types.TreatmentSpec, key string) (string, error) {
	value, err := requireParam(spec, key)
	if err != nil {
		return "", err
	}
	if !percentageRegex.MatchString(value) {
		return "", validationError(spec, "parameter '"+key+"' has to be a percentage like '10' or '12.5%'")
	}
	if value[len(value)-1] != '%' {
		value += "%"
	}
	return value, nil
}

// optionalPercentageParam behaves like requirePercentageParam for an
// optional parameter, an empty result means absent
func optionalPercentageParam(spec types.TreatmentSpec, key string) (string, error) {
	if _, exists := spec.Params[key]; !exists {
		return "", nil
	}
	return requirePercentageParam(spec, key)
}

// optionalIntParam fetches an optional positive integer parameter
func optionalIntParam(spec types.TreatmentSpec, key string, fallback int) (int, error) {
	value, exists := spec.Params[key]
	if !exists || value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return 0, validationError(spec, "parameter '"+key+"' has to be a positive integer")
	}
	return parsed, nil
}

// percentageValue parses the numeric part of a percentage parameter
func percentageValue(percentage string) float64 {
	if percentage == "" {
		return 0
	}
	if percentage[len(percentage)-1] == '%' {
		percentage = percentage[:len(percentage)-1]
	}
	parsed, _ := strconv.ParseFloat(percentage, 64)
	return parsed
}
