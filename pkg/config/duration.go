package config

import (
	"time"

	"github.com/sosodev/duration"
)

// ParseDuration parses ISO 8601 (e.g. "PT15M", "P30D") first, then Go
// duration syntax (e.g. "15m").
func ParseDuration(s string) (time.Duration, error) {
	isoDuration, err := duration.Parse(s)
	if err == nil {
		return isoDuration.ToTimeDuration(), nil
	}
	return time.ParseDuration(s)
}
