package indexer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"paraScope/internal/model"
)

// ParseStart converts the start setting into a start address. "live" or an
// empty value selects live mode and returns nil.
func ParseStart(input string) (*model.DotUrl, error) {
	input = strings.TrimSpace(input)
	if input == "" || input == "live" {
		return nil, nil
	}
	u, err := model.ParseDotUrl(input)
	if err != nil {
		return nil, fmt.Errorf("invalid start: %w", err)
	}
	if u.Sovereign == nil {
		return nil, fmt.Errorf("invalid start %s: sovereign is required", input)
	}
	return &u, nil
}

// ParseTimestamp converts unix seconds or an RFC3339 time into milliseconds.
// An empty input yields zero.
func ParseTimestamp(input string) (uint64, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseUint(input, 10, 64); err == nil {
		return secs * 1000, nil
	}
	t, err := time.Parse(time.RFC3339, input)
	if err != nil {
		return 0, fmt.Errorf("invalid start timestamp: %s", input)
	}
	if t.Before(time.Unix(0, 0)) {
		return 0, fmt.Errorf("start timestamp before epoch: %s", input)
	}
	return uint64(t.UnixMilli()), nil
}
