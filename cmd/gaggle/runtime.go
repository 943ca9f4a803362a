package main

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var runTimePattern = regexp.MustCompile(`^(?:(\d+)h)?(?:(\d+)m)?(?:(\d+)s)?$`)

// parseRunTime parses the --run-time grammar: (\d+h)?(\d+m)?(\d+s)?,
// with a bare \d+ meaning seconds.
func parseRunTime(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}

	m := runTimePattern.FindStringSubmatch(s)
	if m == nil || (m[1] == "" && m[2] == "" && m[3] == "") {
		return 0, fmt.Errorf("invalid --run-time %q: want form like 300s, 20m, 3h, 1h30m", s)
	}

	var d time.Duration
	if m[1] != "" {
		h, _ := strconv.Atoi(m[1])
		d += time.Duration(h) * time.Hour
	}
	if m[2] != "" {
		mins, _ := strconv.Atoi(m[2])
		d += time.Duration(mins) * time.Minute
	}
	if m[3] != "" {
		secs, _ := strconv.Atoi(m[3])
		d += time.Duration(secs) * time.Second
	}
	return d, nil
}
