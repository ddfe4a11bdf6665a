package relay

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseBPM parses a reading as a base-10 signed 32-bit integer.
// Surrounding whitespace is ignored; no range checks beyond int32 are applied.
func ParseBPM(s string) (int, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid bpm %q: %w", s, err)
	}
	return int(v), nil
}

// FormatBPM renders a reading the way it is persisted: decimal, no newline
func FormatBPM(bpm int) string {
	return strconv.Itoa(bpm)
}
