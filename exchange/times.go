package exchange

import (
	"strings"
	"time"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime reads the timestamp formats vendors put in JSON and returns
// Unix milliseconds. Timestamps without a zone are taken as UTC.
func ParseTime(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli(), true
		}
	}
	return 0, false
}

// TimeValue adapts ParseTime to a normalizer transform over string fields.
func TimeValue(v any, _ any) any {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	if ms, ok := ParseTime(s); ok {
		return ms
	}
	return nil
}

// DateOf formats a Unix millisecond timestamp as YYYY-MM-DD in UTC.
func DateOf(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02")
}
