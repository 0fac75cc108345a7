package rate

import (
	"net/http"
	"strconv"
	"strings"

	"exchangeflow/internal/metrics"
	"exchangeflow/logger"
)

// Weight is the quota state read from one response.
type Weight struct {
	Used      int64
	Remaining int64
	Limit     int64
	Known     bool
}

// ParseWeight reads the quota headers each exchange returns. Exchanges that
// publish no quota headers yield a zero Weight with Known unset.
func ParseWeight(exchange string, header http.Header) Weight {
	switch strings.ToLower(exchange) {
	case "commex":
		v := header.Get("X-MBX-USED-WEIGHT-1m")
		if v == "" {
			v = header.Get("X-MBX-USED-WEIGHT")
		}
		used, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return Weight{}
		}
		return Weight{Used: used, Known: true}
	case "kucoin":
		rem, err := strconv.ParseInt(header.Get("gw-ratelimit-remaining"), 10, 64)
		if err != nil {
			return Weight{}
		}
		limit, _ := strconv.ParseInt(header.Get("gw-ratelimit-limit"), 10, 64)
		w := Weight{Remaining: rem, Limit: limit, Known: true}
		if limit > rem {
			w.Used = limit - rem
		}
		return w
	case "upbit":
		// Remaining-Req: group=default; min=1799; sec=29
		v := header.Get("Remaining-Req")
		for _, part := range strings.Split(v, ";") {
			kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
			if len(kv) == 2 && kv[0] == "sec" {
				if rem, ok := leadingInt(kv[1]); ok {
					return Weight{Remaining: rem, Known: true}
				}
			}
		}
	}
	return Weight{}
}

// ReportUsedWeight emits the quota gauges for one response.
func ReportUsedWeight(log *logger.Log, exchange, endpoint string, header http.Header) Weight {
	w := ParseWeight(exchange, header)
	if !w.Known {
		return w
	}
	fields := logger.Fields{"exchange": exchange, "endpoint": endpoint}
	metrics.EmitMetric(log, "rate_limit", "used_weight", w.Used, "gauge", fields)
	metrics.EmitMetric(log, "rate_limit", "remaining_weight", w.Remaining, "gauge", fields)
	if w.Limit > 0 {
		metrics.EmitMetric(log, "rate_limit", "remaining_weight_ratio", float64(w.Remaining)/float64(w.Limit), "gauge", fields)
	}
	return w
}

// leadingInt parses the digits at the start of s, ignoring anything after.
func leadingInt(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	end := strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' })
	if end == 0 {
		return 0, false
	}
	if end > 0 {
		s = s[:end]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}
