package rate

import (
	"strings"

	"exchangeflow/internal/metrics"
	"exchangeflow/logger"
)

func limitFields(exchange, symbol, endpoint string) logger.Fields {
	return logger.Fields{
		"exchange": strings.ToLower(exchange),
		"symbol":   symbol,
		"endpoint": endpoint,
	}
}

// ReportRateLimitExceeded counts a throttled call for exchange.
func ReportRateLimitExceeded(log *logger.Log, exchange, symbol, endpoint string) {
	fields := limitFields(exchange, symbol, endpoint)
	metrics.EmitMetric(log, "rate_limit", "rate_limit_exceeded", int64(1), "counter", fields)
	log.WithComponent("rate_limit").WithFields(fields).Warn("rate limit exceeded")
}

// ReportIPBan counts a call rejected because the client address is banned.
func ReportIPBan(log *logger.Log, exchange, symbol, endpoint string) {
	fields := limitFields(exchange, symbol, endpoint)
	metrics.EmitMetric(log, "rate_limit", "ip_ban", int64(1), "counter", fields)
	log.WithComponent("rate_limit").WithFields(fields).Error("ip banned")
}

// detectLimit inspects an exchange error message for throttling or IP bans.
// Each exchange words these differently.
func detectLimit(exchange, msg string) (rateLimit bool, ipBan bool) {
	lowerMsg := strings.ToLower(msg)
	switch strings.ToLower(exchange) {
	case "commex":
		rateLimit = strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "request weight")
		ipBan = strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban")
	case "kucoin":
		rateLimit = strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "access frequency")
		ipBan = strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "limit") && strings.Contains(lowerMsg, "triggered")
	case "upbit":
		rateLimit = strings.Contains(lowerMsg, "too_many_requests") || strings.Contains(lowerMsg, "too many")
		ipBan = strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "block")
	default:
		rateLimit = strings.Contains(lowerMsg, "rate limit") || strings.Contains(lowerMsg, "too many requests")
		ipBan = strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban")
	}
	return
}

// ReportLimitFromMessage records rate limit or IP ban events found in msg.
// Messages matching neither are ignored.
func ReportLimitFromMessage(log *logger.Log, exchange, symbol, endpoint, msg string) {
	rateLimit, ipBan := detectLimit(exchange, msg)
	if rateLimit {
		ReportRateLimitExceeded(log, exchange, symbol, endpoint)
	}
	if ipBan {
		ReportIPBan(log, exchange, symbol, endpoint)
	}
}
