package rate

import (
	"net/http"
	"testing"

	"exchangeflow/logger"
)

func TestParseWeight(t *testing.T) {
	commex := http.Header{}
	commex.Set("X-MBX-USED-WEIGHT-1m", "42")
	if w := ParseWeight("commex", commex); !w.Known || w.Used != 42 {
		t.Fatalf("commex weight = %+v", w)
	}

	kucoin := http.Header{}
	kucoin.Set("gw-ratelimit-remaining", "1990")
	kucoin.Set("gw-ratelimit-limit", "2000")
	if w := ParseWeight("kucoin", kucoin); !w.Known || w.Used != 10 || w.Remaining != 1990 {
		t.Fatalf("kucoin weight = %+v", w)
	}

	upbit := http.Header{}
	upbit.Set("Remaining-Req", "group=default; min=1799; sec=29")
	if w := ParseWeight("upbit", upbit); !w.Known || w.Remaining != 29 {
		t.Fatalf("upbit weight = %+v", w)
	}

	if w := ParseWeight("indodax", http.Header{}); w.Known {
		t.Fatalf("indodax publishes no quota headers")
	}
}

func TestReportUsedWeight(t *testing.T) {
	header := http.Header{}
	header.Set("gw-ratelimit-remaining", "5")
	header.Set("gw-ratelimit-limit", "10")
	if w := ReportUsedWeight(logger.GetLogger(), "kucoin", "/api/v1/accounts", header); w.Used != 5 {
		t.Fatalf("used = %d", w.Used)
	}
}

func TestReportRateLimitExceeded(t *testing.T) {
	ReportRateLimitExceeded(logger.GetLogger(), "commex", "BTC/USDT", "/v1/depth")
}

func TestReportIPBan(t *testing.T) {
	ReportIPBan(logger.GetLogger(), "commex", "BTC/USDT", "/v1/depth")
}

func TestDetectLimit(t *testing.T) {
	cases := []struct {
		exchange string
		msg      string
		rate     bool
		ban      bool
	}{
		{"commex", "Too many requests.", true, false},
		{"commex", "IP banned until 1700000000", false, true},
		{"kucoin", "Exceeded the access frequency", true, false},
		{"upbit", "too_many_requests", true, false},
		{"indodax", "hello world", false, false},
	}
	for _, c := range cases {
		rl, ban := detectLimit(c.exchange, c.msg)
		if rl != c.rate {
			t.Errorf("exchange %s: expected rateLimit %v got %v", c.exchange, c.rate, rl)
		}
		if ban != c.ban {
			t.Errorf("exchange %s: expected ipBan %v got %v", c.exchange, c.ban, ban)
		}
	}
}
