package logger

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"
	"github.com/sirupsen/logrus"
)

type channelStat struct {
	messages int64
	bytes    int64
}

type exchangeStat struct {
	requests int64
	failures int64
	warns    int64
	errors   int64
}

var (
	totalWarns  int64
	totalErrors int64
	exchanges   sync.Map // map[string]*exchangeStat
	channels    sync.Map // map[string]*channelStat
)

func statFor(exchange string) *exchangeStat {
	v, _ := exchanges.LoadOrStore(exchange, &exchangeStat{})
	return v.(*exchangeStat)
}

func exchangeOf(data logrus.Fields) string {
	if ex, ok := data["exchange"].(string); ok {
		return ex
	}
	return ""
}

func recordWarn(data logrus.Fields) {
	atomic.AddInt64(&totalWarns, 1)
	if ex := exchangeOf(data); ex != "" {
		atomic.AddInt64(&statFor(ex).warns, 1)
	}
}

func recordError(data logrus.Fields) {
	atomic.AddInt64(&totalErrors, 1)
	if ex := exchangeOf(data); ex != "" {
		atomic.AddInt64(&statFor(ex).errors, 1)
	}
}

// RecordRequest counts one REST call against exchange.
func RecordRequest(exchange string, failed bool) {
	s := statFor(exchange)
	atomic.AddInt64(&s.requests, 1)
	if failed {
		atomic.AddInt64(&s.failures, 1)
	}
}

// RecordChannelMessage counts a message of size bytes on a named stage.
func RecordChannelMessage(name string, size int) {
	recordChannel(name, size)
}

func recordChannel(name string, size int) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	cs := v.(*channelStat)
	atomic.AddInt64(&cs.messages, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

// StartReport begins periodic logging of system, exchange and channel
// statistics until ctx is cancelled.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logReport(log)
			}
		}
	}()
}

func snapshotExchanges() map[string]map[string]int64 {
	out := map[string]map[string]int64{}
	exchanges.Range(func(k, v any) bool {
		s := v.(*exchangeStat)
		out[k.(string)] = map[string]int64{
			"requests": atomic.LoadInt64(&s.requests),
			"failures": atomic.LoadInt64(&s.failures),
			"warns":    atomic.LoadInt64(&s.warns),
			"errors":   atomic.LoadInt64(&s.errors),
		}
		return true
	})
	return out
}

func snapshotChannels() map[string]map[string]int64 {
	out := map[string]map[string]int64{}
	channels.Range(func(k, v any) bool {
		cs := v.(*channelStat)
		out[k.(string)] = map[string]int64{
			"messages": atomic.LoadInt64(&cs.messages),
			"bytes":    atomic.LoadInt64(&cs.bytes),
		}
		return true
	})
	return out
}

func logReport(log *Log) {
	cpuPct := 0.0
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		cpuPct = pct[0]
	}
	var memUsed, diskUsed, bytesSent, bytesRecv uint64
	if m, err := mem.VirtualMemory(); err == nil {
		memUsed = m.Used
	}
	if d, err := disk.Usage("/"); err == nil {
		diskUsed = d.Used
	}
	if n, err := gnet.IOCounters(false); err == nil && len(n) > 0 {
		bytesSent = n[0].BytesSent
		bytesRecv = n[0].BytesRecv
	}

	exchangeData := snapshotExchanges()
	fields := Fields{
		"warns":          atomic.LoadInt64(&totalWarns),
		"errors":         atomic.LoadInt64(&totalErrors),
		"goroutines":     runtime.NumGoroutine(),
		"cpu_percent":    cpuPct,
		"memory_mb":      int64(memUsed / 1024 / 1024),
		"disk_mb":        int64(diskUsed / 1024 / 1024),
		"net_bytes_sent": int64(bytesSent),
		"net_bytes_recv": int64(bytesRecv),
		"exchanges":      exchangeData,
		"channels":       snapshotChannels(),
	}
	entry := log.WithComponent("report")
	entry.WithFields(fields).Info("runtime report")

	entry.LogMetric("report", "cpu_percent", cpuPct, "gauge", Fields{"unit": "percent"})
	entry.LogMetric("report", "memory_mb", float64(memUsed)/1024/1024, "gauge", Fields{"unit": "megabytes"})
	entry.LogMetric("report", "net_bytes_sent", bytesSent, "gauge", Fields{"unit": "bytes"})
	entry.LogMetric("report", "net_bytes_recv", bytesRecv, "gauge", Fields{"unit": "bytes"})
	for ex, stats := range exchangeData {
		entry.LogMetric("report", "exchange_requests", stats["requests"], "counter", Fields{"exchange": ex})
		entry.LogMetric("report", "exchange_failures", stats["failures"], "counter", Fields{"exchange": ex})
	}
}
