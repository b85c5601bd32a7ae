package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

type toolStat struct {
	calls  int64
	errors int64
}

var (
	errorsQuery     int64
	errorsTransport int64
	warnsQuery      int64
	warnsTransport  int64
	remoteQueries   int64
	localFallbacks  int64
	downloads       int64
	downloadBytes   int64
	cacheHits       int64
	apiProxyCalls   int64
	tools           sync.Map // map[string]*toolStat
)

func recordWarn(component string) {
	if strings.Contains(component, "query") || strings.Contains(component, "engine") {
		atomic.AddInt64(&warnsQuery, 1)
	} else if strings.Contains(component, "gcs") {
		atomic.AddInt64(&warnsTransport, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "query") || strings.Contains(component, "engine") {
		atomic.AddInt64(&errorsQuery, 1)
	} else if strings.Contains(component, "gcs") {
		atomic.AddInt64(&errorsTransport, 1)
	}
}

// IncrementRemoteQuery counts a query executed directly against remote storage.
func IncrementRemoteQuery() {
	atomic.AddInt64(&remoteQueries, 1)
}

// IncrementLocalFallback counts a query that fell back to the local cache path.
func IncrementLocalFallback() {
	atomic.AddInt64(&localFallbacks, 1)
}

// IncrementDownload counts one object download and its size in bytes.
func IncrementDownload(size int64) {
	atomic.AddInt64(&downloads, 1)
	atomic.AddInt64(&downloadBytes, size)
}

// IncrementCacheHit counts a download skipped because the file was already cached.
func IncrementCacheHit() {
	atomic.AddInt64(&cacheHits, 1)
}

// IncrementAPIProxy counts a tool call delegated to the ssmd-data-ts API.
func IncrementAPIProxy() {
	atomic.AddInt64(&apiProxyCalls, 1)
}

// RecordToolCall counts a tool invocation and whether it produced an error payload.
func RecordToolCall(name string, failed bool) {
	v, _ := tools.LoadOrStore(name, &toolStat{})
	ts := v.(*toolStat)
	atomic.AddInt64(&ts.calls, 1)
	if failed {
		atomic.AddInt64(&ts.errors, 1)
	}
}

// StartReport begins periodic logging of system and tool statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(log)
			}
		}
	}()
}

func logReport(log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")
	toolData := map[string]map[string]int64{}
	tools.Range(func(k, v any) bool {
		name := k.(string)
		ts := v.(*toolStat)
		toolData[name] = map[string]int64{
			"calls":  atomic.LoadInt64(&ts.calls),
			"errors": atomic.LoadInt64(&ts.errors),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	fields := Fields{
		"errors_query":     atomic.LoadInt64(&errorsQuery),
		"errors_transport": atomic.LoadInt64(&errorsTransport),
		"warns_query":      atomic.LoadInt64(&warnsQuery),
		"warns_transport":  atomic.LoadInt64(&warnsTransport),
		"remote_queries":   atomic.LoadInt64(&remoteQueries),
		"local_fallbacks":  atomic.LoadInt64(&localFallbacks),
		"downloads":        atomic.LoadInt64(&downloads),
		"download_bytes":   atomic.LoadInt64(&downloadBytes),
		"cache_hits":       atomic.LoadInt64(&cacheHits),
		"api_proxy_calls":  atomic.LoadInt64(&apiProxyCalls),
		"goroutines":       runtime.NumGoroutine(),
		"cpu_percent":      cpuPct,
		"memory_mb":        int64(memStats.Used) / 1024 / 1024,
		"disk_mb":          int64(diskStats.Used) / 1024 / 1024,
		"tools":            toolData,
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")
}
