// sync-loadgen is a tiny HTTP load generator for the knowledge-sync daemon.
// It reuses HTTP connections (keep-alive) and supports concurrency so demo
// scripts run fast on Windows (Git Bash), Ubuntu (WSL), and macOS without
// relying on external tools.
//
// It POSTs synthetic events to /sync as fast as the workers allow, then
// reads /stats once at the end so the run prints the write-reduction the
// debounce window achieved.
//
// Usage examples:
//
//	sync-loadgen -base=http://127.0.0.1:8080 -n=5000 -c=16
//	sync-loadgen -base=http://127.0.0.1:8080 -n=8000 -c=16 -types=task_completion,git_commit
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
)

func main() {
	var (
		base  = flag.String("base", "http://127.0.0.1:8080", "Base URL including scheme and host")
		N     = flag.Int("n", 5000, "Total events to send")
		conc  = flag.Int("c", 8, "Number of concurrent workers")
		types = flag.String("types", "task_completion,phase_transition,git_commit", "Comma-separated event types to round-robin")
		flush = flag.Bool("flush", true, "POST /flush once after the run")
		// Timeouts & transport tuning
		timeout    = flag.Duration("timeout", 60*time.Second, "Overall timeout for the loadgen run")
		connIdle   = flag.Duration("idle_timeout", 30*time.Second, "HTTP idle connection timeout")
		maxIdle    = flag.Int("max_idle", 256, "Max idle connections total")
		maxIdlePer = flag.Int("max_idle_per_host", 256, "Max idle connections per host")
	)
	flag.Parse()

	if *N <= 0 || *conc <= 0 {
		fmt.Fprintln(os.Stderr, "-n and -c must be > 0")
		os.Exit(2)
	}
	typeList := strings.Split(*types, ",")
	for i := range typeList {
		typeList[i] = strings.TrimSpace(typeList[i])
	}

	baseURL := strings.TrimRight(*base, "/")
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        *maxIdle,
		MaxIdleConnsPerHost: *maxIdlePer,
		IdleConnTimeout:     *connIdle,
	}
	client := &http.Client{Transport: tr, Timeout: 5 * time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	var accepted, failed int64

	worker := func(id, count int) {
		for i := 0; i < count; i++ {
			select {
			case <-ctx.Done():
				return
			default:
			}
			body, _ := json.Marshal(map[string]any{
				"event_type": typeList[(i+id)%len(typeList)],
				"data":       map[string]any{"worker": id, "seq": i},
			})
			req, _ := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/sync", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			resp, err := client.Do(req)
			if err != nil {
				atomic.AddInt64(&failed, 1)
				// Brief backoff on errors to avoid hot spinning
				time.Sleep(200 * time.Microsecond)
				continue
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusAccepted {
				atomic.AddInt64(&accepted, 1)
			} else {
				atomic.AddInt64(&failed, 1)
			}
		}
	}

	per := *N / *conc
	rem := *N - per**conc
	var wg sync.WaitGroup
	wg.Add(*conc)
	for w := 0; w < *conc; w++ {
		count := per
		if w == *conc-1 {
			count += rem
		}
		go func(id, n int) {
			defer wg.Done()
			worker(id, n)
		}(w, count)
	}
	wg.Wait()
	elapsed := time.Since(start)
	if elapsed <= 0 {
		elapsed = time.Millisecond
	}

	if *flush {
		if resp, err := client.Post(baseURL+"/flush", "application/json", nil); err == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}
	}

	ops := float64(accepted) / elapsed.Seconds()
	fmt.Printf("LoadGen: N=%d accepted=%d failed=%d c=%d go=%d Duration=%s Throughput=%.0f ev/s\n",
		*N, accepted, failed, *conc, runtime.GOMAXPROCS(0), elapsed.Truncate(time.Millisecond), ops)

	// Pull the daemon's counters so the run ends with the KPI that matters:
	// how many notes those events coalesced into.
	resp, err := client.Get(baseURL + "/stats")
	if err != nil {
		fmt.Fprintf(os.Stderr, "stats fetch failed: %v\n", err)
		return
	}
	defer resp.Body.Close()
	var stats struct {
		TotalSyncs   int64   `json:"total_syncs"`
		TotalEvents  int64   `json:"total_events"`
		BatchingRate float64 `json:"batching_rate"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		fmt.Fprintf(os.Stderr, "stats decode failed: %v\n", err)
		return
	}
	fmt.Printf("Server: events=%d notes=%d batching=%.1f%%\n",
		stats.TotalEvents, stats.TotalSyncs, stats.BatchingRate*100)
}
