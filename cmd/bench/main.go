// Command bench simulates a scrolling document browser against the cache
// and exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	pmet "github.com/macteo/thumbcache/metrics/prom"
	"github.com/macteo/thumbcache/policy/twoq"
	"github.com/macteo/thumbcache/thumbs"
)

func main() {
	// ---- Flags ----
	var (
		capacity = flag.Int("cap", 256, "cache capacity (thumbnails)")
		workers  = flag.Int("workers", 4, "concurrent load limit")
		policy   = flag.String("policy", "lru", "eviction policy: lru | 2q")

		scrollers = flag.Int("scrollers", 2*runtime.GOMAXPROCS(0), "concurrent scrolling goroutines")
		duration  = flag.Duration("duration", 10*time.Second, "benchmark duration")
		docs      = flag.Int("docs", 10_000, "document count")
		loadTime  = flag.Duration("load", 2*time.Millisecond, "simulated load time per thumbnail")
		cancelPct = flag.Int("cancels", 5, "percentage of requests followed by a cancel [0..100]")
		dirtyPct  = flag.Int("dirty", 2, "percentage of requests preceded by a dirty-mark [0..100]")

		zipfS = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed  = flag.Int64("seed", time.Now().UnixNano(), "random seed")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
	)
	flag.Parse()

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			log.Printf("pprof: serving at %s", *pprofAddr)
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	metrics := pmet.New(nil, "thumbcache", "bench", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Printf("metrics: serving at %s", *metricsAddr)
		log.Println(http.ListenAndServe(*metricsAddr, nil))
	}()

	// ---- Build cache ----
	var batches, batchedKeys uint64
	opt := thumbs.Options[string, uint64, []byte]{
		Capacity: *capacity,
		Workers:  *workers,
		Resolve: func(key string) (uint64, bool) {
			id, err := strconv.ParseUint(key, 10, 64)
			return id, err == nil
		},
		Load: func(_ context.Context, key string) ([]byte, error) {
			time.Sleep(*loadTime)
			return []byte("image:" + key), nil
		},
		Scale:       func(raw []byte, _ thumbs.Size) []byte { return raw },
		Placeholder: []byte("placeholder"),
		OnReady: func(keys []string) {
			atomic.AddUint64(&batches, 1)
			atomic.AddUint64(&batchedKeys, uint64(len(keys)))
		},
		Metrics: metrics,
	}
	switch *policy {
	case "lru":
		// nil => LRU by default
	case "2q":
		opt.Policy = twoq.New[uint64, []byte](*capacity/4, *capacity/2)
	default:
		log.Fatalf("unknown policy: %q (use lru or 2q)", *policy)
	}
	c := thumbs.New(opt)
	defer func() { _ = c.Close() }()

	// ---- Snapshot flags for goroutines ----
	docsMax := uint64(*docs - 1)
	seedBase := *seed
	zipfSVal := *zipfS
	zipfVVal := *zipfV
	cancelPctVal := *cancelPct
	dirtyPctVal := *dirtyPct
	scrollersN := *scrollers
	if scrollersN <= 0 {
		scrollersN = 1
	}

	// ---- Load generation ----
	var requests, immediate uint64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(scrollersN)
	for w := 0; w < scrollersN; w++ {
		go func(id int) {
			defer wg.Done()

			// Each scroller gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			localR := rand.New(rand.NewSource(seedBase + int64(id)*9973))
			localZipf := rand.NewZipf(localR, zipfSVal, zipfVVal, docsMax)

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				key := strconv.FormatUint(localZipf.Uint64(), 10)

				if int(localR.Int31n(100)) < dirtyPctVal {
					c.MarkDirty(key)
				}

				atomic.AddUint64(&requests, 1)
				if img := c.Request(key); string(img) != "placeholder" {
					atomic.AddUint64(&immediate, 1)
				}

				// Scrolled past: discard the request if it hasn't started.
				if int(localR.Int31n(100)) < cancelPctVal {
					c.Cancel(key)
				}
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	// Let in-flight loads and the flusher settle before reading counters.
	time.Sleep(100 * time.Millisecond)

	// ---- Report ----
	reqs := atomic.LoadUint64(&requests)
	imm := atomic.LoadUint64(&immediate)
	fl := atomic.LoadUint64(&batches)
	flk := atomic.LoadUint64(&batchedKeys)

	immRate := 0.0
	if reqs > 0 {
		immRate = float64(imm) / float64(reqs) * 100
	}
	avgBatch := 0.0
	if fl > 0 {
		avgBatch = float64(flk) / float64(fl)
	}

	fmt.Printf("policy=%s cap=%d workers=%d scrollers=%d docs=%d dur=%v seed=%d\n",
		*policy, *capacity, *workers, scrollersN, *docs, elapsed, seedBase)
	fmt.Printf("requests=%d (%.0f req/s)  served-immediately=%d (%.2f%%)\n",
		reqs, float64(reqs)/elapsed.Seconds(), imm, immRate)
	fmt.Printf("flushes=%d  keys-announced=%d  avg-batch=%.1f\n", fl, flk, avgBatch)
	fmt.Printf("Len()=%d\n", c.Len())
}
