// Package bench drives moderation checks against a running moderator over
// NATS and summarizes round-trip latency and verdicts.
package bench

import (
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"
)

// Collector aggregates results from many request goroutines. All methods are
// goroutine-safe.
type Collector struct {
	mu        sync.Mutex
	latencies []time.Duration
	blocked   int
	clean     int
	errors    int
	startTime time.Time
	scraper   *Scraper
}

// NewCollector creates a Collector with the start time set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// SetScraper attaches a metrics scraper whose report is appended to Report.
func (c *Collector) SetScraper(s *Scraper) {
	c.mu.Lock()
	c.scraper = s
	c.mu.Unlock()
}

// AddResult records one answered check.
func (c *Collector) AddResult(d time.Duration, blocked bool) {
	c.mu.Lock()
	c.latencies = append(c.latencies, d)
	if blocked {
		c.blocked++
	} else {
		c.clean++
	}
	c.mu.Unlock()
}

// AddError records a failed or unanswered check.
func (c *Collector) AddError() {
	c.mu.Lock()
	c.errors++
	c.mu.Unlock()
}

// Summary is a point-in-time view of the collected numbers.
type Summary struct {
	Answered int
	Blocked  int
	Clean    int
	Errors   int
	Latency  Percentiles
}

// Percentiles of a latency sample. All zero when there are no samples.
type Percentiles struct {
	Avg, P50, P95, P99, Max time.Duration
	N                       int
}

// Summary computes the current totals and latency percentiles.
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Summary{
		Answered: len(c.latencies),
		Blocked:  c.blocked,
		Clean:    c.clean,
		Errors:   c.errors,
		Latency:  percentiles(c.latencies),
	}
}

// Report writes a formatted summary to w.
func (c *Collector) Report(w io.Writer) {
	s := c.Summary()

	c.mu.Lock()
	elapsed := time.Since(c.startTime)
	scraper := c.scraper
	c.mu.Unlock()

	fmt.Fprintln(w, "\n=== Moderation Bench Results ===")
	fmt.Fprintf(w, "Duration:     %s\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Answered:     %d (blocked=%d clean=%d)\n", s.Answered, s.Blocked, s.Clean)
	fmt.Fprintf(w, "Errors:       %d\n", s.Errors)

	if total := s.Answered + s.Errors; total > 0 {
		fmt.Fprintf(w, "Error rate:   %.2f%%\n", float64(s.Errors)/float64(total)*100)
		if secs := elapsed.Seconds(); secs > 0 {
			fmt.Fprintf(w, "Throughput:   %.1f checks/s\n", float64(s.Answered)/secs)
		}
	}

	if s.Latency.N > 0 {
		p := s.Latency
		fmt.Fprintln(w, "\n--- Round-trip Latency ---")
		fmt.Fprintf(w, "  avg: %v  p50: %v  p95: %v  p99: %v  max: %v  (n=%d)\n",
			p.Avg.Round(time.Microsecond),
			p.P50.Round(time.Microsecond),
			p.P95.Round(time.Microsecond),
			p.P99.Round(time.Microsecond),
			p.Max.Round(time.Microsecond),
			p.N,
		)
	}

	if scraper != nil {
		scraper.Report(w)
	}
	fmt.Fprintln(w)
}

func percentiles(in []time.Duration) Percentiles {
	n := len(in)
	if n == 0 {
		return Percentiles{}
	}
	durations := append([]time.Duration(nil), in...)
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}
	return Percentiles{
		Avg: sum / time.Duration(n),
		P50: durations[n/2],
		P95: durations[int(math.Ceil(float64(n)*0.95))-1],
		P99: durations[int(math.Ceil(float64(n)*0.99))-1],
		Max: durations[n-1],
		N:   n,
	}
}
