package bench

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/whisper/modbot/internal/moderation"
)

// Transport carries check requests to the moderator and results back.
type Transport interface {
	PublishModerationRequest(data []byte) error
	SubscribeModerationResults(handler func(requestID string, data []byte)) error
}

// Config controls a bench run.
type Config struct {
	Requests    int           // total checks to send
	Concurrency int           // maximum checks in flight
	Timeout     time.Duration // how long to wait for each result
	Source      string        // request source label
}

// DefaultConfig returns a small run suitable for a local moderator.
func DefaultConfig() Config {
	return Config{
		Requests:    1000,
		Concurrency: 50,
		Timeout:     5 * time.Second,
		Source:      "bench",
	}
}

// ErrNoTexts is returned by Run when the corpus is empty.
var ErrNoTexts = errors.New("bench: empty corpus")

// Runner sends checks and matches results to their requests.
type Runner struct {
	transport Transport
	collector *Collector

	mu      sync.Mutex
	pending map[string]chan moderation.ModerationResult
}

// NewRunner subscribes to results on t and records into c.
func NewRunner(t Transport, c *Collector) (*Runner, error) {
	r := &Runner{
		transport: t,
		collector: c,
		pending:   make(map[string]chan moderation.ModerationResult),
	}
	if err := t.SubscribeModerationResults(r.onResult); err != nil {
		return nil, err
	}
	return r, nil
}

// Run sends cfg.Requests checks cycling through texts and blocks until each
// is answered, timed out or ctx is done.
func (r *Runner) Run(ctx context.Context, cfg Config, texts []string) error {
	if len(texts) == 0 {
		return ErrNoTexts
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	sem := make(chan struct{}, cfg.Concurrency)
	var wg sync.WaitGroup

	for i := 0; i < cfg.Requests; i++ {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(text string) {
			defer wg.Done()
			defer func() { <-sem }()
			r.checkOne(ctx, cfg, text)
		}(texts[i%len(texts)])
	}

	wg.Wait()
	return nil
}

func (r *Runner) checkOne(ctx context.Context, cfg Config, text string) {
	id := uuid.NewString()
	ch := make(chan moderation.ModerationResult, 1)

	r.mu.Lock()
	r.pending[id] = ch
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.pending, id)
		r.mu.Unlock()
	}()

	data, err := json.Marshal(moderation.ModerationRequest{
		RequestID: id,
		Source:    cfg.Source,
		Text:      text,
		Ts:        time.Now().Unix(),
	})
	if err != nil {
		r.collector.AddError()
		return
	}

	start := time.Now()
	if err := r.transport.PublishModerationRequest(data); err != nil {
		r.collector.AddError()
		return
	}

	timer := time.NewTimer(cfg.Timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		r.collector.AddResult(time.Since(start), res.Blocked)
	case <-timer.C:
		r.collector.AddError()
	case <-ctx.Done():
		r.collector.AddError()
	}
}

func (r *Runner) onResult(requestID string, data []byte) {
	r.mu.Lock()
	ch, ok := r.pending[requestID]
	r.mu.Unlock()
	if !ok {
		return
	}

	var res moderation.ModerationResult
	if err := json.Unmarshal(data, &res); err != nil {
		return
	}
	select {
	case ch <- res:
	default:
	}
}
