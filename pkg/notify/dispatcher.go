// Package notify delivers alert candidates through the configured channels.
// Each channel gets its own worker, bounded queue, token-bucket pacing and
// retry budget, so a slow or down transport never stalls the others.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/cloudcost-tools/cost-sentinel/pkg/model"
	"golang.org/x/time/rate"
)

// Options tunes dispatcher behavior. Zero values pick the defaults below.
type Options struct {
	// QueueSize bounds each channel's pending job queue.
	QueueSize int
	// MaxRetries is the number of re-attempts after a failed send.
	MaxRetries int
	// RetryBackoff is the base delay between attempts, doubled each retry.
	RetryBackoff time.Duration
	// RatePerSecond paces sends per channel via a token bucket.
	RatePerSecond float64
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 16
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	} else if o.MaxRetries == 0 {
		o.MaxRetries = 2
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 500 * time.Millisecond
	}
	if o.RatePerSecond <= 0 {
		o.RatePerSecond = 1
	}
	return o
}

// Dispatcher fans an alert out to every configured channel and aggregates
// the per-channel results into a single delivery outcome.
type Dispatcher struct {
	workers []*worker
	logger  *slog.Logger
}

type job struct {
	ctx    context.Context
	alert  model.Alert
	result chan<- model.ChannelResult
}

type worker struct {
	channel    Channel
	jobs       chan job
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
}

// NewDispatcher creates a dispatcher and starts one worker per channel.
func NewDispatcher(channels []Channel, opts Options, logger *slog.Logger) *Dispatcher {
	opts = opts.withDefaults()

	d := &Dispatcher{logger: logger}
	for _, ch := range channels {
		w := &worker{
			channel:    ch,
			jobs:       make(chan job, opts.QueueSize),
			limiter:    rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1),
			maxRetries: opts.MaxRetries,
			backoff:    opts.RetryBackoff,
			logger:     logger,
		}
		d.workers = append(d.workers, w)
		go w.run()
	}
	return d
}

// Send attempts delivery on every configured channel and waits for all
// results. With zero channels configured the outcome is trivially delivered.
func (d *Dispatcher) Send(ctx context.Context, alert model.Alert) model.DeliveryOutcome {
	if len(d.workers) == 0 {
		return model.DeliveryOutcome{Status: model.StatusDelivered}
	}

	pending := make([]chan model.ChannelResult, 0, len(d.workers))
	results := make([]model.ChannelResult, 0, len(d.workers))

	for _, w := range d.workers {
		resCh := make(chan model.ChannelResult, 1)
		select {
		case w.jobs <- job{ctx: ctx, alert: alert, result: resCh}:
			pending = append(pending, resCh)
		default:
			// Queue full: fail this channel rather than block evaluation.
			results = append(results, model.ChannelResult{
				Channel: w.channel.Name(),
				Success: false,
				Error:   "channel queue full",
			})
		}
	}

	for _, resCh := range pending {
		results = append(results, <-resCh)
	}

	outcome := model.DeliveryOutcome{Channels: results, Status: aggregate(results)}
	for _, r := range results {
		if !r.Success {
			d.logger.Error("channel delivery failed",
				"channel", r.Channel,
				"alert_key", alert.Key(),
				"attempts", r.Attempts,
				"error", r.Error,
			)
		}
	}
	return outcome
}

// Close stops all channel workers. Pending jobs are still drained.
func (d *Dispatcher) Close() {
	for _, w := range d.workers {
		close(w.jobs)
	}
}

func aggregate(results []model.ChannelResult) model.DeliveryStatus {
	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	switch succeeded {
	case len(results):
		return model.StatusDelivered
	case 0:
		return model.StatusFailed
	default:
		return model.StatusPartiallyFailed
	}
}

func (w *worker) run() {
	for j := range w.jobs {
		j.result <- w.attempt(j.ctx, j.alert)
	}
}

// attempt sends one alert through the worker's channel, pacing via the token
// bucket and retrying with doubling backoff.
func (w *worker) attempt(ctx context.Context, alert model.Alert) model.ChannelResult {
	result := model.ChannelResult{Channel: w.channel.Name()}

	var lastErr error
	backoff := w.backoff
	for try := 0; try <= w.maxRetries; try++ {
		if try > 0 {
			if err := sleepCtx(ctx, backoff); err != nil {
				lastErr = err
				break
			}
			backoff *= 2
		}

		if err := w.limiter.Wait(ctx); err != nil {
			lastErr = err
			break
		}

		result.Attempts = try + 1
		if err := w.channel.Send(ctx, alert); err != nil {
			lastErr = err
			w.logger.Debug("channel send attempt failed",
				"channel", w.channel.Name(), "attempt", try+1, "error", err)
			continue
		}

		result.Success = true
		return result
	}

	if lastErr != nil {
		result.Error = lastErr.Error()
	}
	return result
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
