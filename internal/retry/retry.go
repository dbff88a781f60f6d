// Package retry provides a bounded retry executor for calls against the
// platform API. Backoff is exponential for generic failures and linear for
// complexity-budget errors, both with symmetric jitter.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/niteshatinception/for-monday/internal/errclass"
)

type Options struct {
	MaxRetries   int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	JitterFactor float64

	// CheckPublicURL treats a successful result that lacks a public URL as a
	// retryable outcome: the platform resolves asset URLs asynchronously and a
	// fresh asset may come back without one.
	CheckPublicURL bool

	// Sleep is swappable in tests. Defaults to time.Sleep.
	Sleep func(time.Duration)
}

// URLCarrier is implemented by results that may carry a time-limited public
// URL, checked when Options.CheckPublicURL is set.
type URLCarrier interface {
	HasPublicURL() bool
}

func (o Options) withDefaults() Options {
	if o.MaxRetries == 0 {
		o.MaxRetries = 5
	}
	if o.BaseDelay == 0 {
		o.BaseDelay = time.Second
	}
	if o.MaxDelay == 0 {
		o.MaxDelay = 30 * time.Second
	}
	if o.JitterFactor == 0 {
		o.JitterFactor = 0.2
	}
	if o.Sleep == nil {
		o.Sleep = time.Sleep
	}
	return o
}

// Execute runs op up to 1+MaxRetries times. A started attempt always runs to
// completion; the retry decision is made only after it returns. Exhausting
// retries re-raises the last error.
func Execute[T any](ctx context.Context, op func(context.Context) (T, error), opts Options) (T, error) {
	opts = opts.withDefaults()

	var result T
	var lastErr error

	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := Delay(attempt, errclass.KindOf(lastErr), opts)
			opts.Sleep(delay)
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		var err error
		result, err = op(ctx)
		if err == nil {
			if opts.CheckPublicURL && missingPublicURL(result) {
				lastErr = errclass.New(errclass.KindMissingURL, "asset has no public url yet")
				continue
			}
			return result, nil
		}
		lastErr = err

		// Non-retryable failures surface without burning the remaining budget.
		if !errclass.Retryable(errclass.KindOf(err)) {
			break
		}
	}

	return result, lastErr
}

func missingPublicURL(v any) bool {
	carrier, ok := v.(URLCarrier)
	return ok && !carrier.HasPublicURL()
}

// Delay computes the backoff before retry attempt n (1-based). Complexity
// errors ramp linearly; everything else doubles.
func Delay(attempt int, kind errclass.Kind, opts Options) time.Duration {
	opts = opts.withDefaults()
	if attempt < 1 {
		attempt = 1
	}

	var base time.Duration
	if kind == errclass.KindComplexity {
		base = time.Duration(float64(opts.BaseDelay) * 2 * float64(attempt))
	} else {
		base = time.Duration(float64(opts.BaseDelay) * math.Pow(2, float64(attempt)))
	}
	if base > opts.MaxDelay {
		base = opts.MaxDelay
	}

	jitter := (rand.Float64()*2 - 1) * opts.JitterFactor * float64(base)
	d := base + time.Duration(jitter)
	if d < 0 {
		d = 0
	}
	return d
}
