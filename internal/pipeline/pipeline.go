// Package pipeline drains per-item queues of file-transfer tasks. One drain
// loop runs per item key, tasks are strictly FIFO with in-place retry, and
// every transfer goes through the circuit breaker wrapping the retry executor.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/niteshatinception/for-monday/internal/breaker"
	"github.com/niteshatinception/for-monday/internal/config"
	"github.com/niteshatinception/for-monday/internal/errclass"
	"github.com/niteshatinception/for-monday/internal/events"
	"github.com/niteshatinception/for-monday/internal/metrics"
	"github.com/niteshatinception/for-monday/internal/models"
	"github.com/niteshatinception/for-monday/internal/retry"
)

// TransferFunc performs one download-validate-upload cycle and returns the
// terminal outcome (completed or notified) or an error.
type TransferFunc func(ctx context.Context, task *models.TransferTask) (string, error)

const (
	defaultPollInterval = 500 * time.Millisecond

	// maxCircuitWait caps how long the loop sleeps on a circuit rejection
	// before re-checking; a rejection never consumes the task's retry budget.
	maxCircuitWait = 10 * time.Second
)

type Pipeline struct {
	cfg      *config.Config
	tracker  *metrics.Tracker
	bus      *events.EventBus
	transfer TransferFunc
	logger   *zerolog.Logger

	reg  *registry
	ctx  context.Context
	poll time.Duration

	// One breaker per scenario, built lazily from the scenario's thresholds.
	bmu      sync.Mutex
	breakers map[string]*breaker.Breaker

	// Swappable in tests.
	sleep func(time.Duration)
	now   func() time.Time
}

func New(cfg *config.Config, transfer TransferFunc, tracker *metrics.Tracker, bus *events.EventBus, logger *zerolog.Logger) *Pipeline {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	base := logger.With().Str("component", "pipeline").Logger()

	return &Pipeline{
		cfg:      cfg,
		tracker:  tracker,
		bus:      bus,
		transfer: transfer,
		logger:   &base,
		reg:      newRegistry(),
		ctx:      context.Background(),
		poll:     defaultPollInterval,
		breakers: make(map[string]*breaker.Breaker),
		sleep:    time.Sleep,
		now:      time.Now,
	}
}

// breakerFor returns the scenario's circuit breaker, creating it from the
// scenario's threshold block on first use.
func (p *Pipeline) breakerFor(scenario string) *breaker.Breaker {
	p.bmu.Lock()
	defer p.bmu.Unlock()

	if br, ok := p.breakers[scenario]; ok {
		return br
	}

	bc := p.cfg.Scenario(scenario).Breaker
	br := breaker.New(breaker.Config{
		FailureThreshold: bc.FailureThreshold,
		SuccessThreshold: bc.SuccessThreshold,
		ResetTimeout:     bc.ResetTimeout.Std(),
		Cooldown:         bc.Cooldown.Std(),
	}, p.logger)
	br.OnOpen(func(key string, remaining time.Duration) {
		metrics.IncCircuitOpen(key)
		_ = p.bus.PublishJSON(events.EventCircuitOpened, events.CircuitEventPayload{
			Key:       key,
			Remaining: remaining,
		})
	})
	p.breakers[scenario] = br
	return br
}

// Start binds the pipeline's background loops to ctx. Drain loops started
// afterwards stop retrying once ctx is cancelled.
func (p *Pipeline) Start(ctx context.Context) {
	p.ctx = ctx
}

// Enqueue appends tasks to their item queues and kicks a drain loop for each
// item that does not already have one running. A kick for a busy item is a
// no-op. Returns the number of tasks queued.
func (p *Pipeline) Enqueue(tasks []*models.TransferTask) int {
	queued := 0
	for _, task := range tasks {
		if task.ID == "" {
			task.ID = uuid.NewString()
		}
		task.EnqueuedAt = p.now()
		key := task.ItemKey()

		created, claimed := p.reg.enqueue(task, task.EnqueuedAt)
		queued++

		_ = p.bus.PublishJSON(events.EventTransferQueued, events.TransferEventPayload{
			TransferID: task.ID,
			ItemID:     task.SourceItemID,
			BoardID:    task.SourceBoard,
			AssetID:    task.File.AssetID,
			FileName:   task.File.Name,
			Scenario:   task.Scenario,
		})

		if created {
			sc := p.cfg.Scenario(task.Scenario)
			scenario := task.Scenario
			p.reg.setCeiling(key, time.AfterFunc(sc.DrainCeiling.Std(), func() {
				p.forceTeardown(key, scenario)
			}))
		}
		if claimed {
			go p.drain(key, task.Scenario)
		}
	}
	return queued
}

// Wait blocks until the item's drain loop has fully torn down its state. Used
// by the MOVE flow before clearing the source column.
func (p *Pipeline) Wait(ctx context.Context, key string) error {
	for p.reg.active(key) {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.sleep(p.poll)
	}
	return nil
}

// Snapshot lists all in-flight items.
func (p *Pipeline) Snapshot() []ItemStatus {
	return p.reg.snapshot()
}

// CircuitSnapshot lists circuit monitors across all scenarios for the status
// endpoint.
func (p *Pipeline) CircuitSnapshot() []breaker.Monitor {
	p.bmu.Lock()
	defer p.bmu.Unlock()

	var out []breaker.Monitor
	for _, br := range p.breakers {
		out = append(out, br.Snapshot()...)
	}
	return out
}

func (p *Pipeline) drain(key, scenario string) {
	sc := p.cfg.Scenario(scenario)
	logger := p.logger.With().Str("item", key).Str("scenario", scenario).Logger()
	start := p.now()

	logger.Info().Msg("drain loop started")

	for {
		if !p.reg.active(key) {
			logger.Warn().Msg("item state cleared externally, drain loop exiting")
			return
		}
		if p.ctx.Err() != nil {
			p.teardown(key, scenario, start, &logger)
			return
		}

		task := p.reg.peek(key)
		if task == nil {
			st, done := p.reg.finish(key)
			if !done {
				// Tasks arrived between peek and finish; keep draining.
				continue
			}
			p.summarize(key, scenario, st, start, &logger)
			return
		}

		if !p.waitForSlot(key, scenario, sc) {
			return
		}

		if p.reg.isProcessed(key, task.File.AssetID) {
			logger.Warn().Int64("asset_id", task.File.AssetID).Msg("duplicate task dropped")
			p.reg.pop(key)
			p.reg.release(scenario)
			continue
		}

		// Fixed smoothing delay between tasks to soften downstream load.
		p.sleep(sc.InterTaskDelay.Std())

		taskStart := p.now()
		outcome, err := p.execute(key, sc, task)
		duration := p.now().Sub(taskStart)
		p.reg.release(scenario)

		switch {
		case err == nil:
			p.reg.pop(key)
			p.reg.markProcessed(key, task.File.AssetID)
			p.finishTask(task, outcome, "", duration)

		case breaker.IsOpen(err):
			// Rejected before the operation ran; the retry budget is untouched
			// and the task stays at the head.
			var open *breaker.OpenError
			wait := p.poll
			if errors.As(err, &open) && open.Remaining > 0 {
				wait = min(open.Remaining, maxCircuitWait)
			}
			logger.Warn().Err(err).Dur("wait", wait).Msg("circuit open, pausing drain")
			p.sleep(wait)

		default:
			kind := errclass.KindOf(err)
			if !errclass.Retryable(kind) {
				p.reg.pop(key)
				p.finishTask(task, models.OutcomeDropped, kind.String()+": "+err.Error(), duration)
				continue
			}

			task.RetryCount++
			if task.RetryCount >= sc.MaxTaskRetries {
				p.reg.pop(key)
				p.finishTask(task, models.OutcomeDropped, "retries exhausted: "+err.Error(), duration)
				continue
			}

			backoff := taskBackoff(kind, task.RetryCount)
			logger.Warn().Err(err).
				Str("kind", kind.String()).
				Int("retry", task.RetryCount).
				Dur("backoff", backoff).
				Msg("task failed, retrying in place")
			p.sleep(backoff)
		}
	}
}

// waitForSlot polls until a concurrency slot and a rate-window admission are
// both available. Returns false when the item was torn down while waiting.
func (p *Pipeline) waitForSlot(key, scenario string, sc config.ScenarioConfig) bool {
	for !p.reg.tryAcquire(scenario, sc.Concurrency) {
		p.sleep(p.poll)
		if !p.reg.active(key) {
			return false
		}
	}

	window := p.reg.window(scenario, sc.WindowSize.Std(), sc.WindowLimit)
	for !window.Allow(key) {
		p.sleep(p.poll)
		if !p.reg.active(key) {
			p.reg.release(scenario)
			return false
		}
	}
	return true
}

// execute runs the transfer through breaker(retry(op)). The breaker gates the
// whole retried call: circuit state reflects sustained health, retries absorb
// transient blips inside one call.
func (p *Pipeline) execute(key string, sc config.ScenarioConfig, task *models.TransferTask) (string, error) {
	if task.Token == "" {
		task.Token = p.reg.credential(key)
	}

	var outcome string
	err := p.breakerFor(task.Scenario).Execute(p.ctx, "file:"+key, func(ctx context.Context) error {
		var err error
		outcome, err = retry.Execute(ctx, func(ctx context.Context) (string, error) {
			return p.transfer(ctx, task)
		}, retry.Options{
			MaxRetries:   sc.Retry.MaxRetries,
			BaseDelay:    sc.Retry.BaseDelay.Std(),
			MaxDelay:     sc.Retry.MaxDelay.Std(),
			JitterFactor: sc.Retry.JitterFactor,
			Sleep:        p.sleep,
		})
		return err
	})
	return outcome, err
}

func (p *Pipeline) finishTask(task *models.TransferTask, outcome, detail string, duration time.Duration) {
	p.tracker.Track(task.Scenario, "transfer", outcome != models.OutcomeDropped, duration)
	metrics.IncTransfer(task.Scenario, outcome)

	event := events.EventTransferCompleted
	switch outcome {
	case models.OutcomeDropped:
		event = events.EventTransferDropped
	case models.OutcomeNotified:
		event = events.EventTransferNotified
	}
	_ = p.bus.PublishJSON(event, events.TransferEventPayload{
		TransferID: task.ID,
		ItemID:     task.SourceItemID,
		BoardID:    task.SourceBoard,
		AssetID:    task.File.AssetID,
		FileName:   task.File.Name,
		Scenario:   task.Scenario,
		Outcome:    outcome,
		Detail:     detail,
		Attempts:   task.RetryCount + 1,
		Duration:   duration,
	})

	entry := p.logger.Info()
	if outcome == models.OutcomeDropped {
		entry = p.logger.Error()
	}
	entry.Str("transfer_id", task.ID).
		Str("file", task.File.Name).
		Str("outcome", outcome).
		Str("detail", detail).
		Msg("task finished")
}

// teardown is the ctx-cancelled exit: state is cleared without a summary of a
// completed drain.
func (p *Pipeline) teardown(key, scenario string, start time.Time, logger *zerolog.Logger) {
	st, ok := p.reg.forceRemove(key)
	if !ok {
		return
	}
	logger.Info().Int("processed", st.processed).Msg("drain loop stopped by shutdown")
	p.publishDrainFinished(key, scenario, st.processed, p.now().Sub(start))
}

func (p *Pipeline) summarize(key, scenario string, st *itemState, start time.Time, logger *zerolog.Logger) {
	elapsed := p.now().Sub(start)
	p.tracker.Track(scenario, "drain", true, elapsed)
	logger.Info().
		Int("processed", st.processed).
		Dur("elapsed", elapsed).
		Msg("drain loop finished, item state torn down")
	p.publishDrainFinished(key, scenario, st.processed, elapsed)
}

// forceTeardown clears a stuck item's state at the wall-clock ceiling so a
// crashed loop cannot hold the busy flag forever.
func (p *Pipeline) forceTeardown(key, scenario string) {
	st, ok := p.reg.forceRemove(key)
	if !ok {
		return
	}
	p.logger.Error().
		Str("item", key).
		Int("processed", st.processed).
		Msg("drain ceiling reached, item state force-cleared")
	p.publishDrainFinished(key, scenario, st.processed, p.now().Sub(st.startedAt))
}

func (p *Pipeline) publishDrainFinished(key, scenario string, processed int, elapsed time.Duration) {
	_ = p.bus.PublishJSON(events.EventDrainFinished, events.DrainEventPayload{
		ItemKey:   key,
		Scenario:  scenario,
		Processed: processed,
		Elapsed:   elapsed,
	})
}

// taskBackoff is the drain-loop level delay before re-running a failed head
// task. Complexity-budget failures ramp 8s/12s/15s; everything else doubles
// from 2s, capped at 10s.
func taskBackoff(kind errclass.Kind, attempt int) time.Duration {
	if kind == errclass.KindComplexity {
		ramp := []time.Duration{8 * time.Second, 12 * time.Second, 15 * time.Second}
		if attempt > len(ramp) {
			attempt = len(ramp)
		}
		return ramp[attempt-1]
	}

	d := 2 * time.Second << (attempt - 1)
	if d > 10*time.Second || d <= 0 {
		d = 10 * time.Second
	}
	return d
}
