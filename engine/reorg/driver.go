package reorg

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/shieldfold/shieldnode/internal/component"
)

// DriverConfig configures a Driver's polling behaviour.
type DriverConfig struct {
	// PollInterval is the delay before the first Advance call and after any
	// call that made progress (CursorChanged true).
	PollInterval time.Duration
	// BackoffBase is the initial delay used to back off after a pass
	// reports no progress (CursorChanged false). Result does not tell a
	// disjoint fork apart from a head that has not moved, so both back off
	// the same way; the delay resets to PollInterval on the next progress.
	BackoffBase time.Duration
	// BackoffMax caps the exponential backoff delay.
	BackoffMax time.Duration
	// SummaryLogInterval is how often the Driver logs a reorg-depth
	// summary, when the Processor's Metrics is a *PromMetrics. Zero
	// disables periodic summary logging.
	SummaryLogInterval time.Duration
}

// DefaultDriverConfig returns reasonable polling defaults.
func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		PollInterval:       time.Second,
		BackoffBase:        500 * time.Millisecond,
		BackoffMax:         30 * time.Second,
		SummaryLogInterval: time.Minute,
	}
}

// Driver wraps a Processor in a managed lifecycle, calling Advance on a
// schedule so a caller doesn't have to hand-roll a polling loop. It drives
// exactly one Processor; running several chains in parallel remains the
// caller's responsibility.
//
// Driver does not persist the Processor's cursor across restarts; that
// remains the caller's responsibility too.
type Driver struct {
	*component.ComponentManager
	log       zerolog.Logger
	processor *Processor
	config    DriverConfig
}

// NewDriver builds a Driver around processor.
func NewDriver(log zerolog.Logger, processor *Processor, config DriverConfig) *Driver {
	d := &Driver{
		log:       log.With().Str("engine", "reorg_driver").Logger(),
		processor: processor,
		config:    config,
	}
	d.ComponentManager = component.NewComponentManagerBuilder().
		AddWorker(d.run).
		Build()
	return d
}

func (d *Driver) run(ctx component.SignalerContext, ready component.ReadyFunc) {
	ready()

	backoff := retry.NewExponential(d.config.BackoffBase)
	backoff = retry.WithCappedDuration(d.config.BackoffMax, backoff)
	backoff = retry.WithJitterPercent(10, backoff)

	var summaryTick <-chan time.Time
	if d.config.SummaryLogInterval > 0 {
		ticker := time.NewTicker(d.config.SummaryLogInterval)
		defer ticker.Stop()
		summaryTick = ticker.C
	}

	delay := d.config.PollInterval
	for {
		select {
		case <-ctx.Done():
			return
		case <-summaryTick:
			d.logDepthSummary()
			continue
		case <-time.After(delay):
		}

		result, err := d.processor.Advance(ctx)
		if err != nil {
			d.log.Error().Err(err).Msg("advance failed")
			ctx.Throw(err)
			return
		}

		if result.CursorChanged {
			delay = d.config.PollInterval
			backoff = retry.NewExponential(d.config.BackoffBase)
			backoff = retry.WithCappedDuration(d.config.BackoffMax, backoff)
			backoff = retry.WithJitterPercent(10, backoff)
			continue
		}

		next, stop := backoff.Next()
		if stop {
			next = d.config.BackoffMax
		}
		delay = next
	}
}

// logDepthSummary logs a mean/median/p95 reorg-depth summary if the
// Processor's Metrics is Prometheus-backed. It is a no-op for NopMetrics
// or any other Metrics implementation.
func (d *Driver) logDepthSummary() {
	pm, ok := d.processor.Metrics().(*PromMetrics)
	if !ok {
		return
	}
	mean, median, p95, err := pm.ReorgDepthSummary()
	if err != nil {
		d.log.Warn().Err(err).Msg("could not compute reorg depth summary")
		return
	}
	d.log.Info().
		Float64("mean", mean).
		Float64("median", median).
		Float64("p95", p95).
		Msg("reorg depth summary")
}

var _ component.Component = (*Driver)(nil)
