// Package runner drives one bounded pass over a packet source: it folds
// packets into the flow table, stops on exhaustion, budget, cancellation or
// source failure, and extracts the feature rows of every flow seen.
package runner

import (
	"Go2FlowFeatures/internal/engine/features"
	"Go2FlowFeatures/internal/engine/flowkey"
	"Go2FlowFeatures/internal/engine/flowtable"
	"Go2FlowFeatures/internal/metrics"
	"Go2FlowFeatures/internal/model"
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Options bound a run.
type Options struct {
	PacketBudget     int           // 0 means unlimited
	ProgressInterval int           // packets between progress reports, 0 disables them
	FlowTimeout      time.Duration // idle timeout, 0 disables expiry
	ExpiryInterval   int           // packets between idle sweeps
}

// Progress is a snapshot of a running pass.
type Progress struct {
	RunID       string
	Packets     uint64
	Skipped     uint64
	ActiveFlows int
	Flows       int
}

// Observer receives state transitions and progress reports. Calls are made
// from the run loop goroutine.
type Observer interface {
	StateChanged(runID string, state State)
	Progress(p Progress)
}

// Result is the outcome of a run.
type Result struct {
	RunID  string
	State  State
	Reason State // why reading stopped
	Err    error // source failure, if any

	Packets uint64 // packets read, malformed ones included
	Skipped uint64
	Flows   int

	Rows    []model.FeatureRow
	Records []model.FlowRecord // same order as Rows

	StartedAt  time.Time
	FinishedAt time.Time
}

// Payload builds the writer payload for the result.
func (res *Result) Payload() *model.Export {
	return &model.Export{
		RunID:     res.RunID,
		Timestamp: res.FinishedAt,
		State:     res.Reason.String(),
		Rows:      res.Rows,
		Records:   res.Records,
	}
}

// Runner executes runs with fixed options.
type Runner struct {
	opts      Options
	observers []Observer
	stateSet  []string
}

// New creates a Runner.
func New(opts Options, observers ...Observer) *Runner {
	if opts.FlowTimeout > 0 && opts.ExpiryInterval <= 0 {
		opts.ExpiryInterval = 10000
	}
	return &Runner{
		opts:      opts,
		observers: observers,
		stateSet:  StateNames(),
	}
}

func (r *Runner) setState(res *Result, state State) {
	res.State = state
	metrics.SetRunState(state.String(), r.stateSet)
	for _, o := range r.observers {
		o.StateChanged(res.RunID, state)
	}
}

func (r *Runner) progress(res *Result, table *flowtable.Table, logger *log.Entry) {
	p := Progress{
		RunID:       res.RunID,
		Packets:     res.Packets,
		Skipped:     res.Skipped,
		ActiveFlows: table.Active(),
		Flows:       table.Len(),
	}
	metrics.FlowTableSize.Set(float64(p.Flows))
	logger.WithFields(log.Fields{
		"packets":      p.Packets,
		"active_flows": p.ActiveFlows,
	}).Info("Processed packets")
	for _, o := range r.observers {
		o.Progress(p)
	}
}

// Run reads source until it is exhausted, fails, the packet budget is
// reached or ctx is cancelled, then extracts one feature row per flow.
// Rows are produced in every case, including source failure. The source is
// not closed.
func (r *Runner) Run(ctx context.Context, source model.PacketSource) *Result {
	res := &Result{
		RunID:     uuid.NewString(),
		State:     Idle,
		StartedAt: time.Now(),
	}
	logger := log.WithField("run_id", res.RunID)
	table := flowtable.New()

	r.setState(res, Idle)
	r.setState(res, Running)
	logger.WithFields(log.Fields{
		"packet_budget": r.opts.PacketBudget,
		"flow_timeout":  r.opts.FlowTimeout,
	}).Info("Run started")

	var latest time.Time
	res.Reason = r.loop(ctx, source, res, table, &latest, logger)

	r.setState(res, res.Reason)
	switch res.Reason {
	case SourceFailed:
		logger.WithError(res.Err).Warn("Packet source failed, exporting partial flows")
	case Cancelled:
		logger.Warn("Run cancelled, exporting partial flows")
	case BudgetReached:
		logger.WithField("packets", res.Packets).Info("Packet budget reached")
	}

	r.setState(res, Extracting)
	res.Records = table.Records()
	res.Rows = features.ExtractRecords(res.Records)
	res.Flows = len(res.Records)
	res.FinishedAt = time.Now()
	metrics.FlowTableSize.Set(float64(res.Flows))

	logger.WithFields(log.Fields{
		"reason":  res.Reason,
		"packets": res.Packets,
		"skipped": res.Skipped,
		"flows":   res.Flows,
	}).Info("Run finished")
	return res
}

func (r *Runner) loop(ctx context.Context, source model.PacketSource, res *Result, table *flowtable.Table, latest *time.Time, logger *log.Entry) State {
	for {
		if ctx.Err() != nil {
			return Cancelled
		}
		if r.opts.PacketBudget > 0 && res.Packets >= uint64(r.opts.PacketBudget) {
			return BudgetReached
		}

		pkt, err := source.Next(ctx)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return Exhausted
		case errors.Is(err, model.ErrMalformedPacket):
			res.Packets++
			res.Skipped++
			metrics.PacketsProcessed.Inc()
			metrics.PacketsSkipped.WithLabelValues("malformed").Inc()
			logger.WithError(err).Debug("Skipping packet")
			r.tick(res, table, *latest, logger)
			continue
		case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
			return Cancelled
		default:
			res.Err = err
			return SourceFailed
		}

		res.Packets++
		metrics.PacketsProcessed.Inc()
		if pkt.Timestamp.After(*latest) {
			*latest = pkt.Timestamp
		}
		table.Observe(flowkey.FromPacket(pkt), pkt.Timestamp, pkt.Length)
		r.tick(res, table, *latest, logger)
	}
}

// tick runs the packet-count driven chores: progress reports and idle sweeps.
func (r *Runner) tick(res *Result, table *flowtable.Table, now time.Time, logger *log.Entry) {
	if r.opts.ProgressInterval > 0 && res.Packets%uint64(r.opts.ProgressInterval) == 0 {
		r.progress(res, table, logger)
	}
	if r.opts.FlowTimeout > 0 && res.Packets%uint64(r.opts.ExpiryInterval) == 0 {
		if n := table.ExpireIdle(now, r.opts.FlowTimeout); n > 0 {
			metrics.FlowsExpired.Add(float64(n))
			logger.WithField("expired", n).Debug("Retired idle flows")
		}
	}
}
