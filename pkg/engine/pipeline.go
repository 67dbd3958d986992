package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"piigate/pkg/config"
	"piigate/pkg/metrics"
	"piigate/pkg/model"
)

// State is the pipeline's per-invocation state machine position. Terminal
// states are StateForwarding (success) and StateDegraded (fail-closed
// fallback); every other state can only move forward or degrade.
type State string

const (
	StateReceived   State = "RECEIVED"
	StateExtracting State = "EXTRACTING"
	StateDetecting  State = "DETECTING"
	StateRedacting  State = "REDACTING"
	StateForwarding State = "FORWARDING"
	StateDegraded   State = "DEGRADED"
)

// Recorder is the audit handoff the pipeline uses. TryEmit must never
// block; a false return means the record was dropped.
type Recorder interface {
	TryEmit(rec *model.AuditRecord) bool
}

// Result is the outcome of one invocation. Body is nil only for the
// reject fallback; it is never the raw unredacted input on any path a
// detection or error was involved in.
type Result struct {
	Body          []byte
	Outcome       model.Outcome
	Status        int // hosting adapter status hint for OutcomeRejected
	DocumentID    string
	Detections    []model.Detection
	Combinatorial bool
	Reason        string
	Latency       time.Duration
}

// Pipeline orchestrates Walker → Matcher → combinatorial evaluation →
// Redactor per request under a latency budget. Invocations share nothing
// mutable except the snapshot pointer; each request owns its document for
// the duration of processing.
type Pipeline struct {
	snapshot atomic.Pointer[Snapshot]
	audit    Recorder
	log      *zap.Logger
	metrics  *metrics.PipelineMetrics
}

// NewPipeline creates a pipeline with an initial snapshot. audit and m
// may be nil (no audit handoff / no instrumentation).
func NewPipeline(snap *Snapshot, audit Recorder, log *zap.Logger, m *metrics.PipelineMetrics) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Pipeline{audit: audit, log: log, metrics: m}
	p.snapshot.Store(snap)
	return p
}

// UpdateSnapshot hot-swaps the compiled configuration. In-flight requests
// finish on the snapshot they started with.
func (p *Pipeline) UpdateSnapshot(snap *Snapshot) {
	p.snapshot.Store(snap)
	p.log.Info("pipeline: config snapshot hot-swapped")
}

// Snapshot returns the currently active snapshot.
func (p *Pipeline) Snapshot() *Snapshot {
	return p.snapshot.Load()
}

// Process runs one payload through the pipeline. On success the result
// carries the sanitized document; any per-request failure (decode, depth,
// budget, panic) degrades into the configured fail-closed fallback instead
// of propagating. The only error return is caller cancellation, which
// aborts with no output and no audit record.
func (p *Pipeline) Process(ctx context.Context, payload []byte) (*Result, error) {
	snap := p.snapshot.Load()
	start := time.Now()
	docID := uuid.NewString()
	state := StateReceived

	bctx, cancel := context.WithTimeout(ctx, snap.budget)
	defer cancel()

	res, err := p.run(bctx, snap, payload, docID, &state)
	if err == nil {
		p.finish(res, start)
		return res, nil
	}

	// Caller went away: abort at the boundary, emit nothing. A partial
	// detect-only state must not produce output or an audit record.
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	res = p.degrade(snap, payload, docID, state, err)
	p.finish(res, start)
	return res, nil
}

// run executes the forward path. Any returned error sends the invocation
// to the DEGRADED terminal via the caller.
func (p *Pipeline) run(ctx context.Context, snap *Snapshot, payload []byte, docID string, state *State) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal error: %v", r)
		}
	}()

	*state = StateExtracting
	fields, err := Walk(payload, snap.maxDepth)
	if err != nil {
		return nil, err
	}
	if err := budgetErr(ctx); err != nil {
		return nil, err
	}

	*state = StateDetecting
	detections, err := p.detect(ctx, snap, fields)
	if err != nil {
		return nil, err
	}
	comb := evaluateCombination(detections, snap.weights, snap.riskThreshold)
	if err := budgetErr(ctx); err != nil {
		return nil, err
	}

	*state = StateRedacting
	fieldText := make(map[string]string, len(fields))
	for _, f := range fields {
		fieldText[f.Path] = f.Text
	}
	body, err := snap.redactor.Redact(payload, detections, comb, fieldText)
	if err != nil {
		return nil, err
	}
	if err := budgetErr(ctx); err != nil {
		return nil, err
	}

	*state = StateForwarding
	return &Result{
		Body:          body,
		Outcome:       model.OutcomeForwarded,
		DocumentID:    docID,
		Detections:    detections,
		Combinatorial: comb.Flagged,
	}, nil
}

// detect fans field-level detection out across goroutines (fields share no
// mutable state) and merges results back in field order, so the outcome is
// deterministic regardless of scheduling. If the budget expires before all
// fields finish, the stragglers are abandoned and the invocation degrades.
func (p *Pipeline) detect(ctx context.Context, snap *Snapshot, fields []Field) ([]model.Detection, error) {
	results := make([][]model.Span, len(fields))
	errs := make([]error, len(fields))
	var wg sync.WaitGroup
	for i, f := range fields {
		wg.Add(1)
		go func(i int, f Field) {
			defer wg.Done()
			// Goroutines escape run's recover; a panicking detector
			// must degrade the invocation, not crash the process.
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("internal error: detector panicked on field %s: %v", f.Path, r)
				}
			}()
			results[i] = snap.detectField(f)
		}(i, f)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return nil, budgetErr(ctx)
	}

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	var detections []model.Detection
	for i, f := range fields {
		if len(results[i]) == 0 {
			continue
		}
		detections = append(detections, model.Detection{Path: f.Path, Spans: results[i]})
	}
	return detections, nil
}

// degrade builds the fail-closed fallback result. The security contract
// ("prevent leakage") mandates fail-closed over fail-open: a possibly
// unredacted payload is never forwarded.
func (p *Pipeline) degrade(snap *Snapshot, payload []byte, docID string, state State, reason error) *Result {
	p.log.Warn("pipeline degraded",
		zap.String("document_id", docID),
		zap.String("state", string(state)),
		zap.Error(reason))

	res := &Result{
		DocumentID: docID,
		Reason:     reason.Error(),
	}
	switch snap.fallback {
	case config.FallbackRedactAll:
		res.Outcome = model.OutcomeRedactedAll
		res.Body = RedactAll(payload, snap.maxDepth)
	default:
		res.Outcome = model.OutcomeRejected
		res.Status = snap.fallbackStatus
	}
	return res
}

// finish stamps latency, records metrics, and hands the audit record off.
// Only the FORWARDING and DEGRADED terminals reach here.
func (p *Pipeline) finish(res *Result, start time.Time) {
	res.Latency = time.Since(start)

	if p.metrics != nil {
		p.metrics.RecordRequest(string(res.Outcome), res.Latency)
		for _, det := range res.Detections {
			for _, sp := range det.Spans {
				p.metrics.RecordSpan(string(sp.Type))
			}
		}
		if res.Combinatorial {
			p.metrics.CombinatorialTotal.Inc()
		}
	}

	if p.audit == nil {
		return
	}
	rec := &model.AuditRecord{
		Timestamp:     time.Now().UTC(),
		DocumentID:    res.DocumentID,
		Outcome:       res.Outcome,
		Detections:    res.Detections,
		Combinatorial: res.Combinatorial,
		Reason:        res.Reason,
		LatencyMS:     float64(res.Latency) / float64(time.Millisecond),
	}
	if !p.audit.TryEmit(rec) {
		if p.metrics != nil {
			p.metrics.AuditDroppedTotal.Inc()
		}
		p.log.Warn("audit record dropped", zap.String("document_id", res.DocumentID))
	}
}

// budgetErr maps a done context to the pipeline error taxonomy.
func budgetErr(ctx context.Context) error {
	switch ctx.Err() {
	case nil:
		return nil
	case context.DeadlineExceeded:
		return ErrBudgetExceeded
	default:
		return ctx.Err()
	}
}
