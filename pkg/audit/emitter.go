package audit

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"piigate/pkg/model"
)

// Emitter decouples the request path from audit I/O: TryEmit is a
// non-blocking handoff to a buffered channel drained by one worker, so a
// slow sink can never extend request latency. When the buffer is full the
// record is dropped and counted (tail drop), never queued against the
// caller.
type Emitter struct {
	sink    Sink
	ch      chan *model.AuditRecord
	log     *zap.Logger
	dropped uint64
	done    chan struct{}
}

// NewEmitter creates an emitter with the given buffer size and starts its
// worker. Call Close to flush and stop.
func NewEmitter(sink Sink, bufferSize int, log *zap.Logger) *Emitter {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	if log == nil {
		log = zap.NewNop()
	}
	e := &Emitter{
		sink: sink,
		ch:   make(chan *model.AuditRecord, bufferSize),
		log:  log,
		done: make(chan struct{}),
	}
	go e.worker()
	return e
}

// TryEmit hands off one record without blocking. Returns false when the
// buffer is full and the record was dropped.
func (e *Emitter) TryEmit(rec *model.AuditRecord) bool {
	select {
	case e.ch <- rec:
		return true
	default:
		atomic.AddUint64(&e.dropped, 1)
		return false
	}
}

// DroppedCount returns the number of records dropped so far.
func (e *Emitter) DroppedCount() uint64 {
	return atomic.LoadUint64(&e.dropped)
}

// Close stops accepting records, flushes the buffer, and waits for the
// worker to finish.
func (e *Emitter) Close() {
	close(e.ch)
	<-e.done
}

func (e *Emitter) worker() {
	defer close(e.done)
	for rec := range e.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := e.sink.Write(ctx, rec); err != nil {
			// Sink failure is logged, never surfaced to the pipeline.
			e.log.Warn("audit sink write failed",
				zap.String("document_id", rec.DocumentID),
				zap.Error(err))
		}
		cancel()
	}
}
