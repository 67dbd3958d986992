package audit

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"

	"piigate/pkg/model"
)

// captureSink records writes; optionally blocks until released.
type captureSink struct {
	mu      sync.Mutex
	records []*model.AuditRecord

	entered chan struct{}
	release chan struct{}
}

func (c *captureSink) Write(_ context.Context, rec *model.AuditRecord) error {
	if c.entered != nil {
		c.entered <- struct{}{}
		<-c.release
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
	return nil
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

func TestEmitter_DeliversRecords(t *testing.T) {
	sink := &captureSink{}
	e := NewEmitter(sink, 16, zap.NewNop())

	for i := 0; i < 5; i++ {
		if !e.TryEmit(&model.AuditRecord{DocumentID: "doc"}) {
			t.Fatalf("TryEmit() = false with free buffer")
		}
	}
	e.Close()

	if sink.count() != 5 {
		t.Errorf("delivered = %d, want 5", sink.count())
	}
	if e.DroppedCount() != 0 {
		t.Errorf("dropped = %d, want 0", e.DroppedCount())
	}
}

func TestEmitter_TailDropsWhenFull(t *testing.T) {
	sink := &captureSink{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	e := NewEmitter(sink, 1, zap.NewNop())

	// First record: worker picks it up and blocks inside the sink.
	if !e.TryEmit(&model.AuditRecord{DocumentID: "r1"}) {
		t.Fatal("first TryEmit() = false")
	}
	<-sink.entered

	// Second record parks in the buffer; third has nowhere to go.
	if !e.TryEmit(&model.AuditRecord{DocumentID: "r2"}) {
		t.Fatal("second TryEmit() = false, buffer should hold it")
	}
	if e.TryEmit(&model.AuditRecord{DocumentID: "r3"}) {
		t.Fatal("third TryEmit() = true, want tail drop")
	}
	if e.DroppedCount() != 1 {
		t.Errorf("dropped = %d, want 1", e.DroppedCount())
	}

	close(sink.release)
	<-sink.entered // r2 enters once r1 finishes
	e.Close()

	if sink.count() != 2 {
		t.Errorf("delivered = %d, want 2", sink.count())
	}
}

func TestFanOutSink(t *testing.T) {
	a, b := &captureSink{}, &captureSink{}
	f := NewFanOutSink(a, b)

	if err := f.Write(context.Background(), &model.AuditRecord{DocumentID: "x"}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if a.count() != 1 || b.count() != 1 {
		t.Errorf("fanout delivered a=%d b=%d, want 1 and 1", a.count(), b.count())
	}
}
