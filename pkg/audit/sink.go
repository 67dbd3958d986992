package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"piigate/pkg/model"
)

// Sink receives completed audit records. Persistence, ordering and
// retention are the sink's concern; the pipeline only hands records off.
type Sink interface {
	Write(ctx context.Context, rec *model.AuditRecord) error
}

// ConsoleSink writes records to stdout as JSON lines.
type ConsoleSink struct{}

func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{}
}

func (c *ConsoleSink) Write(_ context.Context, rec *model.AuditRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(os.Stdout, "%s\n", b)
	return err
}

// FanOutSink writes to multiple sinks in parallel.
type FanOutSink struct {
	sinks []Sink
}

func NewFanOutSink(sinks ...Sink) *FanOutSink {
	return &FanOutSink{sinks: sinks}
}

func (f *FanOutSink) Write(ctx context.Context, rec *model.AuditRecord) error {
	var wg sync.WaitGroup
	errs := make([]error, len(f.sinks))

	for i, s := range f.sinks {
		wg.Add(1)
		go func(idx int, s Sink) {
			defer wg.Done()
			errs[idx] = s.Write(ctx, rec)
		}(i, s)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
