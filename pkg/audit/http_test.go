package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"piigate/pkg/model"
)

func TestHTTPSink_PostsRecord(t *testing.T) {
	var got model.AuditRecord
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL, map[string]string{"Authorization": "Bearer t"})
	rec := &model.AuditRecord{DocumentID: "doc-1", Outcome: model.OutcomeForwarded}
	if err := sink.Write(context.Background(), rec); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if got.DocumentID != "doc-1" {
		t.Errorf("document_id = %q, want doc-1", got.DocumentID)
	}
	if auth != "Bearer t" {
		t.Errorf("auth header = %q", auth)
	}
}

func TestHTTPSink_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL, nil)
	if err := sink.Write(context.Background(), &model.AuditRecord{DocumentID: "x"}); err == nil {
		t.Fatalf("Write() = nil, want error on 500")
	}
}

func TestHTTPSink_BreakerOpensOnConsecutiveFailures(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL, nil)
	for i := 0; i < 10; i++ {
		_ = sink.Write(context.Background(), &model.AuditRecord{DocumentID: "x"})
	}
	// After 5 consecutive failures the breaker opens and stops dialing.
	if calls >= 10 {
		t.Errorf("breaker never opened: %d upstream calls", calls)
	}
}
