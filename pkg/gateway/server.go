// Package gateway is the HTTP hosting adapter around the interceptor
// core: raw bytes in, sanitized bytes or a fail-closed response out.
// Other hostings (gRPC interceptor, mesh filter) would wrap the same
// Pipeline.Process boundary.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"piigate/pkg/engine"
	"piigate/pkg/model"
)

// maxPayloadBytes caps the request body; payloads past this are refused
// before any parsing happens.
const maxPayloadBytes = 4 << 20

// OutcomeHeader tells the caller which terminal the invocation reached.
const OutcomeHeader = "X-Pii-Outcome"

type Server struct {
	pipeline *engine.Pipeline
	log      *zap.Logger
	srv      *http.Server
}

func NewServer(addr string, pipeline *engine.Pipeline, log *zap.Logger) *Server {
	s := &Server{pipeline: pipeline, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/intercept", s.handleIntercept)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving. Blocking call.
func (s *Server) Start() error {
	s.log.Info("gateway: listening", zap.String("addr", s.srv.Addr))
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleIntercept(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	res, err := s.pipeline.Process(r.Context(), body)
	if err != nil {
		// Caller cancellation: nothing to send, nothing was forwarded.
		s.log.Debug("gateway: request aborted", zap.Error(err))
		return
	}

	w.Header().Set(OutcomeHeader, string(res.Outcome))
	switch res.Outcome {
	case model.OutcomeRejected:
		// The reason can carry internal detail (panic text, detector
		// state); it stays in the log and audit record, the caller gets
		// a fixed message.
		s.log.Info("gateway: request rejected",
			zap.String("document_id", res.DocumentID),
			zap.String("reason", res.Reason))
		s.writeError(w, res.Status, "request rejected")
	default:
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Length", strconv.Itoa(len(res.Body)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(res.Body)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) writeError(w http.ResponseWriter, status int, reason string) {
	if status == 0 {
		status = http.StatusUnprocessableEntity
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": reason})
}
