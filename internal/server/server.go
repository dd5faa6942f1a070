// Package server exposes quote generation over HTTP.
package server

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/edgelesssys/go-tdx-attest/quote"
	"github.com/edgelesssys/go-tdx-attest/tdx"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

const (
	requestIDHeader = "X-Request-Id"
	// maxRequestSize bounds POST /quote bodies. Report data is at most 64 bytes.
	maxRequestSize = 64 * 1024
)

// quoteSource produces quotes, see [tdx.QuoteSource].
type quoteSource interface {
	Acquire(reportData []byte) tdx.Result
}

// Server serves quotes, measurements and the proxy's status.
type Server struct {
	source  quoteSource
	paths   tdx.Paths
	logFile string

	readMeasurements func() (quote.Measurements, error)

	clock    clock.PassiveClock
	registry *prometheus.Registry
	metrics  *metrics
	log      *zap.Logger
}

// New returns a server generating quotes with source.
// logFile is served at /logs, paths are reported at /status.
func New(source quoteSource, paths tdx.Paths, logFile string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	registry := prometheus.NewRegistry()
	s := &Server{
		source:   source,
		paths:    paths,
		logFile:  logFile,
		clock:    clock.RealClock{},
		registry: registry,
		metrics:  newMetrics(registry),
		log:      log,
	}
	s.readMeasurements = s.readDeviceMeasurements
	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /quote", s.handleGetQuote)
	mux.HandleFunc("POST /quote", s.handlePostQuote)
	mux.HandleFunc("GET /measurements", s.handleMeasurements)
	mux.HandleFunc("GET /logs", s.handleLogs)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return s.withRequestID(s.withRecovery(mux))
}

// ListenAndServe serves on addr until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("TDX attestation proxy listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type quoteRequest struct {
	ReportData string `json:"reportData"`
}

type quoteResponse struct {
	Quote        string             `json:"quote"`
	QuoteSize    int                `json:"quote_size"`
	ReportData   string             `json:"report_data"`
	Measurements quote.Measurements `json:"measurements"`
	Source       string             `json:"source"`
	Timestamp    string             `json:"timestamp"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, tdx.GetStatus(s.paths))
}

// handleGetQuote generates a quote over optional hex encoded report data
// passed in the report_data query parameter.
func (s *Server) handleGetQuote(w http.ResponseWriter, r *http.Request) {
	var reportData []byte
	if param := r.URL.Query().Get("report_data"); param != "" {
		var err error
		reportData, err = hex.DecodeString(param)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid report data: must be hex string"})
			return
		}
	}
	s.serveQuote(w, r, reportData)
}

// handlePostQuote generates a quote over optional base64 encoded report data in the request body.
func (s *Server) handlePostQuote(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestSize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Reading request body failed"})
		return
	}

	var req quoteRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid JSON body"})
			return
		}
	}

	var reportData []byte
	if req.ReportData != "" {
		reportData, err = base64.StdEncoding.DecodeString(req.ReportData)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid report data: must be base64"})
			return
		}
	}
	s.serveQuote(w, r, reportData)
}

func (s *Server) serveQuote(w http.ResponseWriter, r *http.Request, reportData []byte) {
	log := requestLogger(r, s.log)

	res := s.source.Acquire(reportData)
	s.metrics.observe(res)
	if !res.OK() {
		log.Error("Failed to generate TDX quote", zap.String("source", res.Source))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "Failed to generate TDX quote"})
		return
	}

	if header, err := quote.ParseHeader(res.Quote); err != nil || !header.IsTDXv4() {
		log.Warn("Quote is not a v4 TDX quote, measurements may be meaningless",
			zap.Uint16("version", header.Version), zap.Uint32("teeType", header.TEEType))
	}

	writeJSON(w, http.StatusOK, quoteResponse{
		Quote:        base64.StdEncoding.EncodeToString(res.Quote),
		QuoteSize:    len(res.Quote),
		ReportData:   base64.StdEncoding.EncodeToString(res.ReportData[:]),
		Measurements: quote.ExtractMeasurements(res.Quote),
		Source:       res.Source,
		Timestamp:    s.clock.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleMeasurements(w http.ResponseWriter, r *http.Request) {
	m, err := s.readMeasurements()
	if err != nil {
		requestLogger(r, s.log).Error("Reading measurements from guest device failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "Failed to read TDX measurements"})
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleLogs(w http.ResponseWriter, _ *http.Request) {
	logs, err := os.ReadFile(s.logFile)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(logs)
}

func (s *Server) readDeviceMeasurements() (quote.Measurements, error) {
	dev, err := tdx.OpenGuestDevice(s.paths.GuestDevice)
	if err != nil {
		return nil, err
	}
	defer dev.Close()
	return tdx.ReadMeasurements(dev)
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		r.Header.Set(requestIDHeader, id)
		s.log.Debug("Handling request", zap.String("requestID", id), zap.String("method", r.Method), zap.String("path", r.URL.Path))
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				requestLogger(r, s.log).Error("Exception while handling request", zap.String("path", r.URL.Path), zap.Any("panic", rec))
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: fmt.Sprint(rec)})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func requestLogger(r *http.Request, log *zap.Logger) *zap.Logger {
	return log.With(zap.String("requestID", r.Header.Get(requestIDHeader)))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
