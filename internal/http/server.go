package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	applog "bally/internal/log"
	"bally/internal/middleware/ratelimit"
	"bally/internal/middleware/security"
	"bally/internal/middleware/trace"
	"bally/internal/services"
)

// Options tunes the middleware in front of the API.
type Options struct {
	// RateLimitPerMinute caps write requests per client IP.
	RateLimitPerMinute int

	// TrustedProxies are CIDRs whose X-Forwarded-For header is believed.
	TrustedProxies []string

	// Ready backs /readyz; nil means always ready.
	Ready func(context.Context) error
}

// Server is the JSON API over the record and report services.
type Server struct {
	http.Server

	records *services.RecordService
	reports *services.ReportService
	ready   func(context.Context) error

	logger   *applog.Logger
	events   *applog.StructuredLogger
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware. The handler chain, outermost
// first: request id and access log, request logger, security headers,
// suspicious request detection, write rate limit, routes.
func NewServer(addr string, recs *services.RecordService, reps *services.ReportService, logger *applog.Logger, opts Options) (*Server, error) {
	logger = logger.WithComponent(applog.ComponentHTTP)

	detector := security.NewDetector()
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			return nil, err
		}
	}

	s := &Server{
		records:  recs,
		reports:  reps,
		ready:    opts.Ready,
		logger:   logger,
		events:   applog.NewStructuredLogger(logger),
		detector: detector,
		tracer:   trace.NewMiddleware(detector.ExtractClientIP, logger),
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RateLimitPerMinute,
			Methods:           []string{http.MethodPost, http.MethodPut, http.MethodDelete},
		}),
	}

	mux := http.NewServeMux()
	s.routes(mux)

	var handler http.Handler = mux
	handler = s.limiter.Middleware(detector.ExtractClientIP, s.onRateLimited)(handler)
	handler = detector.Middleware(logger)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = applog.RequestIDMiddleware(trace.RequestID)(handler)
	handler = applog.Middleware(logger)(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s, nil
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/suppliers", s.handleListSuppliers)
	mux.HandleFunc("POST /api/suppliers", s.handleCreateSupplier)
	mux.HandleFunc("GET /api/suppliers/{id}", s.handleGetSupplier)
	mux.HandleFunc("PUT /api/suppliers/{id}", s.handleUpdateSupplier)
	mux.HandleFunc("DELETE /api/suppliers/{id}", s.handleDeleteSupplier)

	mux.HandleFunc("GET /api/invoices", s.handleListInvoices)
	mux.HandleFunc("POST /api/invoices", s.handleCreateInvoice)
	mux.HandleFunc("GET /api/invoices/{id}", s.handleGetInvoice)
	mux.HandleFunc("PUT /api/invoices/{id}", s.handleUpdateInvoice)
	mux.HandleFunc("DELETE /api/invoices/{id}", s.handleDeleteInvoice)
	mux.HandleFunc("POST /api/invoices/{id}/status", s.handleSetInvoiceStatus)

	mux.HandleFunc("GET /api/vat", s.handleVAT)
	mux.HandleFunc("GET /api/vat/export", s.handleVATExport)
	mux.HandleFunc("GET /api/reports/suppliers", s.handleSupplierReport)
	mux.HandleFunc("GET /api/reports/payments", s.handlePaymentReport)
	mux.HandleFunc("GET /api/reports/financial", s.handleFinancialReport)
}

// Shutdown stops the rate limiter and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WithComponent(applog.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.detector.ExtractClientIP(r),
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path)
	TooManyRequestsError("rate limit exceeded, retry in a minute").Write(w)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]string{"status": "ok"}).Write(w)
}

// readiness is the /readyz body.
type readiness struct {
	Status    string                    `json:"status"`
	Error     string                    `json:"error,omitempty"`
	Requests  trace.Metrics             `json:"requests"`
	RateLimit ratelimit.Metrics         `json:"rateLimit"`
	Security  security.DetectionMetrics `json:"security"`
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	body := readiness{
		Status:    "ready",
		Requests:  s.tracer.GetMetrics(),
		RateLimit: s.limiter.GetMetrics(),
		Security:  s.detector.GetMetrics(),
	}
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
			body.Status = "unavailable"
			body.Error = fmt.Sprintf("backend: %v", err)
			NewResponse().Status(http.StatusServiceUnavailable).JSON(body).Write(w)
			return
		}
	}
	NewResponse().JSON(body).Write(w)
}
