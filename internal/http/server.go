// Package http serves the fee ledger's JSON API.
package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"feeledger/internal/auth"
	"feeledger/internal/core"
	"feeledger/internal/ledger"
	"feeledger/internal/log"
	"feeledger/internal/middleware/ratelimit"
	"feeledger/internal/middleware/security"
	"feeledger/internal/middleware/trace"
)

// FeeLedger is the ledger surface the API exposes.
type FeeLedger interface {
	CreateFeeRecord(ctx context.Context, in ledger.CreateFeeRecordInput) (core.FeeRecord, error)
	ApplyPayment(ctx context.Context, admissionNo string, key core.PeriodKey, amount core.Money) (core.FeeRecord, error)
	GetPeriodRecord(ctx context.Context, admissionNo string, key core.PeriodKey) (ledger.PeriodRecordView, error)
	GenerateClassFees(ctx context.Context, className string, key core.PeriodKey) (ledger.GenerateResult, error)
	GetPeriodSummary(ctx context.Context, admissionNo string, scheme core.Scheme) ([]ledger.PeriodSummaryRow, error)
	GetLifetimeSummary(ctx context.Context, admissionNo string) (ledger.LifetimeSummary, error)
	GetRangeSummary(ctx context.Context, admissionNo, from, to string) (ledger.RangeSummary, error)
	GetClassFeeTable(ctx context.Context, className, academicYear string) ([]ledger.StudentFeeRow, error)
	GetAcademicYearStatement(ctx context.Context, admissionNo, academicYear string) (ledger.AcademicStatement, error)
}

// Directory manages students and class fee schedules.
type Directory interface {
	AddStudent(ctx context.Context, s core.Student) (core.Student, error)
	ListStudents(ctx context.Context) ([]core.Student, error)
	SetSchedule(ctx context.Context, s core.ClassFeeSchedule) (core.ClassFeeSchedule, error)
	ListSchedules(ctx context.Context) ([]core.ClassFeeSchedule, error)
}

// Authenticator logs admins in and verifies their tokens.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (auth.Token, error)
	Verify(token string) (*auth.Claims, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	Addr               string
	RateLimitPerMinute int
	Logger             *log.Logger
}

type Deps struct {
	Ledger    FeeLedger
	Directory Directory
	Auth      Authenticator
	// Checks are probed by /readyz, keyed by name.
	Checks map[string]Pinger
}

type Server struct {
	http.Server

	ledger    FeeLedger
	directory Directory
	auth      Authenticator
	checks    map[string]Pinger
	parser    *RequestParser
	logger    *log.Logger
	started   time.Time

	rateLimiter     *ratelimit.Limiter
	detector        *security.Detector
	traceMiddleware *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware. The rate limiter goroutine runs
// until Shutdown.
func NewServer(cfg Config, deps Deps) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		ledger:      deps.Ledger,
		directory:   deps.Directory,
		auth:        deps.Auth,
		checks:      deps.Checks,
		parser:      NewRequestParser(),
		logger:      logger,
		started:     time.Now(),
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute}),
		detector:    security.NewDetector(),
	}
	s.traceMiddleware = trace.NewMiddleware(s.detector.ExtractClientIP)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           s.middleware(s.routes()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("POST /admin/login", s.handleLogin)

	protected := http.NewServeMux()
	protected.HandleFunc("POST /students", s.handleAddStudent)
	protected.HandleFunc("GET /students", s.handleListStudents)
	protected.HandleFunc("PUT /classes/{className}/schedule", s.handleSetSchedule)
	protected.HandleFunc("GET /classes/schedules", s.handleListSchedules)

	protected.HandleFunc("POST /fees/table", s.handleClassFeeTable)
	protected.HandleFunc("POST /fees/generate", s.handleGenerateClassFees)
	protected.HandleFunc("POST /fees/{admissionNo}", s.handleCreateFeeRecord)
	protected.HandleFunc("POST /fees/{admissionNo}/payments", s.handleApplyPayment)
	protected.HandleFunc("GET /fees/{admissionNo}/periods/{month}/{year}", s.handleGetCalendarRecord)
	protected.HandleFunc("GET /fees/{admissionNo}/academic/{academicYear}/{month}", s.handleGetAcademicRecord)
	protected.HandleFunc("GET /fees/{admissionNo}/monthly-summary", s.handlePeriodSummary)
	protected.HandleFunc("GET /fees/{admissionNo}/summary", s.handleLifetimeSummary)
	protected.HandleFunc("POST /fees/{admissionNo}/records", s.handleRangeSummary)
	protected.HandleFunc("GET /fees/{admissionNo}/statement/{academicYear}", s.handleStatement)

	requireAuth := auth.Middleware(s.auth, writeError)
	mux.Handle("/students", requireAuth(protected))
	mux.Handle("/classes/", requireAuth(protected))
	mux.Handle("/fees/", requireAuth(protected))
	return mux
}

// middleware wraps h outermost-first: logger, trace, headers, scan
// detection, rate limiting.
func (s *Server) middleware(h http.Handler) http.Handler {
	h = s.rateLimiter.Middleware(s.detector.ExtractClientIP, ratelimit.MutatingOnly, func(w http.ResponseWriter, _ *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, kindRateLimited, "rate limit exceeded, try again later").Write(w)
	})(h)
	h = s.detector.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.traceMiddleware.Middleware(h)
	return log.Middleware(s.logger)(h)
}

// Shutdown drains connections and stops background work.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		err = s.Server.Shutdown(ctx)
		s.rateLimiter.Stop()
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.WarnContext(ctx, "HTTP shutdown deadline exceeded, closing connections")
			err = errors.Join(err, s.Server.Close())
		}
	})
	return err
}
