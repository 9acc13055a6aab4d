package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"ledger-core/internal/audit"
	"ledger-core/internal/config"
	"ledger-core/internal/domain"
	"ledger-core/internal/events"
	"ledger-core/internal/events/kafka"
	"ledger-core/internal/handler"
	"ledger-core/internal/repository"
	"ledger-core/internal/repository/memory"
	"ledger-core/internal/service"
)

// Backends are the stores and sinks a server runs on.
type Backends struct {
	Ledger    domain.LedgerStore
	Audit     domain.AuditStore
	Publisher events.Publisher
	// DB is set when any backend is PostgreSQL; health checks ping it.
	DB *sql.DB
}

// Server represents the HTTP server
type Server struct {
	router    *mux.Router
	server    *http.Server
	db        *sql.DB
	publisher events.Publisher
	logger    *slog.Logger
	port      string
}

// NewServer opens the configured backends and builds a server on them.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	backends, err := OpenBackends(context.Background(), cfg, logger)
	if err != nil {
		return nil, err
	}

	retry := service.RetryOptions{MaxRetries: cfg.MaxRetries, Interval: cfg.RetryInterval}
	return NewServerWithBackends(backends, retry, logger), nil
}

// OpenBackends selects storage, audit and event backends from cfg.
func OpenBackends(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backends, error) {
	b := &Backends{}

	needsDB := cfg.StorageDriver == config.StoragePostgres || cfg.AuditDriver == config.AuditPostgres
	if needsDB {
		db, err := repository.Open(ctx, cfg.GetDBConnectionString())
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}

		// Configure connection pool for better performance
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)

		logger.Info("Successfully connected to database")

		if err := repository.Migrate(db, logger); err != nil {
			db.Close()
			return nil, err
		}
		b.DB = db
	}

	switch cfg.StorageDriver {
	case config.StoragePostgres:
		b.Ledger = repository.NewStore(b.DB, logger)
	case config.StorageMemory, "":
		b.Ledger = memory.NewStore()
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}

	switch cfg.AuditDriver {
	case config.AuditPostgres:
		b.Audit = repository.NewAuditRepository(b.DB, logger)
	case config.AuditFile:
		store, err := audit.OpenFileStore(cfg.AuditFile)
		if err != nil {
			return nil, err
		}
		b.Audit = store
	case config.AuditMemory, "":
		b.Audit = audit.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown audit driver %q", cfg.AuditDriver)
	}

	if len(cfg.KafkaBrokers) > 0 {
		logger.Info("Publishing transaction events", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
		b.Publisher = kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	} else {
		b.Publisher = events.Noop{}
	}

	logger.Info("Backends ready", "storage", cfg.StorageDriver, "audit", cfg.AuditDriver)
	return b, nil
}

// NewServerWithBackends wires services, handlers and routes.
func NewServerWithBackends(b *Backends, retry service.RetryOptions, logger *slog.Logger) *Server {
	trail := audit.NewTrail(b.Audit, logger)

	// Initialize services
	ledgerService := service.NewLedgerService(b.Ledger, trail, b.Publisher, logger, retry)
	accountService := service.NewAccountService(b.Ledger, ledgerService, logger)
	transactionService := service.NewTransactionService(b.Ledger, b.Ledger, logger)
	auditService := service.NewAuditService(trail, b.Ledger, logger)

	// Initialize handlers
	accountHandler := handler.NewAccountHandler(accountService, ledgerService)
	transactionHandler := handler.NewTransactionHandler(ledgerService, transactionService)
	auditHandler := handler.NewAuditHandler(auditService)

	// Setup router
	router := mux.NewRouter()

	// Add middleware for logging
	router.Use(loggingMiddleware(logger))

	// Account routes
	router.HandleFunc("/accounts", accountHandler.CreateAccount).Methods("POST")
	router.HandleFunc("/accounts", accountHandler.ListAccounts).Methods("GET")
	router.HandleFunc("/accounts/number/{account_number}", accountHandler.GetAccountByNumber).Methods("GET")
	router.HandleFunc("/accounts/{account_id}", accountHandler.GetAccount).Methods("GET")
	router.HandleFunc("/accounts/{account_id}", accountHandler.UpdateAccount).Methods("PATCH")
	router.HandleFunc("/accounts/{account_id}/close", accountHandler.CloseAccount).Methods("POST")

	// Ledger routes
	router.HandleFunc("/accounts/{account_id}/deposit", transactionHandler.Deposit).Methods("POST")
	router.HandleFunc("/accounts/{account_id}/withdraw", transactionHandler.Withdraw).Methods("POST")
	router.HandleFunc("/transfers", transactionHandler.Transfer).Methods("POST")
	router.HandleFunc("/transfers/by-number", transactionHandler.TransferByNumber).Methods("POST")
	router.HandleFunc("/transfers/multi", transactionHandler.MultiTransfer).Methods("POST")

	// Transaction history routes
	router.HandleFunc("/accounts/{account_id}/transactions", transactionHandler.AccountTransactions).Methods("GET")
	router.HandleFunc("/users/{user_id}/transactions", transactionHandler.UserTransactions).Methods("GET")
	router.HandleFunc("/transactions/{transaction_id}", transactionHandler.GetTransaction).Methods("GET")

	// Audit routes
	router.HandleFunc("/audit/fingerprints", auditHandler.ListFingerprints).Methods("GET")
	router.HandleFunc("/audit/fingerprints/{transaction_id}", auditHandler.GetFingerprint).Methods("GET")
	router.HandleFunc("/audit/fingerprints/{transaction_id}/verify", auditHandler.VerifyFingerprint).Methods("GET")

	// Health check
	db := b.DB
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		// Check database connectivity in health check
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": "database unavailable"})
				return
			}
		}

		json.NewEncoder(w).Encode(map[string]string{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}).Methods("GET")

	return &Server{
		router:    router,
		db:        b.DB,
		publisher: b.Publisher,
		logger:    logger,
	}
}

// loggingMiddleware adds request logging
func loggingMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Create response wrapper to capture status code
			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.statusCode,
				"duration", time.Since(start),
			)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server on the specified port
func (s *Server) Start(port string) (string, error) {
	// Create listener first to get actual port
	listener, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return "", err
	}

	addr := listener.Addr().(*net.TCPAddr)
	s.port = strconv.Itoa(addr.Port)

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting server", "port", s.port)

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Server failed to start", "error", err)
		}
	}()

	return s.port, nil
}

// Stop drains in-flight requests, then releases the event publisher and
// the database.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}

	if s.publisher != nil {
		if cerr := s.publisher.Close(); cerr != nil {
			s.logger.Error("Failed to close event publisher", "error", cerr)
		}
	}

	if s.db != nil {
		s.db.Close()
	}
	return err
}

// GetPort returns the port the server is listening on
func (s *Server) GetPort() string {
	return s.port
}

// GetBaseURL returns the base URL for the server
func (s *Server) GetBaseURL() string {
	return "http://localhost:" + s.port
}

// GetRouter returns the router for testing purposes
func (s *Server) GetRouter() *mux.Router {
	return s.router
}

// StartServer starts the server with the given configuration
func StartServer(cfg *config.Config) (*Server, string, error) {
	var logger *slog.Logger
	if cfg.ServerPort == "0" {
		// Test environment - use discard logger
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	} else {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}

	server, err := NewServer(cfg, logger)
	if err != nil {
		return nil, "", err
	}

	port, err := server.Start(cfg.ServerPort)
	if err != nil {
		return nil, "", err
	}

	return server, port, nil
}
