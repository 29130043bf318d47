package server

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"nftmint/internal/config"
	"nftmint/internal/hmacauth"
	"nftmint/internal/idempotency"
	"nftmint/internal/logging"
	"nftmint/internal/metadata"
	"nftmint/internal/mint"
	"nftmint/internal/status"
)

// Minter is the mint pipeline as the HTTP layer uses it.
type Minter interface {
	Quote(ctx context.Context, sender common.Address, metadataURI string) (*mint.Quote, error)
	Submit(ctx context.Context, sender common.Address, metadataURI string) (*mint.Submission, error)
	TokenID(ctx context.Context, hash common.Hash) (*big.Int, error)
	Probe(ctx context.Context, p mint.ChainProbe) (*mint.ContractReport, error)
}

type Pinner interface {
	Pin(ctx context.Context, doc metadata.Document) (string, error)
}

// Deps are the collaborators wired in main. Pinner, Wallet and Metrics are optional.
type Deps struct {
	Minter  Minter
	Chain   mint.ChainProbe
	Pinner  Pinner
	Store   idempotency.Store
	Tracker *status.Tracker
	Logger  logging.Logger
	Metrics *Metrics
	// Wallet checks the signing session, e.g. SessionSigner.Ping.
	Wallet func(context.Context) error
}

type Server struct {
	cfg        *config.AppConfig
	deps       Deps
	hmac       *hmacauth.Verifier
	router     *mux.Router
	httpServer *http.Server
	metrics    *Metrics
	logger     logging.Logger
	dbHealthFn func(context.Context) error
}

func NewServer(cfg *config.AppConfig, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}
	if deps.Store == nil {
		deps.Store = idempotency.NewMemoryStore()
	}

	s := &Server{
		cfg:     cfg,
		deps:    deps,
		metrics: deps.Metrics,
		logger:  deps.Logger.With("component", "server"),
	}
	s.hmac = &hmacauth.Verifier{
		Secret:  cfg.Service.HMACSecret,
		MaxSkew: cfg.Service.HMACClockSkew,
		OnReject: func(r *http.Request, err error) {
			s.metrics.incAuthRejection()
			s.logger.Warn("rejected unsigned request", "path", r.URL.Path, "error", err)
		},
	}
	if checker, ok := deps.Store.(interface{ Ping(context.Context) error }); ok {
		s.dbHealthFn = checker.Ping
	}

	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Service.HTTPPort),
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
	}
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware, s.accessLogMiddleware)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/mints/quote", s.handleQuote).Methods(http.MethodPost)
	api.Handle("/mints", s.hmac.Middleware(http.HandlerFunc(s.handleSubmitMint))).Methods(http.MethodPost)
	api.HandleFunc("/mints/{txHash}/token", s.handleTokenID).Methods(http.MethodGet)
	api.HandleFunc("/contract", s.handleContract).Methods(http.MethodGet)
	api.Handle("/metadata", s.hmac.Middleware(http.HandlerFunc(s.handlePinMetadata))).Methods(http.MethodPost)
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.Handle("/metrics", s.metrics.handler()).Methods(http.MethodGet)
	return r
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start() error {
	s.logger.Info("API listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = fmt.Sprintf("%d", time.Now().UnixNano())
			r.Header.Set("X-Request-Id", id)
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"took", time.Since(start),
			"requestId", r.Header.Get("X-Request-Id"))
	})
}
