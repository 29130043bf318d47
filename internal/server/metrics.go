package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is created before the server so the chain client can report
// through ObserveRPC from the start.
type Metrics struct {
	registry           *prometheus.Registry
	mintSubmissions    *prometheus.CounterVec
	tokenLookups       *prometheus.CounterVec
	priceFallbacks     prometheus.Counter
	metadataPins       *prometheus.CounterVec
	authRejections     prometheus.Counter
	rpcRequests        *prometheus.CounterVec
	rpcRequestDuration *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	mint := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nftmint_mint_submissions_total",
		Help: "Mint submissions by outcome",
	}, []string{"status"})

	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nftmint_token_lookups_total",
		Help: "Token id lookups by result",
	}, []string{"result"})

	fallbacks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nftmint_price_fallbacks_total",
		Help: "Builds that used the fallback mint price",
	})

	pins := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nftmint_metadata_pins_total",
		Help: "Metadata documents pinned to IPFS by result",
	}, []string{"result"})

	auth := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nftmint_auth_rejections_total",
		Help: "Requests rejected by HMAC verification",
	})

	rpcReqs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nftmint_rpc_requests_total",
		Help: "JSON-RPC calls to the chain endpoint",
	}, []string{"method", "result"})

	rpcDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nftmint_rpc_request_duration_seconds",
		Help:    "Latency of JSON-RPC calls to the chain endpoint",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	r := prometheus.NewRegistry()
	r.MustRegister(mint, lookups, fallbacks, pins, auth, rpcReqs, rpcDur)

	return &Metrics{
		registry:           r,
		mintSubmissions:    mint,
		tokenLookups:       lookups,
		priceFallbacks:     fallbacks,
		metadataPins:       pins,
		authRejections:     auth,
		rpcRequests:        rpcReqs,
		rpcRequestDuration: rpcDur,
	}
}

func (m *Metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRPC matches chain.Observer.
func (m *Metrics) ObserveRPC(method string, took time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.rpcRequests.WithLabelValues(method, result).Inc()
	m.rpcRequestDuration.WithLabelValues(method).Observe(took.Seconds())
}

func (m *Metrics) incMint(status string) {
	m.mintSubmissions.WithLabelValues(status).Inc()
}

func (m *Metrics) incLookup(result string) {
	m.tokenLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) incFallback() {
	m.priceFallbacks.Inc()
}

func (m *Metrics) incPin(result string) {
	m.metadataPins.WithLabelValues(result).Inc()
}

func (m *Metrics) incAuthRejection() {
	m.authRejections.Inc()
}
