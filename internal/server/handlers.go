package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"nftmint/internal/idempotency"
	"nftmint/internal/metadata"
	"nftmint/internal/mint"
	"nftmint/internal/status"
)

const maxBodyBytes = 64 << 10

type mintRequest struct {
	Sender      string `json:"sender"`
	MetadataURI string `json:"metadataUri"`
}

func (r mintRequest) validate() (common.Address, error) {
	if !common.IsHexAddress(r.Sender) {
		return common.Address{}, errors.New("sender must be a hex address")
	}
	if strings.TrimSpace(r.MetadataURI) == "" {
		return common.Address{}, errors.New("metadataUri is required")
	}
	return common.HexToAddress(r.Sender), nil
}

type gasResponse struct {
	GasLimit     uint64 `json:"gasLimit"`
	GasPriceWei  string `json:"gasPriceWei"`
	GasCostWei   string `json:"gasCostWei"`
	GasCostEther string `json:"gasCostEther"`
	TotalWei     string `json:"totalWei"`
	TotalEther   string `json:"totalEther"`
}

type quoteResponse struct {
	Transaction   mint.UnsignedTransaction `json:"transaction"`
	PriceWei      string                   `json:"priceWei"`
	PriceEther    string                   `json:"priceEther"`
	PriceFallback bool                     `json:"priceFallback"`
	Gas           *gasResponse             `json:"gas,omitempty"`
	GasError      string                   `json:"gasError,omitempty"`
}

type submitResponse struct {
	TxHash        string `json:"txHash"`
	Status        string `json:"status"`
	ValueWei      string `json:"valueWei"`
	PriceFallback bool   `json:"priceFallback"`
}

type tokenResponse struct {
	TxHash  string `json:"txHash"`
	TokenID string `json:"tokenId"`
}

type contractResponse struct {
	Contract       string `json:"contract"`
	BlockNumber    uint64 `json:"blockNumber"`
	HasCode        bool   `json:"hasCode"`
	MintPriceWei   string `json:"mintPriceWei"`
	MintPriceEther string `json:"mintPriceEther"`
	PriceFallback  bool   `json:"priceFallback"`
}

func decodeMintRequest(body []byte) (common.Address, mintRequest, error) {
	var payload mintRequest
	if err := json.Unmarshal(body, &payload); err != nil {
		return common.Address{}, payload, errors.New("invalid json payload")
	}
	sender, err := payload.validate()
	return sender, payload, err
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	sender, payload, err := decodeMintRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q, err := s.deps.Minter.Quote(r.Context(), sender, payload.MetadataURI)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	if q.Build.Quote.Fallback {
		s.metrics.incFallback()
	}

	resp := quoteResponse{
		Transaction:   q.Build.Tx,
		PriceWei:      q.Build.Quote.PriceWei.String(),
		PriceEther:    mint.FormatEther(q.Build.Quote.PriceWei),
		PriceFallback: q.Build.Quote.Fallback,
		GasError:      q.GasError,
	}
	if g := q.Gas; g != nil {
		resp.Gas = &gasResponse{
			GasLimit:     g.GasLimit,
			GasPriceWei:  g.GasPriceWei.String(),
			GasCostWei:   g.GasCostWei.String(),
			GasCostEther: g.GasCostEther.String(),
			TotalWei:     g.TotalWei.String(),
			TotalEther:   g.TotalEther.String(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSubmitMint(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.Header.Get("X-Idempotency-Key"))
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing X-Idempotency-Key header")
		return
	}

	ctx := r.Context()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	existing, err := s.deps.Store.Get(ctx, key)
	if err != nil {
		s.logger.Error("idempotency lookup failed", "key", key, "error", err)
		writeError(w, http.StatusServiceUnavailable, "idempotency store unavailable")
		return
	}
	if existing != nil {
		s.answerExisting(w, existing, body)
		return
	}

	sender, payload, err := decodeMintRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now()
	expiresAt := now.Add(s.cfg.Service.IdempotencyWindow)
	requestHash := idempotency.Fingerprint(body)
	reserved, err := s.deps.Store.Reserve(ctx, key, requestHash, expiresAt)
	if err != nil {
		s.logger.Error("idempotency reserve failed", "key", key, "error", err)
		writeError(w, http.StatusServiceUnavailable, "idempotency store unavailable")
		return
	}
	if !reserved {
		// Lost the race to another request with the same key.
		existing, err := s.deps.Store.Get(ctx, key)
		if err != nil || existing == nil {
			s.metrics.incMint("in_flight")
			writeError(w, http.StatusConflict, "a request with this idempotency key is in flight")
			return
		}
		s.answerExisting(w, existing, body)
		return
	}

	sub, err := s.deps.Minter.Submit(ctx, sender, payload.MetadataURI)
	if err != nil {
		if relErr := s.deps.Store.Release(context.WithoutCancel(ctx), key); relErr != nil {
			s.logger.Error("idempotency release failed", "key", key, "error", relErr)
		}
		kind := writePipelineError(w, err)
		s.metrics.incMint(kind)
		s.logger.Warn("mint submission failed", "sender", sender.Hex(), "kind", kind, "error", err)
		return
	}
	if sub.Build.Quote.Fallback {
		s.metrics.incFallback()
	}

	respBody, _ := json.Marshal(submitResponse{
		TxHash:        sub.TxHash.Hex(),
		Status:        "submitted",
		ValueWei:      sub.Build.Tx.Value.String(),
		PriceFallback: sub.Build.Quote.Fallback,
	})

	record := idempotency.Record{
		StatusCode:  http.StatusAccepted,
		RequestHash: requestHash,
		Response:    respBody,
		CreatedAt:   now,
		ExpiresAt:   expiresAt,
	}
	// The transaction is already signed; a failed save leaves the key
	// reserved until it expires so it cannot sign again.
	if err := s.deps.Store.Save(context.WithoutCancel(ctx), key, record); err != nil {
		s.logger.Error("idempotency save failed", "key", key, "txHash", sub.TxHash.Hex(), "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write(respBody)
	s.metrics.incMint("submitted")
}

// answerExisting replays a completed submission, or reports a conflicting
// payload or a submission that is still in flight.
func (s *Server) answerExisting(w http.ResponseWriter, existing *idempotency.Record, body []byte) {
	if !existing.Matches(body) {
		s.metrics.incMint("conflict")
		writeError(w, http.StatusUnprocessableEntity, "idempotency key reused with a different payload")
		return
	}
	if existing.Pending() {
		s.metrics.incMint("in_flight")
		writeError(w, http.StatusConflict, "a request with this idempotency key is in flight")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(existing.StatusCode)
	_, _ = w.Write(existing.Response)
	s.metrics.incMint("cached")
}

func parseTxHash(raw string) (common.Hash, bool) {
	if len(raw) != 66 || !strings.HasPrefix(raw, "0x") {
		return common.Hash{}, false
	}
	b := common.FromHex(raw)
	if len(b) != common.HashLength {
		return common.Hash{}, false
	}
	return common.BytesToHash(b), true
}

func (s *Server) handleTokenID(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["txHash"]
	hash, ok := parseTxHash(raw)
	if !ok {
		writeError(w, http.StatusBadRequest, "txHash must be a 0x-prefixed 32-byte hex string")
		return
	}

	id, err := s.deps.Minter.TokenID(r.Context(), hash)
	if err != nil {
		kind := writePipelineError(w, err)
		s.metrics.incLookup(kind)
		return
	}
	s.metrics.incLookup("found")
	writeJSON(w, http.StatusOK, tokenResponse{TxHash: hash.Hex(), TokenID: id.String()})
}

func (s *Server) handleContract(w http.ResponseWriter, r *http.Request) {
	if s.deps.Chain == nil {
		writeError(w, http.StatusServiceUnavailable, "chain client is not configured")
		return
	}
	report, err := s.deps.Minter.Probe(r.Context(), s.deps.Chain)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	if report.Quote.Fallback {
		s.metrics.incFallback()
	}
	writeJSON(w, http.StatusOK, contractResponse{
		Contract:       report.Contract.Hex(),
		BlockNumber:    report.BlockNumber,
		HasCode:        report.HasCode,
		MintPriceWei:   report.Quote.PriceWei.String(),
		MintPriceEther: report.PriceEther.String(),
		PriceFallback:  report.Quote.Fallback,
	})
}

func (s *Server) handlePinMetadata(w http.ResponseWriter, r *http.Request) {
	if s.deps.Pinner == nil {
		writeError(w, http.StatusServiceUnavailable, "metadata pinning is not configured")
		return
	}
	var doc metadata.Document
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json payload")
		return
	}
	if err := doc.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	uri, err := s.deps.Pinner.Pin(r.Context(), doc)
	if err != nil {
		s.metrics.incPin("failed")
		s.logger.Warn("metadata pin failed", "name", doc.Name, "error", err)
		writeError(w, http.StatusBadGateway, "pin metadata: "+err.Error())
		return
	}
	s.metrics.incPin("pinned")
	writeJSON(w, http.StatusCreated, map[string]string{"uri": uri})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"operations": s.deps.Tracker.Snapshot()})
}

type componentHealth struct {
	Connected bool    `json:"connected"`
	LatencyMs float64 `json:"latency_ms,omitempty"`
	Error     string  `json:"error,omitempty"`
}

func checkComponent(ctx context.Context, fn func(context.Context) error) componentHealth {
	if fn == nil {
		return componentHealth{Connected: true}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	start := time.Now()
	if err := fn(ctx); err != nil {
		return componentHealth{Error: err.Error()}
	}
	return componentHealth{Connected: true, LatencyMs: float64(time.Since(start).Microseconds()) / 1000.0}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var rpcFn func(context.Context) error
	if s.deps.Chain != nil {
		rpcFn = func(ctx context.Context) error {
			_, err := s.deps.Chain.BlockNumber(ctx)
			return err
		}
	}
	rpcInfo := checkComponent(ctx, rpcFn)
	dbInfo := checkComponent(ctx, s.dbHealthFn)
	var walletFn func(context.Context) error
	if s.deps.Wallet != nil {
		walletFn = func(ctx context.Context) error {
			return s.deps.Tracker.Track(status.Wallet, func() (string, error) {
				if err := s.deps.Wallet(ctx); err != nil {
					return "", err
				}
				return "session connected", nil
			})
		}
	}
	walletInfo := checkComponent(ctx, walletFn)

	healthy := rpcInfo.Connected && dbInfo.Connected
	state := "healthy"
	switch {
	case !healthy:
		state = "degraded"
	case !walletInfo.Connected:
		state = "wallet_disconnected"
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(struct {
		Status   string          `json:"status"`
		RPC      componentHealth `json:"rpc"`
		Database componentHealth `json:"database"`
		Wallet   componentHealth `json:"wallet"`
	}{state, rpcInfo, dbInfo, walletInfo})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(buf.Bytes())
}
