package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"nftmint/internal/abicodec"
	"nftmint/internal/chain"
	"nftmint/internal/mint"
	"nftmint/internal/signer"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// classify maps pipeline errors to an HTTP status and a stable kind label
// that is also used for metrics.
func classify(err error) (int, string) {
	var (
		encErr      *abicodec.EncodingError
		failedErr   *mint.TransactionFailedError
		notFoundErr *mint.TokenIDNotFoundError
		rejectedErr *signer.RejectedError
	)
	switch {
	case errors.As(err, &encErr):
		return http.StatusBadRequest, "encoding"
	case errors.As(err, &rejectedErr):
		return http.StatusConflict, "rejected"
	case errors.As(err, &failedErr):
		return http.StatusUnprocessableEntity, "failed"
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound, "not_found"
	case chain.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case chain.IsRPC(err):
		return http.StatusBadGateway, "rpc"
	case chain.IsNetwork(err):
		return http.StatusBadGateway, "network"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

func writePipelineError(w http.ResponseWriter, err error) string {
	code, kind := classify(err)
	writeJSON(w, code, errorResponse{Error: err.Error(), Kind: kind})
	return kind
}
