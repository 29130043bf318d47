package chain

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
)

// NetworkError is a transport-level failure: dial, HTTP status, timeout, cancellation.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("chain: %s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RpcError is a failure reported by the node itself, e.g. a reverted eth_call.
type RpcError struct {
	Op      string
	Code    int
	Message string
	Data    any
	Err     error
}

func (e *RpcError) Error() string {
	return fmt.Sprintf("chain: %s: rpc error %d: %s", e.Op, e.Code, e.Message)
}

func (e *RpcError) Unwrap() error { return e.Err }

// TimeoutError means the receipt wait gave up before the transaction was mined.
type TimeoutError struct {
	TxHash common.Hash
	After  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("chain: transaction %s not mined after %s", e.TxHash.Hex(), e.After)
}

// classify maps errors coming out of ethclient/rpc onto NetworkError or RpcError.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		out := &RpcError{Op: op, Code: rpcErr.ErrorCode(), Message: rpcErr.Error(), Err: err}
		var dataErr rpc.DataError
		if errors.As(err, &dataErr) {
			out.Data = dataErr.ErrorData()
		}
		return out
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return &NetworkError{Op: op, Err: fmt.Errorf("http %d: %w", httpErr.StatusCode, err)}
	}
	// Context expiry, socket failures and malformed responses.
	return &NetworkError{Op: op, Err: err}
}

// IsNetwork reports whether err is, or wraps, a NetworkError.
func IsNetwork(err error) bool {
	var n *NetworkError
	return errors.As(err, &n)
}

// IsRPC reports whether err is, or wraps, an RpcError.
func IsRPC(err error) bool {
	var r *RpcError
	return errors.As(err, &r)
}

// IsTimeout reports whether err is, or wraps, a TimeoutError.
func IsTimeout(err error) bool {
	var t *TimeoutError
	return errors.As(err, &t)
}
