// Package signer hands unsigned mint transactions to something that can sign
// and broadcast them: a remote wallet session, a local key on dev networks,
// or a fake for tests.
package signer

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"

	"nftmint/internal/logging"
	"nftmint/internal/mint"
)

// ProjectIDHeader scopes relay requests to one wallet-session project.
const ProjectIDHeader = "X-Project-Id"

// CodeUserRejected is the EIP-1193 code for a request the user declined.
const CodeUserRejected = 4001

// RejectedError is returned when the wallet declined to sign.
type RejectedError struct {
	Code    int
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("signer: request rejected (%d): %s", e.Code, e.Message)
}

// IsRejected reports whether err is, or wraps, a RejectedError.
func IsRejected(err error) bool {
	var r *RejectedError
	return errors.As(err, &r)
}

type rpcCaller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
	Close()
}

// SessionSigner forwards eth_sendTransaction to a wallet-session relay.
type SessionSigner struct {
	client rpcCaller
	logger logging.Logger
}

type SessionConfig struct {
	RelayURL  string
	ProjectID string
}

// DialSession connects to the relay.
func DialSession(ctx context.Context, cfg SessionConfig, logger logging.Logger) (*SessionSigner, error) {
	if cfg.RelayURL == "" {
		return nil, errors.New("signer: relay url is required")
	}
	if cfg.ProjectID == "" {
		return nil, errors.New("signer: wallet session project id is required")
	}
	client, err := rpc.DialOptions(ctx, cfg.RelayURL, rpc.WithHeader(ProjectIDHeader, cfg.ProjectID))
	if err != nil {
		return nil, fmt.Errorf("signer: dial relay: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &SessionSigner{client: client, logger: logger}, nil
}

func (s *SessionSigner) SendTransaction(ctx context.Context, tx mint.UnsignedTransaction) (common.Hash, error) {
	var hash common.Hash
	if err := s.client.CallContext(ctx, &hash, "eth_sendTransaction", tx); err != nil {
		return common.Hash{}, s.wrap("eth_sendTransaction", err)
	}
	if hash == (common.Hash{}) {
		return common.Hash{}, errors.New("signer: relay returned an empty transaction hash")
	}
	s.logger.Debug("wallet session accepted transaction", "txHash", hash.Hex(), "from", tx.From.Hex())
	return hash, nil
}

// Accounts lists the addresses the session is connected with.
func (s *SessionSigner) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := s.client.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, s.wrap("eth_accounts", err)
	}
	return accounts, nil
}

// Ping succeeds when the session has at least one connected account.
func (s *SessionSigner) Ping(ctx context.Context) error {
	accounts, err := s.Accounts(ctx)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		return errors.New("signer: wallet session has no connected accounts")
	}
	return nil
}

func (s *SessionSigner) Close() {
	s.client.Close()
}

func (s *SessionSigner) wrap(method string, err error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == CodeUserRejected {
		return &RejectedError{Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}
	}
	return fmt.Errorf("signer: %s: %w", method, err)
}
