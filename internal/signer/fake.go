package signer

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"nftmint/internal/mint"
)

// FakeSigner hashes the payload to deterministically emulate transaction
// hashes in tests and dry runs. Nothing is broadcast.
type FakeSigner struct {
	// Reject makes every request fail as if the user declined it.
	Reject bool

	mu   sync.Mutex
	sent []mint.UnsignedTransaction
}

func (f *FakeSigner) SendTransaction(_ context.Context, tx mint.UnsignedTransaction) (common.Hash, error) {
	if tx.From == (common.Address{}) {
		return common.Hash{}, fmt.Errorf("missing sender address")
	}
	if f.Reject {
		return common.Hash{}, &RejectedError{Code: CodeUserRejected, Message: "user rejected the request"}
	}
	payload, err := json.Marshal(tx)
	if err != nil {
		return common.Hash{}, err
	}

	f.mu.Lock()
	f.sent = append(f.sent, tx)
	f.mu.Unlock()
	return common.Hash(sha256.Sum256(payload)), nil
}

// Sent returns the transactions seen so far.
func (f *FakeSigner) Sent() []mint.UnsignedTransaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]mint.UnsignedTransaction, len(f.sent))
	copy(out, f.sent)
	return out
}
