package mint

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"nftmint/internal/abicodec"
)

// TransferEventSignature is the ERC-721 Transfer event. All three
// parameters are indexed, which is what tells it apart from ERC-20.
const TransferEventSignature = "event Transfer(address indexed from, address indexed to, uint256 indexed tokenId)"

// TransactionFailedError is returned when the transaction reverted or the
// node never produced a receipt for it.
type TransactionFailedError struct {
	TxHash      common.Hash
	Status      uint64
	BlockNumber *big.Int
	// Dropped is set when no receipt exists at all.
	Dropped bool
}

func (e *TransactionFailedError) Error() string {
	if e.Dropped {
		return fmt.Sprintf("mint: transaction %s was dropped or is unknown", e.TxHash.Hex())
	}
	return fmt.Sprintf("mint: transaction %s failed with status %d in block %v", e.TxHash.Hex(), e.Status, e.BlockNumber)
}

// TokenIDNotFoundError means the transaction succeeded but emitted no
// Transfer from the zero address.
type TokenIDNotFoundError struct {
	TxHash common.Hash
	Logs   int
}

func (e *TokenIDNotFoundError) Error() string {
	return fmt.Sprintf("mint: no mint Transfer event among %d logs of %s", e.Logs, e.TxHash.Hex())
}

// TransferEvent is a decoded ERC-721 Transfer.
type TransferEvent struct {
	From     common.Address
	To       common.Address
	TokenID  *big.Int
	Contract common.Address
	LogIndex uint
}

// IsMint reports whether the transfer originates from the zero address.
func (e TransferEvent) IsMint() bool {
	return e.From == (common.Address{})
}

// ExtractTokenID waits for hash to be mined and returns the token id of the
// first mint Transfer in its logs. A *chain.TimeoutError from the waiter is
// returned unchanged.
func ExtractTokenID(ctx context.Context, hash common.Hash, waiter ReceiptWaiter, codec *abicodec.Codec) (*big.Int, error) {
	receipt, err := waiter.WaitForTransaction(ctx, hash)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, &TransactionFailedError{TxHash: hash, Dropped: true}
	}
	return TokenIDFromReceipt(hash, receipt, codec)
}

// TokenIDFromReceipt applies the mint rule to an already fetched receipt.
func TokenIDFromReceipt(hash common.Hash, receipt *types.Receipt, codec *abicodec.Codec) (*big.Int, error) {
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, &TransactionFailedError{TxHash: hash, Status: receipt.Status, BlockNumber: receipt.BlockNumber}
	}
	for _, ev := range Transfers(receipt.Logs, codec) {
		if ev.IsMint() {
			return ev.TokenID, nil
		}
	}
	return nil, &TokenIDNotFoundError{TxHash: hash, Logs: len(receipt.Logs)}
}

// Transfers decodes every ERC-721 Transfer in logs, in log order. Logs that
// are not Transfers, or do not fit its shape, are skipped.
func Transfers(logs []*types.Log, codec *abicodec.Codec) []TransferEvent {
	ref := transferRef(codec)
	var out []TransferEvent
	for _, l := range logs {
		if l == nil {
			continue
		}
		ev, err := codec.DecodeLog(*l, []string{ref})
		if err != nil || ev == nil {
			continue
		}
		from, okFrom := ev.AddressArg("from")
		to, okTo := ev.AddressArg("to")
		id, okID := ev.BigIntArg("tokenId")
		if !okFrom || !okTo || !okID {
			continue
		}
		out = append(out, TransferEvent{From: from, To: to, TokenID: id, Contract: ev.Address, LogIndex: ev.LogIndex})
	}
	return out
}

// transferRef prefers the codec's own Transfer declaration when it has the
// ERC-721 shape and falls back to the standard signature otherwise.
func transferRef(codec *abicodec.Codec) string {
	declared, err := codec.Event("Transfer")
	if err != nil {
		return TransferEventSignature
	}
	standard, err := codec.Event(TransferEventSignature)
	if err != nil || declared.ID != standard.ID {
		return TransferEventSignature
	}
	for i, in := range declared.Inputs {
		if !in.Indexed || in.Name != standard.Inputs[i].Name {
			return TransferEventSignature
		}
	}
	return "Transfer"
}
