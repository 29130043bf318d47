package mint

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// UnsignedTransaction is the eth_sendTransaction parameter object handed to a
// session signer. Gas and MaxFeePerGas are optional hints; the signer fills
// them in when nil.
type UnsignedTransaction struct {
	From         common.Address
	To           common.Address
	Data         []byte
	Value        *big.Int
	Gas          *uint64
	MaxFeePerGas *big.Int
}

type txJSON struct {
	From         common.Address  `json:"from"`
	To           common.Address  `json:"to"`
	Data         hexutil.Bytes   `json:"data"`
	Value        *hexutil.Big    `json:"value"`
	Gas          *hexutil.Uint64 `json:"gas,omitempty"`
	MaxFeePerGas *hexutil.Big    `json:"maxFeePerGas,omitempty"`
}

// MarshalJSON renders quantities as minimal 0x hex, e.g. "0x2386f26fc10000".
func (tx UnsignedTransaction) MarshalJSON() ([]byte, error) {
	value := tx.Value
	if value == nil {
		value = new(big.Int)
	}
	out := txJSON{
		From:  tx.From,
		To:    tx.To,
		Data:  tx.Data,
		Value: (*hexutil.Big)(value),
	}
	if tx.Gas != nil {
		g := hexutil.Uint64(*tx.Gas)
		out.Gas = &g
	}
	if tx.MaxFeePerGas != nil {
		out.MaxFeePerGas = (*hexutil.Big)(tx.MaxFeePerGas)
	}
	return json.Marshal(out)
}

func (tx *UnsignedTransaction) UnmarshalJSON(b []byte) error {
	var in txJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	if in.Value != nil && in.Value.ToInt().Sign() < 0 {
		return errors.New("negative transaction value")
	}
	*tx = UnsignedTransaction{From: in.From, To: in.To, Data: in.Data}
	tx.Value = new(big.Int)
	if in.Value != nil {
		tx.Value = in.Value.ToInt()
	}
	if in.Gas != nil {
		g := uint64(*in.Gas)
		tx.Gas = &g
	}
	if in.MaxFeePerGas != nil {
		tx.MaxFeePerGas = in.MaxFeePerGas.ToInt()
	}
	return nil
}

// ContractReader performs read-only contract calls (eth_call).
type ContractReader interface {
	Call(ctx context.Context, contract common.Address, data []byte) ([]byte, error)
}

// ReceiptWaiter blocks until a transaction is mined. A nil receipt with a
// nil error means the transaction is unknown to the node.
type ReceiptWaiter interface {
	WaitForTransaction(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// TransactionSender signs and broadcasts an unsigned transaction, usually
// through a remote wallet session.
type TransactionSender interface {
	SendTransaction(ctx context.Context, tx UnsignedTransaction) (common.Hash, error)
}
