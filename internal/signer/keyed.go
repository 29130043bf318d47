package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"nftmint/internal/mint"
)

// Broadcaster is the chain access a KeyedSigner needs.
type Broadcaster interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// KeyedSigner signs with a local key and broadcasts through the chain
// client. Only meant for dev networks where no wallet session exists.
// Sends are serialized from nonce lookup to broadcast so concurrent mints
// never share a nonce.
type KeyedSigner struct {
	mu      sync.Mutex
	chain   Broadcaster
	opts    *bind.TransactOpts
	chainID *big.Int
}

func NewKeyedSigner(ctx context.Context, chain Broadcaster, privateKeyHex string) (*KeyedSigner, error) {
	key, err := parsePrivateKey(privateKeyHex)
	if err != nil {
		return nil, err
	}
	chainID, err := chain.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("transactor: %w", err)
	}
	return &KeyedSigner{chain: chain, opts: opts, chainID: chainID}, nil
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

// Address is the account transactions are sent from.
func (k *KeyedSigner) Address() common.Address { return k.opts.From }

func (k *KeyedSigner) SendTransaction(ctx context.Context, utx mint.UnsignedTransaction) (common.Hash, error) {
	if utx.From != (common.Address{}) && utx.From != k.opts.From {
		return common.Hash{}, fmt.Errorf("signer: key controls %s, transaction is from %s", k.opts.From.Hex(), utx.From.Hex())
	}
	value := utx.Value
	if value == nil {
		value = new(big.Int)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	nonce, err := k.chain.PendingNonceAt(ctx, k.opts.From)
	if err != nil {
		return common.Hash{}, fmt.Errorf("nonce: %w", err)
	}
	tip, err := k.chain.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("gas tip: %w", err)
	}
	feeCap := utx.MaxFeePerGas
	if feeCap == nil {
		price, err := k.chain.SuggestGasPrice(ctx)
		if err != nil {
			return common.Hash{}, fmt.Errorf("gas price: %w", err)
		}
		feeCap = new(big.Int).Mul(price, big.NewInt(2))
	}
	if feeCap.Cmp(tip) < 0 {
		feeCap = new(big.Int).Set(tip)
	}

	var gas uint64
	if utx.Gas != nil {
		gas = *utx.Gas
	} else {
		to := utx.To
		gas, err = k.chain.EstimateGas(ctx, ethereum.CallMsg{
			From:      k.opts.From,
			To:        &to,
			GasFeeCap: feeCap,
			GasTipCap: tip,
			Value:     value,
			Data:      utx.Data,
		})
		if err != nil {
			return common.Hash{}, fmt.Errorf("estimate gas: %w", err)
		}
	}

	to := utx.To
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   k.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     value,
		Data:      utx.Data,
	})
	signed, err := k.opts.Signer(k.opts.From, tx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign: %w", err)
	}
	if err := k.chain.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("broadcast: %w", err)
	}
	return signed.Hash(), nil
}
