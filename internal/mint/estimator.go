package mint

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/shopspring/decimal"
)

const etherDecimals = 18

// GasOracle is the part of the chain client used for fee estimation.
type GasOracle interface {
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// GasEstimate is what a wallet would show before confirming the mint.
type GasEstimate struct {
	GasLimit       uint64
	GasPriceWei    *big.Int
	GasCostWei     *big.Int
	MintPriceWei   *big.Int
	TotalWei       *big.Int
	GasCostEther   decimal.Decimal
	MintPriceEther decimal.Decimal
	TotalEther     decimal.Decimal
}

// EstimateMint prices tx: gas limit times the suggested gas price, plus the
// value the transaction carries.
func EstimateMint(ctx context.Context, oracle GasOracle, tx UnsignedTransaction) (*GasEstimate, error) {
	value := tx.Value
	if value == nil {
		value = new(big.Int)
	}
	to := tx.To
	gas, err := oracle.EstimateGas(ctx, ethereum.CallMsg{
		From:  tx.From,
		To:    &to,
		Value: value,
		Data:  tx.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}
	price, err := oracle.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}

	cost := new(big.Int).Mul(new(big.Int).SetUint64(gas), price)
	total := new(big.Int).Add(cost, value)
	return &GasEstimate{
		GasLimit:       gas,
		GasPriceWei:    price,
		GasCostWei:     cost,
		MintPriceWei:   new(big.Int).Set(value),
		TotalWei:       total,
		GasCostEther:   WeiToEther(cost),
		MintPriceEther: WeiToEther(value),
		TotalEther:     WeiToEther(total),
	}, nil
}

// WeiToEther converts wei to an exact ether amount.
func WeiToEther(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -etherDecimals)
}

// FormatEther renders wei as ether without trailing zeros, "0.01" for 1e16.
func FormatEther(wei *big.Int) string {
	return WeiToEther(wei).String()
}
