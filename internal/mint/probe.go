package mint

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"nftmint/internal/abicodec"
	"nftmint/internal/status"
)

// ErrNoContractCode is recorded when nothing is deployed at the configured address.
var ErrNoContractCode = errors.New("no contract code at address")

// ChainProbe is what ProbeContract needs from the chain client.
type ChainProbe interface {
	ContractReader
	BlockNumber(ctx context.Context) (uint64, error)
	CodeAt(ctx context.Context, addr common.Address) ([]byte, error)
}

type ContractReport struct {
	BlockNumber uint64
	Contract    common.Address
	HasCode     bool
	Quote       MintQuote
	PriceEther  decimal.Decimal
}

// ProbeContract checks the provider answers, the contract exists and reads
// its mint price. Only a provider failure is returned as an error; a missing
// contract is reported through HasCode and the tracker.
func ProbeContract(ctx context.Context, p ChainProbe, contract common.Address, codec *abicodec.Codec, tracker *status.Tracker, opts ...BuildOption) (*ContractReport, error) {
	report := &ContractReport{Contract: contract}

	err := tracker.Track(status.Provider, func() (string, error) {
		n, err := p.BlockNumber(ctx)
		if err != nil {
			return "", err
		}
		report.BlockNumber = n
		return fmt.Sprintf("block %d", n), nil
	})
	if err != nil {
		return nil, err
	}

	_ = tracker.Track(status.Contract, func() (string, error) {
		code, err := p.CodeAt(ctx, contract)
		if err != nil {
			return "", err
		}
		if len(code) == 0 {
			return "", ErrNoContractCode
		}
		report.HasCode = true
		report.Quote = ReadMintPrice(ctx, p, contract, codec, opts...)
		report.PriceEther = WeiToEther(report.Quote.PriceWei)
		if report.Quote.Fallback {
			return "mint price " + report.PriceEther.String() + " ether (fallback)", nil
		}
		return "mint price " + report.PriceEther.String() + " ether", nil
	})
	if report.Quote.PriceWei == nil {
		fallback := newBuildOptions(opts).fallbackPrice
		report.Quote = MintQuote{PriceWei: fallback, Fallback: true, Reason: "contract not reachable"}
		report.PriceEther = WeiToEther(report.Quote.PriceWei)
	}
	return report, nil
}
