package mint

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"nftmint/internal/abicodec"
	"nftmint/internal/logging"
)

const (
	DefaultMintFunction  = "mintNFT"
	DefaultPriceFunction = "MINT_PRICE"
)

// 0.01 ether, the price assumed when the contract cannot be asked.
var defaultMintPrice = big.NewInt(10_000_000_000_000_000)

// DefaultMintPrice returns a fresh copy of the fallback price in wei.
func DefaultMintPrice() *big.Int {
	return new(big.Int).Set(defaultMintPrice)
}

// MintQuote is the price attached to one build. It is read from the
// contract on every build and never cached.
type MintQuote struct {
	PriceWei *big.Int
	Fallback bool
	// Reason says why the fallback was used.
	Reason string
}

type BuildResult struct {
	Tx       UnsignedTransaction
	CallData []byte
	Quote    MintQuote
}

type buildOptions struct {
	mintFunction  string
	priceFunction string
	fallbackPrice *big.Int
	logger        logging.Logger
}

type BuildOption func(*buildOptions)

// WithMintFunction selects the payable mint function, e.g. "mint" instead of "mintNFT".
func WithMintFunction(name string) BuildOption {
	return func(o *buildOptions) {
		if name != "" {
			o.mintFunction = name
		}
	}
}

func WithPriceFunction(name string) BuildOption {
	return func(o *buildOptions) {
		if name != "" {
			o.priceFunction = name
		}
	}
}

func WithFallbackPrice(wei *big.Int) BuildOption {
	return func(o *buildOptions) {
		if wei != nil && wei.Sign() >= 0 {
			o.fallbackPrice = new(big.Int).Set(wei)
		}
	}
}

func WithBuildLogger(l logging.Logger) BuildOption {
	return func(o *buildOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

func newBuildOptions(opts []BuildOption) buildOptions {
	o := buildOptions{
		mintFunction:  DefaultMintFunction,
		priceFunction: DefaultPriceFunction,
		fallbackPrice: DefaultMintPrice(),
		logger:        logging.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// BuildMintTransaction encodes the mint call for metadataURI and attaches
// the contract's current mint price as value. A price that cannot be read
// is replaced by the fallback and reported through Quote; only encoding
// failures abort the build.
func BuildMintTransaction(
	ctx context.Context,
	reader ContractReader,
	sender common.Address,
	metadataURI string,
	contract common.Address,
	codec *abicodec.Codec,
	opts ...BuildOption,
) (*BuildResult, error) {
	o := newBuildOptions(opts)

	data, err := codec.EncodeCall(abicodec.ContractCallSpec{
		Function: o.mintFunction,
		Args:     []any{metadataURI},
	})
	if err != nil {
		return nil, err
	}

	quote := readMintPrice(ctx, reader, contract, codec, o)

	return &BuildResult{
		Tx: UnsignedTransaction{
			From:  sender,
			To:    contract,
			Data:  data,
			Value: new(big.Int).Set(quote.PriceWei),
		},
		CallData: data,
		Quote:    quote,
	}, nil
}

// ReadMintPrice asks the contract for its mint price, substituting the
// fallback on any failure.
func ReadMintPrice(ctx context.Context, reader ContractReader, contract common.Address, codec *abicodec.Codec, opts ...BuildOption) MintQuote {
	return readMintPrice(ctx, reader, contract, codec, newBuildOptions(opts))
}

func readMintPrice(ctx context.Context, reader ContractReader, contract common.Address, codec *abicodec.Codec, o buildOptions) MintQuote {
	price, err := queryPrice(ctx, reader, contract, codec, o.priceFunction)
	if err != nil {
		o.logger.Warn("mint price unavailable, using fallback",
			"contract", contract.Hex(),
			"fallbackWei", o.fallbackPrice.String(),
			"error", err)
		return MintQuote{PriceWei: new(big.Int).Set(o.fallbackPrice), Fallback: true, Reason: err.Error()}
	}
	return MintQuote{PriceWei: price}
}

func queryPrice(ctx context.Context, reader ContractReader, contract common.Address, codec *abicodec.Codec, fn string) (*big.Int, error) {
	if reader == nil {
		return nil, errors.New("no chain reader configured")
	}
	data, err := codec.EncodeCall(abicodec.ContractCallSpec{Function: fn})
	if err != nil {
		return nil, err
	}
	out, err := reader.Call(ctx, contract, data)
	if err != nil {
		return nil, err
	}
	values, err := codec.DecodeOutput(fn, out)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s returned no values", fn)
	}
	price, ok := values[0].(*big.Int)
	if !ok || price == nil {
		return nil, fmt.Errorf("%s returned %T, want uint256", fn, values[0])
	}
	if price.Sign() < 0 {
		return nil, fmt.Errorf("%s returned negative price", fn)
	}
	return price, nil
}
