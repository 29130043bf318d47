package mint

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"nftmint/internal/abicodec"
)

var nftABI = []string{
	"function mintNFT(string memory tokenURI_) public payable",
	"function tokenURI(uint256 tokenId) public view returns (string memory)",
	"function MINT_PRICE() public view returns (uint256)",
	"function withdraw(address payable recipient) public",
	"function ownerOf(uint256 tokenId) public view returns (address)",
	"event Transfer(address indexed from, address indexed to, uint256 indexed tokenId)",
}

var (
	contractAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	senderAddr   = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	otherAddr    = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

func testCodec(t *testing.T) *abicodec.Codec {
	t.Helper()
	c, err := abicodec.Parse(nftABI)
	require.NoError(t, err)
	return c
}

func priceWord(wei int64) []byte {
	return common.LeftPadBytes(big.NewInt(wei).Bytes(), 32)
}

type stubReader struct {
	mu    sync.Mutex
	out   []byte
	err   error
	calls int
	data  [][]byte
}

func (s *stubReader) Call(_ context.Context, _ common.Address, data []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.data = append(s.data, data)
	return s.out, s.err
}

type stubWaiter struct {
	receipt *types.Receipt
	err     error
	calls   int
}

func (s *stubWaiter) WaitForTransaction(context.Context, common.Hash) (*types.Receipt, error) {
	s.calls++
	return s.receipt, s.err
}

type stubSender struct {
	hash common.Hash
	err  error
	sent []UnsignedTransaction
}

func (s *stubSender) SendTransaction(_ context.Context, tx UnsignedTransaction) (common.Hash, error) {
	s.sent = append(s.sent, tx)
	return s.hash, s.err
}

type stubOracle struct {
	gas      uint64
	price    *big.Int
	gasErr   error
	lastCall ethereum.CallMsg
}

func (s *stubOracle) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	s.lastCall = msg
	return s.gas, s.gasErr
}

func (s *stubOracle) SuggestGasPrice(context.Context) (*big.Int, error) {
	return s.price, nil
}

type stubProbe struct {
	stubReader
	block    uint64
	blockErr error
	code     []byte
}

func (s *stubProbe) BlockNumber(context.Context) (uint64, error) { return s.block, s.blockErr }

func (s *stubProbe) CodeAt(context.Context, common.Address) ([]byte, error) { return s.code, nil }

func transferLog(t *testing.T, c *abicodec.Codec, from, to common.Address, id int64) *types.Log {
	t.Helper()
	l, err := c.EncodeLog(TransferEventSignature, contractAddr, from, to, id)
	require.NoError(t, err)
	return &l
}

var errStub = errors.New("stub failure")
