package abicodec

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nftABI = []string{
	"function mintNFT(string memory tokenURI_) public payable",
	"function tokenURI(uint256 tokenId) public view returns (string memory)",
	"function MINT_PRICE() public view returns (uint256)",
	"function withdraw(address payable recipient) public",
	"function ownerOf(uint256 tokenId) public view returns (address)",
	"event Transfer(address indexed from, address indexed to, uint256 indexed tokenId)",
}

func TestParse_CanonicalSignatures(t *testing.T) {
	c, err := Parse(nftABI)
	require.NoError(t, err)

	cases := map[string]string{
		"mintNFT":    "mintNFT(string)",
		"tokenURI":   "tokenURI(uint256)",
		"MINT_PRICE": "MINT_PRICE()",
		"withdraw":   "withdraw(address)",
		"ownerOf":    "ownerOf(uint256)",
	}
	for name, sig := range cases {
		m, err := c.Method(name)
		require.NoError(t, err, name)
		assert.Equal(t, sig, m.Sig)
	}

	m, err := c.Method("mintNFT")
	require.NoError(t, err)
	assert.True(t, m.IsPayable())

	price, err := c.Method("MINT_PRICE")
	require.NoError(t, err)
	assert.True(t, price.IsConstant())
	require.Len(t, price.Outputs, 1)
	assert.Equal(t, "uint256", price.Outputs[0].Type.String())

	ev, err := c.Event("Transfer")
	require.NoError(t, err)
	assert.Equal(t, "Transfer(address,address,uint256)", ev.Sig)
	assert.Equal(t, crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)")), ev.ID)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		sig  string
	}{
		{"no parens", "function mint"},
		{"unbalanced", "function mint(string"},
		{"tuple", "function f((uint256,address) x)"},
		{"unknown type", "function f(money amount)"},
		{"indexed in function", "function f(uint256 indexed x)"},
		{"unknown modifier", "function f() public sometimes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]string{tt.sig})
			assert.Error(t, err)
		})
	}
}

func TestParse_OverloadsAndAliases(t *testing.T) {
	c, err := Parse([]string{
		"function f(uint x)",
		"function f(address who)",
		"mint(string)",
	})
	require.NoError(t, err)

	first, err := c.Method("f")
	require.NoError(t, err)
	assert.Equal(t, "f(uint256)", first.Sig)

	second, err := c.Method("f(address)")
	require.NoError(t, err)
	assert.Equal(t, "f0", second.Name)

	assert.True(t, c.HasMethod("mint(string)"))
}

func TestEncodeCall_SelectorAndArgs(t *testing.T) {
	c := MustParse(nftABI)

	data, err := c.EncodeCall(ContractCallSpec{Function: "mintNFT", Args: []any{"ipfs://QmTest"}})
	require.NoError(t, err)

	selector := crypto.Keccak256([]byte("mintNFT(string)"))[:4]
	assert.Equal(t, selector, data[:4])
	// offset word + length word + one padded word of string data
	assert.Len(t, data, 4+3*32)
	assert.Equal(t, byte(len("ipfs://QmTest")), data[4+63])

	bySig, err := c.EncodeCall(ContractCallSpec{Function: "mintNFT(string)", Args: []any{"ipfs://QmTest"}})
	require.NoError(t, err)
	assert.Equal(t, data, bySig)

	sel, err := c.Selector("mintNFT")
	require.NoError(t, err)
	assert.Equal(t, selector, sel)
}

func TestEncodeCall_CoercesPrimitives(t *testing.T) {
	c := MustParse(append(nftABI, "function setFlags(uint8 a, int64 b, bytes4 tag, bool on)"))

	fromInt, err := c.EncodeCall(ContractCallSpec{Function: "ownerOf", Args: []any{7}})
	require.NoError(t, err)
	fromString, err := c.EncodeCall(ContractCallSpec{Function: "ownerOf", Args: []any{"7"}})
	require.NoError(t, err)
	fromBig, err := c.EncodeCall(ContractCallSpec{Function: "ownerOf", Args: []any{big.NewInt(7)}})
	require.NoError(t, err)
	assert.Equal(t, fromBig, fromInt)
	assert.Equal(t, fromBig, fromString)

	_, err = c.EncodeCall(ContractCallSpec{Function: "withdraw", Args: []any{"0x00000000000000000000000000000000000000aa"}})
	require.NoError(t, err)

	_, err = c.EncodeCall(ContractCallSpec{Function: "setFlags", Args: []any{255, -3, "0xdeadbeef", true}})
	require.NoError(t, err)
}

func TestEncodeCall_Errors(t *testing.T) {
	c := MustParse(nftABI)

	tests := []struct {
		name string
		spec ContractCallSpec
	}{
		{"unknown function", ContractCallSpec{Function: "burn", Args: []any{1}}},
		{"missing argument", ContractCallSpec{Function: "mintNFT"}},
		{"extra argument", ContractCallSpec{Function: "mintNFT", Args: []any{"a", "b"}}},
		{"wrong type", ContractCallSpec{Function: "mintNFT", Args: []any{42}}},
		{"bad address", ContractCallSpec{Function: "withdraw", Args: []any{"not-an-address"}}},
		{"negative uint", ContractCallSpec{Function: "ownerOf", Args: []any{-1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.EncodeCall(tt.spec)
			var encErr *EncodingError
			require.True(t, errors.As(err, &encErr), "got %v", err)
		})
	}
}

func TestDecodeOutput_MintPrice(t *testing.T) {
	c := MustParse(nftABI)

	word := common.LeftPadBytes(big.NewInt(10_000_000_000_000_000).Bytes(), 32)
	values, err := c.DecodeOutput("MINT_PRICE", word)
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, "10000000000000000", values[0].(*big.Int).String())

	_, err = c.DecodeOutput("MINT_PRICE", nil)
	assert.Error(t, err)
}

func TestDecodeLog_RoundTripTransfer(t *testing.T) {
	c := MustParse(nftABI)
	contract := common.HexToAddress("0xabc0000000000000000000000000000000000abc")
	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")

	log, err := c.EncodeLog("Transfer", contract, common.Address{}, owner, big.NewInt(7))
	require.NoError(t, err)
	require.Len(t, log.Topics, 4)
	assert.Empty(t, log.Data)

	ev, err := c.DecodeLog(log, []string{"Transfer"})
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, "Transfer", ev.Name)
	assert.Equal(t, contract, ev.Address)

	from, ok := ev.AddressArg("from")
	require.True(t, ok)
	assert.Equal(t, common.Address{}, from)
	to, ok := ev.AddressArg("to")
	require.True(t, ok)
	assert.Equal(t, owner, to)
	id, ok := ev.BigIntArg("tokenId")
	require.True(t, ok)
	assert.Equal(t, int64(7), id.Int64())
}

func TestDecodeLog_NonIndexedData(t *testing.T) {
	c := MustParse([]string{"event Approval(address indexed owner, address indexed spender, uint256 value)"})
	owner := common.HexToAddress("0x01")
	spender := common.HexToAddress("0x02")

	log, err := c.EncodeLog("Approval", common.Address{}, owner, spender, "123456789012345678901234567890")
	require.NoError(t, err)
	assert.Len(t, log.Topics, 3)
	assert.Len(t, log.Data, 32)

	ev, err := c.DecodeLog(log, []string{"Approval(address,address,uint256)"})
	require.NoError(t, err)
	require.NotNil(t, ev)
	value, ok := ev.BigIntArg("value")
	require.True(t, ok)
	assert.Equal(t, "123456789012345678901234567890", value.String())
}

func TestDecodeLog_NoMatchIsNotAnError(t *testing.T) {
	c := MustParse(nftABI)

	other := types.Log{Topics: []common.Hash{crypto.Keccak256Hash([]byte("Approval(address,address,uint256)"))}}
	ev, err := c.DecodeLog(other, []string{"Transfer"})
	assert.NoError(t, err)
	assert.Nil(t, ev)

	ev, err = c.DecodeLog(types.Log{}, []string{"Transfer"})
	assert.NoError(t, err)
	assert.Nil(t, ev)
}

func TestDecodeLog_ERC20ShapedTransferDoesNotFit(t *testing.T) {
	c := MustParse(nftABI)
	erc20 := MustParse([]string{"event Transfer(address indexed from, address indexed to, uint256 value)"})

	log, err := erc20.EncodeLog("Transfer", common.Address{}, common.HexToAddress("0x01"), common.HexToAddress("0x02"), 5)
	require.NoError(t, err)

	ev, err := c.DecodeLog(log, []string{"Transfer"})
	assert.Error(t, err)
	assert.Nil(t, ev)
}

func TestDecodeLog_StandaloneSignature(t *testing.T) {
	c := MustParse(nil)
	sig := "event Transfer(address indexed from, address indexed to, uint256 indexed tokenId)"

	log, err := c.EncodeLog(sig, common.Address{}, common.Address{}, common.HexToAddress("0x03"), 9)
	require.NoError(t, err)

	ev, err := c.DecodeLog(log, []string{sig})
	require.NoError(t, err)
	require.NotNil(t, ev)
	id, _ := ev.BigIntArg("tokenId")
	assert.Equal(t, int64(9), id.Int64())

	_, err = c.DecodeLog(log, []string{"Transfer"})
	assert.Error(t, err, "unknown event reference must surface")
}
