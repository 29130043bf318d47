package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const deploymentsJSON = `{
  "network": "sepolia",
  "chainId": 11155111,
  "rpcUrl": "https://rpc.sepolia.example",
  "contract": {
    "address": "0x5FbDB2315678afecb367f032d93F642f64180aa3",
    "abi": ["function mint(string uri) payable", "function MINT_PRICE() view returns (uint256)"],
    "mintFunction": "mint",
    "fallbackPriceWei": "20000000000000000"
  }
}`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DeploymentsFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DEPLOYMENTS_PATH", writeFile(t, dir, "deployments.json", deploymentsJSON))
	t.Setenv("ENV_FILE", filepath.Join(dir, "missing.env"))
	t.Setenv("API_HTTP_PORT", "8081")
	t.Setenv("RECEIPT_TIMEOUT_SECONDS", "30")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(11155111), cfg.Chain.ChainID)
	assert.Equal(t, "https://rpc.sepolia.example", cfg.Chain.RPCURL)
	assert.Equal(t, 30*time.Second, cfg.Chain.ReceiptTimeout)
	assert.Equal(t, 8081, cfg.Service.HTTPPort)
	assert.Equal(t, common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"), cfg.Contract.Address)
	assert.Equal(t, "mint", cfg.Contract.MintFunction)
	assert.Len(t, cfg.Contract.ABI, 2)
	require.NotNil(t, cfg.Contract.FallbackPrice)
	assert.Equal(t, "20000000000000000", cfg.Contract.FallbackPrice.String())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DEPLOYMENTS_PATH", writeFile(t, dir, "deployments.json", deploymentsJSON))
	t.Setenv("ENV_FILE", filepath.Join(dir, "missing.env"))
	t.Setenv("CHAIN_RPC_URL", "http://127.0.0.1:8545")
	t.Setenv("CONTRACT_ADDRESS", "0x00000000000000000000000000000000000000aa")
	t.Setenv("MINT_FUNCTION", "mintNFT")
	t.Setenv("WALLET_SESSION_PROJECT_ID", "proj")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8545", cfg.Chain.RPCURL)
	assert.Equal(t, common.HexToAddress("0xaa"), cfg.Contract.Address)
	assert.Equal(t, "mintNFT", cfg.Contract.MintFunction)
	assert.Equal(t, "proj", cfg.Signer.ProjectID)
}

func TestLoad_DefaultsWithoutDeployments(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv("DEPLOYMENTS_PATH", "")
	t.Setenv("CHAIN_RPC_URL", "")
	t.Setenv("RPC_API_KEY", "abc123")
	t.Setenv("ENV_FILE", filepath.Join(dir, "missing.env"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultABI, cfg.Contract.ABI)
	assert.Equal(t, "https://eth-sepolia.g.alchemy.com/v2/abc123", cfg.Chain.RPCURL)
	assert.Nil(t, cfg.Contract.FallbackPrice)
	assert.Equal(t, 15, cfg.Chain.MissingPolls)
}

func TestLoad_ReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DEPLOYMENTS_PATH", writeFile(t, dir, "deployments.json", deploymentsJSON))
	t.Setenv("ENV_FILE", writeFile(t, dir, ".env", "NFTMINT_TEST_ONLY=from-file\nIPFS_API_URL=ipfs:5001\n"))
	t.Cleanup(func() {
		_ = os.Unsetenv("NFTMINT_TEST_ONLY")
		_ = os.Unsetenv("IPFS_API_URL")
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-file", os.Getenv("NFTMINT_TEST_ONLY"))
	assert.Equal(t, "ipfs:5001", cfg.IPFS.APIURL)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ENV_FILE", filepath.Join(dir, "missing.env"))

	t.Setenv("DEPLOYMENTS_PATH", filepath.Join(dir, "nope.json"))
	_, err := Load()
	assert.Error(t, err, "explicit deployments path must exist")

	t.Setenv("DEPLOYMENTS_PATH", writeFile(t, dir, "bad.json", "{"))
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("DEPLOYMENTS_PATH", writeFile(t, dir, "ok.json", deploymentsJSON))
	t.Setenv("CONTRACT_ADDRESS", "0xnothex")
	_, err = Load()
	assert.Error(t, err)
}
