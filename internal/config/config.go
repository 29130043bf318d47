package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// DefaultABI is the NFT contract interface used when deployments.json does
// not list one.
var DefaultABI = []string{
	"function mintNFT(string memory tokenURI_) public payable",
	"function tokenURI(uint256 tokenId) public view returns (string memory)",
	"function MINT_PRICE() public view returns (uint256)",
	"function withdraw(address payable recipient) public",
	"function ownerOf(uint256 tokenId) public view returns (address)",
	"event Transfer(address indexed from, address indexed to, uint256 indexed tokenId)",
}

// DeploymentConfig represents deployments.json.
type DeploymentConfig struct {
	Network  string `json:"network"`
	ChainID  int64  `json:"chainId"`
	RPCURL   string `json:"rpcUrl"`
	Deployer string `json:"deployer"`
	Contract struct {
		Address          string   `json:"address"`
		ABI              []string `json:"abi"`
		MintFunction     string   `json:"mintFunction"`
		PriceFunction    string   `json:"priceFunction"`
		FallbackPriceWei string   `json:"fallbackPriceWei"`
	} `json:"contract"`
}

// AppConfig ties together deployment info and environment values.
type AppConfig struct {
	Deployment DeploymentConfig
	Service    ServiceConfig
	Chain      ChainConfig
	Contract   ContractConfig
	Signer     SignerConfig
	IPFS       IPFSConfig
}

type ServiceConfig struct {
	Environment          string
	HTTPPort             int
	HMACSecret           string
	HMACClockSkew        time.Duration
	IdempotencyWindow    time.Duration
	IdempotencyStorePath string
	PostgresDSN          string
	ShutdownTimeout      time.Duration
}

type ChainConfig struct {
	RPCURL         string
	ChainID        int64
	RequestTimeout time.Duration
	PollInterval   time.Duration
	ReceiptTimeout time.Duration
	MissingPolls   int
}

type ContractConfig struct {
	Address       common.Address
	ABI           []string
	MintFunction  string
	PriceFunction string
	// FallbackPrice is nil when the built-in default applies.
	FallbackPrice *big.Int
}

type SignerConfig struct {
	RelayURL   string
	ProjectID  string
	PrivateKey string
}

type IPFSConfig struct {
	APIURL string
}

const (
	defaultDeploymentsPath = "deployments.json"
	alchemySepoliaURL      = "https://eth-sepolia.g.alchemy.com/v2/"
)

// Load aggregates configuration from .env, deployments.json and the
// environment, in increasing order of precedence.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(envOr("ENV_FILE", ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	deploymentsPath := envOr("DEPLOYMENTS_PATH", "")
	explicit := deploymentsPath != ""
	if !explicit {
		deploymentsPath = defaultDeploymentsPath
	}
	deployCfg, err := loadDeployments(deploymentsPath)
	if errors.Is(err, os.ErrNotExist) && !explicit {
		deployCfg, err = &DeploymentConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load deployments: %w", err)
	}

	return build(deployCfg)
}

func build(deployCfg *DeploymentConfig) (*AppConfig, error) {
	serviceCfg := ServiceConfig{
		Environment:          envOr("APP_ENV", "development"),
		HTTPPort:             envOrInt("API_HTTP_PORT", 3000),
		HMACSecret:           envOr("HMAC_SECRET", ""),
		HMACClockSkew:        time.Duration(envOrInt("HMAC_CLOCK_SKEW_SECONDS", 60)) * time.Second,
		IdempotencyWindow:    time.Duration(envOrInt("IDEMPOTENCY_WINDOW_SECONDS", 86400)) * time.Second,
		IdempotencyStorePath: envOr("IDEMPOTENCY_STORE_PATH", filepath.Join(os.TempDir(), "nftmint-idem.json")),
		PostgresDSN:          envOr("POSTGRES_DSN", ""),
		ShutdownTimeout:      time.Duration(envOrInt("SHUTDOWN_TIMEOUT_SECONDS", 15)) * time.Second,
	}

	chainCfg := ChainConfig{
		RPCURL:         envOr("CHAIN_RPC_URL", deployCfg.RPCURL),
		ChainID:        deployCfg.ChainID,
		RequestTimeout: time.Duration(envOrInt("RPC_TIMEOUT_MS", 10_000)) * time.Millisecond,
		PollInterval:   time.Duration(envOrInt("RECEIPT_POLL_INTERVAL_MS", 2_000)) * time.Millisecond,
		ReceiptTimeout: time.Duration(envOrInt("RECEIPT_TIMEOUT_SECONDS", 180)) * time.Second,
		MissingPolls:   envOrInt("RECEIPT_MISSING_POLLS", 15),
	}
	if chainCfg.RPCURL == "" {
		if key := envOr("RPC_API_KEY", ""); key != "" {
			chainCfg.RPCURL = alchemySepoliaURL + key
		}
	}

	contractCfg, err := contractConfig(deployCfg)
	if err != nil {
		return nil, err
	}

	return &AppConfig{
		Deployment: *deployCfg,
		Service:    serviceCfg,
		Chain:      chainCfg,
		Contract:   contractCfg,
		Signer: SignerConfig{
			RelayURL:   envOr("SIGNER_RELAY_URL", ""),
			ProjectID:  envOr("WALLET_SESSION_PROJECT_ID", ""),
			PrivateKey: envOr("SIGNER_PRIVATE_KEY", ""),
		},
		IPFS: IPFSConfig{
			APIURL: envOr("IPFS_API_URL", "localhost:5001"),
		},
	}, nil
}

func contractConfig(d *DeploymentConfig) (ContractConfig, error) {
	out := ContractConfig{
		ABI:           d.Contract.ABI,
		MintFunction:  envOr("MINT_FUNCTION", d.Contract.MintFunction),
		PriceFunction: d.Contract.PriceFunction,
	}
	if len(out.ABI) == 0 {
		out.ABI = DefaultABI
	}

	addr := envOr("CONTRACT_ADDRESS", d.Contract.Address)
	if addr != "" {
		if !common.IsHexAddress(addr) {
			return ContractConfig{}, fmt.Errorf("invalid contract address %q", addr)
		}
		out.Address = common.HexToAddress(addr)
	}

	if raw := strings.TrimSpace(d.Contract.FallbackPriceWei); raw != "" {
		price, ok := new(big.Int).SetString(raw, 10)
		if !ok || price.Sign() < 0 {
			return ContractConfig{}, fmt.Errorf("invalid fallbackPriceWei %q", raw)
		}
		out.FallbackPrice = price
	}
	return out, nil
}

func loadDeployments(path string) (*DeploymentConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg DeploymentConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return fallback
}
