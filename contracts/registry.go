package contracts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Deployed contract names.
const (
	FORT               = "FORT"
	TimelockController = "TIMELOCK_CONTROLLER"
	Treasury           = "TREASURY"
	TicketNFT          = "TICKET_NFT"
	Randomness         = "RANDOMNESS"
	PrizePool          = "PRIZE_POOL"
	LotteryManager     = "LOTTERY_MANAGER"
	LoyaltyTracker     = "LOYALTY_TRACKER"
	DAOGovernor        = "DAO_GOVERNOR"
)

// Addresses is the address book of the deployed lottery contracts.
var Addresses = map[string]common.Address{
	FORT:               common.HexToAddress("0x54aAF35f979407Ea7dF7C4Fe4F10403D647494E2"),
	TimelockController: common.HexToAddress("0x4D06ED028B87F528C09EF6BDE5109121D2C33404"),
	Treasury:           common.HexToAddress("0x5Fc19bD5b73F19380a2c5471aE2Fa20DfBF8c200"),
	TicketNFT:          common.HexToAddress("0x0A19C1A8f6A9546f67C7a5a2952C6C0CC570B777"),
	Randomness:         common.HexToAddress("0xbed9670d6EaaED95e6A9D82E02A6182136DeaCb4"),
	PrizePool:          common.HexToAddress("0x7CA7E7E4D31670997aF63A8317430A98475C0E0e"),
	LotteryManager:     common.HexToAddress("0xFD6223c78E6cB083587746c1BaBDf54417033832"),
	LoyaltyTracker:     common.HexToAddress("0xCf741893d85431Fb4563De4B03808AcD9a750C62"),
	DAOGovernor:        common.HexToAddress("0xC5AC9b7cbA6AB2f6090FF15dD16b16E278907F73"),
}

// Cache is the keyed metadata cache. Entries are immutable once written, so
// implementations need no eviction; retention is the process (or store)
// lifetime.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// ABIFetcher retrieves a contract's ABI JSON from an external source.
type ABIFetcher interface {
	FetchABI(ctx context.Context, address common.Address) (string, error)
}

// EtherscanFetcher fetches contract ABIs from an Etherscan-compatible API.
type EtherscanFetcher struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewEtherscanFetcher creates a fetcher against baseURL (e.g. the Sepolia
// API endpoint).
func NewEtherscanFetcher(baseURL, apiKey string, client *http.Client) *EtherscanFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &EtherscanFetcher{baseURL: baseURL, apiKey: apiKey, client: client}
}

// FetchABI retrieves the verified ABI for address.
func (f *EtherscanFetcher) FetchABI(ctx context.Context, address common.Address) (string, error) {
	q := url.Values{}
	q.Set("module", "contract")
	q.Set("action", "getabi")
	q.Set("address", address.Hex())
	if f.apiKey != "" {
		q.Set("apikey", f.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build ABI request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch ABI for %s: %w", address.Hex(), err)
	}
	defer resp.Body.Close()

	var body struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Result  string `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode ABI response: %w", err)
	}
	if body.Status != "1" || body.Result == "" {
		return "", fmt.Errorf("abi lookup for %s failed: %s", address.Hex(), body.Message)
	}

	return body.Result, nil
}

// Registry resolves contract names to parsed ABIs, fetching through the
// configured fetcher and caching raw ABI JSON in the keyed cache. Parsed ABIs
// are additionally memoized in-process since parsing is deterministic.
type Registry struct {
	fetcher ABIFetcher
	cache   Cache
	log     *zap.Logger

	mu     sync.Mutex
	parsed map[string]abi.ABI
}

// NewRegistry creates a new registry.
func NewRegistry(fetcher ABIFetcher, cache Cache, log *zap.Logger) *Registry {
	return &Registry{
		fetcher: fetcher,
		cache:   cache,
		log:     log,
		parsed:  make(map[string]abi.ABI),
	}
}

// Address returns the deployed address for a contract name.
func (r *Registry) Address(name string) (common.Address, error) {
	addr, ok := Addresses[name]
	if !ok {
		return common.Address{}, fmt.Errorf("unknown contract %q", name)
	}
	return addr, nil
}

// ABI returns the parsed ABI for a contract name.
func (r *Registry) ABI(ctx context.Context, name string) (abi.ABI, error) {
	r.mu.Lock()
	if parsed, ok := r.parsed[name]; ok {
		r.mu.Unlock()
		return parsed, nil
	}
	r.mu.Unlock()

	addr, err := r.Address(name)
	if err != nil {
		return abi.ABI{}, err
	}

	raw, ok, err := r.cache.Get(ctx, addr.Hex())
	if err != nil {
		r.log.Warn("abi cache read failed", zap.String("contract", name), zap.Error(err))
		ok = false
	}
	if !ok {
		raw, err = r.fetcher.FetchABI(ctx, addr)
		if err != nil {
			return abi.ABI{}, err
		}
		if err := r.cache.Set(ctx, addr.Hex(), raw); err != nil {
			r.log.Warn("abi cache write failed", zap.String("contract", name), zap.Error(err))
		}
	}

	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse ABI for %s: %w", name, err)
	}

	r.mu.Lock()
	r.parsed[name] = parsed
	r.mu.Unlock()

	return parsed, nil
}
