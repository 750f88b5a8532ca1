package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"

	"github.com/Shivam-Patel-G/blackhole-fundme/core/wallet-session/config"
)

// EIP-1193 provider error codes
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupportedMethod = 4200
	CodeDisconnected      = 4900
	CodeChainDisconnected = 4901
	CodeUnrecognizedChain = 4902
	CodeRequestPending    = -32002
)

// ErrNotFound is returned when no wallet provider is configured or reachable
var ErrNotFound = errors.New("no wallet provider found")

// DefaultWatchInterval is how often a polling provider checks for account
// and chain changes.
var DefaultWatchInterval = 2 * time.Second

// Provider is the boundary to a user-controlled wallet. Every state-changing
// contract call goes through SendTransaction.
type Provider interface {
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SwitchChain(ctx context.Context, chainID *big.Int) error
	AddChain(ctx context.Context, params ChainParams) error
	SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error)
	SubscribeAccountsChanged(ch chan<- []common.Address) event.Subscription
	SubscribeChainChanged(ch chan<- *big.Int) event.Subscription
	Close()
}

// TxRequest is a transaction for the wallet to sign and submit
type TxRequest struct {
	From  common.Address
	To    common.Address
	Value *big.Int
	Data  []byte
	Gas   uint64 // zero lets the wallet estimate
}

// NativeCurrency describes a chain's native currency for wallet_addEthereumChain
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// ChainParams is the payload of wallet_addEthereumChain
type ChainParams struct {
	ChainID      *big.Int
	ChainName    string
	Currency     NativeCurrency
	RPCURLs      []string
	ExplorerURLs []string
}

// ParamsFor builds add-chain parameters for a configured network
func ParamsFor(network config.NetworkConfig) ChainParams {
	params := ChainParams{
		ChainID:   new(big.Int).SetUint64(network.ChainID),
		ChainName: network.Name,
		Currency:  NativeCurrency{Name: network.Currency, Symbol: network.Currency, Decimals: 18},
		RPCURLs:   []string{network.RPCURL},
	}
	if network.ExplorerURL != "" {
		params.ExplorerURLs = []string{network.ExplorerURL}
	}
	return params
}

// ProviderError is an error reported by the wallet. It carries the EIP-1193
// code and optional data such as revert bytes.
type ProviderError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("wallet error %d", e.Code)
	}
	return e.Message
}

// ErrorCode implements rpc.Error
func (e *ProviderError) ErrorCode() int { return e.Code }

// ErrorData implements rpc.DataError
func (e *ProviderError) ErrorData() interface{} { return e.Data }

// AsProviderError extracts a wallet error code from err, whether it was
// produced locally or decoded from a JSON-RPC response.
func AsProviderError(err error) (*ProviderError, bool) {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr, true
	}
	var rerr rpc.Error
	if !errors.As(err, &rerr) {
		return nil, false
	}
	perr = &ProviderError{Code: rerr.ErrorCode(), Message: rerr.Error()}
	var derr rpc.DataError
	if errors.As(err, &derr) {
		perr.Data = derr.ErrorData()
	}
	return perr, true
}

// HasCode reports whether err carries the given wallet error code
func HasCode(err error, code int) bool {
	perr, ok := AsProviderError(err)
	return ok && perr.Code == code
}

// Open returns the wallet provider selected by cfg. backend is only used by
// the keyed development signer. It returns an error wrapping ErrNotFound when
// no wallet is configured or the configured one does not answer.
func Open(ctx context.Context, cfg config.Config, backend Backend, logger *logrus.Logger) (Provider, error) {
	if logger == nil {
		logger = logrus.New()
	}

	switch cfg.Wallet.Mode {
	case config.WalletModeRPC:
		provider, err := DialRPC(ctx, cfg.Wallet.URL, DefaultWatchInterval, logger)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		if _, err := provider.ChainID(ctx); err != nil {
			provider.Close()
			return nil, fmt.Errorf("%w: wallet at %s did not answer: %v", ErrNotFound, cfg.Wallet.URL, err)
		}
		logger.Infof("👛 Wallet provider reachable at %s", cfg.Wallet.URL)
		return provider, nil

	case config.WalletModeKeyed:
		if backend == nil {
			return nil, fmt.Errorf("%w: keyed wallet needs a network backend", ErrNotFound)
		}
		provider, err := NewKeyedProvider(cfg.Wallet.PrivateKey, cfg.ChainID(), backend, logger)
		if err != nil {
			return nil, err
		}
		logger.Warnf("🔑 Using development signer %s", provider.Address().Hex())
		return provider, nil

	default:
		return nil, ErrNotFound
	}
}

// DeepLink builds a mobile wallet deep link that opens dappURL inside the
// wallet's browser, e.g. https://metamask.app.link/dapp/example.org/fund.
func DeepLink(base, dappURL string) (string, error) {
	if base == "" || dappURL == "" {
		return "", errors.New("deep link needs a base and a dapp url")
	}

	u, err := url.Parse(dappURL)
	if err != nil {
		return "", fmt.Errorf("invalid dapp url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("dapp url %q has no host", dappURL)
	}

	target := u.Host + u.EscapedPath()
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	return strings.TrimSuffix(base, "/") + "/" + target, nil
}
