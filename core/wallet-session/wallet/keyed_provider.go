package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
	"github.com/sirupsen/logrus"
)

// Backend is what the keyed signer needs from the network. *ethclient.Client
// satisfies it.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// ApproveFunc decides whether a prompt is accepted. method is the EIP-1193
// method being approved; req is nil for account requests.
type ApproveFunc func(method string, req *TxRequest) bool

// KeyedProvider is a development wallet holding a single private key. It
// behaves like an injected wallet that is fixed to one account and one chain.
type KeyedProvider struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	backend Backend
	logger  *logrus.Logger

	mu      sync.Mutex
	approve ApproveFunc

	accountsFeed event.FeedOf[[]common.Address]
	chainFeed    event.FeedOf[*big.Int]
	scope        event.SubscriptionScope
}

// NewKeyedProvider creates a signer from a hex-encoded private key
func NewKeyedProvider(hexKey string, chainID *big.Int, backend Backend, logger *logrus.Logger) (*KeyedProvider, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, fmt.Errorf("invalid chain id %v", chainID)
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &KeyedProvider{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: new(big.Int).Set(chainID),
		backend: backend,
		logger:  logger,
	}, nil
}

// Address returns the signer's account
func (k *KeyedProvider) Address() common.Address {
	return k.address
}

// SetApprove installs a prompt handler; nil approves everything
func (k *KeyedProvider) SetApprove(fn ApproveFunc) {
	k.mu.Lock()
	k.approve = fn
	k.mu.Unlock()
}

func (k *KeyedProvider) approved(method string, req *TxRequest) bool {
	k.mu.Lock()
	fn := k.approve
	k.mu.Unlock()
	return fn == nil || fn(method, req)
}

// RequestAccounts returns the signer's account once approved
func (k *KeyedProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	if !k.approved("eth_requestAccounts", nil) {
		return nil, &ProviderError{Code: CodeUserRejected, Message: "User rejected the request."}
	}
	return []common.Address{k.address}, nil
}

// ChainID returns the chain the signer signs for
func (k *KeyedProvider) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(k.chainID), nil
}

// SwitchChain succeeds only for the signer's own chain
func (k *KeyedProvider) SwitchChain(ctx context.Context, chainID *big.Int) error {
	if chainID != nil && chainID.Cmp(k.chainID) == 0 {
		return nil
	}
	return &ProviderError{
		Code:    CodeUnrecognizedChain,
		Message: fmt.Sprintf("Unrecognized chain ID %v. Try adding the chain using wallet_addEthereumChain first.", chainID),
	}
}

// AddChain is not supported by the development signer
func (k *KeyedProvider) AddChain(ctx context.Context, params ChainParams) error {
	return &ProviderError{Code: CodeUnsupportedMethod, Message: "wallet_addEthereumChain is not supported"}
}

// SendTransaction signs a legacy transaction and submits it through the backend
func (k *KeyedProvider) SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	if req.From != k.address {
		return common.Hash{}, &ProviderError{
			Code:    CodeUnauthorized,
			Message: fmt.Sprintf("account %s is not authorized", req.From.Hex()),
		}
	}
	if !k.approved("eth_sendTransaction", &req) {
		return common.Hash{}, &ProviderError{Code: CodeUserRejected, Message: "User denied transaction signature."}
	}

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := k.backend.PendingNonceAt(ctx, k.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := k.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get gas price: %w", err)
	}
	gas := req.Gas
	if gas == 0 {
		to := req.To
		gas, err = k.backend.EstimateGas(ctx, ethereum.CallMsg{From: k.address, To: &to, Value: value, Data: req.Data})
		if err != nil {
			return common.Hash{}, err
		}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &req.To,
		Value:    value,
		Data:     req.Data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(k.chainID), k.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := k.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}

	k.logger.WithFields(logrus.Fields{
		"tx_hash": signed.Hash().Hex(),
		"nonce":   nonce,
		"to":      req.To.Hex(),
		"value":   value.String(),
	}).Info("📤 Transaction submitted by development signer")
	return signed.Hash(), nil
}

// SubscribeAccountsChanged never fires; the signer's account is fixed
func (k *KeyedProvider) SubscribeAccountsChanged(ch chan<- []common.Address) event.Subscription {
	return k.scope.Track(k.accountsFeed.Subscribe(ch))
}

// SubscribeChainChanged never fires; the signer's chain is fixed
func (k *KeyedProvider) SubscribeChainChanged(ch chan<- *big.Int) event.Subscription {
	return k.scope.Track(k.chainFeed.Subscribe(ch))
}

// Close closes all subscriptions
func (k *KeyedProvider) Close() {
	k.scope.Close()
}
