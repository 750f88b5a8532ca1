package wallet

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
)

// RPCProvider talks to an EIP-1193 wallet that exposes its provider over
// JSON-RPC, such as Frame. Account and chain changes are detected by polling.
type RPCProvider struct {
	client   *rpc.Client
	interval time.Duration
	logger   *logrus.Logger

	accountsFeed event.FeedOf[[]common.Address]
	chainFeed    event.FeedOf[*big.Int]
	scope        event.SubscriptionScope

	mu       sync.Mutex
	watching bool
	closed   bool
	quit     chan struct{}
	done     chan struct{}

	// owned by the watch goroutine
	accounts []common.Address
	chainID  *big.Int
}

type txArgs struct {
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
	Data  hexutil.Bytes   `json:"data,omitempty"`
	Gas   *hexutil.Uint64 `json:"gas,omitempty"`
}

type switchChainArgs struct {
	ChainID *hexutil.Big `json:"chainId"`
}

type addChainArgs struct {
	ChainID           *hexutil.Big   `json:"chainId"`
	ChainName         string         `json:"chainName"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty"`
}

// DialRPC connects to a wallet's JSON-RPC endpoint
func DialRPC(ctx context.Context, rawurl string, interval time.Duration, logger *logrus.Logger) (*RPCProvider, error) {
	client, err := rpc.DialContext(ctx, rawurl)
	if err != nil {
		return nil, fmt.Errorf("failed to dial wallet at %s: %w", rawurl, err)
	}
	return NewRPCProvider(client, interval, logger), nil
}

// NewRPCProvider wraps an existing RPC client
func NewRPCProvider(client *rpc.Client, interval time.Duration, logger *logrus.Logger) *RPCProvider {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &RPCProvider{
		client:   client,
		interval: interval,
		logger:   logger,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// RequestAccounts asks the wallet for account access. The wallet may prompt
// the user.
func (p *RPCProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := p.call(ctx, &accounts, "eth_requestAccounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

// ChainID returns the chain the wallet is currently on
func (p *RPCProvider) ChainID(ctx context.Context) (*big.Int, error) {
	var id hexutil.Big
	if err := p.call(ctx, &id, "eth_chainId"); err != nil {
		return nil, err
	}
	return (*big.Int)(&id), nil
}

// SwitchChain asks the wallet to switch networks
func (p *RPCProvider) SwitchChain(ctx context.Context, chainID *big.Int) error {
	return p.call(ctx, nil, "wallet_switchEthereumChain", switchChainArgs{ChainID: (*hexutil.Big)(chainID)})
}

// AddChain asks the wallet to add and switch to a network it does not know
func (p *RPCProvider) AddChain(ctx context.Context, params ChainParams) error {
	return p.call(ctx, nil, "wallet_addEthereumChain", addChainArgs{
		ChainID:           (*hexutil.Big)(params.ChainID),
		ChainName:         params.ChainName,
		NativeCurrency:    params.Currency,
		RPCURLs:           params.RPCURLs,
		BlockExplorerURLs: params.ExplorerURLs,
	})
}

// SendTransaction hands the transaction to the wallet for signing and
// submission and returns its hash.
func (p *RPCProvider) SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	to := req.To
	args := txArgs{From: req.From, To: &to, Data: req.Data}
	if req.Value != nil {
		args.Value = (*hexutil.Big)(req.Value)
	}
	if req.Gas != 0 {
		gas := hexutil.Uint64(req.Gas)
		args.Gas = &gas
	}

	var hash common.Hash
	if err := p.call(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

// SubscribeAccountsChanged delivers the wallet's account list whenever it changes
func (p *RPCProvider) SubscribeAccountsChanged(ch chan<- []common.Address) event.Subscription {
	p.ensureWatching()
	return p.scope.Track(p.accountsFeed.Subscribe(ch))
}

// SubscribeChainChanged delivers the wallet's chain id whenever it changes
func (p *RPCProvider) SubscribeChainChanged(ch chan<- *big.Int) event.Subscription {
	p.ensureWatching()
	return p.scope.Track(p.chainFeed.Subscribe(ch))
}

// Close stops change detection, closes subscriptions and the connection
func (p *RPCProvider) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	watching := p.watching
	p.mu.Unlock()

	close(p.quit)
	p.scope.Close()
	if watching {
		<-p.done
	}
	p.client.Close()
}

func (p *RPCProvider) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	err := p.client.CallContext(ctx, result, method, args...)
	if err == nil {
		return nil
	}
	if perr, ok := AsProviderError(err); ok {
		return perr
	}
	return fmt.Errorf("%s: %w", method, err)
}

func (p *RPCProvider) ensureWatching() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.watching || p.closed {
		return
	}
	p.watching = true
	go p.watch()
}

func (p *RPCProvider) watch() {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(true)
	for {
		select {
		case <-p.quit:
			return
		case <-ticker.C:
			p.poll(false)
		}
	}
}

// poll compares the wallet's accounts and chain with the last observed
// values. The first pass only records a baseline.
func (p *RPCProvider) poll(baseline bool) {
	ctx, cancel := context.WithTimeout(context.Background(), p.interval)
	defer cancel()

	var accounts []common.Address
	if err := p.client.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		p.logger.WithError(err).Debug("Wallet account poll failed")
	} else if baseline || !sameAccounts(accounts, p.accounts) {
		changed := !baseline
		p.accounts = accounts
		if changed {
			p.logger.WithField("accounts", len(accounts)).Info("👛 Wallet accounts changed")
			p.accountsFeed.Send(accounts)
		}
	}

	chainID, err := p.ChainID(ctx)
	if err != nil {
		p.logger.WithError(err).Debug("Wallet chain poll failed")
		return
	}
	if p.chainID != nil && p.chainID.Cmp(chainID) == 0 {
		return
	}
	changed := p.chainID != nil && !baseline
	p.chainID = chainID
	if changed {
		p.logger.WithField("chain_id", chainID.String()).Info("🌐 Wallet chain changed")
		p.chainFeed.Send(chainID)
	}
}

func sameAccounts(a, b []common.Address) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
