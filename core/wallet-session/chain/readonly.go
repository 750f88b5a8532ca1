package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"
	"github.com/sirupsen/logrus"

	"github.com/Shivam-Patel-G/blackhole-fundme/core/wallet-session/config"
	"github.com/Shivam-Patel-G/blackhole-fundme/core/wallet-session/contract"
)

// Backend is the subset of the JSON-RPC client the read-only binding needs.
// *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractCaller
	bind.ContractFilterer
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

// ReadOnly is the process-wide read-only binding to the target network. It
// is available whether or not a wallet is connected and is safe for
// concurrent use.
type ReadOnly struct {
	backend         Backend
	fundme          *contract.FundMe
	chainID         *big.Int
	confirmations   uint64
	receiptInterval time.Duration
	listener        *Listener
	logger          *logrus.Logger
}

// Dial connects to the configured public RPC endpoint and verifies it serves
// the required chain.
func Dial(ctx context.Context, cfg config.Config, logger *logrus.Logger) (*ReadOnly, error) {
	client, err := ethclient.DialContext(ctx, cfg.Network.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Network.Name, err)
	}

	reader, err := Connect(ctx, client, cfg, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	return reader, nil
}

// Connect binds an already dialed backend after checking its chain id
func Connect(ctx context.Context, backend Backend, cfg config.Config, logger *logrus.Logger) (*ReadOnly, error) {
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query chain id: %w", err)
	}
	if chainID.Cmp(cfg.ChainID()) != 0 {
		return nil, fmt.Errorf("read endpoint serves chain %s, want %d", chainID, cfg.Network.ChainID)
	}
	return New(backend, cfg, logger), nil
}

// New creates a read-only binding over an existing backend
func New(backend Backend, cfg config.Config, logger *logrus.Logger) *ReadOnly {
	if logger == nil {
		logger = logrus.New()
	}
	fundme := contract.NewFundMe(cfg.ContractAddress(), backend, backend)

	return &ReadOnly{
		backend:         backend,
		fundme:          fundme,
		chainID:         cfg.ChainID(),
		confirmations:   cfg.Session.Confirmations,
		receiptInterval: 2 * time.Second,
		listener:        NewListener(backend, fundme, cfg.Session.PollInterval, logger),
		logger:          logger,
	}
}

// Start begins delivering Funded events to subscribers
func (r *ReadOnly) Start() error {
	return r.listener.Start()
}

// Close stops the event listener and closes the RPC connection
func (r *ReadOnly) Close() {
	r.listener.Stop()
	r.backend.Close()
}

// ContractAddress returns the bound contract address
func (r *ReadOnly) ContractAddress() common.Address {
	return r.fundme.Address()
}

// ChainID returns the chain id the endpoint was verified against
func (r *ReadOnly) ChainID() *big.Int {
	return new(big.Int).Set(r.chainID)
}

// ContractBalance returns the contract's native balance in wei
func (r *ReadOnly) ContractBalance(ctx context.Context) (*big.Int, error) {
	return r.backend.BalanceAt(ctx, r.fundme.Address(), nil)
}

// AccountBalance returns an account's native balance in wei
func (r *ReadOnly) AccountBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	return r.backend.BalanceAt(ctx, account, nil)
}

// Owner reads the contract's recorded owner
func (r *ReadOnly) Owner(ctx context.Context) (common.Address, error) {
	return r.fundme.GetOwner(&bind.CallOpts{Context: ctx})
}

// EstimateGas estimates the gas a call would consume
func (r *ReadOnly) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return r.backend.EstimateGas(ctx, msg)
}

// SuggestGasPrice returns the node's suggested legacy gas price
func (r *ReadOnly) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return r.backend.SuggestGasPrice(ctx)
}

// SubscribeFunded delivers Funded events to ch until the subscription is closed
func (r *ReadOnly) SubscribeFunded(ch chan<- *contract.FundMeFunded) event.Subscription {
	return r.listener.Subscribe(ch)
}

// WaitMined blocks until the transaction has a receipt with the configured
// number of confirmations, or ctx is done.
func (r *ReadOnly) WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(r.receiptInterval)
	defer ticker.Stop()

	var receipt *types.Receipt
	for {
		if receipt == nil {
			rcpt, err := r.backend.TransactionReceipt(ctx, hash)
			switch {
			case err == nil:
				receipt = rcpt
			case errors.Is(err, ethereum.NotFound):
			default:
				r.logger.WithError(err).Debugf("Receipt lookup for %s failed", hash.Hex())
			}
		}

		if receipt != nil {
			if r.confirmations <= 1 {
				return receipt, nil
			}
			head, err := r.backend.BlockNumber(ctx)
			if err == nil && head+1 >= receipt.BlockNumber.Uint64()+r.confirmations {
				return receipt, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for transaction %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// IsConnected checks if the endpoint answers
func (r *ReadOnly) IsConnected() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := r.backend.BlockNumber(ctx)
	return err == nil
}
