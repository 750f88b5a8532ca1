package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
	"github.com/sirupsen/logrus"

	"github.com/Shivam-Patel-G/blackhole-fundme/core/wallet-session/config"
	"github.com/Shivam-Patel-G/blackhole-fundme/core/wallet-session/contract"
	"github.com/Shivam-Patel-G/blackhole-fundme/core/wallet-session/wallet"
)

var (
	contractAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	accountA     = common.HexToAddress("0x00000000000000000000000000000000000000aA")
	accountB     = common.HexToAddress("0x00000000000000000000000000000000000000bB")
	oneEther     = big.NewInt(1_000_000_000_000_000_000)
)

var errReadFailed = errors.New("read endpoint unavailable")

// ledger is a simulated chain holding the contract and account balances
type ledger struct {
	mu          sync.Mutex
	owner       common.Address
	balances    map[common.Address]*big.Int
	receipts    map[common.Hash]*types.Receipt
	block       uint64
	calls       int
	failReads   bool
	estimateErr error
	funded      event.FeedOf[*contract.FundMeFunded]
}

func newLedger(owner common.Address) *ledger {
	return &ledger{
		owner: owner,
		balances: map[common.Address]*big.Int{
			contractAddr: big.NewInt(0),
			accountA:     new(big.Int).Set(oneEther),
			accountB:     new(big.Int).Set(oneEther),
		},
		receipts: map[common.Hash]*types.Receipt{},
		block:    100,
	}
}

func (l *ledger) ContractAddress() common.Address { return contractAddr }

func (l *ledger) ContractBalance(ctx context.Context) (*big.Int, error) {
	return l.AccountBalance(ctx, contractAddr)
}

func (l *ledger) AccountBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.failReads {
		return nil, errReadFailed
	}
	if bal, ok := l.balances[account]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

func (l *ledger) Owner(ctx context.Context) (common.Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.failReads {
		return common.Address{}, errReadFailed
	}
	return l.owner, nil
}

func (l *ledger) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.estimateErr != nil {
		return 0, l.estimateErr
	}
	return 50_000, nil
}

func (l *ledger) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return big.NewInt(1_000_000_000), nil
}

func (l *ledger) WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	receipt, ok := l.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (l *ledger) SubscribeFunded(ch chan<- *contract.FundMeFunded) event.Subscription {
	return l.funded.Subscribe(ch)
}

func (l *ledger) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func (l *ledger) balanceOf(account common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balances[account])
}

func (l *ledger) set(fn func(l *ledger)) {
	l.mu.Lock()
	fn(l)
	l.mu.Unlock()
}

// apply executes a write against the simulated contract and mines it
func (l *ledger) apply(req wallet.TxRequest) common.Hash {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.block++
	hash := crypto.Keccak256Hash(req.From.Bytes(), new(big.Int).SetUint64(l.block).Bytes())
	receipt := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      hash,
		BlockNumber: new(big.Int).SetUint64(l.block),
		GasUsed:     40_000,
	}

	withdraw, _ := contract.PackWithdraw()
	switch {
	case bytes.Equal(req.Data, withdraw):
		if req.From != l.owner {
			receipt.Status = types.ReceiptStatusFailed
			break
		}
		l.balances[req.From].Add(l.balances[req.From], l.balances[contractAddr])
		l.balances[contractAddr] = big.NewInt(0)
	default:
		if req.Value != nil {
			l.balances[req.From].Sub(l.balances[req.From], req.Value)
			l.balances[contractAddr].Add(l.balances[contractAddr], req.Value)
		}
	}
	l.receipts[hash] = receipt
	return hash
}

// fakeProvider is an injected wallet backed by the ledger
type fakeProvider struct {
	mu            sync.Mutex
	ledger        *ledger
	accounts      []common.Address
	chainID       *big.Int
	known         map[uint64]bool
	rejectConnect bool
	rejectSwitch  bool
	sendErr       error
	sendGate      chan struct{}
	calls         int
	sent          []wallet.TxRequest
	added         []wallet.ChainParams

	accountsFeed event.FeedOf[[]common.Address]
	chainFeed    event.FeedOf[*big.Int]
}

func newFakeProvider(l *ledger, account common.Address, chainID int64) *fakeProvider {
	return &fakeProvider{
		ledger:   l,
		accounts: []common.Address{account},
		chainID:  big.NewInt(chainID),
		known:    map[uint64]bool{uint64(chainID): true},
	}
}

func (p *fakeProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.rejectConnect {
		return nil, &wallet.ProviderError{Code: wallet.CodeUserRejected, Message: "User rejected the request."}
	}
	return p.accounts, nil
}

func (p *fakeProvider) ChainID(ctx context.Context) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return new(big.Int).Set(p.chainID), nil
}

func (p *fakeProvider) SwitchChain(ctx context.Context, chainID *big.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.rejectSwitch {
		return &wallet.ProviderError{Code: wallet.CodeUserRejected, Message: "User rejected the request."}
	}
	if !p.known[chainID.Uint64()] {
		return &wallet.ProviderError{Code: wallet.CodeUnrecognizedChain, Message: "Unrecognized chain ID"}
	}
	p.chainID = new(big.Int).Set(chainID)
	return nil
}

func (p *fakeProvider) AddChain(ctx context.Context, params wallet.ChainParams) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.added = append(p.added, params)
	p.known[params.ChainID.Uint64()] = true
	p.chainID = new(big.Int).Set(params.ChainID)
	return nil
}

func (p *fakeProvider) SendTransaction(ctx context.Context, req wallet.TxRequest) (common.Hash, error) {
	p.mu.Lock()
	p.calls++
	gate := p.sendGate
	sendErr := p.sendErr
	p.sent = append(p.sent, req)
	p.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if sendErr != nil {
		return common.Hash{}, sendErr
	}
	return p.ledger.apply(req), nil
}

func (p *fakeProvider) SubscribeAccountsChanged(ch chan<- []common.Address) event.Subscription {
	return p.accountsFeed.Subscribe(ch)
}

func (p *fakeProvider) SubscribeChainChanged(ch chan<- *big.Int) event.Subscription {
	return p.chainFeed.Subscribe(ch)
}

func (p *fakeProvider) Close() {}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *fakeProvider) sentTxs() []wallet.TxRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]wallet.TxRequest(nil), p.sent...)
}

func (p *fakeProvider) set(fn func(p *fakeProvider)) {
	p.mu.Lock()
	fn(p)
	p.mu.Unlock()
}

// recordingView remembers every notification
type recordingView struct {
	mu           sync.Mutex
	alerts       []string
	redirects    []string
	errors       []*Error
	unauthorized [][2]common.Address
	cleared      int
	last         Snapshot
}

func (v *recordingView) Alert(message string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.alerts = append(v.alerts, message)
}

func (v *recordingView) Redirect(url string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.redirects = append(v.redirects, url)
}

func (v *recordingView) ShowError(err *Error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.errors = append(v.errors, err)
}

func (v *recordingView) ShowUnauthorized(account, owner common.Address) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.unauthorized = append(v.unauthorized, [2]common.Address{account, owner})
}

func (v *recordingView) ClearAmount() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cleared++
}

func (v *recordingView) Render(s Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.last = s
}

func (v *recordingView) errorCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.errors)
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Network.Name = "Localhost"
	cfg.Network.ChainID = 31337
	cfg.Network.Currency = "ETH"
	cfg.Contract.Address = contractAddr.Hex()
	cfg.Session.PollInterval = time.Hour
	cfg.Session.TxTimeout = time.Second
	return cfg
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fixture struct {
	ledger     *ledger
	provider   *fakeProvider
	view       *recordingView
	controller *Controller
}

// newFixture returns a controller whose wallet is connected as account
func newFixture(t *testing.T, account, owner common.Address) *fixture {
	t.Helper()
	l := newLedger(owner)
	p := newFakeProvider(l, account, 31337)
	v := &recordingView{}
	c := NewController(testConfig(), l, p, Options{View: v, Logger: quietLogger()})
	t.Cleanup(c.Close)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return &fixture{ledger: l, provider: p, view: v, controller: c}
}

func (f *fixture) networkCalls() int {
	return f.ledger.callCount() + f.provider.callCount()
}
