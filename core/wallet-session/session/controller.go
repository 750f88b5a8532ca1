package session

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/sirupsen/logrus"

	"github.com/Shivam-Patel-G/blackhole-fundme/core/wallet-session/config"
	"github.com/Shivam-Patel-G/blackhole-fundme/core/wallet-session/contract"
	"github.com/Shivam-Patel-G/blackhole-fundme/core/wallet-session/journal"
	"github.com/Shivam-Patel-G/blackhole-fundme/core/wallet-session/monitoring"
	"github.com/Shivam-Patel-G/blackhole-fundme/core/wallet-session/units"
	"github.com/Shivam-Patel-G/blackhole-fundme/core/wallet-session/wallet"
)

// Balance refresh triggers
const (
	SourceManual = "manual"
	SourceTimer  = "timer"
	SourceEvent  = "event"
	SourceWrite  = "write"
)

// Reader is the read-only binding the controller queries. chain.ReadOnly
// implements it.
type Reader interface {
	ContractAddress() common.Address
	ContractBalance(ctx context.Context) (*big.Int, error)
	AccountBalance(ctx context.Context, account common.Address) (*big.Int, error)
	Owner(ctx context.Context) (common.Address, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	SubscribeFunded(ch chan<- *contract.FundMeFunded) event.Subscription
}

// Session is the connected wallet state
type Session struct {
	Account   common.Address
	Connected bool
	NetworkID *big.Int // wallet's chain; nil until known
}

// DisplayedBalance is the last successfully read contract balance
type DisplayedBalance struct {
	AmountWei     *big.Int
	LastRefreshed time.Time
}

// Options carries the controller's optional collaborators
type Options struct {
	View    View
	Logger  *logrus.Logger
	Journal *journal.Journal
	Metrics *monitoring.Metrics
}

// Controller is the wallet session controller. It mediates every contract
// call: reads go through the read-only binding, writes through the wallet.
type Controller struct {
	cfg      config.Config
	reader   Reader
	provider wallet.Provider // nil when no wallet is present
	view     View
	logger   *logrus.Logger
	journal  *journal.Journal
	metrics  *monitoring.Metrics
	now      func() time.Time

	mu      sync.RWMutex
	session Session
	balance DisplayedBalance

	writing atomic.Bool

	lifecycle sync.Mutex
	started   bool
	closed    bool
	subs      []event.Subscription
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewController creates a controller. provider may be nil when no wallet is
// available; reads keep working and connect informs the user.
func NewController(cfg config.Config, reader Reader, provider wallet.Provider, opts Options) *Controller {
	if opts.View == nil {
		opts.View = NopView{}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	return &Controller{
		cfg:      cfg,
		reader:   reader,
		provider: provider,
		view:     opts.View,
		logger:   opts.Logger,
		journal:  opts.Journal,
		metrics:  opts.Metrics,
		now:      time.Now,
		balance:  DisplayedBalance{AmountWei: new(big.Int)},
	}
}

// Start subscribes to wallet and contract notifications, starts the poll
// timer and performs an initial balance refresh.
func (c *Controller) Start(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.closed {
		return errors.New("controller is closed")
	}
	if c.started {
		return errors.New("controller is already running")
	}
	c.started = true

	var (
		accountsCh chan []common.Address
		chainCh    chan *big.Int
	)
	if c.provider != nil {
		accountsCh = make(chan []common.Address, 1)
		chainCh = make(chan *big.Int, 1)
		c.track(c.provider.SubscribeAccountsChanged(accountsCh))
		c.track(c.provider.SubscribeChainChanged(chainCh))
	}
	fundedCh := make(chan *contract.FundMeFunded, 16)
	fundedSub := c.reader.SubscribeFunded(fundedCh)
	c.track(fundedSub)

	loopCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.loop(loopCtx, accountsCh, chainCh, fundedCh, fundedSub)

	c.refresh(ctx, SourceManual)
	c.logger.WithFields(logrus.Fields{
		"contract": c.reader.ContractAddress().Hex(),
		"network":  c.cfg.Network.Name,
		"wallet":   c.provider != nil,
	}).Info("🚀 Wallet session controller started")
	return nil
}

func (c *Controller) track(sub event.Subscription) {
	if sub != nil {
		c.subs = append(c.subs, sub)
	}
}

// Close unsubscribes from every notification source and stops the timer.
// It does not close the reader or the wallet.
func (c *Controller) Close() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.closed {
		return
	}
	c.closed = true

	for _, sub := range c.subs {
		sub.Unsubscribe()
	}
	c.subs = nil
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	c.logger.Info("🛑 Wallet session controller stopped")
}

func (c *Controller) loop(ctx context.Context, accountsCh <-chan []common.Address, chainCh <-chan *big.Int, fundedCh <-chan *contract.FundMeFunded, fundedSub event.Subscription) {
	defer close(c.done)

	ticker := time.NewTicker(c.cfg.Session.PollInterval)
	defer ticker.Stop()

	var fundedErr <-chan error
	if fundedSub != nil {
		fundedErr = fundedSub.Err()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case accounts := <-accountsCh:
			c.handleAccountsChanged(accounts)
		case chainID := <-chainCh:
			c.handleChainChanged(chainID)
		case ev := <-fundedCh:
			c.metrics.FundedEvent()
			c.logger.WithFields(logrus.Fields{
				"funder": ev.Funder.Hex(),
				"amount": units.FormatEther(ev.Amount),
			}).Info("💰 Funded event received")
			c.refreshWithTimeout(ctx, SourceEvent)
		case err, ok := <-fundedErr:
			if ok && err != nil {
				c.logger.WithError(err).Warn("⚠️ Funded subscription ended, relying on the poll timer")
			}
			fundedErr = nil
			fundedCh = nil
		case <-ticker.C:
			c.refreshWithTimeout(ctx, SourceTimer)
		}
	}
}

func (c *Controller) refreshWithTimeout(ctx context.Context, source string) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Session.PollInterval)
	defer cancel()
	c.refresh(ctx, source)
}

// handleAccountsChanged follows the wallet's active account. An empty list
// means the wallet disconnected this site.
func (c *Controller) handleAccountsChanged(accounts []common.Address) {
	c.metrics.WalletEvent("accounts")

	c.mu.Lock()
	if !c.session.Connected {
		c.mu.Unlock()
		return
	}
	if len(accounts) == 0 {
		previous := c.session.Account
		c.session.Account = common.Address{}
		c.session.Connected = false
		c.mu.Unlock()

		c.metrics.SetConnected(false)
		c.logger.WithField("account", previous.Hex()).Info("🔌 Wallet disconnected")
		c.render()
		return
	}
	if accounts[0] == c.session.Account {
		c.mu.Unlock()
		return
	}
	c.session.Account = accounts[0]
	c.mu.Unlock()

	c.logger.WithField("account", accounts[0].Hex()).Info("👛 Active wallet account changed")
	c.render()
}

// handleChainChanged records the wallet's new network; the account stays
func (c *Controller) handleChainChanged(chainID *big.Int) {
	c.metrics.WalletEvent("chain")
	if chainID == nil {
		return
	}

	c.mu.Lock()
	c.session.NetworkID = new(big.Int).Set(chainID)
	c.mu.Unlock()

	entry := c.logger.WithField("chain_id", chainID.String())
	if chainID.Cmp(c.cfg.ChainID()) != 0 {
		entry.Warnf("⚠️ Wallet switched away from %s", c.cfg.Network.Name)
	} else {
		entry.Info("🌐 Wallet is on the required network")
	}
	c.render()
}

// Connect requests account access from the wallet and stores the first
// account. With no wallet the user is alerted or redirected to a mobile deep
// link. A rejected request is logged and leaves the session unchanged.
func (c *Controller) Connect(ctx context.Context) error {
	const op = "connect"

	if c.provider == nil {
		return c.walletAbsent(op)
	}

	accounts, err := c.provider.RequestAccounts(ctx)
	if err != nil {
		e := Classify(op, err)
		if e.Kind == KindUserRejected {
			c.logger.WithError(err).Info("🙅 Wallet connection rejected by user")
			return nil
		}
		c.logger.WithError(err).Warn("❌ Wallet connection failed")
		c.view.ShowError(e)
		return e
	}
	if len(accounts) == 0 {
		e := newError(op, KindNotConnected, "Wallet returned no accounts", nil)
		c.view.ShowError(e)
		return e
	}

	chainID, err := c.provider.ChainID(ctx)
	if err != nil {
		e := Classify(op, err)
		c.view.ShowError(e)
		return e
	}

	c.mu.Lock()
	c.session = Session{Account: accounts[0], Connected: true, NetworkID: chainID}
	c.mu.Unlock()

	c.metrics.SetConnected(true)
	c.logger.WithFields(logrus.Fields{
		"account":  accounts[0].Hex(),
		"chain_id": chainID.String(),
	}).Info("✅ Connected with account")
	c.render()
	return nil
}

func (c *Controller) walletAbsent(op string) *Error {
	w := c.cfg.Wallet
	if w.Mobile && w.DappURL != "" {
		link, err := wallet.DeepLink(w.DeepLinkBase, w.DappURL)
		if err == nil {
			c.logger.WithField("url", link).Info("📱 No wallet present, redirecting to wallet app")
			c.view.Redirect(link)
			return newError(op, KindWalletAbsent, "Opening the wallet app", wallet.ErrNotFound)
		}
		c.logger.WithError(err).Warn("⚠️ Cannot build wallet deep link")
	}

	e := newError(op, KindWalletAbsent, "Please install MetaMask!", wallet.ErrNotFound)
	c.logger.Warn("⚠️ No wallet present")
	c.view.Alert(e.Message)
	return e
}

// EnsureCorrectNetwork asks the wallet to switch to the required network
// when it is elsewhere, adding the network first if the wallet does not know
// it. A refusal aborts the caller's action.
func (c *Controller) EnsureCorrectNetwork(ctx context.Context) error {
	const op = "switch_network"

	if c.provider == nil {
		return c.walletAbsent(op)
	}

	required := c.cfg.ChainID()
	current, err := c.provider.ChainID(ctx)
	if err != nil {
		e := Classify(op, err)
		c.view.ShowError(e)
		return e
	}
	if current.Cmp(required) == 0 {
		c.setNetwork(current)
		return nil
	}

	c.logger.WithFields(logrus.Fields{
		"current":  current.String(),
		"required": required.String(),
	}).Info("🔄 Requesting network switch")

	err = c.provider.SwitchChain(ctx, required)
	if wallet.HasCode(err, wallet.CodeUnrecognizedChain) {
		c.logger.Infof("➕ Wallet does not know %s, requesting it be added", c.cfg.Network.Name)
		err = c.provider.AddChain(ctx, wallet.ParamsFor(c.cfg.Network))
	}
	if err == nil {
		current, err = c.provider.ChainID(ctx)
		if err == nil && current.Cmp(required) != 0 {
			err = fmt.Errorf("wallet is still on chain %s", current)
		}
	}
	if err != nil {
		e := newError(op, KindWrongNetwork, fmt.Sprintf("Please switch your wallet to %s", c.cfg.Network.Name), err)
		c.logger.WithError(err).Warn("❌ Network switch refused")
		c.view.ShowError(e)
		return e
	}

	c.setNetwork(current)
	c.logger.Infof("✅ Wallet switched to %s", c.cfg.Network.Name)
	return nil
}

func (c *Controller) setNetwork(chainID *big.Int) {
	c.mu.Lock()
	c.session.NetworkID = new(big.Int).Set(chainID)
	c.mu.Unlock()
	c.render()
}

// RefreshBalance reads the contract balance through the read-only binding.
// On failure the previous value is kept and returned.
func (c *Controller) RefreshBalance(ctx context.Context) DisplayedBalance {
	return c.refresh(ctx, SourceManual)
}

func (c *Controller) refresh(ctx context.Context, source string) DisplayedBalance {
	wei, err := c.reader.ContractBalance(ctx)
	c.metrics.ObserveRefresh(source, err)
	if err != nil {
		c.logger.WithError(err).WithField("source", source).Warn("⚠️ Balance refresh failed, keeping last value")
		return c.Balance()
	}

	now := c.now()
	c.mu.Lock()
	c.balance = DisplayedBalance{AmountWei: new(big.Int).Set(wei), LastRefreshed: now}
	c.mu.Unlock()

	c.metrics.SetBalance(wei, now)
	c.logger.WithFields(logrus.Fields{
		"balance": units.FormatEther(wei),
		"source":  source,
	}).Debug("Balance refreshed")
	c.render()
	return c.Balance()
}

// Balance returns the displayed balance
func (c *Controller) Balance() DisplayedBalance {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return DisplayedBalance{AmountWei: new(big.Int).Set(c.balance.AmountWei), LastRefreshed: c.balance.LastRefreshed}
}

// Session returns a copy of the session state
func (c *Controller) Session() Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.session
	if s.NetworkID != nil {
		s.NetworkID = new(big.Int).Set(s.NetworkID)
	}
	return s
}

// Snapshot returns the presentation state
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Connected:       c.session.Connected,
		RequiredNetwork: c.cfg.Network.Name,
		WalletAvailable: c.provider != nil,
		Contract:        c.reader.ContractAddress().Hex(),
		Currency:        c.cfg.Network.Currency,
		Balance:         units.FormatEther(c.balance.AmountWei),
		BalanceWei:      c.balance.AmountWei.String(),
		LastRefreshed:   c.balance.LastRefreshed,
		Pending:         c.writing.Load(),
	}
	if c.session.Connected {
		s.Account = c.session.Account.Hex()
	}
	if c.session.NetworkID != nil {
		s.NetworkID = c.session.NetworkID.String()
		s.CorrectNetwork = c.session.NetworkID.Cmp(c.cfg.ChainID()) == 0
	}
	return s
}

func (c *Controller) render() {
	c.view.Render(c.Snapshot())
}

// Fund sends amount, given in display units, to the contract's payable
// entrypoint and waits for confirmation.
func (c *Controller) Fund(ctx context.Context, amount string) (*types.Receipt, error) {
	const op = "fund"

	value, err := units.ParseEther(amount)
	if err != nil || value.Sign() <= 0 {
		e := newError(op, KindInvalidInput, "Please enter a valid amount greater than 0", err)
		c.metrics.ObserveWrite(op, e.Kind.String(), 0)
		c.view.ShowError(e)
		return nil, e
	}

	release, e := c.acquire(op)
	if e != nil {
		return nil, e
	}
	defer release()

	account, err := c.signer(ctx, op)
	if err != nil {
		return nil, c.fail(op, account, value, err)
	}

	data, err := contract.PackFund(c.cfg.Contract.FundMethod)
	if err != nil {
		return nil, c.fail(op, account, value, err)
	}

	if c.cfg.Session.Preflight {
		if err := c.preflight(ctx, account, value, data); err != nil {
			return nil, c.fail(op, account, value, err)
		}
	}

	receipt, err := c.submit(ctx, op, account, value, data)
	if err != nil {
		return nil, err
	}
	c.view.ClearAmount()
	return receipt, nil
}

// Withdraw drains the contract to its owner. The connected account must be
// the recorded owner; otherwise nothing is submitted.
func (c *Controller) Withdraw(ctx context.Context) (*types.Receipt, error) {
	const op = "withdraw"

	release, e := c.acquire(op)
	if e != nil {
		return nil, e
	}
	defer release()

	account, err := c.signer(ctx, op)
	if err != nil {
		return nil, c.fail(op, account, nil, err)
	}

	owner, err := c.reader.Owner(ctx)
	if err != nil {
		return nil, c.fail(op, account, nil, newError(op, KindTxFailed, "Could not read the contract owner", err))
	}
	if !strings.EqualFold(owner.Hex(), account.Hex()) {
		e := newError(op, KindUnauthorized, "Only the contract owner can withdraw", nil)
		c.logger.WithFields(logrus.Fields{
			"account": account.Hex(),
			"owner":   owner.Hex(),
		}).Warn("🚫 Withdraw attempted by non-owner")
		c.metrics.ObserveWrite(op, e.Kind.String(), 0)
		c.journal.Record(journal.Entry{
			Op:       op,
			Account:  account.Hex(),
			Contract: c.reader.ContractAddress().Hex(),
			ChainID:  c.cfg.Network.ChainID,
			Status:   journal.StatusRejected,
			Kind:     e.Kind.String(),
			Error:    e.Message,
		})
		c.view.ShowUnauthorized(account, owner)
		return nil, e
	}

	data, err := contract.PackWithdraw()
	if err != nil {
		return nil, c.fail(op, account, nil, err)
	}
	if c.cfg.Session.Preflight {
		to := c.reader.ContractAddress()
		if _, err := c.reader.EstimateGas(ctx, ethereum.CallMsg{From: account, To: &to, Data: data}); err != nil {
			return nil, c.fail(op, account, nil, err)
		}
	}

	return c.submit(ctx, op, account, nil, data)
}

// acquire admits one write at a time
func (c *Controller) acquire(op string) (func(), *Error) {
	if !c.writing.CompareAndSwap(false, true) {
		e := newError(op, KindBusy, "Another transaction is still pending", nil)
		c.logger.Warnf("⏳ %s ignored, a write is already in flight", op)
		c.metrics.ObserveWrite(op, e.Kind.String(), 0)
		c.view.ShowError(e)
		return nil, e
	}
	c.render()
	return func() {
		c.writing.Store(false)
		c.render()
	}, nil
}

// signer returns the connected account after making sure the wallet is on
// the required network.
func (c *Controller) signer(ctx context.Context, op string) (common.Address, error) {
	if c.provider == nil {
		return common.Address{}, c.walletAbsent(op)
	}

	session := c.Session()
	if !session.Connected {
		return common.Address{}, newError(op, KindNotConnected, "Connect your wallet first", nil)
	}
	if err := c.EnsureCorrectNetwork(ctx); err != nil {
		return session.Account, err
	}
	return session.Account, nil
}

// preflight checks the signer can pay for value plus gas. Reads that fail
// skip the balance check; a failing gas estimate aborts.
func (c *Controller) preflight(ctx context.Context, account common.Address, value *big.Int, data []byte) error {
	to := c.reader.ContractAddress()
	gas, err := c.reader.EstimateGas(ctx, ethereum.CallMsg{From: account, To: &to, Value: value, Data: data})
	if err != nil {
		return err
	}

	balance, err := c.reader.AccountBalance(ctx, account)
	if err != nil {
		c.logger.WithError(err).Debug("Skipping balance pre-check")
		return nil
	}
	gasPrice, err := c.reader.SuggestGasPrice(ctx)
	if err != nil {
		c.logger.WithError(err).Debug("Skipping balance pre-check")
		return nil
	}

	cost := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gas))
	cost.Add(cost, value)
	if balance.Cmp(cost) < 0 {
		return newError("", KindInsufficientFunds,
			fmt.Sprintf("Insufficient funds: need %s %s including gas, have %s",
				units.FormatEther(cost), c.cfg.Network.Currency, units.FormatEther(balance)), nil)
	}
	return nil
}

// submit sends the write through the wallet, waits for it to be mined and
// refreshes the balance.
func (c *Controller) submit(ctx context.Context, op string, account common.Address, value *big.Int, data []byte) (*types.Receipt, error) {
	started := c.now()
	entry := journal.Entry{
		Op:       op,
		Account:  account.Hex(),
		Contract: c.reader.ContractAddress().Hex(),
		ChainID:  c.cfg.Network.ChainID,
	}
	if value != nil {
		entry.ValueWei = value.String()
	}

	hash, err := c.provider.SendTransaction(ctx, wallet.TxRequest{
		From:  account,
		To:    c.reader.ContractAddress(),
		Value: value,
		Data:  data,
	})
	if err != nil {
		return nil, c.fail(op, account, value, err)
	}

	entry.TxHash = hash.Hex()
	entry.Status = journal.StatusSubmitted
	c.journal.Record(entry)
	c.logger.WithFields(logrus.Fields{
		"op":      op,
		"tx_hash": hash.Hex(),
	}).Info("📤 Transaction submitted, waiting for confirmation")

	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.Session.TxTimeout)
	defer cancel()
	receipt, err := c.reader.WaitMined(waitCtx, hash)
	if err != nil {
		return nil, c.failTx(op, entry, started, newError(op, KindTxFailed,
			fmt.Sprintf("No confirmation for %s yet, check the explorer", hash.Hex()), err))
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		entry.Block = receipt.BlockNumber.Uint64()
		entry.GasUsed = receipt.GasUsed
		return receipt, c.failTx(op, entry, started, newError(op, KindTxFailed, "Transaction reverted by the contract", nil))
	}

	elapsed := c.now().Sub(started)
	entry.Status = journal.StatusConfirmed
	entry.Block = receipt.BlockNumber.Uint64()
	entry.GasUsed = receipt.GasUsed
	entry.Duration = elapsed
	c.journal.Record(entry)
	c.metrics.ObserveWrite(op, journal.StatusConfirmed, elapsed)
	c.logger.WithFields(logrus.Fields{
		"op":       op,
		"tx_hash":  hash.Hex(),
		"block":    entry.Block,
		"gas_used": receipt.GasUsed,
	}).Info("✅ Transaction confirmed")

	c.refresh(ctx, SourceWrite)
	return receipt, nil
}

// fail classifies and reports a write that never reached the chain
func (c *Controller) fail(op string, account common.Address, value *big.Int, err error) *Error {
	e := Classify(op, err)
	c.metrics.ObserveWrite(op, e.Kind.String(), 0)

	if e.Kind == KindUserRejected {
		c.logger.WithError(err).Infof("🙅 %s rejected by user", op)
		return e
	}
	if e.Kind == KindWalletAbsent || e.Kind == KindWrongNetwork {
		// already presented
		return e
	}

	entry := journal.Entry{
		Op:       op,
		Contract: c.reader.ContractAddress().Hex(),
		ChainID:  c.cfg.Network.ChainID,
		Status:   journal.StatusFailed,
		Kind:     e.Kind.String(),
		Error:    e.Message,
	}
	if account != (common.Address{}) {
		entry.Account = account.Hex()
	}
	if value != nil {
		entry.ValueWei = value.String()
	}
	c.journal.Record(entry)
	c.logger.WithError(err).Warnf("❌ %s failed: %s", op, e.Message)
	c.view.ShowError(e)
	return e
}

// failTx reports a submitted write that did not confirm successfully
func (c *Controller) failTx(op string, entry journal.Entry, started time.Time, e *Error) *Error {
	entry.Status = journal.StatusFailed
	entry.Kind = e.Kind.String()
	entry.Error = e.Message
	entry.Duration = c.now().Sub(started)
	c.journal.Record(entry)
	c.metrics.ObserveWrite(op, e.Kind.String(), entry.Duration)
	c.logger.WithFields(logrus.Fields{
		"op":      op,
		"tx_hash": entry.TxHash,
	}).Errorf("❌ %s", e.Message)
	c.view.ShowError(e)
	return e
}
