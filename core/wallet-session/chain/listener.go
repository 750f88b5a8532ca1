package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/event"
	"github.com/sirupsen/logrus"

	"github.com/Shivam-Patel-G/blackhole-fundme/core/wallet-session/contract"
)

// Listener delivers Funded events from the contract to its subscribers. It
// uses a log subscription when the endpoint supports notifications and
// falls back to polling block ranges otherwise.
type Listener struct {
	backend  Backend
	fundme   *contract.FundMe
	interval time.Duration
	logger   *logrus.Logger

	feed  event.FeedOf[*contract.FundMeFunded]
	scope event.SubscriptionScope

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	// owned by the run goroutine
	lastBlock uint64
	started   bool
}

// NewListener creates a Funded event listener
func NewListener(backend Backend, fundme *contract.FundMe, interval time.Duration, logger *logrus.Logger) *Listener {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Listener{
		backend:  backend,
		fundme:   fundme,
		interval: interval,
		logger:   logger,
	}
}

// Subscribe registers ch for Funded events. Subscriptions are closed when
// the listener stops.
func (l *Listener) Subscribe(ch chan<- *contract.FundMeFunded) event.Subscription {
	return l.scope.Track(l.feed.Subscribe(ch))
}

// Start starts the listener
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return fmt.Errorf("listener is already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	l.running = true
	go l.run(ctx)

	l.logger.Infof("🔗 Funded listener started, monitoring contract: %s", l.fundme.Address().Hex())
	return nil
}

// Stop stops the listener and closes every subscription
func (l *Listener) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	l.cancel()
	l.scope.Close()
	done := l.done
	l.mu.Unlock()

	<-done
	l.logger.Info("🛑 Funded listener stopped")
}

func (l *Listener) run(ctx context.Context) {
	defer close(l.done)

	if l.watch(ctx) {
		return
	}

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		if err := l.processNewBlocks(ctx); err != nil && ctx.Err() == nil {
			l.logger.WithError(err).Warn("⚠️ Error processing blocks for Funded events")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// watch forwards events from a live log subscription. It reports true when
// the listener was stopped and false when the caller should poll instead.
func (l *Listener) watch(ctx context.Context) bool {
	sink := make(chan *contract.FundMeFunded)
	sub, err := l.fundme.WatchFunded(&bind.WatchOpts{Context: ctx}, sink, nil)
	if err != nil {
		l.logger.WithError(err).Debug("Log subscription unavailable, polling for Funded events")
		return false
	}
	defer sub.Unsubscribe()

	for {
		select {
		case ev := <-sink:
			l.deliver(ev)
		case err := <-sub.Err():
			if ctx.Err() != nil {
				return true
			}
			l.logger.WithError(err).Warn("⚠️ Funded subscription dropped, polling instead")
			return false
		case <-ctx.Done():
			return true
		}
	}
}

// processNewBlocks scans blocks mined since the last pass
func (l *Listener) processNewBlocks(ctx context.Context) error {
	head, err := l.backend.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current block: %w", err)
	}

	if !l.started {
		l.started = true
		l.lastBlock = head
		return nil
	}
	if head <= l.lastBlock {
		return nil
	}

	end := head
	events, err := l.fundme.FilterFunded(&bind.FilterOpts{
		Start:   l.lastBlock + 1,
		End:     &end,
		Context: ctx,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to filter blocks %d-%d: %w", l.lastBlock+1, head, err)
	}

	for _, ev := range events {
		l.deliver(ev)
	}
	l.lastBlock = head
	return nil
}

func (l *Listener) deliver(ev *contract.FundMeFunded) {
	n := l.feed.Send(ev)
	l.logger.WithFields(logrus.Fields{
		"funder":      ev.Funder.Hex(),
		"amount":      ev.Amount.String(),
		"block":       ev.Raw.BlockNumber,
		"subscribers": n,
	}).Debug("✅ Funded event delivered")
}
