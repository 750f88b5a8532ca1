package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/Shivam-Patel-G/blackhole-fundme/core/wallet-session/chain"
	"github.com/Shivam-Patel-G/blackhole-fundme/core/wallet-session/config"
	"github.com/Shivam-Patel-G/blackhole-fundme/core/wallet-session/journal"
	"github.com/Shivam-Patel-G/blackhole-fundme/core/wallet-session/monitoring"
	"github.com/Shivam-Patel-G/blackhole-fundme/core/wallet-session/session"
	"github.com/Shivam-Patel-G/blackhole-fundme/core/wallet-session/units"
	"github.com/Shivam-Patel-G/blackhole-fundme/core/wallet-session/wallet"
	"github.com/Shivam-Patel-G/blackhole-fundme/services/dashboard"
)

const usage = `usage: fundme [-config file] <command>

commands:
  serve            run the session controller with the web dashboard
  balance          print the contract balance
  owner            print the contract owner
  connect          connect the wallet and print the session
  fund <amount>    send <amount> of native currency to the contract
  withdraw         withdraw the contract balance (owner only)
`

// App holds everything a command needs
type App struct {
	cfg        config.Config
	logger     *logrus.Logger
	reader     *chain.ReadOnly
	provider   wallet.Provider
	journal    *journal.Journal
	registry   *prometheus.Registry
	controller *session.Controller
}

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.Log)
	if *configFile != "" {
		logger.Infof("📄 Loaded configuration from %s", *configFile)
	}

	if err := run(cfg, logger, args); err != nil {
		logger.Errorf("❌ %v", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.Colored {
		logger.SetFormatter(&logrus.TextFormatter{
			ForceColors:   true,
			FullTimestamp: true,
		})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

func run(cfg config.Config, logger *logrus.Logger, args []string) error {
	cmd := args[0]
	switch cmd {
	case "serve", "balance", "owner", "connect", "withdraw":
		if len(args) != 1 {
			return fmt.Errorf("%s takes no arguments", cmd)
		}
	case "fund":
		if len(args) != 2 {
			return errors.New("fund needs exactly one amount")
		}
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}

	if cmd == "serve" {
		return serve(cfg, logger)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Session.TxTimeout+30*time.Second)
	defer cancel()

	terminal := NewTerminalView(os.Stdout)
	app, err := NewApp(ctx, cfg, logger, terminal)
	if err != nil {
		return err
	}
	defer app.Close()

	switch cmd {
	case "balance":
		balance := app.controller.RefreshBalance(ctx)
		fmt.Printf("%s %s\n", units.FormatEther(balance.AmountWei), cfg.Network.Currency)
		return nil

	case "owner":
		owner, err := app.reader.Owner(ctx)
		if err != nil {
			return fmt.Errorf("failed to read owner: %w", err)
		}
		fmt.Println(owner.Hex())
		return nil

	case "connect":
		if err := app.controller.Connect(ctx); err != nil {
			return err
		}
		terminal.Render(app.controller.Snapshot())
		return nil

	case "fund":
		if err := app.controller.Connect(ctx); err != nil {
			return err
		}
		receipt, err := app.controller.Fund(ctx, args[1])
		if err != nil {
			return err
		}
		terminal.Receipt("fund", receipt)
		return nil

	case "withdraw":
		if err := app.controller.Connect(ctx); err != nil {
			return err
		}
		receipt, err := app.controller.Withdraw(ctx)
		if err != nil {
			return err
		}
		terminal.Receipt("withdraw", receipt)
		return nil
	}
	return nil
}

// NewApp dials the read endpoint, opens the wallet and builds the controller
func NewApp(ctx context.Context, cfg config.Config, logger *logrus.Logger, view session.View) (*App, error) {
	client, err := ethclient.DialContext(ctx, cfg.Network.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Network.Name, err)
	}
	reader, err := chain.Connect(ctx, client, cfg, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	logger.Infof("🔗 Connected to %s (chain %d)", cfg.Network.Name, cfg.Network.ChainID)

	app := &App{
		cfg:      cfg,
		logger:   logger,
		reader:   reader,
		registry: prometheus.NewRegistry(),
	}

	provider, err := wallet.Open(ctx, cfg, client, logger)
	switch {
	case errors.Is(err, wallet.ErrNotFound):
		logger.Warnf("⚠️ No wallet available: %v", err)
	case err != nil:
		reader.Close()
		return nil, err
	default:
		app.provider = provider
	}

	if cfg.Log.JournalPath != "" {
		j, err := journal.Open(cfg.Log.JournalPath)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.journal = j
		logger.Infof("📒 Recording write actions to %s", cfg.Log.JournalPath)
	}

	app.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(app.registry)

	app.controller = session.NewController(cfg, reader, app.provider, session.Options{
		View:    view,
		Logger:  logger,
		Journal: app.journal,
		Metrics: metrics,
	})
	return app, nil
}

// Close releases the controller, read endpoint, wallet and journal in that order
func (a *App) Close() {
	if a.controller != nil {
		a.controller.Close()
	}
	a.reader.Close()
	if a.provider != nil {
		a.provider.Close()
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.logger.Warnf("⚠️ Failed to flush journal: %v", err)
		}
	}
}

func serve(cfg config.Config, logger *logrus.Logger) error {
	hub := dashboard.NewHub(logger)

	dialCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	app, err := NewApp(dialCtx, cfg, logger, hub)
	cancel()
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.reader.Start(); err != nil {
		return fmt.Errorf("failed to start event listener: %w", err)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = app.controller.Start(startCtx)
	cancel()
	if err != nil {
		return err
	}

	server := dashboard.NewServer(cfg.Dashboard, app.controller, hub, app.registry, logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(shutdownChan)

	logger.Info("🎯 FundMe session is running. Press Ctrl+C to stop.")

	select {
	case sig := <-shutdownChan:
		logger.Infof("🛑 Received %s, shutting down", sig)
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("dashboard stopped: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("⚠️ Dashboard shutdown: %v", err)
	}
	logger.Info("👋 FundMe session shutdown complete")
	return nil
}
