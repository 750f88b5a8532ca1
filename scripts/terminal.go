package main

import (
	"io"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/fatih/color"

	"github.com/Shivam-Patel-G/blackhole-fundme/core/wallet-session/session"
)

// TerminalView prints controller notifications to a terminal
type TerminalView struct {
	mu  sync.Mutex
	out io.Writer

	alert   *color.Color
	failure *color.Color
	success *color.Color
	info    *color.Color
}

// NewTerminalView writes to out
func NewTerminalView(out io.Writer) *TerminalView {
	return &TerminalView{
		out:     out,
		alert:   color.New(color.FgYellow, color.Bold),
		failure: color.New(color.FgRed),
		success: color.New(color.FgGreen),
		info:    color.New(color.FgCyan),
	}
}

func (v *TerminalView) Alert(message string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.alert.Fprintf(v.out, "⚠️  %s\n", message)
}

func (v *TerminalView) Redirect(url string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.info.Fprintf(v.out, "📱 Open in your wallet: %s\n", url)
}

func (v *TerminalView) ShowError(err *session.Error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failure.Fprintf(v.out, "❌ %s\n", err.Message)
}

func (v *TerminalView) ShowUnauthorized(account, owner common.Address) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failure.Fprintf(v.out, "🚫 Only the contract owner can withdraw (you are %s, owner is %s)\n", account.Hex(), owner.Hex())
}

// ClearAmount has nothing to clear on a terminal
func (v *TerminalView) ClearAmount() {}

func (v *TerminalView) Render(s session.Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !s.Connected {
		v.info.Fprintf(v.out, "💰 %s %s  (wallet not connected)\n", s.Balance, s.Currency)
		return
	}
	network := v.success
	if !s.CorrectNetwork {
		network = v.alert
	}
	v.info.Fprintf(v.out, "💰 %s %s  ", s.Balance, s.Currency)
	network.Fprintf(v.out, "%s on chain %s\n", s.Account, s.NetworkID)
}

// Receipt prints the outcome of a confirmed write
func (v *TerminalView) Receipt(op string, receipt *types.Receipt) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if receipt == nil {
		return
	}
	v.success.Fprintf(v.out, "✅ %s confirmed in block %s: %s (gas %d)\n", op, receipt.BlockNumber, receipt.TxHash.Hex(), receipt.GasUsed)
}
