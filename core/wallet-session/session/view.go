package session

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// View receives everything the controller wants the user to see
type View interface {
	Alert(message string)
	Redirect(url string)
	ShowError(err *Error)
	ShowUnauthorized(account, owner common.Address)
	ClearAmount()
	Render(s Snapshot)
}

// Snapshot is the presentation state of the controller
type Snapshot struct {
	Connected       bool      `json:"connected"`
	Account         string    `json:"account,omitempty"`
	NetworkID       string    `json:"network_id,omitempty"`
	RequiredNetwork string    `json:"required_network"`
	CorrectNetwork  bool      `json:"correct_network"`
	WalletAvailable bool      `json:"wallet_available"`
	Contract        string    `json:"contract"`
	Currency        string    `json:"currency"`
	Balance         string    `json:"balance"`
	BalanceWei      string    `json:"balance_wei"`
	LastRefreshed   time.Time `json:"last_refreshed,omitempty"`
	Pending         bool      `json:"pending"`
}

// NopView discards all notifications
type NopView struct{}

func (NopView) Alert(string) {}
func (NopView) Redirect(string) {}
func (NopView) ShowError(*Error) {}
func (NopView) ShowUnauthorized(account, owner common.Address) {}
func (NopView) ClearAmount() {}
func (NopView) Render(Snapshot) {}
