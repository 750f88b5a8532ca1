package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/Shivam-Patel-G/blackhole-fundme/core/wallet-session/wallet"
)

// Kind classifies a failed action for presentation
type Kind int

const (
	KindUnknown Kind = iota
	KindWalletAbsent
	KindUserRejected
	KindWrongNetwork
	KindInvalidInput
	KindInsufficientFunds
	KindUnauthorized
	KindTxFailed
	KindNotConnected
	KindBusy
)

var kindNames = map[Kind]string{
	KindUnknown:           "unknown",
	KindWalletAbsent:      "wallet_absent",
	KindUserRejected:      "user_rejected",
	KindWrongNetwork:      "wrong_network",
	KindInvalidInput:      "invalid_input",
	KindInsufficientFunds: "insufficient_funds",
	KindUnauthorized:      "unauthorized",
	KindTxFailed:          "tx_failed",
	KindNotConnected:      "not_connected",
	KindBusy:              "busy",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified failure of a single controller action. Message is
// safe to show to the user.
type Error struct {
	Op      string
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(op string, kind Kind, message string, err error) *Error {
	return &Error{Op: op, Kind: kind, Message: message, Err: err}
}

// IsKind reports whether err is a controller error of the given kind
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// Classify turns an error from the wallet or the network into an *Error
// with a human-readable message.
func Classify(op string, err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		if e.Op != "" {
			return e
		}
		withOp := *e
		withOp.Op = op
		return &withOp
	}

	if errors.Is(err, wallet.ErrNotFound) {
		return newError(op, KindWalletAbsent, "No wallet found. Please install MetaMask!", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(op, KindTxFailed, "Timed out waiting for the network", err)
	}
	if errors.Is(err, context.Canceled) {
		return newError(op, KindTxFailed, "Action was cancelled", err)
	}

	if perr, ok := wallet.AsProviderError(err); ok {
		if reason, ok := revertReason(perr.Data); ok {
			return newError(op, KindTxFailed, revertMessage(reason), err)
		}
		switch perr.Code {
		case wallet.CodeUserRejected:
			return newError(op, KindUserRejected, "Request rejected in wallet", err)
		case wallet.CodeUnrecognizedChain, wallet.CodeChainDisconnected:
			return newError(op, KindWrongNetwork, "Wallet is not on the required network", err)
		case wallet.CodeUnauthorized, wallet.CodeDisconnected:
			return newError(op, KindNotConnected, "Wallet account is not connected", err)
		case wallet.CodeRequestPending:
			return newError(op, KindBusy, "A wallet request is already pending, check your wallet", err)
		}
	}

	return classifyMessage(op, err)
}

func classifyMessage(op string, err error) *Error {
	raw := err.Error()
	msg := lowerASCII(raw)

	switch {
	case strings.Contains(msg, "insufficient funds"):
		return newError(op, KindInsufficientFunds, "Insufficient funds for amount plus gas", err)
	case strings.Contains(msg, "user denied"), strings.Contains(msg, "user rejected"):
		return newError(op, KindUserRejected, "Request rejected in wallet", err)
	case strings.Contains(msg, "underpriced"), strings.Contains(msg, "fee cap less than block base fee"):
		return newError(op, KindTxFailed, "Transaction underpriced, try again with a higher gas price", err)
	case strings.Contains(msg, "nonce too low"):
		return newError(op, KindTxFailed, "Nonce too low, a pending transaction already uses it", err)
	case strings.Contains(msg, "execution reverted"):
		reason := ""
		if i := strings.Index(msg, "execution reverted:"); i >= 0 {
			reason = strings.TrimSpace(raw[i+len("execution reverted:"):])
		}
		return newError(op, KindTxFailed, revertMessage(reason), err)
	}

	return newError(op, KindTxFailed, "Transaction failed: "+shorten(raw, 160), err)
}

// revertReason decodes Error(string) revert data carried by an RPC error
func revertReason(data interface{}) (string, bool) {
	s, ok := data.(string)
	if !ok || !strings.HasPrefix(s, "0x") {
		return "", false
	}
	raw, err := hexutil.Decode(s)
	if err != nil || len(raw) < 4 {
		return "", false
	}
	reason, err := abi.UnpackRevert(raw)
	if err != nil {
		return "", true
	}
	return reason, true
}

func revertMessage(reason string) string {
	if reason == "" {
		return "Transaction reverted by the contract"
	}
	return "Transaction reverted: " + reason
}

// lowerASCII folds only A-Z so byte offsets stay valid in the original
func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}

func shorten(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "..."
}
