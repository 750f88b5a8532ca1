package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivam-Patel-G/blackhole-fundme/core/wallet-session/wallet"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		kind    Kind
		message string
	}{
		{"no wallet", fmt.Errorf("open: %w", wallet.ErrNotFound), KindWalletAbsent, "No wallet found. Please install MetaMask!"},
		{"user rejected", &wallet.ProviderError{Code: wallet.CodeUserRejected}, KindUserRejected, "Request rejected in wallet"},
		{"unknown chain", &wallet.ProviderError{Code: wallet.CodeUnrecognizedChain}, KindWrongNetwork, "Wallet is not on the required network"},
		{"unauthorized account", &wallet.ProviderError{Code: wallet.CodeUnauthorized}, KindNotConnected, "Wallet account is not connected"},
		{"pending request", &wallet.ProviderError{Code: wallet.CodeRequestPending}, KindBusy, "A wallet request is already pending, check your wallet"},
		{"insufficient funds", errors.New("insufficient funds for gas * price + value: have 1 want 2"), KindInsufficientFunds, "Insufficient funds for amount plus gas"},
		{"underpriced", errors.New("replacement transaction underpriced"), KindTxFailed, "Transaction underpriced, try again with a higher gas price"},
		{"nonce", errors.New("nonce too low: next nonce 5, tx nonce 4"), KindTxFailed, "Nonce too low, a pending transaction already uses it"},
		{"revert string", errors.New("execution reverted: Not owner"), KindTxFailed, "Transaction reverted: Not owner"},
		{"bare revert", errors.New("execution reverted"), KindTxFailed, "Transaction reverted by the contract"},
		{"revert data", &wallet.ProviderError{Code: 3, Message: "execution reverted", Data: revertData(t, "Didn't send enough")}, KindTxFailed, "Transaction reverted: Didn't send enough"},
		{"timeout", fmt.Errorf("waiting: %w", context.DeadlineExceeded), KindTxFailed, "Timed out waiting for the network"},
		{"denied text", errors.New("MetaMask Tx Signature: User denied transaction signature."), KindUserRejected, "Request rejected in wallet"},
		{"other", errors.New("boom"), KindTxFailed, "Transaction failed: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Classify("fund", tt.err)
			require.NotNil(t, e)
			assert.Equal(t, tt.kind, e.Kind)
			assert.Equal(t, tt.message, e.Message)
			assert.Equal(t, "fund", e.Op)
			assert.True(t, errors.Is(e, tt.err))
		})
	}
}

func TestClassifyKeepsControllerErrors(t *testing.T) {
	original := newError("", KindInsufficientFunds, "need more", nil)
	e := Classify("fund", fmt.Errorf("preflight: %w", original))
	assert.NotSame(t, original, e)
	assert.Equal(t, "fund", e.Op)
	assert.Equal(t, KindInsufficientFunds, e.Kind)
	assert.Equal(t, "need more", e.Message)
	assert.Empty(t, original.Op)

	named := newError("withdraw", KindUnauthorized, "Only the contract owner can withdraw", nil)
	assert.Same(t, named, Classify("fund", named))
	assert.Equal(t, "withdraw", named.Op)

	assert.Nil(t, Classify("fund", nil))
}

func TestClassifyNonASCIIMessages(t *testing.T) {
	assert.NotPanics(t, func() {
		e := Classify("fund", errors.New(strings.Repeat("Ⱥ", 20)+" execution reverted:"))
		assert.Equal(t, "Transaction reverted by the contract", e.Message)
	})

	// Kelvin sign lowercases to a shorter ASCII k
	e := Classify("fund", errors.New("\u212a\u212a\u212a execution reverted: not enough"))
	assert.Equal(t, "Transaction reverted: not enough", e.Message)

	e = Classify("fund", errors.New("Execution Reverted: Not owner"))
	assert.Equal(t, "Transaction reverted: Not owner", e.Message)
}

func TestClassifyShortensOnRuneBoundary(t *testing.T) {
	e := Classify("fund", errors.New(strings.Repeat("a", 159)+strings.Repeat("é", 10)))
	require.True(t, utf8.ValidString(e.Message))
	assert.Equal(t, "Transaction failed: "+strings.Repeat("a", 159)+"...", e.Message)
}

func TestErrorFormatting(t *testing.T) {
	e := newError("withdraw", KindUnauthorized, "Only the contract owner can withdraw", nil)
	assert.Equal(t, "withdraw: Only the contract owner can withdraw", e.Error())
	assert.Equal(t, "unauthorized", e.Kind.String())
	assert.True(t, IsKind(fmt.Errorf("wrapped: %w", e), KindUnauthorized))
	assert.False(t, IsKind(errors.New("plain"), KindUnauthorized))

	wrapped := newError("fund", KindTxFailed, "Transaction failed", errors.New("boom"))
	assert.Equal(t, "fund: Transaction failed: boom", wrapped.Error())
	assert.Equal(t, "kind(99)", Kind(99).String())
}
