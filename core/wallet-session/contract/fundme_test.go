package contract

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	contractAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	ownerAddr    = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	funderAddr   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

type fakeBackend struct {
	owner common.Address
	logs  []types.Log
	calls int
}

func (b *fakeBackend) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x60, 0x80}, nil
}

func (b *fakeBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	b.calls++
	return parsedABI.Methods["getOwner"].Outputs.Pack(b.owner)
}

func (b *fakeBackend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return b.logs, nil
}

func (b *fakeBackend) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return nil, errors.New("notifications not supported")
}

func fundedLog(t *testing.T, funder common.Address, amount *big.Int, block uint64) types.Log {
	t.Helper()
	data, err := parsedABI.Events["Funded"].Inputs.NonIndexed().Pack(amount)
	require.NoError(t, err)
	return types.Log{
		Address:     contractAddr,
		Topics:      []common.Hash{FundedEventID(), common.BytesToHash(funder.Bytes())},
		Data:        data,
		BlockNumber: block,
	}
}

func TestGetOwner(t *testing.T) {
	backend := &fakeBackend{owner: ownerAddr}
	fundme := NewFundMe(contractAddr, backend, backend)

	owner, err := fundme.GetOwner(nil)
	require.NoError(t, err)
	assert.Equal(t, ownerAddr, owner)
	assert.Equal(t, 1, backend.calls)
	assert.Equal(t, contractAddr, fundme.Address())
}

func TestFilterFunded(t *testing.T) {
	backend := &fakeBackend{logs: []types.Log{
		fundedLog(t, funderAddr, big.NewInt(10), 5),
		fundedLog(t, ownerAddr, big.NewInt(20), 6),
	}}
	fundme := NewFundMe(contractAddr, backend, backend)

	end := uint64(6)
	events, err := fundme.FilterFunded(&bind.FilterOpts{Start: 5, End: &end}, nil)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, funderAddr, events[0].Funder)
	assert.Equal(t, int64(10), events[0].Amount.Int64())
	assert.Equal(t, uint64(5), events[0].Raw.BlockNumber)
	assert.Equal(t, ownerAddr, events[1].Funder)
	assert.Equal(t, int64(20), events[1].Amount.Int64())
}

func TestWatchFundedRequiresNotifications(t *testing.T) {
	backend := &fakeBackend{}
	fundme := NewFundMe(contractAddr, backend, backend)

	sink := make(chan *FundMeFunded)
	_, err := fundme.WatchFunded(nil, sink, nil)
	assert.Error(t, err)
}

func TestParseFundedRejectsForeignEvent(t *testing.T) {
	fundme := NewFundMe(contractAddr, &fakeBackend{}, &fakeBackend{})

	log := fundedLog(t, funderAddr, big.NewInt(1), 1)
	log.Topics[0] = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

	_, err := fundme.ParseFunded(log)
	assert.Error(t, err)
}

func TestPackCalldata(t *testing.T) {
	data, err := PackFund("fund")
	require.NoError(t, err)
	assert.Equal(t, crypto.Keccak256([]byte("fund()"))[:4], data)

	data, err = PackFund("getFunds")
	require.NoError(t, err)
	assert.Equal(t, crypto.Keccak256([]byte("getFunds()"))[:4], data)

	_, err = PackFund("withdraw")
	assert.Error(t, err)
	_, err = PackFund("donate")
	assert.Error(t, err)

	data, err = PackWithdraw()
	require.NoError(t, err)
	assert.Equal(t, crypto.Keccak256([]byte("withdraw()"))[:4], data)

	assert.Equal(t, crypto.Keccak256Hash([]byte("Funded(address,uint256)")), FundedEventID())
}
