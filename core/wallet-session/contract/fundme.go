package contract

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

var parsedABI = mustParseABI()

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(FundMeABI))
	if err != nil {
		panic(fmt.Sprintf("contract: invalid FundMe ABI: %v", err))
	}
	return parsed
}

// ABI returns the parsed FundMe ABI
func ABI() abi.ABI {
	return parsedABI
}

// FundMe is a read-only binding to a deployed FundMe contract. State-changing
// calls are never made through it; see PackFund and PackWithdraw.
type FundMe struct {
	FundMeCaller
	FundMeFilterer
	address common.Address
}

// FundMeCaller is a read-only binding for contract calls
type FundMeCaller struct {
	contract *bind.BoundContract
}

// FundMeFilterer is a log filterer for contract events
type FundMeFilterer struct {
	contract *bind.BoundContract
}

// FundMeFunded represents a Funded event raised by the FundMe contract.
type FundMeFunded struct {
	Funder common.Address
	Amount *big.Int
	Raw    types.Log
}

// NewFundMe creates a read-only FundMe binding over the given backends
func NewFundMe(address common.Address, caller bind.ContractCaller, filterer bind.ContractFilterer) *FundMe {
	contract := bind.NewBoundContract(address, parsedABI, caller, nil, filterer)
	return &FundMe{
		FundMeCaller:   FundMeCaller{contract: contract},
		FundMeFilterer: FundMeFilterer{contract: contract},
		address:        address,
	}
}

// Address returns the bound contract address
func (f *FundMe) Address() common.Address {
	return f.address
}

// GetOwner is a free data retrieval call binding the contract method 0x893d20e8.
//
// Solidity: function getOwner() view returns(address)
func (c *FundMeCaller) GetOwner(opts *bind.CallOpts) (common.Address, error) {
	var out []interface{}
	err := c.contract.Call(opts, &out, "getOwner")
	if err != nil {
		return common.Address{}, err
	}
	if len(out) == 0 {
		return common.Address{}, errors.New("getOwner returned no value")
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// FilterFunded collects Funded events in the block range described by opts.
//
// Solidity: event Funded(address indexed funder, uint256 amount)
func (f *FundMeFilterer) FilterFunded(opts *bind.FilterOpts, funder []common.Address) ([]*FundMeFunded, error) {
	var funderRule []interface{}
	for _, funderItem := range funder {
		funderRule = append(funderRule, funderItem)
	}

	logs, sub, err := f.contract.FilterLogs(opts, "Funded", funderRule)
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	var events []*FundMeFunded
	for {
		select {
		case log := <-logs:
			ev, err := f.ParseFunded(log)
			if err != nil {
				return nil, err
			}
			events = append(events, ev)
		case err := <-sub.Err():
			if err != nil {
				return nil, err
			}
			// the producer is done; whatever is still buffered belongs to the range
			for {
				select {
				case log := <-logs:
					ev, err := f.ParseFunded(log)
					if err != nil {
						return nil, err
					}
					events = append(events, ev)
				default:
					return events, nil
				}
			}
		}
	}
}

// WatchFunded subscribes to Funded events as they are mined. It requires a
// backend with notification support (websocket or IPC).
//
// Solidity: event Funded(address indexed funder, uint256 amount)
func (f *FundMeFilterer) WatchFunded(opts *bind.WatchOpts, sink chan<- *FundMeFunded, funder []common.Address) (event.Subscription, error) {
	var funderRule []interface{}
	for _, funderItem := range funder {
		funderRule = append(funderRule, funderItem)
	}

	logs, sub, err := f.contract.WatchLogs(opts, "Funded", funderRule)
	if err != nil {
		return nil, err
	}
	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case log := <-logs:
				ev, err := f.ParseFunded(log)
				if err != nil {
					return err
				}
				select {
				case sink <- ev:
				case err := <-sub.Err():
					return err
				case <-quit:
					return nil
				}
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	}), nil
}

// ParseFunded is a log parse operation binding the contract event.
func (f *FundMeFilterer) ParseFunded(log types.Log) (*FundMeFunded, error) {
	ev := new(FundMeFunded)
	if err := f.contract.UnpackLog(ev, "Funded", log); err != nil {
		return nil, err
	}
	ev.Raw = log
	return ev, nil
}

// PackFund returns the calldata for the payable fund entrypoint. method is
// either "fund" or the legacy "getFunds".
func PackFund(method string) ([]byte, error) {
	m, ok := parsedABI.Methods[method]
	if !ok || !m.IsPayable() {
		return nil, fmt.Errorf("%q is not a payable FundMe method", method)
	}
	return parsedABI.Pack(method)
}

// PackWithdraw returns the calldata for withdraw()
func PackWithdraw() ([]byte, error) {
	return parsedABI.Pack("withdraw")
}

// FundedEventID returns the topic hash of the Funded event
func FundedEventID() common.Hash {
	return parsedABI.Events["Funded"].ID
}
