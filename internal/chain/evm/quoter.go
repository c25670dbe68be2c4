package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ZkAGI/pawpad-rofl/internal/risk"
	"github.com/ZkAGI/pawpad-rofl/internal/trade"
)

var ErrEmptyQuote = errors.New("evm: router returned no output amount")

type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Quoter asks the router what a swap would return. It never sends a
// transaction.
type Quoter struct {
	Caller Caller
	Router common.Address
	Guard  *risk.Guard
}

func (q *Quoter) Quote(ctx context.Context, amountIn *big.Int, path []common.Address) (trade.Quote, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return trade.Quote{}, fmt.Errorf("evm: quote amount must be positive")
	}
	if len(path) < 2 {
		return trade.Quote{}, fmt.Errorf("evm: quote path needs two tokens")
	}
	data, err := RouterABI.Pack("getAmountsOut", amountIn, path)
	if err != nil {
		return trade.Quote{}, err
	}
	router := q.Router
	out, err := q.Caller.CallContract(ctx, ethereum.CallMsg{To: &router, Data: data}, nil)
	if err != nil {
		return trade.Quote{}, fmt.Errorf("getAmountsOut: %w", err)
	}
	res, err := RouterABI.Unpack("getAmountsOut", out)
	if err != nil {
		return trade.Quote{}, fmt.Errorf("decode getAmountsOut: %w", err)
	}
	if len(res) == 0 {
		return trade.Quote{}, ErrEmptyQuote
	}
	amounts, ok := res[0].([]*big.Int)
	if !ok || len(amounts) == 0 {
		return trade.Quote{}, ErrEmptyQuote
	}
	expected := amounts[len(amounts)-1]
	if expected == nil || expected.Sign() <= 0 {
		return trade.Quote{}, ErrEmptyQuote
	}
	return trade.Quote{
		AmountIn:    new(big.Int).Set(amountIn),
		ExpectedOut: new(big.Int).Set(expected),
		MinOut:      q.Guard.MinOut(expected),
	}, nil
}
