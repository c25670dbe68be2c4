package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Backend is the part of ethclient.Client the adapters need.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

var _ Backend = (*ethclient.Client)(nil)

func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	c, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	return c, nil
}

type Signer struct {
	key     *ecdsa.PrivateKey
	Address common.Address
}

// NewSigner builds a secp256k1 signer from the first 32 bytes of material.
func NewSigner(material []byte) (*Signer, error) {
	if len(material) < 32 {
		return nil, errors.New("evm: key material shorter than 32 bytes")
	}
	key, err := crypto.ToECDSA(material[:32])
	if err != nil {
		return nil, fmt.Errorf("evm: invalid private key: %w", err)
	}
	return &Signer{key: key, Address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

var ErrReceiptTimeout = errors.New("evm: receipt wait timed out")

// Sender signs and submits transactions and waits for their receipts.
// Sends from one address are serialized from the nonce read through
// submission, so concurrent callers sharing a key get distinct nonces.
type Sender struct {
	Backend        Backend
	ChainID        *big.Int
	ConfirmTimeout time.Duration
	PollInterval   time.Duration

	accounts sync.Map // common.Address -> *sync.Mutex
}

func (s *Sender) accountLock(addr common.Address) *sync.Mutex {
	mu, _ := s.accounts.LoadOrStore(addr, new(sync.Mutex))
	return mu.(*sync.Mutex)
}

type TxRequest struct {
	To    common.Address
	Value *big.Int
	Data  []byte
	// Gas of zero means estimate.
	Gas uint64
}

func (s *Sender) Send(ctx context.Context, signer *Signer, req TxRequest) (*types.Transaction, error) {
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	mu := s.accountLock(signer.Address)
	mu.Lock()
	defer mu.Unlock()

	nonce, err := s.Backend.PendingNonceAt(ctx, signer.Address)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	gas := req.Gas
	if gas == 0 {
		to := req.To
		est, err := s.Backend.EstimateGas(ctx, ethereum.CallMsg{From: signer.Address, To: &to, Value: value, Data: req.Data})
		if err != nil {
			return nil, fmt.Errorf("estimate gas: %w", err)
		}
		gas = est + est/5
	}

	tip, feeCap, err := s.fees(ctx)
	if err != nil {
		return nil, err
	}
	to := req.To
	var txdata types.TxData
	if tip != nil {
		txdata = &types.DynamicFeeTx{
			ChainID:   s.ChainID,
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       gas,
			To:        &to,
			Value:     value,
			Data:      req.Data,
		}
	} else {
		txdata = &types.LegacyTx{Nonce: nonce, GasPrice: feeCap, Gas: gas, To: &to, Value: value, Data: req.Data}
	}

	signed, err := types.SignTx(types.NewTx(txdata), types.LatestSignerForChainID(s.ChainID), signer.key)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	if err := s.Backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}
	return signed, nil
}

// fees returns the EIP-1559 tip and fee cap. On chains without a base fee
// the tip is nil and the cap is the legacy gas price.
func (s *Sender) fees(ctx context.Context) (tip, feeCap *big.Int, err error) {
	head, err := s.Backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("latest header: %w", err)
	}
	if head.BaseFee == nil {
		price, err := s.Backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("gas price: %w", err)
		}
		return nil, price, nil
	}
	tip, err = s.Backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("gas tip: %w", err)
	}
	return tip, new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2))), nil
}

// MaxFeePerGas is the per-gas price ceiling Send would sign with now.
func (s *Sender) MaxFeePerGas(ctx context.Context) (*big.Int, error) {
	_, feeCap, err := s.fees(ctx)
	return feeCap, err
}

// WaitReceipt polls until the receipt is available or ConfirmTimeout passes.
func (s *Sender) WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	timeout := s.ConfirmTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	interval := s.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var lastErr error
	for {
		receipt, err := s.Backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		// RPC hiccups are retried until the deadline like a missing receipt.
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrReceiptTimeout, hash.Hex(), lastErr)
			}
			return nil, fmt.Errorf("%w: %s", ErrReceiptTimeout, hash.Hex())
		case <-ticker.C:
		}
	}
}

// SendAndWait submits and waits; a reverted receipt is an error. The
// transaction is returned whenever it was submitted.
func (s *Sender) SendAndWait(ctx context.Context, signer *Signer, req TxRequest) (*types.Transaction, *types.Receipt, error) {
	tx, err := s.Send(ctx, signer, req)
	if err != nil {
		return nil, nil, err
	}
	receipt, err := s.WaitReceipt(ctx, tx.Hash())
	if err != nil {
		return tx, nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return tx, receipt, fmt.Errorf("evm: transaction reverted: %s", tx.Hash().Hex())
	}
	return tx, receipt, nil
}
