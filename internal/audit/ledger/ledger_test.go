package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ZkAGI/pawpad-rofl/internal/audit"
	"github.com/ZkAGI/pawpad-rofl/internal/config"
	"github.com/ZkAGI/pawpad-rofl/internal/tee"
)

func TestEncodeRecordExecution(t *testing.T) {
	entry := audit.Entry{UID: "u1", Action: "TRADE_BUY_ETH", TxHash: "0xabc", Meta: map[string]any{"price": 3000, "amount": 100}}
	data, err := EncodeRecordExecution(entry)
	if err != nil {
		t.Fatalf("encode err=%v", err)
	}
	m, err := ledgerABI.MethodById(data[:4])
	if err != nil || m.Name != "recordExecution" {
		t.Fatalf("method=%v err=%v", m, err)
	}
	args, err := m.Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("unpack err=%v", err)
	}
	if args[0].([32]byte) != [32]byte(crypto.Keccak256Hash([]byte("u1"))) {
		t.Fatalf("uidHash mismatch")
	}
	if args[1].(string) != "TRADE_BUY_ETH" {
		t.Fatalf("action=%v", args[1])
	}
	var meta map[string]float64
	if err := json.Unmarshal([]byte(args[3].(string)), &meta); err != nil || meta["price"] != 3000 || meta["amount"] != 100 {
		t.Fatalf("meta=%v err=%v", args[3], err)
	}
}

func TestLedgerMockAndMissingContract(t *testing.T) {
	mock := New(config.AuditConfig{}, nil, nil, true, nil)
	if err := mock.RecordAudit(context.Background(), audit.Entry{}); err != nil {
		t.Fatalf("mock err=%v", err)
	}
	live := New(config.AuditConfig{}, nil, nil, false, nil)
	if err := live.RecordAudit(context.Background(), audit.Entry{}); !errors.Is(err, ErrNoContract) {
		t.Fatalf("err=%v want=%v", err, ErrNoContract)
	}
}

type ledgerBackend struct {
	mu     sync.Mutex
	sent   []*types.Transaction
	status uint64
}

func (b *ledgerBackend) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, errors.New("unexpected call")
}
func (b *ledgerBackend) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return new(big.Int), nil
}
func (b *ledgerBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 7, nil
}
func (b *ledgerBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1)}, nil
}
func (b *ledgerBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}
func (b *ledgerBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(100_000_000_000), nil
}
func (b *ledgerBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 0, errors.New("gas should not be estimated")
}
func (b *ledgerBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, tx)
	return nil
}
func (b *ledgerBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	return &types.Receipt{Status: b.status, TxHash: hash}, nil
}

func TestLedgerSendsFixedGasTx(t *testing.T) {
	b := &ledgerBackend{status: types.ReceiptStatusSuccessful}
	cfg := config.AuditConfig{ChainID: 0x5aff, Contract: "0x00000000000000000000000000000000000000aa", GasLimit: 500000}
	l := New(cfg, b, &tee.MockDeriver{Secret: []byte("s")}, false, nil)

	if err := l.RecordAudit(context.Background(), audit.Entry{UID: "u1", Action: "TRADE_SELL_SOL", TxHash: "sig"}); err != nil {
		t.Fatalf("RecordAudit err=%v", err)
	}
	if len(b.sent) != 1 {
		t.Fatalf("sent=%d want=1", len(b.sent))
	}
	tx := b.sent[0]
	if tx.Gas() != 500000 {
		t.Fatalf("gas=%d want=500000", tx.Gas())
	}
	if *tx.To() != common.HexToAddress(cfg.Contract) {
		t.Fatalf("to=%s want=%s", tx.To().Hex(), cfg.Contract)
	}

	b.status = types.ReceiptStatusFailed
	if err := l.RecordAudit(context.Background(), audit.Entry{UID: "u1", Action: "x", TxHash: "y"}); err == nil {
		t.Fatalf("reverted audit tx should error")
	}
}

// poolBackend behaves like a node mempool: the pending nonce counts accepted
// transactions and a reused nonce is rejected.
type poolBackend struct {
	ledgerBackend
}

func (b *poolBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	b.mu.Lock()
	n := uint64(len(b.sent))
	b.mu.Unlock()
	time.Sleep(5 * time.Millisecond)
	return n, nil
}

func (b *poolBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if tx.Nonce() != uint64(len(b.sent)) {
		return errors.New("replacement transaction underpriced")
	}
	b.sent = append(b.sent, tx)
	return nil
}

func TestLedgerConcurrentAuditsUseDistinctNonces(t *testing.T) {
	b := &poolBackend{ledgerBackend{status: types.ReceiptStatusSuccessful}}
	cfg := config.AuditConfig{ChainID: 0x5aff, Contract: "0x00000000000000000000000000000000000000aa", GasLimit: 500000}
	l := New(cfg, b, &tee.MockDeriver{Secret: []byte("s")}, false, nil)

	const n = 4
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = l.RecordAudit(context.Background(), audit.Entry{UID: "u1", Action: "TRADE_BUY_ETH", TxHash: "0x1"})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("audit %d err=%v", i, err)
		}
	}
	seen := map[uint64]bool{}
	for _, tx := range b.sent {
		if seen[tx.Nonce()] {
			t.Fatalf("nonce %d reused", tx.Nonce())
		}
		seen[tx.Nonce()] = true
	}
	if len(b.sent) != n {
		t.Fatalf("sent=%d want=%d", len(b.sent), n)
	}
}
