package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/ZkAGI/pawpad-rofl/internal/audit"
	"github.com/ZkAGI/pawpad-rofl/internal/chain/evm"
	"github.com/ZkAGI/pawpad-rofl/internal/config"
	"github.com/ZkAGI/pawpad-rofl/internal/tee"
)

const ledgerABIJSON = `[{"type":"function","name":"recordExecution","stateMutability":"nonpayable","inputs":[{"name":"uidHash","type":"bytes32"},{"name":"action","type":"string"},{"name":"execHash","type":"bytes32"},{"name":"meta","type":"string"}],"outputs":[]}]`

var ledgerABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(ledgerABIJSON))
	if err != nil {
		panic(err)
	}
	return parsed
}()

var ErrNoContract = errors.New("ledger: audit contract not configured")

// Emitter writes entries to the audit contract on Sapphire, signed by
// a TEE-derived key.
type Emitter struct {
	Sender   *evm.Sender
	Keys     tee.KeyDeriver
	Contract common.Address
	GasLimit uint64
	// Mock skips the chain entirely.
	Mock   bool
	Logger *zap.Logger

	mu     sync.Mutex
	signer *evm.Signer
}

func New(cfg config.AuditConfig, backend evm.Backend, keys tee.KeyDeriver, mock bool, logger *zap.Logger) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	var contract common.Address
	if common.IsHexAddress(cfg.Contract) {
		contract = common.HexToAddress(cfg.Contract)
	}
	gas := cfg.GasLimit
	if gas == 0 {
		gas = 500000
	}
	return &Emitter{
		Sender:   &evm.Sender{Backend: backend, ChainID: big.NewInt(cfg.ChainID)},
		Keys:     keys,
		Contract: contract,
		GasLimit: gas,
		Mock:     mock,
		Logger:   logger,
	}
}

// UIDHash and ExecHash hash the UTF-8 text, not decoded hex.
func UIDHash(uid string) [32]byte { return [32]byte(crypto.Keccak256Hash([]byte(uid))) }

func ExecHash(txHash string) [32]byte { return [32]byte(crypto.Keccak256Hash([]byte(txHash))) }

func EncodeRecordExecution(entry audit.Entry) ([]byte, error) {
	return ledgerABI.Pack("recordExecution", UIDHash(entry.UID), entry.Action, ExecHash(entry.TxHash), entry.MetaJSON())
}

func (l *Emitter) RecordAudit(ctx context.Context, entry audit.Entry) error {
	if l.Mock {
		l.Logger.Debug("audit ledger mocked", zap.String("action", entry.Action))
		return nil
	}
	if l.Contract == (common.Address{}) {
		return ErrNoContract
	}
	data, err := EncodeRecordExecution(entry)
	if err != nil {
		return fmt.Errorf("audit: encode: %w", err)
	}
	signer, err := l.loadSigner(ctx)
	if err != nil {
		return err
	}
	tx, _, err := l.Sender.SendAndWait(ctx, signer, evm.TxRequest{To: l.Contract, Data: data, Gas: l.GasLimit})
	if err != nil {
		return fmt.Errorf("audit: recordExecution: %w", err)
	}
	l.Logger.Info("audit recorded",
		zap.String("action", entry.Action),
		zap.String("tx_hash", entry.TxHash),
		zap.String("audit_tx", tx.Hash().Hex()),
	)
	return nil
}

func (l *Emitter) loadSigner(ctx context.Context) (*evm.Signer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.signer != nil {
		return l.signer, nil
	}
	material, err := l.Keys.DeriveSigningKey(ctx, tee.SapphireSignerKeyID, tee.KindSecp256k1)
	if err != nil {
		return nil, fmt.Errorf("audit: derive signer: %w", err)
	}
	signer, err := evm.NewSigner(material)
	if err != nil {
		return nil, err
	}
	l.signer = signer
	return signer, nil
}

// SignerAddress derives the ledger signer if needed and returns its address.
func (l *Emitter) SignerAddress(ctx context.Context) (common.Address, error) {
	signer, err := l.loadSigner(ctx)
	if err != nil {
		return common.Address{}, err
	}
	return signer.Address, nil
}
