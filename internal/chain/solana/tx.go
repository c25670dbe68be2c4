package solana

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	solgo "github.com/gagliardetto/solana-go"
)

var ErrNotSigner = errors.New("solana: key is not a required signer")

// Keypair is an ed25519 signing key derived from a 32-byte seed.
type Keypair struct {
	priv solgo.PrivateKey
}

func NewKeypair(material []byte) (*Keypair, error) {
	if len(material) < ed25519.SeedSize {
		return nil, errors.New("solana: key material shorter than 32 bytes")
	}
	return &Keypair{priv: solgo.PrivateKey(ed25519.NewKeyFromSeed(material[:ed25519.SeedSize]))}, nil
}

func (k *Keypair) PublicKey() solgo.PublicKey { return k.priv.PublicKey() }

// Address is the base58 public key.
func (k *Keypair) Address() string { return k.priv.PublicKey().String() }

// DecodeTransaction parses a base64 wire transaction, legacy or v0.
func DecodeTransaction(b64 string) (*solgo.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("solana: decode transaction: %w", err)
	}
	tx, err := solgo.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("solana: parse transaction: %w", err)
	}
	return tx, nil
}

// SignTransaction writes kp's signature into its slot and leaves the other
// signers' slots as they are. The key must be one of the required signers.
func SignTransaction(tx *solgo.Transaction, kp *Keypair) (solgo.Signature, error) {
	signers := int(tx.Message.Header.NumRequiredSignatures)
	if signers > len(tx.Message.AccountKeys) {
		return solgo.Signature{}, fmt.Errorf("solana: %d signers for %d account keys", signers, len(tx.Message.AccountKeys))
	}
	pub := kp.PublicKey()
	slot := -1
	for i := 0; i < signers; i++ {
		if tx.Message.AccountKeys[i].Equals(pub) {
			slot = i
			break
		}
	}
	if slot < 0 {
		return solgo.Signature{}, ErrNotSigner
	}

	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return solgo.Signature{}, fmt.Errorf("solana: encode message: %w", err)
	}
	sig, err := kp.priv.Sign(msg)
	if err != nil {
		return solgo.Signature{}, fmt.Errorf("solana: sign: %w", err)
	}
	for len(tx.Signatures) < signers {
		tx.Signatures = append(tx.Signatures, solgo.Signature{})
	}
	tx.Signatures[slot] = sig
	return sig, nil
}

func EncodeTransaction(tx *solgo.Transaction) (string, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("solana: encode transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
