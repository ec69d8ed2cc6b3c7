package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer signs EVM transactions with one private key.
type Signer struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

// NewSigner parses a hex private key, with or without 0x.
func NewSigner(hexKey string) (*Signer, error) {
	key, err := crypto.HexToECDSA(normaliseHexKey(hexKey))
	if err != nil {
		// The parse error never includes the key material.
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return &Signer{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// SignTx signs tx for chainID.
func (s *Signer) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.NewLondonSigner(chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("signing transaction: %w", err)
	}
	return signed, nil
}

// Address returns the signer's address.
func (s *Signer) Address() common.Address {
	return s.addr
}

// String returns the checksummed address so a Signer never prints its key.
func (s *Signer) String() string {
	return s.addr.Hex()
}
