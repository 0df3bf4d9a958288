package transactor

import (
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// Signer is an EOA private key able to own a Safe and pay for gas.
type Signer struct {
	Key     *ecdsa.PrivateKey
	Address common.Address
}

func NewSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{
		Key:     key,
		Address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// SignerFromHex parses a hex private key, with or without the 0x prefix.
func SignerFromHex(hexKey string) (*Signer, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if trimmed == "" {
		return nil, errors.New("private key is empty")
	}
	key, err := crypto.HexToECDSA(trimmed)
	if err != nil {
		return nil, errors.Wrap(err, "invalid private key")
	}
	return NewSigner(key), nil
}

// SignSafeHash signs a Safe transaction hash as an owner signature: r || s || v with v
// shifted to 27/28.
func (s *Signer) SignSafeHash(hash [32]byte) ([]byte, error) {
	sig, err := crypto.Sign(hash[:], s.Key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign safe transaction hash")
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}
