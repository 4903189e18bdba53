package risk

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer holds the service's signing key. It is built once at startup and
// passed to the Service; a Signer that exists can always sign.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner parses a hex secp256k1 private key, with or without 0x.
func NewSigner(hexKey string) (*Signer, error) {
	hexKey = strings.TrimSpace(hexKey)
	if hexKey == "" {
		return nil, ErrMissingKey
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimPrefix(hexKey, "0x"), "0X"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// Address returns the checksummed signer address.
func (s *Signer) Address() common.Address { return s.address }

// Sign personal-signs the payload digest. The result is 65 bytes r||s||v
// with v in {27, 28}, hex encoded with a 0x prefix.
func (s *Signer) Sign(p Payload) (string, error) {
	digest, err := p.Digest()
	if err != nil {
		return "", err
	}
	sig, err := crypto.Sign(PersonalHash(digest).Bytes(), s.key)
	if err != nil {
		return "", fmt.Errorf("risk: sign payload: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return "0x" + hex.EncodeToString(sig), nil
}

// RecoverSigner returns the address that produced sigHex over p.
func RecoverSigner(p Payload, sigHex string) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(sigHex, "0x"), "0X"))
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidSignature, crypto.SignatureLength, len(sig))
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return common.Address{}, fmt.Errorf("%w: bad recovery id", ErrInvalidSignature)
	}

	digest, err := p.Digest()
	if err != nil {
		return common.Address{}, err
	}
	pub, err := crypto.SigToPub(PersonalHash(digest).Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
