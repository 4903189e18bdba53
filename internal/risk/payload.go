package risk

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mbd888/streamvault/internal/riskstore"
)

// TypeString is the struct signature hashed into TypeHash. On-chain
// verifiers hash the same bytes, so it must not change.
const TypeString = "RiskPayload(address subject,uint8 score,uint8 band,uint256 timestamp,uint256 expiry,bytes32 nonce)"

// TypeHash is keccak256(TypeString).
var TypeHash = crypto.Keccak256Hash([]byte(TypeString))

var payloadArgs = mustArguments("bytes32", "address", "uint8", "uint8", "uint256", "uint256", "bytes32")

func mustArguments(types ...string) abi.Arguments {
	args := make(abi.Arguments, 0, len(types))
	for _, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(fmt.Sprintf("risk: abi type %s: %v", t, err))
		}
		args = append(args, abi.Argument{Type: typ})
	}
	return args
}

// Payload is the signed risk statement for one business.
type Payload struct {
	// Subject is the address as supplied by the caller. Only its 20-byte
	// value enters the hash.
	Subject   string
	Score     uint8
	Band      Band
	Timestamp int64
	Expiry    int64
	Nonce     [32]byte
}

// Encode returns abi.encode(TypeHash, subject, score, band, timestamp, expiry, nonce).
func (p Payload) Encode() ([]byte, error) {
	if !common.IsHexAddress(p.Subject) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, p.Subject)
	}
	if p.Timestamp < 0 || p.Expiry < 0 {
		return nil, fmt.Errorf("risk: negative timestamp in payload")
	}
	return payloadArgs.Pack(
		[32]byte(TypeHash),
		common.HexToAddress(p.Subject),
		p.Score,
		uint8(p.Band),
		big.NewInt(p.Timestamp),
		big.NewInt(p.Expiry),
		p.Nonce,
	)
}

// Digest is keccak256 of the encoded payload.
func (p Payload) Digest() (common.Hash, error) {
	enc, err := p.Encode()
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}

// PersonalHash applies the "\x19Ethereum Signed Message:\n32" prefix to a
// digest, which is what personal_sign signs and ecrecover must be fed.
func PersonalHash(digest common.Hash) common.Hash {
	return common.BytesToHash(accounts.TextHash(digest.Bytes()))
}

// Expired reports whether the payload is past its expiry at unix time now.
func (p Payload) Expired(now int64) bool { return now > p.Expiry }

// Stored converts the payload to its persisted form.
func (p Payload) Stored() riskstore.SignedPayload {
	return riskstore.SignedPayload{
		Subject:   p.Subject,
		Score:     p.Score,
		Band:      uint8(p.Band),
		Timestamp: p.Timestamp,
		Expiry:    p.Expiry,
		Nonce:     "0x" + hex.EncodeToString(p.Nonce[:]),
	}
}

// PayloadFromStored parses a persisted payload.
func PayloadFromStored(sp riskstore.SignedPayload) (Payload, error) {
	if sp.Band > uint8(BandHigh) {
		return Payload{}, fmt.Errorf("%w: index %d", ErrUnknownBand, sp.Band)
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(sp.Nonce, "0x"), "0X"))
	if err != nil || len(raw) != 32 {
		return Payload{}, fmt.Errorf("risk: nonce must be 32 bytes of hex")
	}
	p := Payload{
		Subject:   sp.Subject,
		Score:     sp.Score,
		Band:      Band(sp.Band),
		Timestamp: sp.Timestamp,
		Expiry:    sp.Expiry,
	}
	copy(p.Nonce[:], raw)
	return p, nil
}
