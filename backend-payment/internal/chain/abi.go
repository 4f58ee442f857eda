// Package chain reads escrow payments from an Ethereum JSON-RPC node.
package chain

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/sha3"
)

// Event and function signatures of the escrow contract
const (
	FundedEventSignature = "Funded(address,uint256)"
	StateFunctionSig     = "state()"
)

var (
	// FundedTopic is topics[0] of every Funded log
	FundedTopic = EventTopic(FundedEventSignature)
	// StateSelector is the calldata for state()
	StateSelector = FunctionSelector(StateFunctionSig)
)

// ErrMalformedHex is returned for node data that is not valid 0x-hex
var ErrMalformedHex = errors.New("malformed hex value")

// Keccak256 returns the legacy Keccak-256 digest used by Ethereum
func Keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// EventTopic returns the 0x-prefixed topic hash of an event signature
func EventTopic(signature string) string {
	return "0x" + hex.EncodeToString(Keccak256([]byte(signature)))
}

// FunctionSelector returns the 0x-prefixed 4-byte selector of a function signature
func FunctionSelector(signature string) string {
	return "0x" + hex.EncodeToString(Keccak256([]byte(signature))[:4])
}

// DecodeHex strips the 0x prefix and decodes the rest
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHex, err)
	}
	return b, nil
}

// DecodeUint256 reads the first 32-byte word of ABI-encoded data
func DecodeUint256(data string) (*big.Int, error) {
	b, err := DecodeHex(data)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty word", ErrMalformedHex)
	}
	if len(b) > 32 {
		b = b[:32]
	}
	return new(big.Int).SetBytes(b), nil
}

// AddressFromTopic returns the address packed into the last 20 bytes of an
// indexed topic
func AddressFromTopic(topic string) (string, error) {
	b, err := DecodeHex(topic)
	if err != nil {
		return "", err
	}
	if len(b) != 32 {
		return "", fmt.Errorf("%w: topic is %d bytes", ErrMalformedHex, len(b))
	}
	return "0x" + hex.EncodeToString(b[12:]), nil
}

// ScaleAmount converts a base-unit integer into an exact decimal with the
// given number of decimals
func ScaleAmount(v *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(v, -decimals)
}

// ParseQuantity decodes a JSON-RPC hex quantity such as "0x1b4"
func ParseQuantity(s string) (uint64, error) {
	if !strings.HasPrefix(s, "0x") {
		return 0, fmt.Errorf("%w: %q", ErrMalformedHex, s)
	}
	n, err := strconv.ParseUint(s[2:], 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedHex, s)
	}
	return n, nil
}
