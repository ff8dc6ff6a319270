package chain

import (
	"encoding/hex"
	"fmt"
	"math/big"
)

// Known revert selectors surfaced by the delegation manager and solidity
// runtime. Decoding is diagnostics-only: it improves log quality but never
// changes retry behavior.
const (
	selectorErrorString      = "08c379a0" // Error(string)
	selectorPanic            = "4e487b71" // Panic(uint256)
	selectorCaveatViolated   = "0da8e0f9" // CaveatViolated(uint256)
	selectorDelegationAbsent = "8b5c4b15" // DelegationNotFound()
	selectorInvalidSignature = "8baa579f" // InvalidSignature()
)

// DecodeRevert maps raw revert data to a human-readable message. The second
// return value reports whether the selector was recognized.
func DecodeRevert(data []byte) (string, bool) {
	if len(data) < 4 {
		return "execution reverted with no data", false
	}

	selector := hex.EncodeToString(data[:4])
	payload := data[4:]

	switch selector {
	case selectorErrorString:
		if msg, ok := decodeRevertString(payload); ok {
			return fmt.Sprintf("execution reverted: %s", msg), true
		}
		return "execution reverted with malformed Error(string) data", false

	case selectorPanic:
		if len(payload) >= 32 {
			code := new(big.Int).SetBytes(payload[:32])
			if code.Uint64() == 0x11 {
				return "execution reverted: arithmetic overflow or underflow", true
			}
			return fmt.Sprintf("execution reverted: panic code 0x%x", code), true
		}
		return "execution reverted with malformed Panic data", false

	case selectorCaveatViolated:
		if len(payload) >= 32 {
			index := new(big.Int).SetBytes(payload[:32])
			return fmt.Sprintf("delegation caveat violated at index %d", index), true
		}
		return "delegation caveat violated", true

	case selectorDelegationAbsent:
		return "delegation not found", true

	case selectorInvalidSignature:
		return "delegation signature invalid", true
	}

	return fmt.Sprintf("execution reverted with unrecognized selector 0x%s", selector), false
}

// decodeRevertString extracts the string from ABI-encoded Error(string)
// payload: offset word, length word, then the bytes.
func decodeRevertString(payload []byte) (string, bool) {
	if len(payload) < 64 {
		return "", false
	}
	// Bounds are checked by subtraction: adding to attacker-controlled
	// offset or length words could wrap around uint64.
	offset := new(big.Int).SetBytes(payload[:32])
	if !offset.IsUint64() || offset.Uint64() > uint64(len(payload))-32 {
		return "", false
	}
	start := offset.Uint64()
	length := new(big.Int).SetBytes(payload[start : start+32])
	if !length.IsUint64() || length.Uint64() > uint64(len(payload))-start-32 {
		return "", false
	}
	return string(payload[start+32 : start+32+length.Uint64()]), true
}
