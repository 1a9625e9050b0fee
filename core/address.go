package core

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
)

// CanonicalAddress lower-cases an address for use as a key or in comparisons
func CanonicalAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// IsValidAddress accepts 0x-prefixed 20-byte hex addresses in any letter case
func IsValidAddress(address string) bool {
	if !strings.HasPrefix(address, "0x") {
		return false
	}
	return common.IsHexAddress(address)
}

// ParseTokenID parses a decimal or 0x-prefixed hex uint256 token id
func ParseTokenID(raw string) (*big.Int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	id, ok := math.ParseBig256(raw)
	if !ok || id.Sign() < 0 {
		return nil, false
	}
	return id, true
}
