package crypto

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const moduleAddressDomain = "dope/module/"

// ModuleAddress derives the deterministic custody account for a protocol
// module. Nobody holds a key for it; only the owning ledger moves its funds.
func ModuleAddress(module string) common.Address {
	name := strings.ToLower(strings.TrimSpace(module))
	digest := ethcrypto.Keccak256([]byte(moduleAddressDomain + name))
	return common.BytesToAddress(digest[12:])
}

// ParseAddress decodes a 0x-prefixed hex account.
func ParseAddress(raw string) (common.Address, bool) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, false
	}
	return common.HexToAddress(trimmed), true
}
