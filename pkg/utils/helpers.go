package utils

import "github.com/ethereum/go-ethereum/common"

// IsZeroAddress reports whether the address is unset or the null address.
func IsZeroAddress(a common.Address) bool {
	return a == (common.Address{})
}

// ShortAddress renders 0x1234...abcd for log and message output.
func ShortAddress(a common.Address) string {
	h := a.Hex()
	return h[:6] + "..." + h[len(h)-4:]
}
