package domain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Address is a normalized, lowercase account identifier. All map keys and
// equality checks in the engine operate on the normalized form.
type Address string

// NormalizeAddress canonicalizes a raw address string: surrounding whitespace
// is stripped, the address is lowercased, and a bare 40-hex-character input
// gets the 0x prefix added.
func NormalizeAddress(raw string) Address {
	s := strings.ToLower(strings.TrimSpace(raw))
	if !strings.HasPrefix(s, "0x") && len(s) == 40 && isHex(s) {
		s = "0x" + s
	}
	return Address(s)
}

// Valid reports whether the address is a well-formed 20-byte hex address.
func (a Address) Valid() bool {
	return common.IsHexAddress(string(a))
}

// Short returns an abbreviated form for log lines, e.g. "0xc2a302...4e5f2".
func (a Address) Short() string {
	s := string(a)
	if len(s) < 16 {
		return s
	}
	return s[:8] + "..." + s[len(s)-6:]
}

func (a Address) String() string { return string(a) }

func isHex(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
