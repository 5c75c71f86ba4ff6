package processor

import (
	"fmt"
	"math/big"
	"strings"
)

// DecodeWord interprets return data as a big-endian unsigned integer. The
// value passes through big.Int end to end; converting through a float64
// would silently corrupt anything above 2^53.
func DecodeWord(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}

// EncodeWord left-pads a value to a 32-byte ABI word.
func EncodeWord(v *big.Int) []byte {
	word := make([]byte, 32)
	v.FillBytes(word)
	return word
}

// DecodeQuantityHex parses a hex quantity string ("0x1b3" or "1b3") into a
// big.Int at full width.
func DecodeQuantityHex(s string) (*big.Int, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty hex quantity", ErrInvalidArgument)
	}
	v, ok := new(big.Int).SetString(trimmed, 16)
	if !ok {
		return nil, fmt.Errorf("%w: malformed hex quantity %q", ErrInvalidArgument, s)
	}
	return v, nil
}
