package processor

import (
	"math/big"
	"testing"
)

func TestWordRoundTrip(t *testing.T) {
	values := []string{
		"0",
		"1",
		"18446744073709551615",                    // max uint64
		"18446744073709551616",                    // max uint64 + 1
		"123456789012345678901234567890",          // well past 2^53
		"115792089237316195423570985008687907853", // 128-bit territory
	}

	for _, s := range values {
		v, _ := new(big.Int).SetString(s, 10)
		got := DecodeWord(EncodeWord(v))
		if got.Cmp(v) != 0 {
			t.Errorf("round trip of %s gave %s", s, got)
		}
	}
}

func TestEncodeWordWidth(t *testing.T) {
	if got := len(EncodeWord(big.NewInt(7))); got != 32 {
		t.Fatalf("expected 32-byte word, got %d", got)
	}
}

func TestDecodeQuantityHex(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"0x0", "0", true},
		{"0x1b3", "435", true},
		{"1b3", "435", true},
		{"0xffffffffffffffffff", "4722366482869645213695", true}, // 72 bits
		{"", "", false},
		{"0x", "", false},
		{"0xzz", "", false},
		{"-0x10", "", false},
	}

	for _, tc := range tests {
		got, err := DecodeQuantityHex(tc.in)
		if tc.ok {
			if err != nil {
				t.Errorf("DecodeQuantityHex(%q): %v", tc.in, err)
				continue
			}
			if got.String() != tc.want {
				t.Errorf("DecodeQuantityHex(%q) = %s, want %s", tc.in, got, tc.want)
			}
		} else if err == nil {
			t.Errorf("DecodeQuantityHex(%q) succeeded with %s, want error", tc.in, got)
		}
	}
}
