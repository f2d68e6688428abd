package identity

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNormalizeAddress_Checksum(t *testing.T) {
	vectors := []string{
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359",
		"0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB",
		"0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb",
	}
	for _, v := range vectors {
		got, err := NormalizeAddress(strings.ToLower(v))
		if err != nil {
			t.Fatalf("NormalizeAddress(lower %s): %v", v, err)
		}
		if got != v {
			t.Fatalf("checksum of %s = %s", strings.ToLower(v), got)
		}
		if got, err := NormalizeAddress(v); err != nil || got != v {
			t.Fatalf("NormalizeAddress(%s) = %s, %v", v, got, err)
		}
	}
}

func TestNormalizeAddress_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"empty", "", ErrInvalidAddress},
		{"no prefix", "5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed00", ErrInvalidAddress},
		{"short", "0x1234", ErrInvalidAddress},
		{"not hex", "0xZZZeb6053F3E94C9b9A09f33669435E7Ef1BeAed", ErrInvalidAddress},
		{"bad checksum", "0x5AAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", ErrBadChecksum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizeAddress(tt.in)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestNormalizeAddress_DigitsOnly(t *testing.T) {
	in := "0x" + strings.Repeat("1", 40)
	got, err := NormalizeAddress(in)
	if err != nil || got != in {
		t.Fatalf("NormalizeAddress(%s) = %s, %v", in, got, err)
	}
}

func TestSameAddress(t *testing.T) {
	if !SameAddress("0xabc", "0xABC") {
		t.Fatal("expected case-insensitive match")
	}
	if SameAddress("", "") {
		t.Fatal("empty addresses must not match")
	}
}

func TestRevocations(t *testing.T) {
	r := NewRevocations()
	base := time.Unix(1_700_000_000, 0)
	r.now = func() time.Time { return base }

	r.Revoke("a", base.Add(time.Minute))
	r.Revoke("b", base.Add(time.Hour))
	r.Revoke("", base.Add(time.Hour))

	if !r.IsRevoked("a") || !r.IsRevoked("b") {
		t.Fatal("expected both tokens revoked")
	}
	if r.IsRevoked("c") {
		t.Fatal("unknown token reported revoked")
	}

	r.now = func() time.Time { return base.Add(2 * time.Minute) }
	if r.IsRevoked("a") {
		t.Fatal("expired revocation should be dropped")
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 live entry, got %d", r.Len())
	}
}
