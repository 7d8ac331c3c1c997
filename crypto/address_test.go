package crypto

import (
	"bytes"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	var raw [20]byte
	copy(raw[:], bytes.Repeat([]byte{0x42}, 20))

	encoded := FormatAddress(raw)
	if encoded[:4] != "ecm1" {
		t.Fatalf("unexpected encoding %s", encoded)
	}
	decoded, err := ParseAddress(encoded)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if decoded != raw {
		t.Fatalf("round trip mismatch")
	}
}

func TestParseAddressRejectsForeignPrefix(t *testing.T) {
	var raw [20]byte
	raw[0] = 1
	foreign := MustNewAddress("other", raw[:]).String()
	if _, err := ParseAddress(foreign); err == nil {
		t.Fatalf("expected prefix rejection")
	}
	if _, err := ParseAddress("not-an-address"); err == nil {
		t.Fatalf("expected decode failure")
	}
}

func TestNewAddressLength(t *testing.T) {
	if _, err := NewAddress(ECMPrefix, []byte{1, 2, 3}); err == nil {
		t.Fatalf("expected length error")
	}
}
