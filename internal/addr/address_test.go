package addr

import (
	"net"
	"testing"
)

func TestFromIPFoldsV4InV6(t *testing.T) {
	// ::ffff:10.0.0.1 is the IPv4-mapped form; FromIP must fold it back to
	// a 4-byte IPv4 Address per the data model.
	mapped := net.ParseIP("::ffff:10.0.0.1")
	a, err := FromIP(mapped)
	if err != nil {
		t.Fatalf("FromIP: %v", err)
	}
	if a.Family() != IPv4 {
		t.Fatalf("want IPv4, got %s", a.Family())
	}
	if got := a.IP().String(); got != "10.0.0.1" {
		t.Fatalf("want 10.0.0.1, got %s", got)
	}
}

func TestCompareOrdersByFamilyThenBytesThenPrefix(t *testing.T) {
	a4, _ := FromIPPrefix(net.ParseIP("10.0.0.1"), 32)
	a4wide, _ := FromIPPrefix(net.ParseIP("10.0.0.1"), 24)
	a6, _ := FromIPPrefix(net.ParseIP("::1"), 128)

	if a4.Compare(a4) != 0 {
		t.Fatal("address must compare equal to itself")
	}
	if a4wide.Compare(a4) >= 0 {
		t.Fatal("narrower prefix length must sort before wider")
	}
	if a4.Compare(a6) >= 0 {
		t.Fatal("IPv4 family must sort before IPv6")
	}
}

func TestAddressUsableAsMapKey(t *testing.T) {
	a1, _ := FromIPPrefix(net.ParseIP("192.168.1.1"), 32)
	a2, _ := FromIPPrefix(net.ParseIP("192.168.1.1"), 32)
	m := map[Address]int{a1: 1}
	if _, ok := m[a2]; !ok {
		t.Fatal("two Address values built from the same IP+prefix must be equal map keys")
	}
}

func TestFromBytesRejectsUnknownLength(t *testing.T) {
	_, err := FromBytes([]byte{1, 2, 3}, 24)
	if err == nil {
		t.Fatal("expected error for 3-byte address")
	}
}
