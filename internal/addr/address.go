package addr

import (
	"bytes"
	"fmt"
	"net"
)

// bufLen is the size of the fixed buffer every Address carries. IPv6 is the
// widest family the daemon handles, so 16 bytes covers all of them; shorter
// families occupy the leading bytes, as spec'd, so byte-wise comparison
// across families stays deterministic.
const bufLen = 16

// Address is a uniform, comparable address record: a 16-byte buffer, a
// family tag, and a prefix length. Two Address values compare equal with
// == iff they denote the same address+prefix+family, which makes Address
// usable directly as a map key.
type Address struct {
	buf    [bufLen]byte
	family Family
	plen   uint8
}

// FromIP builds an Address from a net.IP, choosing IPv4 or IPv6 and
// defaulting the prefix length to the family's full width (a host route).
// An IPv4-mapped address (::ffff:a.b.c.d) is always folded back to the
// 4-byte form; an IPv4-compatible address (::a.b.c.d) is not folded and
// stays IPv6.
func FromIP(ip net.IP) (Address, error) {
	if v4 := ip.To4(); v4 != nil {
		return FromIPPrefix(v4, 32)
	}
	if v6 := ip.To16(); v6 != nil {
		return FromIPPrefix(v6, 128)
	}
	return Address{}, fmt.Errorf("addr: invalid IP %v", ip)
}

// FromIPPrefix builds an Address with an explicit prefix length. An
// IPv4-mapped address (e.g. ::ffff:10.0.0.1) is folded back to the 4-byte
// representation; the IPv4-compatible form (::a.b.c.d) is kept as IPv6.
func FromIPPrefix(ip net.IP, plen int) (Address, error) {
	var a Address
	switch {
	case ip.To4() != nil:
		a.family = IPv4
		copy(a.buf[:4], ip.To4())
	case ip.To16() != nil:
		a.family = IPv6
		copy(a.buf[:16], ip.To16())
	default:
		return a, fmt.Errorf("addr: invalid IP %v", ip)
	}
	max := a.family.MaxPrefixLen()
	if plen < 0 || plen > max {
		return a, fmt.Errorf("addr: prefix length %d out of range for %s", plen, a.family)
	}
	a.plen = uint8(plen)
	return a, nil
}

// FromBytes builds an Address directly from a raw byte slice whose length
// determines the family (4 => IPv4, 6 => MAC48, 8 => EUI64, 16 => IPv6).
func FromBytes(b []byte, plen int) (Address, error) {
	var f Family
	switch len(b) {
	case 4:
		f = IPv4
	case 6:
		f = MAC48
	case 8:
		f = EUI64
	case 16:
		f = IPv6
	default:
		return Address{}, &ErrUnsupportedFamily{Len: len(b)}
	}
	var a Address
	a.family = f
	copy(a.buf[:len(b)], b)
	if plen < 0 || plen > f.MaxPrefixLen() {
		return a, fmt.Errorf("addr: prefix length %d out of range for %s", plen, f)
	}
	a.plen = uint8(plen)
	return a, nil
}

// Family returns the address family tag.
func (a Address) Family() Family { return a.family }

// PrefixLen returns the prefix length in bits.
func (a Address) PrefixLen() int { return int(a.plen) }

// IsHost reports whether the prefix length covers the whole family width,
// i.e. this Address names one host rather than a network.
func (a Address) IsHost() bool { return int(a.plen) == a.family.MaxPrefixLen() }

// Bytes returns the significant bytes (Family().Len() of them) of the
// address, independent of prefix length.
func (a Address) Bytes() []byte {
	n := a.family.Len()
	out := make([]byte, n)
	copy(out, a.buf[:n])
	return out
}

// IP converts an IPv4 or IPv6 Address back to a net.IP. Panics if called on
// a link-layer family; callers must check Family() first.
func (a Address) IP() net.IP {
	switch a.family {
	case IPv4:
		ip := make(net.IP, 4)
		copy(ip, a.buf[:4])
		return ip
	case IPv6:
		ip := make(net.IP, 16)
		copy(ip, a.buf[:16])
		return ip
	default:
		panic(fmt.Sprintf("addr: IP() called on %s address", a.family))
	}
}

// Host returns the Address with its prefix length widened to a full host
// address, keeping the same bytes and family.
func (a Address) Host() Address {
	a.plen = uint8(a.family.MaxPrefixLen())
	return a
}

// Compare orders Address values deterministically: first by family tag
// (so addresses of different families never compare by bytes), then
// byte-wise over the fixed buffer within one family, then by prefix length. Keyed indexes (sorted
// slices in place of a balanced tree) rely on this total order being
// stable across families.
func (a Address) Compare(b Address) int {
	if a.family != b.family {
		if a.family < b.family {
			return -1
		}
		return 1
	}
	if c := bytes.Compare(a.buf[:], b.buf[:]); c != 0 {
		return c
	}
	switch {
	case a.plen < b.plen:
		return -1
	case a.plen > b.plen:
		return 1
	default:
		return 0
	}
}

// Less is a convenience wrapper around Compare for use with sort.Slice.
func (a Address) Less(b Address) bool { return a.Compare(b) < 0 }

func (a Address) String() string {
	switch a.family {
	case IPv4, IPv6:
		if a.IsHost() {
			return a.IP().String()
		}
		return fmt.Sprintf("%s/%d", a.IP().String(), a.plen)
	case MAC48, EUI64:
		return net.HardwareAddr(a.Bytes()).String()
	default:
		return "<unspec>"
	}
}
