// Package addr implements the uniform address representation shared by the
// RFC 5444 codec, the NHDP database, and the OLSRv2 topology database.
//
// All addresses (IPv4, IPv6, and the link-layer identifiers that can show
// up as NHDP interface addresses on some media, MAC-48 and EUI-64) are
// normalized into one fixed-size record so the rest of the daemon can
// compare, sort, and hash them without a type switch.
package addr

import "fmt"

// Family tags which address type a Address record holds.
type Family uint8

const (
	// Unspec is the zero value: no address family decided yet.
	Unspec Family = iota
	IPv4
	IPv6
	MAC48
	EUI64
)

// Len returns the number of significant bytes for the family, i.e. how many
// leading bytes of Address.buf are populated.
func (f Family) Len() int {
	switch f {
	case IPv4:
		return 4
	case IPv6:
		return 16
	case MAC48:
		return 6
	case EUI64:
		return 8
	default:
		return 0
	}
}

// MaxPrefixLen returns the widest prefix length valid for the family, i.e.
// Len() in bits.
func (f Family) MaxPrefixLen() int {
	return f.Len() * 8
}

func (f Family) String() string {
	switch f {
	case IPv4:
		return "ipv4"
	case IPv6:
		return "ipv6"
	case MAC48:
		return "mac48"
	case EUI64:
		return "eui64"
	default:
		return "unspec"
	}
}

// ErrUnsupportedFamily is returned when a caller hands in bytes of a length
// that does not match any known Family.
type ErrUnsupportedFamily struct {
	Len int
}

func (e *ErrUnsupportedFamily) Error() string {
	return fmt.Sprintf("addr: no family with length %d", e.Len)
}
