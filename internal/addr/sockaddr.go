package addr

import (
	"fmt"
	"net"
)

// SockAddr pairs an Address with a UDP port, the unit the transport layer
// actually sends datagrams to and receives them from.
type SockAddr struct {
	Addr Address
	Port uint16
}

// UDPAddr converts to the standard library's representation for use with
// net.PacketConn.
func (s SockAddr) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: s.Addr.IP(), Port: int(s.Port)}
}

func (s SockAddr) String() string {
	return fmt.Sprintf("%s:%d", s.Addr, s.Port)
}

// SockAddrFromUDP builds a SockAddr from a net.UDPAddr, folding any
// v4-in-v6 embedding as FromIP does.
func SockAddrFromUDP(u *net.UDPAddr) (SockAddr, error) {
	a, err := FromIP(u.IP)
	if err != nil {
		return SockAddr{}, err
	}
	return SockAddr{Addr: a, Port: uint16(u.Port)}, nil
}
