package nhdp

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/benpicco/olsrv2d/internal/transport"
)

// Port is the IANA-assigned UDP port for OLSRv2/NHDP traffic (RFC 5498).
const Port = 269

// MulticastIPv4/MulticastIPv6 are RFC 5498's "MANET" link-local multicast
// group, the destination every HELLO and TC is sent to.
var (
	MulticastIPv4 = net.IPv4(224, 0, 0, 109)
	MulticastIPv6 = net.ParseIP("ff02::6d")
)

// Datagram is one packet read off a Socket, tagged with the local
// interface it arrived on (so the caller can hand it to the right
// nhdp.Interface without a second interface lookup) and its source
// address (for NHDP's own peer bookkeeping).
type Datagram struct {
	Payload []byte
	IfIndex int
	Src     net.IP
}

// Socket is one shared multicast transport per address family. A daemon
// opens one v4 and/or one v6 Socket and calls Join for every configured
// NHDP interface; all interfaces of that family share the single bound
// port, the way a single mDNS responder shares one socket across
// interfaces rather than opening one per interface.
type Socket struct {
	conn net.PacketConn
	pc4  *ipv4.PacketConn
	pc6  *ipv6.PacketConn
	dest *net.UDPAddr
}

// NewSocket opens the shared OLSRv2/NHDP multicast socket for one address
// family, bound to Port and ready for Join/SendTo/ReadFrom. v6 selects
// ff02::6d/udp6 instead of 224.0.0.109/udp4.
func NewSocket(v6 bool) (*Socket, error) {
	return newSocket(v6, Port)
}

// newSocket is the test-injectable core of NewSocket: tests pass port 0
// so the kernel assigns an ephemeral port, since Port itself is
// privileged and binding it requires root.
func newSocket(v6 bool, port int) (*Socket, error) {
	network := "udp4"
	group := net.IP(MulticastIPv4)
	if v6 {
		network = "udp6"
		group = MulticastIPv6
	}

	lc := net.ListenConfig{Control: transport.PlatformControl}
	conn, err := lc.ListenPacket(context.Background(), network, fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("nhdp: listen %s/%d: %w", network, port, err)
	}

	boundPort := port
	if ua, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		boundPort = ua.Port
	}

	s := &Socket{conn: conn, dest: &net.UDPAddr{IP: group, Port: boundPort}}

	if v6 {
		s.pc6 = ipv6.NewPacketConn(conn)
		if err := s.pc6.SetControlMessage(ipv6.FlagInterface, true); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("nhdp: set control message: %w", err)
		}
		if err := s.pc6.SetMulticastHopLimit(255); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("nhdp: set multicast hop limit: %w", err)
		}
	} else {
		s.pc4 = ipv4.NewPacketConn(conn)
		if err := s.pc4.SetControlMessage(ipv4.FlagInterface, true); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("nhdp: set control message: %w", err)
		}
		if err := s.pc4.SetMulticastTTL(255); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("nhdp: set multicast ttl: %w", err)
		}
	}

	return s, nil
}

// Join adds ifi to this Socket's multicast group membership, making it
// receive HELLOs/TCs arriving on that interface.
func (s *Socket) Join(ifi *net.Interface) error {
	if s.pc6 != nil {
		return s.pc6.JoinGroup(ifi, &net.UDPAddr{IP: MulticastIPv6})
	}
	return s.pc4.JoinGroup(ifi, &net.UDPAddr{IP: MulticastIPv4})
}

// Leave removes ifi's multicast group membership, e.g. when an interface
// drops out of the configured NHDP interface set at runtime.
func (s *Socket) Leave(ifi *net.Interface) error {
	if s.pc6 != nil {
		return s.pc6.LeaveGroup(ifi, &net.UDPAddr{IP: MulticastIPv6})
	}
	return s.pc4.LeaveGroup(ifi, &net.UDPAddr{IP: MulticastIPv4})
}

// SendTo multicasts payload out the interface identified by ifIndex. The
// socket isn't bound to any one interface, so the egress interface must
// be selected per send via the control message rather than via WriteTo's
// destination address.
func (s *Socket) SendTo(ifIndex int, payload []byte) error {
	if s.pc6 != nil {
		cm := &ipv6.ControlMessage{IfIndex: ifIndex}
		_, err := s.pc6.WriteTo(payload, cm, s.dest)
		return err
	}
	cm := &ipv4.ControlMessage{IfIndex: ifIndex}
	_, err := s.pc4.WriteTo(payload, cm, s.dest)
	return err
}

// ReadFrom blocks for the next datagram on this socket. The returned
// Datagram's Payload is a copy, safe to retain past the call returning
// (the read buffer itself comes from transport's shared pool and is
// returned before ReadFrom returns).
func (s *Socket) ReadFrom() (*Datagram, error) {
	bufPtr := transport.GetBuffer()
	defer transport.PutBuffer(bufPtr)
	buf := *bufPtr

	var (
		n       int
		ifIndex int
		src     net.Addr
	)

	if s.pc6 != nil {
		nn, cm, sa, err := s.pc6.ReadFrom(buf)
		if err != nil {
			return nil, err
		}
		n, src = nn, sa
		if cm != nil {
			ifIndex = cm.IfIndex
		}
	} else {
		nn, cm, sa, err := s.pc4.ReadFrom(buf)
		if err != nil {
			return nil, err
		}
		n, src = nn, sa
		if cm != nil {
			ifIndex = cm.IfIndex
		}
	}

	payload := make([]byte, n)
	copy(payload, buf[:n])

	var srcIP net.IP
	if ua, ok := src.(*net.UDPAddr); ok {
		srcIP = ua.IP
	}

	return &Datagram{Payload: payload, IfIndex: ifIndex, Src: srcIP}, nil
}

// SetReadDeadline propagates to the underlying connection, letting a
// caller bound how long ReadFrom blocks (e.g. so the event loop can poll
// a shutdown channel between reads).
func (s *Socket) SetReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

// Close releases the underlying socket and drops all group memberships.
func (s *Socket) Close() error {
	return s.conn.Close()
}
