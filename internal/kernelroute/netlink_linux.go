//go:build linux

package kernelroute

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/benpicco/olsrv2d/internal/addr"
)

// Netlink is the real kernel route channel: one AF_NETLINK/NETLINK_ROUTE
// socket, a background reader goroutine that demultiplexes acks and dump
// replies by sequence number, and a sequence counter. This is the only
// goroutine in the package that touches the socket. Set/Query hand off
// work to it via the socket itself (sendto) and read results back off
// pending, so the socket always has a single writer.
type Netlink struct {
	fd  int
	seq uint32

	mu      sync.Mutex
	pending map[uint32]*pendingOp
	closed  bool
}

type pendingOp struct {
	req    *Request // nil for a dump query
	ch     chan *Request
	cancel bool
}

// NewNetlink opens and binds a NETLINK_ROUTE socket for route
// install/remove/query.
func NewNetlink() (*Netlink, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.NETLINK_ROUTE)
	if err != nil {
		return nil, fmt.Errorf("kernelroute: open netlink socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrNetlink{Family: unix.AF_NETLINK}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("kernelroute: bind netlink socket: %w", err)
	}
	nl := &Netlink{fd: fd, pending: map[uint32]*pendingOp{}}
	go nl.readLoop()
	return nl, nil
}

func (nl *Netlink) nextSeq() uint32 { return atomic.AddUint32(&nl.seq, 1) }

// Set encodes req as RTM_NEWROUTE (set=true) or RTM_DELROUTE (set=false)
// and sends it with NLM_F_REQUEST|NLM_F_ACK (plus NLM_F_CREATE|NLM_F_REPLACE
// on install). The kernel's ack or nack arrives asynchronously on
// req.Done via readLoop.
func (nl *Netlink) Set(req *Request, set bool) error {
	msgType := uint16(unix.RTM_DELROUTE)
	flags := uint16(unix.NLM_F_REQUEST | unix.NLM_F_ACK)
	if set {
		msgType = unix.RTM_NEWROUTE
		flags |= unix.NLM_F_CREATE | unix.NLM_F_REPLACE
	}

	seq := nl.nextSeq()
	payload := encodeRoute(req, set)
	msg := encodeNlmsg(msgType, flags, seq, payload)

	nl.mu.Lock()
	if nl.closed {
		nl.mu.Unlock()
		return fmt.Errorf("kernelroute: channel closed")
	}
	nl.pending[seq] = &pendingOp{req: req}
	nl.mu.Unlock()

	sa := &unix.SockaddrNetlink{Family: unix.AF_NETLINK}
	if err := unix.Sendto(nl.fd, msg, 0, sa); err != nil {
		nl.mu.Lock()
		delete(nl.pending, seq)
		nl.mu.Unlock()
		return fmt.Errorf("kernelroute: sendto: %w", err)
	}
	return nil
}

// Query dumps every route in family over a channel closed on NLMSG_DONE.
func (nl *Netlink) Query(family addr.Family) (<-chan *Request, error) {
	fam := uint8(unix.AF_INET)
	if family == addr.IPv6 {
		fam = unix.AF_INET6
	}

	seq := nl.nextSeq()
	payload := make([]byte, rtmsgLen)
	payload[0] = fam
	msg := encodeNlmsg(unix.RTM_GETROUTE, unix.NLM_F_REQUEST|unix.NLM_F_DUMP, seq, payload)

	ch := make(chan *Request, 64)
	nl.mu.Lock()
	if nl.closed {
		nl.mu.Unlock()
		close(ch)
		return ch, fmt.Errorf("kernelroute: channel closed")
	}
	nl.pending[seq] = &pendingOp{ch: ch}
	nl.mu.Unlock()

	sa := &unix.SockaddrNetlink{Family: unix.AF_NETLINK}
	if err := unix.Sendto(nl.fd, msg, 0, sa); err != nil {
		nl.mu.Lock()
		delete(nl.pending, seq)
		nl.mu.Unlock()
		close(ch)
		return ch, fmt.Errorf("kernelroute: sendto dump request: %w", err)
	}
	return ch, nil
}

func (nl *Netlink) Close() error {
	nl.mu.Lock()
	nl.closed = true
	for seq, op := range nl.pending {
		if op.ch != nil {
			close(op.ch)
		} else if op.req != nil && op.req.Done != nil {
			op.req.Done(op.req, ErrCancelled)
		}
		delete(nl.pending, seq)
	}
	nl.mu.Unlock()
	return unix.Close(nl.fd)
}

func (nl *Netlink) readLoop() {
	buf := make([]byte, 65536)
	for {
		n, _, err := unix.Recvfrom(nl.fd, buf, 0)
		if err != nil {
			if err == syscall.EBADF || err == syscall.EINVAL {
				return
			}
			continue
		}
		nl.dispatch(buf[:n])
	}
}

func (nl *Netlink) dispatch(buf []byte) {
	for len(buf) >= nlmsgHdrLen {
		length := binary.LittleEndian.Uint32(buf[0:4])
		msgType := binary.LittleEndian.Uint16(buf[4:6])
		seq := binary.LittleEndian.Uint32(buf[8:12])
		if length < nlmsgHdrLen || int(length) > len(buf) {
			return
		}
		body := buf[nlmsgHdrLen:length]

		nl.mu.Lock()
		op, ok := nl.pending[seq]
		nl.mu.Unlock()

		switch {
		case msgType == unix.NLMSG_ERROR:
			errno := int32(binary.LittleEndian.Uint32(body[0:4]))
			if ok && op.req != nil {
				nl.mu.Lock()
				delete(nl.pending, seq)
				nl.mu.Unlock()
				var resultErr error
				if errno != 0 {
					resultErr = syscall.Errno(-errno)
				}
				if op.req.Done != nil {
					op.req.Done(op.req, resultErr)
				}
			}
		case msgType == unix.NLMSG_DONE:
			if ok && op.ch != nil {
				nl.mu.Lock()
				delete(nl.pending, seq)
				nl.mu.Unlock()
				close(op.ch)
			}
		case msgType == unix.RTM_NEWROUTE:
			if ok && op.ch != nil {
				if req := decodeRoute(body); req != nil {
					op.ch <- req
				}
			}
		}

		// netlink messages are 4-byte aligned.
		advance := int((length + 3) &^ 3)
		if advance <= 0 || advance > len(buf) {
			return
		}
		buf = buf[advance:]
	}
}

const (
	nlmsgHdrLen = 16
	rtmsgLen    = 12
)

func encodeNlmsg(msgType uint16, flags uint16, seq uint32, payload []byte) []byte {
	total := nlmsgHdrLen + len(payload)
	buf := make([]byte, total)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(total))
	binary.LittleEndian.PutUint16(buf[4:6], msgType)
	binary.LittleEndian.PutUint16(buf[6:8], flags)
	binary.LittleEndian.PutUint32(buf[8:12], seq)
	binary.LittleEndian.PutUint32(buf[12:16], 0) // pid, kernel assigns
	copy(buf[16:], payload)
	return buf
}

// encodeRoute builds an rtmsg plus RTA_DST/RTA_GATEWAY/RTA_OIF/RTA_PRIORITY
// attributes for req, matching struct rtmsg from linux/rtnetlink.h.
func encodeRoute(req *Request, set bool) []byte {
	famLen := req.Family.Len()
	buf := make([]byte, rtmsgLen)
	if req.Family == addr.IPv6 {
		buf[0] = unix.AF_INET6
	} else {
		buf[0] = unix.AF_INET
	}
	buf[1] = uint8(req.Dst.PrefixLen()) // rtm_dst_len
	buf[2] = 0                          // rtm_src_len
	buf[3] = 0                          // rtm_tos
	buf[4] = req.Table
	buf[5] = req.Protocol
	buf[6] = req.Scope
	buf[7] = req.Type
	binary.LittleEndian.PutUint32(buf[8:12], 0) // rtm_flags

	buf = append(buf, rtattr(unix.RTA_DST, req.Dst.Bytes()[:famLen])...)
	if req.IfIndex != 0 {
		oif := make([]byte, 4)
		binary.LittleEndian.PutUint32(oif, uint32(req.IfIndex))
		buf = append(buf, rtattr(unix.RTA_OIF, oif)...)
	}
	if req.Gateway.Family() != addr.Unspec {
		buf = append(buf, rtattr(unix.RTA_GATEWAY, req.Gateway.Bytes()[:famLen])...)
	}
	if req.Metric != 0 {
		prio := make([]byte, 4)
		binary.LittleEndian.PutUint32(prio, uint32(req.Metric))
		buf = append(buf, rtattr(unix.RTA_PRIORITY, prio)...)
	}
	return buf
}

func rtattr(t uint16, value []byte) []byte {
	l := 4 + len(value)
	padded := (l + 3) &^ 3
	buf := make([]byte, padded)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(l))
	binary.LittleEndian.PutUint16(buf[2:4], t)
	copy(buf[4:], value)
	return buf
}

// decodeRoute parses an RTM_NEWROUTE dump reply body back into a Request,
// used only by Query (Set/Del never need to decode their own ack body).
func decodeRoute(body []byte) *Request {
	if len(body) < rtmsgLen {
		return nil
	}
	fam := body[0]
	dstLen := body[1]
	table := body[4]
	proto := body[5]
	scope := body[6]
	rtype := body[7]

	req := &Request{Table: table, Protocol: proto, Scope: scope, Type: rtype}
	if fam == unix.AF_INET6 {
		req.Family = addr.IPv6
	} else {
		req.Family = addr.IPv4
	}

	attrs := body[rtmsgLen:]
	for len(attrs) >= 4 {
		l := binary.LittleEndian.Uint16(attrs[0:2])
		t := binary.LittleEndian.Uint16(attrs[2:4])
		if l < 4 || int(l) > len(attrs) {
			break
		}
		val := attrs[4:l]
		switch t {
		case unix.RTA_DST:
			if a, err := addr.FromBytes(val, int(dstLen)); err == nil {
				req.Dst = a
			}
		case unix.RTA_GATEWAY:
			if a, err := addr.FromBytes(val, req.Family.MaxPrefixLen()); err == nil {
				req.Gateway = a
			}
		case unix.RTA_OIF:
			if len(val) >= 4 {
				req.IfIndex = int(binary.LittleEndian.Uint32(val))
			}
		case unix.RTA_PRIORITY:
			if len(val) >= 4 {
				req.Metric = int(binary.LittleEndian.Uint32(val))
			}
		}
		adv := int((l + 3) &^ 3)
		attrs = attrs[adv:]
	}
	return req
}
