package rfc5444

import (
	"bytes"
	"encoding/binary"

	"github.com/benpicco/olsrv2d/internal/addr"
)

// EncodePacket serializes a Packet to its wire form.
func EncodePacket(p Packet) []byte {
	var buf bytes.Buffer
	flags := uint8(0)
	if p.SeqNum != nil {
		flags |= pktFlagHasSeqNum
	}
	buf.WriteByte(flags)
	if p.SeqNum != nil {
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], *p.SeqNum)
		buf.Write(b[:])
	}
	for _, m := range p.Messages {
		encodeMessage(&buf, m)
	}
	return buf.Bytes()
}

// DecodePacket parses a packet's messages in wire order. A message that
// fails to decode is dropped (error handling WIRE_MALFORMED); decoding
// continues with the next message, and the failure is reported as one
// entry of the returned error slice (with the byte offset it occurred at)
// so callers can still account for it without the whole packet aborting.
func DecodePacket(buf []byte) (Packet, []error) {
	r := newReader(buf)
	var pkt Packet
	var errs []error

	flags, err := r.byte("packet header")
	if err != nil {
		return pkt, []error{err}
	}
	if flags&pktFlagHasSeqNum != 0 {
		seq, err := r.uint16("packet header")
		if err != nil {
			return pkt, []error{err}
		}
		pkt.SeqNum = &seq
	}

	for r.remaining() > 0 {
		start := r.pos
		msg, msgLen, err := decodeMessage(r)
		if err != nil {
			errs = append(errs, err)
			// Without a reliable length we cannot safely resynchronize;
			// stop processing the rest of the packet. Messages are
			// length-framed on the wire so this only happens on a
			// corrupt length field itself.
			if msgLen <= 0 {
				break
			}
			r.pos = start + msgLen
			continue
		}
		pkt.Messages = append(pkt.Messages, msg)
	}
	return pkt, errs
}

// EncodeMessage serializes a single message to its wire form, wrapped in
// a packet header with no PKT_SEQ_NUM. The daemon's own forwarding path
// builds its packet with EncodePacket instead.
func EncodeMessage(m Message) []byte {
	return EncodePacket(Packet{Messages: []Message{m}})
}

func encodeMessage(buf *bytes.Buffer, m Message) {
	var body bytes.Buffer

	addrLen := 4
	if m.Originator != nil {
		addrLen = m.Originator.Family().Len()
	} else if len(m.AddrBlocks) > 0 && len(m.AddrBlocks[0].Addresses) > 0 {
		addrLen = m.AddrBlocks[0].Addresses[0].Family().Len()
	}

	flags := encodeAddrLenField(addrLen)
	if m.Originator != nil {
		flags |= msgFlagHasOrig
	}
	if m.HopLimit != nil {
		flags |= msgFlagHasHopLimit
	}
	if m.HopCount != nil {
		flags |= msgFlagHasHopCount
	}
	if m.SeqNum != nil {
		flags |= msgFlagHasSeqNum
	}

	body.WriteByte(m.Type)
	body.WriteByte(flags)
	if m.Originator != nil {
		body.Write(m.Originator.Bytes())
	}
	if m.HopLimit != nil {
		body.WriteByte(*m.HopLimit)
	}
	if m.HopCount != nil {
		body.WriteByte(*m.HopCount)
	}
	if m.SeqNum != nil {
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], *m.SeqNum)
		body.Write(b[:])
	}

	var tlvBuf bytes.Buffer
	for _, t := range m.TLVs {
		writeTLV(&tlvBuf, t, false, 0, 0, false)
	}
	writeLenPrefixed(&body, tlvBuf.Bytes())

	body.WriteByte(uint8(len(m.AddrBlocks)))
	for _, ab := range m.AddrBlocks {
		family := addr.Unspec
		if len(ab.Addresses) > 0 {
			family = ab.Addresses[0].Family()
		}
		cb := compressAddresses(ab.Addresses)
		// compressAddresses sorts; rebuild TLVs in the same sorted order.
		sortedIdx := sortedIndices(ab.Addresses)
		sortedTLVs := make([][]TLV, len(ab.Addresses))
		for newPos, oldPos := range sortedIdx {
			sortedTLVs[newPos] = ab.TLVs[oldPos]
		}
		encodeAddressBlockHeader(&body, cb, family)
		encodeAddressTLVs(&body, len(ab.Addresses), sortedTLVs)
	}

	var msgBuf bytes.Buffer
	var lenField [2]byte
	binary.BigEndian.PutUint16(lenField[:], uint16(body.Len()+2))
	msgBuf.Write(lenField[:])
	msgBuf.Write(body.Bytes())
	buf.Write(msgBuf.Bytes())
}

func sortedIndices(addrs []addr.Address) []int {
	idx := make([]int, len(addrs))
	for i := range idx {
		idx[i] = i
	}
	// simple insertion sort: address blocks are small (interface/neighbor
	// counts), so O(n^2) is not a concern and keeps this deterministic.
	for i := 1; i < len(idx); i++ {
		j := i
		for j > 0 && addrs[idx[j]].Less(addrs[idx[j-1]]) {
			idx[j], idx[j-1] = idx[j-1], idx[j]
			j--
		}
	}
	return idx
}

func decodeMessage(r *reader) (Message, int, error) {
	startPos := r.pos
	msgLen, err := r.uint16("message length")
	if err != nil {
		return Message{}, -1, err
	}
	if int(msgLen) < 2 || startPos+int(msgLen) > len(r.buf) {
		return Message{}, -1, &WireError{Operation: "message", Offset: startPos, Message: "inconsistent message length"}
	}
	msgEnd := startPos + int(msgLen)

	var m Message
	typ, err := r.byte("message header")
	if err != nil {
		return m, int(msgLen), err
	}
	m.Type = typ

	flags, err := r.byte("message header")
	if err != nil {
		return m, int(msgLen), err
	}
	addrLen := familyAddrLen(flags & 0x0F)
	family, err := familyFromLen(addrLen)
	if err != nil {
		return m, int(msgLen), &WireError{Operation: "message header", Offset: r.pos, Message: err.Error(), Err: err}
	}

	if flags&msgFlagHasOrig != 0 {
		b, err := r.bytes("message originator", addrLen)
		if err != nil {
			return m, int(msgLen), err
		}
		a, err := addr.FromBytes(b, addrLen*8)
		if err != nil {
			return m, int(msgLen), &WireError{Operation: "message originator", Offset: r.pos, Message: err.Error(), Err: err}
		}
		m.Originator = &a
	}
	if flags&msgFlagHasHopLimit != 0 {
		v, err := r.byte("hop limit")
		if err != nil {
			return m, int(msgLen), err
		}
		m.HopLimit = &v
	}
	if flags&msgFlagHasHopCount != 0 {
		v, err := r.byte("hop count")
		if err != nil {
			return m, int(msgLen), err
		}
		m.HopCount = &v
	}
	if flags&msgFlagHasSeqNum != 0 {
		v, err := r.uint16("message sequence number")
		if err != nil {
			return m, int(msgLen), err
		}
		m.SeqNum = &v
	}

	tlvBlockLen, err := r.uint16("message TLV block")
	if err != nil {
		return m, int(msgLen), err
	}
	tlvEnd := r.pos + int(tlvBlockLen)
	if tlvEnd > msgEnd {
		return m, int(msgLen), &WireError{Operation: "message TLV block", Offset: r.pos, Message: "TLV block exceeds message length"}
	}
	for r.pos < tlvEnd {
		raw, err := readTLV(r)
		if err != nil {
			return m, int(msgLen), err
		}
		m.TLVs = append(m.TLVs, raw.t)
	}
	if r.pos != tlvEnd {
		return m, int(msgLen), &WireError{Operation: "message TLV block", Offset: r.pos, Message: "trailing bytes"}
	}

	numBlocks, err := r.byte("address block count")
	if err != nil {
		return m, int(msgLen), err
	}
	for i := 0; i < int(numBlocks); i++ {
		addrs, err := decodeAddressBlockHeader(r, family)
		if err != nil {
			return m, int(msgLen), err
		}
		out := make([][]TLV, len(addrs))
		if err := decodeAddressTLVs(r, len(addrs), out); err != nil {
			return m, int(msgLen), err
		}
		m.AddrBlocks = append(m.AddrBlocks, AddressBlock{Addresses: addrs, TLVs: out})
	}

	if r.pos != msgEnd {
		return m, int(msgLen), &WireError{Operation: "message", Offset: r.pos, Message: "trailing bytes after address blocks"}
	}
	return m, int(msgLen), nil
}

func familyFromLen(n int) (addr.Family, error) {
	switch n {
	case 4:
		return addr.IPv4, nil
	case 6:
		return addr.MAC48, nil
	case 8:
		return addr.EUI64, nil
	case 16:
		return addr.IPv6, nil
	default:
		return addr.Unspec, &addr.ErrUnsupportedFamily{Len: n}
	}
}
