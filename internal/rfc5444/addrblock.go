package rfc5444

import (
	"bytes"
	"sort"

	"github.com/benpicco/olsrv2d/internal/addr"
)

// compressAddresses computes the shared head/tail and per-address mid
// bytes for one address block, per RFC 5444: "it sorts by address,
// computes the longest shared prefix of consecutive addresses to form
// head/tail, and decides for each address whether it carries its own
// prefix length."
//
// addrLen is the fixed byte length for this block's family (all addresses
// in one block share a family, since the message header carries one
// address-length field for the whole message).
type compressedBlock struct {
	addrLen      int
	head, tail   []byte
	mid          [][]byte // one slice of addrLen-headLen-tailLen bytes per address
	prefixLens   []uint8  // per-address prefix length, only meaningful if hasPrefixLens
	hasPrefixLens bool
}

func compressAddresses(addrs []addr.Address) compressedBlock {
	sorted := append([]addr.Address(nil), addrs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })

	addrLen := 0
	if len(sorted) > 0 {
		addrLen = sorted[0].Family().Len()
	}

	headLen := addrLen
	if len(sorted) > 1 {
		headLen = commonPrefixLen(sorted[0].Bytes(), sorted[len(sorted)-1].Bytes())
	}
	tailLen := 0
	if len(sorted) > 1 {
		tailLen = commonSuffixLen(sorted, headLen)
	}
	if headLen+tailLen > addrLen {
		tailLen = addrLen - headLen
	}

	cb := compressedBlock{addrLen: addrLen}
	if len(sorted) > 0 {
		b0 := sorted[0].Bytes()
		cb.head = append([]byte(nil), b0[:headLen]...)
		cb.tail = append([]byte(nil), b0[addrLen-tailLen:]...)
	}
	cb.mid = make([][]byte, len(sorted))
	cb.prefixLens = make([]uint8, len(sorted))
	for i, a := range sorted {
		b := a.Bytes()
		cb.mid[i] = append([]byte(nil), b[headLen:addrLen-tailLen]...)
		cb.prefixLens[i] = uint8(a.PrefixLen())
		if a.PrefixLen() != a.Family().MaxPrefixLen() {
			cb.hasPrefixLens = true
		}
	}
	return cb
}

func commonPrefixLen(a, b []byte) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

// commonSuffixLen computes the longest shared trailing-byte run across all
// addresses, bounded so it never overlaps the already-claimed head.
func commonSuffixLen(sorted []addr.Address, headLen int) int {
	if len(sorted) < 2 {
		return 0
	}
	first := sorted[0].Bytes()
	max := len(first) - headLen
	n := max
	for _, a := range sorted[1:] {
		b := a.Bytes()
		for n > 0 && !bytes.Equal(first[len(first)-n:], b[len(b)-n:]) {
			n--
		}
		if n == 0 {
			break
		}
	}
	return n
}

func encodeAddressBlockHeader(buf *bytes.Buffer, cb compressedBlock, family addr.Family) {
	buf.WriteByte(encodeAddrLenField(cb.addrLen))
	buf.WriteByte(uint8(len(cb.mid)))
	buf.WriteByte(uint8(len(cb.head)))
	buf.Write(cb.head)
	buf.WriteByte(uint8(len(cb.tail)))
	buf.Write(cb.tail)
	for _, m := range cb.mid {
		buf.Write(m)
	}
	if cb.hasPrefixLens {
		buf.WriteByte(1)
		buf.Write(cb.prefixLens)
	} else {
		buf.WriteByte(0)
	}
}

func decodeAddressBlockHeader(r *reader, family addr.Family) ([]addr.Address, error) {
	addrLenEnc, err := r.byte("address block")
	if err != nil {
		return nil, err
	}
	addrLen := familyAddrLen(addrLenEnc)

	count, err := r.byte("address block count")
	if err != nil {
		return nil, err
	}
	headLen, err := r.byte("address block head length")
	if err != nil {
		return nil, err
	}
	head, err := r.bytes("address block head", int(headLen))
	if err != nil {
		return nil, err
	}
	tailLen, err := r.byte("address block tail length")
	if err != nil {
		return nil, err
	}
	tail, err := r.bytes("address block tail", int(tailLen))
	if err != nil {
		return nil, err
	}
	midLen := addrLen - int(headLen) - int(tailLen)
	if midLen < 0 {
		return nil, &WireError{Operation: "address block", Offset: r.pos, Message: "head+tail longer than address"}
	}

	addrs := make([]addr.Address, count)
	for i := 0; i < int(count); i++ {
		mid, err := r.bytes("address block mid", midLen)
		if err != nil {
			return nil, err
		}
		full := make([]byte, 0, addrLen)
		full = append(full, head...)
		full = append(full, mid...)
		full = append(full, tail...)
		a, err := addr.FromBytes(full, addrLen*8)
		if err != nil {
			return nil, &WireError{Operation: "address block", Offset: r.pos, Message: err.Error(), Err: err}
		}
		addrs[i] = a
	}

	hasPrefix, err := r.byte("address block prefix flag")
	if err != nil {
		return nil, err
	}
	if hasPrefix != 0 {
		plens, err := r.bytes("address block prefix lengths", int(count))
		if err != nil {
			return nil, err
		}
		for i := range addrs {
			a, err := addr.FromBytes(addrs[i].Bytes(), int(plens[i]))
			if err != nil {
				return nil, &WireError{Operation: "address block", Offset: r.pos, Message: err.Error(), Err: err}
			}
			addrs[i] = a
		}
	}
	return addrs, nil
}
