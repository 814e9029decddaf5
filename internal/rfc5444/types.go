package rfc5444

import "github.com/benpicco/olsrv2d/internal/addr"

// TLV is one decoded type-length-value entry: either a message TLV or one
// attached to an address inside an address block.
type TLV struct {
	Type  uint8
	Ext   uint8
	Value []byte // nil for a TLV that carries no value (a bare flag)
}

// HasValue reports whether the TLV carries a value payload.
func (t TLV) HasValue() bool { return t.Value != nil }

// AddressBlock is one address block: a run of addresses sharing one
// optional per-address prefix-length vector, each with its own set of
// resolved TLVs.
type AddressBlock struct {
	Addresses []addr.Address
	// TLVs[i] holds every TLV attached to Addresses[i].
	TLVs [][]TLV
}

// Message is one fully decoded RFC 5444-style message: header fields plus
// a message-TLV block and zero or more address blocks.
type Message struct {
	Type uint8

	Originator *addr.Address
	HopLimit   *uint8
	HopCount   *uint8
	SeqNum     *uint16

	TLVs        []TLV
	AddrBlocks  []AddressBlock
}

// Packet is the top-level container: an optional sequence number plus the
// messages it carries, processed in wire order (the event-loop model).
type Packet struct {
	SeqNum   *uint16
	Messages []Message
}

// messageFlag bits, RFC 5444 ("per-message flags determine presence
// of originator, hop-limit, hop-count, sequence number, and the address
// length field").
const (
	msgFlagHasOrig     = 1 << 7
	msgFlagHasHopLimit = 1 << 6
	msgFlagHasHopCount = 1 << 5
	msgFlagHasSeqNum   = 1 << 4
)

const pktFlagHasSeqNum = 1 << 7

// tlvFlag bits.
const (
	tlvFlagHasValue   = 1 << 0
	tlvFlagMultiValue = 1 << 1
	tlvFlagIndexed    = 1 << 2
	tlvFlagExtLen     = 1 << 3
)
