package rfc5444

// Message types. NHDP and OLSRv2 share one packet stream; the message
// type tells a decoder's registered consumers which messages to look at.
const (
	MsgTypeHello uint8 = 0
	MsgTypeTC    uint8 = 1
)

// Address-TLV types, IANA-assigned extension values referenced by
// RFC 5444 ("Address-TLV extension values are the IANA-assigned values
// for LOCAL_IF, LINK_STATUS, OTHER_NEIGHB, MPR, LINK_METRIC,
// NBR_ADDR_TYPE, GATEWAY").
const (
	TLVLocalIF      uint8 = 1
	TLVLinkStatus   uint8 = 2
	TLVOtherNeighb  uint8 = 3
	TLVMPR          uint8 = 5
	TLVLinkMetric   uint8 = 6
	TLVNBRAddrType  uint8 = 7
	TLVGateway      uint8 = 8
)

// Message-TLV types.
const (
	TLVValidityTime  uint8 = 1 // vtime, carried on both HELLO and TC
	TLVIntervalTime  uint8 = 2 // itime, carried on both HELLO and TC
	TLVContSeqNum    uint8 = 3 // CONT_SEQ_NUM / ANSN, carried on TC
	TLVMPRWilling    uint8 = 4
)

// LOCAL_IF TLV values (RFC 6130 §12.6).
const (
	LocalIFThisIf  uint8 = 0
	LocalIFOtherIf uint8 = 1
)

// LINK_STATUS / OTHER_NEIGHB TLV values (RFC 6130 §12.7/§12.8).
const (
	LinkStatusLost      uint8 = 0
	LinkStatusSymmetric uint8 = 1
	LinkStatusHeard     uint8 = 2

	OtherNeighbSymmetric uint8 = LinkStatusSymmetric
	OtherNeighbLost      uint8 = LinkStatusLost
)

// MPR TLV values, combined into one of flooding-only/routing-only/both.
const (
	MPRFlooding uint8 = 1
	MPRRouting  uint8 = 2
	MPRBoth     uint8 = MPRFlooding | MPRRouting
)

// NBR_ADDR_TYPE TLV values (RFC 7181 §6.2).
const (
	NbrAddrTypeOriginator uint8 = 1
	NbrAddrTypeRoutable   uint8 = 2
	NbrAddrTypeBoth       uint8 = NbrAddrTypeOriginator | NbrAddrTypeRoutable
)

// LINK_METRIC direction bits, the high 4 bits of the 16-bit TLV value
// (RFC 5444).
const (
	MetricIncomingLink  uint16 = 0x8000
	MetricOutgoingLink  uint16 = 0x4000
	MetricIncomingNeigh uint16 = 0x2000
	MetricOutgoingNeigh uint16 = 0x1000

	metricCostMask uint16 = 0x0FFF
)

// MetricInfinite is the reserved encoded-cost value meaning "this edge
// does not exist for Dijkstra" (the invariants below: "Link-metric encoded value
// 0xFFF decodes to RFC5444_METRIC_INFINITE").
const MetricInfinite uint32 = 0xFFFFFFFF

const metricInfiniteEncoded uint16 = 0x0FFF
