// Package metric defines the link-metric plug-in contract the NHDP and
// OLSRv2 layers consume. The core never computes a cost itself: it
// samples a registered Plugin and carries whatever 32-bit value comes
// back, quantizing it to the 12-bit RFC 5444 form only on the wire.
package metric

// Cost is a 32-bit link cost in a plug-in's own units. Lower is better.
type Cost uint32

// Infinite marks an edge that does not exist for Dijkstra purposes.
const Infinite Cost = 0xFFFFFFFF

// LinkState is per-link storage a Plugin allocates with NewLinkState and
// receives back on every subsequent call for that link; plug-ins type-
// assert it into their own concrete type.
type LinkState interface{}

// Plugin is one registered metric algorithm for one domain (the
// "link-metric plug-in API"). Implementations are not part of the core;
// ETX is the built-in reference implementation.
type Plugin interface {
	Name() string

	MinCost() Cost
	MaxCost() Cost
	StartCost() Cost

	NewLinkState() LinkState

	// Sample runs periodically on every symmetric link to refresh its
	// outbound cost.
	Sample(s LinkState) Cost

	// OnPacket runs once per received HELLO on the link so sequence-
	// counting plug-ins (ETX) can track loss. hasSeqno is false when the
	// peer's interface doesn't carry PKT_SEQ_NUM.
	OnPacket(s LinkState, seqno uint16, hasSeqno bool)

	// OnHelloLost runs when the hello-lost timer fires (no HELLO for
	// longer than the configured window) and returns the elevated cost.
	OnHelloLost(s LinkState) Cost
}

// Encode maps a 32-bit Cost onto the 12-bit RFC 5444 encoded-cost space
// via the rfc5444 package's pseudo-float codec; kept here as a named
// pair so plug-ins and callers share one canonical quantization step.
type Codec struct {
	Encode func(Cost) uint16
	Decode func(uint16) Cost
}
