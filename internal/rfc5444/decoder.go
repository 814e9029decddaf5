package rfc5444

import (
	"sort"

	"github.com/benpicco/olsrv2d/internal/addr"
)

// DropLevel is what a Consumer callback returns to influence how much of
// the current message (or packet) is kept, per RFC 5444.
type DropLevel int

const (
	Okay DropLevel = iota
	DropAddress
	DropMessage
	DropPacket
)

// TLVDescriptor is one entry in a consumer's TLV table: the codec uses
// this to find matching TLVs and hand the consumer resolved pointers
// instead of making every consumer re-scan the TLV list (RFC 5444).
type TLVDescriptor struct {
	Type      uint8
	Ext       uint8
	MinLen    int
	MaxLen    int // 0 means "no upper bound beyond MinLen"
	Mandatory bool
}

func (d TLVDescriptor) matches(t TLV) bool {
	if t.Type != d.Type || t.Ext != d.Ext {
		return false
	}
	if len(t.Value) < d.MinLen {
		return false
	}
	if d.MaxLen > 0 && len(t.Value) > d.MaxLen {
		return false
	}
	return true
}

func resolve(table []TLVDescriptor, tlvs []TLV) ([]*TLV, DropLevel) {
	out := make([]*TLV, len(table))
	for i, d := range table {
		for j := range tlvs {
			if d.matches(tlvs[j]) {
				out[i] = &tlvs[j]
				break
			}
		}
		if out[i] == nil && d.Mandatory {
			return out, DropMessage
		}
	}
	return out, Okay
}

// Consumer is one registered recipient of decoded messages/addresses. The
// zero value's callback fields may be left nil if the consumer does not
// care about that stage.
type Consumer struct {
	// Priority orders consumers: lower runs first, ties broken by
	// registration order (RFC 5444: "message-TLV consumers run in
	// priority order").
	Priority int

	// MessageTypes restricts which message types this consumer sees; nil
	// means all types.
	MessageTypes []uint8

	MsgTLVTable  []TLVDescriptor
	AddrTLVTable []TLVDescriptor

	// OnMessageStart runs once per message, after message TLVs are
	// resolved against MsgTLVTable.
	OnMessageStart func(msg *Message, tlvs []*TLV) DropLevel

	// OnAddress runs once per address in every address block, after
	// address TLVs are resolved against AddrTLVTable.
	OnAddress func(blockIdx, addrIdx int, a addr.Address, tlvs []*TLV) DropLevel

	// OnMessageEnd runs once per message, in reverse priority order
	// (RFC 5444), after every address has been delivered. It runs only
	// for consumers that ran. dropped is true if any consumer vetoed the
	// message, including one that ran after this one, so this consumer
	// can roll back partial state.
	OnMessageEnd func(msg *Message, dropped bool)
}

func (c *Consumer) wantsType(t uint8) bool {
	if len(c.MessageTypes) == 0 {
		return true
	}
	for _, want := range c.MessageTypes {
		if want == t {
			return true
		}
	}
	return false
}

// Decoder dispatches decoded packets to registered consumers in the order
// RFC 5444 describes.
type Decoder struct {
	consumers []*Consumer
}

func NewDecoder() *Decoder { return &Decoder{} }

// Register adds a consumer. Consumers are re-sorted by Priority (stable,
// so equal-priority consumers keep registration order) on every Register
// call.
func (d *Decoder) Register(c *Consumer) {
	d.consumers = append(d.consumers, c)
	sort.SliceStable(d.consumers, func(i, j int) bool {
		return d.consumers[i].Priority < d.consumers[j].Priority
	})
}

// DecodeAndDispatch decodes buf and runs every registered consumer over
// it, message by message, in wire order. It returns the packet without
// the messages a consumer dropped, and the decode-level errors from
// DecodePacket (malformed messages already dropped at that layer);
// consumer drops are not reported as errors.
func (d *Decoder) DecodeAndDispatch(buf []byte) (Packet, []error) {
	pkt, errs := DecodePacket(buf)
	var kept []Message
	for mi := range pkt.Messages {
		msg := &pkt.Messages[mi]
		active := d.forType(msg.Type)
		if len(active) == 0 {
			kept = append(kept, *msg)
			continue
		}
		dropped, packetDrop := d.dispatchMessage(msg, active)
		if !dropped {
			kept = append(kept, *msg)
		}
		if packetDrop {
			break
		}
	}
	pkt.Messages = kept
	return pkt, errs
}

func (d *Decoder) forType(t uint8) []*Consumer {
	var out []*Consumer
	for _, c := range d.consumers {
		if c.wantsType(t) {
			out = append(out, c)
		}
	}
	return out
}

// dispatchMessage runs one message through the consumers interested in
// it, in priority order for the TLV phases and reverse order for
// end-of-message, implementing the ordering and rollback-notification
// contract.
func (d *Decoder) dispatchMessage(msg *Message, active []*Consumer) (dropped bool, packetDrop bool) {
	ran := 0
	verdict := Okay

msgLoop:
	for i, c := range active {
		ran = i + 1
		if c.OnMessageStart != nil {
			resolvedTLVs, dl := resolve(c.MsgTLVTable, msg.TLVs)
			if dl == Okay && c.OnMessageStart != nil {
				dl = c.OnMessageStart(msg, resolvedTLVs)
			}
			if dl != Okay {
				verdict = dl
				break msgLoop
			}
		}
		if c.OnAddress != nil {
			for bi := range msg.AddrBlocks {
				ab := &msg.AddrBlocks[bi]
				keep := ab.Addresses[:0:0]
				keepTLVs := ab.TLVs[:0:0]
				for ai, a := range ab.Addresses {
					resolvedTLVs, dl := resolve(c.AddrTLVTable, ab.TLVs[ai])
					if dl == Okay {
						dl = c.OnAddress(bi, ai, a, resolvedTLVs)
					}
					switch dl {
					case Okay:
						keep = append(keep, a)
						keepTLVs = append(keepTLVs, ab.TLVs[ai])
					case DropAddress:
						continue
					case DropMessage, DropPacket:
						verdict = dl
						break msgLoop
					}
				}
				ab.Addresses = keep
				ab.TLVs = keepTLVs
			}
		}
	}

	isDropped := verdict == DropMessage || verdict == DropPacket
	for i := ran - 1; i >= 0; i-- {
		if active[i].OnMessageEnd != nil {
			active[i].OnMessageEnd(msg, isDropped)
		}
	}
	return isDropped, verdict == DropPacket
}
