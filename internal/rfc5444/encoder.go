package rfc5444

import (
	"sort"

	"github.com/benpicco/olsrv2d/internal/addr"
)

// Builder accumulates the content of one message as providers contribute
// to it: message-level TLVs plus one address block (NHDP HELLOs and
// OLSRv2 TCs each emit a single address block in this implementation,
// which still exercises the full head/tail/mid compression path of
// RFC 5444 without the added complexity of multi-block messages that
// neither protocol needs).
type Builder struct {
	msg       Message
	addrIndex map[addr.Address]int
}

func newBuilder(msgType uint8) *Builder {
	return &Builder{
		msg:       Message{Type: msgType, AddrBlocks: []AddressBlock{{}}},
		addrIndex: map[addr.Address]int{},
	}
}

// AddMessageTLV attaches a message-level TLV (e.g. VALIDITY_TIME).
func (b *Builder) AddMessageTLV(t TLV) { b.msg.TLVs = append(b.msg.TLVs, t) }

// SetOriginator/SetHopLimit/SetHopCount/SetSeqNum set the optional message
// header fields.
func (b *Builder) SetOriginator(a addr.Address) { b.msg.Originator = &a }
func (b *Builder) SetHopLimit(v uint8)          { b.msg.HopLimit = &v }
func (b *Builder) SetHopCount(v uint8)          { b.msg.HopCount = &v }
func (b *Builder) SetSeqNum(v uint16)           { b.msg.SeqNum = &v }

// AddAddress ensures a is present in the message's address block and
// returns its index, so repeated calls for the same address (from
// different providers) accumulate TLVs on one entry instead of
// duplicating the address.
func (b *Builder) AddAddress(a addr.Address) int {
	if idx, ok := b.addrIndex[a]; ok {
		return idx
	}
	ab := &b.msg.AddrBlocks[0]
	idx := len(ab.Addresses)
	ab.Addresses = append(ab.Addresses, a)
	ab.TLVs = append(ab.TLVs, nil)
	b.addrIndex[a] = idx
	return idx
}

// AddAddressTLV attaches a TLV to the address at idx (as returned by
// AddAddress).
func (b *Builder) AddAddressTLV(idx int, t TLV) {
	ab := &b.msg.AddrBlocks[0]
	ab.TLVs[idx] = append(ab.TLVs[idx], t)
}

// Provider is one registered contributor to outgoing messages of one
// type, mirroring RFC 5444's writer model ("Callers register message
// providers with address-TLV-types they intend to emit").
type Provider struct {
	Priority    int
	MessageType uint8
	Emit        func(b *Builder)
}

// Writer composes outgoing messages from registered providers.
type Writer struct {
	providers []*Provider
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Register(p *Provider) {
	w.providers = append(w.providers, p)
	sort.SliceStable(w.providers, func(i, j int) bool {
		return w.providers[i].Priority < w.providers[j].Priority
	})
}

// Compose builds one message of msgType by running every registered
// provider for that type, in priority order.
func (w *Writer) Compose(msgType uint8) Message {
	b := newBuilder(msgType)
	for _, p := range w.providers {
		if p.MessageType == msgType {
			p.Emit(b)
		}
	}
	return b.msg
}
