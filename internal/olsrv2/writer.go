package olsrv2

import (
	"github.com/benpicco/olsrv2d/internal/addr"
	"github.com/benpicco/olsrv2d/internal/clock"
	"github.com/benpicco/olsrv2d/internal/metric"
	"github.com/benpicco/olsrv2d/internal/nhdp"
	"github.com/benpicco/olsrv2d/internal/rfc5444"
)

// Writer composes this node's own outgoing TC messages, the mirror of
// Reader (RFC 7181 §17/§18.5).
type Writer struct {
	db   *Database
	nhdp *nhdp.Database

	// AdvertiseAll, when true, includes every symmetric neighbor with a
	// known originator in each TC regardless of routing-MPR selection
	// (RFC 7181's non-minimal advertisement option, useful for a node
	// that wants full topology visibility, e.g. a gateway). When false
	// (the default), only neighbors that selected this node as their
	// routing MPR for some domain are advertised, the minimal form.
	AdvertiseAll bool

	// HopLimit bounds how far an emitted TC is allowed to travel.
	HopLimit uint8

	// VTime/ITime are this node's own TC validity/interval.
	VTime, ITime clock.Duration

	seqNum uint16
}

// NewWriter creates a Writer bound to db and nh.
func NewWriter(db *Database, nh *nhdp.Database) *Writer {
	return &Writer{db: db, nhdp: nh, HopLimit: 255}
}

// Provider returns the rfc5444 provider that emits this node's TC.
func (w *Writer) Provider() *rfc5444.Provider {
	return &rfc5444.Provider{
		Priority:    10,
		MessageType: rfc5444.MsgTypeTC,
		Emit:        w.emit,
	}
}

func (w *Writer) emit(b *rfc5444.Builder) {
	if !w.db.HasOriginator {
		return
	}
	b.SetOriginator(w.db.Originator)
	b.SetHopLimit(w.HopLimit)
	b.SetHopCount(0)
	w.seqNum++
	b.SetSeqNum(w.seqNum)

	b.AddMessageTLV(rfc5444.TLV{Type: rfc5444.TLVValidityTime, Value: nhdp.EncodeHoldTime(w.VTime)})
	b.AddMessageTLV(rfc5444.TLV{Type: rfc5444.TLVIntervalTime, Value: nhdp.EncodeHoldTime(w.ITime)})

	ansn := w.db.AdvertiseNeighborSet(w.advertisedAddresses())
	b.AddMessageTLV(rfc5444.TLV{Type: rfc5444.TLVContSeqNum, Value: []byte{byte(ansn >> 8), byte(ansn)}})

	w.emitNeighbors(b)
	w.emitLANs(b)
}

// advertisedAddresses computes the set this emission will advertise, so
// the database's own ANSN can be evaluated against it before the
// message body is built.
func (w *Writer) advertisedAddresses() []addr.Address {
	var out []addr.Address
	for _, n := range w.nhdp.Neighbors {
		if n.Symmetric == 0 || !n.HasOriginator || !w.include(n) {
			continue
		}
		out = append(out, n.Originator)
	}
	return out
}

func (w *Writer) include(n *nhdp.Neighbor) bool {
	if w.AdvertiseAll {
		return true
	}
	for d := 0; d < nhdp.MaxDomains; d++ {
		if n.MPRRouting[d] {
			return true
		}
	}
	return false
}

func (w *Writer) emitNeighbors(b *rfc5444.Builder) {
	for _, n := range w.nhdp.Neighbors {
		if n.Symmetric == 0 || !n.HasOriginator || !w.include(n) {
			continue
		}
		idx := b.AddAddress(n.Originator)
		b.AddAddressTLV(idx, rfc5444.TLV{Type: rfc5444.TLVNBRAddrType, Value: []byte{rfc5444.NbrAddrTypeOriginator}})
		for d := 0; d < nhdp.MaxDomains; d++ {
			if n.Metric[d].Out == 0 && n.Metric[d].In == 0 {
				continue
			}
			b.AddAddressTLV(idx, rfc5444.TLV{
				Type: rfc5444.TLVLinkMetric, Ext: uint8(d),
				Value: encodeTCMetric(n.Metric[d].Out),
			})
		}
	}
}

func (w *Writer) emitLANs(b *rfc5444.Builder) {
	for _, lan := range w.db.LANs {
		idx := b.AddAddress(lan.Prefix)
		b.AddAddressTLV(idx, rfc5444.TLV{Type: rfc5444.TLVGateway, Ext: lan.Domain, Value: []byte{lan.Dist}})
		b.AddAddressTLV(idx, rfc5444.TLV{
			Type: rfc5444.TLVLinkMetric, Ext: lan.Domain,
			Value: encodeTCMetric(lan.Metric),
		})
	}
}

// encodeTCMetric encodes a TC neighbor/endpoint cost tagged as the
// outgoing-neighbor direction: "the cost of routing away from the
// advertising router toward this neighbor/network", the only direction
// TC's single-ended LINK_METRIC use needs, unlike NHDP's link-local
// incoming/outgoing pair.
func encodeTCMetric(cost metric.Cost) []byte {
	v := rfc5444.MetricOutgoingNeigh | rfc5444.EncodeMetric(uint32(cost))
	return []byte{byte(v >> 8), byte(v)}
}
