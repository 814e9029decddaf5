package nhdp

import (
	"github.com/benpicco/olsrv2d/internal/addr"
	"github.com/benpicco/olsrv2d/internal/metric"
	"github.com/benpicco/olsrv2d/internal/rfc5444"
)

// Writer composes outgoing HELLO messages, the mirror of Reader
// (RFC 6130).
type Writer struct {
	db *Database
}

// NewWriter creates a Writer bound to db.
func NewWriter(db *Database) *Writer { return &Writer{db: db} }

// Provider returns the rfc5444 provider that emits one HELLO for ifc
// when the writer composes a HELLO message.
func (w *Writer) Provider(ifc *Interface) *rfc5444.Provider {
	return &rfc5444.Provider{
		Priority:    10,
		MessageType: rfc5444.MsgTypeHello,
		Emit: func(b *rfc5444.Builder) {
			w.emit(ifc, b)
		},
	}
}

func (w *Writer) emit(ifc *Interface, b *rfc5444.Builder) {
	hopLimit, hopCount := uint8(1), uint8(0)
	b.SetHopLimit(hopLimit)
	b.SetHopCount(hopCount)
	b.AddMessageTLV(rfc5444.TLV{Type: rfc5444.TLVValidityTime, Value: EncodeHoldTime(ifc.HHold)})
	b.AddMessageTLV(rfc5444.TLV{Type: rfc5444.TLVIntervalTime, Value: EncodeHoldTime(ifc.RefreshInterval)})
	b.AddMessageTLV(rfc5444.TLV{Type: rfc5444.TLVMPRWilling, Value: []byte{w.db.Willingness}})

	// 1. local interface addresses: THIS_IF on ifc itself, OTHER_IF on
	// every sibling NHDP interface (RFC 6130).
	for _, a := range ifc.Addresses() {
		if !familyAllowed(ifc, a) {
			continue
		}
		idx := b.AddAddress(a)
		b.AddAddressTLV(idx, rfc5444.TLV{Type: rfc5444.TLVLocalIF, Value: []byte{rfc5444.LocalIFThisIf}})
	}
	for _, other := range w.db.Interfaces {
		if other == ifc {
			continue
		}
		for _, a := range other.Addresses() {
			if !familyAllowed(ifc, a) {
				continue
			}
			idx := b.AddAddress(a)
			b.AddAddressTLV(idx, rfc5444.TLV{Type: rfc5444.TLVLocalIF, Value: []byte{rfc5444.LocalIFOtherIf}})
		}
	}

	// 2. every known remote neighbor address, tagged LINK_STATUS if it's
	// an actual link on ifc or OTHER_NEIGHB otherwise.
	for _, n := range w.db.Neighbors {
		for a, na := range n.Addresses {
			if !familyAllowed(ifc, a) {
				continue
			}
			if l, ok := ifc.LinkByAddress(a); ok {
				idx := b.AddAddress(a)
				if v, ok := linkStatusTLVValue(l.Status()); ok {
					b.AddAddressTLV(idx, rfc5444.TLV{Type: rfc5444.TLVLinkStatus, Value: []byte{v}})
				}
				emitMPR(b, idx, l)
				emitMetrics(b, idx, w.db, l)
				continue
			}
			idx := b.AddAddress(a)
			v := rfc5444.OtherNeighbSymmetric
			if na.Lost {
				v = rfc5444.OtherNeighbLost
			}
			b.AddAddressTLV(idx, rfc5444.TLV{Type: rfc5444.TLVOtherNeighb, Value: []byte{v}})
		}
	}
}

// familyAllowed applies ifc's IPv4/IPv6 flood-usage filter (RFC 6130:
// "Address-family filtering follows the interface mode").
func familyAllowed(ifc *Interface, a addr.Address) bool {
	switch a.Family() {
	case addr.IPv4:
		return ifc.FloodIPv4
	case addr.IPv6:
		return ifc.FloodIPv6
	default:
		return true
	}
}

func linkStatusTLVValue(status LinkStatus) (uint8, bool) {
	switch status {
	case StatusSymmetric:
		return rfc5444.LinkStatusSymmetric, true
	case StatusHeard:
		return rfc5444.LinkStatusHeard, true
	case StatusLost:
		return rfc5444.LinkStatusLost, true
	default: // PENDING: hysteresis hasn't committed to a direction yet
		return 0, false
	}
}

func emitMPR(b *rfc5444.Builder, idx int, l *Link) {
	for d := 0; d < MaxDomains; d++ {
		var v uint8
		if d == 0 && l.MPR.Flooding {
			v |= rfc5444.MPRFlooding
		}
		if l.MPR.Routing[d] {
			v |= rfc5444.MPRRouting
		}
		if v != 0 {
			b.AddAddressTLV(idx, rfc5444.TLV{Type: rfc5444.TLVMPR, Ext: uint8(d), Value: []byte{v}})
		}
	}
}

func emitMetrics(b *rfc5444.Builder, idx int, db *Database, l *Link) {
	for d := 0; d < MaxDomains; d++ {
		if db.Metrics[d] == nil {
			continue
		}
		m := l.Metric[d]
		if m.In == m.Out {
			v := encodeLinkMetricValue(rfc5444.MetricIncomingLink|rfc5444.MetricOutgoingLink, m.In)
			b.AddAddressTLV(idx, rfc5444.TLV{Type: rfc5444.TLVLinkMetric, Ext: uint8(d), Value: v})
			continue
		}
		b.AddAddressTLV(idx, rfc5444.TLV{
			Type: rfc5444.TLVLinkMetric, Ext: uint8(d),
			Value: encodeLinkMetricValue(rfc5444.MetricIncomingLink, m.In),
		})
		b.AddAddressTLV(idx, rfc5444.TLV{
			Type: rfc5444.TLVLinkMetric, Ext: uint8(d),
			Value: encodeLinkMetricValue(rfc5444.MetricOutgoingLink, m.Out),
		})
	}
}

func encodeLinkMetricValue(direction uint16, cost metric.Cost) []byte {
	v := direction | uint16(rfc5444.EncodeMetric(uint32(cost)))
	return []byte{byte(v >> 8), byte(v)}
}
