package nhdp

import (
	"fmt"

	"github.com/benpicco/olsrv2d/internal/addr"
	"github.com/benpicco/olsrv2d/internal/clock"
	"github.com/benpicco/olsrv2d/internal/metric"
	"github.com/benpicco/olsrv2d/internal/rfc5444"
)

// ResourceError reports that a HELLO could not be fully applied because
// doing so would exceed a configured resource bound: the message is
// dropped and no state already committed is touched.
type ResourceError struct {
	Operation string
	Message   string
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("nhdp: %s: %s", e.Operation, e.Message)
}

// Reader ingests HELLO messages into a Database. One Reader serves every
// NHDP interface; the caller sets CurrentIface/CurrentSource before each
// DecodeAndDispatch call on the shared decoder, which is safe because
// the daemon's event loop is single-threaded and processes one datagram
// to completion before the next (the event-loop model).
type Reader struct {
	db *Database

	CurrentIface  *Interface
	CurrentSource addr.Address

	// CurrentPacketSeqNum/HasPacketSeqNum carry the enclosing packet's
	// PKT_SEQ_NUM, set by the caller before each DecodeAndDispatch call,
	// so metric plug-ins can track per-link loss across HELLOs.
	CurrentPacketSeqNum uint16
	HasPacketSeqNum     bool

	maybeRemoveLink     map[addr.Address]bool
	maybeRemoveNeighbor map[addr.Address]bool
}

// NewReader creates a Reader bound to db.
func NewReader(db *Database) *Reader { return &Reader{db: db} }

// Consumer returns the registered rfc5444 consumer for HELLO messages.
func (r *Reader) Consumer() *rfc5444.Consumer {
	return &rfc5444.Consumer{
		Priority:     10,
		MessageTypes: []uint8{rfc5444.MsgTypeHello},
		MsgTLVTable: []rfc5444.TLVDescriptor{
			{Type: rfc5444.TLVValidityTime, MinLen: 2, MaxLen: 2},
			{Type: rfc5444.TLVIntervalTime, MinLen: 2, MaxLen: 2},
			{Type: rfc5444.TLVMPRWilling, MinLen: 1, MaxLen: 1},
		},
		OnMessageStart: r.onMessageStart,
	}
}

func (r *Reader) onMessageStart(msg *rfc5444.Message, tlvs []*rfc5444.TLV) rfc5444.DropLevel {
	ifc := r.CurrentIface
	if ifc == nil {
		return rfc5444.DropMessage
	}

	vtime := ifc.HHold
	if tlvs[0] != nil {
		vtime = DecodeHoldTime(tlvs[0].Value)
	}
	itime := ifc.RefreshInterval
	if tlvs[1] != nil {
		itime = DecodeHoldTime(tlvs[1].Value)
	}

	neighbor, link, peerLinkStatus, err := r.classify(ifc, msg)
	if err != nil {
		return rfc5444.DropMessage
	}
	link.RecvVTime = vtime
	link.RecvITime = itime
	if tlvs[2] != nil && len(tlvs[2].Value) > 0 {
		neighbor.Willingness = tlvs[2].Value[0]
	}

	r.markMaybeRemove(link)
	r.applyAddresses(ifc, link, neighbor, msg)
	r.sweepMaybeRemove(link, neighbor)

	r.updateHysteresis(link, vtime, itime)
	r.updateTimers(link, vtime, itime, peerLinkStatus)
	r.feedMetrics(link)

	r.db.RecomputeNeighborMetric(neighbor)
	r.db.UpdateLinkStatus(link)

	return rfc5444.Okay
}

// updateHysteresis consults the configured hysteresis plug-in once per
// received HELLO, per RFC 6130's optional hysteresis mechanism.
func (r *Reader) updateHysteresis(link *Link, vtime, itime clock.Duration) {
	if r.db.Hysteresis == nil {
		return
	}
	link.HystPending, link.HystLost = r.db.Hysteresis.Update(link.HystState, vtime, itime)
}

// feedMetrics rearms the hello-lost timer and tells every configured
// metric plug-in that a HELLO arrived, so ETX-style plug-ins can count
// losses from gaps in the packet sequence number.
func (r *Reader) feedMetrics(link *Link) {
	r.db.ArmHelloLostTimer(link, 2*link.RecvITime)
	for d := 0; d < MaxDomains; d++ {
		if r.db.Metrics[d] == nil {
			continue
		}
		r.db.Metrics[d].OnPacket(link.MetricState[d], r.CurrentPacketSeqNum, r.HasPacketSeqNum)
	}
}

// classify is RFC 6130's Pass 1: find the neighbor/link this message
// belongs to (merging conflicting ones), and whether the peer reports
// hearing one of our own addresses.
func (r *Reader) classify(ifc *Interface, msg *rfc5444.Message) (*Neighbor, *Link, int, error) {
	var neighbors []*Neighbor
	var links []*Link
	peerLinkStatus := -1

	seenN := map[*Neighbor]bool{}
	seenL := map[*Link]bool{}

	for bi := range msg.AddrBlocks {
		ab := &msg.AddrBlocks[bi]
		for ai, a := range ab.Addresses {
			for _, tlv := range ab.TLVs[ai] {
				switch tlv.Type {
				case rfc5444.TLVLocalIF:
					if n, ok := r.db.NeighborByAddress(a); ok && !seenN[n] {
						seenN[n] = true
						neighbors = append(neighbors, n)
					}
					if len(tlv.Value) > 0 && tlv.Value[0] == rfc5444.LocalIFThisIf {
						if l, ok := ifc.LinkByAddress(a); ok && !seenL[l] {
							seenL[l] = true
							links = append(links, l)
						}
					}
				case rfc5444.TLVLinkStatus:
					if ifc.IsLocalAddress(a) && len(tlv.Value) > 0 {
						peerLinkStatus = int(tlv.Value[0])
					}
				}
			}
		}
	}

	var neighbor *Neighbor
	switch {
	case len(neighbors) > 1:
		neighbor = r.db.mergeNeighbors(neighbors)
	case len(neighbors) == 1:
		neighbor = neighbors[0]
	default:
		if r.db.MaxNeighbors > 0 && len(r.db.Neighbors) >= r.db.MaxNeighbors {
			return nil, nil, -1, &ResourceError{Operation: "new neighbor", Message: "MaxNeighbors reached"}
		}
		neighbor = r.db.NewNeighbor()
	}

	var link *Link
	switch {
	case len(links) > 1:
		link = r.db.mergeLinks(links, neighbor)
	case len(links) == 1:
		link = links[0]
		link.Neighbor = neighbor
	default:
		link = r.db.CreateLink(ifc, neighbor)
	}

	return neighbor, link, peerLinkStatus, nil
}

// markMaybeRemove records every address currently reachable from link's
// neighbor-address set so Pass 2 can tell survivors from addresses the
// peer has silently dropped (RFC 6130).
func (r *Reader) markMaybeRemove(link *Link) {
	r.maybeRemoveLink = map[addr.Address]bool{}
	for _, a := range link.Addresses {
		r.maybeRemoveLink[a] = true
	}
	r.maybeRemoveNeighbor = map[addr.Address]bool{}
	for a := range link.Neighbor.Addresses {
		r.maybeRemoveNeighbor[a] = true
	}
}

func (r *Reader) sweepMaybeRemove(link *Link, neighbor *Neighbor) {
	for a := range r.maybeRemoveLink {
		r.db.RemoveLinkAddress(link, a)
	}
	for a := range r.maybeRemoveNeighbor {
		if na, ok := neighbor.Addresses[a]; ok && na.Lost {
			continue // already carried by the N_HOLD loss path
		}
		delete(neighbor.Addresses, a)
		if cur, ok := r.db.neighborAddrIndex[a]; ok && cur == neighbor {
			delete(r.db.neighborAddrIndex, a)
		}
	}
}

// applyAddresses is RFC 6130's Pass 2: apply LOCAL_IF, LINK_STATUS,
// OTHER_NEIGHB, MPR, and LINK_METRIC to the selected link/neighbor.
func (r *Reader) applyAddresses(ifc *Interface, link *Link, neighbor *Neighbor, msg *rfc5444.Message) {
	for bi := range msg.AddrBlocks {
		ab := &msg.AddrBlocks[bi]
		for ai, a := range ab.Addresses {
			r.applyOne(ifc, link, neighbor, a, ab.TLVs[ai])
		}
	}
}

func (r *Reader) applyOne(ifc *Interface, link *Link, neighbor *Neighbor, a addr.Address, tlvs []rfc5444.TLV) {
	isLinkAddr, isSymmetric, isLost := false, false, false
	hasRole := false

	for _, tlv := range tlvs {
		switch tlv.Type {
		case rfc5444.TLVLocalIF:
			if len(tlv.Value) > 0 && tlv.Value[0] == rfc5444.LocalIFThisIf {
				isLinkAddr = true
			}
			hasRole = true
		case rfc5444.TLVLinkStatus:
			if len(tlv.Value) > 0 {
				switch tlv.Value[0] {
				case rfc5444.LinkStatusSymmetric:
					isSymmetric = true
				case rfc5444.LinkStatusLost:
					isLost = true
				}
				hasRole = true
			}
		case rfc5444.TLVOtherNeighb:
			if len(tlv.Value) > 0 {
				switch tlv.Value[0] {
				case rfc5444.OtherNeighbSymmetric:
					isSymmetric = true
				case rfc5444.OtherNeighbLost:
					isLost = true
				}
				hasRole = true
			}
		case rfc5444.TLVMPR:
			// An MPR TLV advertises which of the sender's neighbors it
			// has selected as MPR. It only tells us something when the
			// address it's attached to is one of our own: that means
			// this neighbor has selected us.
			if len(tlv.Value) > 0 && r.isLocalAddress(a) {
				v := tlv.Value[0]
				neighbor.MPRFlooding = v&rfc5444.MPRFlooding != 0
				if int(tlv.Ext) < MaxDomains {
					neighbor.MPRRouting[tlv.Ext] = v&rfc5444.MPRRouting != 0
				}
			}
		case rfc5444.TLVLinkMetric:
			if len(tlv.Value) >= 2 {
				v := uint16(tlv.Value[0])<<8 | uint16(tlv.Value[1])
				direction := v &^ 0x0FFF
				cost := metric.Cost(rfc5444.DecodeMetric(v))
				domain := int(tlv.Ext)
				if domain < MaxDomains {
					applyMetricDirection(link, domain, direction, cost)
				}
			}
		}
	}

	if !hasRole {
		return
	}

	if isLinkAddr {
		r.db.AddLinkAddress(link, a)
		delete(r.maybeRemoveLink, a)
	}
	if isSymmetric || isLost {
		na := r.db.AddNeighborAddress(neighbor, a)
		na.Lost = isLost && !isSymmetric
		delete(r.maybeRemoveNeighbor, a)
	}
}

// isLocalAddress reports whether a belongs to any of our own NHDP
// interfaces, not just the one the current message arrived on (a peer may
// have learned one of our addresses through a different interface).
func (r *Reader) isLocalAddress(a addr.Address) bool {
	for _, ifc := range r.db.Interfaces {
		if ifc.IsLocalAddress(a) {
			return true
		}
	}
	return false
}

// applyMetricDirection installs a received LINK_METRIC reading, reversing
// direction per RFC 6130 ("the sender's incoming is our outgoing and
// vice versa").
func applyMetricDirection(link *Link, domain int, direction uint16, cost metric.Cost) {
	if direction&rfc5444.MetricIncomingLink != 0 || direction&rfc5444.MetricIncomingNeigh != 0 {
		link.Metric[domain].Out = cost
	}
	if direction&rfc5444.MetricOutgoingLink != 0 || direction&rfc5444.MetricOutgoingNeigh != 0 {
		link.Metric[domain].In = cost
	}
}

// updateTimers applies RFC 6130 §12.5.4 at message end.
func (r *Reader) updateTimers(link *Link, vtime, itime clock.Duration, peerLinkStatus int) {
	db := r.db
	linkHeard := peerLinkStatus == int(rfc5444.LinkStatusHeard) || peerLinkStatus == int(rfc5444.LinkStatusSymmetric)
	linkLost := peerLinkStatus == int(rfc5444.LinkStatusLost)

	wasSymActive := link.SymTimer != nil && link.SymTimer.Active()

	switch {
	case linkHeard:
		db.ArmSymTimer(link, vtime)
	case linkLost && wasSymActive:
		link.SymTimer.Stop()
		db.UpdateLinkStatus(link)
		if link.Status() == StatusHeard {
			db.ArmVTimer(link, link.Iface.LHold)
		}
	}

	remainingSym := clock.Duration(0)
	if link.SymTimer != nil && link.SymTimer.Active() {
		remainingSym = link.SymTimer.Deadline().Sub(db.Clk.Now())
	}
	heardTime := vtime
	if remainingSym > heardTime {
		heardTime = remainingSym
	}
	db.ArmHeardTimer(link, heardTime)

	extra := link.Iface.LHold
	if link.Status() == StatusPending {
		extra = 0
	}
	newVTime := heardTime + extra
	if link.VTimer == nil || !link.VTimer.Active() || link.VTimer.Deadline().Sub(db.Clk.Now()) < newVTime {
		db.ArmVTimer(link, newVTime)
	}

	db.UpdateLinkStatus(link)
}
