package olsrv2

import (
	"github.com/benpicco/olsrv2d/internal/addr"
	"github.com/benpicco/olsrv2d/internal/clock"
	"github.com/benpicco/olsrv2d/internal/metric"
	"github.com/benpicco/olsrv2d/internal/nhdp"
	"github.com/benpicco/olsrv2d/internal/rfc5444"
)

// Reader ingests TC messages into a Database and decides, per RFC 7181
// controlled flooding, whether each one should also be re-emitted on
// this node's other interfaces. One Reader serves every NHDP interface;
// the caller sets CurrentSource before each DecodeAndDispatch call, the
// same single-threaded-event-loop contract nhdp.Reader relies on.
type Reader struct {
	db   *Database
	nhdp *nhdp.Database

	CurrentSource addr.Address

	// OnForward is called with a message ready for retransmission
	// (hop limit decremented, hop count incremented) once this TC
	// passes the forwarding selector. Nil disables forwarding.
	OnForward func(msg *rfc5444.Message)

	// ProcessingHoldTime/ForwardHoldTime floor the processed/forwarded
	// duplicate-set entries below the originator's advertised VALIDITY_TIME,
	// so a misconfigured peer advertising a too-short vtime can't make this
	// node reprocess or re-forward the same TC repeatedly. Zero (the
	// default) applies no floor beyond the wire value.
	ProcessingHoldTime clock.Duration
	ForwardHoldTime    clock.Duration

	processed *rfc5444.DuplicateSet
	forwarded *rfc5444.DuplicateSet
	ansn      *rfc5444.DuplicateSet
}

// NewReader creates a Reader bound to db for TC topology updates and nh
// for the flooding-MPR check the forwarding selector needs.
func NewReader(db *Database, nh *nhdp.Database) *Reader {
	now := func() int64 { return int64(db.Clk.Now()) }
	return &Reader{
		db:        db,
		nhdp:      nh,
		processed: rfc5444.NewDuplicateSet(now),
		forwarded: rfc5444.NewDuplicateSet(now),
		ansn:      rfc5444.NewDuplicateSet(now),
	}
}

// Consumer returns the registered rfc5444 consumer for TC messages.
func (r *Reader) Consumer() *rfc5444.Consumer {
	return &rfc5444.Consumer{
		Priority:     10,
		MessageTypes: []uint8{rfc5444.MsgTypeTC},
		MsgTLVTable: []rfc5444.TLVDescriptor{
			{Type: rfc5444.TLVValidityTime, MinLen: 2, MaxLen: 2, Mandatory: true},
			{Type: rfc5444.TLVContSeqNum, MinLen: 2, MaxLen: 2, Mandatory: true},
		},
		OnMessageStart: r.onMessageStart,
	}
}

func (r *Reader) onMessageStart(msg *rfc5444.Message, tlvs []*rfc5444.TLV) rfc5444.DropLevel {
	if msg.Originator == nil || msg.SeqNum == nil || msg.HopLimit == nil {
		return rfc5444.DropMessage
	}
	orig := *msg.Originator
	if r.db.HasOriginator && orig == r.db.Originator {
		return rfc5444.DropMessage // our own TC, looped back
	}
	if r.db.IsFormerOriginator(orig) {
		return rfc5444.DropMessage
	}

	vtime := decodeHoldTimeTLV(tlvs[0])
	ansn := uint16(tlvs[1].Value[0])<<8 | uint16(tlvs[1].Value[1])

	procVTime := vtime
	if procVTime < r.ProcessingHoldTime {
		procVTime = r.ProcessingHoldTime
	}
	validUntil := int64(r.db.Clk.Now()) + procVTime.Milliseconds()
	procResult := r.processed.Insert(msg.Type, orig, *msg.SeqNum, validUntil)
	shallProcess := procResult == rfc5444.New || procResult == rfc5444.Newest

	if shallProcess {
		ansnResult := r.ansn.Insert(msg.Type, orig, ansn, validUntil)
		if ansnResult == rfc5444.New || ansnResult == rfc5444.Newest {
			neighbors, endpoints := collectAddresses(msg)
			r.db.ApplyTC(orig, ansn, vtime, neighbors, endpoints)
		}
	}

	if r.shallForward(msg) {
		fwdVTime := vtime
		if fwdVTime < r.ForwardHoldTime {
			fwdVTime = r.ForwardHoldTime
		}
		fwdValidUntil := int64(r.db.Clk.Now()) + fwdVTime.Milliseconds()
		fwdResult := r.forwarded.Insert(msg.Type, orig, *msg.SeqNum, fwdValidUntil)
		if fwdResult == rfc5444.New || fwdResult == rfc5444.Newest {
			if r.OnForward != nil {
				r.OnForward(forwardCopy(msg))
			}
		}
	}

	return rfc5444.Okay
}

// shallForward implements the data model's controlled-flooding gate: a
// positive hop limit and the previous hop having selected us as its
// flooding MPR. The forwarded-set duplicate check itself runs in the
// caller so a message that fails it is not re-inserted.
func (r *Reader) shallForward(msg *rfc5444.Message) bool {
	if *msg.HopLimit == 0 {
		return false
	}
	n, ok := r.nhdp.NeighborByAddress(r.CurrentSource)
	if !ok || n.Symmetric == 0 {
		return false
	}
	return n.MPRFlooding
}

// forwardCopy produces the relayed form of msg: hop limit decremented,
// hop count incremented, per RFC 5444 generic forwarding.
func forwardCopy(msg *rfc5444.Message) *rfc5444.Message {
	fwd := *msg
	hl := *msg.HopLimit - 1
	fwd.HopLimit = &hl
	hc := uint8(0)
	if msg.HopCount != nil {
		hc = *msg.HopCount
	}
	hc++
	fwd.HopCount = &hc
	return &fwd
}

func decodeHoldTimeTLV(t *rfc5444.TLV) clock.Duration {
	if t == nil {
		return 0
	}
	return nhdp.DecodeHoldTime(t.Value)
}

// collectAddresses is the TC analogue of nhdp's Pass 2: NBR_ADDR_TYPE,
// GATEWAY, and LINK_METRIC are read via raw per-address TLV iteration
// rather than AddrTLVTable, because LINK_METRIC's Ext (domain) varies
// per TLV instance and the table-based resolver only matches one fixed
// Ext value per descriptor entry.
func collectAddresses(msg *rfc5444.Message) ([]NeighborAdvert, []EndpointAdvert) {
	neighborIdx := map[addr.Address]int{}
	var neighbors []NeighborAdvert
	var endpoints []EndpointAdvert

	for bi := range msg.AddrBlocks {
		ab := &msg.AddrBlocks[bi]
		for ai, a := range ab.Addresses {
			var isNeighbor bool
			var endpoint *EndpointAdvert

			for _, tlv := range ab.TLVs[ai] {
				switch tlv.Type {
				case rfc5444.TLVNBRAddrType:
					if len(tlv.Value) > 0 && tlv.Value[0]&rfc5444.NbrAddrTypeOriginator != 0 {
						isNeighbor = true
					}
				case rfc5444.TLVGateway:
					dist := uint8(0)
					if len(tlv.Value) > 0 {
						dist = tlv.Value[0]
					}
					endpoint = &EndpointAdvert{Prefix: a, Domain: tlv.Ext, Dist: dist}
				}
			}

			if isNeighbor {
				if _, ok := neighborIdx[a]; !ok {
					neighborIdx[a] = len(neighbors)
					neighbors = append(neighbors, NeighborAdvert{Addr: a})
				}
			}

			for _, tlv := range ab.TLVs[ai] {
				if tlv.Type != rfc5444.TLVLinkMetric || len(tlv.Value) < 2 {
					continue
				}
				v := uint16(tlv.Value[0])<<8 | uint16(tlv.Value[1])
				cost := metric.Cost(rfc5444.DecodeMetric(v))
				domain := int(tlv.Ext)
				if domain >= nhdp.MaxDomains {
					continue
				}
				if idx, ok := neighborIdx[a]; ok {
					neighbors[idx].Cost[domain] = cost
					neighbors[idx].HasCost[domain] = true
				}
				if endpoint != nil && endpoint.Domain == tlv.Ext {
					endpoint.Cost = cost
				}
			}

			if endpoint != nil {
				endpoints = append(endpoints, *endpoint)
			}
		}
	}
	return neighbors, endpoints
}
