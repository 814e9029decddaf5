package olsrv2

import (
	"testing"

	"github.com/benpicco/olsrv2d/internal/addr"
	"github.com/benpicco/olsrv2d/internal/clock"
	"github.com/benpicco/olsrv2d/internal/hysteresis"
	"github.com/benpicco/olsrv2d/internal/metric"
	"github.com/benpicco/olsrv2d/internal/nhdp"
	"github.com/benpicco/olsrv2d/internal/rfc5444"
)

func newTestReader(t *testing.T) (*Reader, *Database, *nhdp.Database) {
	t.Helper()
	db, _ := newTestDB(t)
	fc := clock.NewFake(0)
	w := clock.NewWheel(fc)
	nh := nhdp.NewDatabase(w, fc, hysteresis.NewEWMA(), [nhdp.MaxDomains]metric.Plugin{})
	return NewReader(db, nh), db, nh
}

func tcMessage(orig, neighbor addr.Address, seq uint16, hopLimit uint8) (*rfc5444.Message, []*rfc5444.TLV) {
	o := orig
	hl := hopLimit
	sq := seq
	msg := &rfc5444.Message{
		Type:       rfc5444.MsgTypeTC,
		Originator: &o,
		HopLimit:   &hl,
		SeqNum:     &sq,
		AddrBlocks: []rfc5444.AddressBlock{{
			Addresses: []addr.Address{neighbor},
			TLVs: [][]rfc5444.TLV{{
				{Type: rfc5444.TLVNBRAddrType, Value: []byte{rfc5444.NbrAddrTypeOriginator}},
			}},
		}},
	}
	vtimeTLV := &rfc5444.TLV{Type: rfc5444.TLVValidityTime, Value: nhdp.EncodeHoldTime(30000)}
	ansnTLV := &rfc5444.TLV{Type: rfc5444.TLVContSeqNum, Value: []byte{0, 1}}
	return msg, []*rfc5444.TLV{vtimeTLV, ansnTLV}
}

func TestOnMessageStartAppliesTCToDatabase(t *testing.T) {
	r, db, _ := newTestReader(t)
	orig := testAddr(t, "10.0.0.1")
	nbr := testAddr(t, "10.0.0.2")

	msg, tlvs := tcMessage(orig, nbr, 1, 255)
	if dl := r.onMessageStart(msg, tlvs); dl != rfc5444.Okay {
		t.Fatalf("want Okay, got %v", dl)
	}

	node, ok := db.NodeByAddress(orig)
	if !ok || !node.Advertised {
		t.Fatal("TC originator must be applied to the database")
	}
}

func TestOnMessageStartDropsOwnOriginator(t *testing.T) {
	r, db, _ := newTestReader(t)
	self := testAddr(t, "10.0.0.1")
	db.SetOriginator(self, 5000)
	nbr := testAddr(t, "10.0.0.2")

	msg, tlvs := tcMessage(self, nbr, 1, 255)
	if dl := r.onMessageStart(msg, tlvs); dl != rfc5444.DropMessage {
		t.Fatalf("a TC from our own originator must be dropped, got %v", dl)
	}
}

func TestShallForwardRequiresFloodingMPRSelectionByPreviousHop(t *testing.T) {
	r, _, nh := newTestReader(t)
	ifc := nh.AddInterface(1, "wlan0", 2000, 6000, 6000, 30000, 1000)
	src := testAddr(t, "192.168.0.1")

	n := nh.NewNeighbor()
	l := nh.CreateLink(ifc, n)
	nh.AddLinkAddress(l, src)
	nh.ArmSymTimer(l, 6000)
	nh.UpdateLinkStatus(l)

	var forwarded []*rfc5444.Message
	r.OnForward = func(m *rfc5444.Message) { forwarded = append(forwarded, m) }
	r.CurrentSource = src

	orig := testAddr(t, "10.0.0.1")
	nbr := testAddr(t, "10.0.0.2")

	msg, tlvs := tcMessage(orig, nbr, 1, 255)
	r.onMessageStart(msg, tlvs)
	if len(forwarded) != 0 {
		t.Fatal("must not forward: previous hop did not select us as flooding MPR")
	}

	n.MPRFlooding = true
	msg2, tlvs2 := tcMessage(orig, nbr, 2, 255)
	r.onMessageStart(msg2, tlvs2)
	if len(forwarded) != 1 {
		t.Fatalf("want 1 forwarded message once selected as flooding MPR, got %d", len(forwarded))
	}
	if *forwarded[0].HopLimit != 254 {
		t.Fatalf("forwarded hop limit must be decremented: got %d", *forwarded[0].HopLimit)
	}
	if *forwarded[0].HopCount != 1 {
		t.Fatalf("forwarded hop count must be incremented: got %d", *forwarded[0].HopCount)
	}
}

func TestShallForwardRespectsZeroHopLimit(t *testing.T) {
	r, _, nh := newTestReader(t)
	ifc := nh.AddInterface(1, "wlan0", 2000, 6000, 6000, 30000, 1000)
	src := testAddr(t, "192.168.0.1")

	n := nh.NewNeighbor()
	l := nh.CreateLink(ifc, n)
	nh.AddLinkAddress(l, src)
	nh.ArmSymTimer(l, 6000)
	nh.UpdateLinkStatus(l)
	n.MPRFlooding = true

	var forwarded []*rfc5444.Message
	r.OnForward = func(m *rfc5444.Message) { forwarded = append(forwarded, m) }
	r.CurrentSource = src

	orig := testAddr(t, "10.0.0.1")
	nbr := testAddr(t, "10.0.0.2")
	msg, tlvs := tcMessage(orig, nbr, 1, 0)
	r.onMessageStart(msg, tlvs)
	if len(forwarded) != 0 {
		t.Fatal("a TC arriving with hop limit 0 must never be forwarded")
	}
}
