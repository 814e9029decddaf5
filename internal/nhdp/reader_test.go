package nhdp

import (
	"testing"

	"github.com/benpicco/olsrv2d/internal/addr"
	"github.com/benpicco/olsrv2d/internal/clock"
	"github.com/benpicco/olsrv2d/internal/metric"
	"github.com/benpicco/olsrv2d/internal/rfc5444"
)

// newTestReaderDB builds a database with no hysteresis plug-in, so a
// single HELLO's effect on link status is visible without needing
// several HELLOs to cross the EWMA plug-in's accept threshold.
func newTestReaderDB(t *testing.T) *Database {
	t.Helper()
	fc := clock.NewFake(0)
	w := clock.NewWheel(fc)
	return NewDatabase(w, fc, nil, [MaxDomains]metric.Plugin{})
}

type addrTLVs struct {
	addr addr.Address
	tlvs []rfc5444.TLV
}

// helloMessage builds a HELLO out of one address block per entry, plus
// the VALIDITY_TIME/INTERVAL_TIME message TLVs every HELLO carries.
func helloMessage(entries ...addrTLVs) (*rfc5444.Message, []*rfc5444.TLV) {
	msg := &rfc5444.Message{Type: rfc5444.MsgTypeHello}
	for _, e := range entries {
		msg.AddrBlocks = append(msg.AddrBlocks, rfc5444.AddressBlock{
			Addresses: []addr.Address{e.addr},
			TLVs:      [][]rfc5444.TLV{e.tlvs},
		})
	}
	vtimeTLV := &rfc5444.TLV{Type: rfc5444.TLVValidityTime, Value: EncodeHoldTime(6000)}
	itimeTLV := &rfc5444.TLV{Type: rfc5444.TLVIntervalTime, Value: EncodeHoldTime(2000)}
	return msg, []*rfc5444.TLV{vtimeTLV, itimeTLV, nil}
}

func metricTLV(direction uint16, domain uint8, cost uint32) rfc5444.TLV {
	encoded := rfc5444.EncodeMetric(cost) | direction
	return rfc5444.TLV{
		Type:  rfc5444.TLVLinkMetric,
		Ext:   domain,
		Value: []byte{byte(encoded >> 8), byte(encoded)},
	}
}

func TestOnMessageStartCreatesLinkAndGoesSymmetric(t *testing.T) {
	db := newTestReaderDB(t)
	ifc := db.AddInterface(1, "wlan0", 2000, 6000, 6000, 30000, 1000)
	ours := testAddr(t, "192.168.0.1")
	ifc.AddLocalAddress(ours)
	r := NewReader(db)
	r.CurrentIface = ifc

	peer := testAddr(t, "192.168.0.2")
	msg, tlvs := helloMessage(
		addrTLVs{peer, []rfc5444.TLV{
			{Type: rfc5444.TLVLocalIF, Value: []byte{rfc5444.LocalIFThisIf}},
		}},
		addrTLVs{ours, []rfc5444.TLV{
			{Type: rfc5444.TLVLinkStatus, Value: []byte{rfc5444.LinkStatusSymmetric}},
		}},
	)

	if dl := r.onMessageStart(msg, tlvs); dl != rfc5444.Okay {
		t.Fatalf("want Okay, got %v", dl)
	}

	if len(db.Neighbors) != 1 {
		t.Fatalf("want 1 neighbor, got %d", len(db.Neighbors))
	}
	n := db.Neighbors[0]
	if len(n.Links) != 1 {
		t.Fatalf("want 1 link, got %d", len(n.Links))
	}
	l := n.Links[0]
	if !l.HasAddress(peer) {
		t.Fatal("the advertised sender address must be bound to the link")
	}
	if l.Status() != StatusSymmetric {
		t.Fatalf("a peer reporting LINK_STATUS=SYMMETRIC about us must make the link SYMMETRIC, got %v", l.Status())
	}
	if n.Symmetric != 1 {
		t.Fatalf("neighbor.Symmetric = %d, want 1", n.Symmetric)
	}
}

func TestOnMessageStartWithoutLinkStatusStaysUnconfirmed(t *testing.T) {
	db := newTestReaderDB(t)
	ifc := db.AddInterface(1, "wlan0", 2000, 6000, 6000, 30000, 1000)
	r := NewReader(db)
	r.CurrentIface = ifc

	peer := testAddr(t, "192.168.0.4")
	msg, tlvs := helloMessage(addrTLVs{peer, []rfc5444.TLV{
		{Type: rfc5444.TLVLocalIF, Value: []byte{rfc5444.LocalIFThisIf}},
	}})

	if dl := r.onMessageStart(msg, tlvs); dl != rfc5444.Okay {
		t.Fatalf("want Okay, got %v", dl)
	}

	l := db.Neighbors[0].Links[0]
	if l.Status() == StatusSymmetric {
		t.Fatal("a first HELLO that never reports hearing us must not become SYMMETRIC")
	}
}

func TestOnMessageStartAppliesLinkMetric(t *testing.T) {
	db := newTestReaderDB(t)
	ifc := db.AddInterface(1, "wlan0", 2000, 6000, 6000, 30000, 1000)
	r := NewReader(db)
	r.CurrentIface = ifc

	peer := testAddr(t, "192.168.0.3")
	const sentCost = 5000
	msg, tlvs := helloMessage(addrTLVs{peer, []rfc5444.TLV{
		{Type: rfc5444.TLVLocalIF, Value: []byte{rfc5444.LocalIFThisIf}},
		metricTLV(rfc5444.MetricIncomingLink, 0, sentCost),
	}})

	if dl := r.onMessageStart(msg, tlvs); dl != rfc5444.Okay {
		t.Fatalf("want Okay, got %v", dl)
	}

	want := metric.Cost(rfc5444.DecodeMetric(rfc5444.EncodeMetric(sentCost)))
	l := db.Neighbors[0].Links[0]
	if l.Metric[0].Out != want {
		t.Fatalf("link.Metric[0].Out = %d, want %d (sender's incoming is our outgoing)", l.Metric[0].Out, want)
	}
}

func TestOnMessageStartDropsWhenMaxNeighborsReached(t *testing.T) {
	db := newTestReaderDB(t)
	ifc := db.AddInterface(1, "wlan0", 2000, 6000, 6000, 30000, 1000)
	r := NewReader(db)
	r.CurrentIface = ifc

	first := testAddr(t, "192.168.0.2")
	msg1, tlvs1 := helloMessage(addrTLVs{first, []rfc5444.TLV{
		{Type: rfc5444.TLVLocalIF, Value: []byte{rfc5444.LocalIFThisIf}},
	}})
	if dl := r.onMessageStart(msg1, tlvs1); dl != rfc5444.Okay {
		t.Fatalf("first HELLO: want Okay, got %v", dl)
	}
	if len(db.Neighbors) != 1 {
		t.Fatalf("want 1 neighbor after first HELLO, got %d", len(db.Neighbors))
	}

	db.MaxNeighbors = 1
	second := testAddr(t, "192.168.0.5")
	msg2, tlvs2 := helloMessage(addrTLVs{second, []rfc5444.TLV{
		{Type: rfc5444.TLVLocalIF, Value: []byte{rfc5444.LocalIFThisIf}},
	}})
	if dl := r.onMessageStart(msg2, tlvs2); dl != rfc5444.DropMessage {
		t.Fatalf("a HELLO past MaxNeighbors must be dropped, got %v", dl)
	}
	if len(db.Neighbors) != 1 {
		t.Fatalf("neighbor count must stay at 1 after the dropped HELLO, got %d", len(db.Neighbors))
	}
}
