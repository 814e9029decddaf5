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

func newTestWriter(t *testing.T) (*Writer, *Database, *nhdp.Database) {
	t.Helper()
	db, _ := newTestDB(t)
	fc := clock.NewFake(0)
	w := clock.NewWheel(fc)
	nh := nhdp.NewDatabase(w, fc, hysteresis.NewEWMA(), [nhdp.MaxDomains]metric.Plugin{})
	self := testAddr(t, "10.0.0.1")
	db.SetOriginator(self, 5000)
	return NewWriter(db, nh), db, nh
}

func symNeighborWithOriginator(t *testing.T, nh *nhdp.Database, ifc *nhdp.Interface, orig string) *nhdp.Neighbor {
	t.Helper()
	n := nh.NewNeighbor()
	n.Originator = testAddr(t, orig)
	n.HasOriginator = true
	l := nh.CreateLink(ifc, n)
	nh.ArmSymTimer(l, 6000)
	nh.UpdateLinkStatus(l)
	return n
}

func findAddress(msg *rfc5444.Message, a addr.Address) (int, bool) {
	for bi := range msg.AddrBlocks {
		ab := &msg.AddrBlocks[bi]
		for ai, cand := range ab.Addresses {
			if cand == a {
				return bi*1000 + ai, true
			}
		}
	}
	return 0, false
}

func TestWriterOmitsNonRoutingMPRSelectorsByDefault(t *testing.T) {
	w, _, nh := newTestWriter(t)
	ifc := nh.AddInterface(1, "wlan0", 2000, 6000, 6000, 30000, 1000)

	selected := symNeighborWithOriginator(t, nh, ifc, "10.0.0.2")
	selected.MPRRouting[0] = true
	notSelected := symNeighborWithOriginator(t, nh, ifc, "10.0.0.3")
	_ = notSelected

	rfcWriter := rfc5444.NewWriter()
	rfcWriter.Register(w.Provider())
	msg := rfcWriter.Compose(rfc5444.MsgTypeTC)

	if _, ok := findAddress(&msg, selected.Originator); !ok {
		t.Fatal("a neighbor that selected us as routing MPR must be advertised")
	}
	if _, ok := findAddress(&msg, notSelected.Originator); ok {
		t.Fatal("a neighbor that did not select us must not be advertised in minimal mode")
	}
}

func TestWriterAdvertiseAllIncludesEveryOriginatorNeighbor(t *testing.T) {
	w, _, nh := newTestWriter(t)
	ifc := nh.AddInterface(1, "wlan0", 2000, 6000, 6000, 30000, 1000)
	w.AdvertiseAll = true

	n := symNeighborWithOriginator(t, nh, ifc, "10.0.0.2")

	rfcWriter := rfc5444.NewWriter()
	rfcWriter.Register(w.Provider())
	msg := rfcWriter.Compose(rfc5444.MsgTypeTC)

	if _, ok := findAddress(&msg, n.Originator); !ok {
		t.Fatal("AdvertiseAll must include every symmetric neighbor with a known originator")
	}
}

func TestWriterSeqNumIncrementsEveryEmission(t *testing.T) {
	w, _, _ := newTestWriter(t)
	rfcWriter := rfc5444.NewWriter()
	rfcWriter.Register(w.Provider())

	first := rfcWriter.Compose(rfc5444.MsgTypeTC)
	second := rfcWriter.Compose(rfc5444.MsgTypeTC)
	if first.SeqNum == nil || second.SeqNum == nil {
		t.Fatal("TC must carry a sequence number")
	}
	if *second.SeqNum != *first.SeqNum+1 {
		t.Fatalf("sequence number must increment every emission: %d -> %d", *first.SeqNum, *second.SeqNum)
	}
}
