package metric

import "testing"

func TestETXPerfectLinkStaysAtStartCost(t *testing.T) {
	e := NewETX()
	s := e.NewLinkState()
	for i := uint16(0); i < 10; i++ {
		e.OnPacket(s, i, true)
	}
	if got := e.Sample(s); got != e.StartCost() {
		t.Fatalf("perfect link: got cost %d, want %d", got, e.StartCost())
	}
}

func TestETXLossyLinkCostsMore(t *testing.T) {
	e := NewETX()
	s := e.NewLinkState()
	// Deliver every other sequence number: 50% loss.
	for i := uint16(0); i < 40; i += 2 {
		e.OnPacket(s, i, true)
	}
	got := e.Sample(s)
	if got <= e.StartCost() {
		t.Fatalf("lossy link: got cost %d, want > start cost %d", got, e.StartCost())
	}
}

func TestETXHelloLostElevatesToMax(t *testing.T) {
	e := NewETX()
	s := e.NewLinkState()
	e.OnPacket(s, 1, true)
	if got := e.OnHelloLost(s); got != e.MaxCost() {
		t.Fatalf("got %d, want max cost %d", got, e.MaxCost())
	}
	if got := e.Sample(s); got != e.MaxCost() {
		t.Fatalf("after hello-lost, sample must stay at max cost, got %d", got)
	}
}

func TestRFC5444CodecRoundTripsThroughEncodedCost(t *testing.T) {
	c := Cost(12345)
	enc := RFC5444Codec.Encode(c)
	dec := RFC5444Codec.Decode(enc)
	if dec < c {
		t.Fatalf("decode(encode(%d)) = %d must not be lower than input", c, dec)
	}
	if RFC5444Codec.Decode(0x0FFF) != Infinite {
		t.Fatal("0xFFF must decode to Infinite")
	}
}
