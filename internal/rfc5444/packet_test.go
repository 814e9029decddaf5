package rfc5444

import (
	"net"
	"testing"

	"github.com/benpicco/olsrv2d/internal/addr"
)

func mustAddr(t *testing.T, s string) addr.Address {
	t.Helper()
	a, err := addr.FromIP(net.ParseIP(s))
	if err != nil {
		t.Fatalf("parse %s: %v", s, err)
	}
	return a
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	a1 := mustAddr(t, "10.0.0.1")
	a2 := mustAddr(t, "10.0.0.2")
	a3 := mustAddr(t, "10.0.0.3")

	vtime := uint8(64)
	msg := Message{
		Type:   MsgTypeHello,
		SeqNum: u16p(7),
		TLVs:   []TLV{{Type: TLVValidityTime, Value: []byte{vtime}}},
		AddrBlocks: []AddressBlock{{
			Addresses: []addr.Address{a1, a2, a3},
			TLVs: [][]TLV{
				{{Type: TLVLocalIF, Value: []byte{LocalIFThisIf}}},
				{{Type: TLVLinkStatus, Value: []byte{LinkStatusSymmetric}}},
				{{Type: TLVLinkStatus, Value: []byte{LinkStatusHeard}}},
			},
		}},
	}

	pkt := Packet{Messages: []Message{msg}}
	wire := EncodePacket(pkt)

	decoded, errs := DecodePacket(wire)
	if len(errs) != 0 {
		t.Fatalf("unexpected decode errors: %v", errs)
	}
	if len(decoded.Messages) != 1 {
		t.Fatalf("want 1 message, got %d", len(decoded.Messages))
	}
	dm := decoded.Messages[0]
	if dm.Type != MsgTypeHello || dm.SeqNum == nil || *dm.SeqNum != 7 {
		t.Fatalf("message header mismatch: %+v", dm)
	}
	if len(dm.TLVs) != 1 || dm.TLVs[0].Type != TLVValidityTime || dm.TLVs[0].Value[0] != vtime {
		t.Fatalf("message TLV mismatch: %+v", dm.TLVs)
	}
	if len(dm.AddrBlocks) != 1 || len(dm.AddrBlocks[0].Addresses) != 3 {
		t.Fatalf("address block mismatch: %+v", dm.AddrBlocks)
	}

	got := map[string][]TLV{}
	for i, a := range dm.AddrBlocks[0].Addresses {
		got[a.String()] = dm.AddrBlocks[0].TLVs[i]
	}
	if len(got[a1.String()]) != 1 || got[a1.String()][0].Type != TLVLocalIF {
		t.Fatalf("a1 TLVs wrong: %+v", got[a1.String()])
	}
	if len(got[a2.String()]) != 1 || got[a2.String()][0].Value[0] != LinkStatusSymmetric {
		t.Fatalf("a2 TLVs wrong: %+v", got[a2.String()])
	}
	if len(got[a3.String()]) != 1 || got[a3.String()][0].Value[0] != LinkStatusHeard {
		t.Fatalf("a3 TLVs wrong: %+v", got[a3.String()])
	}
}

func TestDecodeTruncatedPacketReportsErrorWithoutPanicking(t *testing.T) {
	wire := []byte{0x00, 0x01, 0x02} // claims no seqno, then garbage partial message
	_, errs := DecodePacket(wire)
	if len(errs) == 0 {
		t.Fatal("expected a decode error for truncated input")
	}
}

func TestMultipleMessagesOneMalformedOthersStillDecode(t *testing.T) {
	good := Message{Type: MsgTypeHello}
	wire := EncodePacket(Packet{Messages: []Message{good}})
	// Append garbage that looks like a message-length-prefixed blob but is
	// actually truncated, simulating a corrupt second message.
	wire = append(wire, 0xFF, 0xFF, 0x00)

	decoded, errs := DecodePacket(wire)
	if len(decoded.Messages) != 1 {
		t.Fatalf("want the first, valid message to survive; got %d messages", len(decoded.Messages))
	}
	if len(errs) == 0 {
		t.Fatal("expected an error for the corrupt trailing message")
	}
}

func u16p(v uint16) *uint16 { return &v }
