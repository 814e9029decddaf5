package rfc5444

import "github.com/benpicco/olsrv2d/internal/addr"

// DupResult is the outcome of inserting a (originator, sequence number)
// pair into a DuplicateSet.
type DupResult int

const (
	// New means this is the first time this originator has been seen at
	// all, or its prior entry has expired.
	New DupResult = iota
	// Newest means the pair was seen before but this sequence number is
	// newer than anything previously recorded for this originator.
	Newest
	// Older means a newer sequence number is already on record.
	Older
	// Duplicate means this exact (originator, seqnum) pair is on record.
	Duplicate
)

// window is the modulo-2^16 comparison window RFC 5444 calls for:
// "Window comparison is modulo-2^16 with a window of 2^14 in each
// direction". A sequence number within this signed window ahead of the
// last-seen one is newer; one in the window behind it is older.
const window = 1 << 14

// seqNewer reports whether a is strictly newer than b in sequence-number
// space, handling 16-bit wraparound (the invariants below: "Sequence number wrap:
// seqno 0xFFFF followed by 0x0000 is NEWER, not OLDER").
func seqNewer(a, b uint16) bool {
	d := int32(a) - int32(b)
	if d > 0x7FFF {
		d -= 1 << 16
	} else if d < -0x7FFF {
		d += 1 << 16
	}
	return d > 0 && d < window
}

func seqOlder(a, b uint16) bool {
	return a != b && seqNewer(b, a)
}

type dupKey struct {
	msgType uint8
	orig    addr.Address
}

type dupEntry struct {
	seq      uint16
	validity clockTime
}

// clockTime is a narrow alias so this package does not need to import
// internal/clock just for one field type; callers pass in whatever
// monotonic unit their clock.Wheel uses.
type clockTime = int64

// DuplicateSet indexes the most recently seen sequence number per
// (message type, originator). It is used twice in
// the daemon with separate instances and separate hold times: once for
// *processing* suppression and once for *forwarding* suppression
// (RFC 7181 doesn't mandate this split; this daemon keeps them
// separate to avoid a forwarded TC suppressing reprocessing, or vice
// versa, under different hold times).
type DuplicateSet struct {
	entries map[dupKey]dupEntry
	now     func() clockTime
}

// NewDuplicateSet creates an empty set. now reports the current monotonic
// time in the same unit as the validity values passed to Insert.
func NewDuplicateSet(now func() clockTime) *DuplicateSet {
	return &DuplicateSet{entries: map[dupKey]dupEntry{}, now: now}
}

// Insert records (msgType, orig, seq) with the given expiry time and
// reports how it relates to whatever was already on file.
func (d *DuplicateSet) Insert(msgType uint8, orig addr.Address, seq uint16, validUntil clockTime) DupResult {
	k := dupKey{msgType, orig}
	e, ok := d.entries[k]
	if ok && e.validity > d.now() {
		switch {
		case e.seq == seq:
			d.entries[k] = dupEntry{seq: seq, validity: validUntil}
			return Duplicate
		case seqNewer(seq, e.seq):
			d.entries[k] = dupEntry{seq: seq, validity: validUntil}
			return Newest
		default:
			// Older entries are not recorded; they do not move validity
			// forward.
			return Older
		}
	}
	d.entries[k] = dupEntry{seq: seq, validity: validUntil}
	return New
}

// Purge drops every entry whose validity has passed, bounding the set's
// memory use. Call this periodically from a timer, not on every Insert.
func (d *DuplicateSet) Purge() {
	now := d.now()
	for k, e := range d.entries {
		if e.validity <= now {
			delete(d.entries, k)
		}
	}
}

// Len reports the number of live entries, for tests and metrics.
func (d *DuplicateSet) Len() int { return len(d.entries) }
