package rfc5444

import (
	"bytes"
	"encoding/binary"
)

// encodeAddressTLVs writes the address-TLV block for one address block.
// perAddr[i] lists every TLV attached to address i. TLVs of the same
// (Type, Ext) that carry an identical value across a contiguous run of
// addresses are combined into a single indexed entry, matching the
// run-length address-TLV compression RFC 5444 describes.
func encodeAddressTLVs(buf *bytes.Buffer, n int, perAddr [][]TLV) {
	type key struct {
		typ, ext uint8
	}
	// Collect, for each (type,ext), the value present at each address
	// index (nil => not present at that address).
	values := map[key][][]byte{}
	order := []key{}
	for i := 0; i < n; i++ {
		for _, t := range perAddr[i] {
			k := key{t.Type, t.Ext}
			if _, ok := values[k]; !ok {
				values[k] = make([][]byte, n)
				order = append(order, k)
			}
			v := t.Value
			if v == nil {
				v = []byte{} // distinguish "present, no value" from "absent"
			}
			values[k][i] = v
		}
	}

	var tmp bytes.Buffer
	count := 0
	for _, k := range order {
		vals := values[k]
		i := 0
		for i < n {
			if vals[i] == nil {
				i++
				continue
			}
			start := i
			cur := vals[i]
			for i < n && vals[i] != nil && bytes.Equal(vals[i], cur) {
				i++
			}
			stop := i
			t := TLV{Type: k.typ, Ext: k.ext}
			if len(cur) > 0 {
				t.Value = cur
			} else {
				t.Value = []byte{}
			}
			writeTLV(&tmp, t, true, uint8(start), uint8(stop), false)
			count++
		}
	}
	writeLenPrefixed(buf, tmp.Bytes())
}

// decodeAddressTLVs reads one address-TLV block and scatters resolved
// values into out[i] for every address index the TLV's range covers.
func decodeAddressTLVs(r *reader, n int, out [][]TLV) error {
	blockLen, err := r.uint16("address-TLV block length")
	if err != nil {
		return err
	}
	end := r.pos + int(blockLen)
	if end > len(r.buf) {
		return &WireError{Operation: "address-TLV block", Offset: r.pos, Message: "length exceeds buffer"}
	}
	for r.pos < end {
		raw, err := readTLV(r)
		if err != nil {
			return err
		}
		start, stop := 0, n
		if raw.indexed {
			start, stop = int(raw.start), int(raw.stop)
		}
		if stop > n {
			stop = n
		}
		for i := start; i < stop; i++ {
			v := raw.t.Value
			if raw.multiValuePerAddr && raw.unitLen > 0 {
				off := (i - start) * raw.unitLen
				if off+raw.unitLen <= len(raw.t.Value) {
					v = raw.t.Value[off : off+raw.unitLen]
				}
			}
			entry := TLV{Type: raw.t.Type, Ext: raw.t.Ext}
			if raw.t.HasValue() {
				if len(v) == 0 {
					entry.Value = []byte{}
				} else {
					entry.Value = append([]byte(nil), v...)
				}
			}
			out[i] = append(out[i], entry)
		}
	}
	if r.pos != end {
		return &WireError{Operation: "address-TLV block", Offset: r.pos, Message: "trailing bytes in block"}
	}
	return nil
}

func writeLenPrefixed(buf *bytes.Buffer, body []byte) {
	var lb [2]byte
	binary.BigEndian.PutUint16(lb[:], uint16(len(body)))
	buf.Write(lb[:])
	buf.Write(body)
}
