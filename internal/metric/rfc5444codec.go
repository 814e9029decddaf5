package metric

import "github.com/benpicco/olsrv2d/internal/rfc5444"

// RFC5444Codec is the canonical Codec every built-in plug-in uses: it
// defers to the rfc5444 package's 12-bit pseudo-float encoding so the
// encode-then-decode quantization step is identical everywhere a cost
// crosses the wire.
var RFC5444Codec = Codec{
	Encode: func(c Cost) uint16 {
		if c == Infinite {
			return 0x0FFF
		}
		return rfc5444.EncodeMetric(uint32(c))
	},
	Decode: func(v uint16) Cost {
		dec := rfc5444.DecodeMetric(v)
		if dec == rfc5444.MetricInfinite {
			return Infinite
		}
		return Cost(dec)
	},
}
