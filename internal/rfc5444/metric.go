package rfc5444

// EncodeMetric quantizes a 32-bit link cost into the 12-bit pseudo-float
// wire form used by LINK_METRIC TLVs: value = (256 | mantissa) << exponent,
// with an 8-bit explicit mantissa and a 3-bit exponent. The 9th
// ("implicit") mantissa bit is always 1 and is not stored. Costs below
// the representable minimum (256) round up to it; costs above the
// representable maximum saturate rather than wrap. DecodeMetric(EncodeMetric(x))
// is monotone non-decreasing and idempotent, because encode always
// chooses the smallest representable value >= x.
func EncodeMetric(cost uint32) uint16 {
	const minCost = 256
	const maxCost = 511 << 7

	if cost <= minCost {
		return encodedFrom(0, 0)
	}
	if cost >= maxCost {
		return encodedFrom(255, 7)
	}
	for exp := 0; exp <= 7; exp++ {
		// Largest cost representable with this exponent and mantissa 255.
		ceilingAtExp := uint32(511) << uint(exp)
		if cost > ceilingAtExp {
			continue
		}
		// Smallest mantissa whose (256+m)<<exp is >= cost.
		base := cost >> uint(exp)
		if base<<uint(exp) < cost {
			base++
		}
		if base < 256 {
			base = 256
		}
		mantissa := base - 256
		if mantissa > 255 {
			continue
		}
		return encodedFrom(uint8(mantissa), uint8(exp))
	}
	return encodedFrom(255, 7)
}

func encodedFrom(mantissa, exponent uint8) uint16 {
	return (uint16(exponent) << 8) | uint16(mantissa)
}

// DecodeMetric reverses EncodeMetric. The reserved value 0xFFF decodes to
// MetricInfinite, excluding the edge from Dijkstra (the invariants below).
func DecodeMetric(encoded uint16) uint32 {
	encoded &= metricCostMask
	if encoded == metricInfiniteEncoded {
		return MetricInfinite
	}
	mantissa := uint32(encoded & 0xFF)
	exponent := uint32((encoded >> 8) & 0x7)
	return (256 + mantissa) << exponent
}
