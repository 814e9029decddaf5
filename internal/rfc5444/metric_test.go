package rfc5444

import "testing"

func TestMetricEncodeDecodeMonotoneAndIdempotent(t *testing.T) {
	prev := uint32(0)
	for _, cost := range []uint32{0, 1, 255, 256, 257, 1000, 10000, 65000, 1 << 20, 1 << 30} {
		enc := EncodeMetric(cost)
		dec := DecodeMetric(enc)
		if dec < prev {
			t.Fatalf("decode(encode(%d))=%d is lower than previous decoded value %d: not monotone", cost, dec, prev)
		}
		// idempotent after first application
		enc2 := EncodeMetric(dec)
		dec2 := DecodeMetric(enc2)
		if dec2 != dec {
			t.Fatalf("not idempotent for cost %d: first decode %d, second %d", cost, dec, dec2)
		}
		prev = dec
	}
}

func TestMetricEncodeDecodeCeilsUpward(t *testing.T) {
	for _, cost := range []uint32{1, 100, 257, 12345} {
		dec := DecodeMetric(EncodeMetric(cost))
		if dec < cost && cost <= 511<<7 {
			t.Fatalf("decode(encode(%d)) = %d must be >= input", cost, dec)
		}
	}
}

func TestMetricInfiniteSentinel(t *testing.T) {
	if got := DecodeMetric(0x0FFF); got != MetricInfinite {
		t.Fatalf("0xFFF must decode to MetricInfinite, got %d", got)
	}
}
