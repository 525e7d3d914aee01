package lifecycle

import (
	"math"
	"testing"
)

func TestCalculateTemporalDecay(t *testing.T) {
	if d := CalculateTemporalDecay(0, 30); d != 1.0 {
		t.Errorf("decay at age 0 should be 1.0, got %v", d)
	}
	d := CalculateTemporalDecay(30, 30)
	if math.Abs(d-0.5) > 0.01 {
		t.Errorf("decay at one half-life should be ~0.5, got %v", d)
	}
	if CalculateTemporalDecay(60, 30) >= d {
		t.Errorf("decay should be monotone decreasing in age")
	}
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	var original string
	for i := 0; i < 100; i++ {
		original += "Hello world! "
	}

	compressed, err := Compress(original, 6)
	if err != nil {
		t.Fatalf("compress failed: %v", err)
	}
	if len(compressed) >= len(original) {
		t.Errorf("expected compression ratio < 1, got compressed len %d >= original len %d", len(compressed), len(original))
	}

	decompressed, err := Decompress(compressed)
	if err != nil {
		t.Fatalf("decompress failed: %v", err)
	}
	if decompressed != original {
		t.Errorf("round trip mismatch")
	}
}

func TestCompressIdempotent(t *testing.T) {
	already := ArchivedContentPrefix + "not-really-compressed-but-prefixed"
	if got := compressIfNeeded(already, 6); got != already {
		t.Errorf("expected idempotent no-op on already-archived content, got %q", got)
	}
}

func TestDecompressMalformedInput(t *testing.T) {
	if _, err := Decompress("not archived content"); err == nil {
		t.Fatal("expected error decompressing non-archived content")
	}
}
