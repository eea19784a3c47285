package decode

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestIntegerStripsPadding(t *testing.T) {
	v, err := Integer(" 42\x00\x00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42 got %d", v)
	}
}

func TestIntegerRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "4x", "1.5", "99999999999999999999"} {
		_, err := Integer(raw)
		var decErr *Error
		if !errors.As(err, &decErr) {
			t.Fatalf("expected decode error for %q, got %v", raw, err)
		}
	}
}

func TestScaledInteger(t *testing.T) {
	v, err := ScaledInteger("8550", 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 85.5 {
		t.Fatalf("expected 85.5 got %v", v)
	}
	if _, err := ScaledInteger("10", 0); err == nil {
		t.Fatalf("expected error for zero scale")
	}
}

func TestFloat32FromHex(t *testing.T) {
	tests := []struct {
		raw  string
		want float32
	}{
		{"3f800000", 1},
		{"c1200000", -10},
		{"41c80000\x00", 25},
		{"00000000", 0},
	}
	for _, tt := range tests {
		got, err := Float32FromHex(tt.raw)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", tt.raw, err)
		}
		if got != tt.want {
			t.Fatalf("%q: expected %v got %v", tt.raw, tt.want, got)
		}
	}
}

func TestFloat32FromHexInvalid(t *testing.T) {
	for _, raw := range []string{"3f8000", "3f8000000", "zz800000", ""} {
		if _, err := Float32FromHex(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestFloat32HexRoundTripOverBits(t *testing.T) {
	patterns := []string{"3f800000", "7fc00000", "7f800000", "ff800000", "00000001", "80000000", "deadbeef", "12345678"}
	for _, p := range patterns {
		v, err := Float32FromHex(p)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", p, err)
		}
		if got := HexFromFloat32(v); got != p {
			t.Fatalf("round trip %s -> %s", p, got)
		}
	}
}

func TestFloat32FromBitsIsBitCast(t *testing.T) {
	if got := Float32FromBits(0x7fc00000); !math.IsNaN(float64(got)) {
		t.Fatalf("expected NaN got %v", got)
	}
	if got := Float32FromBits(0x40490fdb); math.Abs(float64(got)-math.Pi) > 1e-6 {
		t.Fatalf("expected pi got %v", got)
	}
}

func TestPackedTimestamp(t *testing.T) {
	// 1700000000 = 2023-11-14 22:13:20 UTC
	b := []byte{0x00, 0xf1, 0x53, 0x65, 0x00, 0x00, 0x00, 0x00}
	ts := PackedTimestamp(b, time.UTC)
	if !ts.Valid {
		t.Fatalf("expected valid timestamp")
	}
	if ts.String() != "2023-11-14 22:13:20" {
		t.Fatalf("unexpected timestamp %s", ts)
	}
}

func TestPackedTimestampInvalid(t *testing.T) {
	cases := [][]byte{
		{0x01, 0x02},
		{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x0f},
	}
	for _, b := range cases {
		ts := PackedTimestamp(b, nil)
		if ts.Valid || ts.String() != InvalidDate {
			t.Fatalf("expected invalid marker for %x, got %s", b, ts)
		}
	}
}

func TestRenderHelpers(t *testing.T) {
	if got := Fahrenheit(50.0); got != "122.0 °F" {
		t.Fatalf("unexpected fahrenheit %q", got)
	}
	if got := Fahrenheit("n/a"); got != "N/A" {
		t.Fatalf("expected N/A got %q", got)
	}
	if got := Percent(85.5); got != "85.5 %" {
		t.Fatalf("unexpected percent %q", got)
	}
	if got := AmpHours(int64(100)); got != "100.0 Ahr" {
		t.Fatalf("unexpected amp hours %q", got)
	}
	if got := Runtime(125); got != "2h 5m" {
		t.Fatalf("unexpected runtime %q", got)
	}
}
