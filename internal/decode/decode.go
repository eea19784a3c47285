package decode

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Error reports a single field whose raw form could not be converted.
type Error struct {
	Field  string
	Raw    string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("decode %s from %q: %s", e.Field, e.Raw, e.Reason)
	}
	return fmt.Sprintf("decode %q: %s", e.Raw, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Clean strips trailing NUL padding and surrounding whitespace.
func Clean(raw string) string {
	return strings.TrimSpace(strings.TrimRight(raw, "\x00"))
}

func Integer(raw string) (int64, error) {
	clean := Clean(raw)
	v, err := strconv.ParseInt(clean, 10, 64)
	if err != nil {
		return 0, &Error{Raw: raw, Reason: "not a decimal integer", Err: err}
	}
	return v, nil
}

// ScaledInteger parses a fixed-point integer and divides it by scale, e.g.
// tenths of a degree with scale 10.
func ScaledInteger(raw string, scale float64) (float64, error) {
	if scale == 0 {
		return 0, &Error{Raw: raw, Reason: "zero scale"}
	}
	v, err := Integer(raw)
	if err != nil {
		return 0, err
	}
	return float64(v) / scale, nil
}

func Decimal(raw string) (float64, error) {
	clean := Clean(raw)
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, &Error{Raw: raw, Reason: "not a decimal number", Err: err}
	}
	return v, nil
}

// Float32FromHex reads eight hex digits as the big-endian bit pattern of an
// IEEE-754 single and reinterprets those bits without numeric conversion.
func Float32FromHex(raw string) (float32, error) {
	clean := Clean(raw)
	if len(clean) != 8 {
		return 0, &Error{Raw: raw, Reason: fmt.Sprintf("want 8 hex digits, got %d", len(clean))}
	}
	b, err := hex.DecodeString(clean)
	if err != nil {
		return 0, &Error{Raw: raw, Reason: "not hex", Err: err}
	}
	return Float32FromBits(binary.BigEndian.Uint32(b)), nil
}

// Float32FromBits is the bit-cast primitive used by Float32FromHex.
func Float32FromBits(bits uint32) float32 {
	return math.Float32frombits(bits)
}

// HexFromFloat32 is the inverse of Float32FromHex, lowercase and zero padded.
func HexFromFloat32(v float32) string {
	return fmt.Sprintf("%08x", math.Float32bits(v))
}

const (
	timestampLayout = "2006-01-02 15:04:05"
	InvalidDate     = "Invalid Date"

	// 9999-12-31 23:59:59 UTC
	maxUnixSeconds = 253402300799
)

// Timestamp is the advisory result of PackedTimestamp. A zero Valid means the
// raw buffer could not be turned into a calendar time.
type Timestamp struct {
	Time  time.Time
	Valid bool
}

func (t Timestamp) String() string {
	if !t.Valid {
		return InvalidDate
	}
	return t.Time.Format(timestampLayout)
}

// PackedTimestamp reads an 8-byte little-endian count of Unix seconds. It
// never fails: anything outside years 1..9999 yields the invalid marker.
func PackedTimestamp(b []byte, loc *time.Location) Timestamp {
	if len(b) != 8 {
		return Timestamp{}
	}
	secs := binary.LittleEndian.Uint64(b)
	if secs > maxUnixSeconds {
		return Timestamp{}
	}
	if loc == nil {
		loc = time.UTC
	}
	t := time.Unix(int64(secs), 0).In(loc)
	if t.Year() < 1 || t.Year() > 9999 {
		return Timestamp{}
	}
	return Timestamp{Time: t, Valid: true}
}

func CelsiusToFahrenheit(c float64) float64 {
	return c*9/5 + 32
}

// Fahrenheit renders a Celsius value for display only.
func Fahrenheit(celsius any) string {
	c, ok := toFloat(celsius)
	if !ok {
		return "N/A"
	}
	return fmt.Sprintf("%.1f °F", CelsiusToFahrenheit(c))
}

func Percent(v any) string {
	f, ok := toFloat(v)
	if !ok {
		return "N/A"
	}
	return fmt.Sprintf("%.1f %%", f)
}

func AmpHours(v any) string {
	f, ok := toFloat(v)
	if !ok {
		return "N/A"
	}
	return fmt.Sprintf("%.1f Ahr", f)
}

// Runtime renders a minute count as "Xh Ym".
func Runtime(minutes int64) string {
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(Clean(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
