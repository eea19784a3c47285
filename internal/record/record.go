package record

import (
	"fmt"
	"sort"
	"strconv"
)

// RawRow is one logical table row as delivered by the telemetry source.
// Fields may carry arbitrary bytes (packed timestamps travel as raw octets).
type RawRow []string

type Kind int

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	default:
		return "null"
	}
}

// Value is a decoded field value.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
}

func Int(v int64) Value { return Value{kind: KindInt, i: v} }
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }
func String(v string) Value { return Value{kind: KindString, s: v} }
func Null() Value { return Value{} }
func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// Number returns the numeric view of the value. Strings are never coerced.
func (v Value) Number() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	default:
		return 0, false
	}
}

// Text returns the value as it would be compared against a status sentinel.
func (v Value) Text() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindString:
		return v.s
	default:
		return ""
	}
}

func (v Value) Any() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	default:
		return nil
	}
}

func (v Value) String() string {
	if v.kind == KindNull {
		return "null"
	}
	return v.Text()
}

// Record is the typed view of one monitored entity for one poll. It is built
// once through a Builder and is read-only afterwards.
type Record struct {
	check  string
	entity string
	fields map[string]Value
}

func (r Record) Check() string { return r.check }
func (r Record) Entity() string { return r.entity }
func (r Record) Len() int { return len(r.fields) }

func (r Record) Lookup(name string) (Value, bool) {
	v, ok := r.fields[name]
	return v, ok
}

// Has reports whether the field is present with a non-null value.
func (r Record) Has(name string) bool {
	v, ok := r.fields[name]
	return ok && !v.IsNull()
}

func (r Record) Number(name string) (float64, error) {
	v, ok := r.fields[name]
	if !ok || v.IsNull() {
		return 0, fmt.Errorf("field %s missing", name)
	}
	n, ok := v.Number()
	if !ok {
		return 0, fmt.Errorf("field %s is %s, not numeric", name, v.Kind())
	}
	return n, nil
}

func (r Record) Text(name string) string {
	return r.fields[name].Text()
}

// Names returns the field names in sorted order.
func (r Record) Names() []string {
	names := make([]string, 0, len(r.fields))
	for name := range r.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type Builder struct {
	rec Record
}

func NewBuilder(check, entity string) *Builder {
	return &Builder{rec: Record{check: check, entity: entity, fields: map[string]Value{}}}
}

func (b *Builder) Set(name string, v Value) *Builder {
	b.rec.fields[name] = v
	return b
}

// Build hands out the record and detaches the builder so the record cannot
// be mutated through it afterwards.
func (b *Builder) Build() Record {
	rec := b.rec
	b.rec = Record{check: rec.check, entity: rec.entity, fields: map[string]Value{}}
	return rec
}
