package rules

import (
	"fmt"
	"strings"
	"time"

	"powerwatch-backend/internal/record"
)

// Env carries the evaluation inputs that are not part of the record. Now is
// the injected evaluation instant; nothing in this package reads the clock.
type Env struct {
	Now time.Time
}

type Condition interface {
	Holds(rec record.Record, env Env) (bool, error)
	String() string
}

// Comparison tests a numeric field against a target. The op fixes boundary
// inclusivity, so "<" and "<=" are distinct rules.
type Comparison struct {
	Field   string
	Op      string
	Target  float64
	Scale   float64
	Convert func(float64) float64
}

func Compare(field, op string, target float64) *Comparison {
	return &Comparison{Field: field, Op: op, Target: target}
}

// Scaled divides the decoded value by scale before comparing.
func (c *Comparison) Scaled(scale float64) *Comparison {
	c.Scale = scale
	return c
}

// Converted applies fn to the (scaled) value before comparing, e.g. a unit
// conversion when the threshold is published in another unit.
func (c *Comparison) Converted(fn func(float64) float64) *Comparison {
	c.Convert = fn
	return c
}

func (c *Comparison) Holds(rec record.Record, _ Env) (bool, error) {
	v, err := rec.Number(c.Field)
	if err != nil {
		return false, err
	}
	if c.Scale != 0 {
		v /= c.Scale
	}
	if c.Convert != nil {
		v = c.Convert(v)
	}
	return compare(v, c.Op, c.Target)
}

func (c *Comparison) String() string {
	return fmt.Sprintf("%s %s %v", c.Field, c.Op, c.Target)
}

func compare(v float64, op string, target float64) (bool, error) {
	switch op {
	case ">":
		return v > target, nil
	case ">=":
		return v >= target, nil
	case "<":
		return v < target, nil
	case "<=":
		return v <= target, nil
	case "==":
		return v == target, nil
	case "!=":
		return v != target, nil
	default:
		return false, fmt.Errorf("unsupported operator %q", op)
	}
}

type between struct {
	field    string
	min, max float64
}

// Between holds when min <= field <= max.
func Between(field string, min, max float64) Condition {
	return between{field: field, min: min, max: max}
}

func (b between) Holds(rec record.Record, _ Env) (bool, error) {
	v, err := rec.Number(b.field)
	if err != nil {
		return false, err
	}
	return v >= b.min && v <= b.max, nil
}

func (b between) String() string {
	return fmt.Sprintf("%s between %v and %v", b.field, b.min, b.max)
}

type abnormal struct {
	field    string
	expected string
}

// Abnormal holds when a status field differs from its nominal sentinel. Any
// other observed value, unexpected ones included, is abnormal.
func Abnormal(field, expected string) Condition {
	return abnormal{field: field, expected: expected}
}

func (a abnormal) Holds(rec record.Record, _ Env) (bool, error) {
	v, ok := rec.Lookup(a.field)
	if !ok || v.IsNull() {
		return false, fmt.Errorf("field %s missing", a.field)
	}
	return v.Text() != a.expected, nil
}

func (a abnormal) String() string {
	return fmt.Sprintf("%s != %q", a.field, a.expected)
}

type contains struct {
	field  string
	substr string
}

// Contains is a case-insensitive substring test on a text field.
func Contains(field, substr string) Condition {
	return contains{field: field, substr: strings.ToLower(substr)}
}

func (c contains) Holds(rec record.Record, _ Env) (bool, error) {
	v, ok := rec.Lookup(c.field)
	if !ok || v.IsNull() {
		return false, fmt.Errorf("field %s missing", c.field)
	}
	return strings.Contains(strings.ToLower(v.Text()), c.substr), nil
}

func (c contains) String() string {
	return fmt.Sprintf("%s contains %q", c.field, c.substr)
}

// BusinessHours is a weekly window: the listed weekdays, from Start hour
// inclusive to End hour exclusive, in Location (UTC when nil).
type BusinessHours struct {
	Days     []time.Weekday
	Start    int
	End      int
	Location *time.Location
}

func DefaultBusinessHours() BusinessHours {
	return BusinessHours{
		Days:  []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		Start: 8,
		End:   17,
	}
}

func (b BusinessHours) Contains(at time.Time) bool {
	loc := b.Location
	if loc == nil {
		loc = time.UTC
	}
	local := at.In(loc)
	for _, d := range b.Days {
		if local.Weekday() == d {
			return b.Start <= local.Hour() && local.Hour() < b.End
		}
	}
	return false
}

type withinHours struct {
	hours BusinessHours
}

// WithinHours holds when the injected instant falls inside the window.
func WithinHours(hours BusinessHours) Condition {
	return withinHours{hours: hours}
}

func (w withinHours) Holds(_ record.Record, env Env) (bool, error) {
	if env.Now.IsZero() {
		return false, fmt.Errorf("evaluation instant not set")
	}
	return w.hours.Contains(env.Now), nil
}

func (w withinHours) String() string {
	return fmt.Sprintf("within business hours %02d:00-%02d:00", w.hours.Start, w.hours.End)
}

type not struct {
	c Condition
}

func Not(c Condition) Condition { return not{c: c} }

func (n not) Holds(rec record.Record, env Env) (bool, error) {
	ok, err := n.c.Holds(rec, env)
	return !ok, err
}

func (n not) String() string { return "not (" + n.c.String() + ")" }

type all []Condition

// All holds when every condition holds. Evaluation stops at the first false.
func All(cs ...Condition) Condition { return all(cs) }

func (a all) Holds(rec record.Record, env Env) (bool, error) {
	for _, c := range a {
		ok, err := c.Holds(rec, env)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (a all) String() string { return join(a, " and ") }

type anyOf []Condition

// Any holds when at least one condition holds.
func Any(cs ...Condition) Condition { return anyOf(cs) }

func (a anyOf) Holds(rec record.Record, env Env) (bool, error) {
	for _, c := range a {
		ok, err := c.Holds(rec, env)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (a anyOf) String() string { return join(a, " or ") }

func join(cs []Condition, sep string) string {
	parts := make([]string, 0, len(cs))
	for _, c := range cs {
		parts = append(parts, c.String())
	}
	return "(" + strings.Join(parts, sep) + ")"
}
