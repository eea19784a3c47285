package reassemble

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"powerwatch-backend/internal/decode"
	"powerwatch-backend/internal/record"
)

// ShapeError reports a row whose length or internal structure does not match
// the layout of its check type.
type ShapeError struct {
	Layout string
	Reason string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Layout, e.Reason)
}

type ColumnKind int

const (
	// Text keeps the cleaned raw string; used for status sentinels.
	Text ColumnKind = iota
	Integer
	Scaled
	Decimal
	HexFloat
	// Timestamp is advisory: a bad buffer becomes the invalid marker.
	Timestamp
)

type Column struct {
	Name  string
	Kind  ColumnKind
	Scale float64
}

// Positional maps fields of a single row 1:1 by index to named columns.
type Positional struct {
	Name     string
	Columns  []Column
	Location *time.Location
}

func (p Positional) Width() int { return len(p.Columns) }

func (p Positional) Decode(row record.RawRow) (record.Record, error) {
	if len(row) < len(p.Columns) {
		return record.Record{}, &ShapeError{Layout: p.Name, Reason: fmt.Sprintf("row has %d fields, want at least %d", len(row), len(p.Columns))}
	}
	b := record.NewBuilder(p.Name, "")
	for i, col := range p.Columns {
		v, err := decodeColumn(col, row[i], p.Location)
		if err != nil {
			var decErr *decode.Error
			if errors.As(err, &decErr) {
				decErr.Field = col.Name
			}
			return record.Record{}, err
		}
		b.Set(col.Name, v)
	}
	return b.Build(), nil
}

// DecodeRows applies the layout to the single row a scalar table yields.
func (p Positional) DecodeRows(rows []record.RawRow) (record.Record, error) {
	if len(rows) != 1 {
		return record.Record{}, &ShapeError{Layout: p.Name, Reason: fmt.Sprintf("expected exactly 1 row, got %d", len(rows))}
	}
	return p.Decode(rows[0])
}

func decodeColumn(col Column, raw string, loc *time.Location) (record.Value, error) {
	switch col.Kind {
	case Integer:
		v, err := decode.Integer(raw)
		if err != nil {
			return record.Null(), err
		}
		return record.Int(v), nil
	case Scaled:
		v, err := decode.ScaledInteger(raw, col.Scale)
		if err != nil {
			return record.Null(), err
		}
		return record.Float(v), nil
	case Decimal:
		v, err := decode.Decimal(raw)
		if err != nil {
			return record.Null(), err
		}
		return record.Float(v), nil
	case HexFloat:
		v, err := decode.Float32FromHex(raw)
		if err != nil {
			return record.Null(), err
		}
		return record.Float(float64(v)), nil
	case Timestamp:
		return record.String(decode.PackedTimestamp([]byte(raw), loc).String()), nil
	default:
		return record.String(decode.Clean(raw)), nil
	}
}

// Entry is one (entity, metric) element of a parallel-array table.
type Entry struct {
	Entity   int
	Metric   string
	Value    record.Value
	Unit     string
	Position int
}

// ParallelArray splits one row into equal label, value and unit blocks.
// Width fixes the block length; zero accepts any multiple of three.
type ParallelArray struct {
	Name  string
	Width int
}

func (p ParallelArray) Decode(row record.RawRow) ([]Entry, error) {
	n := len(row) / 3
	switch {
	case len(row) == 0:
		return nil, &ShapeError{Layout: p.Name, Reason: "empty row"}
	case len(row)%3 != 0:
		return nil, &ShapeError{Layout: p.Name, Reason: fmt.Sprintf("row length %d is not a multiple of 3", len(row))}
	case p.Width > 0 && n != p.Width:
		return nil, &ShapeError{Layout: p.Name, Reason: fmt.Sprintf("expected %d values, got %d", 3*p.Width, len(row))}
	}
	labels, values, units := row[:n], row[n:2*n], row[2*n:]

	entries := make([]Entry, 0, n)
	seen := make(map[string]int, n)
	for i := 0; i < n; i++ {
		label := decode.Clean(labels[i])
		idPart, metric, ok := strings.Cut(label, ":")
		if !ok {
			return nil, &ShapeError{Layout: p.Name, Reason: fmt.Sprintf("invalid label format: %q", label)}
		}
		entity, err := strconv.Atoi(strings.TrimSpace(idPart))
		if err != nil {
			return nil, &ShapeError{Layout: p.Name, Reason: fmt.Sprintf("label %q has non-numeric entity id", label)}
		}
		key := strconv.Itoa(entity) + ":" + metric
		if prev, dup := seen[key]; dup {
			return nil, &ShapeError{Layout: p.Name, Reason: fmt.Sprintf("label %q repeated at positions %d and %d", label, prev, i)}
		}
		seen[key] = i

		// an unreadable value only nulls this element
		value := record.Null()
		if v, err := decode.Integer(values[i]); err == nil {
			value = record.Int(v)
		}
		entries = append(entries, Entry{
			Entity:   entity,
			Metric:   metric,
			Value:    value,
			Unit:     decode.Clean(units[i]),
			Position: i,
		})
	}
	return entries, nil
}

func (p ParallelArray) DecodeRows(rows []record.RawRow) ([]Entry, error) {
	if len(rows) != 1 {
		return nil, &ShapeError{Layout: p.Name, Reason: fmt.Sprintf("expected exactly 1 row, got %d", len(rows))}
	}
	return p.Decode(rows[0])
}
