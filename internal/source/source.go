package source

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"unicode/utf8"

	"powerwatch-backend/internal/checks"
	"powerwatch-backend/internal/record"
)

var (
	ErrUnknownDevice = errors.New("unknown device")
	ErrUnknownTable  = errors.New("unknown table")
)

// Request identifies one logical table on one device.
type Request struct {
	Device    string       `json:"device"`
	Address   string       `json:"address,omitempty"`
	Community string       `json:"community,omitempty"`
	Table     checks.Table `json:"table"`
}

// Source fetches the raw rows of a table. Timeouts and retries are its
// concern; callers only see rows or an error.
type Source interface {
	Fetch(ctx context.Context, req Request) ([]record.RawRow, error)
}

// WireRow is the JSON form of a RawRow. Fields that are not valid UTF-8
// travel base64 encoded and are listed in Binary.
type WireRow struct {
	Fields []string `json:"fields"`
	Binary []int    `json:"binary,omitempty"`
}

func EncodeRow(row record.RawRow) WireRow {
	out := WireRow{Fields: make([]string, len(row))}
	for i, f := range row {
		if utf8.ValidString(f) {
			out.Fields[i] = f
			continue
		}
		out.Fields[i] = base64.StdEncoding.EncodeToString([]byte(f))
		out.Binary = append(out.Binary, i)
	}
	return out
}

func DecodeRow(w WireRow) (record.RawRow, error) {
	row := make(record.RawRow, len(w.Fields))
	copy(row, w.Fields)
	binary := append([]int(nil), w.Binary...)
	sort.Ints(binary)
	for _, i := range binary {
		if i < 0 || i >= len(row) {
			return nil, fmt.Errorf("binary index %d out of range", i)
		}
		b, err := base64.StdEncoding.DecodeString(row[i])
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		row[i] = string(b)
	}
	return row, nil
}
