package security

import (
	"fmt"
	"time"

	"powerwatch-backend/internal/record"
)

type Limits struct {
	MinPollSeconds     int
	MaxPollSeconds     int
	MaxFetchDuration   time.Duration
	MaxConcurrentPolls int
	MaxRows            int
	MaxRowFields       int
	MaxFieldBytes      int
}

func DefaultLimits() Limits {
	return Limits{
		MinPollSeconds:     10,
		MaxPollSeconds:     3600,
		MaxFetchDuration:   5 * time.Second,
		MaxConcurrentPolls: 8,
		MaxRows:            64,
		MaxRowFields:       256,
		MaxFieldBytes:      1024,
	}
}

// CheckRows rejects fetch results larger than any known table layout.
func (l Limits) CheckRows(rows []record.RawRow) error {
	if l.MaxRows > 0 && len(rows) > l.MaxRows {
		return fmt.Errorf("%d rows exceeds limit %d", len(rows), l.MaxRows)
	}
	for i, row := range rows {
		if l.MaxRowFields > 0 && len(row) > l.MaxRowFields {
			return fmt.Errorf("row %d has %d fields, limit %d", i, len(row), l.MaxRowFields)
		}
		if l.MaxFieldBytes <= 0 {
			continue
		}
		for j, f := range row {
			if len(f) > l.MaxFieldBytes {
				return fmt.Errorf("row %d field %d is %d bytes, limit %d", i, j, len(f), l.MaxFieldBytes)
			}
		}
	}
	return nil
}

func (l Limits) CheckPollInterval(seconds int) error {
	if seconds < l.MinPollSeconds || seconds > l.MaxPollSeconds {
		return fmt.Errorf("poll interval %ds outside %d..%d", seconds, l.MinPollSeconds, l.MaxPollSeconds)
	}
	return nil
}
