package source

import (
	"context"
	"fmt"
	"time"

	"powerwatch-backend/internal/record"
	"powerwatch-backend/internal/security"
)

// Bounded applies fetch timeouts and result size limits to another source.
type Bounded struct {
	Source Source
	Limits security.Limits
}

func (b Bounded) Fetch(ctx context.Context, req Request) ([]record.RawRow, error) {
	if b.Limits.MaxFetchDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.Limits.MaxFetchDuration)
		defer cancel()
	}
	start := time.Now()
	rows, err := b.Source.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := b.Limits.CheckRows(rows); err != nil {
		return nil, fmt.Errorf("%s after %s: %w", req.Table.Name, time.Since(start).Round(time.Millisecond), err)
	}
	return rows, nil
}
