// file: sink.go
package metricsink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"powerwatch-backend/internal/metrics"
)

const (
	defaultRecentLimit = 100
	maxRecentLimit     = 1000
)

var sampleColumns = []string{"device", "service", "metric", "value", "warn_level", "crit_level", "min_value", "max_value", "observed_at"}

// Sink appends metric samples to a SQL table so they can be charted by
// tools outside the worker.
type Sink interface {
	TestConnection(ctx context.Context) error

	EnsureTable(ctx context.Context) error

	WriteSamples(ctx context.Context, device, service string, samples []metrics.Sample, at time.Time) error

	RecentSamples(ctx context.Context, device string, limit int) ([]map[string]any, error)

	Close() error
}

type ConnectionConfig struct {
	Type     string // mysql | postgres | mssql
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	Table    string
	// DSN overrides the connection string built from the fields above.
	DSN string
}

// dialect holds what differs between the SQL flavours.
type dialect struct {
	name        string
	quote       func(string) string
	placeholder func(n int) string
	maxSegments int
	createTable func(table string) (string, error)
	limitQuery  func(table, where string, limit int) string
}

type baseSink struct {
	cfg     ConnectionConfig
	db      *sql.DB
	dialect dialect
	table   string
}

func newBaseSink(cfg ConnectionConfig, db *sql.DB, d dialect) (*baseSink, error) {
	table, _, err := quoteQualified(cfg.Table, d.maxSegments, d.quote)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("invalid %s sink table: %w", d.name, err)
	}
	return &baseSink{cfg: cfg, db: db, dialect: d, table: table}, nil
}

func (b *baseSink) TestConnection(ctx context.Context) error {
	if err := b.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", b.dialect.name, err)
	}
	return nil
}

func (b *baseSink) EnsureTable(ctx context.Context) error {
	stmt, err := b.dialect.createTable(b.cfg.Table)
	if err != nil {
		return err
	}
	if _, err := b.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create %s sink table: %w", b.dialect.name, err)
	}
	return nil
}

func (b *baseSink) insertStatement() (string, error) {
	cols, err := quoteList(sampleColumns, b.dialect.quote)
	if err != nil {
		return "", err
	}
	marks := make([]string, len(sampleColumns))
	for i := range marks {
		marks[i] = b.dialect.placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", b.table, cols, strings.Join(marks, ", ")), nil
}

func (b *baseSink) WriteSamples(ctx context.Context, device, service string, samples []metrics.Sample, at time.Time) error {
	if len(samples) == 0 {
		return nil
	}
	query, err := b.insertStatement()
	if err != nil {
		return err
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s sink tx: %w", b.dialect.name, err)
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare %s sink insert: %w", b.dialect.name, err)
	}
	defer stmt.Close()
	for _, s := range samples {
		if _, err := stmt.ExecContext(ctx, sampleArgs(device, service, s, at)...); err != nil {
			return fmt.Errorf("insert %s sample %s: %w", b.dialect.name, s.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s sink tx: %w", b.dialect.name, err)
	}
	return nil
}

func sampleArgs(device, service string, s metrics.Sample, at time.Time) []any {
	var warn, crit, lo, hi sql.NullFloat64
	if s.Levels != nil {
		warn = sql.NullFloat64{Float64: s.Levels.Warn, Valid: true}
		crit = sql.NullFloat64{Float64: s.Levels.Crit, Valid: true}
	}
	if s.Range != nil {
		lo = sql.NullFloat64{Float64: s.Range.Min, Valid: true}
		hi = sql.NullFloat64{Float64: s.Range.Max, Valid: true}
	}
	return []any{device, service, s.Name, s.Value, warn, crit, lo, hi, at.UTC()}
}

func (b *baseSink) RecentSamples(ctx context.Context, device string, limit int) ([]map[string]any, error) {
	limit = normalizeRecentLimit(limit)
	where := fmt.Sprintf("%s = %s", b.dialect.quote("device"), b.dialect.placeholder(1))
	rows, err := b.db.QueryContext(ctx, b.dialect.limitQuery(b.table, where, limit), device)
	if err != nil {
		return nil, fmt.Errorf("query %s samples: %w", b.dialect.name, err)
	}
	defer rows.Close()
	out, err := scanRowsToMaps(rows)
	if err != nil {
		return nil, fmt.Errorf("scan %s samples: %w", b.dialect.name, err)
	}
	return out, nil
}

func (b *baseSink) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

func normalizeRecentLimit(limit int) int {
	if limit <= 0 {
		return defaultRecentLimit
	}
	if limit > maxRecentLimit {
		return maxRecentLimit
	}
	return limit
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

func splitIdentifier(ident string) ([]string, error) {
	trimmed := strings.TrimSpace(ident)
	if trimmed == "" {
		return nil, errors.New("identifier is empty")
	}
	parts := strings.Split(trimmed, ".")
	for _, part := range parts {
		if part == "" {
			return nil, errors.New("identifier contains empty segment")
		}
		if !identPattern.MatchString(part) {
			return nil, fmt.Errorf("identifier segment %q is invalid", part)
		}
	}
	return parts, nil
}

func quoteQualified(ident string, maxSegments int, quote func(string) string) (string, []string, error) {
	parts, err := splitIdentifier(ident)
	if err != nil {
		return "", nil, err
	}
	if maxSegments > 0 && len(parts) > maxSegments {
		return "", nil, fmt.Errorf("identifier %q has too many segments", ident)
	}
	quoted := make([]string, len(parts))
	for i, part := range parts {
		quoted[i] = quote(part)
	}
	return strings.Join(quoted, "."), parts, nil
}

func quoteList(names []string, quote func(string) string) (string, error) {
	if len(names) == 0 {
		return "", errors.New("no columns provided")
	}
	quoted := make([]string, len(names))
	for i, name := range names {
		parts, err := splitIdentifier(name)
		if err != nil || len(parts) != 1 {
			return "", fmt.Errorf("invalid column name %q", name)
		}
		quoted[i] = quote(name)
	}
	return strings.Join(quoted, ", "), nil
}

func scanRowsToMaps(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	results := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(cols))
		for i := range values {
			var v any
			values[i] = &v
		}
		if err := rows.Scan(values...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = normalizeValue(*(values[i].(*any)))
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	default:
		return t
	}
}
