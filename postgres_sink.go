// file: postgres_sink.go
package metricsink

import (
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
)

type PostgresSink struct {
	*baseSink
}

var postgresDialect = dialect{
	name:        "postgres",
	quote:       quotePostgresIdent,
	placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	maxSegments: 2,
	createTable: func(table string) (string, error) {
		quoted, _, err := quoteQualified(table, 2, quotePostgresIdent)
		if err != nil {
			return "", fmt.Errorf("invalid postgres table: %w", err)
		}
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	"id" BIGSERIAL PRIMARY KEY,
	"device" TEXT NOT NULL,
	"service" TEXT NOT NULL,
	"metric" TEXT NOT NULL,
	"value" DOUBLE PRECISION NOT NULL,
	"warn_level" DOUBLE PRECISION NULL,
	"crit_level" DOUBLE PRECISION NULL,
	"min_value" DOUBLE PRECISION NULL,
	"max_value" DOUBLE PRECISION NULL,
	"observed_at" TIMESTAMPTZ NOT NULL
)`, quoted), nil
	},
	limitQuery: func(table, where string, limit int) string {
		return fmt.Sprintf(`SELECT * FROM %s WHERE %s ORDER BY "observed_at" DESC LIMIT %d`, table, where, limit)
	},
}

func newPostgresSink(cfg ConnectionConfig) (*PostgresSink, error) {
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	dsn := cfg.DSN
	if dsn == "" {
		sslMode := strings.ToLower(strings.TrimSpace(cfg.SSLMode))
		if sslMode == "" {
			sslMode = "disable"
		}
		dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, sslMode)
	}
	db, err := openDatabase("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	base, err := newBaseSink(cfg, db, postgresDialect)
	if err != nil {
		return nil, err
	}
	return &PostgresSink{base}, nil
}

func quotePostgresIdent(s string) string { return "\"" + s + "\"" }
