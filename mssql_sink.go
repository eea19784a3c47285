// file: mssql_sink.go
package metricsink

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	_ "github.com/microsoft/go-mssqldb"
)

type MSSQLSink struct {
	*baseSink
}

var mssqlDialect = dialect{
	name:        "mssql",
	quote:       quoteMSSQLIdent,
	placeholder: func(n int) string { return "@p" + strconv.Itoa(n) },
	maxSegments: 2,
	createTable: func(table string) (string, error) {
		schema, name, err := parseMSSQLTable(table)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("IF OBJECT_ID(N'%s.%s', N'U') IS NULL CREATE TABLE [%s].[%s] ("+
			"[id] BIGINT IDENTITY(1,1) PRIMARY KEY, "+
			"[device] NVARCHAR(255) NOT NULL, "+
			"[service] NVARCHAR(255) NOT NULL, "+
			"[metric] NVARCHAR(128) NOT NULL, "+
			"[value] FLOAT NOT NULL, "+
			"[warn_level] FLOAT NULL, "+
			"[crit_level] FLOAT NULL, "+
			"[min_value] FLOAT NULL, "+
			"[max_value] FLOAT NULL, "+
			"[observed_at] DATETIME2 NOT NULL)", schema, name, schema, name), nil
	},
	limitQuery: func(table, where string, limit int) string {
		return fmt.Sprintf("SELECT TOP (%d) * FROM %s WHERE %s ORDER BY [observed_at] DESC", limit, table, where)
	},
}

func newMSSQLSink(cfg ConnectionConfig) (*MSSQLSink, error) {
	if cfg.Port == 0 {
		cfg.Port = 1433
	}
	dsn := cfg.DSN
	if dsn == "" {
		user := url.QueryEscape(cfg.User)
		pass := url.QueryEscape(cfg.Password)
		encrypt := "true"
		if strings.ToLower(strings.TrimSpace(cfg.SSLMode)) == "disable" {
			encrypt = "disable"
		}
		dsn = fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=%s&encrypt=%s", user, pass, cfg.Host, cfg.Port, cfg.Database, encrypt)
	}
	db, err := openDatabase("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mssql connection: %w", err)
	}
	base, err := newBaseSink(cfg, db, mssqlDialect)
	if err != nil {
		return nil, err
	}
	return &MSSQLSink{base}, nil
}

// parseMSSQLTable splits schema.name, defaulting the schema to dbo.
func parseMSSQLTable(table string) (string, string, error) {
	_, parts, err := quoteQualified(table, 2, quoteMSSQLIdent)
	if err != nil {
		return "", "", fmt.Errorf("invalid mssql table: %w", err)
	}
	if len(parts) == 1 {
		return "dbo", parts[0], nil
	}
	return parts[0], parts[1], nil
}

func quoteMSSQLIdent(s string) string { return "[" + s + "]" }
