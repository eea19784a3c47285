// file: factory.go
package metricsink

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

func NewSink(cfg ConnectionConfig) (Sink, error) {
	if strings.TrimSpace(cfg.Type) == "" {
		return nil, errors.New("sink type is required")
	}
	switch strings.ToLower(cfg.Type) {
	case "mysql":
		return newMySQLSink(cfg)
	case "postgres", "postgresql":
		return newPostgresSink(cfg)
	case "mssql", "sqlserver":
		return newMSSQLSink(cfg)
	default:
		return nil, fmt.Errorf("unsupported sink type %q", cfg.Type)
	}
}

func openDatabase(driverName, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	return db, nil
}
