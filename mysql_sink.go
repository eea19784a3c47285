// file: mysql_sink.go
package metricsink

import (
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
)

type MySQLSink struct {
	*baseSink
}

var mysqlDialect = dialect{
	name:        "mysql",
	quote:       quoteMySQLIdent,
	placeholder: func(int) string { return "?" },
	maxSegments: 2,
	createTable: func(table string) (string, error) {
		quoted, err := quoteMySQLTable(table)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s ("+
			"`id` BIGINT AUTO_INCREMENT PRIMARY KEY, "+
			"`device` VARCHAR(255) NOT NULL, "+
			"`service` VARCHAR(255) NOT NULL, "+
			"`metric` VARCHAR(128) NOT NULL, "+
			"`value` DOUBLE NOT NULL, "+
			"`warn_level` DOUBLE NULL, "+
			"`crit_level` DOUBLE NULL, "+
			"`min_value` DOUBLE NULL, "+
			"`max_value` DOUBLE NULL, "+
			"`observed_at` DATETIME(3) NOT NULL, "+
			"INDEX `idx_device_observed` (`device`, `observed_at`))", quoted), nil
	},
	limitQuery: func(table, where string, limit int) string {
		return fmt.Sprintf("SELECT * FROM %s WHERE %s ORDER BY `observed_at` DESC LIMIT %d", table, where, limit)
	},
}

func newMySQLSink(cfg ConnectionConfig) (*MySQLSink, error) {
	if cfg.Port == 0 {
		cfg.Port = 3306
	}
	dsn := cfg.DSN
	if dsn == "" {
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
		sslMode := strings.ToLower(strings.TrimSpace(cfg.SSLMode))
		if sslMode == "disable" {
			dsn += "&tls=false"
		} else if sslMode != "" {
			dsn += "&tls=true"
		}
	}
	db, err := openDatabase("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql connection: %w", err)
	}
	base, err := newBaseSink(cfg, db, mysqlDialect)
	if err != nil {
		return nil, err
	}
	return &MySQLSink{base}, nil
}

func quoteMySQLTable(table string) (string, error) {
	quoted, _, err := quoteQualified(table, 2, quoteMySQLIdent)
	if err != nil {
		return "", fmt.Errorf("invalid mysql table: %w", err)
	}
	return quoted, nil
}

func quoteMySQLIdent(s string) string { return "`" + s + "`" }
