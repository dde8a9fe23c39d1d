package connector

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/dashprobe/dashprobe/internal/model"
	"github.com/dashprobe/dashprobe/internal/query"
)

// ConnectionConfig holds database connection parameters for one backend.
type ConnectionConfig struct {
	Driver          string
	DSN             string
	SchemaName      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Connector is the backend collaborator of the schema probe: a connection
// handle plus the dialect details and relationship metadata the probe's
// queries depend on. One Connector is reused across every probe of a run.
type Connector interface {
	// Connection management
	Connect(cfg ConnectionConfig) error
	Disconnect() error
	Ping(ctx context.Context) error
	DB() *sqlx.DB

	// Dialect (satisfies query.Dialect)
	DriverName() string
	SchemaName() string
	QuoteIdentifier(name string) string
	ParameterPlaceholder(index int) string
	LimitStyle() query.LimitStyle

	// Relationship metadata
	PrimaryKey(ctx context.Context, table string) ([]string, error)
	ForeignKeys(ctx context.Context, table string) ([]model.ForeignKey, error)
}

// ConfigurePool applies the pool limits in cfg to db. Zero values keep the
// database/sql defaults.
func ConfigurePool(db *sqlx.DB, cfg ConnectionConfig) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

// SanitizeDSN normalizes a connection string before it reaches the driver.
// Supabase passwords are generated and often contain '@', '#' or '%', which
// make URL-style DSNs unparseable unless the userinfo is escaped. MySQL DSNs
// are rewritten into the tcp(host:port) form go-sql-driver expects. Other
// drivers get dsn back unchanged.
func SanitizeDSN(driver, dsn string) string {
	switch driver {
	case "postgres", "mssql":
		return escapeUserinfo(dsn)
	case "mysql":
		return normalizeMySQLDSN(dsn)
	default:
		return dsn
	}
}

// mysqlHostPort matches "user:pass@host:port/db" without a network wrapper.
var mysqlHostPort = regexp.MustCompile(`^(.+)@([^(@]+:\d+)(/.*)?$`)

// normalizeMySQLDSN accepts the shapes people actually paste:
//
//	user:pass@tcp(host:port)/db   already valid
//	user:pass@(host:port)/db      network name missing
//	user:pass@host:port/db        no wrapper at all
//
// and returns the driver's canonical form. A DSN none of these fix is
// returned as-is so the driver reports the problem.
func normalizeMySQLDSN(dsn string) string {
	if cfg, err := mysqldriver.ParseDSN(dsn); err == nil && (cfg.Net == "tcp" || cfg.Net == "unix") {
		return cfg.FormatDSN()
	}

	candidates := make([]string, 0, 2)
	if i := strings.LastIndex(dsn, "@("); i >= 0 {
		candidates = append(candidates, dsn[:i]+"@tcp"+dsn[i+1:])
	}
	if m := mysqlHostPort.FindStringSubmatch(dsn); m != nil {
		candidates = append(candidates, m[1]+"@tcp("+m[2]+")"+m[3])
	}
	for _, c := range candidates {
		if cfg, err := mysqldriver.ParseDSN(c); err == nil {
			return cfg.FormatDSN()
		}
	}
	return dsn
}

// escapeUserinfo percent-escapes the user and password of a scheme://
// DSN. The password runs from the first ':' to the last '@' before the
// host, so it may itself contain both characters.
func escapeUserinfo(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}

	var params string
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		rest, params = rest[:i], rest[i:]
	}

	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return dsn
	}
	userinfo, hostpath := rest[:at], rest[at+1:]
	user, pass, hasPass := strings.Cut(userinfo, ":")
	userinfo = url.PathEscape(user)
	if hasPass {
		userinfo += ":" + url.PathEscape(pass)
	}

	return scheme + "://" + userinfo + "@" + hostpath + params
}
