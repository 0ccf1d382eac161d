package storage

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/conductor-io/conductor/internal/config"
)

// Pool defaults sized for a control plane: traffic is operator-driven, not
// event-driven, so a modest pool is plenty.
const (
	defaultPoolMaxOpen     = 25
	defaultPoolMaxIdle     = 5
	defaultPoolMaxLifetime = 30 * time.Minute
	defaultPoolMaxIdleTime = 10 * time.Minute
)

// ErrDatabaseURLEmpty is returned when no connection string is configured.
var ErrDatabaseURLEmpty = errors.New("database URL cannot be empty")

// Config holds the PostgreSQL connection string and pool tuning. The
// connection string is unexported so it cannot leak through struct logging;
// MaskDatabaseURL is the loggable form.
type Config struct {
	databaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LoadConfig reads the connection settings from the environment.
// DATABASE_URL is shared with the migrator CLI; the pool knobs are
// service-local.
func LoadConfig() *Config {
	return &Config{
		databaseURL:     config.GetEnvStr("DATABASE_URL", ""),
		MaxOpenConns:    config.GetEnvInt("CONDUCTOR_DB_MAX_OPEN_CONNS", defaultPoolMaxOpen),
		MaxIdleConns:    config.GetEnvInt("CONDUCTOR_DB_MAX_IDLE_CONNS", defaultPoolMaxIdle),
		ConnMaxLifetime: config.GetEnvDuration("CONDUCTOR_DB_CONN_MAX_LIFETIME", defaultPoolMaxLifetime),
		ConnMaxIdleTime: config.GetEnvDuration("CONDUCTOR_DB_CONN_MAX_IDLE_TIME", defaultPoolMaxIdleTime),
	}
}

// Validate reports whether the configuration can open a connection.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.databaseURL) == "" {
		return ErrDatabaseURLEmpty
	}

	return nil
}

// MaskDatabaseURL returns the connection string with any password replaced,
// safe for logging. Non-URL connection strings (key=value DSN form) are
// returned unchanged since they carry no parseable userinfo.
func (c *Config) MaskDatabaseURL() string {
	u, err := url.Parse(c.databaseURL)
	if err != nil || u.User == nil {
		return c.databaseURL
	}

	if _, hasPassword := u.User.Password(); !hasPassword {
		return c.databaseURL
	}

	u.User = url.UserPassword(u.User.Username(), "***")

	return u.String()
}
