package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"bizdesk"`
	Password string `env:"PASSWORD"                envDefault:"bizdesk"`
	Name     string `env:"NAME"                    envDefault:"bizdesk"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the credentials schema is applied on connect.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// DSN renders the connection URL understood by the pgx driver.
func (c DBConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Name,
	}
	q := url.Values{}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// String hides the password.
func (c DBConfig) String() string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s", c.User, c.Host, c.Port, c.Name)
}

// RedisConfig locates the Redis deployment backing the shared credential store.
//
// URI is either a redis:// (or rediss://) URL or a comma-separated list of host:port
// addresses. Several addresses select a cluster client; MasterName selects sentinel failover
// with the addresses treated as sentinels.
type RedisConfig struct {
	URI        string `env:"URI"         envDefault:"localhost:6379"`
	Password   string `env:"PASSWORD"    envDefault:""`
	DB         int    `env:"DB"          envDefault:"0"`
	MasterName string `env:"MASTER_NAME" envDefault:""`
}
