package database

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

type Driver string

const (
	DriverMySQL    Driver = "mysql"
	DriverPostgres Driver = "postgres"
	DriverDuckDB   Driver = "duckdb"
)

// Params are the values the user submits through the connection form.
type Params struct {
	Driver   Driver `json:"driver"`
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
}

func ParseDriver(raw string) (Driver, error) {
	switch Driver(strings.ToLower(strings.TrimSpace(raw))) {
	case "", DriverMySQL:
		return DriverMySQL, nil
	case DriverPostgres, "postgresql", "pgx":
		return DriverPostgres, nil
	case DriverDuckDB:
		return DriverDuckDB, nil
	default:
		return "", fmt.Errorf("unsupported driver %q", raw)
	}
}

// Normalize trims every field, resolves driver aliases and fills the
// driver's default port.
func (p Params) Normalize() (Params, error) {
	driver, err := ParseDriver(string(p.Driver))
	if err != nil {
		return Params{}, err
	}
	out := Params{
		Driver:   driver,
		Host:     strings.TrimSpace(p.Host),
		Port:     strings.TrimSpace(p.Port),
		User:     strings.TrimSpace(p.User),
		Password: p.Password,
		Database: strings.TrimSpace(p.Database),
	}
	if out.Port == "" {
		out.Port = defaultPort(driver)
	}
	return out, nil
}

func (p Params) Validate() error {
	if p.Driver == DriverDuckDB {
		return nil
	}
	if p.Host == "" {
		return fmt.Errorf("host is required")
	}
	port, err := strconv.Atoi(p.Port)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port %q", p.Port)
	}
	if p.User == "" {
		return fmt.Errorf("user is required")
	}
	if p.Database == "" {
		return fmt.Errorf("database name is required")
	}
	return nil
}

// DSN renders the driver-specific connection string. The password is escaped
// for every driver; callers must never log the result.
func (p Params) DSN(connectTimeout time.Duration) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	switch p.Driver {
	case DriverMySQL:
		cfg := mysql.NewConfig()
		cfg.User = p.User
		cfg.Passwd = p.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(p.Host, p.Port)
		cfg.DBName = p.Database
		cfg.ParseTime = true
		if connectTimeout > 0 {
			cfg.Timeout = connectTimeout
		}
		return cfg.FormatDSN(), nil
	case DriverPostgres:
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(p.User, p.Password),
			Host:   net.JoinHostPort(p.Host, p.Port),
			Path:   "/" + p.Database,
		}
		if connectTimeout > 0 {
			seconds := int(connectTimeout.Round(time.Second) / time.Second)
			if seconds < 1 {
				seconds = 1
			}
			u.RawQuery = url.Values{"connect_timeout": []string{strconv.Itoa(seconds)}}.Encode()
		}
		return u.String(), nil
	case DriverDuckDB:
		return p.Database, nil
	default:
		return "", fmt.Errorf("unsupported driver %q", p.Driver)
	}
}

// Redacted describes the target without credentials, for logs and UI.
func (p Params) Redacted() string {
	switch p.Driver {
	case DriverDuckDB:
		if p.Database == "" {
			return "duckdb::memory:"
		}
		return "duckdb:" + p.Database
	default:
		return fmt.Sprintf("%s://%s@%s/%s", p.Driver, p.User, net.JoinHostPort(p.Host, p.Port), p.Database)
	}
}

func defaultPort(driver Driver) string {
	switch driver {
	case DriverMySQL:
		return "3306"
	case DriverPostgres:
		return "5432"
	default:
		return ""
	}
}
