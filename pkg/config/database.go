package config

import (
	"fmt"

	dbutils "github.com/tendant/db-utils/db"
)

// DatabaseConfig holds PostgreSQL database configuration
type DatabaseConfig struct {
	Host     string `env:"GUARD_PG_HOST" env-default:"localhost"`
	Port     uint16 `env:"GUARD_PG_PORT" env-default:"5432"`
	Database string `env:"GUARD_PG_DATABASE" env-default:"login_guard"`
	User     string `env:"GUARD_PG_USER" env-default:"guard"`
	Password string `env:"GUARD_PG_PASSWORD" env-default:"pwd"`
}

// ToDatabaseURL converts the config to a PostgreSQL connection URL
func (d DatabaseConfig) ToDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Database)
}

// ToDbConfig converts the config to a db-utils DbConfig
func (d DatabaseConfig) ToDbConfig() dbutils.DbConfig {
	return dbutils.DbConfig{
		Host:     d.Host,
		Port:     d.Port,
		Database: d.Database,
		User:     d.User,
		Password: d.Password,
	}
}

func (d DatabaseConfig) validate() ValidationErrors {
	return CollectErrors(
		RequireNonEmpty("database.host", d.Host),
		RequireValidPort("database.port", d.Port),
		RequireNonEmpty("database.database", d.Database),
		RequireNonEmpty("database.user", d.User),
	)
}
