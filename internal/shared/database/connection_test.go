package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"refcache/internal/shared/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{
		Host:     "db",
		Port:     "5432",
		User:     "refcache",
		Password: "p@ss/word",
		Name:     "cache",
		SSLMode:  "disable",
	})
	assert.Equal(t, "postgres://refcache:p%40ss%2Fword@db:5432/cache?sslmode=disable", dsn)
}
