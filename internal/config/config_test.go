package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"localhost:9042"}, cfg.Cassandra.Hosts)
	assert.Equal(t, "nats://localhost:4222", cfg.Nats.URL)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 3600, cfg.Engine.WindowRetention)
	assert.Equal(t, 100, cfg.Engine.MaxCycle)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CASSANDRA_HOSTS", "c1:9042, c2:9042")
	t.Setenv("DB_PORT", "5444")
	t.Setenv("ENGINE_MAX_CYCLE", "500")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"c1:9042", "c2:9042"}, cfg.Cassandra.Hosts)
	assert.Equal(t, 5444, cfg.Database.Port)
	assert.Equal(t, 500, cfg.Engine.MaxCycle)
}

func TestLoad_InvalidIntFallsBack(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5432, cfg.Database.Port)
}

func TestLoad_EntitiesMustBePaired(t *testing.T) {
	t.Setenv("ENTITIES_BASE_URL", "http://entities.local")
	t.Setenv("ENTITIES_AUTH_URL", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestDatabaseConfig_GetDSN(t *testing.T) {
	cfg := &DatabaseConfig{
		Host: "db", Port: 5432, User: "u", Password: "p",
		Database: "hydrometers", SSLMode: "disable",
	}
	assert.Equal(t,
		"host=db port=5432 user=u password=p dbname=hydrometers sslmode=disable",
		cfg.GetDSN(),
	)
}
