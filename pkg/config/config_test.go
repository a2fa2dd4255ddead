package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSV(t *testing.T) {
	assert.Nil(t, CSV(""))
	assert.Equal(t, []string{"a:9092", "b:9092"}, CSV(" a:9092, ,b:9092 "))
}

func TestEnvIntDefault(t *testing.T) {
	t.Setenv("TS_INT", "42")
	assert.Equal(t, 42, EnvIntDefault("TS_INT", 1))

	t.Setenv("TS_INT", "nope")
	assert.Equal(t, 1, EnvIntDefault("TS_INT", 1))

	assert.Equal(t, 7, EnvIntDefault("TS_INT_UNSET", 7))
}

func TestLoadAndValidate(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("JWT_REFRESH_SECRET", "")

	err := Load().Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "JWT_REFRESH_SECRET")

	t.Setenv("DATABASE_URL", "sqlite://shop.db")
	t.Setenv("JWT_SECRET", "a")
	t.Setenv("JWT_REFRESH_SECRET", "b")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg := Load()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "products", cfg.ESIndex)
	assert.Equal(t, 8080, cfg.ServerPort)
}
