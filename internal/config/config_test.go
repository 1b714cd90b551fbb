package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("REDIS_ADDR", "")

	cfg := Load()

	assert.Equal(t, ":8084", cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, 5*time.Minute, cfg.Redis.TTL)
	assert.Equal(t, "./migrations", cfg.Migrations.Dir)
	assert.True(t, cfg.Migrations.AutoMigrate)
	assert.False(t, cfg.Migrations.SeedData)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Len(t, cfg.Kafka.Topics.All(), 4)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", ":9000")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092 ,")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("REPORT_CACHE_TTL", "30s")
	t.Setenv("DB_MAX_OPEN_CONNS", "not-a-number")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()

	assert.Equal(t, ":9000", cfg.Server.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Redis.TTL)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestDSN(t *testing.T) {
	db := DatabaseConfig{
		Host:     "db",
		Port:     "5433",
		Username: "gig",
		Password: "secret",
		Database: "gigs",
		SSLMode:  "disable",
	}
	assert.Equal(t, "host=db port=5433 user=gig password=secret dbname=gigs sslmode=disable", db.DSN())

	db.URL = "postgres://u:p@localhost/gigs"
	assert.Equal(t, "postgres://u:p@localhost/gigs", db.DSN())
}
