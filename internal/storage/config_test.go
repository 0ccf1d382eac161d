package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Run("defaults", func(t *testing.T) {
		cfg := LoadConfig()

		assert.Equal(t, 25, cfg.MaxOpenConns)
		assert.Equal(t, 5, cfg.MaxIdleConns)
		assert.Equal(t, 30*time.Minute, cfg.ConnMaxLifetime)
		assert.Equal(t, 10*time.Minute, cfg.ConnMaxIdleTime)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://conductor:secret@db:5432/conductor")
		t.Setenv("CONDUCTOR_DB_MAX_OPEN_CONNS", "50")
		t.Setenv("CONDUCTOR_DB_CONN_MAX_LIFETIME", "1h")

		cfg := LoadConfig()

		require.NoError(t, cfg.Validate())
		assert.Equal(t, 50, cfg.MaxOpenConns)
		assert.Equal(t, time.Hour, cfg.ConnMaxLifetime)
	})
}

func TestConfigValidate(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cfg := &Config{databaseURL: "   "}

	assert.ErrorIs(t, cfg.Validate(), ErrDatabaseURLEmpty)
}

func TestMaskDatabaseURL(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name string
		url  string
		want string
	}{
		{
			name: "password masked",
			url:  "postgres://conductor:secret@db:5432/conductor?sslmode=disable",
			want: "postgres://conductor:***@db:5432/conductor?sslmode=disable",
		},
		{
			name: "no userinfo",
			url:  "postgres://db:5432/conductor",
			want: "postgres://db:5432/conductor",
		},
		{
			name: "username without password",
			url:  "postgres://conductor@db:5432/conductor",
			want: "postgres://conductor@db:5432/conductor",
		},
		{
			name: "key-value DSN passes through",
			url:  "host=db port=5432 user=conductor",
			want: "host=db port=5432 user=conductor",
		},
		{
			name: "empty",
			url:  "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{databaseURL: tt.url}

			assert.Equal(t, tt.want, cfg.MaskDatabaseURL())
		})
	}
}
