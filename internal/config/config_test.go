package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/taskhub")
	t.Setenv("ADMIN_IDS", "11,22")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, int32(20), cfg.DBMaxConns)
	assert.Equal(t, "@every 1m", cfg.TaskStatusCron)
	assert.Equal(t, 3, cfg.StatusJobAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.StatusJobRetryDelay)
	assert.Equal(t, -1, cfg.DefaultTaskRejectTimes)
	assert.Equal(t, "0.1", cfg.DefaultCommissionRate)
	assert.True(t, cfg.IsAdmin(22))
	assert.False(t, cfg.IsAdmin(33))
	assert.Equal(t, "11,22", cfg.AdminIDsString())
}

func TestLoad_Errors(t *testing.T) {
	t.Run("empty database url", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("unset database url", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		require.NoError(t, os.Unsetenv("DATABASE_URL"))
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("zero attempts", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/taskhub")
		t.Setenv("STATUS_JOB_MAX_ATTEMPTS", "0")
		_, err := Load()
		assert.Error(t, err)
	})
}
