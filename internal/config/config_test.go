package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "be-plt-approvals", cfg.Service.Name)
	assert.Equal(t, 8086, cfg.Server.Port)
	assert.Equal(t, 9086, cfg.Server.GRPCPort)
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout)
	assert.Empty(t, cfg.Database.URL)
	assert.True(t, cfg.Approvals.StrictApprovers)
	assert.Equal(t, "notifications.approvals", cfg.NATS.SubjectPrefix)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("STRICT_APPROVERS", "false")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("DATABASE_URL", "postgres://localhost/approvals")
	t.Setenv("DB_MAX_CONNS", "not-a-number")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.False(t, cfg.Approvals.StrictApprovers)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "postgres://localhost/approvals", cfg.Database.URL)
	assert.Equal(t, int32(10), cfg.Database.MaxConns)
}

func TestLoad_RejectsInvalidPool(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DB_MIN_CONNS", "20")
	t.Setenv("DB_MAX_CONNS", "5")

	_, err := Load()

	assert.Error(t, err)
}
