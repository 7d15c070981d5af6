package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "https://api.ring.nlnog.net/1.0/nodes/active", cfg.NLNOG.API)
	assert.Equal(t, "rise", cfg.SSH.Username)
	assert.Equal(t, 10, cfg.Ping.Count)
	assert.Equal(t, 50, cfg.Pools.StartupOpens)
	assert.Equal(t, 100, cfg.Pools.ProbeWorkers)
	assert.Equal(t, 3, cfg.Reconcile.FailThreshold)
	assert.Equal(t, 5*time.Second, cfg.GetConnectTimeout())
	assert.Equal(t, 15*time.Second, cfg.GetCommandTimeout())
	assert.Equal(t, 5*time.Minute, cfg.GetReconcileInterval())
	assert.Equal(t, 5*time.Minute, cfg.GetRetryCooldown())
	assert.False(t, cfg.KafkaEnabled())
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SSH_USERNAME", "probe")
	t.Setenv("PING_COUNT", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "probe", cfg.SSH.Username)
	assert.Equal(t, 5, cfg.Ping.Count)
}

func TestControlPath(t *testing.T) {
	cfg := &Config{SSH: SSHConfig{
		Username:            "rise",
		ControlPathTemplate: "/tmp/ssh-control/nlnog-%r@%h:%p",
	}}

	assert.Equal(t,
		"/tmp/ssh-control/nlnog-rise@host01.ring.nlnog.net:22",
		cfg.ControlPath("host01.ring.nlnog.net"))
}

func TestKafkaEnabled(t *testing.T) {
	cfg := &Config{}
	assert.False(t, cfg.KafkaEnabled())

	cfg.Kafka.Brokers = []string{"localhost:9092"}
	assert.True(t, cfg.KafkaEnabled())
}
