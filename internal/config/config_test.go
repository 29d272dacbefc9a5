package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.AgentCallLowTimeout)
	assert.Equal(t, 60*time.Second, cfg.AgentCallHighTimeout)
	assert.Equal(t, 2*time.Minute, cfg.VolumeTimeout)
	assert.Equal(t, 5, cfg.MaxInstancesPerTenant)
	assert.Equal(t, 20, cfg.MaxVolumesPerTenant)
	assert.Equal(t, "mysql", cfg.DefaultServiceType)
	assert.True(t, cfg.VolumeSupport)
	assert.False(t, cfg.DNSSupport)
	assert.Equal(t, []string{"admin"}, cfg.AdminRoles)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("VOLUME_TIME_OUT", "30s")
	t.Setenv("DNS_SUPPORT", "true")
	t.Setenv("MAX_INSTANCES_PER_TENANT", "2")
	t.Setenv("ADMIN_ROLES", "admin, operator")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.VolumeTimeout)
	assert.True(t, cfg.DNSSupport)
	assert.Equal(t, 2, cfg.MaxInstancesPerTenant)
	assert.Equal(t, []string{"admin", "operator"}, cfg.AdminRoles)
}

func TestValidate_Worker(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.Validate("worker"))

	cfg.CoreDatabaseURL = "postgres://localhost/dbaas"
	assert.NoError(t, cfg.Validate("worker"))

	cfg.DNSSupport = true
	assert.Error(t, cfg.Validate("worker"))

	cfg.PowerDNSDatabaseURL = "postgres://localhost/pdns"
	assert.NoError(t, cfg.Validate("worker"))
}

func TestValidate_GuestAgent(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.Validate("guestagent"))
	cfg.GuestInstanceID = "inst-1"
	assert.NoError(t, cfg.Validate("guestagent"))
}

func TestHeartbeatTTL(t *testing.T) {
	cfg := &Config{AgentHeartbeatTime: 10 * time.Second}
	assert.Equal(t, 20*time.Second, cfg.HeartbeatTTL())
}
