package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	CoreDatabaseURL     string
	PowerDNSDatabaseURL string
	TemporalAddress     string
	HTTPListenAddr      string
	MetricsListenAddr   string
	LogLevel            string
	ServiceName         string
	RegionID            string

	// Substrate endpoints and credentials, consumed by the adapters only.
	ComputeURL          string
	VolumeURL           string
	SubstrateToken      string
	ObjectStoreEndpoint string
	ObjectStoreKey      string
	ObjectStoreSecret   string
	BackupContainer     string
	ImageID             string

	// Feature flags.
	VolumeSupport         bool
	DNSSupport            bool
	UseServerVolumeCreate bool

	DNSDomain string

	// Timeouts.
	AgentCallLowTimeout  time.Duration
	AgentCallHighTimeout time.Duration
	AgentSnapshotTimeout time.Duration
	ServerDeleteTimeout  time.Duration
	VolumeTimeout        time.Duration
	RebootTimeout        time.Duration
	ResizeTimeout        time.Duration
	RevertTimeout        time.Duration
	DNSTimeout           time.Duration
	StateChangeWaitTime  time.Duration
	AgentHeartbeatTime   time.Duration

	// Quota defaults.
	MaxInstancesPerTenant int
	MaxVolumesPerTenant   int
	MaxAcceptedVolumeSize int
	MaxBackupsPerTenant   int

	// Pagination defaults.
	InstancesPageSize int
	DatabasesPageSize int
	UsersPageSize     int

	// AdminRoles are the upstream role names that grant admin scope.
	AdminRoles []string

	// AgentToken authenticates guest agents on the internal write path.
	AgentToken string

	// GuestAPIVersion caps the guest method version the control plane will
	// address.
	GuestAPIVersion string

	DefaultServiceType string

	// Guest agent settings: the owning instance, where to reach core-api,
	// and the local database.
	GuestInstanceID string
	CoreAPIURL      string
	MySQLDSN        string
	DataMountPoint  string
}

func Load() (*Config, error) {
	cfg := &Config{
		CoreDatabaseURL:     getEnv("CORE_DATABASE_URL", ""),
		PowerDNSDatabaseURL: getEnv("POWERDNS_DATABASE_URL", ""),
		TemporalAddress:     getEnv("TEMPORAL_ADDRESS", "localhost:7233"),
		HTTPListenAddr:      getEnv("HTTP_LISTEN_ADDR", ":8090"),
		MetricsListenAddr:   getEnv("METRICS_LISTEN_ADDR", ":9090"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		ServiceName:         getEnv("SERVICE_NAME", "dbaas"),
		RegionID:            getEnv("REGION_ID", ""),

		ComputeURL:          getEnv("COMPUTE_URL", ""),
		VolumeURL:           getEnv("VOLUME_URL", ""),
		SubstrateToken:      getEnv("SUBSTRATE_TOKEN", ""),
		ObjectStoreEndpoint: getEnv("OBJECTSTORE_ENDPOINT", ""),
		ObjectStoreKey:      getEnv("OBJECTSTORE_ACCESS_KEY", ""),
		ObjectStoreSecret:   getEnv("OBJECTSTORE_SECRET_KEY", ""),
		BackupContainer:     getEnv("BACKUP_CONTAINER", "database-backups"),
		ImageID:             getEnv("GUEST_IMAGE_ID", ""),

		VolumeSupport:         getBool("VOLUME_SUPPORT", true),
		DNSSupport:            getBool("DNS_SUPPORT", false),
		UseServerVolumeCreate: getBool("USE_SERVER_VOLUME_CREATE", false),

		DNSDomain: getEnv("DNS_DOMAIN", "db.localhost"),

		AgentCallLowTimeout:  getDuration("AGENT_CALL_LOW_TIMEOUT", 5*time.Second),
		AgentCallHighTimeout: getDuration("AGENT_CALL_HIGH_TIMEOUT", 60*time.Second),
		AgentSnapshotTimeout: getDuration("AGENT_SNAPSHOT_TIMEOUT", 10*time.Minute),
		ServerDeleteTimeout:  getDuration("SERVER_DELETE_TIME_OUT", 2*time.Minute),
		VolumeTimeout:        getDuration("VOLUME_TIME_OUT", 2*time.Minute),
		RebootTimeout:        getDuration("REBOOT_TIME_OUT", 2*time.Minute),
		ResizeTimeout:        getDuration("RESIZE_TIME_OUT", 5*time.Minute),
		RevertTimeout:        getDuration("REVERT_TIME_OUT", 5*time.Minute),
		DNSTimeout:           getDuration("DNS_TIME_OUT", 2*time.Minute),
		StateChangeWaitTime:  getDuration("STATE_CHANGE_WAIT_TIME", 3*time.Minute),
		AgentHeartbeatTime:   getDuration("AGENT_HEARTBEAT_TIME", 10*time.Second),

		MaxInstancesPerTenant: getInt("MAX_INSTANCES_PER_TENANT", 5),
		MaxVolumesPerTenant:   getInt("MAX_VOLUMES_PER_TENANT", 20),
		MaxAcceptedVolumeSize: getInt("MAX_ACCEPTED_VOLUME_SIZE", 10),
		MaxBackupsPerTenant:   getInt("MAX_BACKUPS_PER_TENANT", 50),

		InstancesPageSize: getInt("INSTANCES_PAGE_SIZE", 20),
		DatabasesPageSize: getInt("DATABASES_PAGE_SIZE", 20),
		UsersPageSize:     getInt("USERS_PAGE_SIZE", 20),

		AdminRoles: splitList(getEnv("ADMIN_ROLES", "admin")),

		AgentToken:      getEnv("AGENT_TOKEN", ""),
		GuestAPIVersion: getEnv("GUEST_API_VERSION", "1.0"),

		DefaultServiceType: getEnv("SERVICE_TYPE", "mysql"),

		GuestInstanceID: getEnv("GUEST_INSTANCE_ID", ""),
		CoreAPIURL:      getEnv("CORE_API_URL", "http://localhost:8090"),
		MySQLDSN:        getEnv("MYSQL_DSN", "root@tcp(localhost:3306)/"),
		DataMountPoint:  getEnv("DATA_MOUNT_POINT", "/var/lib/mysql"),
	}

	return cfg, nil
}

// Validate checks the settings a given binary role cannot run without.
func (c *Config) Validate(role string) error {
	switch role {
	case "worker", "core-api":
		if c.CoreDatabaseURL == "" {
			return fmt.Errorf("CORE_DATABASE_URL is required for %s", role)
		}
		if c.DNSSupport && c.PowerDNSDatabaseURL == "" {
			return fmt.Errorf("POWERDNS_DATABASE_URL is required when DNS_SUPPORT is on")
		}
	case "guestagent":
		if c.GuestInstanceID == "" {
			return fmt.Errorf("GUEST_INSTANCE_ID is required for guestagent")
		}
	}
	return nil
}

// HeartbeatTTL is the staleness bound for agent heartbeats: twice the
// reporting interval, so one dropped report does not flap liveness.
func (c *Config) HeartbeatTTL() time.Duration {
	return 2 * c.AgentHeartbeatTime
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
