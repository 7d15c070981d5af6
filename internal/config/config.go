package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env       string          `mapstructure:"env"`
	Server    ServerConfig    `mapstructure:"server"`
	NLNOG     NLNOGConfig     `mapstructure:"nlnog"`
	SSH       SSHConfig       `mapstructure:"ssh"`
	Ping      PingConfig      `mapstructure:"ping"`
	Pools     PoolsConfig     `mapstructure:"pools"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

type NLNOGConfig struct {
	API             string `mapstructure:"api"`
	ParticipantsAPI string `mapstructure:"participants_api"`
	APITimeout      int    `mapstructure:"api_timeout"`
}

type SSHConfig struct {
	Username            string `mapstructure:"username"`
	KeyPath             string `mapstructure:"key_path"`
	ControlPathTemplate string `mapstructure:"control_path_template"`
	ConnectTimeout      int    `mapstructure:"connect_timeout"`
	CommandTimeout      int    `mapstructure:"command_timeout"`
}

type PingConfig struct {
	Count   int `mapstructure:"count"`
	Timeout int `mapstructure:"timeout"`
}

// PoolsConfig ограничивает параллелизм: отдельные пулы для стартового
// открытия сессий, фоновой сверки и выполнения замеров, чтобы медленная
// синхронизация не тормозила живые запросы.
type PoolsConfig struct {
	StartupOpens    int `mapstructure:"startup_opens"`
	ReconcileChecks int `mapstructure:"reconcile_checks"`
	ProbeWorkers    int `mapstructure:"probe_workers"`
}

type ReconcileConfig struct {
	Interval      int `mapstructure:"interval"`
	FailThreshold int `mapstructure:"fail_threshold"`
	RetryCooldown int `mapstructure:"retry_cooldown"`
}

type CacheConfig struct {
	Path string `mapstructure:"path"`
}

type KafkaConfig struct {
	Brokers []string    `mapstructure:"brokers"`
	Topics  KafkaTopics `mapstructure:"topics"`
}

type KafkaTopics struct {
	Results string `mapstructure:"results"`
}

func Load() (*Config, error) {

	setDefaults()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName("local")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("env", "local")

	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8000")

	// NLNOG API defaults
	viper.SetDefault("nlnog.api", "https://api.ring.nlnog.net/1.0/nodes/active")
	viper.SetDefault("nlnog.participants_api", "https://api.ring.nlnog.net/1.0/participants")
	viper.SetDefault("nlnog.api_timeout", 10)

	// SSH defaults
	viper.SetDefault("ssh.username", "rise")
	viper.SetDefault("ssh.key_path", "/app/ssh/nlnog")
	viper.SetDefault("ssh.control_path_template", "/tmp/ssh-control/nlnog-%r@%h:%p")
	viper.SetDefault("ssh.connect_timeout", 5)
	viper.SetDefault("ssh.command_timeout", 15)

	// Ping defaults
	viper.SetDefault("ping.count", 10)
	viper.SetDefault("ping.timeout", 5)

	// Worker pool defaults
	viper.SetDefault("pools.startup_opens", 50)
	viper.SetDefault("pools.reconcile_checks", 100)
	viper.SetDefault("pools.probe_workers", 100)

	// Reconciliation defaults
	viper.SetDefault("reconcile.interval", 300)
	viper.SetDefault("reconcile.fail_threshold", 3)
	viper.SetDefault("reconcile.retry_cooldown", 300)

	// Cache defaults
	viper.SetDefault("cache.path", "/tmp/ssh-control/node_cache.json")

	// Kafka defaults: пустой список брокеров выключает публикацию
	viper.SetDefault("kafka.brokers", []string{})
	viper.SetDefault("kafka.topics.results", "probe-results")
}

func (c *Config) GetAPITimeout() time.Duration {
	return time.Duration(c.NLNOG.APITimeout) * time.Second
}

func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.SSH.ConnectTimeout) * time.Second
}

func (c *Config) GetCommandTimeout() time.Duration {
	return time.Duration(c.SSH.CommandTimeout) * time.Second
}

func (c *Config) GetReconcileInterval() time.Duration {
	return time.Duration(c.Reconcile.Interval) * time.Second
}

func (c *Config) GetRetryCooldown() time.Duration {
	return time.Duration(c.Reconcile.RetryCooldown) * time.Second
}

// KafkaEnabled reports whether probe results should be published to Kafka.
func (c *Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}

// ControlPath expands the SSH control path template for a hostname the
// same way OpenSSH would (%r login name, %h hostname, %p port).
func (c *Config) ControlPath(hostname string) string {
	r := strings.NewReplacer("%r", c.SSH.Username, "%h", hostname, "%p", "22")
	return expandUser(r.Replace(c.SSH.ControlPathTemplate))
}

func expandUser(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
