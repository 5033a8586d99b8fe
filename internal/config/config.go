package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/vibesql/shardmerge/internal/datasource"
	"github.com/vibesql/shardmerge/internal/executor"
	"github.com/vibesql/shardmerge/internal/merge"
	"github.com/vibesql/shardmerge/internal/query"
)

// EnvPrefix prefixes every environment override, e.g. SHARDMERGE_SERVER_PORT
const EnvPrefix = "SHARDMERGE"

// Connection modes of the query runner
const (
	ConnectionModeStream = string(query.ModeStream)
	ConnectionModeMemory = string(query.ModeMemory)
)

type Config struct {
	Server      ServerConfig                 `mapstructure:"server"`
	Log         LogConfig                    `mapstructure:"log"`
	Executor    ExecutorConfig               `mapstructure:"executor"`
	Query       QueryConfig                  `mapstructure:"query"`
	Merge       MergeConfig                  `mapstructure:"merge"`
	DataSources map[string]datasource.Config `mapstructure:"datasources"`
}

type ServerConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// Address returns host:port
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ExecutorConfig struct {
	PoolMode string `mapstructure:"pool_mode"`
	PoolSize int    `mapstructure:"pool_size"`
	Serial   bool   `mapstructure:"serial"`
}

type QueryConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxResultRows  int           `mapstructure:"max_result_rows"`
	MaxShardRows   int           `mapstructure:"max_shard_rows"`
	ConnectionMode string        `mapstructure:"connection_mode"`
}

type MergeConfig struct {
	Dialect string `mapstructure:"dialect"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 5180)
	v.SetDefault("server.max_connections", 16)
	v.SetDefault("log.level", "INFO")
	v.SetDefault("log.format", "text")
	v.SetDefault("executor.pool_mode", string(executor.PoolModeDefault))
	v.SetDefault("executor.pool_size", 0)
	v.SetDefault("executor.serial", false)
	v.SetDefault("query.timeout", 5*time.Second)
	v.SetDefault("query.max_result_rows", 1000)
	v.SetDefault("query.max_shard_rows", 100000)
	v.SetDefault("query.connection_mode", ConnectionModeMemory)
	v.SetDefault("merge.dialect", string(merge.DialectMySQL))
}

// Load reads the optional YAML file at path, then SHARDMERGE_* environment
// variables, on top of the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot start with
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	if c.Server.MaxConnections <= 0 {
		errs = append(errs, fmt.Errorf("server.max_connections must be positive"))
	}
	if _, err := executor.PoolSize(executor.PoolMode(c.Executor.PoolMode), c.Executor.PoolSize, len(c.DataSources)); err != nil {
		errs = append(errs, fmt.Errorf("executor: %w", err))
	}
	if c.Query.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("query.timeout must be positive"))
	}
	if c.Query.MaxShardRows < 0 {
		errs = append(errs, fmt.Errorf("query.max_shard_rows must not be negative"))
	}
	switch c.Query.ConnectionMode {
	case ConnectionModeStream, ConnectionModeMemory:
	default:
		errs = append(errs, fmt.Errorf("query.connection_mode %q is not stream or memory", c.Query.ConnectionMode))
	}
	if _, err := merge.ParseDialect(c.Merge.Dialect); err != nil {
		errs = append(errs, fmt.Errorf("merge.dialect: %w", err))
	}

	if len(c.DataSources) == 0 {
		errs = append(errs, fmt.Errorf("at least one data source is required"))
	}
	for name, ds := range c.DataSources {
		if !datasource.SupportedDriver(ds.Driver) {
			errs = append(errs, fmt.Errorf("datasources.%s: unsupported driver %q", name, ds.Driver))
		}
		if ds.ConnString() == "" {
			errs = append(errs, fmt.Errorf("datasources.%s: dsn or host is required", name))
		}
	}

	return errors.Join(errs...)
}

// PoolSize resolves the executor pool size
func (c *Config) PoolSize() int {
	size, err := executor.PoolSize(executor.PoolMode(c.Executor.PoolMode), c.Executor.PoolSize, len(c.DataSources))
	if err != nil {
		return 1
	}
	return size
}
