package internal

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "HEAPDB"

var ErrInvalidConfig = errors.New("config: invalid value")

type HeapDBConfig struct {
	AppName string `mapstructure:"app_name"`

	Storage struct {
		DataDir    string `mapstructure:"data_dir"`
		PageSize   int    `mapstructure:"page_size"`
		SchemaFile string `mapstructure:"schema_file"`
	} `mapstructure:"storage"`

	BufferPool struct {
		Capacity    int           `mapstructure:"capacity"`
		LockTimeout time.Duration `mapstructure:"lock_timeout"`
	} `mapstructure:"buffer_pool"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "heapdb")
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.page_size", 4096)
	v.SetDefault("storage.schema_file", "")
	v.SetDefault("buffer_pool.capacity", 50)
	v.SetDefault("buffer_pool.lock_timeout", 2*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// LoadConfig layers, lowest first: defaults, the YAML file at path (skipped
// when path is empty), HEAPDB_* environment variables, and flags that were
// set explicitly. Flags are bound by key name, e.g. "storage.data_dir".
func LoadConfig(path string, flags *pflag.FlagSet) (*HeapDBConfig, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	var cfg HeapDBConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *HeapDBConfig) Validate() error {
	if c.Storage.PageSize <= 0 {
		return fmt.Errorf("%w: storage.page_size=%d", ErrInvalidConfig, c.Storage.PageSize)
	}
	if c.BufferPool.Capacity <= 0 {
		return fmt.Errorf("%w: buffer_pool.capacity=%d", ErrInvalidConfig, c.BufferPool.Capacity)
	}
	if c.BufferPool.LockTimeout < 0 {
		return fmt.Errorf("%w: buffer_pool.lock_timeout=%s", ErrInvalidConfig, c.BufferPool.LockTimeout)
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("%w: storage.data_dir is empty", ErrInvalidConfig)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format=%q", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}

func (c *HeapDBConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("%w: log.level=%q", ErrInvalidConfig, c.Log.Level)
	}
	return lvl, nil
}

// NewLogger builds the process logger described by the log section.
func (c *HeapDBConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	lvl, err := c.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
