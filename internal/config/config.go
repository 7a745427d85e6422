package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"propsync/internal/model"

	"github.com/spf13/viper"
)

// DirName is the per-workspace and per-user settings directory.
const DirName = ".propsync"

type Config struct {
	Home                string                 `mapstructure:"home"`
	RemoteURL           string                 `mapstructure:"remote_url"`
	ClientID            string                 `mapstructure:"client_id"`
	ClientSecret        string                 `mapstructure:"client_secret"`
	TokenURL            string                 `mapstructure:"token_url"`
	Token               string                 `mapstructure:"token"`
	DeployWithExtension bool                   `mapstructure:"deploy_with_extension"`
	ChunkSize           int64                  `mapstructure:"chunk_size"`
	InlineThreshold     int64                  `mapstructure:"inline_threshold"`
	RequestTimeout      time.Duration          `mapstructure:"request_timeout"`
	BatchSize           int                    `mapstructure:"batch_size"`
	BatchSleep          time.Duration          `mapstructure:"batch_sleep"`
	IgnoreList          []string               `mapstructure:"ignore_list"`
	DaemonPort          int                    `mapstructure:"daemon_port"`
	DBPath              string                 `mapstructure:"db_path"`
	ConflictStrategy    model.ConflictStrategy `mapstructure:"conflict_strategy"`
	Debounce            time.Duration          `mapstructure:"debounce"`
}

var Default = Config{
	RemoteURL:        "http://localhost:8080",
	ChunkSize:        1 << 20,
	InlineThreshold:  256 << 10,
	RequestTimeout:   30 * time.Second,
	BatchSize:        50,
	BatchSleep:       time.Second,
	IgnoreList:       []string{".git", ".DS_Store", "*.tmp", "*.swp", "*.part"},
	DaemonPort:       9001,
	ConflictStrategy: model.StrategyAsk,
	Debounce:         300 * time.Millisecond,
}

// Load reads config.yaml from <home>/.propsync, then ~/.propsync. An empty
// home is located with FindHome starting at the working directory.
func Load(home string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if home != "" {
		v.AddConfigPath(filepath.Join(home, DirName))
	}
	if userHome, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(userHome, DirName))
	}

	v.SetDefault("home", home)
	v.SetDefault("remote_url", Default.RemoteURL)
	v.SetDefault("client_id", "")
	v.SetDefault("client_secret", "")
	v.SetDefault("token_url", "")
	v.SetDefault("token", "")
	v.SetDefault("deploy_with_extension", Default.DeployWithExtension)
	v.SetDefault("chunk_size", Default.ChunkSize)
	v.SetDefault("inline_threshold", Default.InlineThreshold)
	v.SetDefault("request_timeout", Default.RequestTimeout)
	v.SetDefault("batch_size", Default.BatchSize)
	v.SetDefault("batch_sleep", Default.BatchSleep)
	v.SetDefault("ignore_list", Default.IgnoreList)
	v.SetDefault("daemon_port", Default.DaemonPort)
	v.SetDefault("db_path", "")
	v.SetDefault("conflict_strategy", Default.ConflictStrategy)
	v.SetDefault("debounce", Default.Debounce)

	v.SetEnvPrefix("PROPSYNC")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := errors.AsType[viper.ConfigFileNotFoundError](err); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Home == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working dir: %w", err)
		}
		cfg.Home = FindHome(cwd)
	}

	absHome, err := filepath.Abs(cfg.Home)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve home: %w", err)
	}
	cfg.Home = absHome

	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.Home, DirName, "history.db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}

	if !c.ConflictStrategy.Valid() {
		return fmt.Errorf("unknown conflict_strategy: %s", c.ConflictStrategy)
	}

	return nil
}

// SrcDir is the root of the synchronized tree.
func (c *Config) SrcDir() string {
	return filepath.Join(c.Home, "src")
}

// FindHome walks up from dir to the workspace root: a directory holding a
// .published registry, or both a src tree and a .propsync directory. Inside
// an unmarked tree the parent of the nearest "src" ancestor wins. It falls
// back to dir itself.
func FindHome(dir string) string {
	dir = filepath.Clean(dir)

	for d := dir; ; d = filepath.Dir(d) {
		if isFile(filepath.Join(d, ".published")) {
			return d
		}
		if isDir(filepath.Join(d, "src")) && isDir(filepath.Join(d, DirName)) {
			return d
		}
		if filepath.Base(d) == "src" {
			return filepath.Dir(d)
		}
		if filepath.Dir(d) == d {
			return dir
		}
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
