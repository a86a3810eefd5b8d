package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	DataDir      string        `mapstructure:"data_dir" yaml:"data_dir" validate:"required"`
	DownloadsDir string        `mapstructure:"downloads_dir" yaml:"downloads_dir" validate:"required"`
	Storage      StorageConfig `mapstructure:"storage" yaml:"storage"`
	Sync         SyncConfig    `mapstructure:"sync" yaml:"sync"`
	Server       ServerConfig  `mapstructure:"server" yaml:"server"`
}

// StorageConfig selects and configures the persistence backend
type StorageConfig struct {
	Backend    string          `mapstructure:"backend" yaml:"backend" validate:"required,oneof=memory file sqlite postgres"`
	Path       string          `mapstructure:"path" yaml:"path,omitempty"` // file and sqlite backends; derived from data_dir if empty
	QuotaBytes int64           `mapstructure:"quota_bytes" yaml:"quota_bytes" validate:"min=1"`
	Postgres   *DatabaseConfig `mapstructure:"postgres" yaml:"postgres,omitempty"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host" yaml:"host" validate:"required"`
	Port     int    `mapstructure:"port" yaml:"port" validate:"required,min=1,max=65535"`
	User     string `mapstructure:"user" yaml:"user" validate:"required"`
	Password string `mapstructure:"password" yaml:"password" validate:"required"`
	Database string `mapstructure:"database" yaml:"database" validate:"required"`
	Schema   string `mapstructure:"schema" yaml:"schema,omitempty"` // Optional: defaults to "threadnotes"
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode,omitempty"`
}

// SyncConfig holds backup and sync file behavior settings
type SyncConfig struct {
	DebounceMs       int  `mapstructure:"debounce_ms" yaml:"debounce_ms" validate:"min=0"`
	FrequencyMinutes int  `mapstructure:"frequency_minutes" yaml:"frequency_minutes" validate:"min=1"`
	ResumeOnStart    bool `mapstructure:"resume_on_start" yaml:"resume_on_start"`
	Watch            bool `mapstructure:"watch" yaml:"watch"`
}

// ServerConfig holds the daemon's HTTP listener settings
type ServerConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen" validate:"required,hostname_port"`
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}
	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, sslMode,
	)
	if d.Schema != "" {
		connStr += "&search_path=" + d.Schema + ",public"
	}
	return connStr
}

// StoragePath returns the file or sqlite backend location
func (c *Config) StoragePath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	switch c.Storage.Backend {
	case "sqlite":
		return filepath.Join(c.DataDir, "notes.db")
	default:
		return filepath.Join(c.DataDir, "notes.json")
	}
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DataDir:      getConfigDir(),
		DownloadsDir: filepath.Join(home, "Downloads"),
		Storage: StorageConfig{
			Backend:    "file",
			QuotaBytes: 5 * 1024 * 1024,
		},
		Sync: SyncConfig{
			DebounceMs:       10000,
			FrequencyMinutes: 5,
			ResumeOnStart:    false,
			Watch:            true,
		},
		Server: ServerConfig{
			Listen: "127.0.0.1:8765",
		},
	}
}

// Load reads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("data_dir", defaults.DataDir)
	v.SetDefault("downloads_dir", defaults.DownloadsDir)
	v.SetDefault("storage.backend", defaults.Storage.Backend)
	v.SetDefault("storage.quota_bytes", defaults.Storage.QuotaBytes)
	v.SetDefault("sync.debounce_ms", defaults.Sync.DebounceMs)
	v.SetDefault("sync.frequency_minutes", defaults.Sync.FrequencyMinutes)
	v.SetDefault("sync.resume_on_start", defaults.Sync.ResumeOnStart)
	v.SetDefault("sync.watch", defaults.Sync.Watch)
	v.SetDefault("server.listen", defaults.Server.Listen)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(getConfigDir())
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("THREADNOTES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Defaults alone are a usable configuration
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.DataDir = expandPath(cfg.DataDir)
	cfg.DownloadsDir = expandPath(cfg.DownloadsDir)
	cfg.Storage.Path = expandPath(cfg.Storage.Path)

	if pg := cfg.Storage.Postgres; pg != nil {
		pg.Password = os.ExpandEnv(pg.Password)
		if pg.Schema == "" {
			pg.Schema = SanitizeIdentifier("threadnotes")
		}
		if pg.Port == 0 {
			pg.Port = 5432
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks a Config against its struct rules
func Validate(cfg *Config) error {
	validate := validator.New()

	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if cfg.Storage.Backend == "postgres" {
		if cfg.Storage.Postgres == nil {
			return fmt.Errorf("config validation failed: storage.postgres is required for the postgres backend")
		}
		if err := validate.Struct(cfg.Storage.Postgres); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}

	return nil
}

// getConfigDir returns the appropriate config directory for the OS
func getConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "threadnotes")
		}
		return filepath.Join(os.Getenv("USERPROFILE"), ".config", "threadnotes")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			return filepath.Join(xdgConfig, "threadnotes")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "threadnotes")
	}
}

// GetStateDir returns the directory for storing state files
func GetStateDir() (string, error) {
	dir := getConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create state directory: %w", err)
	}
	return dir, nil
}

// expandPath expands ~ and environment variables in a path
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[1:])
	}
	return os.ExpandEnv(path)
}

// SanitizeIdentifier converts a name into a valid PostgreSQL identifier (schema name)
// Rules:
// - Lowercase only
// - Starts with letter or underscore
// - Contains only letters, digits, underscores
// - Spaces and hyphens become underscores
// - Max 63 characters (PostgreSQL limit)
func SanitizeIdentifier(name string) string {
	name = strings.ToLower(name)

	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "-", "_")

	reg := regexp.MustCompile(`[^a-z0-9_]`)
	name = reg.ReplaceAllString(name, "")

	reg = regexp.MustCompile(`_+`)
	name = reg.ReplaceAllString(name, "_")

	name = strings.Trim(name, "_")

	if len(name) == 0 {
		name = "notes"
	} else if unicode.IsDigit(rune(name[0])) {
		name = "notes_" + name
	}

	if len(name) > 63 {
		name = name[:63]
		name = strings.TrimRight(name, "_")
	}

	return name
}
