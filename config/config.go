package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the download service
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Downloader DownloaderConfig `mapstructure:"downloader"`
	Assist     AssistConfig     `mapstructure:"assist"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Listen         string   `mapstructure:"listen"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DownloaderConfig controls workspaces, retention and pipeline behaviour
type DownloaderConfig struct {
	// WorkspaceRoot is the directory under which per-session workspaces
	// and finished archives live.
	WorkspaceRoot string `mapstructure:"workspace_root"`
	// Retention is how long a finished archive (and its workspace) stays
	// on disk before automatic deletion.
	Retention time.Duration `mapstructure:"retention"`
	// DisconnectGrace is how long an abandoned workspace survives after
	// its session disconnects.
	DisconnectGrace time.Duration `mapstructure:"disconnect_grace"`
	// ItemTimeout bounds a single item fetch. Zero means no timeout.
	ItemTimeout time.Duration `mapstructure:"item_timeout"`
}

func (d DownloaderConfig) Validate() error {
	if strings.TrimSpace(d.WorkspaceRoot) == "" {
		return fmt.Errorf("downloader.workspace_root is required")
	}
	if d.Retention <= 0 {
		return fmt.Errorf("downloader.retention must be > 0")
	}
	if d.DisconnectGrace < 0 {
		return fmt.Errorf("downloader.disconnect_grace cannot be negative")
	}
	return nil
}

// AssistConfig configures the optional thumbnail/metadata Q&A endpoint.
// The endpoint is disabled when APIKey is empty.
type AssistConfig struct {
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// LoadConfig loads config from file
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.SetDefault("server.listen", ":5000")
	viper.SetDefault("server.allowed_origins", []string{"*"})
	viper.SetDefault("downloader.workspace_root", "temp")
	viper.SetDefault("downloader.retention", 30*time.Minute)
	viper.SetDefault("downloader.disconnect_grace", 5*time.Minute)
	viper.SetDefault("downloader.item_timeout", time.Duration(0))
	viper.SetDefault("assist.model", "gpt-4o-mini")
	viper.SetDefault("assist.endpoint", "https://api.openai.com/v1/chat/completions")
	viper.SetDefault("assist.timeout", 60*time.Second)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("TUBEGRAB")
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)

	viper.AutomaticEnv() // read in environment variables that match (TUBEGRAB_*)

	var config Config
	if err := viper.ReadInConfig(); err != nil {
		// config file is optional; defaults plus env cover the common case
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	if err := config.Downloader.Validate(); err != nil {
		panic(err)
	}
	return &config
}
