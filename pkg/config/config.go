package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/avelasko/taskpilot/internal/storage"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig           `mapstructure:"server"`
	Database  storage.DatabaseConfig `mapstructure:"database"`
	OpenAI    OpenAIConfig           `mapstructure:"openai"`
	Telegram  TelegramConfig         `mapstructure:"telegram"`
	Agent     AgentConfig            `mapstructure:"agent"`
	Reminders ReminderConfig         `mapstructure:"reminders"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token"`
}

type AgentConfig struct {
	MaxContextTurns int           `mapstructure:"max_context_turns"`
	ParseTimeout    time.Duration `mapstructure:"parse_timeout"`
}

type ReminderConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

func parseDatabaseURL(dbURL string) (storage.DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return storage.DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}

	// Remove leading slash from path to get database name
	dbName := strings.TrimPrefix(u.Path, "/")

	return storage.DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   dbName,
		SSLMode:  "disable",
	}, nil
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.use_in_memory", false)
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 300)
	v.SetDefault("openai.temperature", 0.2)
	v.SetDefault("agent.max_context_turns", 20)
	v.SetDefault("agent.parse_timeout", 10*time.Second)
	v.SetDefault("reminders.enabled", true)
	v.SetDefault("reminders.interval", time.Minute)

	// Enable environment variable support
	v.AutomaticEnv()

	// Read the config file
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %v", err)
		}
		config.Database = dbConfig
	}

	// Get other environment variables
	if token := v.GetString("TELEGRAM_TOKEN"); token != "" {
		config.Telegram.Token = token
	}

	if apiKey := v.GetString("OPENAI_API_KEY"); apiKey != "" {
		config.OpenAI.APIKey = apiKey
	}

	return &config, nil
}
