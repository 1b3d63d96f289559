package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Settings struct {
	APIBaseURL        string
	WsURL             string
	Ping              time.Duration
	RESTTimeout       time.Duration
	DataPath          string
	MetricsPort       int
	RiskScoreTTL      time.Duration
	Role              string
	DisplayMultiplier float64
	ChartToken        int64
	ChartSymbol       string
	ChartInterval     string
	SMAWindow         int
}

type ConfigFile struct {
	API struct {
		BaseURL string `yaml:"baseURL"`
		WsURL   string `yaml:"wsURL"`
	} `yaml:"api"`

	Display struct {
		Role       string  `yaml:"role"`
		Multiplier float64 `yaml:"multiplier"`
	} `yaml:"display"`

	Chart struct {
		Token     int64  `yaml:"token"`
		Symbol    string `yaml:"symbol"`
		Interval  string `yaml:"interval"`
		SMAWindow int    `yaml:"smaWindow"`
	} `yaml:"chart"`

	System struct {
		DataPath     string `yaml:"dataPath"`
		PingInterval string `yaml:"pingInterval"`
		MetricsPort  int    `yaml:"metricsPort"`
		RESTTimeout  string `yaml:"restTimeout"`
		RiskScoreTTL string `yaml:"riskScoreTTL"`
	} `yaml:"system"`
}

func Load() (Settings, error) {
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	ping, err := time.ParseDuration(config.System.PingInterval)
	if err != nil {
		ping = 15 * time.Second
	}
	restTimeout, err := time.ParseDuration(config.System.RESTTimeout)
	if err != nil {
		restTimeout = 5 * time.Second
	}
	scoreTTL, err := time.ParseDuration(config.System.RiskScoreTTL)
	if err != nil {
		scoreTTL = 6 * time.Hour
	}

	settings := Settings{
		APIBaseURL:        getEnvOrDefault("API_BASE_URL", config.API.BaseURL),
		WsURL:             getEnvOrDefault("WS_URL", config.API.WsURL),
		Ping:              ping,
		RESTTimeout:       restTimeout,
		DataPath:          getEnvOrDefault("DATA_PATH", config.System.DataPath),
		MetricsPort:       getIntFromEnvOrConfig("METRICS_PORT", config.System.MetricsPort),
		RiskScoreTTL:      scoreTTL,
		Role:              getEnvOrDefault("DISPLAY_ROLE", config.Display.Role),
		DisplayMultiplier: getFloatFromEnvOrConfig("DISPLAY_MULTIPLIER", config.Display.Multiplier),
		ChartToken:        getInt64FromEnvOrConfig("CHART_TOKEN", config.Chart.Token),
		ChartSymbol:       getEnvOrDefault("CHART_SYMBOL", config.Chart.Symbol),
		ChartInterval:     getEnvOrDefault("CHART_INTERVAL", config.Chart.Interval),
		SMAWindow:         getIntFromEnvOrConfig("SMA_WINDOW", config.Chart.SMAWindow),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func loadFromEnv() (Settings, error) {
	base, err := getEnvRequired("API_BASE_URL")
	if err != nil {
		return Settings{}, err
	}
	wsURL, err := getEnvRequired("WS_URL")
	if err != nil {
		return Settings{}, err
	}

	settings := Settings{
		APIBaseURL:        base,
		WsURL:             wsURL,
		Ping:              getDurationOrDefault("PING_INTERVAL", 15*time.Second),
		RESTTimeout:       getDurationOrDefault("REST_TIMEOUT", 5*time.Second),
		DataPath:          os.Getenv("DATA_PATH"), // optional
		MetricsPort:       getIntOrDefault("METRICS_PORT", 9100),
		RiskScoreTTL:      getDurationOrDefault("RISK_SCORE_TTL", 6*time.Hour),
		Role:              getEnvOrDefault("DISPLAY_ROLE", "observer"),
		DisplayMultiplier: getFloatOrDefault("DISPLAY_MULTIPLIER", 1),
		ChartToken:        getInt64OrDefault("CHART_TOKEN", 0),
		ChartSymbol:       os.Getenv("CHART_SYMBOL"),
		ChartInterval:     getEnvOrDefault("CHART_INTERVAL", "day"),
		SMAWindow:         getIntOrDefault("SMA_WINDOW", 50),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func getEnvRequired(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("required environment variable %s is missing", key)
	}
	return v, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64OrDefault(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return getIntOrDefault(key, 0)
}

func getInt64FromEnvOrConfig(key string, configValue int64) int64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseInt(env, 10, 64); err == nil {
			return val
		}
	}
	return configValue
}

func getFloatFromEnvOrConfig(key string, configValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return getFloatOrDefault(key, 0)
}

// validateSettings performs range validation of configuration values.
func validateSettings(settings *Settings) error {
	if settings.APIBaseURL == "" {
		return fmt.Errorf("API base URL cannot be empty")
	}
	if settings.WsURL == "" {
		return fmt.Errorf("WebSocket URL cannot be empty")
	}

	if settings.Ping < time.Second || settings.Ping > 5*time.Minute {
		return fmt.Errorf("ping interval must be between 1s and 5m, got %v", settings.Ping)
	}
	if settings.RESTTimeout < time.Second || settings.RESTTimeout > time.Minute {
		return fmt.Errorf("REST timeout must be between 1s and 1m, got %v", settings.RESTTimeout)
	}
	if settings.RiskScoreTTL < time.Minute {
		return fmt.Errorf("risk score TTL must be at least 1m, got %v", settings.RiskScoreTTL)
	}

	if settings.MetricsPort < 1024 || settings.MetricsPort > 65535 {
		return fmt.Errorf("metrics port must be between 1024 and 65535, got %d", settings.MetricsPort)
	}

	if settings.Role != "admin" && settings.Role != "observer" {
		return fmt.Errorf("display role must be admin or observer, got %q", settings.Role)
	}
	if settings.DisplayMultiplier <= 0 {
		return fmt.Errorf("display multiplier must be positive, got %f", settings.DisplayMultiplier)
	}

	if settings.ChartInterval == "" {
		return fmt.Errorf("chart interval cannot be empty")
	}
	if settings.SMAWindow < 0 {
		return fmt.Errorf("SMA window cannot be negative, got %d", settings.SMAWindow)
	}

	return nil
}
