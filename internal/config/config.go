package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	TaskStore   TaskStoreConfig `yaml:"task_store"`
	Upstream    UpstreamConfig  `yaml:"upstream"`
	Relay       RelayConfig     `yaml:"relay"`
	Client      ClientConfig    `yaml:"client"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type TaskStoreConfig struct {
	Path    string `yaml:"path"`
	Enabled bool   `yaml:"enabled"`
}

// UpstreamConfig describes the realtime AI endpoint the relay dials for
// each voice session. The API key is carried here so sessions receive it
// by injection rather than reading the process environment at dial time.
type UpstreamConfig struct {
	URL          string  `yaml:"url"`
	APIKey       string  `yaml:"api_key"`
	Model        string  `yaml:"model"`
	Voice        string  `yaml:"voice"`
	Instructions string  `yaml:"instructions"`
	Temperature  float64 `yaml:"temperature"`
	SampleRate   int     `yaml:"sample_rate"`
}

type RelayConfig struct {
	Path            string `yaml:"path"`
	MaxMessageBytes int64  `yaml:"max_message_bytes"`
	WriteTimeoutMS  int    `yaml:"write_timeout_ms"`
}

type ClientConfig struct {
	ServerURL       string `yaml:"server_url"`
	SampleRate      int    `yaml:"sample_rate"`
	Channels        int    `yaml:"channels"`
	ChunkDurationMS int    `yaml:"chunk_duration_ms"`
}

func Default() Config {
	return Config{
		RuntimeName: "taskvox-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		TaskStore: TaskStoreConfig{
			Path:    "./data/taskvox-tasks.db",
			Enabled: true,
		},
		Upstream: UpstreamConfig{
			URL:          "wss://api.openai.com/v1/realtime",
			Model:        "gpt-4o-realtime-preview",
			Voice:        "alloy",
			Instructions: "You are a helpful voice assistant that manages the user's task list.",
			Temperature:  0.8,
			SampleRate:   24000,
		},
		Relay: RelayConfig{
			Path:            "/v1/voice",
			MaxMessageBytes: 4 << 20,
			WriteTimeoutMS:  10000,
		},
		Client: ClientConfig{
			ServerURL:       "ws://localhost:8080/v1/voice",
			SampleRate:      24000,
			Channels:        1,
			ChunkDurationMS: 100,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "TASKVOX_RUNTIME_NAME")
	overrideString(&cfg.Environment, "TASKVOX_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "TASKVOX_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "TASKVOX_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "TASKVOX_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "TASKVOX_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "TASKVOX_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "TASKVOX_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "TASKVOX_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "TASKVOX_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "TASKVOX_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "TASKVOX_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "TASKVOX_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "TASKVOX_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "TASKVOX_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "TASKVOX_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.TaskStore.Path, "TASKVOX_TASK_STORE_PATH")
	overrideBool(&cfg.TaskStore.Enabled, "TASKVOX_TASK_STORE_ENABLED")
	overrideString(&cfg.Upstream.URL, "TASKVOX_UPSTREAM_URL")
	overrideString(&cfg.Upstream.APIKey, "TASKVOX_UPSTREAM_API_KEY")
	overrideString(&cfg.Upstream.Model, "TASKVOX_UPSTREAM_MODEL")
	overrideString(&cfg.Upstream.Voice, "TASKVOX_UPSTREAM_VOICE")
	overrideString(&cfg.Upstream.Instructions, "TASKVOX_UPSTREAM_INSTRUCTIONS")
	overrideFloat(&cfg.Upstream.Temperature, "TASKVOX_UPSTREAM_TEMPERATURE")
	overrideInt(&cfg.Upstream.SampleRate, "TASKVOX_UPSTREAM_SAMPLE_RATE")
	overrideString(&cfg.Relay.Path, "TASKVOX_RELAY_PATH")
	overrideInt64(&cfg.Relay.MaxMessageBytes, "TASKVOX_RELAY_MAX_MESSAGE_BYTES")
	overrideInt(&cfg.Relay.WriteTimeoutMS, "TASKVOX_RELAY_WRITE_TIMEOUT_MS")
	overrideString(&cfg.Client.ServerURL, "TASKVOX_CLIENT_SERVER_URL")
	overrideInt(&cfg.Client.SampleRate, "TASKVOX_CLIENT_SAMPLE_RATE")
	overrideInt(&cfg.Client.Channels, "TASKVOX_CLIENT_CHANNELS")
	overrideInt(&cfg.Client.ChunkDurationMS, "TASKVOX_CLIENT_CHUNK_DURATION_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideInt64(target *int64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.TaskStore.Enabled && cfg.TaskStore.Path == "" {
		return errors.New("task_store.path must not be empty when the task store is enabled")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Upstream.URL == "" {
		return errors.New("upstream.url must not be empty")
	}
	if cfg.Upstream.SampleRate <= 0 {
		return errors.New("upstream.sample_rate must be positive")
	}
	if !strings.HasPrefix(cfg.Relay.Path, "/") {
		return errors.New("relay.path must start with /")
	}
	if cfg.Relay.MaxMessageBytes <= 0 {
		return errors.New("relay.max_message_bytes must be positive")
	}
	if cfg.Client.SampleRate <= 0 {
		return errors.New("client.sample_rate must be positive")
	}
	if cfg.Client.Channels <= 0 {
		return errors.New("client.channels must be positive")
	}
	if cfg.Client.ChunkDurationMS <= 0 {
		return errors.New("client.chunk_duration_ms must be positive")
	}
	return nil
}
