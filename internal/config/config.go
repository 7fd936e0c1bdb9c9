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
	TraceExporter  string `yaml:"trace_exporter"` // none, stdout, otlp
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Speech      SpeechConfig     `yaml:"speech"`
	Filter      FilterConfig     `yaml:"filter"`
	Sink        SinkConfig       `yaml:"sink"`
	Reader      ReaderConfig     `yaml:"reader"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

// SpeechConfig selects and configures the speech synthesis service.
type SpeechConfig struct {
	Mode               string `yaml:"mode"` // mock, websocket
	Endpoint           string `yaml:"endpoint"`
	Token              string `yaml:"token"`
	Voice              string `yaml:"voice"`
	Language           string `yaml:"language"`
	Rate               string `yaml:"rate"`
	Pitch              string `yaml:"pitch"`
	Volume             string `yaml:"volume"`
	OutputFormat       string `yaml:"output_format"`
	DropArtifacts      bool   `yaml:"drop_artifacts"`
	HandshakeTimeoutMS int    `yaml:"handshake_timeout_ms"`
}

// FilterConfig toggles the markdown filters applied before speaking.
type FilterConfig struct {
	Frontmatter    bool   `yaml:"frontmatter"`
	Code           bool   `yaml:"code"`
	Math           bool   `yaml:"math"`
	EditorSyntax   bool   `yaml:"editor_syntax"`
	KeepURLs       bool   `yaml:"keep_urls"`
	Language       string `yaml:"language"`
	MaxChunkLength int    `yaml:"max_chunk_length"`
}

type SinkConfig struct {
	Mode    string `yaml:"mode"` // clock, exec, wav
	Command string `yaml:"command"`
	Path    string `yaml:"path"`
}

type ReaderConfig struct {
	Enabled             bool   `yaml:"enabled"`
	FromCursor          bool   `yaml:"from_cursor"`
	PollIntervalMS      int    `yaml:"poll_interval_ms"`
	Prefetch            int    `yaml:"prefetch"`
	RecoveryLookback    int    `yaml:"recovery_lookback"`
	MaxRetries          int    `yaml:"max_retries"`
	RetryBackoffMS      int    `yaml:"retry_backoff_ms"`
	DialTimeoutMS       int    `yaml:"dial_timeout_ms"`
	// StatusStream keeps session statuses in a JetStream stream for editors
	// that connect mid-session. Empty disables it.
	StatusStream        string `yaml:"status_stream"`
	StatusMaxAgeMinutes int    `yaml:"status_max_age_minutes"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-reader",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			TraceExporter:  "none",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/loqa-reader.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		Speech: SpeechConfig{
			Mode:               "mock",
			Voice:              "en-US-AvaNeural",
			Language:           "en-US",
			Rate:               "+0%",
			Pitch:              "+0Hz",
			Volume:             "+0%",
			OutputFormat:       "raw-24khz-16bit-mono-pcm",
			DropArtifacts:      true,
			HandshakeTimeoutMS: 5000,
		},
		Filter: FilterConfig{
			Frontmatter:    true,
			Code:           true,
			Math:           true,
			EditorSyntax:   true,
			KeepURLs:       false,
			Language:       "en",
			MaxChunkLength: 2500,
		},
		Sink: SinkConfig{
			Mode: "clock",
		},
		Reader: ReaderConfig{
			Enabled:             true,
			FromCursor:          true,
			PollIntervalMS:      50,
			Prefetch:            1,
			RecoveryLookback:    50,
			MaxRetries:          3,
			RetryBackoffMS:      250,
			DialTimeoutMS:       10000,
			StatusStream:        "READER_STATUS",
			StatusMaxAgeMinutes: 60,
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
	overrideString(&cfg.RuntimeName, "LOQA_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LOQA_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "LOQA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LOQA_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "LOQA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.TraceExporter, "LOQA_TELEMETRY_TRACE_EXPORTER")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOQA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOQA_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "LOQA_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "LOQA_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LOQA_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "LOQA_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "LOQA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LOQA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOQA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOQA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOQA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOQA_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "LOQA_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "LOQA_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "LOQA_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "LOQA_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "LOQA_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.Speech.Mode, "LOQA_SPEECH_MODE")
	overrideString(&cfg.Speech.Endpoint, "LOQA_SPEECH_ENDPOINT")
	overrideString(&cfg.Speech.Token, "LOQA_SPEECH_TOKEN")
	overrideString(&cfg.Speech.Voice, "LOQA_SPEECH_VOICE")
	overrideString(&cfg.Speech.Language, "LOQA_SPEECH_LANGUAGE")
	overrideString(&cfg.Speech.Rate, "LOQA_SPEECH_RATE")
	overrideString(&cfg.Speech.Pitch, "LOQA_SPEECH_PITCH")
	overrideString(&cfg.Speech.Volume, "LOQA_SPEECH_VOLUME")
	overrideString(&cfg.Speech.OutputFormat, "LOQA_SPEECH_OUTPUT_FORMAT")
	overrideBool(&cfg.Speech.DropArtifacts, "LOQA_SPEECH_DROP_ARTIFACTS")
	overrideInt(&cfg.Speech.HandshakeTimeoutMS, "LOQA_SPEECH_HANDSHAKE_TIMEOUT_MS")
	overrideBool(&cfg.Filter.Frontmatter, "LOQA_FILTER_FRONTMATTER")
	overrideBool(&cfg.Filter.Code, "LOQA_FILTER_CODE")
	overrideBool(&cfg.Filter.Math, "LOQA_FILTER_MATH")
	overrideBool(&cfg.Filter.EditorSyntax, "LOQA_FILTER_EDITOR_SYNTAX")
	overrideBool(&cfg.Filter.KeepURLs, "LOQA_FILTER_KEEP_URLS")
	overrideString(&cfg.Filter.Language, "LOQA_FILTER_LANGUAGE")
	overrideInt(&cfg.Filter.MaxChunkLength, "LOQA_FILTER_MAX_CHUNK_LENGTH")
	overrideString(&cfg.Sink.Mode, "LOQA_SINK_MODE")
	overrideString(&cfg.Sink.Command, "LOQA_SINK_COMMAND")
	overrideString(&cfg.Sink.Path, "LOQA_SINK_PATH")
	overrideBool(&cfg.Reader.Enabled, "LOQA_READER_ENABLED")
	overrideBool(&cfg.Reader.FromCursor, "LOQA_READER_FROM_CURSOR")
	overrideInt(&cfg.Reader.PollIntervalMS, "LOQA_READER_POLL_INTERVAL_MS")
	overrideInt(&cfg.Reader.Prefetch, "LOQA_READER_PREFETCH")
	overrideInt(&cfg.Reader.RecoveryLookback, "LOQA_READER_RECOVERY_LOOKBACK")
	overrideInt(&cfg.Reader.MaxRetries, "LOQA_READER_MAX_RETRIES")
	overrideInt(&cfg.Reader.RetryBackoffMS, "LOQA_READER_RETRY_BACKOFF_MS")
	overrideInt(&cfg.Reader.DialTimeoutMS, "LOQA_READER_DIAL_TIMEOUT_MS")
	overrideString(&cfg.Reader.StatusStream, "LOQA_READER_STATUS_STREAM")
	overrideInt(&cfg.Reader.StatusMaxAgeMinutes, "LOQA_READER_STATUS_MAX_AGE_MINUTES")
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
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	switch cfg.Telemetry.TraceExporter {
	case "none", "stdout":
	case "otlp":
		if cfg.Telemetry.OTLPEndpoint == "" {
			return errors.New("telemetry.otlp_endpoint must be set when trace_exporter=otlp")
		}
	default:
		return errors.New("telemetry.trace_exporter must be one of none|stdout|otlp")
	}
	switch cfg.Speech.Mode {
	case "mock":
	case "websocket":
		if cfg.Speech.Endpoint == "" {
			return errors.New("speech.endpoint must be set when mode=websocket")
		}
	default:
		return errors.New("speech.mode must be one of mock|websocket")
	}
	if cfg.Speech.Voice == "" {
		return errors.New("speech.voice must not be empty")
	}
	if cfg.Speech.OutputFormat == "" {
		return errors.New("speech.output_format must not be empty")
	}
	if cfg.Filter.MaxChunkLength < 50 {
		return errors.New("filter.max_chunk_length must be >= 50")
	}
	switch cfg.Sink.Mode {
	case "clock":
	case "exec":
		if cfg.Sink.Command == "" {
			return errors.New("sink.command must be set when mode=exec")
		}
	case "wav":
		if cfg.Sink.Path == "" {
			return errors.New("sink.path must be set when mode=wav")
		}
	default:
		return errors.New("sink.mode must be one of clock|exec|wav")
	}
	if cfg.Reader.PollIntervalMS <= 0 {
		return errors.New("reader.poll_interval_ms must be positive")
	}
	if cfg.Reader.Prefetch < 0 {
		return errors.New("reader.prefetch must be >= 0")
	}
	if cfg.Reader.RecoveryLookback <= 0 {
		return errors.New("reader.recovery_lookback must be positive")
	}
	if cfg.Reader.MaxRetries <= 0 {
		return errors.New("reader.max_retries must be >= 1")
	}
	if cfg.Reader.RetryBackoffMS < 0 {
		return errors.New("reader.retry_backoff_ms must be >= 0")
	}
	if cfg.Reader.StatusMaxAgeMinutes < 0 {
		return errors.New("reader.status_max_age_minutes must be >= 0")
	}
	return nil
}
