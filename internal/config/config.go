// Package config loads the server configuration from YAML, with secrets and
// a few overrides taken from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderVosk       = "vosk"
	ProviderAssemblyAI = "assemblyai"
	ProviderNone       = "none"
)

type Config struct {
	Server struct {
		Host            string        `yaml:"host"`
		Port            int           `yaml:"port"`
		AudioSocketHost string        `yaml:"audiosocket_host"`
		AudioSocketPort int           `yaml:"audiosocket_port"`
		IdleTimeout     time.Duration `yaml:"idle_timeout"`
	} `yaml:"server"`
	Analyzer struct {
		BaseURL           string        `yaml:"base_url"`
		Interval          time.Duration `yaml:"interval"`
		RequestTimeout    time.Duration `yaml:"request_timeout"`
		SkipIfPending     bool          `yaml:"skip_if_pending"`
		MaxFrameDimension int           `yaml:"max_frame_dimension"`
	} `yaml:"analyzer"`
	Speech struct {
		Provider   string `yaml:"provider"`
		VoskURL    string `yaml:"vosk_server_url"`
		SampleRate int    `yaml:"sample_rate"`
		Language   string `yaml:"language"`
	} `yaml:"speech"`
	Questions struct {
		Model string `yaml:"model"`
		Count int    `yaml:"count"`
	} `yaml:"questions"`
	Handoff struct {
		RedisAddr string        `yaml:"redis_addr"`
		RedisDB   int           `yaml:"redis_db"`
		Prefix    string        `yaml:"prefix"`
		TTL       time.Duration `yaml:"ttl"`
	} `yaml:"handoff"`
	Output struct {
		Dir             string `yaml:"dir"`
		SaveTranscripts bool   `yaml:"save_transcripts"`
	} `yaml:"output"`

	// Secrets, never read from the file.
	OpenAIKey     string `yaml:"-"`
	AssemblyAIKey string `yaml:"-"`
}

// Load reads filename, loads .env if present, applies environment
// overrides and defaults, and validates the result.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", filename, err)
	}

	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	return Parse(data)
}

// Parse decodes YAML data and applies the environment, defaults and
// validation.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	c.AssemblyAIKey = os.Getenv("ASSEMBLYAI_API_KEY")
	c.Analyzer.BaseURL = getEnv("ANALYZER_URL", c.Analyzer.BaseURL)
	c.Handoff.RedisAddr = getEnv("REDIS_ADDR", c.Handoff.RedisAddr)
	c.Handoff.RedisDB = getEnvAsInt("REDIS_DB", c.Handoff.RedisDB)
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.AudioSocketPort == 0 {
		c.Server.AudioSocketPort = 9092
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 10 * time.Minute
	}
	if c.Analyzer.BaseURL == "" {
		c.Analyzer.BaseURL = "http://localhost:5000"
	}
	if c.Analyzer.Interval == 0 {
		c.Analyzer.Interval = 3 * time.Second
	}
	if c.Analyzer.RequestTimeout == 0 {
		c.Analyzer.RequestTimeout = 10 * time.Second
	}
	if c.Analyzer.MaxFrameDimension == 0 {
		c.Analyzer.MaxFrameDimension = 4096
	}
	if c.Speech.Provider == "" {
		c.Speech.Provider = ProviderVosk
	}
	if c.Speech.SampleRate == 0 {
		c.Speech.SampleRate = 8000
	}
	if c.Speech.Language == "" {
		c.Speech.Language = "en-US"
	}
	if c.Questions.Count == 0 {
		c.Questions.Count = 10
	}
	if c.Handoff.Prefix == "" {
		c.Handoff.Prefix = "rehearsal:setup:"
	}
	if c.Handoff.TTL == 0 {
		c.Handoff.TTL = 24 * time.Hour
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "sessions"
	}
}

func (c *Config) Validate() error {
	if err := validPort("server.port", c.Server.Port); err != nil {
		return err
	}
	if err := validPort("server.audiosocket_port", c.Server.AudioSocketPort); err != nil {
		return err
	}
	if c.Server.IdleTimeout < 0 {
		return fmt.Errorf("server.idle_timeout must not be negative")
	}
	if c.Analyzer.Interval < 0 {
		return fmt.Errorf("analyzer.interval must not be negative")
	}
	if c.Analyzer.RequestTimeout < 0 {
		return fmt.Errorf("analyzer.request_timeout must not be negative")
	}
	if c.Analyzer.MaxFrameDimension < 0 {
		return fmt.Errorf("analyzer.max_frame_dimension must not be negative")
	}
	switch c.Speech.Provider {
	case ProviderVosk:
		if c.Speech.VoskURL == "" {
			return fmt.Errorf("speech.vosk_server_url is required for provider %q", ProviderVosk)
		}
	case ProviderAssemblyAI, ProviderNone:
	default:
		return fmt.Errorf("unknown speech.provider %q", c.Speech.Provider)
	}
	if c.Speech.SampleRate < 0 {
		return fmt.Errorf("speech.sample_rate must not be negative")
	}
	if c.Questions.Count < 0 {
		return fmt.Errorf("questions.count must not be negative")
	}
	return nil
}

func validPort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s %d out of range", name, port)
	}
	return nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) AudioSocketAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.AudioSocketHost, c.Server.AudioSocketPort)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
