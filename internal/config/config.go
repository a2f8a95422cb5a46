package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

type Config struct {
	DataDir       string `json:"data_dir"`
	LogLevel      string `json:"log_level"`
	MaxConcurrent int    `json:"max_concurrent"`
	MaxToolRounds int    `json:"max_tool_rounds"`
	HTTP          struct {
		Enabled bool   `json:"enabled"`
		Listen  string `json:"listen"`
	} `json:"http"`
	LLM struct {
		Provider         string  `json:"provider"`
		BaseURL          string  `json:"base_url"`
		APIKey           string  `json:"api_key"`
		Model            string  `json:"model"`
		MaxTokens        int     `json:"max_tokens"`
		Temperature      float32 `json:"temperature"`
		MaxContextTokens int     `json:"max_context_tokens"`
		OutputReserve    int     `json:"output_reserve"`
		Stream           bool    `json:"stream"`
	} `json:"llm"`
	Hosted struct {
		APIKey            string `json:"api_key"`
		BaseURL           string `json:"base_url"`
		AssistantID       string `json:"assistant_id"`
		PollIntervalMS    int    `json:"poll_interval_ms"`
		PerSessionThreads bool   `json:"per_session_threads"`
	} `json:"hosted"`
	Telegram struct {
		Token string `json:"token"`
	} `json:"telegram"`
}

// DefaultPath is where the CLI looks for its config file.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".taskpilot", "config.json")
}

func defaults() *Config {
	cfg := &Config{
		DataDir:       filepath.Join(os.Getenv("HOME"), ".taskpilot"),
		MaxConcurrent: 2,
	}
	cfg.LogLevel = "info"
	cfg.MaxToolRounds = 10
	cfg.HTTP.Enabled = true
	cfg.HTTP.Listen = "127.0.0.1:8484"
	cfg.LLM.Provider = "openai"
	cfg.LLM.Model = "gpt-4o-mini"
	cfg.LLM.MaxTokens = 2000
	cfg.LLM.Temperature = 0.7
	cfg.LLM.MaxContextTokens = 128000
	cfg.LLM.OutputReserve = 4096
	cfg.Hosted.PollIntervalMS = 1000
	return cfg
}

// Load reads path over the defaults, writing the defaults there first if
// the file does not exist. The file may contain comments and trailing
// commas. Environment variables override file values.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if _, err := os.Stat(path); err == nil {
		data, err := readStandard(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		if cfg.LLM.Provider == "openai" || cfg.LLM.Provider == "" {
			cfg.LLM.APIKey = apiKey
		}
		cfg.Hosted.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		if cfg.LLM.Provider == "openai" || cfg.LLM.Provider == "" {
			cfg.LLM.BaseURL = baseURL
		}
		cfg.Hosted.BaseURL = baseURL
	}
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" && cfg.LLM.Provider == "anthropic" {
		cfg.LLM.APIKey = apiKey
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" && cfg.LLM.Provider == "ollama" {
		cfg.LLM.BaseURL = host
	}
	if id := os.Getenv("TASKPILOT_ASSISTANT_ID"); id != "" {
		cfg.Hosted.AssistantID = id
	}
	if tgToken := os.Getenv("TELEGRAM_BOT_TOKEN"); tgToken != "" {
		cfg.Telegram.Token = tgToken
	}
}

// readStandard reads a HuJSON file and returns it as standard JSON.
func readStandard(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return std, nil
}

// Save writes cfg to path atomically, creating the directory if needed.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, append(data, '\n'))
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}
