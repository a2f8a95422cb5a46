package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func tempConfigPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "config.json")
}

func writeTestConfig(t *testing.T, path string, cfg *Config) {
	t.Helper()
	if err := Save(path, cfg); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
}

// clearEnv blanks every variable Load reads so the host environment cannot
// leak into assertions.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"OPENAI_API_KEY", "OPENAI_BASE_URL", "ANTHROPIC_API_KEY", "OLLAMA_HOST", "TASKPILOT_ASSISTANT_ID", "TELEGRAM_BOT_TOKEN"} {
		t.Setenv(k, "")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)

	original := defaults()
	original.DataDir = "/tmp/test-data"
	original.LogLevel = "debug"
	original.MaxConcurrent = 4
	original.HTTP.Enabled = false
	original.LLM.Provider = "anthropic"
	original.LLM.APIKey = "sk-ant-round-trip"
	original.LLM.Model = "claude-sonnet-4-5"
	original.LLM.Temperature = 0.5
	original.Hosted.APIKey = "sk-hosted-123"
	original.Hosted.AssistantID = "asst_rt"
	original.Hosted.PerSessionThreads = true
	original.Telegram.Token = "bot-token-456"

	writeTestConfig(t, path, original)

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(loaded, original) {
		t.Errorf("reloaded config differs:\n got %+v\nwant %+v", loaded, original)
	}
}

func TestSave_AtomicWrite(t *testing.T) {
	path := tempConfigPath(t)
	writeTestConfig(t, path, &Config{LogLevel: "info"})

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file should not exist after successful save")
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("expected mode 0600, got %o", perm)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read saved config: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Errorf("saved file is not valid JSON: %v", err)
	}
}

func TestToMap(t *testing.T) {
	cfg := &Config{DataDir: "/tmp/test", LogLevel: "debug"}
	cfg.LLM.Provider = "openai"
	cfg.LLM.MaxTokens = 2000

	m, err := ToMap(cfg)
	if err != nil {
		t.Fatalf("ToMap failed: %v", err)
	}
	if m["data_dir"] != "/tmp/test" || m["log_level"] != "debug" {
		t.Errorf("unexpected top level %v", m)
	}
	llm, ok := m["llm"].(map[string]any)
	if !ok {
		t.Fatalf("expected llm to be map, got %T", m["llm"])
	}
	// JSON numbers decode as float64.
	if llm["provider"] != "openai" || llm["max_tokens"] != float64(2000) {
		t.Errorf("unexpected llm section %v", llm)
	}
}

func TestListValues(t *testing.T) {
	cfg := &Config{LogLevel: "info"}
	cfg.LLM.APIKey = "sk-secret-key-1234"
	cfg.Hosted.APIKey = "sk-hosted-5678"
	cfg.Telegram.Token = "bot-token-abcd"

	tests := []struct {
		mask bool
		want map[string]string
	}{
		{false, map[string]string{"llm.api_key": "sk-secret-key-1234", "hosted.api_key": "sk-hosted-5678", "telegram.token": "bot-token-abcd", "log_level": "info"}},
		{true, map[string]string{"llm.api_key": "***1234", "hosted.api_key": "***5678", "telegram.token": "***abcd", "log_level": "info"}},
	}
	for _, tt := range tests {
		flat, err := ListValues(cfg, tt.mask)
		if err != nil {
			t.Fatalf("ListValues failed: %v", err)
		}
		for k, want := range tt.want {
			if flat[k] != want {
				t.Errorf("mask=%v: %s = %v, want %s", tt.mask, k, flat[k], want)
			}
		}
	}
}

func TestGetValue(t *testing.T) {
	path := tempConfigPath(t)
	cfg := &Config{LogLevel: "debug", MaxConcurrent: 8}
	cfg.LLM.Model = "gpt-4"
	writeTestConfig(t, path, cfg)

	tests := map[string]any{
		"log_level":      "debug",
		"llm.model":      "gpt-4",
		"max_concurrent": float64(8),
		"http.enabled":   false,
	}
	for key, want := range tests {
		got, err := GetValue(path, key)
		if err != nil {
			t.Fatalf("GetValue(%s) failed: %v", key, err)
		}
		if got != want {
			t.Errorf("GetValue(%s) = %v (%T), want %v", key, got, got, want)
		}
	}

	_, err := GetValue(path, "nonexistent.key")
	if err == nil || err.Error() != "unknown config key: nonexistent.key" {
		t.Errorf("unexpected error for unknown key: %v", err)
	}
}

func TestGetValue_CreatesDefaults(t *testing.T) {
	clearEnv(t)
	v, err := GetValue(tempConfigPath(t), "log_level")
	if err != nil {
		t.Fatalf("GetValue on new config failed: %v", err)
	}
	if v != "info" {
		t.Errorf("expected default log_level=info, got %v", v)
	}
}

func TestSetValue(t *testing.T) {
	tests := []struct {
		key, raw string
		want     any
	}{
		{"log_level", "debug", "debug"},
		{"max_concurrent", "16", float64(16)},
		{"llm.temperature", "0.3", 0.3},
		{"llm.model", "gpt-4", "gpt-4"},
		{"hosted.per_session_threads", "true", true},
		{"custom.setting", "value", "value"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			path := tempConfigPath(t)
			cfg := &Config{LogLevel: "info"}
			cfg.LLM.Provider = "openai"
			writeTestConfig(t, path, cfg)

			if err := SetValue(path, tt.key, tt.raw); err != nil {
				t.Fatalf("SetValue failed: %v", err)
			}
			got, err := GetValue(path, tt.key)
			if err != nil {
				t.Fatalf("GetValue failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("%s = %v (%T), want %v", tt.key, got, got, tt.want)
			}
			if other, _ := GetValue(path, "llm.provider"); other != "openai" {
				t.Errorf("llm.provider not preserved, got %v", other)
			}
		})
	}
}

func TestSetValue_NonexistentFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist", "config.json")
	if err := SetValue(path, "log_level", "debug"); err == nil {
		t.Fatal("expected error for nonexistent file, got nil")
	}
}

func TestSave_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "subdir", "config.json")

	cfg := &Config{LogLevel: "warn"}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save should create parent directory, got: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file should exist: %v", err)
	}
}

func TestLoad_WritesDefaults(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HTTP.Listen != "127.0.0.1:8484" || !cfg.HTTP.Enabled {
		t.Errorf("unexpected http defaults %+v", cfg.HTTP)
	}
	if cfg.MaxConcurrent != 2 || cfg.MaxToolRounds != 10 || cfg.Hosted.PollIntervalMS != 1000 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("defaults not written: %v", err)
	}
}

func TestLoad_HuJSON(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)
	data := `{
	// local model
	"llm": {
		"provider": "ollama",
		"model": "llama3.1", // trailing comma below
	},
}
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.Provider != "ollama" || cfg.LLM.Model != "llama3.1" {
		t.Errorf("unexpected llm %+v", cfg.LLM)
	}
	// Unset keys keep their defaults.
	if cfg.LLM.MaxTokens != 2000 {
		t.Errorf("expected default max_tokens, got %d", cfg.LLM.MaxTokens)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)
	cfg := defaults()
	cfg.LLM.APIKey = "from-file"
	writeTestConfig(t, path, cfg)

	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("TASKPILOT_ASSISTANT_ID", "asst_env")
	t.Setenv("TELEGRAM_BOT_TOKEN", "tg-env")
	t.Setenv("ANTHROPIC_API_KEY", "ignored-for-openai")

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.LLM.APIKey != "sk-env" || loaded.Hosted.APIKey != "sk-env" {
		t.Errorf("OPENAI_API_KEY not applied: %q %q", loaded.LLM.APIKey, loaded.Hosted.APIKey)
	}
	if loaded.Hosted.AssistantID != "asst_env" || loaded.Telegram.Token != "tg-env" {
		t.Errorf("unexpected overrides %+v %+v", loaded.Hosted, loaded.Telegram)
	}
}

func TestLoad_EnvOverridesFollowProvider(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)
	cfg := defaults()
	cfg.LLM.Provider = "anthropic"
	writeTestConfig(t, path, cfg)

	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.LLM.APIKey != "sk-ant" {
		t.Errorf("expected anthropic key for llm, got %q", loaded.LLM.APIKey)
	}
	if loaded.Hosted.APIKey != "sk-openai" {
		t.Errorf("expected openai key for hosted, got %q", loaded.Hosted.APIKey)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	path := tempConfigPath(t)
	if err := os.WriteFile(path, []byte(`{"llm": `), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSetValue_PreservesComments(t *testing.T) {
	path := tempConfigPath(t)
	data := `{
	// which assistant to run
	"hosted": {"assistant_id": "asst_old"},
}
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	if err := SetValue(path, "hosted.assistant_id", "asst_new"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "// which assistant to run") {
		t.Errorf("comment lost:\n%s", raw)
	}
	v, err := GetValue(path, "hosted.assistant_id")
	if err != nil {
		t.Fatal(err)
	}
	if v != "asst_new" {
		t.Errorf("expected asst_new, got %v", v)
	}
}

func TestSetValue_ThroughScalar(t *testing.T) {
	path := tempConfigPath(t)
	writeTestConfig(t, path, &Config{LogLevel: "info"})

	if err := SetValue(path, "log_level.nested", "x"); err == nil {
		t.Fatal("expected error setting a key beneath a scalar")
	}
}
