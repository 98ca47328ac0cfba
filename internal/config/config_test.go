package config

import (
	"os"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg == nil {
		t.Fatal("Config should not be nil")
	}

	if cfg.Port != 8090 {
		t.Errorf("Expected default port 8090, got %d", cfg.Port)
	}
	if cfg.DatabaseURL != "./llmrace.db" {
		t.Errorf("Expected default database url './llmrace.db', got %s", cfg.DatabaseURL)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level 'info', got %s", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("Expected default log format 'json', got %s", cfg.LogFormat)
	}
	if cfg.AuthMode != "disabled" {
		t.Errorf("Expected default auth mode 'disabled', got %s", cfg.AuthMode)
	}
	if cfg.ToolLoopLimit != 3 {
		t.Errorf("Expected default tool loop limit 3, got %d", cfg.ToolLoopLimit)
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	os.Setenv("LLMRACE_PORT", "9000")
	os.Setenv("LLMRACE_DATABASE_URL", "/tmp/test.db")
	os.Setenv("LLMRACE_LOG_LEVEL", "debug")
	os.Setenv("LLMRACE_AUTH_MODE", "required")
	defer func() {
		os.Unsetenv("LLMRACE_PORT")
		os.Unsetenv("LLMRACE_DATABASE_URL")
		os.Unsetenv("LLMRACE_LOG_LEVEL")
		os.Unsetenv("LLMRACE_AUTH_MODE")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Port != 9000 {
		t.Errorf("Expected port 9000 from env, got %d", cfg.Port)
	}
	if cfg.DatabaseURL != "/tmp/test.db" {
		t.Errorf("Expected database url '/tmp/test.db' from env, got %s", cfg.DatabaseURL)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log level 'debug' from env, got %s", cfg.LogLevel)
	}
	if cfg.AuthMode != "required" {
		t.Errorf("Expected auth mode 'required' from env, got %s", cfg.AuthMode)
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load should not error when config file is missing: %v", err)
	}
	if cfg == nil {
		t.Fatal("Config should not be nil even without config file")
	}
}
