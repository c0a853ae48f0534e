package config

import "testing"

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Gateway.HTTPPort != 8080 {
		t.Errorf("expected default http port 8080, got %d", cfg.Gateway.HTTPPort)
	}
	if cfg.Engine.ExecutionTimeout.Seconds() != 30 {
		t.Errorf("expected 30s execution timeout, got %v", cfg.Engine.ExecutionTimeout)
	}
	if cfg.Gateway.MaxBodyBytes != 1<<20 {
		t.Errorf("expected 1MiB body cap, got %d", cfg.Gateway.MaxBodyBytes)
	}
}

func TestLoadAppliesFlagsOverDefaults(t *testing.T) {
	cfg, err := Load("", "", []string{"-http-port", "9090", "-max-concurrent", "4"})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Gateway.HTTPPort != 9090 {
		t.Errorf("expected flag-overridden port 9090, got %d", cfg.Gateway.HTTPPort)
	}
	if cfg.Engine.MaxConcurrent != 4 {
		t.Errorf("expected flag-overridden concurrency 4, got %d", cfg.Engine.MaxConcurrent)
	}
}

func TestLoadMissingFilesIsNotAnError(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml", "/nonexistent/.env", nil); err != nil {
		t.Fatalf("missing optional files should not error: %v", err)
	}
}
