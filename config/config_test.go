package config

import "testing"

func TestLoadAllowsKeylessLocalBackend(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MURMUR_BASE_URL", "http://localhost:8080")
	t.Setenv("MURMUR_API_KEY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIKey != "" {
		t.Fatalf("APIKey = %q, want empty", cfg.APIKey)
	}
	if cfg.BaseURL != "http://localhost:8080" {
		t.Fatalf("BaseURL = %q", cfg.BaseURL)
	}
}

func TestLoadRequiresKeyForHostedBackend(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MURMUR_API_KEY", "")

	// default base_url points at the hosted backend
	if _, err := Load(); err == nil {
		t.Fatal("Load accepted a hosted backend without an api key")
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MURMUR_API_KEY", "sk-test")
	t.Setenv("MURMUR_LISTEN_ADDR", ":9999")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIKey != "sk-test" {
		t.Fatalf("APIKey = %q", cfg.APIKey)
	}
	if cfg.ListenAddr != ":9999" {
		t.Fatalf("ListenAddr = %q", cfg.ListenAddr)
	}
}

func TestIsLoopback(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"http://localhost:8080", true},
		{"http://127.0.0.1:9000", true},
		{"http://[::1]:9000", true},
		{"https://api.deepgram.com", false},
		{"https://stt.internal.example", false},
	}
	for _, tc := range cases {
		if got := isLoopback(tc.url); got != tc.want {
			t.Errorf("isLoopback(%q) = %v, want %v", tc.url, got, tc.want)
		}
	}
}
