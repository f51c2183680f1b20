package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shelfmgr/libshelf/internal/config"
)

func TestDefault_Values(t *testing.T) {
	cfg := config.Default()
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr: got %q, want :8080", cfg.ListenAddr)
	}
	if cfg.StorePath != "./library.db" {
		t.Errorf("StorePath: got %q, want ./library.db", cfg.StorePath)
	}
	if cfg.WindowSize != 50 {
		t.Errorf("WindowSize: got %d, want 50", cfg.WindowSize)
	}
	if cfg.BatchSize != 500 {
		t.Errorf("BatchSize: got %d, want 500", cfg.BatchSize)
	}
}

func TestLoad_EmptyPath_UsesDefaults(t *testing.T) {
	t.Setenv("LISTEN_ADDR", "")
	t.Setenv("STORE_PATH", "")
	t.Setenv("WINDOW_SIZE", "")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr: got %q, want :8080", cfg.ListenAddr)
	}
	if cfg.StorePath != "./library.db" {
		t.Errorf("StorePath: got %q, want ./library.db", cfg.StorePath)
	}
}

func TestLoad_FromYAMLFile(t *testing.T) {
	yamlDoc := `
listen_addr: ":9090"
store_path: "/var/lib/libshelf/library.db"
window_size: 25
`
	path := writeTemp(t, "config.yaml", yamlDoc)

	t.Setenv("LISTEN_ADDR", "")
	t.Setenv("STORE_PATH", "")
	t.Setenv("WINDOW_SIZE", "")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr: got %q, want :9090", cfg.ListenAddr)
	}
	if cfg.StorePath != "/var/lib/libshelf/library.db" {
		t.Errorf("StorePath: got %q, want /var/lib/libshelf/library.db", cfg.StorePath)
	}
	if cfg.WindowSize != 25 {
		t.Errorf("WindowSize: got %d, want 25", cfg.WindowSize)
	}
}

func TestLoad_PartialYAML_UsesDefaults(t *testing.T) {
	yamlDoc := `listen_addr: ":7777"`
	path := writeTemp(t, "partial.yaml", yamlDoc)

	t.Setenv("LISTEN_ADDR", "")
	t.Setenv("STORE_PATH", "")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.ListenAddr != ":7777" {
		t.Errorf("ListenAddr: got %q, want :7777", cfg.ListenAddr)
	}
	if cfg.StorePath != "./library.db" {
		t.Errorf("StorePath: got %q, want ./library.db (default)", cfg.StorePath)
	}
}

func TestLoad_EnvVarsOverrideFile(t *testing.T) {
	yamlDoc := `
listen_addr: ":9090"
store_path: "/file/library.db"
window_size: 10
`
	path := writeTemp(t, "config.yaml", yamlDoc)

	t.Setenv("LISTEN_ADDR", ":5555")
	t.Setenv("STORE_PATH", "/env/library.db")
	t.Setenv("WINDOW_SIZE", "99")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.ListenAddr != ":5555" {
		t.Errorf("ListenAddr: got %q, want :5555 (from env)", cfg.ListenAddr)
	}
	if cfg.StorePath != "/env/library.db" {
		t.Errorf("StorePath: got %q, want /env/library.db (from env)", cfg.StorePath)
	}
	if cfg.WindowSize != 99 {
		t.Errorf("WindowSize: got %d, want 99 (from env)", cfg.WindowSize)
	}
}

func TestLoad_EnvVarsOverrideDefaults(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":3000")
	t.Setenv("STORE_PATH", "/custom/library.db")
	t.Setenv("BATCH_SIZE", "250")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.ListenAddr != ":3000" {
		t.Errorf("ListenAddr: got %q, want :3000", cfg.ListenAddr)
	}
	if cfg.StorePath != "/custom/library.db" {
		t.Errorf("StorePath: got %q, want /custom/library.db", cfg.StorePath)
	}
	if cfg.BatchSize != 250 {
		t.Errorf("BatchSize: got %d, want 250", cfg.BatchSize)
	}
}

func TestLoad_NonexistentFile_ReturnsError(t *testing.T) {
	_, err := config.Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent config file, got nil")
	}
}

func TestLoad_InvalidYAML_ReturnsError(t *testing.T) {
	path := writeTemp(t, "bad.yaml", "{ invalid yaml: [")
	_, err := config.Load(path)
	if err == nil {
		t.Error("expected error for invalid YAML, got nil")
	}
}

func TestFindConfigFile_EnvVar(t *testing.T) {
	path := writeTemp(t, "explicit.yaml", "listen_addr: \":1234\"")
	t.Setenv("LIBSHELF_CONFIG", path)

	found := config.FindConfigFile()
	if found != path {
		t.Errorf("FindConfigFile: got %q, want %q", found, path)
	}
}

func TestFindConfigFile_NoFile_ReturnsEmpty(t *testing.T) {
	t.Setenv("LIBSHELF_CONFIG", "")

	orig, _ := os.Getwd()
	dir := t.TempDir()
	_ = os.Chdir(dir)
	defer func() { _ = os.Chdir(orig) }()

	found := config.FindConfigFile()
	if found == "libshelf.yaml" {
		t.Error("should not return local libshelf.yaml from temp dir")
	}
}

// ---- busy_timeout config ----

func TestDefault_BusyTimeout(t *testing.T) {
	cfg := config.Default()
	if cfg.BusyTimeout != 5*time.Second {
		t.Errorf("default BusyTimeout: got %v, want 5s", cfg.BusyTimeout)
	}
	if cfg.BusyTimeoutStr != "5s" {
		t.Errorf("default BusyTimeoutStr: got %q, want 5s", cfg.BusyTimeoutStr)
	}
}

func TestLoad_BusyTimeout_FromYAML(t *testing.T) {
	yamlDoc := `busy_timeout: "10s"`
	path := writeTemp(t, "busy.yaml", yamlDoc)
	t.Setenv("BUSY_TIMEOUT", "")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.BusyTimeout != 10*time.Second {
		t.Errorf("BusyTimeout: got %v, want 10s", cfg.BusyTimeout)
	}
}

func TestLoad_BusyTimeout_FromEnv(t *testing.T) {
	t.Setenv("BUSY_TIMEOUT", "30s")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.BusyTimeout != 30*time.Second {
		t.Errorf("BusyTimeout from env: got %v, want 30s", cfg.BusyTimeout)
	}
}

func TestLoad_BusyTimeout_InvalidString_KeepsDefault(t *testing.T) {
	yamlDoc := `busy_timeout: "not-a-duration"`
	path := writeTemp(t, "busy_bad.yaml", yamlDoc)
	t.Setenv("BUSY_TIMEOUT", "")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.BusyTimeout != 5*time.Second {
		t.Errorf("BusyTimeout with invalid string: got %v, want 5s (preserved default)", cfg.BusyTimeout)
	}
}

func TestStoreConfig_TranslatesFields(t *testing.T) {
	cfg := config.Default()
	cfg.BatchSize = 123
	cfg.CacheSizeKB = -4000

	sc := cfg.StoreConfig()
	if sc.BatchSize != 123 {
		t.Errorf("StoreConfig BatchSize: got %d, want 123", sc.BatchSize)
	}
	if sc.CacheSizeKB != -4000 {
		t.Errorf("StoreConfig CacheSizeKB: got %d, want -4000", sc.CacheSizeKB)
	}
	if sc.BusyTimeout != cfg.BusyTimeout {
		t.Errorf("StoreConfig BusyTimeout: got %v, want %v", sc.BusyTimeout, cfg.BusyTimeout)
	}
}

// writeTemp creates a temporary file with the given content and returns its path.
func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writeTemp: %v", err)
	}
	return path
}
