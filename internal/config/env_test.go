package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnv(t *testing.T) {
	unsetEnv(t, "BASIS_TEST_FOO")
	unsetEnv(t, "BASIS_TEST_QUOTED")
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "" +
		"# comment\n" +
		"BASIS_TEST_FOO=bar\n" +
		"BASIS_TEST_QUOTED=\"baz\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	if err := LoadEnv(path); err != nil {
		t.Fatalf("load env: %v", err)
	}
	if got := os.Getenv("BASIS_TEST_FOO"); got != "bar" {
		t.Fatalf("BASIS_TEST_FOO expected bar, got %q", got)
	}
	if got := os.Getenv("BASIS_TEST_QUOTED"); got != "baz" {
		t.Fatalf("BASIS_TEST_QUOTED expected baz, got %q", got)
	}
}

func TestLoadEnvDoesNotOverrideExisting(t *testing.T) {
	t.Setenv("BASIS_TEST_FOO", "existing")
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("BASIS_TEST_FOO=bar\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	if err := LoadEnv(path); err != nil {
		t.Fatalf("load env: %v", err)
	}
	if got := os.Getenv("BASIS_TEST_FOO"); got != "existing" {
		t.Fatalf("BASIS_TEST_FOO expected existing, got %q", got)
	}
}

func TestLoadEnvMissingFileIsIgnored(t *testing.T) {
	if err := LoadEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing file should be ignored, got %v", err)
	}
}

func unsetEnv(t *testing.T, key string) {
	t.Helper()
	if old, ok := os.LookupEnv(key); ok {
		t.Cleanup(func() { _ = os.Setenv(key, old) })
	} else {
		t.Cleanup(func() { _ = os.Unsetenv(key) })
	}
	_ = os.Unsetenv(key)
}
