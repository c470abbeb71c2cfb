package configuration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadEnv_FallsBackToGoModRoot(t *testing.T) {
	tmp := t.TempDir()

	requireWriteFile(t, filepath.Join(tmp, "go.mod"), "module example.com/test\n\ngo 1.22\n")
	requireWriteFile(t, filepath.Join(tmp, ".env.local"), "MEMBER_IMPORT_TEST_ENV_LOAD=ok\n")

	sub := filepath.Join(tmp, "modules", "importer")
	requireMkdirAll(t, sub)

	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	if err := os.Chdir(sub); err != nil {
		t.Fatalf("chdir: %v", err)
	}

	_ = os.Unsetenv("MEMBER_IMPORT_TEST_ENV_LOAD")
	t.Cleanup(func() { _ = os.Unsetenv("MEMBER_IMPORT_TEST_ENV_LOAD") })

	n, err := LoadEnv([]string{".env", ".env.local"})
	if err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 env file loaded, got %d", n)
	}
	if got := os.Getenv("MEMBER_IMPORT_TEST_ENV_LOAD"); got != "ok" {
		t.Fatalf("expected env var loaded from repo root, got %q", got)
	}
}

func TestImportOptions_Validate(t *testing.T) {
	opts := ImportOptions{Backend: " Postgres ", CheckpointBackend: "FILE", InputEncoding: "Latin1"}
	require.NoError(t, opts.Validate(""))
	require.Equal(t, "postgres", opts.Backend)
	require.Equal(t, "file", opts.CheckpointBackend)
	require.Equal(t, "latin1", opts.InputEncoding)

	bad := ImportOptions{Backend: "sqlite", CheckpointBackend: "file"}
	require.ErrorContains(t, bad.Validate(""), "IMPORT_BACKEND")

	redis := ImportOptions{Backend: "memory", CheckpointBackend: "redis", CheckpointKey: "k"}
	require.ErrorContains(t, redis.Validate(""), "REDIS_URL")
	require.NoError(t, redis.Validate("redis://localhost:6379/0"))
}

func TestParse_ReadsImportEnvironment(t *testing.T) {
	t.Setenv("IMPORT_BACKEND", "postgres")
	t.Setenv("IMPORT_CHECKPOINT_FILE", "/var/lib/member-import/continue")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DB_NAME", "legacy")

	c := &Configuration{}
	require.NoError(t, c.parse())
	t.Cleanup(c.Unload)

	require.Equal(t, "postgres", c.Import.Backend)
	require.Equal(t, "/var/lib/member-import/continue", c.Import.CheckpointFile)
	require.Equal(t, "debug", c.LogLevel)
	require.NotNil(t, c.Logger())
	require.Contains(t, c.Database.Opts, "dbname=legacy")
}

func requireWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func requireMkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}
