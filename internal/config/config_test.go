package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/delfador0x42/amaranthine/internal/config"
)

func Test_ResolveDir_Uses_Env_Var_When_Set(t *testing.T) {
	t.Setenv(config.DirEnvVar, "/tmp/custom-amaranthine")

	dir, err := config.ResolveDir()
	if err != nil {
		t.Fatalf("ResolveDir: %v", err)
	}
	if dir != "/tmp/custom-amaranthine" {
		t.Fatalf("dir = %q, want override", dir)
	}
}

func Test_Load_Missing_File_Returns_Defaults_When_Invoked(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.SearchLimit != config.Default().SearchLimit {
		t.Fatalf("SearchLimit = %d, want default", cfg.SearchLimit)
	}
}

func Test_Load_Merges_Jsonc_Overrides_When_Present(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	content := "{\n  // comment\n  \"search_limit\": 25,\n}\n"
	if err := os.WriteFile(filepath.Join(dir, config.ConfigFileName), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.SearchLimit != 25 {
		t.Fatalf("SearchLimit = %d, want 25", cfg.SearchLimit)
	}
	if cfg.DefaultDetail != config.Default().DefaultDetail {
		t.Fatal("expected unset fields to keep defaults")
	}
}
