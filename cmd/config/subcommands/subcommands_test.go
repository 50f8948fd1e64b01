package subcommands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/docfoundry/docfoundry/internal/config"
	"github.com/docfoundry/docfoundry/internal/testutil"
)

func writeConfigFile(t *testing.T, env *testutil.TestEnv, content string) string {
	t.Helper()

	path := filepath.Join(env.ConfigDir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	// Re-init so the config subsystem picks the file up.
	config.Reset()
	if err := config.Init(); err != nil {
		t.Fatalf("config.Init() error = %v", err)
	}
	return path
}

func TestValidate_ValidConfigFile(t *testing.T) {
	env := testutil.NewTestEnv(t)
	writeConfigFile(t, env, "log_level: debug\n")

	if err := runValidate(ValidateCmd, nil); err != nil {
		t.Errorf("runValidate() error = %v, want nil", err)
	}
}

func TestValidate_InvalidConfigValue(t *testing.T) {
	env := testutil.NewTestEnv(t)
	writeConfigFile(t, env, "supervisor:\n  redis_port: 70000\n")

	if err := runValidate(ValidateCmd, nil); err == nil {
		t.Error("runValidate() error = nil, want validation failure")
	}
}

func TestShow_EffectiveConfig(t *testing.T) {
	env := testutil.NewTestEnv(t)
	writeConfigFile(t, env, "log_level: warn\n")

	showRaw = false
	if err := runShow(ShowCmd, nil); err != nil {
		t.Errorf("runShow() error = %v, want nil", err)
	}
}

func TestShow_RawConfig(t *testing.T) {
	env := testutil.NewTestEnv(t)
	writeConfigFile(t, env, "log_level: warn\n")

	showRaw = true
	defer func() { showRaw = false }()
	if err := runShow(ShowCmd, nil); err != nil {
		t.Errorf("runShow() error = %v, want nil", err)
	}
}
