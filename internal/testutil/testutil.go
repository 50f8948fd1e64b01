// Package testutil provides isolated test environments for tests that
// touch the config layer or need a scratch deployment layout.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/docfoundry/docfoundry/internal/config"
)

// TestEnv provides an isolated test environment with its own config
// directory and deployment paths.
type TestEnv struct {
	t          *testing.T
	ConfigDir  string
	LibraryDir string
}

// NewTestEnv creates an isolated test environment. Environment
// variables override every path-bearing setting, so tests stay
// isolated even when packages run in parallel. Cleanup is automatic
// via t.Cleanup.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	root := t.TempDir()
	configDir := filepath.Join(root, "config")
	libraryDir := filepath.Join(root, "library")
	for _, dir := range []string{configDir, libraryDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("failed to create test dir %s: %v", dir, err)
		}
	}

	// t.Setenv scopes the overrides to this test; viper picks them up
	// through AutomaticEnv.
	t.Setenv("DOCFOUNDRY_CONFIG_DIR", configDir)
	t.Setenv("DOCFOUNDRY_LOG_FILE", filepath.Join(configDir, "docfoundry.log"))
	t.Setenv("DOCFOUNDRY_INGEST_LIBRARY_DIR", libraryDir)
	t.Setenv("DOCFOUNDRY_INGEST_PROCESSED_DIR", filepath.Join(root, "processed"))
	t.Setenv("DOCFOUNDRY_STATUS_STORE_PATH", filepath.Join(root, "status.db"))
	t.Setenv("DOCFOUNDRY_VECTOR_STORE_DIR", filepath.Join(root, "vectors"))
	t.Setenv("DOCFOUNDRY_SUPERVISOR_BASE_DIR", root)
	t.Setenv("DOCFOUNDRY_SUPERVISOR_LOG_DIR", filepath.Join(root, "logs"))
	t.Setenv("DOCFOUNDRY_SUPERVISOR_PID_FILE", filepath.Join(root, "docfoundry.pid"))

	config.Reset()
	if err := config.Init(); err != nil {
		t.Fatalf("failed to initialize test config: %v", err)
	}

	env := &TestEnv{
		t:          t,
		ConfigDir:  configDir,
		LibraryDir: libraryDir,
	}

	t.Cleanup(func() {
		config.Reset()
	})

	return env
}

// StatusStorePath returns the path where the test status database will
// be created.
func (e *TestEnv) StatusStorePath() string {
	return filepath.Join(filepath.Dir(e.ConfigDir), "status.db")
}

// CreateLibraryFile writes a document into the test library.
// Returns the absolute path to the created file.
func (e *TestEnv) CreateLibraryFile(name, content string) string {
	e.t.Helper()

	path := filepath.Join(e.LibraryDir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		e.t.Fatalf("failed to create library file %s: %v", path, err)
	}
	return path
}

// CreateTestDir creates a named scratch directory for test data.
func (e *TestEnv) CreateTestDir(name string) string {
	e.t.Helper()

	dir := filepath.Join(e.t.TempDir(), name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		e.t.Fatalf("failed to create test dir %s: %v", name, err)
	}
	return dir
}
