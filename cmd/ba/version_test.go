package main

import (
	"bytes"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/version"
)

func setVersion(t *testing.T, v, commit, date string) {
	t.Helper()
	orig, origC, origD := version.Version, version.Commit, version.Date
	t.Cleanup(func() {
		version.Version, version.Commit, version.Date = orig, origC, origD
	})
	version.Version, version.Commit, version.Date = v, commit, date
}

func TestVersionCmd_Output(t *testing.T) {
	setVersion(t, "test", "abc123", "2025-01-01")
	// version must not touch the config file, even a broken one.
	t.Setenv("HOME", t.TempDir())

	var buf bytes.Buffer
	root := newRootCmd()
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs([]string{"--config", "/nonexistent/config.yaml", "version"})
	require.NoError(t, root.Execute())

	out := buf.String()
	for _, want := range []string{"test", "abc123", "2025-01-01"} {
		assert.Contains(t, out, want)
	}
}

func TestVersionInfo_Format(t *testing.T) {
	setVersion(t, "v1.2.3", "deadbeef", "2026-01-15")
	info := version.Info()

	assert.True(t, strings.HasPrefix(info, "ba version v1.2.3\n"), "first line wrong: %q", info)
	assert.Contains(t, info, "commit: deadbeef")
	assert.Contains(t, info, "built: 2026-01-15")
	assert.Contains(t, info, "go: "+runtime.Version())
}

func TestVersionInfo_Defaults(t *testing.T) {
	setVersion(t, "dev", "none", "unknown")
	info := version.Info()

	assert.Contains(t, info, "commit: none")
	assert.Contains(t, info, "built: unknown")
}
