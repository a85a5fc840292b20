package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetFlags restores every flag of cmd and its children to its default so
// that executions of the shared command tree do not leak into each other.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// executeCommand runs the root command with args and captures stdout and
// stderr separately.
func executeCommand(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err = rootCmd.Execute()
	return out.String(), errOut.String(), err
}

func TestRootCommand(t *testing.T) {
	assert.NotNil(t, rootCmd)
	assert.Equal(t, "folio", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.Same(t, rootCmd, GetRootCommand())
}

func TestRootCommandHelp(t *testing.T) {
	out, _, err := executeCommand(t, "--help")
	require.NoError(t, err)

	assert.Contains(t, out, "IIIF Presentation 2.x manifests and collections")
	assert.Contains(t, out, "Available Commands:")
	assert.Contains(t, out, "Usage:")
}

func TestRootCommandVersion(t *testing.T) {
	out, _, err := executeCommand(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "folio version ")
}

func TestRootCommandNoArgs(t *testing.T) {
	out, _, err := executeCommand(t)
	require.NoError(t, err)
	assert.Contains(t, out, "Usage:")
}

func TestRootCommandSubcommands(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, expected := range []string{"validate", "validate-list", "prepare", "run", "ocr", "sample-image-url", "config"} {
		assert.Contains(t, names, expected, "Expected subcommand '%s' not found", expected)
	}
}

func TestRootCommandInvalidFlag(t *testing.T) {
	_, errOut, err := executeCommand(t, "--invalid-flag")
	require.Error(t, err)
	assert.Contains(t, err.Error()+errOut, "unknown flag")
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"plain error", errors.New("boom"), 1},
		{"exit error", exitWith(2, "issues"), 2},
		{"wrapped exit error", fmt.Errorf("outer: %w", &ExitError{Code: 3, Err: errors.New("inner")}), 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestExitError(t *testing.T) {
	inner := errors.New("inner")
	err := &ExitError{Code: 2, Err: inner}
	assert.Equal(t, "inner", err.Error())
	assert.ErrorIs(t, err, inner)
}

func TestGetConfig_EnvironmentOverride(t *testing.T) {
	t.Setenv("FOLIO_OCR_MODEL", "env-model.mlmodel")
	require.NoError(t, initConfig())

	cfg := GetConfig()
	assert.Equal(t, "env-model.mlmodel", cfg.OCR.Model)
}

func TestGetConfig_CacheDirFlag(t *testing.T) {
	dir := t.TempDir()
	out, _, err := executeCommand(t, "--cache-dir", dir, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "cache_dir: "+dir)
}
