package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// testWorkspace writes a release definition and a config using the fs store
func testWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	definition := `product: Lapce
binary: lapce
platforms:
  windows:
    targets: [x86_64-pc-windows-msvc]
    installer:
      source: lapce.wxs
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "release.yml"), []byte(definition), 0600))

	cfg := `source_dir = "` + dir + `"
work_dir = "` + filepath.Join(dir, "dist") + `"

[publish]
store = "fs"

[fs]
dir = "` + filepath.Join(dir, "published") + `"

[ledger]
path = "` + filepath.Join(dir, "ledger.db") + `"
`
	path := filepath.Join(dir, ".tagship.toml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0600))
	return path
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitFailed, exitCode(withExitCode(exitFailed, errors.New("x"))))
	assert.Equal(t, exitInvalid, exitCode(withExitCode(exitInvalid, nil)))
	assert.Equal(t, exitInvalid, exitCode(errors.New(`unknown command "foo"`)))
}

func TestNormalizeTag(t *testing.T) {
	assert.Equal(t, "v0.4.0", normalizeTag("refs/tags/v0.4.0"))
	assert.Equal(t, "v0.4.0", normalizeTag(" v0.4.0\n"))
	assert.Equal(t, "refs/heads/main", normalizeTag("refs/heads/main"))
}

func TestToPlatforms(t *testing.T) {
	got := toPlatforms([]string{"MacOS", " windows ", ""})
	require.Len(t, got, 2)
	assert.Equal(t, "macos", string(got[0]))
	assert.Equal(t, "windows", string(got[1]))
}

func TestValidateTagCmd(t *testing.T) {
	out, err := executeCLI(t, "validate-tag", "refs/tags/v0.4.0-rc.1")
	require.NoError(t, err)
	assert.Contains(t, out, "v0.4.0-rc.1 is a valid prerelease tag")

	for _, bad := range []string{"1.2.3", "v1.2", "v1.2.3+build.5", "v01.2.3"} {
		_, err := executeCLI(t, "validate-tag", bad)
		assert.Equal(t, exitInvalid, exitCode(err), bad)
	}
}

func TestRunCmd_InvalidTagExitsTwo(t *testing.T) {
	configPath := testWorkspace(t)

	_, err := executeCLI(t, "--config", configPath, "run", "1.2.3")
	require.Error(t, err)
	assert.Equal(t, exitInvalid, exitCode(err))

	// nothing was wired, so no ledger was created
	_, statErr := os.Stat(filepath.Join(filepath.Dir(configPath), "ledger.db"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunCmd_UnknownPlatformExitsTwo(t *testing.T) {
	configPath := testWorkspace(t)

	_, err := executeCLI(t, "--config", configPath, "run", "v0.4.0", "--platform", "linux")
	require.Error(t, err)
	assert.Equal(t, exitInvalid, exitCode(err))
}

func TestRunCmd_BadConfigExitsTwo(t *testing.T) {
	_, err := executeCLI(t, "--config", filepath.Join(t.TempDir(), "missing.toml"), "run", "v0.4.0")
	assert.Equal(t, exitInvalid, exitCode(err))
}

func TestStatusCmd_NoRuns(t *testing.T) {
	configPath := testWorkspace(t)

	out, err := executeCLI(t, "--config", configPath, "status", "v0.4.0")
	require.NoError(t, err)
	assert.Contains(t, out, "no runs recorded for v0.4.0")
}

func TestVerifyCmd_Checksum(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "Lapce-windows.msi")
	require.NoError(t, os.WriteFile(file, []byte("installer"), 0600))

	_, err := executeCLI(t, "verify", file)
	assert.Equal(t, exitInvalid, exitCode(err), "no sidecar present")

	sum := sha256.Sum256([]byte("installer"))
	require.NoError(t, os.WriteFile(file+".sha256", []byte(hex.EncodeToString(sum[:])+"  Lapce-windows.msi\n"), 0600))

	out, err := executeCLI(t, "verify", file)
	require.NoError(t, err)
	assert.Contains(t, out, "checksum: ok")

	require.NoError(t, os.WriteFile(file, []byte("tampered"), 0600))
	_, err = executeCLI(t, "verify", file)
	assert.Equal(t, exitFailed, exitCode(err))
}

func TestVerifyCmd_SignatureNeedsKey(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "Lapce-macos.dmg")
	require.NoError(t, os.WriteFile(file, []byte("dmg"), 0600))

	_, err := executeCLI(t, "verify", file, "--sig", file+".asc")
	assert.Equal(t, exitInvalid, exitCode(err))
}
