package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	cfgFile, logLevel, listenAddr, devMode, outDir = "", "", "", false, "dist"

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "docshell.yaml")
	require.NoError(t, os.WriteFile(p, []byte(contents), 0o600))
	return p
}

func TestLinksCommand(t *testing.T) {
	var links []linkJSON
	require.NoError(t, json.Unmarshal([]byte(execute(t, "links", "--log-level", "error")), &links))

	require.Len(t, links, 4)
	assert.Equal(t, linkJSON{Rel: "icon", Href: links[0].Href, Type: "image/svg+xml"}, links[0])
	for _, link := range links[1:] {
		assert.Equal(t, "stylesheet", link.Rel)
	}
	assert.True(t, strings.HasPrefix(links[3].Href, "/build/global-"))
}

func TestLinksCommandWithoutBundle(t *testing.T) {
	cfg := writeConfig(t, "log_level: error\nbundle:\n  enabled: false\n")

	var links []linkJSON
	require.NoError(t, json.Unmarshal([]byte(execute(t, "links", "--config", cfg)), &links))
	assert.Len(t, links, 3)
}

func TestBuildCommand(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	href := strings.TrimSpace(execute(t, "build", "--out", dir, "--log-level", "error"))
	require.True(t, strings.HasPrefix(href, "/build/global-"), href)

	contents, err := os.ReadFile(filepath.Join(dir, filepath.Base(href)))
	require.NoError(t, err)
	assert.Contains(t, string(contents), "--color-background")
}

func TestInvalidConfig(t *testing.T) {
	cfgFile, logLevel, listenAddr, devMode, outDir = "", "", "", false, "dist"
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"links", "--config", writeConfig(t, "metrics:\n  path: metrics\n")})
	assert.Error(t, cmd.Execute())
}
