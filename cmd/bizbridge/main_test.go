package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atu-ide/bizbridge/internal/client"
	"github.com/atu-ide/bizbridge/internal/config"
)

func TestParseHead(t *testing.T) {
	head, err := parseHead("compile_all:compiler")
	require.NoError(t, err)
	assert.Equal(t, "compile_all--compiler", head.EventKey())

	for _, bad := range []string{"compile_all", ":compiler", "compile_all:"} {
		_, err := parseHead(bad)
		assert.Error(t, err, bad)
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg, err := config.LoadConfigFromBytes([]byte(defaultConfig), "yaml")
	require.NoError(t, err)
	assert.Equal(t, "object", cfg.Output["echo"])
	assert.Len(t, cfg.Menus, 1)
}

func TestLoadConfigAppliesFlagOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(defaultConfig), 0644))

	configPath = path
	t.Cleanup(func() { configPath = "" })

	require.NoError(t, fetchCmd.ParseFlags([]string{"--url", "ws://127.0.0.1:7070/bridge", "--timeout", "3s"}))
	t.Cleanup(func() {
		fetchCmd.Flags().Set("url", "")
		fetchCmd.Flags().Set("timeout", "0s")
	})

	cfg, err := loadConfig(fetchCmd)
	require.NoError(t, err)
	assert.Equal(t, client.KindWebsocket, cfg.Transport.Kind)
	assert.Equal(t, "ws://127.0.0.1:7070/bridge", cfg.Transport.URL)
	assert.Equal(t, "3s", cfg.Session.RequestTimeout)
}
