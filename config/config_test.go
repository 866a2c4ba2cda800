package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8645", cfg.ListenAddress)
	require.Equal(t, "streamvault-local", cfg.NetworkName)
	require.Equal(t, "local", cfg.Env)
	require.FileExists(t, path)

	// Loading again round-trips the generated file.
	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.ListenAddress, again.ListenAddress)
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`ListenAddress = ":9000"`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.ListenAddress)
	require.Equal(t, "./streamvault-data", cfg.DataDir)
	require.Empty(t, cfg.GenesisAlloc)
}

func TestLoadParsesGenesisAlloc(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
ListenAddress = ":9000"

[[GenesisAlloc]]
Address = "svt1qypqxpq9qcrsszg2pvxq6rs0zqg3yyc5z5tpwxqergd3c8g7rusq52zjf5"
Token = "SVT"
Amount = "1000000"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.GenesisAlloc, 1)
	require.Equal(t, "SVT", cfg.GenesisAlloc[0].Token)
	require.Equal(t, "1000000", cfg.GenesisAlloc[0].Amount)
}

func TestLoadRejectsIncompleteAlloc(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[[GenesisAlloc]]
Token = "SVT"
Amount = "10"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
