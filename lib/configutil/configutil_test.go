package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Name    string `json:"name"`
	Port    int    `json:"port"`
	Verbose bool   `json:"verbose"`
}

func TestReadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")

	_, err := ReadConfig(path, testConfig{})
	require.ErrorIs(t, err, ErrNotFound)

	err = os.WriteFile(path, []byte(`{
		// comments are allowed
		name: "base",
	}`), 0600)
	require.NoError(t, err)

	cfg, err := ReadConfig(path, testConfig{Port: 8000})
	require.NoError(t, err)
	require.Equal(t, testConfig{Name: "base", Port: 8000}, cfg)

	err = os.WriteFile(filepath.Join(dir, "config.local.json5"), []byte(`{ name: "local", verbose: true }`), 0600)
	require.NoError(t, err)

	cfg, err = ReadConfig(path, testConfig{Port: 8000})
	require.NoError(t, err)
	require.Equal(t, testConfig{Name: "local", Port: 8000, Verbose: true}, cfg)
}

func TestReadRecursively(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0777))
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.json5"), []byte(`{port: 9000}`), 0600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(nested))
	defer os.Chdir(wd)

	cfg, err := ReadRecursively("app.json5", testConfig{})
	require.NoError(t, err)
	require.Equal(t, 9000, cfg.Port)
}
