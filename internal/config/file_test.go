package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenFileWritesDefaultsWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	f, err := OpenFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultFile(), f)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"listen_port"`)

	again, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultFile(), again)
}

func TestSaveAndReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	f := &File{FilePath: "/srv/hr/bpm.txt", ListenAddr: "0.0.0.0", ListenPort: "3000"}

	require.NoError(t, f.Save(path))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestReadFileFillsMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"listen_port": "4000"}`), 0o644))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "4000", got.ListenPort)
	assert.Equal(t, DefaultListenAddr, got.ListenAddr)
	assert.Equal(t, DefaultFilePath, got.FilePath)
}

func TestReadFileRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"listen_port": `), 0o644))

	_, err := ReadFile(path)
	assert.Error(t, err)
}

func TestSetListenAddr(t *testing.T) {
	tests := []struct {
		in   string
		host string
		port string
	}{
		{"0.0.0.0:9000", "0.0.0.0", "9000"},
		{"[::1]:2600", "::1", "2600"},
		{"example.com:80", "example.com", "80"},
		{"no-port", DefaultListenAddr, DefaultListenPort},
		{"a:b:c", DefaultListenAddr, DefaultListenPort},
		{":9000", DefaultListenAddr, DefaultListenPort},
		{"host:http", DefaultListenAddr, DefaultListenPort},
		{"host:70000", DefaultListenAddr, DefaultListenPort},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			f := &File{ListenAddr: "keep", ListenPort: "1"}
			f.SetListenAddr(tt.in)
			assert.Equal(t, tt.host, f.ListenAddr)
			assert.Equal(t, tt.port, f.ListenPort)
		})
	}
}

func TestListenAddressJoinsHostAndPort(t *testing.T) {
	f := &File{ListenAddr: "::1", ListenPort: "2548"}
	assert.Equal(t, "[::1]:2548", f.ListenAddress())
}

func TestEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, (&File{FilePath: "bpm.txt", ListenAddr: "0.0.0.0", ListenPort: "3000"}).Save(path))

	cfg, err := LoadFromWithFile(path, map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:3000", cfg.GetHTTPAddr())
	assert.Equal(t, filepath.Join(dir, "bpm.txt"), cfg.Store.FilePath)

	cfg, err = LoadFromWithFile(path, map[string]string{
		"HR_LISTEN_PORT": "4000",
		"HR_FILE_PATH":   "/tmp/other.txt",
	})
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:4000", cfg.GetHTTPAddr())
	assert.Equal(t, "/tmp/other.txt", cfg.Store.FilePath)
}

func TestLoadWithMissingFileCreatesIt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, err := LoadFromWithFile(path, map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, "localhost:2548", cfg.GetHTTPAddr())
	assert.FileExists(t, path)
}

func TestInvalidPortInFileFailsValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"listen_port": "99999"}`), 0o644))

	_, err := LoadFromWithFile(path, map[string]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid listen port")
}

func TestConfigFileRoundTripsThroughConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg, err := LoadFrom(map[string]string{"HR_LISTEN_PORT": "2600", "HR_FILE_PATH": "/srv/hr.txt"})
	require.NoError(t, err)

	require.NoError(t, cfg.File().Save(path))
	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, &File{FilePath: "/srv/hr.txt", ListenAddr: "localhost", ListenPort: "2600"}, got)
}

func TestEnvironMap(t *testing.T) {
	m := environMap([]string{"A=1", "B=x=y", "broken"})
	assert.Equal(t, map[string]string{"A": "1", "B": "x=y"}, m)
}
