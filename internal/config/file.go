package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/viper"
)

// Persisted defaults
const (
	DefaultListenAddr = "localhost"
	DefaultListenPort = "2548"
	DefaultFilePath   = "heartrate.txt"
)

// File is the persisted part of the configuration, kept as JSON.
// Values from it sit below environment variables: any HR_* variable that is
// set wins over the file.
type File struct {
	FilePath   string `mapstructure:"file_path" json:"file_path"`
	ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
	ListenPort string `mapstructure:"listen_port" json:"listen_port"`
}

// DefaultFile returns the settings written when no config file exists yet
func DefaultFile() *File {
	return &File{
		FilePath:   DefaultFilePath,
		ListenAddr: DefaultListenAddr,
		ListenPort: DefaultListenPort,
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("json")

	defaults := DefaultFile()
	v.SetDefault("file_path", defaults.FilePath)
	v.SetDefault("listen_addr", defaults.ListenAddr)
	v.SetDefault("listen_port", defaults.ListenPort)
	return v
}

// ReadFile reads the config file at path. Keys missing from the file take
// their defaults.
func ReadFile(path string) (*File, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	f := &File{}
	if err := v.Unmarshal(f); err != nil {
		return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
	}

	return f, nil
}

// OpenFile reads the config file at path, writing the defaults there first
// if it does not exist
func OpenFile(path string) (*File, error) {
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file %s: %w", path, err)
		}
		f := DefaultFile()
		if err := f.Save(path); err != nil {
			return nil, err
		}
		return f, nil
	}

	return ReadFile(path)
}

// Save writes the settings to path as indented JSON.
// The file name must carry an extension.
func (f *File) Save(path string) error {
	v := newViper()
	v.Set("file_path", f.FilePath)
	v.Set("listen_addr", f.ListenAddr)
	v.Set("listen_port", f.ListenPort)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}

// ListenAddress returns host:port
func (f *File) ListenAddress() string {
	return net.JoinHostPort(f.ListenAddr, f.ListenPort)
}

// SetListenAddr sets host and port from a host:port string.
// Anything unparseable resets both to localhost:2548.
func (f *File) SetListenAddr(addr string) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil || host == "" || !validPort(port) {
		f.ListenAddr = DefaultListenAddr
		f.ListenPort = DefaultListenPort
		return
	}

	f.ListenAddr = host
	f.ListenPort = port
}

func validPort(port string) bool {
	n, err := strconv.Atoi(port)
	return err == nil && n > 0 && n <= 65535
}

// environment maps the file onto the variables it stands in for.
// A relative file path is taken relative to dir, the config file's directory.
func (f *File) environment(dir string) map[string]string {
	m := make(map[string]string, 3)
	if f.FilePath != "" {
		path := f.FilePath
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		m["HR_FILE_PATH"] = path
	}
	if f.ListenAddr != "" {
		m["HR_LISTEN_ADDRESS"] = f.ListenAddr
	}
	if f.ListenPort != "" {
		m["HR_LISTEN_PORT"] = f.ListenPort
	}
	return m
}
