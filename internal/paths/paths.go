// Package paths resolves the configuration and data directories of the
// cycles CLI.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// CWD-relative directory names used when nothing overrides them.
const (
	DefaultConfigDirName = ".cycles"
	DefaultDataDirName   = ".cycles-db"
)

// Environment variable names for directory overrides.
const (
	EnvConfigDir = "CYCLES_CONFIG_DIR"
	EnvDataDir   = "CYCLES_DATA_DIR"
)

// appName names the per-user directories.
const appName = "cycles"

// platformDir holds platform-detection functions that can be overridden in tests.
var platformDir = struct {
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
	getwd         func() (string, error)
}{
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
	getwd:         os.Getwd,
}

// UserDataDir returns the per-user data directory, used when the CLI is
// pointed at a shared installation with --data-dir=user.
//
// Linux:   $XDG_DATA_HOME/cycles (fallback ~/.local/share/cycles)
// Others:  os.UserConfigDir()/cycles
func UserDataDir() (string, error) {
	if runtime.GOOS == "linux" {
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, appName), nil
		}
		home, err := platformDir.homeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".local", "share", appName), nil
	}
	dir, err := platformDir.userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appName), nil
}

// ResolveConfigDir returns the configuration directory following the
// precedence chain: flag > CYCLES_CONFIG_DIR > $(CWD)/.cycles.
func ResolveConfigDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvConfigDir); env != "" {
		return filepath.Abs(env)
	}
	cwd, err := platformDir.getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, DefaultConfigDirName), nil
}

// ResolveDataDir returns the data directory following the precedence chain:
// flag > config.yaml data_dir > CYCLES_DATA_DIR > $(CWD)/.cycles-db.
// The value "user" in the flag or config selects UserDataDir.
func ResolveDataDir(flag, configValue string) (string, error) {
	for _, v := range []string{flag, configValue, os.Getenv(EnvDataDir)} {
		switch v {
		case "":
			continue
		case "user":
			return UserDataDir()
		default:
			return filepath.Abs(v)
		}
	}
	cwd, err := platformDir.getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, DefaultDataDirName), nil
}
