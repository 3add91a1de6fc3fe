package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const appDirName = "voxscribe"

// Env carries the environment lookups that decide where voxscribe keeps data.
type Env struct {
	GOOS          string
	Home          string
	XDGDataHome   string
	XDGConfigHome string
	LocalAppData  string
	AppData       string
}

func CurrentEnv() (Env, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Env{}, fmt.Errorf("resolve user home: %w", err)
	}
	return Env{
		GOOS:          runtime.GOOS,
		Home:          home,
		XDGDataHome:   os.Getenv("XDG_DATA_HOME"),
		XDGConfigHome: os.Getenv("XDG_CONFIG_HOME"),
		LocalAppData:  os.Getenv("LOCALAPPDATA"),
		AppData:       os.Getenv("APPDATA"),
	}, nil
}

func (e Env) DataDir() (string, error) {
	if e.Home == "" {
		return "", errors.New("home directory is empty")
	}

	switch e.GOOS {
	case "linux":
		if e.XDGDataHome != "" {
			return filepath.Join(e.XDGDataHome, appDirName), nil
		}
		return filepath.Join(e.Home, ".local", "share", appDirName), nil
	case "darwin":
		return filepath.Join(e.Home, "Library", "Application Support", appDirName), nil
	case "windows":
		if e.LocalAppData != "" {
			return filepath.Join(e.LocalAppData, appDirName), nil
		}
		return filepath.Join(e.Home, "AppData", "Local", appDirName), nil
	default:
		return "", fmt.Errorf("unsupported OS: %s", e.GOOS)
	}
}

func (e Env) ConfigDir() (string, error) {
	if e.Home == "" {
		return "", errors.New("home directory is empty")
	}

	switch e.GOOS {
	case "linux":
		if e.XDGConfigHome != "" {
			return filepath.Join(e.XDGConfigHome, appDirName), nil
		}
		return filepath.Join(e.Home, ".config", appDirName), nil
	case "darwin":
		return filepath.Join(e.Home, "Library", "Application Support", appDirName), nil
	case "windows":
		if e.AppData != "" {
			return filepath.Join(e.AppData, appDirName), nil
		}
		return filepath.Join(e.Home, "AppData", "Roaming", appDirName), nil
	default:
		return "", fmt.Errorf("unsupported OS: %s", e.GOOS)
	}
}

func (e Env) ModelDir() (string, error) {
	dataDir, err := e.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "models"), nil
}

// ResolveModelDir returns override when set, otherwise the per-user default.
func ResolveModelDir(override string) (string, error) {
	if override != "" {
		return filepath.Clean(override), nil
	}

	env, err := CurrentEnv()
	if err != nil {
		return "", err
	}
	return env.ModelDir()
}

// EnsureDir creates dir if needed and returns it.
func EnsureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", dir, err)
	}
	return dir, nil
}
