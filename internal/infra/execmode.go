package infra

import (
	"os"
	"os/user"
	"path/filepath"
)

// ExecMode represents the execution mode of the application.
type ExecMode string

const (
	// ExecModeUser keeps state under the invoking user's home directory.
	ExecModeUser ExecMode = "user"
	// ExecModeSystem runs as root with state under /var/lib.
	ExecModeSystem ExecMode = "system"
)

const appName = "focuslock"

// ExecModeConfig holds default paths for the execution mode.
type ExecModeConfig struct {
	Mode       ExecMode
	DataDir    string // encrypted store and key
	ConfigPath string // optional YAML config
	LogPath    string // daemon log file
	IsRoot     bool
}

// DetectExecMode determines the execution mode based on effective UID.
func DetectExecMode() *ExecModeConfig {
	if os.Geteuid() == 0 && os.Getenv("SUDO_USER") == "" {
		return systemModeConfig()
	}
	return userModeConfig(GetRealUserHome())
}

func systemModeConfig() *ExecModeConfig {
	dataDir := filepath.Join("/var/lib", appName)
	return &ExecModeConfig{
		Mode:       ExecModeSystem,
		DataDir:    dataDir,
		ConfigPath: filepath.Join("/etc", appName, "config.yaml"),
		LogPath:    filepath.Join(dataDir, appName+".log"),
		IsRoot:     true,
	}
}

func userModeConfig(home string) *ExecModeConfig {
	dataDir := filepath.Join(home, "."+appName)
	return &ExecModeConfig{
		Mode:       ExecModeUser,
		DataDir:    dataDir,
		ConfigPath: filepath.Join(dataDir, "config.yaml"),
		LogPath:    filepath.Join(dataDir, appName+".log"),
		IsRoot:     os.Geteuid() == 0, // still track real root status for interface setup
	}
}

// String returns a human-readable description of the mode.
func (m ExecMode) String() string {
	switch m {
	case ExecModeSystem:
		return "system (root)"
	case ExecModeUser:
		return "user"
	default:
		return "unknown"
	}
}

// GetRealUserHome returns the real user's home directory, even when running under sudo.
func GetRealUserHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	home, _ := os.UserHomeDir()
	return home
}
