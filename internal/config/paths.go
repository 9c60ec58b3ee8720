package config

import (
	"os"
	"path/filepath"
)

// HomePath returns the coinchat data directory: $COINCHAT_PATH if set,
// otherwise ~/.coinchat.
func HomePath() string {
	if v := os.Getenv("COINCHAT_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".coinchat")
	}
	return filepath.Join(home, ".coinchat")
}

func ConfigPath() string {
	return filepath.Join(HomePath(), "config.jsonc")
}

func DotenvPath() string {
	return filepath.Join(HomePath(), ".env")
}

// HeartbeatPath is where a running gateway records its liveness.
func HeartbeatPath() string {
	return filepath.Join(HomePath(), "heartbeat.json")
}
