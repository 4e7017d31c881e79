package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ProbeConfig holds the connection and session defaults a probe-facing
// command line can load from .env or the environment, so a user running
// against the same bench setup every day doesn't need to repeat flags.
type ProbeConfig struct {
	TimeoutMS         int
	Retries           int
	Mode              string
	ConnectUnderReset bool
	VID               uint16
	PID               uint16
}

var (
	probeConfig  *ProbeConfig
	configLoaded bool
)

func LoadProbeConfig() (*ProbeConfig, error) {
	if probeConfig != nil && configLoaded {
		return probeConfig, nil
	}

	cfg := &ProbeConfig{
		TimeoutMS: 120000,
		Retries:   3,
		Mode:      "swd",
		VID:       0x0483,
	}

	// Try to load from .env file in project root
	projectRoot := findProjectRoot()
	envPath := filepath.Join(projectRoot, ".env")

	data, err := os.ReadFile(envPath)
	if err == nil {
		parseEnvFile(string(data), cfg)
	}

	// Override with environment variables if set
	if v := os.Getenv("PROBE_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TimeoutMS = n
		}
	}
	if v := os.Getenv("PROBE_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retries = n
		}
	}
	if v := os.Getenv("PROBE_MODE"); v != "" {
		cfg.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("PROBE_CONNECT_UNDER_RESET"); v != "" {
		cfg.ConnectUnderReset = parseBool(v)
	}
	if v := os.Getenv("PROBE_VID"); v != "" {
		if n, err := strconv.ParseUint(v, 0, 16); err == nil {
			cfg.VID = uint16(n)
		}
	}
	if v := os.Getenv("PROBE_PID"); v != "" {
		if n, err := strconv.ParseUint(v, 0, 16); err == nil {
			cfg.PID = uint16(n)
		}
	}

	probeConfig = cfg
	configLoaded = true
	return cfg, nil
}

func parseEnvFile(content string, cfg *ProbeConfig) {
	lines := strings.Split(content, "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch key {
		case "PROBE_TIMEOUT_MS":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.TimeoutMS = n
			}
		case "PROBE_RETRIES":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.Retries = n
			}
		case "PROBE_MODE":
			cfg.Mode = strings.ToLower(value)
		case "PROBE_CONNECT_UNDER_RESET":
			cfg.ConnectUnderReset = parseBool(value)
		case "PROBE_VID":
			if n, err := strconv.ParseUint(value, 0, 16); err == nil {
				cfg.VID = uint16(n)
			}
		case "PROBE_PID":
			if n, err := strconv.ParseUint(value, 0, 16); err == nil {
				cfg.PID = uint16(n)
			}
		}
	}
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func findProjectRoot() string {
	cwd, _ := os.Getwd()
	// First check CWD for .env file
	if _, err := os.Stat(filepath.Join(cwd, ".env")); err == nil {
		return cwd
	}
	// Then walk up looking for go.mod
	for {
		if _, err := os.Stat(filepath.Join(cwd, "go.mod")); err == nil {
			return cwd
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			return cwd
		}
		cwd = parent
	}
}

func MustGetProbeConfig() ProbeConfig {
	cfg, err := LoadProbeConfig()
	if err != nil {
		panic("failed to load probe configuration")
	}
	return *cfg
}
