package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port          int
	DBPath        string
	WriteTimeout  int    // seconds
	MetricsAddr   string // empty disables the metrics listener
	ControlSocket string // empty disables the control socket
}

func Load() *Config {
	cfg := &Config{
		Port:          6200,
		DBPath:        "chat.db",
		WriteTimeout:  5,
		MetricsAddr:   "",
		ControlSocket: "/tmp/chatd.sock",
	}

	if portStr := os.Getenv("CHATD_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			cfg.Port = port
		}
	}

	if dbPath := os.Getenv("CHATD_DB_PATH"); dbPath != "" {
		cfg.DBPath = dbPath
	}

	if timeoutStr := os.Getenv("CHATD_WRITE_TIMEOUT"); timeoutStr != "" {
		if timeout, err := strconv.Atoi(timeoutStr); err == nil {
			cfg.WriteTimeout = timeout
		}
	}

	if addr := os.Getenv("CHATD_METRICS_ADDR"); addr != "" {
		cfg.MetricsAddr = addr
	}

	if path, ok := os.LookupEnv("CHATD_CONTROL_SOCKET"); ok {
		cfg.ControlSocket = path
	}

	return cfg
}
