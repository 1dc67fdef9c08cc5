package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/ochairo/tagship/internal/config"
)

const logLevelEnvKey = "TAGSHIP_LOG_LEVEL"

// configureLoggerForCLI installs the default slog logger. Level precedence is
// flag > TAGSHIP_LOG_LEVEL > config file > info. An invalid flag is an error;
// an invalid env or config value falls back to info with a warning.
func configureLoggerForCLI(w io.Writer, flagLevel, configLevel string) (*slog.Logger, string, error) {
	envLevel := os.Getenv(logLevelEnvKey)
	rawLevel, source := selectedLogLevel(flagLevel, envLevel, configLevel)

	level, err := parseLogLevel(rawLevel)
	if err == nil {
		logger := newLogger(w, level)
		slog.SetDefault(logger)
		return logger, "", nil
	}

	logger := newLogger(w, slog.LevelInfo)
	slog.SetDefault(logger)
	switch source {
	case "flag":
		return nil, "", fmt.Errorf("invalid --log-level %q", flagLevel)
	case "env":
		return logger, fmt.Sprintf("warning: invalid %s=%q; defaulting to %s", logLevelEnvKey, envLevel, config.DefaultLogLevel), nil
	case "config":
		return logger, fmt.Sprintf("warning: invalid log_level=%q; defaulting to %s", configLevel, config.DefaultLogLevel), nil
	default:
		return logger, "", nil
	}
}

func selectedLogLevel(flagLevel, envLevel, configLevel string) (string, string) {
	if strings.TrimSpace(flagLevel) != "" {
		return flagLevel, "flag"
	}
	if strings.TrimSpace(envLevel) != "" {
		return envLevel, "env"
	}
	if strings.TrimSpace(configLevel) != "" {
		return configLevel, "config"
	}
	return "", "default"
}

func parseLogLevel(raw string) (slog.Level, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return slog.LevelInfo, nil
	}
	if strings.EqualFold(value, "warning") {
		value = "warn"
	}

	if numeric, err := strconv.Atoi(value); err == nil {
		return slog.Level(numeric), nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", raw)
	}
	return level, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
