package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/root4loot/goutils/log"
)

const envPrefix = "SCREENCHECK_"

// envConfig holds overrides read from the environment. Flags take
// precedence over it.
type envConfig map[string]string

var envKeys = []string{"URL", "PLACEHOLDER", "TIMEOUT", "OUTPUT", "DRIVER", "HEADLESS", "DEBUG"}

// loadEnv collects the SCREENCHECK_ variables from the process environment,
// falling back to the file at path when it exists. The file is only read:
// nothing is exported to the process, and an unreadable file is skipped
// with a warning.
func loadEnv(path string) envConfig {
	file, err := godotenv.Read(path)
	switch {
	case err == nil:
		log.Debugf("Read environment from %s", path)
	case errors.Is(err, fs.ErrNotExist):
	default:
		log.Warnf("Ignoring %s: %v", path, err)
		file = nil
	}

	env := envConfig{}
	for _, key := range envKeys {
		if val, ok := os.LookupEnv(envPrefix + key); ok && val != "" {
			env[key] = val
		} else if val := file[envPrefix+key]; val != "" {
			env[key] = val
		}
	}
	return env
}

func (env envConfig) apply(cli *cli) error {
	opts := &cli.Options

	if val, ok := env["URL"]; ok {
		opts.URL = val
	}
	if val, ok := env["PLACEHOLDER"]; ok {
		opts.Placeholder = val
	}
	if val, ok := env["OUTPUT"]; ok {
		opts.ScreenshotPath = val
	}
	if val, ok := env["DRIVER"]; ok {
		opts.Driver = val
	}
	if val, ok := env["TIMEOUT"]; ok {
		d, err := parseTimeout(val)
		if err != nil {
			return fmt.Errorf("invalid %sTIMEOUT %q: %w", envPrefix, val, err)
		}
		opts.VisibilityTimeout = d
	}
	if val, ok := env["HEADLESS"]; ok {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid %sHEADLESS %q: %w", envPrefix, val, err)
		}
		opts.Headless = b
	}
	if val, ok := env["DEBUG"]; ok {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid %sDEBUG %q: %w", envPrefix, val, err)
		}
		cli.Debug = b
	}
	return nil
}

// parseTimeout accepts a Go duration ("10s") or a plain number of
// milliseconds ("10000").
func parseTimeout(val string) (time.Duration, error) {
	if ms, err := strconv.Atoi(val); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(val)
}
