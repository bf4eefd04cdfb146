package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config holds the settings a --config file may provide. Flags given on the
// command line override the file.
type Config struct {
	// Out is the directory class files are written under.
	Out string `yaml:"out"`

	// Jar is the jar file to write instead of a directory.
	Jar string `yaml:"jar"`

	// Workers is the number of classes assembled in parallel; 0 means one
	// per CPU.
	Workers int `yaml:"workers"`

	// Verify re-reads every written class.
	Verify bool `yaml:"verify"`

	// Digest prints the BLAKE3 digest of every class.
	Digest bool `yaml:"digest"`

	// Bootstrap is a jar or jmod used to resolve platform superclasses
	// during verification.
	Bootstrap string `yaml:"bootstrap"`

	LogLevel string `yaml:"log_level"`
}

func defaultConfig() Config {
	return Config{Out: ".", LogLevel: "info"}
}

// loadConfig reads a YAML config file over the defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// applyFlags copies every flag the user set explicitly into cfg.
func applyFlags(cfg *Config, flags *pflag.FlagSet, set Config) {
	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "out":
			cfg.Out = set.Out
		case "jar":
			cfg.Jar = set.Jar
		case "workers":
			cfg.Workers = set.Workers
		case "verify":
			cfg.Verify = set.Verify
		case "digest":
			cfg.Digest = set.Digest
		case "bootstrap":
			cfg.Bootstrap = set.Bootstrap
		case "log-level":
			cfg.LogLevel = set.LogLevel
		}
	})
}

// findBootstrap locates java.base.jmod for resolving platform classes.
func findBootstrap() string {
	// 1. Explicit env var
	if env := os.Getenv("JAVA_BASE_JMOD"); env != "" {
		return env
	}
	// 2. JAVA_HOME
	if javaHome := os.Getenv("JAVA_HOME"); javaHome != "" {
		p := filepath.Join(javaHome, "jmods", "java.base.jmod")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	// 3. Glob fallback
	matches, _ := filepath.Glob("/usr/lib/jvm/java-*-openjdk-*/jmods/java.base.jmod")
	if len(matches) > 0 {
		return matches[0]
	}
	return ""
}
