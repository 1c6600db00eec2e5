// Package config loads server configuration from an optional YAML file
// and REGASSIST_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server ServerConfig `koanf:"server"`
	DB     DBConfig     `koanf:"db"`
	Stream StreamConfig `koanf:"stream"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

type DBConfig struct {
	Path string `koanf:"path"`
}

type StreamConfig struct {
	ReplayFrames  int    `koanf:"replay"`
	ChunkDelayMS  int    `koanf:"delay"`
	TranscriptDir string `koanf:"transcripts"`
}

// Load reads configuration. A YAML file path may be empty; environment
// variables override file values (REGASSIST_SERVER_PORT → server.port).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file: %w", err)
			}
		}
	}

	if err := k.Load(env.Provider("REGASSIST_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "REGASSIST_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	// Default values
	if !k.Exists("server.port") {
		k.Set("server.port", 8080)
	}
	if !k.Exists("db.path") {
		k.Set("db.path", "data/regassist.db")
	}
	if !k.Exists("stream.replay") {
		k.Set("stream.replay", 256)
	}
	if !k.Exists("stream.delay") {
		k.Set("stream.delay", 40)
	}
	if !k.Exists("stream.transcripts") {
		k.Set("stream.transcripts", "data/transcripts")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
